package credential

import "github.com/golang-jwt/jwt/v5"

// Claims is the token body. The subject is the principal ID.
type Claims struct {
	Email        string `json:"email,omitempty"`
	Name         string `json:"name,omitempty"`
	PlatformRole string `json:"platform_role,omitempty"`
	jwt.RegisteredClaims
}
