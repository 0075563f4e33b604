package credential

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	id "campusgate/pkg/domain"
	"campusgate/pkg/requestcontext"
)

// Issuer mints tokens the Verifier accepts. Used by cmd/tokengen and tests;
// production tokens come from the external identity provider.
type Issuer struct {
	signingKey []byte
	issuer     string
	audience   string
	ttl        time.Duration
}

func NewIssuer(signingKey []byte, issuer, audience string, ttl time.Duration) *Issuer {
	return &Issuer{signingKey: signingKey, issuer: issuer, audience: audience, ttl: ttl}
}

// IssueRequest describes the principal to mint a token for. A zero TTL uses
// the issuer default.
type IssueRequest struct {
	PrincipalID  id.PrincipalID
	Email        string
	Name         string
	PlatformRole string
	TTL          time.Duration
}

// Issue returns the signed token and its ID.
func (i *Issuer) Issue(ctx context.Context, req IssueRequest) (string, string, error) {
	if req.PrincipalID.IsNil() {
		return "", "", fmt.Errorf("principal id is required")
	}
	ttl := req.TTL
	if ttl == 0 {
		ttl = i.ttl
	}

	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("generate token id: %w", err)
	}
	jti := hex.EncodeToString(b)
	now := requestcontext.Now(ctx)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email:        req.Email,
		Name:         req.Name,
		PlatformRole: req.PlatformRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   req.PrincipalID.String(),
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        jti,
		},
	})
	signed, err := token.SignedString(i.signingKey)
	if err != nil {
		return "", "", fmt.Errorf("sign token: %w", err)
	}
	return signed, jti, nil
}
