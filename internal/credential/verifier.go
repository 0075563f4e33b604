package credential

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	id "campusgate/pkg/domain"
	dErrors "campusgate/pkg/domain-errors"
)

// RevocationList reports whether a token ID has been revoked.
type RevocationList interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

type VerifierConfig struct {
	SigningKey []byte
	Issuer     string
	Audience   string
	Leeway     time.Duration
}

// Verifier checks HS256 bearer tokens: signature, issuer, audience and
// expiry. It never consults the tenant directory.
type Verifier struct {
	cfg        VerifierConfig
	clock      func() time.Time
	revocation RevocationList
	logger     *slog.Logger
}

type VerifierOption func(*Verifier)

func WithVerifierClock(clock func() time.Time) VerifierOption {
	return func(v *Verifier) { v.clock = clock }
}

// WithRevocationList enables the revoked-token check. Lookup failures fail
// closed as unavailable errors.
func WithRevocationList(list RevocationList) VerifierOption {
	return func(v *Verifier) { v.revocation = list }
}

func WithVerifierLogger(logger *slog.Logger) VerifierOption {
	return func(v *Verifier) { v.logger = logger }
}

func NewVerifier(cfg VerifierConfig, opts ...VerifierOption) *Verifier {
	v := &Verifier{cfg: cfg, clock: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ExtractBearer returns the token from an Authorization header value.
func ExtractBearer(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", newVerificationError(ReasonMissing, nil)
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", newVerificationError(ReasonMalformed, errors.New("authorization scheme must be Bearer"))
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", newVerificationError(ReasonMalformed, errors.New("empty bearer token"))
	}
	return token, nil
}

// Verify parses and validates raw. Rejections are *VerificationError.
func (v *Verifier) Verify(ctx context.Context, raw string) (*Principal, error) {
	if raw == "" {
		return nil, newVerificationError(ReasonMissing, nil)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.cfg.Issuer),
		jwt.WithAudience(v.cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.cfg.Leeway),
		jwt.WithTimeFunc(v.clock),
	)
	claims := &Claims{}
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.cfg.SigningKey, nil
	}); err != nil {
		return nil, newVerificationError(classify(err), err)
	}

	principalID, err := id.ParsePrincipalID(claims.Subject)
	if err != nil {
		return nil, newVerificationError(ReasonMalformed, err)
	}

	if v.revocation != nil && claims.ID != "" {
		revoked, err := v.revocation.IsRevoked(ctx, claims.ID)
		if err != nil {
			v.logger.WarnContext(ctx, "token revocation lookup failed", "error", err)
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "token revocation lookup failed")
		}
		if revoked {
			return nil, newVerificationError(ReasonRevoked, nil)
		}
	}

	p := &Principal{
		ID:           principalID,
		TokenID:      claims.ID,
		Email:        claims.Email,
		Name:         claims.Name,
		PlatformRole: claims.PlatformRole,
	}
	if claims.IssuedAt != nil {
		p.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p, nil
}

// classify maps jwt validation errors onto reasons. A token that is not ours
// (bad signature, wrong issuer or audience) is signature_invalid.
func classify(err error) Reason {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ReasonSignatureInvalid
	case errors.Is(err, jwt.ErrTokenExpired):
		return ReasonExpired
	case errors.Is(err, jwt.ErrTokenInvalidIssuer), errors.Is(err, jwt.ErrTokenInvalidAudience):
		return ReasonSignatureInvalid
	default:
		return ReasonMalformed
	}
}
