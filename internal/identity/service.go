package identity

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "vcgate/pkg/domain-errors"
)

// Claims represents the JWT claims for vcgate access tokens.
type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// Service handles JWT creation and verification. HMAC signature comparison
// inside golang-jwt is constant-time, so verification leaks no timing signal.
type Service struct {
	signingKey []byte
	issuer     string
	clockSkew  time.Duration
}

// New constructs a Service. clockSkew widens the expiry window for callers
// with drifting clocks; zero means exact expiry.
func New(signingKey string, issuer string, clockSkew time.Duration) *Service {
	return &Service{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		clockSkew:  clockSkew,
	}
}

// IssueToken mints a signed access token for the subject and roles.
func (s *Service) IssueToken(subject string, roles []string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	})

	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// Verify validates the credential and resolves the caller identity. Any
// malformed, mis-signed, or expired token maps to CodeUnauthenticated.
func (s *Service) Verify(credential string) (Identity, error) {
	parsed, err := jwt.ParseWithClaims(credential, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithLeeway(s.clockSkew), jwt.WithIssuer(s.issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, dErrors.New(dErrors.CodeUnauthenticated, "token has expired")
		}
		return Identity{}, dErrors.New(dErrors.CodeUnauthenticated, "invalid token")
	}

	if !parsed.Valid {
		return Identity{}, dErrors.New(dErrors.CodeUnauthenticated, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return Identity{}, dErrors.New(dErrors.CodeUnauthenticated, "invalid token claims")
	}

	ident := Identity{
		Subject: claims.Subject,
		Roles:   claims.Roles,
	}
	if claims.IssuedAt != nil {
		ident.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		ident.ExpiresAt = claims.ExpiresAt.Time
	}
	return ident, nil
}
