// Package auth verifies the HS256 bearer tokens the back office issues to
// operators.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

// RoleAdmin is the only role allowed to change fulfillment status.
const RoleAdmin = "admin"

const clockSkew = 30 * time.Second

// AdminClaims is the payload of a back-office token.
type AdminClaims struct {
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

func (c *AdminClaims) IsAdmin() bool {
	return c != nil && c.Role == RoleAdmin
}

// Signer holds the shared HS256 key and the expected issuer.
type Signer struct {
	key    []byte
	issuer string
	parser *jwt.Parser
}

func NewSigner(cfg config.JWTConfig) (*Signer, error) {
	switch {
	case cfg.Secret == "":
		return nil, errors.New("jwt secret is required")
	case cfg.Issuer == "":
		return nil, errors.New("jwt issuer is required")
	}
	return &Signer{
		key:    []byte(cfg.Secret),
		issuer: cfg.Issuer,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(clockSkew),
		),
	}, nil
}

// Sign mints a token for subject. The api only verifies; tooling and tests sign.
func (s *Signer) Sign(now time.Time, subject, role string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errors.New("jwt ttl must be positive")
	}
	if strings.TrimSpace(role) == "" {
		return "", errors.New("jwt role is required")
	}
	claims := AdminClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return signed, nil
}

// Verify checks signature, algorithm, issuer and expiry.
func (s *Signer) Verify(raw string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	if _, err := s.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return s.key, nil }); err != nil {
		return nil, err
	}
	return claims, nil
}
