// Package auth signs and verifies the HS256 bearer tokens the API accepts.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers malformed, expired and wrongly signed tokens.
var ErrInvalidToken = errors.New("invalid token")

const devSecret = "dev-secret"

// Claims is the identity carried by a token. Subject is the owner id.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Tokens issues and checks tokens with one shared secret.
type Tokens struct {
	secret []byte
	ttl    time.Duration
}

// NewTokens requires a secret in production and falls back to a fixed dev
// secret elsewhere.
func NewTokens(secret, env string) (*Tokens, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		if env == "prod" || env == "production" {
			return nil, errors.New("jwt secret not configured: JWT_SECRET required in production")
		}
		secret = devSecret
	}
	return &Tokens{secret: []byte(secret), ttl: 24 * time.Hour}, nil
}

// Sign issues a token for subject.
func (t *Tokens) Sign(subject, name string) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("sub is required")
	}
	now := time.Now()
	claims := Claims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses token and returns its claims.
func (t *Tokens) Verify(token string) (Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return Claims{}, ErrInvalidToken
	}
	return *claims, nil
}
