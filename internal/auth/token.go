package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

var ErrEmptySubject = errors.New("token has no subject")

// TokenVerifier checks HS256 tokens and yields their subject as user id.
type TokenVerifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewTokenVerifier(secret string, clock clockwork.Clock) *TokenVerifier {
	return &TokenVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(clock.Now),
		),
	}
}

// Verify returns the token's subject.
func (v *TokenVerifier) Verify(token string) (string, error) {
	var claims jwt.RegisteredClaims
	if _, err := v.parser.ParseWithClaims(token, &claims, v.key); err != nil {
		return "", fmt.Errorf("failed to verify token: %w", err)
	}
	if claims.Subject == "" {
		return "", ErrEmptySubject
	}
	return claims.Subject, nil
}

func (v *TokenVerifier) key(*jwt.Token) (any, error) {
	return v.secret, nil
}
