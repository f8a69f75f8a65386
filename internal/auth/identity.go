package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoToken is returned when the request carries no token
var ErrNoToken = errors.New("no token")

// TokenVerifier resolves account identities from HS256 tokens. A verifier
// without a secret accepts nothing, so every player stays anonymous.
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier creates a verifier for the shared secret
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// Enabled reports whether a secret is configured
func (v *TokenVerifier) Enabled() bool {
	return len(v.secret) > 0
}

// Issue signs a token for subject, mostly useful for tooling and tests
func (v *TokenVerifier) Issue(subject string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{"sub": subject}
	if ttl > 0 {
		claims["exp"] = time.Now().Add(ttl).Unix()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Verify checks tokenString and returns its "sub" claim
func (v *TokenVerifier) Verify(tokenString string) (string, error) {
	if !v.Enabled() {
		return "", errors.New("token verification disabled")
	}

	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid jwt claims")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("missing sub in jwt")
	}
	return sub, nil
}

// FromRequest reads a bearer token from the Authorization header or the
// "token" query parameter, which browsers use for websocket upgrades.
func (v *TokenVerifier) FromRequest(r *http.Request) (string, error) {
	token := r.URL.Query().Get("token")
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		token = strings.TrimPrefix(h, "Bearer ")
	}
	if token == "" {
		return "", ErrNoToken
	}
	return v.Verify(token)
}
