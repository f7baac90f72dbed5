package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rhyzero/file-organizer/internal/models"
)

// MinSecretLen is the shortest HMAC secret accepted.
const MinSecretLen = 32

// HMACVerifier validates HS256 tokens signed with a shared secret. It is meant
// for local development and for tooling that mints its own tokens.
type HMACVerifier struct {
	secret []byte
}

// NewHMACVerifier returns a verifier for secret.
func NewHMACVerifier(secret []byte) (*HMACVerifier, error) {
	if len(secret) < MinSecretLen {
		return nil, fmt.Errorf("auth: secret must be at least %d bytes", MinSecretLen)
	}
	return &HMACVerifier{secret: secret}, nil
}

// Verify returns the token subject. Only HS256 is accepted.
func (v *HMACVerifier) Verify(ctx context.Context, tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v (only HS256 allowed)", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrAuth, err)
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("%w: invalid token", models.ErrAuth)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", models.ErrAuth)
	}
	return claims.Subject, nil
}

// Issue mints a token for userID valid for expiry.
func (v *HMACVerifier) Issue(userID string, expiry time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
