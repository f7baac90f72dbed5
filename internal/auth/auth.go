// Package auth turns a bearer token into a stable user id.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rhyzero/file-organizer/internal/models"
)

// Verifier validates an identity token and returns the caller's user id.
// Failures wrap models.ErrAuth.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

type userIDKey struct{}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "Bearer ") {
		return "", fmt.Errorf("%w: missing bearer token", models.ErrAuth)
	}
	token := strings.TrimSpace(h[7:])
	if token == "" {
		return "", fmt.Errorf("%w: empty bearer token", models.ErrAuth)
	}
	return token, nil
}

// Authenticate verifies the request's bearer token.
func Authenticate(r *http.Request, v Verifier) (string, error) {
	token, err := BearerToken(r)
	if err != nil {
		return "", err
	}
	return v.Verify(r.Context(), token)
}

// WithUserID stores the verified user id on the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserID returns the user id stored by WithUserID.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey{}).(string)
	return id, ok && id != ""
}
