package auth

import (
	"context"
	"fmt"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/rhyzero/file-organizer/internal/models"
)

// FirebaseJWKSURL publishes the keys that sign Firebase ID tokens.
const FirebaseJWKSURL = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"

// FirebaseVerifier validates Firebase ID tokens (RS256) for one project.
// The key set is refreshed in the background until Close is called.
type FirebaseVerifier struct {
	projectID string
	keys      keyfunc.Keyfunc
	cancel    context.CancelFunc
}

// NewFirebaseVerifier fetches the signing keys and builds a verifier. An empty
// jwksURL uses FirebaseJWKSURL.
func NewFirebaseVerifier(ctx context.Context, projectID, jwksURL string) (*FirebaseVerifier, error) {
	if projectID == "" {
		return nil, fmt.Errorf("firebase project id is required")
	}
	if jwksURL == "" {
		jwksURL = FirebaseJWKSURL
	}
	refreshCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	keys, err := keyfunc.NewDefaultCtx(refreshCtx, []string{jwksURL})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to load firebase signing keys: %w", err)
	}
	return &FirebaseVerifier{projectID: projectID, keys: keys, cancel: cancel}, nil
}

// Verify checks signature, issuer, audience and expiry, then returns the uid.
func (v *FirebaseVerifier) Verify(ctx context.Context, tokenStr string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, v.keys.Keyfunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer("https://securetoken.google.com/"+v.projectID),
		jwt.WithAudience(v.projectID),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrAuth, err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", fmt.Errorf("%w: invalid token", models.ErrAuth)
	}
	return claims.Subject, nil
}

// Close stops the background key refresh.
func (v *FirebaseVerifier) Close() error {
	v.cancel()
	return nil
}
