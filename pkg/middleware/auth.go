package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/asque/asque/pkg/contextkeys"
	"github.com/asque/asque/pkg/httputil"
	"github.com/asque/asque/pkg/observability"
)

// AuthContext is the identity attached to every authenticated request.
type AuthContext struct {
	UserID string
	Email  string
}

// TokenVerifier validates a bearer token and extracts the identity.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*AuthContext, error)
}

// OIDCVerifier validates tokens against an OIDC issuer's signing keys.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier discovers the issuer configuration and keys.
func NewOIDCVerifier(ctx context.Context, issuerURL, audience string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover oidc provider: %w", err)
	}
	return &OIDCVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: audience}),
	}, nil
}

// Verify validates the token signature, expiry and audience.
func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*AuthContext, error) {
	token, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}

	var claims struct {
		Email string `json:"email"`
	}
	if err := token.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to extract claims: %w", err)
	}

	return &AuthContext{UserID: token.Subject, Email: claims.Email}, nil
}

// StaticVerifier resolves tokens from a fixed map. Used by tests and
// local development.
type StaticVerifier struct {
	Tokens map[string]*AuthContext
}

func (v *StaticVerifier) Verify(ctx context.Context, rawToken string) (*AuthContext, error) {
	auth, ok := v.Tokens[rawToken]
	if !ok {
		return nil, fmt.Errorf("unknown token")
	}
	return auth, nil
}

// Auth gates requests on a valid bearer token. Unauthenticated requests
// get 401 before any business logic runs.
func Auth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := contextkeys.GetRequestID(r.Context())

			rawToken := bearerToken(r)
			if rawToken == "" {
				httputil.WriteUnauthorized(w, requestID)
				return
			}

			auth, err := verifier.Verify(r.Context(), rawToken)
			if err != nil {
				observability.GetLogger(r.Context()).WithError(err).Warn("rejected bearer token")
				httputil.WriteUnauthorized(w, requestID)
				return
			}

			ctx := contextkeys.WithAuth(r.Context(), auth)
			ctx = contextkeys.WithUserID(ctx, auth.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAuth returns the identity set by Auth, or nil.
func GetAuth(ctx context.Context) *AuthContext {
	if auth, ok := ctx.Value(contextkeys.AuthKey).(*AuthContext); ok {
		return auth
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
