// Package auth reads the caller identity asserted by the access proxy in
// front of the service.
//
// The proxy verifies the assertion before forwarding the request, so the
// token is decoded without signature verification. Requests that arrive
// without a usable assertion are rejected with 401.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jdores/selfserve-egressip/internal/pkg/httputil"
	"github.com/jdores/selfserve-egressip/internal/pkg/logger"
)

// DefaultHeader carries the access assertion.
const DefaultHeader = "Cf-Access-Jwt-Assertion"

// ErrNoIdentity is returned when the assertion is missing or has no email.
var ErrNoIdentity = errors.New("no identity in access assertion")

type contextKeyIdentity struct{}

// EmailFromAssertion decodes token and returns its lowercased email claim.
func EmailFromAssertion(token string) (string, error) {
	if token == "" {
		return "", ErrNoIdentity
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoIdentity, err)
	}
	email, _ := claims["email"].(string)
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", ErrNoIdentity
	}
	return email, nil
}

// RequireIdentity rejects requests without a decodable assertion in header
// and stores the email in the request context.
func RequireIdentity(header string) func(http.Handler) http.Handler {
	if header == "" {
		header = DefaultHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			email, err := EmailFromAssertion(r.Header.Get(header))
			if err != nil {
				logger.Debug("auth: rejected request", "path", r.URL.Path, "error", err)
				httputil.Unauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), email)))
		})
	}
}

// WithIdentity returns ctx carrying email.
func WithIdentity(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, contextKeyIdentity{}, email)
}

// IdentityFromContext returns the email stored by RequireIdentity.
func IdentityFromContext(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(contextKeyIdentity{}).(string)
	return email, ok && email != ""
}
