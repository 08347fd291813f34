package coordinator

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/mnohosten/paygate/pkg/httpkit"
	"github.com/mnohosten/paygate/pkg/token"
)

type contextKey string

const contextKeySubject contextKey = "coordinator_subject"

// parseAuthHeader extracts the bearer token from an Authorization header
// using the standard "Bearer <token>" convention.
func parseAuthHeader(header string) (string, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", errors.New("invalid authorization header")
	}
	return parts[1], nil
}

// requireAuth returns middleware that verifies the bearer token and injects
// its token.Subject into the request context. The bank participant never sees
// these tokens; only the coordinator mints and verifies them.
func requireAuth(issuer *token.Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				httpkit.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing authorization header")
				return
			}

			tok, err := parseAuthHeader(header)
			if err != nil {
				httpkit.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid authorization header")
				return
			}

			subject, err := issuer.Verify(tok)
			if err != nil {
				httpkit.WriteError(w, http.StatusUnauthorized, "unauthorized", err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), contextKeySubject, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func subjectFromContext(r *http.Request) (token.Subject, bool) {
	subject, ok := r.Context().Value(contextKeySubject).(token.Subject)
	return subject, ok
}
