package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MrEthical07/authcore"
)

// Verifier checks an access token and returns the identity its claims
// describe. *authcore.Engine satisfies it.
type Verifier interface {
	VerifyAccessToken(ctx context.Context, token string) (*authcore.Identity, error)
}

// GateOptions configures Gate.
type GateOptions struct {
	// PublicPaths are matched exactly against the request path.
	PublicPaths []string
	// PublicPrefixes are matched as path prefixes.
	PublicPrefixes []string
	// Logger receives rejected-token events at debug level. Nil disables them.
	Logger *slog.Logger
}

func (o GateOptions) public(path string) bool {
	for _, p := range o.PublicPaths {
		if path == p {
			return true
		}
	}
	for _, p := range o.PublicPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Gate binds the identity carried by a valid bearer token to the request
// context. Public paths, requests without a bearer token, and requests with
// an invalid token pass through unauthenticated.
func Gate(verifier Verifier, opts GateOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil || opts.public(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			if _, bound := authcore.IdentityFromContext(r.Context()); bound {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			id, err := verifier.VerifyAccessToken(r.Context(), token)
			if err != nil {
				if opts.Logger != nil {
					opts.Logger.DebugContext(r.Context(), "gate.token.rejected",
						"path", r.URL.Path,
						"reason", string(authcore.TokenReasonOf(err)),
					)
				}
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(authcore.WithIdentity(r.Context(), id)))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
