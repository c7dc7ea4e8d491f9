package middleware

import (
	"errors"
	"net/http"

	"github.com/MrEthical07/authcore"
)

// DeniedFunc writes the response for a rejected request. err is
// authcore.ErrUnauthenticated or authcore.ErrForbidden.
type DeniedFunc func(w http.ResponseWriter, r *http.Request, err error)

// Guards builds RequireAuthenticated and RequirePermission middleware that
// share one rejection writer. The zero value writes plain-text responses.
type Guards struct {
	Denied DeniedFunc
}

func (g Guards) deny(w http.ResponseWriter, r *http.Request, err error) {
	if g.Denied != nil {
		g.Denied(w, r, err)
		return
	}
	if errors.Is(err, authcore.ErrForbidden) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

// RequireAuthenticated rejects requests with no bound identity.
func (g Guards) RequireAuthenticated() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := authcore.IdentityFromContext(r.Context()); !ok {
				g.deny(w, r, authcore.ErrUnauthenticated)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission rejects requests with no bound identity (401) and
// requests whose identity lacks any of names (403).
func (g Guards) RequirePermission(names ...string) func(http.Handler) http.Handler {
	required := append([]string(nil), names...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := authcore.IdentityFromContext(r.Context())
			if !ok {
				g.deny(w, r, authcore.ErrUnauthenticated)
				return
			}
			if !id.HasAll(required...) {
				g.deny(w, r, authcore.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuthenticated is Guards{}.RequireAuthenticated.
func RequireAuthenticated() func(http.Handler) http.Handler {
	return Guards{}.RequireAuthenticated()
}

// RequirePermission is Guards{}.RequirePermission.
func RequirePermission(names ...string) func(http.Handler) http.Handler {
	return Guards{}.RequirePermission(names...)
}
