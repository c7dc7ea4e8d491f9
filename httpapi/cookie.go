package httpapi

import (
	"net/http"
	"time"
)

// CookieConfig controls the refresh-token cookie.
type CookieConfig struct {
	Name   string
	Path   string
	Domain string
	Secure bool
}

func (c CookieConfig) withDefaults() CookieConfig {
	if c.Name == "" {
		c.Name = "refreshToken"
	}
	if c.Path == "" {
		c.Path = "/api/v1/auth"
	}
	return c
}

func (a *API) setRefreshCookie(w http.ResponseWriter, secret string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookie.Name,
		Value:    secret,
		Path:     a.cookie.Path,
		Domain:   a.cookie.Domain,
		Expires:  expiresAt.UTC(),
		MaxAge:   int(a.refreshTTL / time.Second),
		HttpOnly: true,
		Secure:   a.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *API) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cookie.Name,
		Value:    "",
		Path:     a.cookie.Path,
		Domain:   a.cookie.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// refreshSecret returns the cookie value, or "" when absent.
func (a *API) refreshSecret(r *http.Request) string {
	c, err := r.Cookie(a.cookie.Name)
	if err != nil {
		return ""
	}
	return c.Value
}
