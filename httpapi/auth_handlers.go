package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/MrEthical07/authcore"
)

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type accountResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	CreatedAt time.Time `json:"createdAt"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

func (a *API) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	a.writeError(w, r, fmt.Errorf("%w: %v", authcore.ErrInvalidRequest, err))
}

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, a.maxBody, &req); err != nil {
		a.badRequest(w, r, err)
		return
	}

	acc, err := a.engine.Register(r.Context(), authcore.RegisterRequest{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	writeOK(w, http.StatusCreated, "registration successful", accountResponse{
		ID:        acc.ID,
		Email:     acc.Email,
		FirstName: acc.FirstName,
		LastName:  acc.LastName,
		CreatedAt: acc.CreatedAt,
	})
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, a.maxBody, &req); err != nil {
		a.badRequest(w, r, err)
		return
	}

	pair, err := a.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	a.setRefreshCookie(w, pair.RefreshToken, pair.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: pair.AccessToken, ExpiresAt: pair.AccessExpiresAt})
}

func (a *API) refresh(w http.ResponseWriter, r *http.Request) {
	pair, err := a.engine.Rotate(r.Context(), a.refreshSecret(r))
	if err != nil {
		if authcore.TokenReasonOf(err) != "" {
			a.clearRefreshCookie(w)
		}
		a.writeError(w, r, err)
		return
	}

	a.setRefreshCookie(w, pair.RefreshToken, pair.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: pair.AccessToken, ExpiresAt: pair.AccessExpiresAt})
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	if err := a.engine.Logout(r.Context(), a.refreshSecret(r)); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.clearRefreshCookie(w)
	writeOK(w, http.StatusOK, "logged out successfully", nil)
}

func (a *API) logoutAll(w http.ResponseWriter, r *http.Request) {
	id, _ := authcore.IdentityFromContext(r.Context())
	n, err := a.engine.LogoutAllByID(r.Context(), id.AccountID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.clearRefreshCookie(w)
	writeOK(w, http.StatusOK, "logged out from all devices", map[string]int{"revoked": n})
}
