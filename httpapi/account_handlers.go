package httpapi

import (
	"net/http"
	"time"

	"github.com/MrEthical07/authcore"
)

type accountViewResponse struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	CreatedAt      time.Time `json:"createdAt"`
	Roles          []string  `json:"roles"`
	Permissions    []string  `json:"permissions"`
	ActiveSessions int       `json:"activeSessions"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

func (a *API) viewAccount(w http.ResponseWriter, r *http.Request) {
	id, _ := authcore.IdentityFromContext(r.Context())
	view, err := a.engine.Account(r.Context(), id.AccountID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "", accountViewResponse{
		ID:             view.ID,
		Email:          view.Email,
		FirstName:      view.FirstName,
		LastName:       view.LastName,
		CreatedAt:      view.CreatedAt,
		Roles:          view.Roles,
		Permissions:    view.Permissions,
		ActiveSessions: view.ActiveSessions,
	})
}

func (a *API) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeJSON(w, r, a.maxBody, &req); err != nil {
		a.badRequest(w, r, err)
		return
	}
	id, _ := authcore.IdentityFromContext(r.Context())
	if err := a.engine.ChangePassword(r.Context(), id.AccountID, req.OldPassword, req.NewPassword); err != nil {
		a.writeError(w, r, err)
		return
	}
	if a.engine.Config().Account.RevokeSessionsOnPasswordChange {
		a.clearRefreshCookie(w)
	}
	writeOK(w, http.StatusOK, "password changed successfully", nil)
}
