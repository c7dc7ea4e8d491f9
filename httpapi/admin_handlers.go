package httpapi

import (
	"net/http"
)

type assignRoleRequest struct {
	UserID   string `json:"userId"`
	RoleName string `json:"roleName"`
}

type assignPermissionRequest struct {
	RoleName       string   `json:"roleName"`
	PermissionName []string `json:"permissionName"`
}

type assignmentResponse struct {
	Role        string   `json:"role"`
	Added       []string `json:"added"`
	Permissions []string `json:"permissions"`
}

func (a *API) assignRole(w http.ResponseWriter, r *http.Request) {
	var req assignRoleRequest
	if err := decodeJSON(w, r, a.maxBody, &req); err != nil {
		a.badRequest(w, r, err)
		return
	}
	if err := a.engine.AssignRoleToUser(r.Context(), req.UserID, req.RoleName); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "role assigned successfully", nil)
}

func (a *API) assignPermissions(w http.ResponseWriter, r *http.Request) {
	var req assignPermissionRequest
	if err := decodeJSON(w, r, a.maxBody, &req); err != nil {
		a.badRequest(w, r, err)
		return
	}
	res, err := a.engine.AssignPermissionsToRole(r.Context(), req.RoleName, req.PermissionName)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "permissions assigned successfully", assignmentResponse{
		Role:        res.Role,
		Added:       res.Added,
		Permissions: res.Permissions,
	})
}
