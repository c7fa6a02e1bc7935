package server

import (
	"net/http"

	"chatapp-client/internal/validator"
)

func (h *Handler) GetRoleList(w http.ResponseWriter, r *http.Request) {
	serverID, err := pathID(r, "serverID")
	if err != nil {
		h.writeValidationError(w, err)
		return
	}

	roles, err := h.workflow(r).Roles(r.Context(), serverID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, roles)
}

func (h *Handler) CreateRole(w http.ResponseWriter, r *http.Request) {
	serverID, err := pathID(r, "serverID")
	if err != nil {
		h.writeValidationError(w, err)
		return
	}

	type Create struct {
		Name        string `json:"name"`
		Color       string `json:"color"`
		Position    int    `json:"position"`
		Permissions int64  `json:"permissions,string"`
	}

	var create Create
	if !h.decode(w, r, &create) {
		return
	}
	if err := validator.RoleName(create.Name); err != nil {
		h.writeValidationError(w, err)
		return
	}

	role, err := h.workflow(r).CreateRole(r.Context(), serverID, create.Name, create.Color, create.Position, create.Permissions)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, role)
}

func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	serverID, err := pathID(r, "serverID")
	if err != nil {
		h.writeValidationError(w, err)
		return
	}

	type Update struct {
		RoleID      int64  `json:"roleID,string"`
		Name        string `json:"name"`
		Color       string `json:"color"`
		Position    int    `json:"position"`
		Permissions int64  `json:"permissions,string"`
	}

	var update Update
	if !h.decode(w, r, &update) {
		return
	}
	if err := validator.RoleName(update.Name); err != nil {
		h.writeValidationError(w, err)
		return
	}

	if err := h.workflow(r).UpdateRole(r.Context(), serverID, update.RoleID, update.Name, update.Color, update.Position, update.Permissions); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) UpdateEveryonePermissions(w http.ResponseWriter, r *http.Request) {
	serverID, err := pathID(r, "serverID")
	if err != nil {
		h.writeValidationError(w, err)
		return
	}

	type Update struct {
		Permissions int64 `json:"permissions,string"`
	}

	var update Update
	if !h.decode(w, r, &update) {
		return
	}

	if err := h.workflow(r).UpdateEveryonePermissions(r.Context(), serverID, update.Permissions); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	serverID, err := pathID(r, "serverID")
	if err != nil {
		h.writeValidationError(w, err)
		return
	}

	type Delete struct {
		RoleID int64 `json:"roleID,string"`
	}

	var del Delete
	if !h.decode(w, r, &del) {
		return
	}

	if err := h.workflow(r).DeleteRole(r.Context(), serverID, del.RoleID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) AssignRole(w http.ResponseWriter, r *http.Request) {
	serverID, err := pathID(r, "serverID")
	if err != nil {
		h.writeValidationError(w, err)
		return
	}

	type Assign struct {
		UserID int64 `json:"userID,string"`
		RoleID int64 `json:"roleID,string"` // 0 clears the member's role
	}

	var assign Assign
	if !h.decode(w, r, &assign) {
		return
	}

	if err := h.workflow(r).AssignRole(r.Context(), serverID, assign.UserID, assign.RoleID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
