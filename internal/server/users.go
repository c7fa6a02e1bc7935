package server

import (
	"net/http"
)

func (h *Handler) GetUserInfo(w http.ResponseWriter, r *http.Request) {
	user, err := h.store.User(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, user)
}

func (h *Handler) UpdateUserInfo(w http.ResponseWriter, r *http.Request) {
	type Update struct {
		DisplayName string `json:"displayName"`
		AvatarURL   string `json:"avatarURL"`
	}

	var update Update
	if !h.decode(w, r, &update) {
		return
	}

	if err := h.store.UpdateProfile(r.Context(), userID(r), update.DisplayName, update.AvatarURL); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
