package server

import (
	"fmt"
	"net/http"
	"time"

	"chatapp-client/internal/models"
)

func (h *Handler) UpdatePresence(w http.ResponseWriter, r *http.Request) {
	type Update struct {
		Status string `json:"status"`
	}

	var update Update
	if !h.decode(w, r, &update) {
		return
	}

	switch update.Status {
	case models.PresenceOnline, models.PresenceIdle, models.PresenceOffline:
	default:
		h.writeValidationError(w, fmt.Errorf("bad_status"))
		return
	}

	record := models.PresenceRecord{
		UserID:   userID(r),
		Status:   update.Status,
		LastSeen: time.Now().UTC(),
	}
	if err := h.store.UpsertPresence(r.Context(), record); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) GetPresenceList(w http.ResponseWriter, r *http.Request) {
	serverID, err := queryID(r, "serverID")
	if err != nil || serverID == 0 {
		h.writeValidationError(w, fmt.Errorf("bad_server_id"))
		return
	}

	records, err := h.store.PresenceOf(r.Context(), serverID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, records)
}

func (h *Handler) GetNotificationList(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)

	items, err := h.store.NotificationsFor(r.Context(), userID(r), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, items)
}

func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	type Read struct {
		NotificationID int64 `json:"notificationID,string"`
	}

	var read Read
	if !h.decode(w, r, &read) {
		return
	}

	if err := h.store.MarkNotificationRead(r.Context(), read.NotificationID, userID(r)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	if err := h.store.MarkAllNotificationsRead(r.Context(), userID(r)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
