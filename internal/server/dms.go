package server

import (
	"fmt"
	"net/http"
	"strconv"

	"chatapp-client/internal/apperr"
)

// requireDmMember denies a DM channel operation for anyone outside its
// participant set.
func (h *Handler) requireDmMember(r *http.Request, channelID int64) error {
	member, err := h.store.IsDmMember(r.Context(), channelID, userID(r))
	if err != nil {
		return err
	}
	if !member {
		return apperr.ErrPermissionDenied
	}
	return nil
}

func (h *Handler) CreateDmChannel(w http.ResponseWriter, r *http.Request) {
	type Create struct {
		UserIDs []string `json:"userIDs"`
	}

	var create Create
	if !h.decode(w, r, &create) {
		return
	}
	if len(create.UserIDs) == 0 {
		h.writeValidationError(w, fmt.Errorf("not_enough_members"))
		return
	}

	ids := make([]int64, 0, len(create.UserIDs))
	for _, raw := range create.UserIDs {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.writeValidationError(w, fmt.Errorf("bad_user_id"))
			return
		}
		ids = append(ids, id)
	}

	channel, err := h.store.CreateDmChannel(r.Context(), userID(r), ids)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, channel)
}

func (h *Handler) GetDmChannelList(w http.ResponseWriter, r *http.Request) {
	channels, err := h.store.DmChannelsOf(r.Context(), userID(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, channels)
}

func (h *Handler) GetDmMemberList(w http.ResponseWriter, r *http.Request) {
	channelID, err := queryID(r, "channelID")
	if err != nil || channelID == 0 {
		h.writeValidationError(w, fmt.Errorf("bad_channel_id"))
		return
	}

	if err := h.requireDmMember(r, channelID); err != nil {
		h.writeError(w, err)
		return
	}

	members, err := h.store.DmMembers(r.Context(), channelID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, members)
}
