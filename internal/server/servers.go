package server

import (
	"net/http"

	"chatapp-client/internal/membership"
	"chatapp-client/internal/permissions"
	"chatapp-client/internal/validator"
)

// workflow builds the membership workflow acting as the authenticated
// user of this request.
func (h *Handler) workflow(r *http.Request) *membership.Workflow {
	return membership.NewWorkflow(h.store, userID(r), h.sugar)
}

func (h *Handler) CreateServer(w http.ResponseWriter, r *http.Request) {
	type Create struct {
		Name string `json:"name"`
	}

	var create Create
	if !h.decode(w, r, &create) {
		return
	}
	if err := validator.ServerName(create.Name); err != nil {
		h.writeValidationError(w, err)
		return
	}

	server, err := h.workflow(r).CreateServer(r.Context(), create.Name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, server)
}

func (h *Handler) JoinServer(w http.ResponseWriter, r *http.Request) {
	type Join struct {
		Name string `json:"name"`
	}

	var join Join
	if !h.decode(w, r, &join) {
		return
	}
	if err := validator.ServerName(join.Name); err != nil {
		h.writeValidationError(w, err)
		return
	}

	server, err := h.workflow(r).JoinByName(r.Context(), join.Name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, server)
}

func (h *Handler) GetServerList(w http.ResponseWriter, r *http.Request) {
	servers, err := h.workflow(r).Servers(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, servers)
}

func (h *Handler) GetChannelList(w http.ResponseWriter, r *http.Request) {
	serverID, err := pathID(r, "serverID")
	if err != nil {
		h.writeValidationError(w, err)
		return
	}

	channels, err := h.store.ChannelsOf(r.Context(), serverID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, channels)
}

func (h *Handler) CreateChannel(w http.ResponseWriter, r *http.Request) {
	serverID, err := pathID(r, "serverID")
	if err != nil {
		h.writeValidationError(w, err)
		return
	}

	type Create struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}

	var create Create
	if !h.decode(w, r, &create) {
		return
	}
	if err := validator.ChannelName(create.Name); err != nil {
		h.writeValidationError(w, err)
		return
	}

	if err := h.store.RequirePermission(r.Context(), userID(r), serverID, permissions.ManageChannels); err != nil {
		h.writeError(w, err)
		return
	}

	channel, err := h.store.CreateChannel(r.Context(), serverID, create.Name, create.Type)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, channel)
}

func (h *Handler) UpdateChannel(w http.ResponseWriter, r *http.Request) {
	serverID, err := pathID(r, "serverID")
	if err != nil {
		h.writeValidationError(w, err)
		return
	}

	type Update struct {
		ChannelID int64  `json:"channelID,string"`
		Name      string `json:"name"`
		Position  int    `json:"position"`
	}

	var update Update
	if !h.decode(w, r, &update) {
		return
	}
	if err := validator.ChannelName(update.Name); err != nil {
		h.writeValidationError(w, err)
		return
	}

	if err := h.workflow(r).UpdateChannel(r.Context(), serverID, update.ChannelID, update.Name, update.Position); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) DeleteChannel(w http.ResponseWriter, r *http.Request) {
	serverID, err := pathID(r, "serverID")
	if err != nil {
		h.writeValidationError(w, err)
		return
	}

	type Delete struct {
		ChannelID int64 `json:"channelID,string"`
	}

	var del Delete
	if !h.decode(w, r, &del) {
		return
	}

	if err := h.workflow(r).DeleteChannel(r.Context(), serverID, del.ChannelID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) GetMemberList(w http.ResponseWriter, r *http.Request) {
	serverID, err := pathID(r, "serverID")
	if err != nil {
		h.writeValidationError(w, err)
		return
	}

	members, err := h.workflow(r).Members(r.Context(), serverID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, members)
}

func (h *Handler) KickMember(w http.ResponseWriter, r *http.Request) {
	serverID, err := pathID(r, "serverID")
	if err != nil {
		h.writeValidationError(w, err)
		return
	}

	type Kick struct {
		UserID int64 `json:"userID,string"`
	}

	var kick Kick
	if !h.decode(w, r, &kick) {
		return
	}

	if err := h.workflow(r).Kick(r.Context(), serverID, kick.UserID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) BanMember(w http.ResponseWriter, r *http.Request) {
	serverID, err := pathID(r, "serverID")
	if err != nil {
		h.writeValidationError(w, err)
		return
	}

	type Ban struct {
		UserID int64  `json:"userID,string"`
		Reason string `json:"reason"`
	}

	var ban Ban
	if !h.decode(w, r, &ban) {
		return
	}

	if err := h.workflow(r).Ban(r.Context(), serverID, ban.UserID, ban.Reason); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) UnbanMember(w http.ResponseWriter, r *http.Request) {
	serverID, err := pathID(r, "serverID")
	if err != nil {
		h.writeValidationError(w, err)
		return
	}

	type Unban struct {
		UserID int64 `json:"userID,string"`
	}

	var unban Unban
	if !h.decode(w, r, &unban) {
		return
	}

	if err := h.workflow(r).Unban(r.Context(), serverID, unban.UserID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) GetBanList(w http.ResponseWriter, r *http.Request) {
	serverID, err := pathID(r, "serverID")
	if err != nil {
		h.writeValidationError(w, err)
		return
	}

	if err := h.store.RequirePermission(r.Context(), userID(r), serverID, permissions.BanMembers); err != nil {
		h.writeError(w, err)
		return
	}

	bans, err := h.store.Bans(r.Context(), serverID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, bans)
}

func (h *Handler) CreateInvite(w http.ResponseWriter, r *http.Request) {
	serverID, err := pathID(r, "serverID")
	if err != nil {
		h.writeValidationError(w, err)
		return
	}

	type Create struct {
		MaxUses          int `json:"maxUses"`
		ExpiresInMinutes int `json:"expiresInMinutes"`
	}

	var create Create
	if !h.decode(w, r, &create) {
		return
	}
	if err := validator.InviteParams(create.MaxUses, create.ExpiresInMinutes); err != nil {
		h.writeValidationError(w, err)
		return
	}

	invite, err := h.workflow(r).CreateInvite(r.Context(), serverID, create.MaxUses, create.ExpiresInMinutes)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, invite)
}

func (h *Handler) GetInviteList(w http.ResponseWriter, r *http.Request) {
	serverID, err := pathID(r, "serverID")
	if err != nil {
		h.writeValidationError(w, err)
		return
	}

	invites, err := h.workflow(r).Invites(r.Context(), serverID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, invites)
}

func (h *Handler) AcceptInvite(w http.ResponseWriter, r *http.Request) {
	type Accept struct {
		Code string `json:"code"`
	}

	var accept Accept
	if !h.decode(w, r, &accept) {
		return
	}

	server, err := h.workflow(r).AcceptInvite(r.Context(), accept.Code)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, server)
}
