package server

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"chatapp-client/internal/mentions"
	"chatapp-client/internal/models"
	"chatapp-client/internal/permissions"
	"chatapp-client/internal/validator"
)

const defaultPageLimit = 50

func (h *Handler) GetMessageList(w http.ResponseWriter, r *http.Request) {
	channelID, err := queryID(r, "channelID")
	if err != nil || channelID == 0 {
		h.writeValidationError(w, fmt.Errorf("bad_channel_id"))
		return
	}
	limit := queryInt(r, "limit", defaultPageLimit)

	before, err := queryID(r, "before")
	if err != nil {
		h.writeValidationError(w, err)
		return
	}

	var messages []models.Message
	if before == 0 {
		messages, err = h.store.LatestMessages(r.Context(), channelID, limit)
	} else {
		beforeMs, parseErr := queryID(r, "beforeMs")
		if parseErr != nil {
			h.writeValidationError(w, parseErr)
			return
		}
		messages, err = h.store.MessagesBefore(r.Context(), channelID, time.UnixMilli(beforeMs).UTC(), before, limit)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, messages)
}

func (h *Handler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	type Create struct {
		ChannelID   int64  `json:"channelID,string"`
		Content     string `json:"content"`
		Attachments string `json:"attachments"`
	}

	var create Create
	if !h.decode(w, r, &create) {
		return
	}
	if err := validator.MessageContent(create.Content); err != nil {
		h.writeValidationError(w, err)
		return
	}

	channel, err := h.store.Channel(r.Context(), create.ChannelID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if channel.ServerID != 0 {
		if err := h.store.RequirePermission(r.Context(), userID(r), channel.ServerID, permissions.SendMessages); err != nil {
			h.writeError(w, err)
			return
		}
	} else if err := h.requireDmMember(r, channel.ID); err != nil {
		h.writeError(w, err)
		return
	}

	message, err := h.store.SendMessage(r.Context(), create.ChannelID, userID(r), create.Content, create.Attachments)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.notifyMentions(r, channel, message)
	h.writeJSON(w, message)
}

// notifyMentions records a Mention and creates a notification for every
// @token that resolved to a member, after the message is durably
// written. Failures here never fail the send.
func (h *Handler) notifyMentions(r *http.Request, channel models.Channel, message models.Message) {
	if channel.ServerID == 0 {
		return
	}

	mentioned, err := mentions.NewResolver(h.store).Resolve(r.Context(), channel.ServerID, message.Content)
	if err != nil {
		h.sugar.Warnf("resolving mentions for message [%d]: %s", message.ID, err)
		return
	}

	for _, member := range mentioned {
		if member.ID == message.UserID {
			continue
		}
		if err := h.store.RecordMention(r.Context(), message.ID, member.ID); err != nil {
			h.sugar.Warnf("recording mention of [%d]: %s", member.ID, err)
			continue
		}
		_, err := h.store.CreateNotification(r.Context(), models.Notification{
			UserID:  member.ID,
			Type:    models.NotificationMention,
			Title:   fmt.Sprintf("@%s mentioned you", message.Author.Username),
			Content: message.Content,
			Data:    fmt.Sprintf(`{"channelID":"%d","messageID":"%d"}`, channel.ID, message.ID),
		})
		if err != nil {
			h.sugar.Warnf("notifying [%d]: %s", member.ID, err)
		}
	}
}

func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	type Delete struct {
		MessageID int64 `json:"messageID,string"`
	}

	var del Delete
	if !h.decode(w, r, &del) {
		return
	}

	if err := h.store.DeleteMessage(r.Context(), del.MessageID, userID(r)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) ToggleReaction(w http.ResponseWriter, r *http.Request) {
	type React struct {
		MessageID int64  `json:"messageID,string"`
		Emoji     string `json:"emoji"`
	}

	var react React
	if !h.decode(w, r, &react) {
		return
	}
	if react.Emoji == "" {
		h.writeValidationError(w, fmt.Errorf("empty_emoji"))
		return
	}

	added, err := h.store.ToggleReaction(r.Context(), react.MessageID, userID(r), react.Emoji)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, map[string]bool{"added": added})
}

func (h *Handler) GetReactionList(w http.ResponseWriter, r *http.Request) {
	channelID, err := queryID(r, "channelID")
	if err != nil || channelID == 0 {
		h.writeValidationError(w, fmt.Errorf("bad_channel_id"))
		return
	}

	reactions, err := h.store.ReactionsForChannel(r.Context(), channelID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, reactions)
}

func (h *Handler) SearchMessages(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("term")
	if term == "" {
		h.writeValidationError(w, fmt.Errorf("empty_term"))
		return
	}

	serverID, err := queryID(r, "serverID")
	if err != nil {
		h.writeValidationError(w, err)
		return
	}
	channelID, err := queryID(r, "channelID")
	if err != nil {
		h.writeValidationError(w, err)
		return
	}
	limit := queryInt(r, "limit", defaultPageLimit)

	results, err := h.store.SearchMessages(r.Context(), term, serverID, channelID, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, results)
}

func (h *Handler) PinMessage(w http.ResponseWriter, r *http.Request) {
	type Pin struct {
		MessageID int64 `json:"messageID,string"`
	}

	var pin Pin
	if !h.decode(w, r, &pin) {
		return
	}

	if err := h.store.PinMessage(r.Context(), pin.MessageID, userID(r)); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) UnpinMessage(w http.ResponseWriter, r *http.Request) {
	type Unpin struct {
		MessageID int64 `json:"messageID,string"`
	}

	var unpin Unpin
	if !h.decode(w, r, &unpin) {
		return
	}

	if err := h.store.UnpinMessage(r.Context(), unpin.MessageID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) GetPinnedMessages(w http.ResponseWriter, r *http.Request) {
	channelID, err := queryID(r, "channelID")
	if err != nil || channelID == 0 {
		h.writeValidationError(w, fmt.Errorf("bad_channel_id"))
		return
	}

	pinned, err := h.store.PinnedMessages(r.Context(), channelID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, pinned)
}

func (h *Handler) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		h.writeValidationError(w, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeValidationError(w, err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	path, err := h.blobs.Upload("attachments", header.Filename, data)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, map[string]string{"url": h.blobs.GetPublicURL(path)})
}
