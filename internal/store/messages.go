package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"chatapp-client/internal/apperr"
	"chatapp-client/internal/feed"
	"chatapp-client/internal/models"
	"chatapp-client/internal/snowflake"
	"chatapp-client/internal/validator"
)

const messageColumns = `
	messages.id, messages.channel_id, messages.user_id, messages.content,
	messages.attachments, messages.edited, messages.created_at_ms,
	users.username, users.display_name, users.avatar_url`

func scanMessage(row rowScanner) (models.Message, error) {
	var msg models.Message
	var createdMs int64

	err := row.Scan(&msg.ID, &msg.ChannelID, &msg.UserID, &msg.Content, &msg.Attachments, &msg.Edited, &createdMs,
		&msg.Author.Username, &msg.Author.DisplayName, &msg.Author.AvatarURL)
	if err != nil {
		return models.Message{}, notFound(err)
	}

	msg.CreatedAt = msToTime(createdMs)
	msg.Author.ID = msg.UserID
	return msg, nil
}

func (s *Store) collectMessages(ctx context.Context, query string, args ...any) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// LatestMessages returns the newest limit messages of the channel in
// ascending (created_at, id) order.
func (s *Store) LatestMessages(ctx context.Context, channelID int64, limit int) ([]models.Message, error) {
	messages, err := s.collectMessages(ctx, `
		SELECT `+messageColumns+`
		FROM messages JOIN users ON messages.user_id = users.id
		WHERE messages.channel_id = ?
		ORDER BY messages.created_at_ms DESC, messages.id DESC
		LIMIT ?`, channelID, limit)
	if err != nil {
		return nil, err
	}

	reverse(messages)
	return messages, nil
}

// MessagesBefore returns up to limit messages strictly older than the
// (before, beforeID) cursor, ascending.
func (s *Store) MessagesBefore(ctx context.Context, channelID int64, before time.Time, beforeID int64, limit int) ([]models.Message, error) {
	beforeMs := timeToMs(before)

	messages, err := s.collectMessages(ctx, `
		SELECT `+messageColumns+`
		FROM messages JOIN users ON messages.user_id = users.id
		WHERE messages.channel_id = ?
		  AND (messages.created_at_ms < ? OR (messages.created_at_ms = ? AND messages.id < ?))
		ORDER BY messages.created_at_ms DESC, messages.id DESC
		LIMIT ?`, channelID, beforeMs, beforeMs, beforeID, limit)
	if err != nil {
		return nil, err
	}

	reverse(messages)
	return messages, nil
}

func reverse(messages []models.Message) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}

// SendMessage persists the message and publishes the insert event to the
// channel's message topic. The creation timestamp comes from the
// generated snowflake, so the ordering key and the ID can never disagree.
func (s *Store) SendMessage(ctx context.Context, channelID int64, userID int64, content string, attachments string) (models.Message, error) {
	if err := validator.MessageContent(content); err != nil {
		return models.Message{}, err
	}

	messageID, err := snowflake.Generate()
	if err != nil {
		return models.Message{}, err
	}

	msg := models.Message{
		ID:          messageID,
		ChannelID:   channelID,
		UserID:      userID,
		Content:     content,
		Attachments: attachments,
		CreatedAt:   snowflake.ExtractTime(messageID),
	}

	_, err = s.db.ExecContext(ctx, "INSERT INTO messages (id, channel_id, user_id, content, attachments, edited, created_at_ms) VALUES (?, ?, ?, ?, ?, FALSE, ?)",
		msg.ID, msg.ChannelID, msg.UserID, msg.Content, msg.Attachments, timeToMs(msg.CreatedAt))
	if err != nil {
		return models.Message{}, err
	}

	err = s.db.QueryRowContext(ctx, "SELECT username, display_name, avatar_url FROM users WHERE id = ?", userID).
		Scan(&msg.Author.Username, &msg.Author.DisplayName, &msg.Author.AvatarURL)
	if err != nil {
		return models.Message{}, notFound(err)
	}
	msg.Author.ID = userID

	s.publish(feed.Topic(feed.TableMessages, channelID), feed.Event{Type: feed.EventInsert, Table: feed.TableMessages, Row: msg})
	return msg, nil
}

func (s *Store) DeleteMessage(ctx context.Context, messageID int64, userID int64) error {
	var channelID int64
	err := s.db.QueryRowContext(ctx, "SELECT channel_id FROM messages WHERE id = ?", messageID).Scan(&channelID)
	if err != nil {
		return notFound(err)
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM messages WHERE id = ? AND user_id = ?", messageID, userID)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperr.ErrPermissionDenied
	}

	s.publish(feed.Topic(feed.TableMessages, channelID), feed.Event{
		Type:  feed.EventDelete,
		Table: feed.TableMessages,
		Row:   models.Message{ID: messageID, ChannelID: channelID},
	})
	return nil
}

// ToggleReaction adds the (message, user, emoji) reaction if absent and
// removes it if present, atomically. The uniqueness triple can never be
// violated: a racing double-toggle lands on insert-then-delete.
func (s *Store) ToggleReaction(ctx context.Context, messageID int64, userID int64, emoji string) (bool, error) {
	var channelID int64
	err := s.db.QueryRowContext(ctx, "SELECT channel_id FROM messages WHERE id = ?", messageID).Scan(&channelID)
	if err != nil {
		return false, notFound(err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var exists bool
	err = tx.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM reactions WHERE message_id = ? AND user_id = ? AND emoji = ?)", messageID, userID, emoji).Scan(&exists)
	if err != nil {
		return false, err
	}

	added := !exists
	if exists {
		_, err = tx.ExecContext(ctx, "DELETE FROM reactions WHERE message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji)
	} else {
		_, err = tx.ExecContext(ctx, "INSERT INTO reactions (message_id, user_id, emoji) VALUES (?, ?, ?)", messageID, userID, emoji)
	}
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}

	eventType := feed.EventInsert
	if !added {
		eventType = feed.EventDelete
	}
	s.publish(feed.Topic(feed.TableReactions, channelID), feed.Event{
		Type:  eventType,
		Table: feed.TableReactions,
		Row:   models.Reaction{MessageID: messageID, UserID: userID, Emoji: emoji},
	})

	return added, nil
}

// ReactionsForChannel loads every reaction on the channel's messages,
// used to prime the aggregator after a channel switch.
func (s *Store) ReactionsForChannel(ctx context.Context, channelID int64) ([]models.Reaction, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT r.message_id, r.user_id, r.emoji FROM reactions r JOIN messages m ON r.message_id = m.id WHERE m.channel_id = ?", channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reactions := []models.Reaction{}
	for rows.Next() {
		var reaction models.Reaction
		err := rows.Scan(&reaction.MessageID, &reaction.UserID, &reaction.Emoji)
		if err != nil {
			return nil, err
		}
		reactions = append(reactions, reaction)
	}
	return reactions, rows.Err()
}

// RecordMention stores a resolved mention. Only resolved members ever
// reach this; unresolved tokens stay plain text in the message body.
func (s *Store) RecordMention(ctx context.Context, messageID int64, mentionedUserID int64) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO mentions (message_id, mentioned_user_id) VALUES (?, ?)", messageID, mentionedUserID)
	return err
}

func (s *Store) MentionsForChannel(ctx context.Context, channelID int64) ([]models.Mention, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT mn.message_id, mn.mentioned_user_id FROM mentions mn JOIN messages m ON mn.message_id = m.id WHERE m.channel_id = ?", channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	mentions := []models.Mention{}
	for rows.Next() {
		var mention models.Mention
		err := rows.Scan(&mention.MessageID, &mention.MentionedUserID)
		if err != nil {
			return nil, err
		}
		mentions = append(mentions, mention)
	}
	return mentions, rows.Err()
}

// SearchMessages runs a substring search over message content, optionally
// scoped to one server or one channel.
func (s *Store) SearchMessages(ctx context.Context, term string, serverID int64, channelID int64, limit int) ([]models.SearchResult, error) {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(term)
	pattern := "%" + escaped + "%"

	// servers is LEFT-joined so DM channels (server_id 0) still match
	query := `
		SELECT ` + messageColumns + `, channels.name, servers.name
		FROM messages
		JOIN users ON messages.user_id = users.id
		JOIN channels ON messages.channel_id = channels.id
		LEFT JOIN servers ON channels.server_id = servers.id
		WHERE messages.content LIKE ? ESCAPE '\'`
	args := []any{pattern}

	if channelID != 0 {
		query += " AND messages.channel_id = ?"
		args = append(args, channelID)
	} else if serverID != 0 {
		query += " AND channels.server_id = ?"
		args = append(args, serverID)
	}

	query += " ORDER BY messages.created_at_ms DESC, messages.id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []models.SearchResult{}
	for rows.Next() {
		var result models.SearchResult
		var createdMs int64
		var serverName sql.NullString
		err := rows.Scan(&result.ID, &result.ChannelID, &result.UserID, &result.Content, &result.Attachments, &result.Edited, &createdMs,
			&result.Author.Username, &result.Author.DisplayName, &result.Author.AvatarURL, &result.ChannelName, &serverName)
		if err != nil {
			return nil, err
		}
		result.CreatedAt = msToTime(createdMs)
		result.Author.ID = result.UserID
		result.ServerName = serverName.String
		results = append(results, result)
	}
	return results, rows.Err()
}

func (s *Store) PinMessage(ctx context.Context, messageID int64, pinnedBy int64) error {
	var channelID int64
	err := s.db.QueryRowContext(ctx, "SELECT channel_id FROM messages WHERE id = ?", messageID).Scan(&channelID)
	if err != nil {
		return notFound(err)
	}

	_, err = s.db.ExecContext(ctx, "INSERT INTO pinned_messages (message_id, channel_id, pinned_by, pinned_at_ms) VALUES (?, ?, ?, ?)",
		messageID, channelID, pinnedBy, timeToMs(time.Now().UTC()))
	return err
}

func (s *Store) UnpinMessage(ctx context.Context, messageID int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM pinned_messages WHERE message_id = ?", messageID)
	return err
}

func (s *Store) PinnedMessages(ctx context.Context, channelID int64) ([]models.Message, error) {
	return s.collectMessages(ctx, `
		SELECT `+messageColumns+`
		FROM pinned_messages
		JOIN messages ON pinned_messages.message_id = messages.id
		JOIN users ON messages.user_id = users.id
		WHERE pinned_messages.channel_id = ?
		ORDER BY pinned_messages.pinned_at_ms DESC`, channelID)
}
