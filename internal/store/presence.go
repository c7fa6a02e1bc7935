package store

import (
	"context"
	"database/sql"
	"errors"

	"chatapp-client/internal/feed"
	"chatapp-client/internal/models"
)

// UpsertPresence is last-write-wins on (status, last_seen): a write older
// than what is stored is ignored. The resulting record is fanned out to
// the presence topic of every server the user belongs to.
func (s *Store) UpsertPresence(ctx context.Context, record models.PresenceRecord) error {
	lastSeenMs := timeToMs(record.LastSeen)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var existingMs int64
	err = tx.QueryRowContext(ctx, "SELECT last_seen_ms FROM presence WHERE user_id = ?", record.UserID).Scan(&existingMs)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, "INSERT INTO presence (user_id, status, last_seen_ms) VALUES (?, ?, ?)", record.UserID, record.Status, lastSeenMs)
		if err != nil {
			return err
		}
	case err != nil:
		return err
	default:
		if existingMs > lastSeenMs {
			// a newer write already won
			return nil
		}
		_, err = tx.ExecContext(ctx, "UPDATE presence SET status = ?, last_seen_ms = ? WHERE user_id = ?", record.Status, lastSeenMs, record.UserID)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	serverIDs, err := s.memberServerIDs(ctx, record.UserID)
	if err != nil {
		return err
	}

	for _, serverID := range serverIDs {
		s.publish(feed.Topic(feed.TablePresence, serverID), feed.Event{Type: feed.EventUpdate, Table: feed.TablePresence, Row: record})
	}
	return nil
}

// PresenceOf returns the presence records of the server's members. Users
// who never wrote presence are simply absent; viewers treat them as
// offline.
func (s *Store) PresenceOf(ctx context.Context, serverID int64) ([]models.PresenceRecord, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT p.user_id, p.status, p.last_seen_ms FROM presence p JOIN server_members m ON p.user_id = m.user_id WHERE m.server_id = ?", serverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []models.PresenceRecord{}
	for rows.Next() {
		var record models.PresenceRecord
		var lastSeenMs int64
		err := rows.Scan(&record.UserID, &record.Status, &lastSeenMs)
		if err != nil {
			return nil, err
		}
		record.LastSeen = msToTime(lastSeenMs)
		records = append(records, record)
	}
	return records, rows.Err()
}
