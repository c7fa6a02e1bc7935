package store

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"chatapp-client/internal/apperr"
	"chatapp-client/internal/feed"
	"chatapp-client/internal/models"
	"chatapp-client/internal/snowflake"
)

// newInviteCode derives a short shareable code from a fresh UUID.
func newInviteCode() (string, error) {
	token, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(token[8:12])), nil
}

func (s *Store) CreateInvite(ctx context.Context, serverID int64, createdBy int64, maxUses int, expiresAt *time.Time) (models.Invite, error) {
	inviteID, err := snowflake.Generate()
	if err != nil {
		return models.Invite{}, err
	}

	code, err := newInviteCode()
	if err != nil {
		return models.Invite{}, err
	}

	invite := models.Invite{
		ID:        inviteID,
		ServerID:  serverID,
		Code:      code,
		CreatedBy: createdBy,
		MaxUses:   maxUses,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}

	var expiresMs any
	if expiresAt != nil {
		expiresMs = timeToMs(*expiresAt)
	}

	_, err = s.db.ExecContext(ctx, "INSERT INTO invites (id, server_id, code, created_by, max_uses, uses, expires_at_ms, created_at_ms) VALUES (?, ?, ?, ?, ?, 0, ?, ?)",
		invite.ID, invite.ServerID, invite.Code, invite.CreatedBy, invite.MaxUses, expiresMs, timeToMs(invite.CreatedAt))
	if err != nil {
		return models.Invite{}, err
	}

	s.sugar.Debugf("Created invite [%s] for server ID [%d]", invite.Code, serverID)
	return invite, nil
}

func (s *Store) InviteByCode(ctx context.Context, code string) (models.Invite, error) {
	return scanInvite(s.db.QueryRowContext(ctx, "SELECT id, server_id, code, created_by, max_uses, uses, expires_at_ms, created_at_ms FROM invites WHERE code = ?", code))
}

func (s *Store) InvitesOf(ctx context.Context, serverID int64) ([]models.Invite, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, server_id, code, created_by, max_uses, uses, expires_at_ms, created_at_ms FROM invites WHERE server_id = ? ORDER BY created_at_ms DESC", serverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invites := []models.Invite{}
	for rows.Next() {
		invite, err := scanInvite(rows)
		if err != nil {
			return nil, err
		}
		invites = append(invites, invite)
	}
	return invites, rows.Err()
}

func (s *Store) DeleteInvite(ctx context.Context, inviteID int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM invites WHERE id = ?", inviteID)
	return err
}

// AcceptInvite is the atomic invite redemption: it validates the code,
// expiry, use limit and ban state, then increments uses and inserts the
// membership with the server's default role in one transaction. A repeat
// call from an existing member is a no-op success and does not touch the
// uses counter.
func (s *Store) AcceptInvite(ctx context.Context, code string, userID int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	invite, err := scanInvite(tx.QueryRowContext(ctx, "SELECT id, server_id, code, created_by, max_uses, uses, expires_at_ms, created_at_ms FROM invites WHERE code = ?", code))
	if err != nil {
		return 0, err
	}

	if invite.ExpiresAt != nil && invite.ExpiresAt.Before(time.Now()) {
		return 0, apperr.ErrExpired
	}
	if invite.MaxUses > 0 && invite.Uses >= invite.MaxUses {
		return 0, apperr.ErrExhausted
	}

	var banned bool
	err = tx.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM server_bans WHERE server_id = ? AND user_id = ?)", invite.ServerID, userID).Scan(&banned)
	if err != nil {
		return 0, err
	}
	if banned {
		return 0, apperr.ErrPermissionDenied
	}

	var alreadyMember bool
	err = tx.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM server_members WHERE server_id = ? AND user_id = ?)", invite.ServerID, userID).Scan(&alreadyMember)
	if err != nil {
		return 0, err
	}
	if alreadyMember {
		// idempotent accept: retries must not burn an extra use
		return invite.ServerID, nil
	}

	// conditional increment: two racing accepts on the last use must not
	// both pass the check above, so the limit is re-checked in the UPDATE
	result, err := tx.ExecContext(ctx, "UPDATE invites SET uses = uses + 1 WHERE id = ? AND (max_uses = 0 OR uses < max_uses)", invite.ID)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		return 0, apperr.ErrExhausted
	}

	membership := models.Membership{ServerID: invite.ServerID, UserID: userID, JoinedAt: time.Now().UTC()}
	_, err = tx.ExecContext(ctx, "INSERT INTO server_members (server_id, user_id, joined_at_ms) VALUES (?, ?, ?)",
		membership.ServerID, membership.UserID, timeToMs(membership.JoinedAt))
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	s.publish(feed.Topic(feed.TableMembers, invite.ServerID), feed.Event{Type: feed.EventInsert, Table: feed.TableMembers, Row: membership})

	s.sugar.Debugf("User ID [%d] joined server ID [%d] via invite [%s]", userID, invite.ServerID, code)
	return invite.ServerID, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvite(row rowScanner) (models.Invite, error) {
	var invite models.Invite
	var expiresMs sql.NullInt64
	var createdMs int64

	err := row.Scan(&invite.ID, &invite.ServerID, &invite.Code, &invite.CreatedBy, &invite.MaxUses, &invite.Uses, &expiresMs, &createdMs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Invite{}, apperr.ErrNotFound
		}
		return models.Invite{}, err
	}

	invite.ExpiresAt = msToTimePtr(expiresMs)
	invite.CreatedAt = msToTime(createdMs)
	return invite, nil
}
