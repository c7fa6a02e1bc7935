package store

import (
	"context"

	"chatapp-client/internal/apperr"
	"chatapp-client/internal/feed"
	"chatapp-client/internal/models"
	"chatapp-client/internal/snowflake"
	"chatapp-client/internal/validator"
)

func (s *Store) RolesOf(ctx context.Context, serverID int64) ([]models.Role, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, server_id, name, color, position, permissions, is_everyone FROM roles WHERE server_id = ? ORDER BY position, id", serverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roles := []models.Role{}
	for rows.Next() {
		var role models.Role
		err := rows.Scan(&role.ID, &role.ServerID, &role.Name, &role.Color, &role.Position, &role.Permissions, &role.IsEveryone)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (s *Store) CreateRole(ctx context.Context, serverID int64, name string, color string, position int, perms int64) (models.Role, error) {
	if err := validator.RoleName(name); err != nil {
		return models.Role{}, err
	}

	roleID, err := snowflake.Generate()
	if err != nil {
		return models.Role{}, err
	}

	role := models.Role{ID: roleID, ServerID: serverID, Name: name, Color: color, Position: position, Permissions: perms}

	_, err = s.db.ExecContext(ctx, "INSERT INTO roles (id, server_id, name, color, position, permissions, is_everyone) VALUES (?, ?, ?, ?, ?, ?, FALSE)",
		role.ID, role.ServerID, role.Name, role.Color, role.Position, role.Permissions)
	if err != nil {
		return models.Role{}, err
	}

	s.sugar.Debugf("Created role [%d] on server ID [%d]", role.ID, serverID)
	return role, nil
}

// UpdateRole rewrites a role's display fields and bitmask. Members holding
// the role pick the new bitmask up on their next permission resolution.
func (s *Store) UpdateRole(ctx context.Context, roleID int64, name string, color string, position int, perms int64) error {
	if err := validator.RoleName(name); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, "UPDATE roles SET name = ?, color = ?, position = ?, permissions = ? WHERE id = ? AND is_everyone = FALSE",
		name, color, position, perms, roleID)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// UpdateEveryonePermissions changes the bitmask of the server's default
// role, the only mutable part of @everyone.
func (s *Store) UpdateEveryonePermissions(ctx context.Context, serverID int64, perms int64) error {
	result, err := s.db.ExecContext(ctx, "UPDATE roles SET permissions = ? WHERE server_id = ? AND is_everyone = TRUE", perms, serverID)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// DeleteRole removes the role and clears it from every member holding it,
// dropping them back to @everyone. The default role cannot be deleted.
func (s *Store) DeleteRole(ctx context.Context, roleID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var isEveryone bool
	err = tx.QueryRowContext(ctx, "SELECT is_everyone FROM roles WHERE id = ?", roleID).Scan(&isEveryone)
	if err != nil {
		return notFound(err)
	}
	if isEveryone {
		return apperr.ErrConflict
	}

	_, err = tx.ExecContext(ctx, "UPDATE server_members SET role_id = 0 WHERE role_id = ?", roleID)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM roles WHERE id = ?", roleID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// AssignRole sets a member's role, or clears it when roleID is 0. The role
// must belong to the same server as the membership.
func (s *Store) AssignRole(ctx context.Context, serverID int64, userID int64, roleID int64) error {
	if roleID != 0 {
		role, err := s.Role(ctx, roleID)
		if err != nil {
			return err
		}
		if role.ServerID != serverID || role.IsEveryone {
			return apperr.ErrNotFound
		}
	}

	result, err := s.db.ExecContext(ctx, "UPDATE server_members SET role_id = ? WHERE server_id = ? AND user_id = ?", roleID, serverID, userID)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperr.ErrNotFound
	}

	membership, err := s.Membership(ctx, serverID, userID)
	if err != nil {
		return err
	}
	s.publish(feed.Topic(feed.TableMembers, serverID), feed.Event{Type: feed.EventUpdate, Table: feed.TableMembers, Row: membership})

	s.sugar.Debugf("Assigned role [%d] to user ID [%d] on server ID [%d]", roleID, userID, serverID)
	return nil
}
