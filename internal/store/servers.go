package store

import (
	"context"
	"time"

	"chatapp-client/internal/apperr"
	"chatapp-client/internal/feed"
	"chatapp-client/internal/models"
	"chatapp-client/internal/permissions"
	"chatapp-client/internal/snowflake"
	"chatapp-client/internal/validator"
)

func (s *Store) Server(ctx context.Context, serverID int64) (models.Server, error) {
	var server models.Server
	err := s.db.QueryRowContext(ctx, "SELECT id, owner_id, name, description, icon_url FROM servers WHERE id = ?", serverID).
		Scan(&server.ID, &server.OwnerID, &server.Name, &server.Description, &server.IconURL)
	if err != nil {
		return models.Server{}, notFound(err)
	}
	return server, nil
}

func (s *Store) Membership(ctx context.Context, serverID int64, userID int64) (models.Membership, error) {
	var membership models.Membership
	var joinedMs int64
	err := s.db.QueryRowContext(ctx, "SELECT server_id, user_id, role_id, joined_at_ms FROM server_members WHERE server_id = ? AND user_id = ?", serverID, userID).
		Scan(&membership.ServerID, &membership.UserID, &membership.RoleID, &joinedMs)
	if err != nil {
		return models.Membership{}, notFound(err)
	}
	membership.JoinedAt = msToTime(joinedMs)
	return membership, nil
}

func (s *Store) Role(ctx context.Context, roleID int64) (models.Role, error) {
	var role models.Role
	err := s.db.QueryRowContext(ctx, "SELECT id, server_id, name, color, position, permissions, is_everyone FROM roles WHERE id = ?", roleID).
		Scan(&role.ID, &role.ServerID, &role.Name, &role.Color, &role.Position, &role.Permissions, &role.IsEveryone)
	if err != nil {
		return models.Role{}, notFound(err)
	}
	return role, nil
}

func (s *Store) EveryoneRole(ctx context.Context, serverID int64) (models.Role, error) {
	var role models.Role
	err := s.db.QueryRowContext(ctx, "SELECT id, server_id, name, color, position, permissions, is_everyone FROM roles WHERE server_id = ? AND is_everyone = TRUE", serverID).
		Scan(&role.ID, &role.ServerID, &role.Name, &role.Color, &role.Position, &role.Permissions, &role.IsEveryone)
	if err != nil {
		return models.Role{}, notFound(err)
	}
	return role, nil
}

func (s *Store) ServersOf(ctx context.Context, userID int64) ([]models.Server, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT s.id, s.owner_id, s.name, s.description, s.icon_url FROM servers s JOIN server_members m ON s.id = m.server_id WHERE m.user_id = ?", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	servers := []models.Server{}
	for rows.Next() {
		var server models.Server
		err := rows.Scan(&server.ID, &server.OwnerID, &server.Name, &server.Description, &server.IconURL)
		if err != nil {
			return nil, err
		}
		servers = append(servers, server)
	}
	return servers, rows.Err()
}

func (s *Store) Channel(ctx context.Context, channelID int64) (models.Channel, error) {
	var channel models.Channel
	err := s.db.QueryRowContext(ctx, "SELECT id, server_id, name, type, position, parent_id FROM channels WHERE id = ?", channelID).
		Scan(&channel.ID, &channel.ServerID, &channel.Name, &channel.Type, &channel.Position, &channel.ParentID)
	if err != nil {
		return models.Channel{}, notFound(err)
	}
	return channel, nil
}

func (s *Store) ChannelsOf(ctx context.Context, serverID int64) ([]models.Channel, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, server_id, name, type, position, parent_id FROM channels WHERE server_id = ? ORDER BY position, id", serverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	channels := []models.Channel{}
	for rows.Next() {
		var channel models.Channel
		err := rows.Scan(&channel.ID, &channel.ServerID, &channel.Name, &channel.Type, &channel.Position, &channel.ParentID)
		if err != nil {
			return nil, err
		}
		channels = append(channels, channel)
	}
	return channels, rows.Err()
}

func (s *Store) MembersOf(ctx context.Context, serverID int64) ([]models.UserProfile, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT u.id, u.username, u.display_name, u.avatar_url FROM users u JOIN server_members m ON u.id = m.user_id WHERE m.server_id = ?", serverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := []models.UserProfile{}
	for rows.Next() {
		var member models.UserProfile
		err := rows.Scan(&member.ID, &member.Username, &member.DisplayName, &member.AvatarURL)
		if err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

// MemberByUsername resolves a mention token against the server's members.
func (s *Store) MemberByUsername(ctx context.Context, serverID int64, username string) (models.UserProfile, error) {
	var member models.UserProfile
	err := s.db.QueryRowContext(ctx, "SELECT u.id, u.username, u.display_name, u.avatar_url FROM users u JOIN server_members m ON u.id = m.user_id WHERE m.server_id = ? AND u.username = ?", serverID, username).
		Scan(&member.ID, &member.Username, &member.DisplayName, &member.AvatarURL)
	if err != nil {
		return models.UserProfile{}, notFound(err)
	}
	return member, nil
}

// CreateServer creates the server, its @everyone role, a #general channel
// and the owner's membership in one transaction.
func (s *Store) CreateServer(ctx context.Context, ownerID int64, name string) (models.Server, error) {
	if err := validator.ServerName(name); err != nil {
		return models.Server{}, err
	}

	serverID, err := snowflake.Generate()
	if err != nil {
		return models.Server{}, err
	}
	roleID, err := snowflake.Generate()
	if err != nil {
		return models.Server{}, err
	}
	channelID, err := snowflake.Generate()
	if err != nil {
		return models.Server{}, err
	}

	server := models.Server{ID: serverID, OwnerID: ownerID, Name: name}
	channel := models.Channel{ID: channelID, ServerID: serverID, Name: "general", Type: models.ChannelTypeText}
	membership := models.Membership{ServerID: serverID, UserID: ownerID, JoinedAt: time.Now().UTC()}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Server{}, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, "INSERT INTO servers (id, owner_id, name, description, icon_url) VALUES (?, ?, ?, '', '')", server.ID, server.OwnerID, server.Name)
	if err != nil {
		return models.Server{}, err
	}

	_, err = tx.ExecContext(ctx, "INSERT INTO roles (id, server_id, name, permissions, is_everyone) VALUES (?, ?, '@everyone', ?, TRUE)",
		roleID, serverID, int64(permissions.DefaultEveryone))
	if err != nil {
		return models.Server{}, err
	}

	_, err = tx.ExecContext(ctx, "INSERT INTO channels (id, server_id, name, type) VALUES (?, ?, ?, ?)", channel.ID, channel.ServerID, channel.Name, channel.Type)
	if err != nil {
		return models.Server{}, err
	}

	_, err = tx.ExecContext(ctx, "INSERT INTO server_members (server_id, user_id, joined_at_ms) VALUES (?, ?, ?)", serverID, ownerID, timeToMs(membership.JoinedAt))
	if err != nil {
		return models.Server{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.Server{}, err
	}

	s.publish(feed.Topic(feed.TableChannels, serverID), feed.Event{Type: feed.EventInsert, Table: feed.TableChannels, Row: channel})
	s.publish(feed.Topic(feed.TableMembers, serverID), feed.Event{Type: feed.EventInsert, Table: feed.TableMembers, Row: membership})

	s.sugar.Debugf("Created server ID [%d] for owner ID [%d]", serverID, ownerID)
	return server, nil
}

// JoinServerByName joins a server looked up by its exact name, the direct
// counterpart of invite redemption for servers joinable without a code.
// A repeat join from an existing member is a no-op success.
func (s *Store) JoinServerByName(ctx context.Context, name string, userID int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var serverID int64
	err = tx.QueryRowContext(ctx, "SELECT id FROM servers WHERE name = ? ORDER BY id LIMIT 1", name).Scan(&serverID)
	if err != nil {
		return 0, notFound(err)
	}

	var banned bool
	err = tx.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM server_bans WHERE server_id = ? AND user_id = ?)", serverID, userID).Scan(&banned)
	if err != nil {
		return 0, err
	}
	if banned {
		return 0, apperr.ErrPermissionDenied
	}

	var alreadyMember bool
	err = tx.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM server_members WHERE server_id = ? AND user_id = ?)", serverID, userID).Scan(&alreadyMember)
	if err != nil {
		return 0, err
	}
	if alreadyMember {
		return serverID, nil
	}

	membership := models.Membership{ServerID: serverID, UserID: userID, JoinedAt: time.Now().UTC()}
	_, err = tx.ExecContext(ctx, "INSERT INTO server_members (server_id, user_id, joined_at_ms) VALUES (?, ?, ?)",
		membership.ServerID, membership.UserID, timeToMs(membership.JoinedAt))
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	s.publish(feed.Topic(feed.TableMembers, serverID), feed.Event{Type: feed.EventInsert, Table: feed.TableMembers, Row: membership})

	s.sugar.Debugf("User ID [%d] joined server [%s] by name", userID, name)
	return serverID, nil
}

func (s *Store) CreateChannel(ctx context.Context, serverID int64, name string, channelType string) (models.Channel, error) {
	if err := validator.ChannelName(name); err != nil {
		return models.Channel{}, err
	}

	channelID, err := snowflake.Generate()
	if err != nil {
		return models.Channel{}, err
	}

	channel := models.Channel{ID: channelID, ServerID: serverID, Name: name, Type: channelType}

	_, err = s.db.ExecContext(ctx, "INSERT INTO channels (id, server_id, name, type) VALUES (?, ?, ?, ?)", channel.ID, channel.ServerID, channel.Name, channel.Type)
	if err != nil {
		return models.Channel{}, err
	}

	s.publish(feed.Topic(feed.TableChannels, serverID), feed.Event{Type: feed.EventInsert, Table: feed.TableChannels, Row: channel})
	return channel, nil
}

func (s *Store) UpdateChannel(ctx context.Context, channelID int64, name string, position int) error {
	if err := validator.ChannelName(name); err != nil {
		return err
	}

	channel, err := s.Channel(ctx, channelID)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, "UPDATE channels SET name = ?, position = ? WHERE id = ?", name, position, channelID)
	if err != nil {
		return err
	}

	channel.Name = name
	channel.Position = position
	s.publish(feed.Topic(feed.TableChannels, channel.ServerID), feed.Event{Type: feed.EventUpdate, Table: feed.TableChannels, Row: channel})
	return nil
}

// DeleteChannel drops the channel; its messages go with it through the
// foreign key cascade.
func (s *Store) DeleteChannel(ctx context.Context, channelID int64) error {
	channel, err := s.Channel(ctx, channelID)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, "DELETE FROM channels WHERE id = ?", channelID)
	if err != nil {
		return err
	}

	s.publish(feed.Topic(feed.TableChannels, channel.ServerID), feed.Event{Type: feed.EventDelete, Table: feed.TableChannels, Row: channel})
	return nil
}

func (s *Store) KickMember(ctx context.Context, serverID int64, userID int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM server_members WHERE server_id = ? AND user_id = ?", serverID, userID)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return nil
	}

	s.publish(feed.Topic(feed.TableMembers, serverID), feed.Event{
		Type:  feed.EventDelete,
		Table: feed.TableMembers,
		Row:   models.Membership{ServerID: serverID, UserID: userID},
	})
	return nil
}

// BanMember records the ban and removes the membership in one transaction.
func (s *Store) BanMember(ctx context.Context, serverID int64, userID int64, reason string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, "DELETE FROM server_bans WHERE server_id = ? AND user_id = ?", serverID, userID)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, "INSERT INTO server_bans (server_id, user_id, reason, created_at_ms) VALUES (?, ?, ?, ?)",
		serverID, userID, reason, timeToMs(time.Now().UTC()))
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM server_members WHERE server_id = ? AND user_id = ?", serverID, userID)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.publish(feed.Topic(feed.TableMembers, serverID), feed.Event{
		Type:  feed.EventDelete,
		Table: feed.TableMembers,
		Row:   models.Membership{ServerID: serverID, UserID: userID},
	})
	return nil
}

func (s *Store) UnbanMember(ctx context.Context, serverID int64, userID int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM server_bans WHERE server_id = ? AND user_id = ?", serverID, userID)
	return err
}

func (s *Store) IsBanned(ctx context.Context, serverID int64, userID int64) (bool, error) {
	var banned bool
	err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM server_bans WHERE server_id = ? AND user_id = ?)", serverID, userID).Scan(&banned)
	return banned, err
}

func (s *Store) Bans(ctx context.Context, serverID int64) ([]models.Ban, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT server_id, user_id, reason, created_at_ms FROM server_bans WHERE server_id = ?", serverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bans := []models.Ban{}
	for rows.Next() {
		var ban models.Ban
		var createdMs int64
		err := rows.Scan(&ban.ServerID, &ban.UserID, &ban.Reason, &createdMs)
		if err != nil {
			return nil, err
		}
		ban.CreatedAt = msToTime(createdMs)
		bans = append(bans, ban)
	}
	return bans, rows.Err()
}

// HasPermission is the bulk-checkable permission RPC. It resolves through
// the same bitmask rules the client-side resolver uses.
func (s *Store) HasPermission(ctx context.Context, userID int64, serverID int64, perm permissions.Bitmask) (bool, error) {
	return permissions.NewResolver(s).Has(ctx, userID, serverID, perm)
}

// RequirePermission is HasPermission with a missing permission mapped to
// apperr.ErrPermissionDenied.
func (s *Store) RequirePermission(ctx context.Context, userID int64, serverID int64, perm permissions.Bitmask) error {
	return permissions.NewResolver(s).Require(ctx, userID, serverID, perm)
}

func (s *Store) memberServerIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT server_id FROM server_members WHERE user_id = ?", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
