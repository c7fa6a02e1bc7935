package store

import (
	"context"
	"fmt"
	"slices"

	"chatapp-client/internal/models"
	"chatapp-client/internal/snowflake"
)

// CreateDmChannel opens a direct channel between the creator and the given
// users. The participant set identifies the conversation: asking for a set
// that already has a channel returns the existing one instead of opening a
// second.
func (s *Store) CreateDmChannel(ctx context.Context, creatorID int64, userIDs []int64) (models.Channel, error) {
	members := append([]int64{creatorID}, userIDs...)
	slices.Sort(members)
	members = slices.Compact(members)
	if len(members) < 2 {
		return models.Channel{}, fmt.Errorf("not_enough_members")
	}

	existing, err := s.findDmChannel(ctx, creatorID, members)
	if err != nil {
		return models.Channel{}, err
	}
	if existing.ID != 0 {
		return existing, nil
	}

	channelID, err := snowflake.Generate()
	if err != nil {
		return models.Channel{}, err
	}

	channel := models.Channel{ID: channelID, Name: "dm", Type: models.ChannelTypeDm}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Channel{}, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, "INSERT INTO channels (id, server_id, name, type) VALUES (?, 0, ?, ?)", channel.ID, channel.Name, channel.Type)
	if err != nil {
		return models.Channel{}, err
	}

	for _, memberID := range members {
		_, err = tx.ExecContext(ctx, "INSERT INTO dm_channel_members (channel_id, user_id) VALUES (?, ?)", channel.ID, memberID)
		if err != nil {
			return models.Channel{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return models.Channel{}, err
	}

	s.sugar.Debugf("Created DM channel [%d] with %d members", channel.ID, len(members))
	return channel, nil
}

// findDmChannel looks for one of the creator's DM channels holding exactly
// the wanted participant set. members must be sorted and deduplicated.
func (s *Store) findDmChannel(ctx context.Context, creatorID int64, members []int64) (models.Channel, error) {
	channels, err := s.DmChannelsOf(ctx, creatorID)
	if err != nil {
		return models.Channel{}, err
	}

	for _, channel := range channels {
		ids, err := s.dmMemberIDs(ctx, channel.ID)
		if err != nil {
			return models.Channel{}, err
		}
		if slices.Equal(ids, members) {
			return channel, nil
		}
	}
	return models.Channel{}, nil
}

func (s *Store) DmChannelsOf(ctx context.Context, userID int64) ([]models.Channel, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT c.id, c.server_id, c.name, c.type, c.position, c.parent_id FROM channels c JOIN dm_channel_members m ON c.id = m.channel_id WHERE m.user_id = ? ORDER BY c.id", userID)
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

func (s *Store) DmMembers(ctx context.Context, channelID int64) ([]models.UserProfile, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT u.id, u.username, u.display_name, u.avatar_url FROM users u JOIN dm_channel_members m ON u.id = m.user_id WHERE m.channel_id = ? ORDER BY u.id", channelID)
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

func (s *Store) IsDmMember(ctx context.Context, channelID int64, userID int64) (bool, error) {
	var member bool
	err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM dm_channel_members WHERE channel_id = ? AND user_id = ?)", channelID, userID).Scan(&member)
	return member, err
}

func (s *Store) dmMemberIDs(ctx context.Context, channelID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT user_id FROM dm_channel_members WHERE channel_id = ? ORDER BY user_id", channelID)
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
