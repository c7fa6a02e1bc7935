package store

import (
	"context"
	"time"

	"chatapp-client/internal/feed"
	"chatapp-client/internal/models"
	"chatapp-client/internal/snowflake"
)

func (s *Store) CreateNotification(ctx context.Context, notification models.Notification) (models.Notification, error) {
	notificationID, err := snowflake.Generate()
	if err != nil {
		return models.Notification{}, err
	}

	notification.ID = notificationID
	notification.IsRead = false
	notification.CreatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx, "INSERT INTO notifications (id, user_id, type, title, content, data, is_read, created_at_ms) VALUES (?, ?, ?, ?, ?, ?, FALSE, ?)",
		notification.ID, notification.UserID, notification.Type, notification.Title, notification.Content, notification.Data, timeToMs(notification.CreatedAt))
	if err != nil {
		return models.Notification{}, err
	}

	s.publish(feed.Topic(feed.TableNotifications, notification.UserID), feed.Event{Type: feed.EventInsert, Table: feed.TableNotifications, Row: notification})
	return notification, nil
}

func (s *Store) NotificationsFor(ctx context.Context, userID int64, limit int) ([]models.Notification, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, user_id, type, title, content, data, is_read, created_at_ms FROM notifications WHERE user_id = ? ORDER BY created_at_ms DESC, id DESC LIMIT ?", userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notifications := []models.Notification{}
	for rows.Next() {
		var notification models.Notification
		var createdMs int64
		err := rows.Scan(&notification.ID, &notification.UserID, &notification.Type, &notification.Title, &notification.Content, &notification.Data, &notification.IsRead, &createdMs)
		if err != nil {
			return nil, err
		}
		notification.CreatedAt = msToTime(createdMs)
		notifications = append(notifications, notification)
	}
	return notifications, rows.Err()
}

func (s *Store) MarkNotificationRead(ctx context.Context, notificationID int64, userID int64) error {
	_, err := s.db.ExecContext(ctx, "UPDATE notifications SET is_read = TRUE WHERE id = ? AND user_id = ?", notificationID, userID)
	return err
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, "UPDATE notifications SET is_read = TRUE WHERE user_id = ?", userID)
	return err
}
