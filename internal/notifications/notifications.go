package notifications

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"chatapp-client/internal/feed"
	"chatapp-client/internal/models"
)

const DefaultLimit = 100

// Backend is the slice of the store the inbox needs.
type Backend interface {
	NotificationsFor(ctx context.Context, userID int64, limit int) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, notificationID int64, userID int64) error
	MarkAllNotificationsRead(ctx context.Context, userID int64) error
}

// Inbox is the local user's notification list, newest first. Read state
// changes are written through before being applied locally.
type Inbox struct {
	sugar   *zap.SugaredLogger
	backend Backend
	userID  int64
	limit   int

	mu    sync.Mutex
	items []models.Notification
	known map[int64]struct{}
}

func NewInbox(backend Backend, userID int64, limit int, sugar *zap.SugaredLogger) *Inbox {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Inbox{
		sugar:   sugar,
		backend: backend,
		userID:  userID,
		limit:   limit,
		known:   make(map[int64]struct{}),
	}
}

// Load replaces the inbox contents from the store.
func (i *Inbox) Load(ctx context.Context) error {
	items, err := i.backend.NotificationsFor(ctx, i.userID, i.limit)
	if err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	i.items = i.items[:0]
	clear(i.known)
	// the store hands back newest first, internally we keep ascending ids
	for idx := len(items) - 1; idx >= 0; idx-- {
		i.items = append(i.items, items[idx])
		i.known[items[idx].ID] = struct{}{}
	}
	i.sugar.Debugf("[%d] loaded %d notifications", i.userID, len(i.items))
	return nil
}

// Apply folds one feed event in. Notifications addressed to somebody
// else and redeliveries are dropped.
func (i *Inbox) Apply(event feed.Event) {
	notification, ok := event.Row.(models.Notification)
	if !ok {
		i.sugar.Warnf("notification event carried a %T row", event.Row)
		return
	}
	if notification.UserID != i.userID || event.Type != feed.EventInsert {
		return
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.known[notification.ID]; ok {
		return
	}
	i.known[notification.ID] = struct{}{}
	i.items = append(i.items, notification)
	sort.Slice(i.items, func(a, b int) bool {
		return i.items[a].ID < i.items[b].ID
	})
}

// MarkRead flags one notification as read, store first.
func (i *Inbox) MarkRead(ctx context.Context, notificationID int64) error {
	if err := i.backend.MarkNotificationRead(ctx, notificationID, i.userID); err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	for idx := range i.items {
		if i.items[idx].ID == notificationID {
			i.items[idx].IsRead = true
			break
		}
	}
	return nil
}

// MarkAllRead flags the whole inbox as read, store first.
func (i *Inbox) MarkAllRead(ctx context.Context) error {
	if err := i.backend.MarkAllNotificationsRead(ctx, i.userID); err != nil {
		return err
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	for idx := range i.items {
		i.items[idx].IsRead = true
	}
	return nil
}

// UnreadCount drives the badge in the title bar.
func (i *Inbox) UnreadCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()

	count := 0
	for _, item := range i.items {
		if !item.IsRead {
			count++
		}
	}
	return count
}

// Items returns a copy of the inbox, newest first.
func (i *Inbox) Items() []models.Notification {
	i.mu.Lock()
	defer i.mu.Unlock()

	out := make([]models.Notification, len(i.items))
	for idx, item := range i.items {
		out[len(i.items)-1-idx] = item
	}
	return out
}
