package timeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"chatapp-client/internal/models"
)

const DefaultPageSize = 50

// Loader fetches message pages from the backing store.
type Loader interface {
	LatestMessages(ctx context.Context, channelID int64, limit int) ([]models.Message, error)
	MessagesBefore(ctx context.Context, channelID int64, before time.Time, beforeID int64, limit int) ([]models.Message, error)
}

// Timeline holds the messages of a single channel ordered by
// (created at, id) ascending, with no duplicate ids.
type Timeline struct {
	sugar     *zap.SugaredLogger
	loader    Loader
	channelID int64
	pageSize  int

	mu         sync.Mutex
	messages   []models.Message
	known      map[int64]struct{}
	hasMore    bool
	generation uint64
}

func New(loader Loader, channelID int64, pageSize int, sugar *zap.SugaredLogger) *Timeline {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Timeline{
		sugar:     sugar,
		loader:    loader,
		channelID: channelID,
		pageSize:  pageSize,
		known:     make(map[int64]struct{}),
	}
}

func (t *Timeline) ChannelID() int64 {
	return t.channelID
}

// LoadInitial replaces the timeline contents with the newest page of the
// channel. Any loads still in flight from before the call are discarded
// when they land.
func (t *Timeline) LoadInitial(ctx context.Context) error {
	t.mu.Lock()
	t.generation++
	gen := t.generation
	t.mu.Unlock()

	messages, err := t.loader.LatestMessages(ctx, t.channelID, t.pageSize)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.generation {
		t.sugar.Debugf("[%d] discarding stale initial load", t.channelID)
		return nil
	}

	t.messages = t.messages[:0]
	clear(t.known)
	for _, message := range messages {
		t.messages = append(t.messages, message)
		t.known[message.ID] = struct{}{}
	}
	t.hasMore = len(messages) == t.pageSize
	t.sugar.Debugf("[%d] loaded %d messages, hasMore: %t", t.channelID, len(messages), t.hasMore)
	return nil
}

// LoadOlder prepends the page before the current oldest message. Calling
// it when the history is exhausted is a no-op.
func (t *Timeline) LoadOlder(ctx context.Context) error {
	t.mu.Lock()
	if !t.hasMore || len(t.messages) == 0 {
		t.mu.Unlock()
		return nil
	}
	oldest := t.messages[0]
	gen := t.generation
	t.mu.Unlock()

	messages, err := t.loader.MessagesBefore(ctx, t.channelID, oldest.CreatedAt, oldest.ID, t.pageSize)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.generation {
		t.sugar.Debugf("[%d] discarding stale older load", t.channelID)
		return nil
	}

	added := 0
	for _, message := range messages {
		if _, ok := t.known[message.ID]; ok {
			continue
		}
		t.messages = append(t.messages, message)
		t.known[message.ID] = struct{}{}
		added++
	}
	if added > 0 {
		sort.Slice(t.messages, func(i, j int) bool {
			return less(t.messages[i], t.messages[j])
		})
	}
	t.hasMore = len(messages) == t.pageSize
	t.sugar.Debugf("[%d] loaded %d older messages, hasMore: %t", t.channelID, added, t.hasMore)
	return nil
}

// AppendLive inserts a message delivered over the feed. Duplicates of
// already known ids are dropped, late arrivals are placed in order.
func (t *Timeline) AppendLive(message models.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.known[message.ID]; ok {
		return
	}
	t.known[message.ID] = struct{}{}

	if n := len(t.messages); n == 0 || less(t.messages[n-1], message) {
		t.messages = append(t.messages, message)
		return
	}

	at := sort.Search(len(t.messages), func(i int) bool {
		return less(message, t.messages[i])
	})
	t.messages = append(t.messages, models.Message{})
	copy(t.messages[at+1:], t.messages[at:])
	t.messages[at] = message
}

// Remove drops a deleted message. Unknown ids are ignored.
func (t *Timeline) Remove(messageID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.known[messageID]; !ok {
		return
	}
	delete(t.known, messageID)
	for i, message := range t.messages {
		if message.ID == messageID {
			t.messages = append(t.messages[:i], t.messages[i+1:]...)
			return
		}
	}
}

// Messages returns a copy of the current contents, oldest first.
func (t *Timeline) Messages() []models.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

func (t *Timeline) HasMore() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hasMore
}

func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

func less(a models.Message, b models.Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
