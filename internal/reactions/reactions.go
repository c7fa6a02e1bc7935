package reactions

import (
	"sync"

	"go.uber.org/zap"

	"chatapp-client/internal/feed"
	"chatapp-client/internal/models"
)

// Group is the rendered form of one emoji on one message.
type Group struct {
	Emoji string  `json:"emoji"`
	Count int     `json:"count"`
	Users []int64 `json:"users"`
	Mine  bool    `json:"mine"`
}

// Aggregator folds per-user reaction rows into per-emoji groups for the
// channel currently on screen. It is primed from a store snapshot and
// then kept current by feed events. All operations are idempotent, so
// redelivered events and an optimistic toggle confirmed by its own feed
// event land in the same state.
type Aggregator struct {
	sugar  *zap.SugaredLogger
	selfID int64

	mu      sync.Mutex
	byEmoji map[int64]map[string]map[int64]struct{}
}

func New(selfID int64, sugar *zap.SugaredLogger) *Aggregator {
	return &Aggregator{
		sugar:   sugar,
		selfID:  selfID,
		byEmoji: make(map[int64]map[string]map[int64]struct{}),
	}
}

// Prime replaces the aggregator contents with a channel snapshot.
func (a *Aggregator) Prime(reactions []models.Reaction) {
	a.mu.Lock()
	defer a.mu.Unlock()

	clear(a.byEmoji)
	for _, reaction := range reactions {
		a.add(reaction)
	}
}

// Apply folds one feed event in.
func (a *Aggregator) Apply(event feed.Event) {
	reaction, ok := event.Row.(models.Reaction)
	if !ok {
		a.sugar.Warnf("reaction event carried a %T row", event.Row)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	switch event.Type {
	case feed.EventInsert:
		a.add(reaction)
	case feed.EventDelete:
		a.remove(reaction)
	}
}

// ToggleLocally applies the user's own toggle before the round trip
// completes, so the UI updates immediately. The returned value is the
// optimistic "added" outcome.
func (a *Aggregator) ToggleLocally(messageID int64, emoji string) bool {
	reaction := models.Reaction{MessageID: messageID, UserID: a.selfID, Emoji: emoji}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.has(reaction) {
		a.remove(reaction)
		return false
	}
	a.add(reaction)
	return true
}

// Revert undoes an optimistic toggle whose write failed.
func (a *Aggregator) Revert(messageID int64, emoji string) {
	a.sugar.Debugf("[%d] reverting failed toggle of %s", messageID, emoji)
	a.ToggleLocally(messageID, emoji)
}

// Groups returns the rendered groups for one message. Order is not
// specified.
func (a *Aggregator) Groups(messageID int64) []Group {
	a.mu.Lock()
	defer a.mu.Unlock()

	emojis := a.byEmoji[messageID]
	if len(emojis) == 0 {
		return nil
	}

	groups := make([]Group, 0, len(emojis))
	for emoji, users := range emojis {
		group := Group{Emoji: emoji, Count: len(users), Users: make([]int64, 0, len(users))}
		for userID := range users {
			group.Users = append(group.Users, userID)
			if userID == a.selfID {
				group.Mine = true
			}
		}
		groups = append(groups, group)
	}
	return groups
}

func (a *Aggregator) add(reaction models.Reaction) {
	emojis, ok := a.byEmoji[reaction.MessageID]
	if !ok {
		emojis = make(map[string]map[int64]struct{})
		a.byEmoji[reaction.MessageID] = emojis
	}
	users, ok := emojis[reaction.Emoji]
	if !ok {
		users = make(map[int64]struct{})
		emojis[reaction.Emoji] = users
	}
	users[reaction.UserID] = struct{}{}
}

func (a *Aggregator) remove(reaction models.Reaction) {
	emojis, ok := a.byEmoji[reaction.MessageID]
	if !ok {
		return
	}
	users, ok := emojis[reaction.Emoji]
	if !ok {
		return
	}
	delete(users, reaction.UserID)
	if len(users) == 0 {
		delete(emojis, reaction.Emoji)
	}
	if len(emojis) == 0 {
		delete(a.byEmoji, reaction.MessageID)
	}
}

func (a *Aggregator) has(reaction models.Reaction) bool {
	users, ok := a.byEmoji[reaction.MessageID][reaction.Emoji]
	if !ok {
		return false
	}
	_, ok = users[reaction.UserID]
	return ok
}
