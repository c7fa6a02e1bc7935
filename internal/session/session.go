package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"chatapp-client/internal/apperr"
	"chatapp-client/internal/blob"
	"chatapp-client/internal/feed"
	"chatapp-client/internal/mentions"
	"chatapp-client/internal/models"
	"chatapp-client/internal/notifications"
	"chatapp-client/internal/permissions"
	"chatapp-client/internal/presence"
	"chatapp-client/internal/reactions"
	"chatapp-client/internal/store"
	"chatapp-client/internal/timeline"
	"chatapp-client/internal/validator"
)

// Gateway is one user's live session: the active channel's message and
// reaction subscriptions, the active server's presence subscription and
// the user's own notification subscription, with events routed into the
// in-memory stores the UI reads from.
type Gateway struct {
	sugar  *zap.SugaredLogger
	store  *store.Store
	bus    feed.Bus
	blobs  *blob.Store
	selfID int64

	resolver *mentions.Resolver
	registry *presence.Registry
	inbox    *notifications.Inbox

	mu          sync.Mutex
	serverID    int64
	channel     models.Channel
	timeline    *timeline.Timeline
	aggregator  *reactions.Aggregator
	messageSub  *feed.Subscription
	reactionSub *feed.Subscription
	presenceSub *feed.Subscription
	notifSub    *feed.Subscription
	wg          sync.WaitGroup
}

func New(s *store.Store, bus feed.Bus, blobs *blob.Store, selfID int64, heartbeat time.Duration, sugar *zap.SugaredLogger) *Gateway {
	return &Gateway{
		sugar:    sugar,
		store:    s,
		bus:      bus,
		blobs:    blobs,
		selfID:   selfID,
		resolver: mentions.NewResolver(s),
		registry: presence.NewRegistry(s, selfID, heartbeat, sugar),
		inbox:    notifications.NewInbox(s, selfID, 0, sugar),
	}
}

// Start brings up the per-user pieces: notification subscription and
// inbox load, presence set to online, heartbeat if configured.
func (g *Gateway) Start(ctx context.Context) error {
	sub, err := g.bus.Subscribe(feed.Topic(feed.TableNotifications, g.selfID))
	if err != nil {
		return fmt.Errorf("subscribing notifications: %w", err)
	}

	g.mu.Lock()
	g.notifSub = sub
	g.mu.Unlock()

	g.route(sub, func(event feed.Event) {
		g.inbox.Apply(event)
	})

	if err := g.inbox.Load(ctx); err != nil {
		return fmt.Errorf("loading notifications: %w", err)
	}
	if err := g.registry.SetVisible(ctx); err != nil {
		return fmt.Errorf("setting presence: %w", err)
	}
	g.registry.StartHeartbeat(ctx)

	g.sugar.Debugf("[%d] session started", g.selfID)
	return nil
}

// SwitchServer repoints the presence subscription at another server and
// primes the registry with its member statuses.
func (g *Gateway) SwitchServer(ctx context.Context, serverID int64) error {
	g.mu.Lock()
	if g.presenceSub != nil {
		g.presenceSub.Cancel()
		g.presenceSub = nil
	}
	g.mu.Unlock()

	sub, err := g.bus.Subscribe(feed.Topic(feed.TablePresence, serverID))
	if err != nil {
		return fmt.Errorf("subscribing presence: %w", err)
	}

	g.mu.Lock()
	g.presenceSub = sub
	g.serverID = serverID
	g.mu.Unlock()

	g.route(sub, func(event feed.Event) {
		g.registry.Apply(event)
	})

	records, err := g.store.PresenceOf(ctx, serverID)
	if err != nil {
		return fmt.Errorf("loading presence: %w", err)
	}
	g.registry.Prime(records)

	g.sugar.Debugf("[%d] switched to server [%d]", g.selfID, serverID)
	return nil
}

// SwitchChannel makes channelID the active channel: the old channel's
// subscriptions are torn down before the new ones are created, so no
// event from the old channel can land in the new channel's stores. The
// fresh timeline and reaction set are then loaded.
func (g *Gateway) SwitchChannel(ctx context.Context, channelID int64) error {
	channel, err := g.store.Channel(ctx, channelID)
	if err != nil {
		return err
	}
	// direct message channels have no roles, only a participant set
	if channel.ServerID != 0 {
		if err := g.store.RequirePermission(ctx, g.selfID, channel.ServerID, permissions.ReadMessages); err != nil {
			return err
		}
	} else if err := g.requireDmMember(ctx, channel.ID); err != nil {
		return err
	}

	g.mu.Lock()
	if g.messageSub != nil {
		g.messageSub.Cancel()
		g.messageSub = nil
	}
	if g.reactionSub != nil {
		g.reactionSub.Cancel()
		g.reactionSub = nil
	}
	g.mu.Unlock()

	messageSub, err := g.bus.Subscribe(feed.Topic(feed.TableMessages, channelID))
	if err != nil {
		return fmt.Errorf("subscribing messages: %w", err)
	}
	reactionSub, err := g.bus.Subscribe(feed.Topic(feed.TableReactions, channelID))
	if err != nil {
		messageSub.Cancel()
		return fmt.Errorf("subscribing reactions: %w", err)
	}

	tl := timeline.New(g.store, channelID, timeline.DefaultPageSize, g.sugar)
	aggregator := reactions.New(g.selfID, g.sugar)

	g.mu.Lock()
	g.channel = channel
	g.timeline = tl
	g.aggregator = aggregator
	g.messageSub = messageSub
	g.reactionSub = reactionSub
	g.mu.Unlock()

	g.route(messageSub, func(event feed.Event) {
		message, ok := event.Row.(models.Message)
		if !ok {
			g.sugar.Warnf("message event carried a %T row", event.Row)
			return
		}
		switch event.Type {
		case feed.EventInsert:
			tl.AppendLive(message)
		case feed.EventDelete:
			tl.Remove(message.ID)
		}
	})
	g.route(reactionSub, func(event feed.Event) {
		aggregator.Apply(event)
	})

	if err := tl.LoadInitial(ctx); err != nil {
		return fmt.Errorf("loading messages: %w", err)
	}
	channelReactions, err := g.store.ReactionsForChannel(ctx, channelID)
	if err != nil {
		return fmt.Errorf("loading reactions: %w", err)
	}
	aggregator.Prime(channelReactions)

	if channel.ServerID != 0 && channel.ServerID != g.currentServerID() {
		if err := g.SwitchServer(ctx, channel.ServerID); err != nil {
			return err
		}
	}

	g.sugar.Debugf("[%d] switched to channel [%d]", g.selfID, channelID)
	return nil
}

// OpenDm opens (or finds) the direct channel with the given users and
// makes it the active channel.
func (g *Gateway) OpenDm(ctx context.Context, userIDs []int64) (models.Channel, error) {
	channel, err := g.store.CreateDmChannel(ctx, g.selfID, userIDs)
	if err != nil {
		return models.Channel{}, err
	}
	if err := g.SwitchChannel(ctx, channel.ID); err != nil {
		return models.Channel{}, err
	}
	return channel, nil
}

// DmChannels lists the user's direct channels.
func (g *Gateway) DmChannels(ctx context.Context) ([]models.Channel, error) {
	return g.store.DmChannelsOf(ctx, g.selfID)
}

func (g *Gateway) requireDmMember(ctx context.Context, channelID int64) error {
	member, err := g.store.IsDmMember(ctx, channelID, g.selfID)
	if err != nil {
		return err
	}
	if !member {
		return apperr.ErrPermissionDenied
	}
	return nil
}

// SendMessage writes the message, then records a Mention and creates a
// notification for every @token that resolved to a member. Mentions and
// notifications only happen for a durably written message.
func (g *Gateway) SendMessage(ctx context.Context, content string, attachments string) (models.Message, error) {
	channel, ok := g.currentChannel()
	if !ok {
		return models.Message{}, fmt.Errorf("no_active_channel")
	}

	if channel.ServerID != 0 {
		if err := g.store.RequirePermission(ctx, g.selfID, channel.ServerID, permissions.SendMessages); err != nil {
			return models.Message{}, err
		}
	} else if err := g.requireDmMember(ctx, channel.ID); err != nil {
		return models.Message{}, err
	}
	if err := validator.MessageContent(content); err != nil {
		return models.Message{}, err
	}

	message, err := g.store.SendMessage(ctx, channel.ID, g.selfID, content, attachments)
	if err != nil {
		return models.Message{}, err
	}

	mentioned, err := g.resolver.Resolve(ctx, channel.ServerID, content)
	if err != nil {
		g.sugar.Warnf("resolving mentions for message [%d]: %s", message.ID, err)
		return message, nil
	}
	for _, member := range mentioned {
		if member.ID == g.selfID {
			continue
		}
		if err := g.store.RecordMention(ctx, message.ID, member.ID); err != nil {
			g.sugar.Warnf("recording mention of [%d]: %s", member.ID, err)
			continue
		}
		_, err := g.store.CreateNotification(ctx, models.Notification{
			UserID:  member.ID,
			Type:    models.NotificationMention,
			Title:   fmt.Sprintf("@%s mentioned you", message.Author.Username),
			Content: content,
			Data:    fmt.Sprintf(`{"channelID":"%d","messageID":"%d"}`, channel.ID, message.ID),
		})
		if err != nil {
			g.sugar.Warnf("notifying [%d]: %s", member.ID, err)
		}
	}
	return message, nil
}

// DeleteMessage removes one of the user's own messages.
func (g *Gateway) DeleteMessage(ctx context.Context, messageID int64) error {
	return g.store.DeleteMessage(ctx, messageID, g.selfID)
}

// ToggleReaction flips the user's reaction, optimistically in the
// aggregator first, rolled back if the write fails.
func (g *Gateway) ToggleReaction(ctx context.Context, messageID int64, emoji string) error {
	g.mu.Lock()
	aggregator := g.aggregator
	g.mu.Unlock()
	if aggregator == nil {
		return fmt.Errorf("no_active_channel")
	}

	aggregator.ToggleLocally(messageID, emoji)
	if _, err := g.store.ToggleReaction(ctx, messageID, g.selfID, emoji); err != nil {
		aggregator.Revert(messageID, emoji)
		return err
	}
	return nil
}

// Search runs a substring search over the current server, or over just
// the active channel when channelOnly is set.
func (g *Gateway) Search(ctx context.Context, term string, channelOnly bool, limit int) ([]models.SearchResult, error) {
	channel, ok := g.currentChannel()
	if !ok {
		return nil, fmt.Errorf("no_active_channel")
	}

	channelID := int64(0)
	if channelOnly {
		channelID = channel.ID
	}
	return g.store.SearchMessages(ctx, term, channel.ServerID, channelID, limit)
}

// UploadAttachment stores a file in the blob store and returns the
// public URL to embed in a message.
func (g *Gateway) UploadAttachment(ctx context.Context, filename string, data []byte) (string, error) {
	channel, ok := g.currentChannel()
	if !ok {
		return "", fmt.Errorf("no_active_channel")
	}
	if channel.ServerID != 0 {
		if err := g.store.RequirePermission(ctx, g.selfID, channel.ServerID, permissions.AttachFiles); err != nil {
			return "", err
		}
	} else if err := g.requireDmMember(ctx, channel.ID); err != nil {
		return "", err
	}

	path, err := g.blobs.Upload("attachments", filename, data)
	if err != nil {
		return "", err
	}
	return g.blobs.GetPublicURL(path), nil
}

// Close tears the session down: a final offline presence write, all
// subscriptions cancelled, routing goroutines drained.
func (g *Gateway) Close(ctx context.Context) error {
	err := g.registry.Shutdown(ctx)

	g.mu.Lock()
	for _, sub := range []*feed.Subscription{g.messageSub, g.reactionSub, g.presenceSub, g.notifSub} {
		if sub != nil {
			sub.Cancel()
		}
	}
	g.messageSub, g.reactionSub, g.presenceSub, g.notifSub = nil, nil, nil, nil
	g.mu.Unlock()

	g.wg.Wait()
	g.sugar.Debugf("[%d] session closed", g.selfID)
	return err
}

// Timeline returns the active channel's timeline, nil before the first
// SwitchChannel.
func (g *Gateway) Timeline() *timeline.Timeline {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.timeline
}

// Reactions returns the active channel's aggregator, nil before the
// first SwitchChannel.
func (g *Gateway) Reactions() *reactions.Aggregator {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.aggregator
}

func (g *Gateway) Presence() *presence.Registry {
	return g.registry
}

func (g *Gateway) Inbox() *notifications.Inbox {
	return g.inbox
}

func (g *Gateway) currentChannel() (models.Channel, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.channel, g.channel.ID != 0
}

func (g *Gateway) currentServerID() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.serverID
}

// route drains one subscription into a handler until it is cancelled.
func (g *Gateway) route(sub *feed.Subscription, apply func(feed.Event)) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		for event := range sub.C {
			apply(event)
		}
	}()
}
