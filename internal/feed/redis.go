package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"chatapp-client/internal/models"
)

// RedisBus distributes events across processes through Redis pub/sub.
// Used when the deployment is not self-contained, so several gateway
// instances observe the same change feed.
type RedisBus struct {
	client *redis.Client
	ctx    context.Context
	cancel context.CancelFunc
	sugar  *zap.SugaredLogger
}

func NewRedisBus(client *redis.Client, sugar *zap.SugaredLogger) *RedisBus {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisBus{
		client: client,
		ctx:    ctx,
		cancel: cancel,
		sugar:  sugar,
	}
}

// envelope is the wire form of an Event. Row stays raw until the table
// is known, then decodes into the matching models struct.
type envelope struct {
	Type  EventType       `json:"type"`
	Table string          `json:"table"`
	Row   json.RawMessage `json:"row"`
}

func (b *RedisBus) Subscribe(topic string) (*Subscription, error) {
	pubsub := b.client.Subscribe(b.ctx, topic)

	// forces the subscription to be established before any Publish that
	// follows this call
	if _, err := pubsub.Receive(b.ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	out := make(chan Event, subscriberBuffer)

	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			event, err := decodeEnvelope([]byte(msg.Payload))
			if err != nil {
				b.sugar.Errorf("Discarding malformed event on topic [%s]: %v", topic, err)
				continue
			}
			select {
			case out <- event:
			default:
				warnDropped(b.sugar, topic)
			}
		}
	}()

	b.sugar.Debugf("New redis subscriber on topic [%s]", topic)

	return &Subscription{
		C:     out,
		topic: topic,
		cancel: func() {
			if err := pubsub.Unsubscribe(b.ctx, topic); err != nil {
				b.sugar.Error(err)
			}
			if err := pubsub.Close(); err != nil {
				b.sugar.Error(err)
			}
		},
	}, nil
}

func (b *RedisBus) Publish(topic string, event Event) error {
	rowBytes, err := json.Marshal(event.Row)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(envelope{Type: event.Type, Table: event.Table, Row: rowBytes})
	if err != nil {
		return err
	}

	return b.client.Publish(b.ctx, topic, payload).Err()
}

func (b *RedisBus) Close() error {
	b.cancel()
	return nil
}

// decodeEnvelope maps a wire event back into a strictly-typed row. Events
// for tables nobody decodes are rejected rather than passed through loose.
func decodeEnvelope(payload []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Event{}, err
	}

	var row any
	switch env.Table {
	case TableMessages:
		row = &models.Message{}
	case TableReactions:
		row = &models.Reaction{}
	case TablePresence:
		row = &models.PresenceRecord{}
	case TableNotifications:
		row = &models.Notification{}
	case TableMembers:
		row = &models.Membership{}
	case TableChannels:
		row = &models.Channel{}
	case TableServers:
		row = &models.Server{}
	default:
		return Event{}, fmt.Errorf("unknown table [%s]", env.Table)
	}

	if err := json.Unmarshal(env.Row, row); err != nil {
		return Event{}, err
	}

	return Event{Type: env.Type, Table: env.Table, Row: deref(row)}, nil
}

func deref(row any) any {
	switch v := row.(type) {
	case *models.Message:
		return *v
	case *models.Reaction:
		return *v
	case *models.PresenceRecord:
		return *v
	case *models.Notification:
		return *v
	case *models.Membership:
		return *v
	case *models.Channel:
		return *v
	case *models.Server:
		return *v
	}
	return row
}
