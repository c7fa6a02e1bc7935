// Package feed is the row change-feed: the store publishes an event for
// every committed insert/update/delete and consumers subscribe per topic.
// Delivery is ordered within one topic, with no guarantee across topics.
package feed

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var errBusClosed = errors.New("feed bus is closed")

type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

const (
	TableMessages      = "messages"
	TableReactions     = "reactions"
	TablePresence      = "presence"
	TableNotifications = "notifications"
	TableMembers       = "server_members"
	TableChannels      = "channels"
	TableServers       = "servers"
)

// Event carries the changed row. Row holds the concrete struct from
// internal/models matching Table; loosely-shaped data never crosses this
// boundary.
type Event struct {
	Type  EventType `json:"type"`
	Table string    `json:"table"`
	Row   any       `json:"row"`
}

// Topic scopes a table to one id: messages and reactions by channel,
// presence by server, notifications by recipient.
func Topic(table string, scope int64) string {
	return fmt.Sprintf("%s:%d", table, scope)
}

// Subscription is one consumer's handle on a topic. Cancel removes the
// subscriber synchronously: once it returns, no further events are
// delivered and C is closed.
type Subscription struct {
	C      <-chan Event
	topic  string
	cancel func()
}

func (s *Subscription) Cancel() {
	s.cancel()
}

func (s *Subscription) Topic() string {
	return s.topic
}

type Bus interface {
	Subscribe(topic string) (*Subscription, error)
	Publish(topic string, event Event) error
	Close() error
}

// subscriberBuffer bounds how far one slow consumer can lag before
// events are dropped for it.
const subscriberBuffer = 256

func warnDropped(sugar *zap.SugaredLogger, topic string) {
	sugar.Warnf("Dropping event for slow subscriber on topic [%s]", topic)
}
