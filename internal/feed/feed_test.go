package feed_test

import (
	"testing"

	"go.uber.org/zap"

	"chatapp-client/internal/feed"
	"chatapp-client/internal/models"
)

func newTestBus() *feed.LocalBus {
	return feed.NewLocalBus(zap.NewNop().Sugar())
}

func TestPublishReachesSubscriber(t *testing.T) {
	bus := newTestBus()
	defer bus.Close()

	sub, err := bus.Subscribe(feed.Topic(feed.TableMessages, 1))
	if err != nil {
		t.Fatalf("Subscribe failed unexpectedly: %v", err)
	}

	want := models.Message{ID: 5, ChannelID: 1, Content: "hello"}
	err = bus.Publish(feed.Topic(feed.TableMessages, 1), feed.Event{
		Type:  feed.EventInsert,
		Table: feed.TableMessages,
		Row:   want,
	})
	if err != nil {
		t.Fatalf("Publish failed unexpectedly: %v", err)
	}

	event := <-sub.C
	got, ok := event.Row.(models.Message)
	if !ok {
		t.Fatalf("Row has type %T, want models.Message", event.Row)
	}
	if got.ID != want.ID || got.Content != want.Content {
		t.Errorf("got message %+v, want %+v", got, want)
	}
}

func TestTopicsAreIsolated(t *testing.T) {
	bus := newTestBus()
	defer bus.Close()

	sub, err := bus.Subscribe(feed.Topic(feed.TableMessages, 1))
	if err != nil {
		t.Fatalf("Subscribe failed unexpectedly: %v", err)
	}

	err = bus.Publish(feed.Topic(feed.TableMessages, 2), feed.Event{
		Type:  feed.EventInsert,
		Table: feed.TableMessages,
		Row:   models.Message{ID: 7, ChannelID: 2},
	})
	if err != nil {
		t.Fatalf("Publish failed unexpectedly: %v", err)
	}

	select {
	case event := <-sub.C:
		t.Errorf("subscriber for channel 1 received event for channel 2: %+v", event)
	default:
	}
}

func TestCancelStopsDeliveryAndClosesChannel(t *testing.T) {
	bus := newTestBus()
	defer bus.Close()

	topic := feed.Topic(feed.TableReactions, 3)
	sub, err := bus.Subscribe(topic)
	if err != nil {
		t.Fatalf("Subscribe failed unexpectedly: %v", err)
	}

	sub.Cancel()

	err = bus.Publish(topic, feed.Event{Type: feed.EventDelete, Table: feed.TableReactions, Row: models.Reaction{MessageID: 1}})
	if err != nil {
		t.Fatalf("Publish failed unexpectedly: %v", err)
	}

	if _, open := <-sub.C; open {
		t.Error("subscription channel delivered an event after Cancel")
	}
}

func TestPerTopicOrdering(t *testing.T) {
	bus := newTestBus()
	defer bus.Close()

	topic := feed.Topic(feed.TableMessages, 9)
	sub, err := bus.Subscribe(topic)
	if err != nil {
		t.Fatalf("Subscribe failed unexpectedly: %v", err)
	}

	for i := int64(1); i <= 10; i++ {
		err := bus.Publish(topic, feed.Event{
			Type:  feed.EventInsert,
			Table: feed.TableMessages,
			Row:   models.Message{ID: i, ChannelID: 9},
		})
		if err != nil {
			t.Fatalf("Publish failed unexpectedly: %v", err)
		}
	}

	for i := int64(1); i <= 10; i++ {
		event := <-sub.C
		msg := event.Row.(models.Message)
		if msg.ID != i {
			t.Fatalf("event %d carries message ID %d, order not preserved", i, msg.ID)
		}
	}
}
