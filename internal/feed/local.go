package feed

import (
	"sync"

	"go.uber.org/zap"
)

// LocalBus fans events out in-process. It is the bus for self-contained
// deployments and for tests.
type LocalBus struct {
	mutex       sync.RWMutex
	subscribers map[string][]*localSubscriber
	closed      bool
	sugar       *zap.SugaredLogger
}

type localSubscriber struct {
	ch chan Event
}

func NewLocalBus(sugar *zap.SugaredLogger) *LocalBus {
	return &LocalBus{
		subscribers: make(map[string][]*localSubscriber),
		sugar:       sugar,
	}
}

func (b *LocalBus) Subscribe(topic string) (*Subscription, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.closed {
		return nil, errBusClosed
	}

	sub := &localSubscriber{ch: make(chan Event, subscriberBuffer)}
	b.subscribers[topic] = append(b.subscribers[topic], sub)

	b.sugar.Debugf("New local subscriber on topic [%s]", topic)

	return &Subscription{
		C:     sub.ch,
		topic: topic,
		cancel: func() {
			b.remove(topic, sub)
		},
	}, nil
}

func (b *LocalBus) remove(topic string, sub *localSubscriber) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	subs := b.subscribers[topic]
	for i := range subs {
		if subs[i] == sub {
			subs[i] = subs[len(subs)-1]
			b.subscribers[topic] = subs[:len(subs)-1]
			close(sub.ch)
			break
		}
	}

	// drop the topic once nobody listens to it
	if len(b.subscribers[topic]) == 0 {
		delete(b.subscribers, topic)
	}
}

func (b *LocalBus) Publish(topic string, event Event) error {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	if b.closed {
		return errBusClosed
	}

	for _, sub := range b.subscribers[topic] {
		select {
		case sub.ch <- event:
		default:
			warnDropped(b.sugar, topic)
		}
	}
	return nil
}

func (b *LocalBus) Close() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for topic, subs := range b.subscribers {
		for _, sub := range subs {
			close(sub.ch)
		}
		delete(b.subscribers, topic)
	}
	return nil
}
