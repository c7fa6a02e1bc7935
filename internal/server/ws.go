package server

import (
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"chatapp-client/internal/apperr"
	"chatapp-client/internal/feed"
	"chatapp-client/internal/permissions"
)

var errUnknownTable = errors.New("unknown table")
var errUnknownAction = errors.New("unknown action")

// wsCommand is what the client sends to repoint its subscriptions while
// navigating: messages and reactions are scoped by channel, presence by
// server. Subscribing a table that already has a subscription replaces
// it, the old one is cancelled first.
type wsCommand struct {
	Action string `json:"action"` // "subscribe" or "unsubscribe"
	Table  string `json:"table"`
	Scope  int64  `json:"scope,string"`
}

type wsClient struct {
	conn *websocket.Conn
	out  chan feed.Event
	wg   sync.WaitGroup

	mutex sync.Mutex
	subs  map[string]*feed.Subscription // keyed by table
}

func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := userID(r)
	h.sugar.Debugf("Connecting user ID [%d] to WebSocket", id)

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.sugar.Error(err)
		return
	}
	defer conn.Close()

	client := &wsClient{
		conn: conn,
		out:  make(chan feed.Event, 64),
		subs: make(map[string]*feed.Subscription),
	}

	// every session follows its own notifications
	if err := h.subscribeClient(client, feed.TableNotifications, id); err != nil {
		h.sugar.Error(err)
		return
	}

	// the writer keeps draining after a write error so routing
	// goroutines never block on a dead connection
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		broken := false
		for event := range client.out {
			if broken {
				continue
			}
			if err := conn.WriteJSON(event); err != nil {
				h.sugar.Debug(err)
				broken = true
			}
		}
	}()

	for {
		var command wsCommand
		if err := conn.ReadJSON(&command); err != nil {
			h.sugar.Debug(err)
			break
		}
		if err := h.handleCommand(r, client, id, command); err != nil {
			h.sugar.Debugf("[%d] ws command rejected: %s", id, err)
		}
	}

	client.cancelAll()
	client.wg.Wait()
	close(client.out)
	<-writerDone

	h.sugar.Debugf("Disconnecting user ID [%d] from WebSocket", id)
}

func (h *Handler) handleCommand(r *http.Request, client *wsClient, id int64, command wsCommand) error {
	switch command.Action {
	case "subscribe":
		switch command.Table {
		case feed.TableMessages, feed.TableReactions:
			channel, err := h.store.Channel(r.Context(), command.Scope)
			if err != nil {
				return err
			}
			if channel.ServerID != 0 {
				if err := h.store.RequirePermission(r.Context(), id, channel.ServerID, permissions.ReadMessages); err != nil {
					return err
				}
			} else {
				member, err := h.store.IsDmMember(r.Context(), channel.ID, id)
				if err != nil {
					return err
				}
				if !member {
					return apperr.ErrPermissionDenied
				}
			}
		case feed.TablePresence:
			if _, err := h.store.Membership(r.Context(), command.Scope, id); err != nil {
				return err
			}
		default:
			return errUnknownTable
		}
		return h.subscribeClient(client, command.Table, command.Scope)
	case "unsubscribe":
		client.cancelTable(command.Table)
		return nil
	default:
		return errUnknownAction
	}
}

// subscribeClient repoints the client's subscription for one table,
// tearing the previous one down before the new topic is joined so no
// stale event can interleave.
func (h *Handler) subscribeClient(client *wsClient, table string, scope int64) error {
	client.cancelTable(table)

	sub, err := h.bus.Subscribe(feed.Topic(table, scope))
	if err != nil {
		return err
	}

	client.mutex.Lock()
	client.subs[table] = sub
	client.mutex.Unlock()

	client.wg.Add(1)
	go func() {
		defer client.wg.Done()
		for event := range sub.C {
			client.out <- event
		}
	}()
	return nil
}

func (c *wsClient) cancelTable(table string) {
	c.mutex.Lock()
	sub := c.subs[table]
	delete(c.subs, table)
	c.mutex.Unlock()

	if sub != nil {
		sub.Cancel()
	}
}

func (c *wsClient) cancelAll() {
	c.mutex.Lock()
	subs := make([]*feed.Subscription, 0, len(c.subs))
	for table, sub := range c.subs {
		subs = append(subs, sub)
		delete(c.subs, table)
	}
	c.mutex.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
}
