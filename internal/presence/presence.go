package presence

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"chatapp-client/internal/feed"
	"chatapp-client/internal/models"
)

// Writer persists the local user's presence so other members see it.
type Writer interface {
	UpsertPresence(ctx context.Context, record models.PresenceRecord) error
}

// Registry tracks the last known status of every member: last write
// wins by the record's LastSeen, so replayed and out-of-order feed
// events converge to the same state. The local user's own lifecycle
// transitions are written through before being applied.
type Registry struct {
	sugar     *zap.SugaredLogger
	writer    Writer
	selfID    int64
	heartbeat time.Duration

	mu      sync.Mutex
	records map[int64]models.PresenceRecord
	self    string

	stopOnce sync.Once
	stop     chan struct{}
}

func NewRegistry(writer Writer, selfID int64, heartbeat time.Duration, sugar *zap.SugaredLogger) *Registry {
	return &Registry{
		sugar:     sugar,
		writer:    writer,
		selfID:    selfID,
		heartbeat: heartbeat,
		records:   make(map[int64]models.PresenceRecord),
		self:      models.PresenceOffline,
		stop:      make(chan struct{}),
	}
}

// Prime replaces the registry contents with a server snapshot.
func (r *Registry) Prime(records []models.PresenceRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.records)
	for _, record := range records {
		r.records[record.UserID] = record
	}
}

// Apply folds one feed event in. Records older than what the registry
// already holds are dropped.
func (r *Registry) Apply(event feed.Event) {
	record, ok := event.Row.(models.PresenceRecord)
	if !ok {
		r.sugar.Warnf("presence event carried a %T row", event.Row)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.records[record.UserID]
	if ok && record.LastSeen.Before(existing.LastSeen) {
		r.sugar.Debugf("[%d] dropping stale presence update", record.UserID)
		return
	}
	r.records[record.UserID] = record
}

// SetVisible marks the local user online, on login or when the window
// regains focus.
func (r *Registry) SetVisible(ctx context.Context) error {
	return r.setSelf(ctx, models.PresenceOnline)
}

// SetHidden marks the local user idle when the window loses focus.
func (r *Registry) SetHidden(ctx context.Context) error {
	return r.setSelf(ctx, models.PresenceIdle)
}

// Shutdown writes a final offline record and stops the heartbeat.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.stopOnce.Do(func() { close(r.stop) })
	return r.setSelf(ctx, models.PresenceOffline)
}

func (r *Registry) setSelf(ctx context.Context, status string) error {
	record := models.PresenceRecord{
		UserID:   r.selfID,
		Status:   status,
		LastSeen: time.Now().UTC(),
	}
	if err := r.writer.UpsertPresence(ctx, record); err != nil {
		return err
	}

	r.mu.Lock()
	r.self = status
	r.records[r.selfID] = record
	r.mu.Unlock()

	r.sugar.Debugf("[%d] presence set to %s", r.selfID, status)
	return nil
}

// StartHeartbeat periodically rewrites the current status so LastSeen
// keeps moving while the client is running. Does nothing when the
// registry was built with a zero interval.
func (r *Registry) StartHeartbeat(ctx context.Context) {
	if r.heartbeat <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(r.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-r.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.mu.Lock()
				status := r.self
				r.mu.Unlock()
				if err := r.setSelf(ctx, status); err != nil {
					r.sugar.Warnf("presence heartbeat failed: %s", err)
				}
			}
		}
	}()
}

// Status returns the last known status of a member, offline when
// nothing has been heard about them.
func (r *Registry) Status(userID int64) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[userID]
	if !ok {
		return models.PresenceOffline
	}
	return record.Status
}

// Snapshot returns a copy of every known record.
func (r *Registry) Snapshot() []models.PresenceRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.PresenceRecord, 0, len(r.records))
	for _, record := range r.records {
		out = append(out, record)
	}
	return out
}
