package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"despesas/internal/core"
	"despesas/internal/log"
	"despesas/internal/storage"
)

// Source lists the whole collection in feed order.
type Source interface {
	List(ctx context.Context) ([]core.Expense, error)
}

// Recorder observes hub activity. metrics.Metrics implements it.
type Recorder interface {
	SubscriberAdded()
	SubscriberRemoved()
	SnapshotPublished(fromCache bool)
	FeedError(kind string)
}

type nopRecorder struct{}

func (nopRecorder) SubscriberAdded()       {}
func (nopRecorder) SubscriberRemoved()     {}
func (nopRecorder) SnapshotPublished(bool) {}
func (nopRecorder) FeedError(string)       {}

// Hub is the server side of the feed. It re-reads the collection after
// every Notify and fans the snapshot out to all subscribers.
type Hub struct {
	source   Source
	logger   *log.Logger
	recorder Recorder
	now      func() time.Time

	mu      sync.RWMutex
	subs    map[string]*Subscription
	last    *Snapshot
	lastErr *Error
	version uint64

	refresh chan struct{}
}

// HubOption customizes a Hub.
type HubOption func(*Hub)

func WithRecorder(r Recorder) HubOption {
	return func(h *Hub) {
		if r != nil {
			h.recorder = r
		}
	}
}

func WithHubClock(now func() time.Time) HubOption {
	return func(h *Hub) { h.now = now }
}

func NewHub(source Source, logger *log.Logger, opts ...HubOption) *Hub {
	if logger == nil {
		logger = log.Discard()
	}
	h := &Hub{
		source:   source,
		logger:   logger.WithComponent(log.ComponentFeed),
		recorder: nopRecorder{},
		now:      time.Now,
		subs:     make(map[string]*Subscription),
		refresh:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers a subscriber. It immediately receives the latest
// snapshot when one exists; otherwise a refresh is scheduled. While the
// last read failed the snapshot is replayed as cached, followed by the error.
func (h *Hub) Subscribe(ctx context.Context, q Query) (*Subscription, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	sub := NewSubscription(id, func() { h.unregister(id) })

	h.mu.Lock()
	h.subs[id] = sub
	last, lastErr := h.last, h.lastErr
	h.mu.Unlock()
	h.recorder.SubscriberAdded()

	h.logger.DebugContext(ctx, "Feed subscriber registered", log.FieldSubscriber, id)

	if last != nil {
		snap := *last
		snap.FromCache = lastErr != nil
		sub.Publish(snap)
	}
	if lastErr != nil {
		sub.Fail(lastErr)
	}
	if last == nil {
		h.Notify()
	}

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.Done():
		}
	}()
	return sub, nil
}

func (h *Hub) unregister(id string) {
	h.mu.Lock()
	_, ok := h.subs[id]
	delete(h.subs, id)
	h.mu.Unlock()
	if ok {
		h.recorder.SubscriberRemoved()
		h.logger.Debug("Feed subscriber released", log.FieldSubscriber, id)
	}
}

// Notify schedules a refresh. Bursts of notifications collapse into one.
func (h *Hub) Notify() {
	select {
	case h.refresh <- struct{}{}:
	default:
	}
}

// Run performs scheduled refreshes until ctx ends.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return nil
		case <-h.refresh:
			h.Refresh(ctx)
		}
	}
}

// Refresh re-reads the collection and broadcasts the result.
func (h *Hub) Refresh(ctx context.Context) {
	records, err := h.source.List(ctx)
	if err != nil {
		h.fail(ctx, err)
		return
	}
	if records == nil {
		records = []core.Expense{}
	}

	h.mu.Lock()
	h.version++
	snap := Snapshot{Records: records, Version: h.version, Taken: h.now()}
	h.last = &snap
	h.lastErr = nil
	subs := h.subscribersLocked()
	h.mu.Unlock()

	for _, s := range subs {
		s.Publish(snap)
	}
	h.recorder.SnapshotPublished(false)
	h.logger.Fields(ctx, slog.LevelDebug, "Snapshot published",
		log.NewFields().WithOperation(log.OpSnapshot).WithSnapshot(len(records), false, snap.Version))
}

// fail classifies a source error. Access and missing-collection errors are
// reported; anything else is treated as transient and answered with the
// last good snapshot marked as cached.
func (h *Hub) fail(ctx context.Context, err error) {
	var kind Kind
	switch {
	case errors.Is(err, storage.ErrPermission):
		kind = KindPermissionDenied
	case errors.Is(err, storage.ErrCollectionMissing):
		kind = KindNotFound
	default:
		kind = KindOther
	}

	fe := NewError(kind, err)

	h.mu.Lock()
	last := h.last
	if kind != KindOther {
		h.lastErr = fe
	}
	subs := h.subscribersLocked()
	h.mu.Unlock()

	h.recorder.FeedError(string(kind))
	h.logger.ErrorContext(ctx, "Collection read failed",
		log.FieldError, err, log.FieldErrorType, string(kind))

	if kind == KindOther && last != nil {
		cached := *last
		cached.FromCache = true
		for _, s := range subs {
			s.Publish(cached)
		}
		h.recorder.SnapshotPublished(true)
		return
	}
	for _, s := range subs {
		s.Fail(fe)
	}
}

// Latest returns the most recent snapshot.
func (h *Hub) Latest() (Snapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.last == nil {
		return Snapshot{}, false
	}
	return *h.last, true
}

// Subscribers returns the number of open subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) subscribersLocked() []*Subscription {
	out := make([]*Subscription, 0, len(h.subs))
	for _, s := range h.subs {
		out = append(out, s)
	}
	return out
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	subs := h.subscribersLocked()
	h.mu.RUnlock()
	for _, s := range subs {
		s.Close()
	}
}
