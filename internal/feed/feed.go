// Package feed delivers live snapshots of the expense collection.
//
// A subscriber receives the complete ordered record set every time the
// collection changes, plus typed errors when the store refuses access.
// Delivery is latest-wins: a slow subscriber skips intermediate snapshots
// and only ever sees the newest one.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"despesas/internal/core"
)

// Kind classifies feed errors.
type Kind string

const (
	KindPermissionDenied Kind = "permission-denied"
	KindNotFound         Kind = "not-found"
	KindOther            Kind = "other"
)

// Error is a feed failure the client should surface to the user.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with a kind.
func NewError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the kind of a feed error, or KindOther.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindOther
}

// Snapshot is the full record set at one point in time. FromCache marks a
// copy served while the authoritative store is unreachable.
type Snapshot struct {
	Records   []core.Expense
	FromCache bool
	Version   uint64
	Taken     time.Time
}

// Event carries exactly one of Snapshot or Err.
type Event struct {
	Snapshot *Snapshot
	Err      *Error
}

const (
	CollectionExpenses = "expenses"
	OrderDateDesc      = "date_desc"
)

var ErrClosed = errors.New("subscription closed")

// Query selects the collection and ordering to subscribe to.
type Query struct {
	Collection string
	OrderBy    string
}

// ExpensesByDate is the only query the application issues.
func ExpensesByDate() Query {
	return Query{Collection: CollectionExpenses, OrderBy: OrderDateDesc}
}

// Validate rejects unknown collections as not-found.
func (q Query) Validate() error {
	if q.Collection != CollectionExpenses {
		return NewError(KindNotFound, fmt.Errorf("unknown collection %q", q.Collection))
	}
	if q.OrderBy != "" && q.OrderBy != OrderDateDesc {
		return NewError(KindOther, fmt.Errorf("unsupported ordering %q", q.OrderBy))
	}
	return nil
}

// Feed is a source of live collection snapshots. The subscription ends
// when ctx is cancelled or Close is called.
type Feed interface {
	Subscribe(ctx context.Context, q Query) (*Subscription, error)
}

// Subscription is a latest-wins mailbox of feed events.
type Subscription struct {
	id string

	mu      sync.Mutex
	snap    *Snapshot
	err     *Error
	closed  bool
	signal  chan struct{}
	done    chan struct{}
	onClose func()
	once    sync.Once
}

// NewSubscription creates an open subscription. onClose runs once when it
// is closed.
func NewSubscription(id string, onClose func()) *Subscription {
	return &Subscription{
		id:      id,
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

func (s *Subscription) ID() string { return s.id }

// Publish stores the snapshot, replacing any undelivered snapshot or error.
// A pending error is older than snap and no longer describes the feed.
func (s *Subscription) Publish(snap Snapshot) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.snap = &snap
	s.err = nil
	s.mu.Unlock()
	s.notify()
}

// Fail stores an error, replacing any undelivered one. A pending snapshot
// is kept and delivered first.
func (s *Subscription) Fail(err *Error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.err = err
	s.mu.Unlock()
	s.notify()
}

func (s *Subscription) notify() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// Signal fires when events are waiting to be drained.
func (s *Subscription) Signal() <-chan struct{} { return s.signal }

// Done is closed when the subscription is closed.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Drain takes the pending events in arrival order.
func (s *Subscription) Drain() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	if s.snap != nil {
		out = append(out, Event{Snapshot: s.snap})
		s.snap = nil
	}
	if s.err != nil {
		out = append(out, Event{Err: s.err})
		s.err = nil
	}
	return out
}

// Next blocks until an event is available. It returns ErrClosed after
// Close and ctx.Err() when ctx ends.
func (s *Subscription) Next(ctx context.Context) (Event, error) {
	for {
		s.mu.Lock()
		switch {
		case s.snap != nil:
			ev := Event{Snapshot: s.snap}
			s.snap = nil
			s.mu.Unlock()
			return ev, nil
		case s.err != nil:
			ev := Event{Err: s.err}
			s.err = nil
			s.mu.Unlock()
			return ev, nil
		case s.closed:
			s.mu.Unlock()
			return Event{}, ErrClosed
		}
		s.mu.Unlock()

		select {
		case <-s.signal:
		case <-s.done:
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}
}

// Close releases the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.snap, s.err = nil, nil
		s.mu.Unlock()
		close(s.done)
		if s.onClose != nil {
			s.onClose()
		}
	})
}
