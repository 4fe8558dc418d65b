// Package gateway submits expense mutations to the document store.
//
// Input is validated locally before any request is made. Requests are
// fire-and-forget: each call returns a Pending handle immediately and the
// live feed, not the response, is what updates the dashboard.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"despesas/internal/core"
	"despesas/internal/log"
)

// DeletePrompt is the question asked before a record is removed.
const DeletePrompt = "Apagar despesa?"

const defaultTimeout = 10 * time.Second

const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

var (
	ErrInFlight     = errors.New("request already in flight")
	ErrNotConfirmed = errors.New("deletion not confirmed")
	ErrNoConfirmer  = errors.New("no confirmer configured")
	ErrEmptyID      = errors.New("empty record id")
)

// Store is the remote document collection.
type Store interface {
	AddRecord(ctx context.Context, rec core.NewExpense) (string, error)
	PatchRecord(ctx context.Context, id string, patch core.Patch) error
	RemoveRecord(ctx context.Context, id string) error
}

// Confirmer asks the user a blocking yes/no question.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// Result describes a settled request.
type Result struct {
	Op       string
	RecordID string
	Err      error
	Duration time.Duration
}

// Gateway validates and dispatches mutations.
type Gateway struct {
	store     Store
	cats      core.Categories
	confirmer Confirmer
	logger    *log.Logger
	timeout   time.Duration
	now       func() time.Time
	loc       *time.Location
	onSettled func(Result)

	mu       sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup
}

type Option func(*Gateway)

func WithConfirmer(c Confirmer) Option {
	return func(g *Gateway) { g.confirmer = c }
}

// WithTimeout bounds each store request.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// WithLocation sets the zone that decides the default expense date.
func WithLocation(loc *time.Location) Option {
	return func(g *Gateway) {
		if loc != nil {
			g.loc = loc
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// OnSettled registers a hook run after every request finishes.
func OnSettled(fn func(Result)) Option {
	return func(g *Gateway) { g.onSettled = fn }
}

func New(store Store, cats core.Categories, opts ...Option) *Gateway {
	g := &Gateway{
		store:    store,
		cats:     cats,
		logger:   log.Discard(),
		timeout:  defaultTimeout,
		now:      time.Now,
		loc:      time.Local,
		inflight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.WithComponent(log.ComponentGateway)
	return g
}

// Create validates the draft for user and submits it. Invalid input
// returns the validation errors and makes no request.
func (g *Gateway) Create(ctx context.Context, user core.User, d core.Draft) (*Pending, error) {
	today := core.DateOf(g.now().In(g.loc))
	rec, err := d.Parse(g.cats, user, today)
	if err != nil {
		g.logger.Fields(ctx, slog.LevelInfo, "create rejected", log.NewFields().
			WithOperation(log.OpValidate).
			WithErrorType(log.ErrorTypeValidation).
			WithError(err))
		return nil, err
	}
	return g.dispatch(ctx, OpCreate, "", func(ctx context.Context) (string, error) {
		return g.store.AddRecord(ctx, rec)
	})
}

// Update validates the partial edit and submits it.
func (g *Gateway) Update(ctx context.Context, id string, d core.PatchDraft) (*Pending, error) {
	if id == "" {
		return nil, ErrEmptyID
	}
	patch, err := d.Parse(g.cats)
	if err != nil {
		return nil, err
	}
	return g.dispatch(ctx, OpUpdate, id, func(ctx context.Context) (string, error) {
		return id, g.store.PatchRecord(ctx, id, patch)
	})
}

// Delete asks for confirmation and, only if granted, submits the removal.
func (g *Gateway) Delete(ctx context.Context, id string) (*Pending, error) {
	if id == "" {
		return nil, ErrEmptyID
	}
	if g.confirmer == nil {
		return nil, ErrNoConfirmer
	}
	// Hold the trigger while the prompt is open so it cannot be answered twice.
	key := triggerKey(OpDelete, id)
	if !g.acquire(key) {
		return nil, ErrInFlight
	}
	ok, err := g.confirmer.Confirm(ctx, DeletePrompt)
	if err != nil || !ok {
		g.release(key)
		if err != nil {
			return nil, fmt.Errorf("confirm deletion: %w", err)
		}
		return nil, ErrNotConfirmed
	}
	return g.start(ctx, OpDelete, id, key, func(ctx context.Context) (string, error) {
		return id, g.store.RemoveRecord(ctx, id)
	}), nil
}

// InFlight reports whether the trigger for op on id is busy. Create ignores id.
func (g *Gateway) InFlight(op, id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.inflight[triggerKey(op, id)]
	return ok
}

// Wait blocks until every dispatched request has settled or ctx ends.
func (g *Gateway) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func triggerKey(op, id string) string {
	if op == OpCreate || id == "" {
		return op
	}
	return op + ":" + id
}

func (g *Gateway) acquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inflight[key]; busy {
		return false
	}
	g.inflight[key] = struct{}{}
	return true
}

func (g *Gateway) release(key string) {
	g.mu.Lock()
	delete(g.inflight, key)
	g.mu.Unlock()
}

func (g *Gateway) dispatch(ctx context.Context, op, id string, call func(context.Context) (string, error)) (*Pending, error) {
	key := triggerKey(op, id)
	if !g.acquire(key) {
		return nil, ErrInFlight
	}
	return g.start(ctx, op, id, key, call), nil
}

// start runs call detached from the caller's cancellation. The trigger key
// is released when the request settles.
func (g *Gateway) start(ctx context.Context, op, id, key string, call func(context.Context) (string, error)) *Pending {
	p := newPending(op, id)
	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer cancel()

		started := g.now()
		recordID, err := call(reqCtx)
		res := Result{Op: op, RecordID: recordID, Err: err, Duration: g.now().Sub(started)}

		g.release(key)
		p.settle(recordID, err)
		g.log(reqCtx, res)
		if g.onSettled != nil {
			g.onSettled(res)
		}
	}()
	return p
}

func (g *Gateway) log(ctx context.Context, res Result) {
	fields := log.NewFields().
		WithOperation(res.Op).
		With(log.FieldExpenseID, res.RecordID).
		With(log.FieldDuration, res.Duration.Milliseconds())
	if res.Err != nil {
		g.logger.Fields(ctx, slog.LevelError, "mutation failed", fields.WithError(res.Err))
		return
	}
	g.logger.Fields(ctx, slog.LevelDebug, "mutation sent", fields)
}
