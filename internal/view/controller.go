package view

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"despesas/internal/core"
	"despesas/internal/feed"
	"despesas/internal/log"
)

// Reporter surfaces feed errors to the user.
type Reporter interface {
	Report(kind feed.Kind, message string)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(kind feed.Kind, message string)

func (f ReporterFunc) Report(kind feed.Kind, message string) { f(kind, message) }

// Controller serializes snapshot, error and mode events into View updates.
type Controller struct {
	cats     core.Categories
	logger   *log.Logger
	reporter Reporter
	now      func() time.Time
	loc      *time.Location

	mu            sync.Mutex
	view          View
	historyBuilds int
	updates       chan View
}

type Option func(*Controller)

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithLocation sets the zone used to decide which day and month it is.
func WithLocation(loc *time.Location) Option {
	return func(c *Controller) {
		if loc != nil {
			c.loc = loc
		}
	}
}

func WithReporter(r Reporter) Option {
	return func(c *Controller) { c.reporter = r }
}

// WithMode sets the initial view mode.
func WithMode(m core.ViewMode) Option {
	return func(c *Controller) { c.view.Mode = m }
}

func New(cats core.Categories, logger *log.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = log.Discard()
	}
	c := &Controller{
		cats:    cats,
		logger:  logger.WithComponent(log.ComponentView),
		now:     time.Now,
		loc:     time.Local,
		view:    View{State: Loading, Mode: core.CurrentMonth},
		updates: make(chan View, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.view.Today = c.today()
	return c
}

func (c *Controller) today() core.Date {
	return core.DateOf(c.now().In(c.loc))
}

// Current returns the latest view.
func (c *Controller) Current() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// Updates delivers the newest view after each change. Views that were not
// received before the next change are dropped.
func (c *Controller) Updates() <-chan View { return c.updates }

// HandleSnapshot replaces the record set and recomputes everything.
func (c *Controller) HandleSnapshot(snap feed.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	today := c.today()
	v := c.view
	v.Today = today
	v.Records = snap.Records
	v.Aggregation = core.Aggregate(snap.Records, v.Mode, today)
	v.History = core.BuildHistory(snap.Records, c.cats, today)
	c.historyBuilds++
	v.Offline = snap.FromCache
	v.Version = snap.Version
	v.UpdatedAt = c.now()
	v.LastError = nil
	v.Message = ""
	if len(snap.Records) == 0 {
		v.State = Empty
	} else {
		v.State = Ready
	}
	c.view = v

	c.logger.Debug("snapshot applied",
		log.FieldRecords, len(snap.Records),
		log.FieldFromCache, snap.FromCache,
		log.FieldVersion, snap.Version,
		log.FieldMode, string(v.Mode))
	c.publishLocked()
}

// HandleError records a feed error without touching the data already held.
func (c *Controller) HandleError(err *feed.Error) {
	if err == nil {
		return
	}
	msg := Message(err)

	c.mu.Lock()
	c.view.LastError = err
	c.view.Message = msg
	c.publishLocked()
	c.mu.Unlock()

	c.logger.Warn("feed error",
		log.FieldErrorType, string(err.Kind),
		log.FieldError, err.Error())
	if c.reporter != nil {
		c.reporter.Report(err.Kind, msg)
	}
}

// SetMode changes the view mode and recomputes the aggregation only.
func (c *Controller) SetMode(m core.ViewMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setModeLocked(m)
}

// ToggleMode flips the view mode and returns the new one.
func (c *Controller) ToggleMode() core.ViewMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.view.Mode.Toggle()
	c.setModeLocked(m)
	return m
}

func (c *Controller) setModeLocked(m core.ViewMode) {
	if m == c.view.Mode {
		return
	}
	c.view.Mode = m
	if c.view.HasData() {
		c.view.Today = c.today()
		c.view.Aggregation = core.Aggregate(c.view.Records, m, c.view.Today)
	}
	c.publishLocked()
}

func (c *Controller) publishLocked() {
	select {
	case <-c.updates:
	default:
	}
	c.updates <- c.view
}

// Run subscribes to the expense collection and applies events until ctx
// ends. The subscription is always released on return. A subscription
// that cannot be opened leaves the controller Unavailable.
func (c *Controller) Run(ctx context.Context, f feed.Feed) error {
	sub, err := f.Subscribe(ctx, feed.ExpensesByDate())
	if err != nil {
		c.fail(err)
		return fmt.Errorf("subscribe to expenses: %w", err)
	}
	defer sub.Close()

	c.logger.Fields(ctx, slog.LevelInfo, "subscribed", log.NewFields().
		WithOperation(log.OpSubscribe).
		With(log.FieldSubscriber, sub.ID()))

	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			if errors.Is(err, feed.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		switch {
		case ev.Snapshot != nil:
			c.HandleSnapshot(*ev.Snapshot)
		case ev.Err != nil:
			c.HandleError(ev.Err)
		}
	}
}

func (c *Controller) fail(err error) {
	var fe *feed.Error
	if !errors.As(err, &fe) {
		fe = feed.NewError(feed.KindOther, err)
	}
	msg := Message(fe)

	c.mu.Lock()
	c.view.State = Unavailable
	c.view.LastError = fe
	c.view.Message = msg
	c.publishLocked()
	c.mu.Unlock()

	c.logger.Error("subscription unavailable", log.FieldError, err.Error())
	if c.reporter != nil {
		c.reporter.Report(fe.Kind, msg)
	}
}
