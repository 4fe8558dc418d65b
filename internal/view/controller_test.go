package view

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"despesas/internal/catalog"
	"despesas/internal/core"
	"despesas/internal/feed"
)

var now = time.Date(2024, 2, 15, 10, 0, 0, 0, time.UTC)

func newController(opts ...Option) *Controller {
	opts = append([]Option{WithClock(func() time.Time { return now }), WithLocation(time.UTC)}, opts...)
	return New(catalog.Default(), nil, opts...)
}

func expense(id string, cents int64, category string, date core.Date, user string) core.Expense {
	return core.Expense{
		ID:          id,
		Amount:      core.Money{Cents: cents},
		Description: id,
		Category:    category,
		Date:        date,
		UserID:      user,
		UserName:    user,
	}
}

func sample() []core.Expense {
	return []core.Expense{
		expense("a", 5000, "Mercado", core.NewDate(2024, 2, 10), "Claudio"),
		expense("b", 3000, "Lazer", core.NewDate(2024, 1, 20), "Tailma"),
	}
}

type recorder struct {
	mu    sync.Mutex
	kinds []feed.Kind
	msgs  []string
}

func (r *recorder) Report(kind feed.Kind, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
	r.msgs = append(r.msgs, msg)
}

func TestController_StartsLoading(t *testing.T) {
	c := newController()
	v := c.Current()
	assert.Equal(t, Loading, v.State)
	assert.Equal(t, core.CurrentMonth, v.Mode)
	assert.Equal(t, core.NewDate(2024, 2, 15), v.Today)
}

func TestController_FirstSnapshot(t *testing.T) {
	t.Run("empty snapshot enters Empty", func(t *testing.T) {
		c := newController()
		c.HandleSnapshot(feed.Snapshot{})
		v := c.Current()
		assert.Equal(t, Empty, v.State)
		assert.Zero(t, v.Aggregation.Total.Cents)
		assert.Empty(t, v.Aggregation.ByCategory)
		assert.Empty(t, v.Aggregation.ByPerson)
		assert.Len(t, v.History.Months, core.HistoryMonths)
	})

	t.Run("records enter Ready", func(t *testing.T) {
		c := newController()
		c.HandleSnapshot(feed.Snapshot{Records: sample(), Version: 1})
		v := c.Current()
		assert.Equal(t, Ready, v.State)
		assert.Equal(t, int64(5000), v.Aggregation.Total.Cents)
		assert.Equal(t, map[string]core.Money{"Mercado": {Cents: 5000}}, v.Aggregation.ByCategory)
		assert.Equal(t, map[string]core.Money{"Claudio": {Cents: 5000}}, v.Aggregation.ByPerson)
		assert.Equal(t, uint64(1), v.Version)
	})
}

func TestController_SnapshotReplacesRecords(t *testing.T) {
	c := newController()
	c.HandleSnapshot(feed.Snapshot{Records: sample()})
	c.HandleSnapshot(feed.Snapshot{Records: sample()[:1]})
	assert.Len(t, c.Current().Records, 1)

	c.HandleSnapshot(feed.Snapshot{})
	assert.Equal(t, Empty, c.Current().State)
}

func TestController_ToggleRecomputesAggregationOnly(t *testing.T) {
	c := newController()
	c.HandleSnapshot(feed.Snapshot{Records: sample()})
	history := c.Current().History
	require.Equal(t, 1, c.historyBuilds)

	assert.Equal(t, core.AllTime, c.ToggleMode())
	v := c.Current()
	assert.Equal(t, int64(8000), v.Aggregation.Total.Cents)
	assert.Equal(t, core.AllTime, v.Aggregation.Mode)
	assert.Equal(t, 1, c.historyBuilds)
	assert.Equal(t, history, v.History)

	c.SetMode(core.CurrentMonth)
	assert.Equal(t, int64(5000), c.Current().Aggregation.Total.Cents)
	assert.Equal(t, 1, c.historyBuilds)
}

func TestController_ModeChosenBeforeData(t *testing.T) {
	c := newController(WithMode(core.AllTime))
	c.HandleSnapshot(feed.Snapshot{Records: sample()})
	assert.Equal(t, int64(8000), c.Current().Aggregation.Total.Cents)
}

func TestController_ErrorsKeepData(t *testing.T) {
	rec := &recorder{}
	c := newController(WithReporter(rec))
	c.HandleSnapshot(feed.Snapshot{Records: sample()})

	c.HandleError(feed.NewError(feed.KindPermissionDenied, errors.New("forbidden")))
	v := c.Current()
	assert.Equal(t, Ready, v.State)
	assert.Len(t, v.Records, 2)
	assert.Equal(t, int64(5000), v.Aggregation.Total.Cents)
	require.NotNil(t, v.LastError)
	assert.Contains(t, v.Message, "ERRO DE PERMISSÃO")

	c.HandleError(feed.NewError(feed.KindNotFound, errors.New("gone")))
	c.HandleError(feed.NewError(feed.KindOther, errors.New("reset by peer")))

	require.Len(t, rec.msgs, 3)
	assert.Equal(t, []feed.Kind{feed.KindPermissionDenied, feed.KindNotFound, feed.KindOther}, rec.kinds)
	assert.NotEqual(t, rec.msgs[0], rec.msgs[1])
	assert.Equal(t, "Erro de Conexão: reset by peer", rec.msgs[2])

	// The next good snapshot clears the error.
	c.HandleSnapshot(feed.Snapshot{Records: sample()})
	assert.Nil(t, c.Current().LastError)
	assert.Empty(t, c.Current().Message)
}

func TestController_OfflineIndicator(t *testing.T) {
	c := newController()
	c.HandleSnapshot(feed.Snapshot{Records: sample(), FromCache: true})
	v := c.Current()
	assert.True(t, v.Offline)
	assert.Equal(t, Ready, v.State)
	assert.Equal(t, StatusOffline, v.Status())

	c.HandleSnapshot(feed.Snapshot{Records: sample()})
	assert.Equal(t, StatusOnline, c.Current().Status())
}

func TestController_UpdatesAreLatestWins(t *testing.T) {
	c := newController()
	c.HandleSnapshot(feed.Snapshot{Records: sample(), Version: 1})
	c.HandleSnapshot(feed.Snapshot{Records: sample(), Version: 2})
	c.ToggleMode()

	v := <-c.Updates()
	assert.Equal(t, uint64(2), v.Version)
	assert.Equal(t, core.AllTime, v.Mode)
	select {
	case extra := <-c.Updates():
		t.Fatalf("unexpected queued view %+v", extra)
	default:
	}
}

type stubFeed struct {
	err    error
	sub    *feed.Subscription
	closed chan struct{}
}

func newStubFeed() *stubFeed {
	f := &stubFeed{closed: make(chan struct{})}
	f.sub = feed.NewSubscription("stub", func() { close(f.closed) })
	return f
}

func (f *stubFeed) Subscribe(ctx context.Context, q feed.Query) (*feed.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return f.sub, nil
}

func waitFor(t *testing.T, c *Controller, cond func(View) bool) View {
	t.Helper()
	require.Eventually(t, func() bool { return cond(c.Current()) }, 2*time.Second, 5*time.Millisecond)
	return c.Current()
}

func TestController_RecoveredFeedShowsNoError(t *testing.T) {
	f := newStubFeed()
	c := newController()
	f.sub.Fail(feed.NewError(feed.KindPermissionDenied, errors.New("denied")))
	f.sub.Publish(feed.Snapshot{Records: sample(), Version: 2})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, f) }()

	v := waitFor(t, c, func(v View) bool { return v.Version == 2 })
	assert.Equal(t, Ready, v.State)
	assert.Nil(t, v.LastError)
	assert.Empty(t, v.Message)

	cancel()
	require.NoError(t, <-done)
	assert.Nil(t, c.Current().LastError)
}

func TestController_Run(t *testing.T) {
	f := newStubFeed()
	c := newController()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, f) }()

	f.sub.Publish(feed.Snapshot{Records: sample(), Version: 3})
	v := waitFor(t, c, func(v View) bool { return v.Version == 3 })
	assert.Equal(t, Ready, v.State)

	f.sub.Fail(feed.NewError(feed.KindOther, errors.New("blip")))
	v = waitFor(t, c, func(v View) bool { return v.LastError != nil })
	assert.Equal(t, Ready, v.State)

	cancel()
	require.NoError(t, <-done)
	select {
	case <-f.closed:
	case <-time.After(time.Second):
		t.Fatal("subscription not released")
	}
}

func TestController_RunUnavailable(t *testing.T) {
	rec := &recorder{}
	c := newController(WithReporter(rec))
	f := &stubFeed{err: feed.NewError(feed.KindNotFound, errors.New("no collection"))}

	err := c.Run(context.Background(), f)
	require.Error(t, err)
	assert.Equal(t, feed.KindNotFound, feed.KindOf(err))

	v := c.Current()
	assert.Equal(t, Unavailable, v.State)
	assert.False(t, v.HasData())
	assert.Contains(t, v.Message, "não encontrado")
	assert.Equal(t, []feed.Kind{feed.KindNotFound}, rec.kinds)
}

func TestMessage(t *testing.T) {
	assert.Empty(t, Message(nil))
	assert.Equal(t, "Erro de Conexão: falha desconhecida", Message(&feed.Error{Kind: feed.KindOther}))
	assert.Equal(t, "loading", Loading.String())
	assert.Equal(t, "unavailable", Unavailable.String())
}
