package gateway

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
)

type call struct {
	op    string
	id    string
	rec   core.NewExpense
	patch core.Patch
}

type fakeStore struct {
	mu    sync.Mutex
	calls []call
	err   error
	gate  chan struct{}
}

func (s *fakeStore) record(c call) error {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, c)
	return s.err
}

func (s *fakeStore) AddRecord(_ context.Context, rec core.NewExpense) (string, error) {
	if err := s.record(call{op: OpCreate, rec: rec}); err != nil {
		return "", err
	}
	return "new-id", nil
}

func (s *fakeStore) PatchRecord(_ context.Context, id string, p core.Patch) error {
	return s.record(call{op: OpUpdate, id: id, patch: p})
}

func (s *fakeStore) RemoveRecord(_ context.Context, id string) error {
	return s.record(call{op: OpDelete, id: id})
}

func (s *fakeStore) Calls() []call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]call(nil), s.calls...)
}

var (
	claudio = core.User{ID: "claudio", Name: "Claudio"}
	today   = time.Date(2024, 2, 15, 22, 30, 0, 0, time.UTC)
)

func newGateway(store Store, opts ...Option) *Gateway {
	opts = append([]Option{WithClock(func() time.Time { return today }), WithLocation(time.UTC)}, opts...)
	return New(store, catalog.Default(), opts...)
}

func answer(yes bool) Confirmer {
	return ConfirmFunc(func(context.Context, string) (bool, error) { return yes, nil })
}

func TestCreate(t *testing.T) {
	store := &fakeStore{}
	g := newGateway(store)

	p, err := g.Create(context.Background(), claudio, core.Draft{Amount: "12,50", Description: "Pão", Category: "Mercado"})
	require.NoError(t, err)
	require.NoError(t, p.Wait(context.Background()))
	assert.Equal(t, "new-id", p.RecordID())

	calls := store.Calls()
	require.Len(t, calls, 1)
	rec := calls[0].rec
	assert.Equal(t, int64(1250), rec.Amount.Cents)
	assert.Equal(t, "claudio", rec.UserID)
	assert.Equal(t, "Claudio", rec.UserName)
	assert.Equal(t, core.NewDate(2024, 2, 15), rec.Date)
}

func TestCreate_DefaultDateUsesLocation(t *testing.T) {
	store := &fakeStore{}
	tokyo := time.FixedZone("JST", 9*3600)
	g := newGateway(store, WithLocation(tokyo))

	p, err := g.Create(context.Background(), claudio, core.Draft{Amount: "1", Description: "x", Category: "Outros"})
	require.NoError(t, err)
	require.NoError(t, p.Wait(context.Background()))
	assert.Equal(t, core.NewDate(2024, 2, 16), store.Calls()[0].rec.Date)
}

func TestCreate_InvalidMakesNoCall(t *testing.T) {
	tests := []struct {
		name  string
		draft core.Draft
		field string
	}{
		{"empty amount", core.Draft{Amount: "", Description: "x", Category: "Mercado"}, "amount"},
		{"negative amount", core.Draft{Amount: "-3", Description: "x", Category: "Mercado"}, "amount"},
		{"empty description", core.Draft{Amount: "3", Description: "  ", Category: "Mercado"}, "description"},
		{"unknown category", core.Draft{Amount: "3", Description: "x", Category: "Viagem"}, "category"},
		{"bad date", core.Draft{Amount: "3", Description: "x", Category: "Mercado", Date: "2024-13-01"}, "date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			g := newGateway(store)
			p, err := g.Create(context.Background(), claudio, tt.draft)
			require.Error(t, err)
			assert.Nil(t, p)

			var ve *core.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.Empty(t, store.Calls())
		})
	}
}

func TestUpdate(t *testing.T) {
	store := &fakeStore{}
	g := newGateway(store)
	amount, category := "40", "Lazer"

	p, err := g.Update(context.Background(), "e1", core.PatchDraft{Amount: &amount, Category: &category})
	require.NoError(t, err)
	require.NoError(t, p.Wait(context.Background()))

	calls := store.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "e1", calls[0].id)
	assert.Equal(t, int64(4000), calls[0].patch.Amount.Cents)
	assert.Equal(t, "Lazer", *calls[0].patch.Category)
	assert.Nil(t, calls[0].patch.Description)
}

func TestUpdate_Rejects(t *testing.T) {
	store := &fakeStore{}
	g := newGateway(store)

	_, err := g.Update(context.Background(), "e1", core.PatchDraft{})
	assert.ErrorIs(t, err, core.ErrEmptyPatch)

	_, err = g.Update(context.Background(), "", core.PatchDraft{})
	assert.ErrorIs(t, err, ErrEmptyID)
	assert.Empty(t, store.Calls())
}

func TestDelete_RequiresConfirmation(t *testing.T) {
	t.Run("declined", func(t *testing.T) {
		store := &fakeStore{}
		g := newGateway(store, WithConfirmer(answer(false)))
		p, err := g.Delete(context.Background(), "e1")
		assert.ErrorIs(t, err, ErrNotConfirmed)
		assert.Nil(t, p)
		assert.Empty(t, store.Calls())
		assert.False(t, g.InFlight(OpDelete, "e1"))
	})

	t.Run("accepted", func(t *testing.T) {
		store := &fakeStore{}
		var prompt string
		g := newGateway(store, WithConfirmer(ConfirmFunc(func(_ context.Context, p string) (bool, error) {
			prompt = p
			return true, nil
		})))
		p, err := g.Delete(context.Background(), "e1")
		require.NoError(t, err)
		require.NoError(t, p.Wait(context.Background()))
		assert.Equal(t, DeletePrompt, prompt)
		assert.Equal(t, []call{{op: OpDelete, id: "e1"}}, store.Calls())
	})

	t.Run("prompt error", func(t *testing.T) {
		store := &fakeStore{}
		boom := errors.New("tty closed")
		g := newGateway(store, WithConfirmer(ConfirmFunc(func(context.Context, string) (bool, error) { return false, boom })))
		_, err := g.Delete(context.Background(), "e1")
		assert.ErrorIs(t, err, boom)
		assert.Empty(t, store.Calls())
	})

	t.Run("no confirmer", func(t *testing.T) {
		g := newGateway(&fakeStore{})
		_, err := g.Delete(context.Background(), "e1")
		assert.ErrorIs(t, err, ErrNoConfirmer)
	})
}

func TestInFlightBlocksDuplicates(t *testing.T) {
	store := &fakeStore{gate: make(chan struct{})}
	g := newGateway(store, WithConfirmer(answer(true)))

	p, err := g.Delete(context.Background(), "e1")
	require.NoError(t, err)
	assert.True(t, g.InFlight(OpDelete, "e1"))

	_, err = g.Delete(context.Background(), "e1")
	assert.ErrorIs(t, err, ErrInFlight)

	// Other triggers stay usable.
	other, err := g.Delete(context.Background(), "e2")
	require.NoError(t, err)

	close(store.gate)
	require.NoError(t, p.Wait(context.Background()))
	require.NoError(t, other.Wait(context.Background()))
	assert.False(t, g.InFlight(OpDelete, "e1"))
	assert.Len(t, store.Calls(), 2)
}

func TestRequestOutlivesCallerContext(t *testing.T) {
	store := &fakeStore{gate: make(chan struct{})}
	g := newGateway(store)

	ctx, cancel := context.WithCancel(context.Background())
	p, err := g.Create(ctx, claudio, core.Draft{Amount: "5", Description: "x", Category: "Gas"})
	require.NoError(t, err)
	cancel()
	close(store.gate)

	require.NoError(t, p.Wait(context.Background()))
	assert.Len(t, store.Calls(), 1)
}

func TestFailuresAreReported(t *testing.T) {
	boom := errors.New("store refused")
	store := &fakeStore{err: boom}
	results := make(chan Result, 1)
	g := newGateway(store, OnSettled(func(r Result) { results <- r }))

	p, err := g.Create(context.Background(), claudio, core.Draft{Amount: "5", Description: "x", Category: "Gas"})
	require.NoError(t, err)
	assert.ErrorIs(t, p.Wait(context.Background()), boom)

	res := <-results
	assert.Equal(t, OpCreate, res.Op)
	assert.ErrorIs(t, res.Err, boom)
	assert.False(t, g.InFlight(OpCreate, ""))
}

func TestWait(t *testing.T) {
	store := &fakeStore{gate: make(chan struct{})}
	g := newGateway(store)
	_, err := g.Create(context.Background(), claudio, core.Draft{Amount: "5", Description: "x", Category: "Gas"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, g.Wait(ctx), context.DeadlineExceeded)

	close(store.gate)
	require.NoError(t, g.Wait(context.Background()))
}
