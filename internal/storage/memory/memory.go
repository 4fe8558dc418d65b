// Package memory is an in-process expense collection, used for local runs
// and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"despesas/internal/core"
	"despesas/internal/storage"
)

type Store struct {
	mu    sync.Mutex
	opts  storage.Options
	items map[string]core.Expense
}

func New(opts ...storage.Option) *Store {
	return &Store{opts: storage.BuildOptions(opts...), items: make(map[string]core.Expense)}
}

// NewSeeded returns a store pre-populated with records, kept as given.
func NewSeeded(records []core.Expense, opts ...storage.Option) *Store {
	s := New(opts...)
	for _, e := range records {
		s.items[e.ID] = e
	}
	return s
}

func (s *Store) List(_ context.Context) ([]core.Expense, error) {
	s.mu.Lock()
	out := make([]core.Expense, 0, len(s.items))
	for _, e := range s.items {
		out = append(out, e)
	}
	s.mu.Unlock()

	storage.SortExpenses(out)
	return out, nil
}

func (s *Store) Get(_ context.Context, id string) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[id]
	if !ok {
		return core.Expense{}, fmt.Errorf("get expense %s: %w", id, storage.ErrNotFound)
	}
	return e, nil
}

func (s *Store) Add(_ context.Context, n core.NewExpense) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := n.Expense(s.opts.NewID(), s.opts.Now().UTC())
	s.items[e.ID] = e
	return e, nil
}

func (s *Store) Patch(_ context.Context, id string, p core.Patch) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[id]
	if !ok {
		return core.Expense{}, fmt.Errorf("update expense %s: %w", id, storage.ErrNotFound)
	}
	e = p.Apply(e)
	s.items[id] = e
	return e, nil
}

func (s *Store) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return fmt.Errorf("delete expense %s: %w", id, storage.ErrNotFound)
	}
	delete(s.items, id)
	return nil
}

func (s *Store) Close() error { return nil }
