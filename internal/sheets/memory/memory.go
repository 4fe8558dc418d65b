// Package memory is an in-process spreadsheet mirror for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"despesas/internal/core"
	ports "despesas/internal/sheets"
)

// Store keeps rows in sheet order, header excluded.
type Store struct {
	mu   sync.Mutex
	rows [][]any
}

var _ ports.Mirror = (*Store)(nil)

func New() *Store { return &Store{} }

// Upsert replaces the row for e.ID or appends a new one.
func (s *Store) Upsert(_ context.Context, e core.Expense) (string, error) {
	if e.ID == "" {
		return "", fmt.Errorf("expense without id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row := ports.Row(e)
	if i := ports.FindRow(s.rows, e.ID); i > 0 {
		s.rows[i-1] = row
		return fmt.Sprintf("mem:%d", i+1), nil
	}
	s.rows = append(s.rows, row)
	return fmt.Sprintf("mem:%d", len(s.rows)+1), nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := ports.FindRow(s.rows, id); i > 0 {
		s.rows = append(s.rows[:i-1], s.rows[i:]...)
	}
	return nil
}

func (s *Store) ListIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ports.IDs(s.rows), nil
}

// Rows returns a copy of the stored rows.
func (s *Store) Rows() [][]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]any, len(s.rows))
	for i, r := range s.rows {
		out[i] = append([]any(nil), r...)
	}
	return out
}
