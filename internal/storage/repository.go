// Package storage persists the shared expense collection.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"despesas/internal/core"
)

var (
	ErrNotFound = errors.New("expense not found")
	// ErrPermission means the store refused access to the collection.
	ErrPermission = errors.New("permission denied")
	// ErrCollectionMissing means the collection itself does not exist.
	ErrCollectionMissing = errors.New("collection not found")
)

// Repository is the expense collection. List returns every record ordered
// by date descending, newest insertion first within a day.
type Repository interface {
	List(ctx context.Context) ([]core.Expense, error)
	Get(ctx context.Context, id string) (core.Expense, error)
	Add(ctx context.Context, e core.NewExpense) (core.Expense, error)
	Patch(ctx context.Context, id string, p core.Patch) (core.Expense, error)
	Remove(ctx context.Context, id string) error
	Close() error
}

// Options shared by repository implementations.
type Options struct {
	Now   func() time.Time
	NewID func() string
}

// Option customizes a repository.
type Option func(*Options)

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *Options) { o.Now = now }
}

// WithIDs overrides record id generation.
func WithIDs(newID func() string) Option {
	return func(o *Options) { o.NewID = newID }
}

// BuildOptions applies opts over the defaults.
func BuildOptions(opts ...Option) Options {
	o := Options{Now: time.Now, NewID: uuid.NewString}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// SortExpenses orders records the way List returns them.
func SortExpenses(es []core.Expense) {
	sort.SliceStable(es, func(i, j int) bool {
		if !es[i].Date.Equal(es[j].Date.Time) {
			return es[i].Date.After(es[j].Date.Time)
		}
		return es[i].CreatedAt.After(es[j].CreatedAt)
	})
}

// classify maps driver errors onto the package sentinels.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "no such table"):
		return fmt.Errorf("%s: %w: %v", op, ErrCollectionMissing, err)
	case strings.Contains(msg, "readonly database"),
		strings.Contains(msg, "not authorized"),
		strings.Contains(msg, "permission denied"),
		strings.Contains(msg, "unable to open database"):
		return fmt.Errorf("%s: %w: %v", op, ErrPermission, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
