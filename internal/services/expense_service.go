package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"despesas/internal/amqp"
	"despesas/internal/core"
	"despesas/internal/log"
	"despesas/internal/storage"
)

// Publisher announces committed mutations to other processes.
type Publisher interface {
	PublishMutation(ctx context.Context, id string, op amqp.MutationOp) error
	Close() error
}

// Notifier is told after every committed mutation. The feed hub
// implements it.
type Notifier interface {
	Notify()
}

// MutationRecorder counts mutations. metrics.Metrics implements it.
type MutationRecorder interface {
	Mutation(op string, err error)
}

// ExpenseService orchestrates expense writes across storage, the live
// feed and AMQP. The store is authoritative: publish failures are logged
// and never fail a committed write.
type ExpenseService struct {
	repo      storage.Repository
	publisher Publisher
	notifier  Notifier
	recorder  MutationRecorder
	logger    *log.Logger
}

type Option func(*ExpenseService)

func WithPublisher(p Publisher) Option {
	return func(s *ExpenseService) { s.publisher = p }
}

func WithNotifier(n Notifier) Option {
	return func(s *ExpenseService) { s.notifier = n }
}

func WithRecorder(r MutationRecorder) Option {
	return func(s *ExpenseService) { s.recorder = r }
}

func NewExpenseService(repo storage.Repository, logger *log.Logger, opts ...Option) *ExpenseService {
	if logger == nil {
		logger = log.Discard()
	}
	s := &ExpenseService{repo: repo, logger: logger.WithComponent(log.ComponentExpense)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns the whole collection in feed order.
func (s *ExpenseService) List(ctx context.Context) ([]core.Expense, error) {
	return s.repo.List(ctx)
}

func (s *ExpenseService) Get(ctx context.Context, id string) (core.Expense, error) {
	return s.repo.Get(ctx, id)
}

// AddRecord stores a new expense and returns its id.
func (s *ExpenseService) AddRecord(ctx context.Context, rec core.NewExpense) (string, error) {
	e, err := s.repo.Add(ctx, rec)
	s.record(log.OpCreate, err)
	if err != nil {
		return "", fmt.Errorf("save expense: %w", err)
	}
	s.logger.Fields(ctx, slog.LevelInfo, "expense created", log.NewFields().
		WithOperation(log.OpCreate).
		WithExpense(e.ID, e.Category, e.Amount.Cents))
	s.committed(ctx, e.ID, amqp.OpCreated)
	return e.ID, nil
}

// PatchRecord applies a partial update.
func (s *ExpenseService) PatchRecord(ctx context.Context, id string, p core.Patch) error {
	e, err := s.repo.Patch(ctx, id, p)
	s.record(log.OpUpdate, err)
	if err != nil {
		return fmt.Errorf("patch expense %s: %w", id, err)
	}
	s.logger.Fields(ctx, slog.LevelInfo, "expense updated", log.NewFields().
		WithOperation(log.OpUpdate).
		WithExpense(e.ID, e.Category, e.Amount.Cents))
	s.committed(ctx, id, amqp.OpUpdated)
	return nil
}

// RemoveRecord deletes an expense.
func (s *ExpenseService) RemoveRecord(ctx context.Context, id string) error {
	err := s.repo.Remove(ctx, id)
	s.record(log.OpDelete, err)
	if err != nil {
		return fmt.Errorf("remove expense %s: %w", id, err)
	}
	s.logger.InfoContext(ctx, "expense deleted", log.FieldExpenseID, id)
	s.committed(ctx, id, amqp.OpDeleted)
	return nil
}

func (s *ExpenseService) record(op string, err error) {
	if s.recorder != nil {
		s.recorder.Mutation(op, err)
	}
}

func (s *ExpenseService) committed(ctx context.Context, id string, op amqp.MutationOp) {
	if s.notifier != nil {
		s.notifier.Notify()
	}
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishMutation(ctx, id, op); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish mutation",
			log.FieldExpenseID, id,
			log.FieldOperation, string(op),
			log.FieldError, err.Error())
	}
}

// Close closes storage and the publisher
func (s *ExpenseService) Close() error {
	var errs []error
	if s.repo != nil {
		if err := s.repo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close expense service: %w", errors.Join(errs...))
	}
	return nil
}
