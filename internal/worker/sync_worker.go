package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"despesas/internal/amqp"
	"despesas/internal/core"
	"despesas/internal/log"
	"despesas/internal/sheets"
	"despesas/internal/storage"
)

// Reader is the read side of the expense collection.
type Reader interface {
	Get(ctx context.Context, id string) (core.Expense, error)
	List(ctx context.Context) ([]core.Expense, error)
}

// Recorder counts mirror writes. metrics.Metrics implements it.
type Recorder interface {
	MirrorOp(op string, err error)
}

// SyncWorker keeps the spreadsheet mirror in step with the collection
type SyncWorker struct {
	store     Reader
	mirror    sheets.Mirror
	batchSize int
	logger    *log.Logger
	recorder  Recorder
}

// ReconcileStats summarizes one reconcile pass.
type ReconcileStats struct {
	Records  int
	Upserted int
	Deleted  int
	Errors   int
}

func NewSyncWorker(store Reader, mirror sheets.Mirror, batchSize int, logger *log.Logger) *SyncWorker {
	if logger == nil {
		logger = log.Discard()
	}
	if batchSize <= 0 {
		batchSize = 10
	}
	return &SyncWorker{
		store:     store,
		mirror:    mirror,
		batchSize: batchSize,
		logger:    logger.WithComponent(log.ComponentWorker),
	}
}

// WithRecorder attaches a metrics recorder.
func (w *SyncWorker) WithRecorder(r Recorder) *SyncWorker {
	w.recorder = r
	return w
}

// HandleMutation applies one mutation message to the mirror. A record that
// has disappeared since the message was published is removed instead.
func (w *SyncWorker) HandleMutation(ctx context.Context, msg *amqp.ExpenseMutationMessage) error {
	w.logger.DebugContext(ctx, "processing mutation",
		log.FieldExpenseID, msg.ID,
		log.FieldOperation, string(msg.Op))

	if msg.Op == amqp.OpDeleted {
		return w.delete(ctx, msg.ID)
	}

	e, err := w.store.Get(ctx, msg.ID)
	if errors.Is(err, storage.ErrNotFound) {
		w.logger.InfoContext(ctx, "record gone before mirroring, removing row", log.FieldExpenseID, msg.ID)
		return w.delete(ctx, msg.ID)
	}
	if err != nil {
		return fmt.Errorf("get expense from storage: %w", err)
	}
	return w.upsert(ctx, e)
}

func (w *SyncWorker) upsert(ctx context.Context, e core.Expense) error {
	ref, err := w.mirror.Upsert(ctx, e)
	w.record("upsert", err)
	if err != nil {
		return fmt.Errorf("upsert %s in sheets: %w", e.ID, err)
	}
	w.logger.Fields(ctx, slog.LevelInfo, "expense mirrored", log.NewFields().
		WithOperation(log.OpSync).
		WithExpense(e.ID, e.Category, e.Amount.Cents).
		With(log.FieldSheetsRef, ref))
	return nil
}

func (w *SyncWorker) delete(ctx context.Context, id string) error {
	err := w.mirror.Delete(ctx, id)
	w.record("delete", err)
	if err != nil {
		return fmt.Errorf("delete %s from sheets: %w", id, err)
	}
	w.logger.InfoContext(ctx, "expense removed from mirror", log.FieldExpenseID, id)
	return nil
}

func (w *SyncWorker) record(op string, err error) {
	if w.recorder != nil {
		w.recorder.MirrorOp(op, err)
	}
}

// Reconcile appends records missing from the mirror and removes rows whose
// record no longer exists. It is the backup for lost messages.
func (w *SyncWorker) Reconcile(ctx context.Context) (ReconcileStats, error) {
	var stats ReconcileStats

	records, err := w.store.List(ctx)
	if err != nil {
		return stats, fmt.Errorf("list expenses: %w", err)
	}
	stats.Records = len(records)

	ids, err := w.mirror.ListIDs(ctx)
	if err != nil {
		return stats, fmt.Errorf("list mirrored ids: %w", err)
	}
	mirrored := make(map[string]bool, len(ids))
	for _, id := range ids {
		mirrored[id] = true
	}
	live := make(map[string]bool, len(records))

	var missing []core.Expense
	for _, e := range records {
		live[e.ID] = true
		if !mirrored[e.ID] {
			missing = append(missing, e)
		}
	}

	for start := 0; start < len(missing); start += w.batchSize {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		end := min(start+w.batchSize, len(missing))
		for _, e := range missing[start:end] {
			if err := w.upsert(ctx, e); err != nil {
				w.logger.ErrorContext(ctx, "reconcile upsert failed", log.FieldExpenseID, e.ID, log.FieldError, err.Error())
				stats.Errors++
				continue
			}
			stats.Upserted++
		}
	}

	for _, id := range ids {
		if live[id] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := w.delete(ctx, id); err != nil {
			w.logger.ErrorContext(ctx, "reconcile delete failed", log.FieldExpenseID, id, log.FieldError, err.Error())
			stats.Errors++
			continue
		}
		stats.Deleted++
	}

	w.logger.InfoContext(ctx, "reconcile completed",
		log.FieldRecords, stats.Records,
		"upserted", stats.Upserted,
		"deleted", stats.Deleted,
		"errors", stats.Errors)
	return stats, nil
}

// RunPeriodic reconciles immediately and then every interval until ctx ends.
func (w *SyncWorker) RunPeriodic(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := w.Reconcile(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.ErrorContext(ctx, "reconcile failed", log.FieldError, err.Error())
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
