package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"despesas/internal/core"
	"despesas/internal/log"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so TEXT timestamps sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const selectColumns = `id, amount_cents, description, category, date, user_id, user_name, created_at`

type SQLiteRepository struct {
	db     *sql.DB
	opts   Options
	logger *log.Logger
}

func NewSQLiteRepository(dbPath string, logger *log.Logger, opts ...Option) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	if logger == nil {
		logger = log.Discard()
	}
	return &SQLiteRepository{
		db:     db,
		opts:   BuildOptions(opts...),
		logger: logger.WithComponent(log.ComponentStorage),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) List(ctx context.Context) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM expenses ORDER BY date DESC, created_at DESC`)
	if err != nil {
		return nil, classify("list expenses", err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list expenses", err)
	}
	return out, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (core.Expense, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM expenses WHERE id = ?`, id)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, fmt.Errorf("get expense %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return core.Expense{}, classify("get expense", err)
	}
	return e, nil
}

func (r *SQLiteRepository) Add(ctx context.Context, n core.NewExpense) (core.Expense, error) {
	now := r.opts.Now().UTC()
	e := n.Expense(r.opts.NewID(), now)
	stamp := now.Format(timeLayout)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO expenses (id, amount_cents, description, category, date, user_id, user_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Amount.Cents, e.Description, e.Category, e.Date.String(), e.UserID, e.UserName, stamp, stamp)
	if err != nil {
		return core.Expense{}, classify("create expense", err)
	}

	r.logger.DebugContext(ctx, "Expense saved to SQLite",
		log.FieldExpenseID, e.ID,
		log.FieldCategory, e.Category,
		log.FieldAmountCents, e.Amount.Cents)
	return e, nil
}

func (r *SQLiteRepository) Patch(ctx context.Context, id string, p core.Patch) (core.Expense, error) {
	var (
		sets []string
		args []any
	)
	if p.Amount != nil {
		sets = append(sets, "amount_cents = ?")
		args = append(args, p.Amount.Cents)
	}
	if p.Category != nil {
		sets = append(sets, "category = ?")
		args = append(args, *p.Category)
	}
	if p.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *p.Description)
	}
	if len(sets) == 0 {
		return r.Get(ctx, id)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, r.opts.Now().UTC().Format(timeLayout), id)

	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return core.Expense{}, classify("update expense", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.Expense{}, fmt.Errorf("update expense %s: %w", id, ErrNotFound)
	}
	return r.Get(ctx, id)
}

func (r *SQLiteRepository) Remove(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return classify("delete expense", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("delete expense %s: %w", id, ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExpense(s scanner) (core.Expense, error) {
	var (
		e         core.Expense
		date      string
		createdAt string
	)
	if err := s.Scan(&e.ID, &e.Amount.Cents, &e.Description, &e.Category, &date, &e.UserID, &e.UserName, &createdAt); err != nil {
		return core.Expense{}, err
	}
	// Rows written by other tools may carry malformed dates; keep the
	// record with a zero date rather than failing the whole listing.
	if d, err := core.ParseDate(date); err == nil {
		e.Date = d
	}
	if t, err := time.Parse(timeLayout, createdAt); err == nil {
		e.CreatedAt = t
	}
	return e, nil
}
