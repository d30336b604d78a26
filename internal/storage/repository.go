// Package storage is the sqlite row store behind the registry, the
// lifecycle coordinator and the finance views. Queries are hand-written
// over database/sql; the schema lives in embedded migrations.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dormy/internal/core"
	"dormy/internal/semester"

	_ "modernc.org/sqlite"
)

type Repository struct {
	db *sql.DB
	q  dbtx
}

// dbtx is the common surface of *sql.DB and *sql.Tx the query methods
// run against, so one method body serves both transactional and plain
// calls.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func NewRepository(dbPath string) (*Repository, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	// Pragma in the DSN so every pooled connection enforces foreign
	// keys, not just the one a plain Exec would reach.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)")
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

	return &Repository{db: db, q: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// WithinTx runs fn against a transactional view of the repository. Any
// error from fn rolls the whole transaction back; this is what makes
// archive-and-rollover all-or-nothing.
func (r *Repository) WithinTx(ctx context.Context, fn func(tx semester.Store) error) error {
	if _, inTx := r.q.(*sql.Tx); inTx {
		return fmt.Errorf("nested transaction not supported")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	txRepo := &Repository{db: r.db, q: tx}
	if err := fn(txRepo); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// --- encoding helpers ---

const timestampLayout = time.RFC3339

func encodeDate(d core.Date) string {
	return d.String()
}

func decodeDate(s string) (core.Date, error) {
	return core.ParseDate(s)
}

func encodeTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func decodeTime(s string) (time.Time, error) {
	return time.Parse(timestampLayout, s)
}

func encodeMoney(m core.Money) string {
	return m.Decimal().String()
}

func decodeMoney(s string) (core.Money, error) {
	return core.MoneyFromString(s)
}

// placeholders renders "?, ?, ?" for n arguments.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
