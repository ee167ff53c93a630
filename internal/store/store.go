package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
// Every store operation runs against it, so the same code serves both the
// plain connection pool and an open transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements the catalog entity store on PostgreSQL: durable storage
// for users, merchants, categories, colours, sizes, products and variants,
// plus the filter/sort/paginate/aggregate surface on top of them.
type Store struct {
	db *sql.DB // nil when the store is bound to a transaction
	q  querier
}

// New wraps an already-opened connection pool. The store does not parse
// connection configuration; that belongs to the caller.
func New(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

// Ping verifies the backing store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %v: %w", err, ErrConnectionFailure)
	}
	return nil
}

// Close releases the underlying connection pool. Transaction-bound stores
// own nothing and close as a no-op.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func newID() string {
	return uuid.NewString()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// timeOrNil lets callers supply their own timestamps on create while the
// database fills in the rest via COALESCE(.., now()).
func timeOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
