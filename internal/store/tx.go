package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// TxOptions configures one unit of work. Timeout bounds the whole
// transaction; when it elapses the context is cancelled and the
// transaction rolls back.
type TxOptions struct {
	Isolation sql.IsolationLevel
	ReadOnly  bool
	Timeout   time.Duration
}

// WithinTx runs fn inside a single database transaction. The Store handed
// to fn is bound to the transaction: operations issued through it observe
// each other's uncommitted writes but stay invisible to outside observers
// until commit. A nil error from fn commits; any error rolls back and is
// returned to the caller.
func (s *Store) WithinTx(ctx context.Context, opts TxOptions, fn func(tx *Store) error) (txErr error) {
	if s.db == nil {
		return errors.New("store: WithinTx: nested transactions are not supported")
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: opts.Isolation, ReadOnly: opts.ReadOnly})
	if err != nil {
		return mapError("WithinTx", err)
	}

	defer func() {
		if txErr == nil {
			if err := tx.Commit(); err != nil {
				txErr = mapError("WithinTx: commit", err)
			}
			return
		}
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			txErr = fmt.Errorf("%w (rollback: %v)", txErr, err)
		}
	}()

	return fn(&Store{q: tx})
}
