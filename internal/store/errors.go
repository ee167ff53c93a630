package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/lib/pq"
)

// Failure taxonomy surfaced by every store operation. Callers branch with
// errors.Is; mapping to wire-level status codes belongs to the transport
// layer. The store never retries on its own: retrying a non-idempotent
// create could duplicate data.
var (
	// ErrNotFound: a unique-key lookup, required update or required delete
	// matched zero rows.
	ErrNotFound = errors.New("store: not found")

	// ErrConstraintViolation: a unique field collided (username, sku), a
	// foreign key did not resolve, or a check constraint was broken.
	ErrConstraintViolation = errors.New("store: constraint violation")

	// ErrInvalidGroupBy: a groupBy call violates the field-coverage rules.
	ErrInvalidGroupBy = errors.New("store: invalid groupBy")

	// ErrConnectionFailure: the backing store is unreachable or timed out.
	ErrConnectionFailure = errors.New("store: connection failure")
)

// mapError translates driver-level failures into the store taxonomy,
// keeping the operation name and constraint detail in the message.
func mapError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "23505":
			return fmt.Errorf("store: %s: unique constraint %q: %w", op, pqErr.Constraint, ErrConstraintViolation)
		case pqErr.Code == "23503":
			return fmt.Errorf("store: %s: foreign key %q: %w", op, pqErr.Constraint, ErrConstraintViolation)
		case pqErr.Code == "23514":
			return fmt.Errorf("store: %s: check constraint %q: %w", op, pqErr.Constraint, ErrConstraintViolation)
		case pqErr.Code.Class() == "08":
			return fmt.Errorf("store: %s: %v: %w", op, pqErr, ErrConnectionFailure)
		}
		return fmt.Errorf("store: %s: %w", op, err)
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return fmt.Errorf("store: %s: %v: %w", op, err, ErrConnectionFailure)
	}
	return fmt.Errorf("store: %s: %w", op, err)
}

func notFound(op string) error {
	return fmt.Errorf("store: %s: %w", op, ErrNotFound)
}

func invalidGroupBy(op, msg string) error {
	return fmt.Errorf("store: %s: %s: %w", op, msg, ErrInvalidGroupBy)
}
