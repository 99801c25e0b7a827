package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/collab-market/backend/internal/apperrors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrStaleState is returned by compare-and-set writes whose precondition no longer holds.
var ErrStaleState = errors.New("stored state changed concurrently")

// classify maps driver errors onto the app taxonomy.
func classify(op, entity string, id fmt.Stringer, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		ref := ""
		if id != nil {
			ref = id.String()
		}
		return &apperrors.NotFoundError{Entity: entity, ID: ref}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 08xxx connection exception, 57P0x operator intervention / shutdown
		if len(pgErr.Code) == 5 && (pgErr.Code[:2] == "08" || pgErr.Code[:3] == "57P") {
			return &apperrors.StoreUnavailableError{Op: op, Err: err}
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	// anything that never reached the server: dial errors, broken pipes, pool closed
	return &apperrors.StoreUnavailableError{Op: op, Err: err}
}
