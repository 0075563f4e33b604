package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	dErrors "campusgate/pkg/domain-errors"
	"campusgate/pkg/platform/sentinel"
	txcontext "campusgate/pkg/platform/tx"
)

const defaultTxTimeout = 5 * time.Second

// TxRunner opens a database transaction and carries it on the context so
// stores built on txcontext.Executor join it. Nested calls reuse the outer
// transaction.
type TxRunner struct {
	db      *sql.DB
	timeout time.Duration
}

func NewTxRunner(db *sql.DB) *TxRunner {
	return &TxRunner{db: db, timeout: defaultTxTimeout}
}

func (r *TxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted before start")
		}
		return fmt.Errorf("begin tx: %w", errors.Join(err, sentinel.ErrUnavailable))
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", errors.Join(err, sentinel.ErrUnavailable))
	}
	return nil
}
