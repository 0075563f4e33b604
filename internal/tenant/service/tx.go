package service

import (
	"context"
	"time"

	dErrors "campusgate/pkg/domain-errors"
)

// StoreTx runs a read-modify-write of one directory entry atomically.
// The PostgreSQL implementation lives with the server wiring; stores join it
// through the tx package.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

const defaultTxTimeout = 5 * time.Second

// localTx serializes mutations within one process. Waiting for the slot
// honours ctx, so a stuck mutation cannot pin admin requests forever.
type localTx struct {
	slot    chan struct{}
	timeout time.Duration
}

func newInMemoryStoreTx() *localTx {
	return &localTx{slot: make(chan struct{}, 1), timeout: defaultTxTimeout}
}

func (t *localTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	select {
	case t.slot <- struct{}{}:
	case <-ctx.Done():
		return dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "transaction aborted waiting for lock")
	}
	defer func() { <-t.slot }()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return fn(ctx)
}
