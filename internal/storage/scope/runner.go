package scope

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dErrors "campusgate/pkg/domain-errors"
)

const defaultTxTimeout = 5 * time.Second

// Runner opens tenant-scoped transactions. Row-level policies read the
// transaction-local settings app.tenant_id, app.principal_id and app.role.
type Runner struct {
	db      *sql.DB
	timeout time.Duration
}

func NewRunner(db *sql.DB) *Runner {
	return &Runner{db: db, timeout: defaultTxTimeout}
}

// InTenant runs fn in a transaction scoped to the token on ctx. Without a
// token it returns ErrNoTenantScope before touching the database.
func (r *Runner) InTenant(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	token, ok := TokenFrom(ctx)
	if !ok {
		return ErrNoTenantScope
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "begin tenant transaction")
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // rollback after commit is a no-op
	}()

	// set_config with is_local=true lasts until the transaction ends, so a
	// pooled connection never carries one request's scope into the next.
	if _, err := tx.ExecContext(ctx,
		`SELECT set_config('app.tenant_id', $1, true),
		        set_config('app.principal_id', $2, true),
		        set_config('app.role', $3, true)`,
		token.TenantID().String(), token.PrincipalID().String(), token.Role(),
	); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "install tenant scope")
	}

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tenant transaction: %w", err)
	}
	return nil
}
