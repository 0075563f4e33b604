package progress

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"campusgate/internal/storage/scope"
	id "campusgate/pkg/domain"
)

// Report publishes an intermediate running event.
type Report func(percent int, message string)

// JobFunc is the body of a long-running operation.
type JobFunc func(ctx context.Context, report Report) error

// Runner executes jobs in the background, outside any request's lifetime,
// and publishes their progress. Jobs inherit the starting request's storage
// scope so tenant-scoped writes keep their row policy.
type Runner struct {
	hub    *Hub
	base   context.Context
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewRunner binds jobs to base; cancelling base cancels running jobs.
func NewRunner(base context.Context, hub *Hub, logger *slog.Logger) *Runner {
	return &Runner{hub: hub, base: base, logger: logger}
}

// Go starts fn for the tenant on ctx's scope token and returns its operation id.
func (r *Runner) Go(ctx context.Context, message string, fn JobFunc) (id.OperationID, error) {
	token, ok := scope.TokenFrom(ctx)
	if !ok {
		return id.OperationID{}, scope.ErrNoTenantScope
	}
	opID, err := r.hub.Start(ctx, token.TenantID(), message)
	if err != nil {
		return id.OperationID{}, err
	}

	jobCtx := scope.WithToken(r.base, token)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(jobCtx, opID, token.TenantID(), fn)
	}()
	return opID, nil
}

func (r *Runner) run(ctx context.Context, opID id.OperationID, tenantID id.TenantID, fn JobFunc) {
	publish := func(status Status, percent int, message string) {
		err := r.hub.Publish(ctx, Event{
			OperationID: opID,
			TenantID:    tenantID,
			Status:      status,
			Percent:     percent,
			Message:     message,
		})
		if err != nil {
			r.logger.WarnContext(ctx, "progress publish rejected",
				"error", err,
				"operation_id", opID.String(),
			)
		}
	}

	last := 0
	report := func(percent int, message string) {
		percent = min(max(percent, last), 99)
		last = percent
		publish(StatusRunning, percent, message)
	}

	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("job panicked: %v", p)
			}
		}()
		report(0, "started")
		return fn(ctx, report)
	}()
	if err != nil {
		r.logger.ErrorContext(ctx, "operation failed",
			"error", err,
			"operation_id", opID.String(),
			"tenant_id", tenantID.String(),
		)
		publish(StatusFailed, last, err.Error())
		return
	}
	publish(StatusSucceeded, 100, "done")
}

// Wait blocks until every started job has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}
