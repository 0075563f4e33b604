package enrolment

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"campusgate/internal/storage/scope"
	"campusgate/pkg/requestcontext"
)

type PostgresStore struct {
	runner *scope.Runner
}

func NewPostgres(runner *scope.Runner) *PostgresStore {
	return &PostgresStore{runner: runner}
}

// List returns the enrolments visible in the current tenant scope.
func (s *PostgresStore) List(ctx context.Context) ([]Enrolment, error) {
	var out []Enrolment
	err := s.runner.InTenant(ctx, func(ctx context.Context, tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT id, student_ref, grade, created_at FROM enrolments ORDER BY student_ref`)
		if err != nil {
			return fmt.Errorf("list enrolments: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var e Enrolment
			if err := rows.Scan(&e.ID, &e.StudentRef, &e.Grade, &e.CreatedAt); err != nil {
				return fmt.Errorf("scan enrolment: %w", err)
			}
			out = append(out, e)
		}
		return rows.Err()
	})
	return out, err
}

// Add inserts an enrolment for the tenant in scope. The row policy rejects
// any tenant_id other than the scoped one.
func (s *PostgresStore) Add(ctx context.Context, studentRef, grade string) (Enrolment, error) {
	token, ok := scope.TokenFrom(ctx)
	if !ok {
		return Enrolment{}, scope.ErrNoTenantScope
	}
	e := Enrolment{ID: uuid.New(), StudentRef: studentRef, Grade: grade, CreatedAt: requestcontext.Now(ctx)}
	err := s.runner.InTenant(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO enrolments (id, tenant_id, student_ref, grade, created_at) VALUES ($1, $2, $3, $4, $5)`,
			e.ID, token.TenantID().String(), e.StudentRef, e.Grade, e.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert enrolment: %w", err)
		}
		return nil
	})
	return e, err
}
