package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"github.com/google/uuid"

	id "campusgate/pkg/domain"
	audit "campusgate/pkg/platform/audit"
)

// Store implements audit.Store using PostgreSQL.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const selectColumns = `SELECT occurred_at, tenant_id, principal_id, action, route,
	decision, reason, request_id, client_ip, device, actor_id
	FROM audit_events`

// Append inserts an audit event into the audit_events table.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	query := `
		INSERT INTO audit_events (
			occurred_at, tenant_id, principal_id, action, route,
			decision, reason, request_id, client_ip, device, actor_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.Timestamp,
		nullableUUID(uuid.UUID(event.TenantID)),
		nullableUUID(uuid.UUID(event.PrincipalID)),
		event.Action,
		event.Route,
		event.Decision,
		event.Reason,
		event.RequestID,
		event.ClientIP,
		event.Device,
		event.ActorID,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByTenant returns the tenant's events, newest first.
func (s *Store) ListByTenant(ctx context.Context, tenantID id.TenantID) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		selectColumns+` WHERE tenant_id = $1 ORDER BY occurred_at DESC, id DESC`, uuid.UUID(tenantID))
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListRecent returns the N most recent events.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		selectColumns+` ORDER BY occurred_at DESC, id DESC LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// clampLimit keeps the LIMIT parameter inside int32 range.
func clampLimit(limit int) int32 {
	switch {
	case limit < 0:
		return 0
	case limit > math.MaxInt32:
		return math.MaxInt32
	}
	return int32(limit)
}

func nullableUUID(u uuid.UUID) *uuid.UUID {
	if u == uuid.Nil {
		return nil
	}
	return &u
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event
	for rows.Next() {
		var (
			event                 audit.Event
			tenantID, principalID *uuid.UUID
		)
		err := rows.Scan(
			&event.Timestamp,
			&tenantID,
			&principalID,
			&event.Action,
			&event.Route,
			&event.Decision,
			&event.Reason,
			&event.RequestID,
			&event.ClientIP,
			&event.Device,
			&event.ActorID,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		if tenantID != nil {
			event.TenantID = id.TenantID(*tenantID)
		}
		if principalID != nil {
			event.PrincipalID = id.PrincipalID(*principalID)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
