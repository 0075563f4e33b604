package membership

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"campusgate/internal/tenant/models"
	id "campusgate/pkg/domain"
	"campusgate/pkg/platform/sentinel"
)

// PostgresStore persists memberships. The (principal_id, tenant_id) primary
// key enforces the one-membership-per-pair invariant.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindMembership(ctx context.Context, principalID id.PrincipalID, tenantID id.TenantID) (*models.Membership, error) {
	query := `
		SELECT principal_id, tenant_id, role, explicit_permissions, status, created_at, updated_at
		FROM memberships
		WHERE principal_id = $1 AND tenant_id = $2
	`
	m, err := scanMembership(s.db.QueryRowContext(ctx, query, uuid.UUID(principalID), uuid.UUID(tenantID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find membership: %w", errors.Join(err, sentinel.ErrUnavailable))
	}
	return m, nil
}

func (s *PostgresStore) Save(ctx context.Context, m *models.Membership) error {
	perms, err := json.Marshal(m.ExplicitPermissions)
	if err != nil {
		return fmt.Errorf("encode explicit_permissions: %w", err)
	}
	query := `
		INSERT INTO memberships (principal_id, tenant_id, role, explicit_permissions, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (principal_id, tenant_id) DO UPDATE
		SET role = EXCLUDED.role,
		    explicit_permissions = EXCLUDED.explicit_permissions,
		    status = EXCLUDED.status,
		    updated_at = EXCLUDED.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.UUID(m.PrincipalID), uuid.UUID(m.TenantID), string(m.Role), perms,
		string(m.Status), m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save membership: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*models.Membership, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT principal_id, tenant_id, role, explicit_permissions, status, created_at, updated_at
		FROM memberships
		WHERE tenant_id = $1
		ORDER BY created_at`, uuid.UUID(tenantID))
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	var out []*models.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type membershipRow interface {
	Scan(dest ...any) error
}

func scanMembership(row membershipRow) (*models.Membership, error) {
	var (
		m                   models.Membership
		principalID, tenant uuid.UUID
		role, status        string
		perms               []byte
	)
	if err := row.Scan(&principalID, &tenant, &role, &perms, &status, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.PrincipalID = id.PrincipalID(principalID)
	m.TenantID = id.TenantID(tenant)
	m.Role = models.Role(role)
	m.Status = models.MembershipStatus(status)
	if err := json.Unmarshal(perms, &m.ExplicitPermissions); err != nil {
		return nil, fmt.Errorf("decode explicit_permissions: %w", err)
	}
	return &m, nil
}
