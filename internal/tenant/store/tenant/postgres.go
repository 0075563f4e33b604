package tenant

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"campusgate/internal/tenant/models"
	id "campusgate/pkg/domain"
	"campusgate/pkg/platform/sentinel"
	txcontext "campusgate/pkg/platform/tx"
)

// PostgresStore persists tenants in PostgreSQL. Feature sets and contact
// metadata are stored as JSONB.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const tenantColumns = `id, key, name, status, tier, add_ons, enabled_features, contact, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, t *models.Tenant) error {
	if t == nil {
		return fmt.Errorf("tenant is required")
	}
	addOns, features, contact, err := encodeJSONColumns(t)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO tenants (` + tenantColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = txcontext.Executor(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(t.ID), t.Key, t.Name, string(t.Status), string(t.Tier),
		addOns, features, contact, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("tenant key %q must be unique: %w", t.Key, sentinel.ErrAlreadyExists)
		}
		return fmt.Errorf("create tenant: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1`
	return s.findOne(ctx, "find tenant by id", query, uuid.UUID(tenantID))
}

func (s *PostgresStore) FindByKey(ctx context.Context, key string) (*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE key = lower($1)`
	return s.findOne(ctx, "find tenant by key", query, key)
}

// FindByKeyForUpdate locks the row until the surrounding transaction ends.
// Outside a transaction it behaves like FindByKey.
func (s *PostgresStore) FindByKeyForUpdate(ctx context.Context, key string) (*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE key = lower($1) FOR UPDATE`
	return s.findOne(ctx, "lock tenant by key", query, key)
}

func (s *PostgresStore) findOne(ctx context.Context, op, query string, arg any) (*models.Tenant, error) {
	t, err := scanTenant(txcontext.Executor(ctx, s.db).QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, errors.Join(err, sentinel.ErrUnavailable))
	}
	return t, nil
}

// Update writes mutable fields. The key column is never updated.
func (s *PostgresStore) Update(ctx context.Context, t *models.Tenant) error {
	if t == nil {
		return fmt.Errorf("tenant is required")
	}
	addOns, features, contact, err := encodeJSONColumns(t)
	if err != nil {
		return err
	}
	query := `
		UPDATE tenants
		SET name = $2, status = $3, tier = $4, add_ons = $5, enabled_features = $6,
		    contact = $7, updated_at = $8
		WHERE id = $1
	`
	res, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(t.ID), t.Name, string(t.Status), string(t.Tier),
		addOns, features, contact, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update tenant: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update tenant rows: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var out []*models.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type tenantRow interface {
	Scan(dest ...any) error
}

func scanTenant(row tenantRow) (*models.Tenant, error) {
	var (
		t                         models.Tenant
		tenantID                  uuid.UUID
		status, tier              string
		addOns, features, contact []byte
	)
	if err := row.Scan(&tenantID, &t.Key, &t.Name, &status, &tier,
		&addOns, &features, &contact, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.ID = id.TenantID(tenantID)
	t.Status = models.TenantStatus(status)
	t.Tier = models.Tier(tier)
	if err := json.Unmarshal(addOns, &t.AddOns); err != nil {
		return nil, fmt.Errorf("decode add_ons: %w", err)
	}
	if err := json.Unmarshal(features, &t.EnabledFeatures); err != nil {
		return nil, fmt.Errorf("decode enabled_features: %w", err)
	}
	if len(contact) > 0 {
		if err := json.Unmarshal(contact, &t.Contact); err != nil {
			return nil, fmt.Errorf("decode contact: %w", err)
		}
	}
	return &t, nil
}

func encodeJSONColumns(t *models.Tenant) (addOns, features, contact []byte, err error) {
	if addOns, err = json.Marshal(t.AddOns); err != nil {
		return nil, nil, nil, fmt.Errorf("encode add_ons: %w", err)
	}
	if features, err = json.Marshal(t.EnabledFeatures); err != nil {
		return nil, nil, nil, fmt.Errorf("encode enabled_features: %w", err)
	}
	if contact, err = json.Marshal(t.Contact); err != nil {
		return nil, nil, nil, fmt.Errorf("encode contact: %w", err)
	}
	return addOns, features, contact, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
