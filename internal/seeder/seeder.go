// Package seeder loads the demo schools and accounts used by local runs and
// the end-to-end suite.
package seeder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"campusgate/internal/tenant/models"
	id "campusgate/pkg/domain"
	"campusgate/pkg/platform/sentinel"
)

// TenantStore defines methods for seeding tenants
type TenantStore interface {
	Create(ctx context.Context, t *models.Tenant) error
}

// MembershipStore defines methods for seeding memberships
type MembershipStore interface {
	Save(ctx context.Context, m *models.Membership) error
}

// Demo principals have fixed IDs so tokens minted by cmd/tokengen match the
// seeded memberships across restarts.
var (
	HarareTeacher   = id.PrincipalID(uuid.MustParse("0a000000-0000-4000-8000-000000000001"))
	HarareAdmin     = id.PrincipalID(uuid.MustParse("0a000000-0000-4000-8000-000000000002"))
	HarareRegistrar = id.PrincipalID(uuid.MustParse("0a000000-0000-4000-8000-000000000003"))
	DemoAdmin       = id.PrincipalID(uuid.MustParse("0b000000-0000-4000-8000-000000000001"))
	DemoBursar      = id.PrincipalID(uuid.MustParse("0b000000-0000-4000-8000-000000000002"))
	KopjeRegistrar  = id.PrincipalID(uuid.MustParse("0c000000-0000-4000-8000-000000000001"))
)

// Principals maps the names accepted by cmd/tokengen to demo principal IDs.
var Principals = map[string]id.PrincipalID{
	"harare-teacher":   HarareTeacher,
	"harare-admin":     HarareAdmin,
	"harare-registrar": HarareRegistrar,
	"demo-admin":       DemoAdmin,
	"demo-bursar":      DemoBursar,
	"kopje-registrar":  KopjeRegistrar,
}

type demoTenant struct {
	id      id.TenantID
	key     string
	name    string
	tier    models.Tier
	members []demoMember
}

type demoMember struct {
	principal id.PrincipalID
	role      models.Role
}

var demoTenants = []demoTenant{
	{
		id:   id.TenantID(uuid.MustParse("5a000000-0000-4000-8000-000000000001")),
		key:  "harare-primary",
		name: "Harare Primary School",
		tier: models.TierStandard,
		members: []demoMember{
			{HarareTeacher, models.RoleTeacher},
			{HarareAdmin, models.RoleAdmin},
			{HarareRegistrar, models.RoleRegistrar},
		},
	},
	{
		id:   id.TenantID(uuid.MustParse("5a000000-0000-4000-8000-000000000002")),
		key:  "demo-school",
		name: "Demo School",
		tier: models.TierBasic,
		members: []demoMember{
			{DemoAdmin, models.RoleAdmin},
			{DemoBursar, models.RoleBursar},
		},
	},
	{
		id:   id.TenantID(uuid.MustParse("5a000000-0000-4000-8000-000000000003")),
		key:  "kopje-academy",
		name: "Kopje Academy",
		tier: models.TierPremium,
		members: []demoMember{
			{KopjeRegistrar, models.RoleRegistrar},
		},
	},
}

// Seeder populates the directory with demo data
type Seeder struct {
	tenants     TenantStore
	memberships MembershipStore
	logger      *slog.Logger
}

func New(tenants TenantStore, memberships MembershipStore, logger *slog.Logger) *Seeder {
	return &Seeder{
		tenants:     tenants,
		memberships: memberships,
		logger:      logger,
	}
}

// SeedAll is idempotent: schools that already exist keep their current
// directory state and only missing memberships are written.
func (s *Seeder) SeedAll(ctx context.Context) error {
	s.logger.InfoContext(ctx, "seeding demo data...")
	now := time.Now()

	created := 0
	for _, dt := range demoTenants {
		tenant, err := models.NewTenant(dt.id, dt.key, dt.name, dt.tier, now)
		if err != nil {
			return fmt.Errorf("build tenant %s: %w", dt.key, err)
		}
		switch err := s.tenants.Create(ctx, tenant); {
		case err == nil:
			created++
		case errors.Is(err, sentinel.ErrAlreadyExists):
			s.logger.DebugContext(ctx, "demo tenant already present", "tenant_key", dt.key)
		default:
			return fmt.Errorf("failed to seed tenant %s: %w", dt.key, err)
		}

		for _, dm := range dt.members {
			m, err := models.NewMembership(dm.principal, dt.id, dm.role, nil, now)
			if err != nil {
				return fmt.Errorf("build membership: %w", err)
			}
			if err := s.memberships.Save(ctx, m); err != nil {
				return fmt.Errorf("failed to seed membership in %s: %w", dt.key, err)
			}
		}
	}

	s.logger.InfoContext(ctx, "demo data seeded successfully",
		"tenants", len(demoTenants),
		"created", created,
	)
	return nil
}
