package session

//go:generate mockgen -source=builder.go -destination=mocks/mocks.go -package=mocks MembershipSource

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"campusgate/internal/credential"
	"campusgate/internal/security/permissions"
	"campusgate/internal/security/session/mocks"
	tenantmodels "campusgate/internal/tenant/models"
	id "campusgate/pkg/domain"
	dErrors "campusgate/pkg/domain-errors"
	"campusgate/pkg/platform/sentinel"
	"campusgate/pkg/requestcontext"
	"campusgate/pkg/testutil"
)

type BuilderSuite struct {
	suite.Suite
	ctrl        *gomock.Controller
	memberships *mocks.MockMembershipSource
	builder     *Builder
	ctx         context.Context
	tenant      *tenantmodels.Tenant
	principal   *credential.Principal
}

func TestBuilderSuite(t *testing.T) {
	suite.Run(t, new(BuilderSuite))
}

func (s *BuilderSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.memberships = mocks.NewMockMembershipSource(s.ctrl)
	s.builder = NewBuilder(s.memberships, 50*time.Millisecond)
	s.ctx = requestcontext.WithNow(context.Background(), testutil.FixedNow)
	s.tenant = testutil.NewTenant("harare-primary").
		WithID(testutil.TestIDs.TenantA).
		WithTier(tenantmodels.TierStandard).
		Build()
	s.principal = &credential.Principal{ID: testutil.TestIDs.Principal1}
}

func (s *BuilderSuite) expectMembership(m *tenantmodels.Membership, err error) {
	s.memberships.EXPECT().
		FindMembership(gomock.Any(), s.principal.ID, s.tenant.ID).
		Return(m, err)
}

func (s *BuilderSuite) TestActiveMembership() {
	s.expectMembership(testutil.NewMembership(s.principal.ID, s.tenant.ID, tenantmodels.RoleTeacher).
		WithPermissions("finance.invoices.read", "library.loans.manage").
		Build(), nil)

	sc, err := s.builder.Build(s.ctx, s.tenant, s.principal)
	s.Require().NoError(err)

	s.Equal(s.tenant.ID, sc.TenantID())
	s.Equal(s.principal.ID, sc.PrincipalID())
	s.Equal(tenantmodels.RoleTeacher, sc.Role())
	s.Equal(testutil.FixedNow, sc.IssuedAt())
	s.True(sc.HasPermission(permissions.LibraryLoansManage), "explicit permission inside the ceiling")
	s.False(sc.HasPermission(permissions.InvoicesRead), "standard tier has no finance")
	s.True(sc.Withheld(permissions.InvoicesRead))
	s.False(sc.IsPlatformAdmin())
}

func (s *BuilderSuite) TestContextDoesNotAliasInputs() {
	m := testutil.NewMembership(s.principal.ID, s.tenant.ID, tenantmodels.RoleTeacher).WithPermissions("messaging.send").Build()
	s.expectMembership(m, nil)

	sc, err := s.builder.Build(s.ctx, s.tenant, s.principal)
	s.Require().NoError(err)

	m.Role = tenantmodels.RoleAdmin
	m.ExplicitPermissions[0] = "finance_module"
	s.tenant.Status = tenantmodels.TenantStatusSuspended

	s.Equal(tenantmodels.RoleTeacher, sc.Role())
	got, ok := sc.Membership()
	s.Require().True(ok)
	s.Equal([]string{"messaging.send"}, got.ExplicitPermissions)
	s.True(sc.Tenant().IsActive())

	got.Role = tenantmodels.RoleAdmin
	s.Equal(tenantmodels.RoleTeacher, sc.Role())
}

func (s *BuilderSuite) TestMembershipErrors() {
	s.Run("no membership", func() {
		s.expectMembership(nil, sentinel.ErrNotFound)
		_, err := s.builder.Build(s.ctx, s.tenant, s.principal)
		var me *MembershipError
		s.Require().ErrorAs(err, &me)
		s.Equal(ReasonNoMembership, me.Reason)
	})

	s.Run("nil membership without error", func() {
		s.expectMembership(nil, nil)
		_, err := s.builder.Build(s.ctx, s.tenant, s.principal)
		var me *MembershipError
		s.Require().ErrorAs(err, &me)
		s.Equal(ReasonNoMembership, me.Reason)
	})

	s.Run("suspended membership", func() {
		s.expectMembership(testutil.NewMembership(s.principal.ID, s.tenant.ID, tenantmodels.RoleAdmin).Suspended().Build(), nil)
		_, err := s.builder.Build(s.ctx, s.tenant, s.principal)
		var me *MembershipError
		s.Require().ErrorAs(err, &me)
		s.Equal(ReasonMembershipSuspended, me.Reason)
	})

	s.Run("foreign membership is rejected", func() {
		s.expectMembership(testutil.NewMembership(s.principal.ID, testutil.TestIDs.TenantB, tenantmodels.RoleAdmin).Build(), nil)
		_, err := s.builder.Build(s.ctx, s.tenant, s.principal)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}

func (s *BuilderSuite) TestDirectoryFailuresAreRetryable() {
	s.Run("store error", func() {
		s.expectMembership(nil, errors.Join(sentinel.ErrUnavailable, errors.New("connection refused")))
		sc, err := s.builder.Build(s.ctx, s.tenant, s.principal)
		s.Nil(sc)
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
		var me *MembershipError
		s.False(errors.As(err, &me), "infrastructure failure must not look like a missing membership")
	})

	s.Run("timeout", func() {
		s.memberships.EXPECT().
			FindMembership(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, _ id.PrincipalID, _ id.TenantID) (*tenantmodels.Membership, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			})
		start := time.Now()
		_, err := s.builder.Build(s.ctx, s.tenant, s.principal)
		s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
		s.Less(time.Since(start), time.Second)
	})
}

func (s *BuilderSuite) TestPlatformAdminMatrix() {
	admin := &credential.Principal{ID: s.principal.ID, PlatformRole: credential.PlatformAdminRole}

	s.Run("without membership", func() {
		s.expectMembership(nil, sentinel.ErrNotFound)
		sc, err := s.builder.Build(s.ctx, s.tenant, admin)
		s.Require().NoError(err)
		s.True(sc.IsPlatformAdmin())
		_, ok := sc.Membership()
		s.False(ok)
		s.Empty(sc.Role())
		s.True(sc.Granted().Equal(permissions.Capabilities(s.tenant.EnabledFeatures)))
		s.True(sc.Withheld(permissions.FinanceAccess))
	})

	s.Run("with active membership keeps the role", func() {
		s.expectMembership(testutil.NewMembership(admin.ID, s.tenant.ID, tenantmodels.RoleTeacher).Build(), nil)
		sc, err := s.builder.Build(s.ctx, s.tenant, admin)
		s.Require().NoError(err)
		s.Equal(tenantmodels.RoleTeacher, sc.Role())
		s.True(sc.HasPermission(permissions.LibraryLoansManage))
	})

	s.Run("with suspended membership is blocked", func() {
		s.expectMembership(testutil.NewMembership(admin.ID, s.tenant.ID, tenantmodels.RoleAdmin).Suspended().Build(), nil)
		_, err := s.builder.Build(s.ctx, s.tenant, admin)
		var me *MembershipError
		s.Require().ErrorAs(err, &me)
		s.Equal(ReasonMembershipSuspended, me.Reason)
	})
}

// TestNonActiveTenantsNeverYieldContext checks random tenant, membership and
// principal combinations: only active tenants ever produce a context, and
// non-active tenants never reach the membership directory.
func (s *BuilderSuite) TestNonActiveTenantsNeverYieldContext() {
	rng := rand.New(rand.NewPCG(42, 42))
	statuses := []tenantmodels.TenantStatus{
		tenantmodels.TenantStatusActive, tenantmodels.TenantStatusSuspended, tenantmodels.TenantStatusInactive,
	}
	tiers := []tenantmodels.Tier{tenantmodels.TierBasic, tenantmodels.TierStandard, tenantmodels.TierPremium}
	roles := []tenantmodels.Role{tenantmodels.RoleAdmin, tenantmodels.RoleTeacher, tenantmodels.RoleParent}

	for range 300 {
		tenant := testutil.NewTenant("school-x").
			WithStatus(statuses[rng.IntN(len(statuses))]).
			WithTier(tiers[rng.IntN(len(tiers))]).
			Build()
		principal := &credential.Principal{ID: id.NewPrincipalID()}
		if rng.IntN(4) == 0 {
			principal.PlatformRole = credential.PlatformAdminRole
		}

		if tenant.IsActive() {
			m := testutil.NewMembership(principal.ID, tenant.ID, roles[rng.IntN(len(roles))]).Build()
			s.memberships.EXPECT().FindMembership(gomock.Any(), principal.ID, tenant.ID).Return(m, nil)
		}

		sc, err := s.builder.Build(s.ctx, tenant, principal)
		if tenant.IsActive() {
			s.Require().NoError(err)
			s.Require().NotNil(sc)
			continue
		}
		s.Nil(sc, "status %s produced a context", tenant.Status)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	}
}

func (s *BuilderSuite) TestBuildIsDeterministic() {
	m := testutil.NewMembership(s.principal.ID, s.tenant.ID, tenantmodels.RoleRegistrar).
		WithPermissions("library.loans.manage", "finance_module").
		Build()
	s.memberships.EXPECT().FindMembership(gomock.Any(), gomock.Any(), gomock.Any()).Return(m, nil).Times(20)

	first, err := s.builder.Build(s.ctx, s.tenant, s.principal)
	s.Require().NoError(err)
	for range 19 {
		next, err := s.builder.Build(s.ctx, s.tenant, s.principal)
		s.Require().NoError(err)
		s.NotSame(first, next, "contexts are never shared")
		s.Equal(first.Granted().Strings(), next.Granted().Strings())
	}
}
