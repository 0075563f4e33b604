package propagation_test

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"campusgate/internal/credential"
	"campusgate/internal/security/models"
	"campusgate/internal/security/permissions"
	"campusgate/internal/security/propagation"
	"campusgate/internal/storage/scope"
	tenantmodels "campusgate/internal/tenant/models"
	id "campusgate/pkg/domain"
	"campusgate/pkg/testutil"
)

func newContext(t *testing.T, tenantID id.TenantID, principalID id.PrincipalID, role tenantmodels.Role) *models.SecurityContext {
	t.Helper()
	tenant := testutil.NewTenant("school").WithID(tenantID).Build()
	granted, withheld := permissions.Grant(role, nil, tenant.EnabledFeatures)
	sc, err := models.NewSecurityContext(models.Params{
		Tenant:     *tenant,
		Principal:  credential.Principal{ID: principalID},
		Membership: testutil.NewMembership(principalID, tenantID, role).Build(),
		Granted:    granted,
		Withheld:   withheld,
		IssuedAt:   testutil.FixedNow,
	})
	require.NoError(t, err)
	return sc
}

func TestPropagateAttachesContextAndToken(t *testing.T) {
	sc := newContext(t, testutil.TestIDs.TenantA, testutil.TestIDs.Principal1, tenantmodels.RoleTeacher)

	ctx, err := propagation.Propagate(context.Background(), sc)
	require.NoError(t, err)

	got, ok := propagation.FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, sc, got)

	token, ok := scope.TokenFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, testutil.TestIDs.TenantA, token.TenantID())
	assert.Equal(t, testutil.TestIDs.Principal1, token.PrincipalID())
	assert.Equal(t, "teacher", token.Role())
}

func TestNoContextMeansNoToken(t *testing.T) {
	ctx, err := propagation.Propagate(context.Background(), nil)
	require.NoError(t, err)

	_, ok := propagation.FromContext(ctx)
	assert.False(t, ok)
	_, ok = scope.TokenFrom(ctx)
	assert.False(t, ok, "storage must stay deny-all without a security context")
}

func TestPropagateStampsActiveSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	ctx, span := provider.Tracer("test").Start(context.Background(), "request")

	sc := newContext(t, testutil.TestIDs.TenantB, testutil.TestIDs.Principal2, tenantmodels.RoleBursar)
	_, err := propagation.Propagate(ctx, sc)
	require.NoError(t, err)
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	attrs := ended[0].Attributes()
	assert.Contains(t, attrs, attribute.String("tenant.id", testutil.TestIDs.TenantB.String()))
	assert.Contains(t, attrs, attribute.String("principal.id", testutil.TestIDs.Principal2.String()))
	assert.Contains(t, attrs, attribute.String("membership.role", "bursar"))
}

func TestSetHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	propagation.SetHeaders(rec, nil)
	assert.Empty(t, rec.Header().Get(propagation.HeaderTenantID))

	sc := newContext(t, testutil.TestIDs.TenantA, testutil.TestIDs.Principal1, tenantmodels.RoleAdmin)
	propagation.SetHeaders(rec, sc)
	assert.Equal(t, testutil.TestIDs.TenantA.String(), rec.Header().Get(propagation.HeaderTenantID))
}

func TestConcurrentRequestsNeverShareContext(t *testing.T) {
	contexts := []*models.SecurityContext{
		newContext(t, testutil.TestIDs.TenantA, testutil.TestIDs.Principal1, tenantmodels.RoleTeacher),
		newContext(t, testutil.TestIDs.TenantB, testutil.TestIDs.Principal2, tenantmodels.RoleAdmin),
	}

	result := testutil.RunConcurrent(200, func(idx int) error {
		want := contexts[idx%2]
		ctx, err := propagation.Propagate(context.Background(), want)
		if err != nil {
			return err
		}
		got, ok := propagation.FromContext(ctx)
		if !ok || got.TenantID() != want.TenantID() {
			return fmt.Errorf("request %d observed a foreign context", idx)
		}
		token, ok := scope.TokenFrom(ctx)
		if !ok || token.TenantID() != want.TenantID() || token.PrincipalID() != want.PrincipalID() {
			return fmt.Errorf("request %d observed a foreign scope token", idx)
		}
		return nil
	})
	assert.Equal(t, int32(200), result.Successes)
}
