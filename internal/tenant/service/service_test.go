package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks TenantStore,CacheInvalidator,Broadcaster

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"campusgate/internal/tenant/invalidation"
	"campusgate/internal/tenant/models"
	"campusgate/internal/tenant/service/mocks"
	tenantstore "campusgate/internal/tenant/store/tenant"
	dErrors "campusgate/pkg/domain-errors"
	"campusgate/pkg/platform/audit"
	"campusgate/pkg/platform/audit/store/memory"
	"campusgate/pkg/platform/middleware/admin"
	"campusgate/pkg/platform/sentinel"
	"campusgate/pkg/requestcontext"
	"campusgate/pkg/testutil"
)

type auditEmitter struct{ store audit.Store }

func (e auditEmitter) Emit(ctx context.Context, ev audit.Event) error { return e.store.Append(ctx, ev) }

type ServiceSuite struct {
	suite.Suite
	ctrl        *gomock.Controller
	store       *tenantstore.InMemory
	cache       *mocks.MockCacheInvalidator
	broadcaster *mocks.MockBroadcaster
	audit       *memory.InMemoryStore
	service     *Service
	tenant      *models.Tenant
	ctx         context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = tenantstore.NewInMemory()
	s.cache = mocks.NewMockCacheInvalidator(s.ctrl)
	s.broadcaster = mocks.NewMockBroadcaster(s.ctrl)
	s.audit = memory.NewInMemoryStore()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.service = New(s.store, s.cache,
		WithLogger(logger),
		WithBroadcaster(s.broadcaster),
		WithAuditor(audit.NewLogger(logger, auditEmitter{s.audit})),
	)

	s.tenant = testutil.NewTenant("harare-primary").WithID(testutil.TestIDs.TenantA).Build()
	s.Require().NoError(s.store.Create(context.Background(), s.tenant))

	ctx := admin.WithActorID(context.Background(), "ops-1")
	s.ctx = requestcontext.WithNow(ctx, testutil.FixedNow.Add(time.Hour))
}

func (s *ServiceSuite) expectInvalidation(reason string) {
	s.cache.EXPECT().Invalidate("harare-primary")
	s.cache.EXPECT().InvalidateID(s.tenant.ID)
	s.broadcaster.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, msg invalidation.Message) error {
			s.Equal("harare-primary", msg.Key)
			s.Equal(s.tenant.ID.String(), msg.TenantID)
			s.Equal(reason, msg.Reason)
			return nil
		})
}

func (s *ServiceSuite) lastAudit() audit.Event {
	events, err := s.audit.ListRecent(context.Background(), 1)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	return events[0]
}

func (s *ServiceSuite) TestSuspendInvalidatesEverywhere() {
	s.expectInvalidation(kindSuspend)

	updated, err := s.service.Suspend(s.ctx, "Harare-Primary", "unpaid invoice")
	s.Require().NoError(err)
	s.Equal(models.TenantStatusSuspended, updated.Status)

	stored, err := s.store.FindByKey(context.Background(), "harare-primary")
	s.Require().NoError(err)
	s.Equal(models.TenantStatusSuspended, stored.Status)
	s.Equal(testutil.FixedNow.Add(time.Hour), stored.UpdatedAt)

	ev := s.lastAudit()
	s.Equal(string(audit.EventTenantSuspended), ev.Action)
	s.Equal(audit.DecisionApplied, ev.Decision)
	s.Equal("ops-1", ev.ActorID)
	s.Equal("unpaid invoice", ev.Reason)
	s.Equal(s.tenant.ID, ev.TenantID)
}

func (s *ServiceSuite) TestReinstateRequiresSuspension() {
	_, err := s.service.Reinstate(s.ctx, "harare-primary", "")
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	s.expectInvalidation(kindSuspend)
	_, err = s.service.Suspend(s.ctx, "harare-primary", "")
	s.Require().NoError(err)

	s.expectInvalidation(kindReinstate)
	updated, err := s.service.Reinstate(s.ctx, "harare-primary", "paid")
	s.Require().NoError(err)
	s.Equal(models.TenantStatusActive, updated.Status)
}

func (s *ServiceSuite) TestArchiveIsTerminal() {
	s.expectInvalidation(kindArchive)
	_, err := s.service.Archive(s.ctx, "harare-primary", "contract ended")
	s.Require().NoError(err)

	_, err = s.service.Reinstate(s.ctx, "harare-primary", "")
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	_, err = s.service.Archive(s.ctx, "harare-primary", "")
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	_, err = s.service.ChangeTier(s.ctx, "harare-primary", &models.ChangeTierRequest{Tier: models.TierPremium})
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func (s *ServiceSuite) TestChangeTierRecomputesFeatures() {
	s.expectInvalidation(kindTier)

	updated, err := s.service.ChangeTier(s.ctx, "harare-primary", &models.ChangeTierRequest{
		Tier:   models.TierStandard,
		AddOns: []models.Feature{models.FeatureFinance},
	})
	s.Require().NoError(err)
	s.Equal(models.TierStandard, updated.Tier)
	s.True(updated.HasFeature(models.FeatureLibrary))
	s.True(updated.HasFeature(models.FeatureFinance))
	s.False(updated.HasFeature(models.FeatureMessaging))
	s.Equal(string(audit.EventTenantTierChanged), s.lastAudit().Action)
}

func (s *ServiceSuite) TestBroadcastFailureDoesNotFailMutation() {
	s.cache.EXPECT().Invalidate("harare-primary")
	s.cache.EXPECT().InvalidateID(s.tenant.ID)
	s.broadcaster.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("redis down"))

	updated, err := s.service.Suspend(s.ctx, "harare-primary", "")
	s.Require().NoError(err)
	s.Equal(models.TenantStatusSuspended, updated.Status)
}

func (s *ServiceSuite) TestUnknownTenantTouchesNoCache() {
	_, err := s.service.Suspend(s.ctx, "unknown-school", "")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.service.Get(s.ctx, "unknown-school")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestMalformedKeyRejected() {
	for _, key := range []string{"", "bad_key", "-leading", "has.dot"} {
		_, err := s.service.Suspend(s.ctx, key, "")
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest), key)
	}
	s.True(dErrors.HasCode(s.service.Invalidate(s.ctx, "bad_key"), dErrors.CodeBadRequest))
}

func (s *ServiceSuite) TestDirectoryOutageIsRetryable() {
	store := mocks.NewMockTenantStore(s.ctrl)
	store.EXPECT().FindByKeyForUpdate(gomock.Any(), "harare-primary").Return(nil, sentinel.ErrUnavailable)
	svc := New(store, s.cache, WithBroadcaster(s.broadcaster))

	_, err := svc.Suspend(s.ctx, "harare-primary", "")
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	s.True(dErrors.IsRetryable(err))
}

func (s *ServiceSuite) TestUpdateFailureLeavesCacheAlone() {
	store := mocks.NewMockTenantStore(s.ctrl)
	store.EXPECT().FindByKeyForUpdate(gomock.Any(), "harare-primary").Return(s.tenant, nil)
	store.EXPECT().Update(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))
	svc := New(store, s.cache, WithBroadcaster(s.broadcaster))

	_, err := svc.Suspend(s.ctx, "harare-primary", "")
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *ServiceSuite) TestExplicitInvalidateAcceptsUnknownKeys() {
	s.cache.EXPECT().Invalidate("new-school")
	s.broadcaster.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, msg invalidation.Message) error {
			s.Equal("new-school", msg.Key)
			s.Empty(msg.TenantID)
			return nil
		})

	s.Require().NoError(s.service.Invalidate(s.ctx, "New-School"))
	ev := s.lastAudit()
	s.Equal(string(audit.EventCacheInvalidated), ev.Action)
	s.Equal("new-school", ev.Reason)
}

func (s *ServiceSuite) TestGetReadsDirectory() {
	got, err := s.service.Get(s.ctx, "harare-primary")
	s.Require().NoError(err)
	s.Equal(s.tenant.ID, got.ID)

	all, err := s.service.List(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 1)
}

func (s *ServiceSuite) TestConcurrentSuspendsApplyOnce() {
	s.expectInvalidation(kindSuspend)

	res := testutil.RunConcurrent(20, func(int) error {
		_, err := s.service.Suspend(s.ctx, "harare-primary", "")
		return err
	})
	s.Equal(int32(1), res.Successes)
	s.Equal(int32(19), res.Errors)
}

func TestLocalTxHonoursCancellation(t *testing.T) {
	tx := newInMemoryStoreTx()
	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = tx.RunInTx(context.Background(), func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := tx.RunInTx(ctx, func(context.Context) error { return nil })
	if !dErrors.HasCode(err, dErrors.CodeTimeout) {
		t.Fatalf("expected timeout waiting for the lock, got %v", err)
	}
}
