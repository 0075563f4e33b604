package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"campusgate/internal/credential"
	credhandler "campusgate/internal/credential/handler"
	"campusgate/internal/platform/config"
	"campusgate/internal/platform/database"
	"campusgate/internal/platform/health"
	"campusgate/internal/platform/kafka"
	"campusgate/internal/platform/kafka/consumer"
	"campusgate/internal/platform/kafka/producer"
	"campusgate/internal/platform/metrics"
	"campusgate/internal/platform/redis"
	"campusgate/internal/progress"
	progresshandler "campusgate/internal/progress/handler"
	secmetrics "campusgate/internal/security/metrics"
	"campusgate/internal/security/middleware"
	"campusgate/internal/security/resolver"
	"campusgate/internal/security/routes"
	"campusgate/internal/security/session"
	"campusgate/internal/security/tracer"
	"campusgate/internal/storage/enrolment"
	"campusgate/internal/storage/scope"
	"campusgate/internal/tenant/cache"
	tenanthandler "campusgate/internal/tenant/handler"
	"campusgate/internal/tenant/invalidation"
	tenantmetrics "campusgate/internal/tenant/metrics"
	"campusgate/internal/tenant/models"
	tenantservice "campusgate/internal/tenant/service"
	membershipstore "campusgate/internal/tenant/store/membership"
	tenantstore "campusgate/internal/tenant/store/tenant"
	httptransport "campusgate/internal/transport/http"
	"campusgate/pkg/platform/audit"
	auditmetrics "campusgate/pkg/platform/audit/metrics"
	"campusgate/pkg/platform/audit/publisher"
	auditmemory "campusgate/pkg/platform/audit/store/memory"
	auditpostgres "campusgate/pkg/platform/audit/store/postgres"
	"campusgate/pkg/platform/middleware/request"
)

const (
	auditBufferSize   = 1024
	poolStatsInterval = 15 * time.Second
)

// infra holds the optional external connections. Each nil field means the
// process runs without that backend.
type infra struct {
	pool  *database.Pool
	redis *redis.Client
}

func openInfra(ctx context.Context, cfg config.Config, log *slog.Logger) (*infra, error) {
	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.Database.URL
	pool, err := database.New(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if pool == nil {
		log.WarnContext(ctx, "DATABASE_URL not set, using in-memory directory and storage")
	} else if err := metrics.RegisterDBStats(pool.DB(), "campusgate"); err != nil {
		log.WarnContext(ctx, "failed to register database stats", "error", err)
	}

	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		_ = pool.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if rdb == nil {
		log.WarnContext(ctx, "REDIS_URL not set, cache invalidation stays process-local and revocation is in-memory")
	}
	return &infra{pool: pool, redis: rdb}, nil
}

func (i *infra) Close(log *slog.Logger) {
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			log.Error("failed to close redis", "error", err)
		}
	}
	if err := i.pool.Close(); err != nil {
		log.Error("failed to close database", "error", err)
	}
}

type tenantDirectory interface {
	tenantservice.TenantStore
	Create(ctx context.Context, t *models.Tenant) error
}

type membershipDirectory interface {
	session.MembershipSource
	Save(ctx context.Context, m *models.Membership) error
}

type stores struct {
	tenants     tenantDirectory
	memberships membershipDirectory
	enrolments  httptransport.EnrolmentStore
	audit       audit.Store
	tx          tenantservice.StoreTx
}

func newStores(i *infra) stores {
	if db := i.pool.DB(); db != nil {
		return stores{
			tenants:     tenantstore.NewPostgres(db),
			memberships: membershipstore.NewPostgres(db),
			enrolments:  enrolment.NewPostgres(scope.NewRunner(db)),
			audit:       auditpostgres.New(db),
			tx:          database.NewTxRunner(db),
		}
	}
	return stores{
		tenants:     tenantstore.NewInMemory(),
		memberships: membershipstore.NewInMemory(),
		enrolments:  enrolment.NewInMemory(),
		audit:       auditmemory.NewInMemoryStore(),
	}
}

// revocationList is checked by the verifier and written by the admin API.
type revocationList interface {
	credential.RevocationList
	credhandler.Revoker
}

type app struct {
	router     http.Handler
	jobs       *progress.Runner
	background []func(ctx context.Context) error
	closers    []func()
}

// Close releases components in reverse construction order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func buildApp(ctx context.Context, cfg config.Config, infra *infra, st stores, log *slog.Logger) (*app, error) {
	a := &app{}
	checks := health.New(cfg.Environment)
	if infra.pool != nil {
		checks.RegisterCheck("database", infra.pool.Health)
	}

	auditor := publisher.NewPublisher(st.audit,
		publisher.WithAsyncBuffer(auditBufferSize),
		publisher.WithPublisherLogger(log),
		publisher.WithMetrics(auditmetrics.New()),
	)
	a.closers = append(a.closers, auditor.Close)

	tm := tenantmetrics.New()
	tenantCache := cache.New(st.tenants, cache.Config{
		TTL:          cfg.Cache.TTL,
		NegativeTTL:  cfg.Cache.NegativeTTL,
		MaxEntries:   cfg.Cache.MaxEntries,
		FetchTimeout: cfg.Cache.FetchTimeout,
	}, cache.WithMetrics(tm), cache.WithLogger(log))

	serviceOpts := []tenantservice.Option{
		tenantservice.WithLogger(log),
		tenantservice.WithMetrics(tm),
		tenantservice.WithAuditor(audit.NewLogger(log, auditor)),
	}
	if st.tx != nil {
		serviceOpts = append(serviceOpts, tenantservice.WithTx(st.tx))
	}

	var revocations revocationList = credential.NewMemoryRevocationList()
	if infra.redis != nil {
		checks.RegisterCheck("redis", infra.redis.Health)
		revocations = credential.NewRedisRevocationList(infra.redis, cfg.Redis.RevocationPrefix)
		serviceOpts = append(serviceOpts, tenantservice.WithBroadcaster(
			invalidation.NewRedisBroadcaster(infra.redis, cfg.Redis.InvalidationChannel)))

		sub := invalidation.NewSubscriber(infra.redis, cfg.Redis.InvalidationChannel, tenantCache,
			invalidation.WithSubscriberLogger(log),
			invalidation.WithSubscriberMetrics(tm),
		)
		a.background = append(a.background, sub.Run, func(ctx context.Context) error {
			infra.redis.RunPoolStats(ctx, poolStatsInterval)
			return nil
		})
	}
	tenants := tenantservice.New(st.tenants, tenantCache, serviceOpts...)

	pm := progress.NewMetrics()
	hubOpts := []progress.HubOption{progress.WithLogger(log), progress.WithMetrics(pm)}
	if len(cfg.Kafka.Brokers) > 0 {
		checks.RegisterCheck("kafka", kafka.NewHealthChecker(cfg.Kafka.Brokers).Check)

		prod, err := producer.New(producer.DefaultConfig(cfg.Kafka.Brokers), log)
		if err != nil {
			return nil, fmt.Errorf("create kafka producer: %w", err)
		}
		a.closers = append(a.closers, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := prod.Close(closeCtx); err != nil {
				log.Error("failed to close kafka producer", "error", err)
			}
		})
		relay := progress.NewKafkaRelay(prod, cfg.Kafka.ProgressTopic,
			progress.WithRelayLogger(log),
			progress.WithRelayMetrics(pm),
		)
		hubOpts = append(hubOpts, progress.WithSink(relay))
		a.background = append(a.background, relay.Run)

		lifecycle, err := consumer.New(consumer.Config{
			Brokers: cfg.Kafka.Brokers,
			GroupID: cfg.Kafka.ConsumerGroup,
			Topics:  []string{cfg.Kafka.LifecycleTopic},
		}, invalidation.NewLifecycleHandler(tenantCache, log, tm), log)
		if err != nil {
			return nil, fmt.Errorf("create lifecycle consumer: %w", err)
		}
		a.background = append(a.background, lifecycle.Run)
	}
	hub := progress.NewHub(hubOpts...)
	a.background = append(a.background, hub.Run)
	a.jobs = progress.NewRunner(ctx, hub, log)

	verifier := credential.NewVerifier(credential.VerifierConfig{
		SigningKey: []byte(cfg.Auth.JWTSigningKey),
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
		Leeway:     cfg.Auth.Leeway,
	}, credential.WithRevocationList(revocations), credential.WithVerifierLogger(log))

	pipeline := middleware.New(
		routes.Default(),
		resolver.New(resolver.Config{
			BaseDomain:     cfg.Tenancy.BaseDomain,
			ReservedLabels: cfg.Tenancy.ReservedLabels,
		}, tenantCache),
		verifier,
		session.NewBuilder(st.memberships, cfg.Directory.MembershipTimeout),
		middleware.WithLogger(log),
		middleware.WithTracer(tracer.NewOTel()),
		middleware.WithMetrics(secmetrics.New()),
		middleware.WithAuditor(auditor),
	)

	origins := []string{cfg.Tenancy.BaseDomain, "*." + cfg.Tenancy.BaseDomain}
	a.router = httptransport.NewRouter(httptransport.RouterConfig{
		RequestTimeout: cfg.Server.RequestTimeout,
		TrustedProxies: cfg.Server.TrustedProxies,
		AdminTokenHash: cfg.Admin.TokenHash,
	}, httptransport.Deps{
		Logger:   log,
		Guard:    pipeline,
		API:      httptransport.NewHandler(st.enrolments, a.jobs, log, httptransport.WithLoginURL(cfg.Auth.LoginURL)),
		Admin: []httptransport.Registrar{
			tenanthandler.New(tenants, auditor, log),
			credhandler.New(revocations, log),
		},
		Progress: progresshandler.New(hub, log, origins...),
		Health:   checks,
		Metrics:  metrics.Handler(),
		Latency:  request.NewMetrics(),
	})
	return a, nil
}
