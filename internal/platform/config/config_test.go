package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestFromEnv(t *testing.T) {
	t.Run("development defaults", func(t *testing.T) {
		cfg, err := FromEnv()
		require.NoError(t, err)

		assert.Equal(t, EnvDevelopment, cfg.Environment)
		assert.Equal(t, ":8080", cfg.Server.Addr)
		assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
		assert.Equal(t, []string{"www"}, cfg.Tenancy.ReservedLabels)
		assert.Equal(t, DevSigningKey, cfg.Auth.JWTSigningKey)
		assert.NoError(t, bcrypt.CompareHashAndPassword(cfg.Admin.TokenHash, []byte(DevAdminToken)))
	})

	t.Run("overrides from environment", func(t *testing.T) {
		t.Setenv("BASE_DOMAIN", "Example")
		t.Setenv("TENANT_CACHE_TTL", "10s")
		t.Setenv("RESERVED_LABELS", "www, app ,api")
		t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
		t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8")

		cfg, err := FromEnv()
		require.NoError(t, err)

		assert.Equal(t, "example", cfg.Tenancy.BaseDomain)
		assert.Equal(t, 10*time.Second, cfg.Cache.TTL)
		assert.Equal(t, []string{"www", "app", "api"}, cfg.Tenancy.ReservedLabels)
		assert.Len(t, cfg.Kafka.Brokers, 2)
		require.Len(t, cfg.Server.TrustedProxies, 1)
	})

	t.Run("rejects malformed trusted proxy", func(t *testing.T) {
		t.Setenv("TRUSTED_PROXIES", "10.0.0.0/99")
		_, err := FromEnv()
		require.Error(t, err)
	})

	t.Run("production refuses the development signing key", func(t *testing.T) {
		t.Setenv("CAMPUSGATE_ENV", EnvProduction)
		t.Setenv("DATABASE_URL", "postgres://localhost/campusgate")
		_, err := FromEnv()
		require.ErrorContains(t, err, "JWT_SIGNING_KEY")
	})

	t.Run("production with a real key passes", func(t *testing.T) {
		t.Setenv("CAMPUSGATE_ENV", EnvProduction)
		t.Setenv("DATABASE_URL", "postgres://localhost/campusgate")
		t.Setenv("JWT_SIGNING_KEY", "0123456789abcdef0123456789abcdef")
		cfg, err := FromEnv()
		require.NoError(t, err)
		assert.Empty(t, cfg.Admin.TokenHash, "production never falls back to the dev admin token")
	})
}
