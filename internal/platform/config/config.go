// Package config builds the service configuration from environment variables
// so main stays lean.
package config

import (
	"encoding/hex"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	EnvDevelopment = "development"
	EnvDemo        = "demo"
	EnvProduction  = "production"

	// DevSigningKey is accepted outside production only; cmd/tokengen mints
	// tokens with it.
	DevSigningKey = "dev-secret-key-change-in-production"
	// DevAdminToken is accepted outside production when no hash is configured.
	DevAdminToken = "demo-admin-token"
)

// Config is the full service configuration.
type Config struct {
	Environment string
	Server      Server
	Tenancy     Tenancy
	Auth        Auth
	Cache       Cache
	Directory   Directory
	Database    DatabaseConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Admin       Admin
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	RequestTimeout    time.Duration
	ShutdownTimeout   time.Duration
	TrustedProxies    []netip.Prefix
}

// Tenancy describes how hosts map onto tenants.
type Tenancy struct {
	// BaseDomain is the shared parent domain; "harare-primary.<base>" addresses tenant "harare-primary".
	BaseDomain string
	// ReservedLabels resolve to the tenant-agnostic root (e.g. "www").
	ReservedLabels []string
}

// Auth configures bearer credential verification.
type Auth struct {
	JWTSigningKey string
	Issuer        string
	Audience      string
	Leeway        time.Duration
	TokenTTL      time.Duration
	// LoginURL is the issuer's sign-in page; GET /login forwards there.
	LoginURL string
}

// Cache bounds the tenant directory cache.
type Cache struct {
	TTL          time.Duration
	NegativeTTL  time.Duration
	MaxEntries   int
	FetchTimeout time.Duration
}

// Directory bounds blocking directory calls other than tenant lookups.
type Directory struct {
	MembershipTimeout time.Duration
}

type DatabaseConfig struct {
	URL string
}

type RedisConfig struct {
	URL                 string
	PoolSize            int
	MinIdleConns        int
	DialTimeout         time.Duration
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	InvalidationChannel string
	RevocationPrefix    string
}

type KafkaConfig struct {
	Brokers        []string
	LifecycleTopic string
	ConsumerGroup  string
	ProgressTopic  string
}

type Admin struct {
	// TokenHash is the bcrypt hash of the operator token. Empty disables the admin API.
	TokenHash []byte
}

// FromEnv builds a Config from environment variables, applying defaults and
// refusing unsafe production settings.
func FromEnv() (Config, error) {
	env := envString("CAMPUSGATE_ENV", EnvDevelopment)

	trusted, err := envPrefixes("TRUSTED_PROXIES")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Environment: env,
		Server: Server{
			Addr:              envString("CAMPUSGATE_ADDR", ":8080"),
			ReadHeaderTimeout: envDuration("READ_HEADER_TIMEOUT", 5*time.Second),
			RequestTimeout:    envDuration("REQUEST_TIMEOUT", 30*time.Second),
			ShutdownTimeout:   envDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
			TrustedProxies:    trusted,
		},
		Tenancy: Tenancy{
			BaseDomain:     strings.ToLower(envString("BASE_DOMAIN", "campusgate.localhost")),
			ReservedLabels: envList("RESERVED_LABELS", []string{"www"}),
		},
		Auth: Auth{
			JWTSigningKey: envString("JWT_SIGNING_KEY", DevSigningKey),
			Issuer:        envString("JWT_ISSUER", "https://auth.campusgate.localhost"),
			Audience:      envString("JWT_AUDIENCE", "campusgate-api"),
			Leeway:        envDuration("JWT_LEEWAY", 30*time.Second),
			TokenTTL:      envDuration("TOKEN_TTL", 15*time.Minute),
			LoginURL:      envString("LOGIN_URL", "https://auth.campusgate.localhost/login"),
		},
		Cache: Cache{
			TTL:          envDuration("TENANT_CACHE_TTL", 30*time.Second),
			NegativeTTL:  envDuration("TENANT_CACHE_NEGATIVE_TTL", 5*time.Second),
			MaxEntries:   envInt("TENANT_CACHE_MAX_ENTRIES", 10_000),
			FetchTimeout: envDuration("TENANT_FETCH_TIMEOUT", 500*time.Millisecond),
		},
		Directory: Directory{
			MembershipTimeout: envDuration("MEMBERSHIP_FETCH_TIMEOUT", 500*time.Millisecond),
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Redis: RedisConfig{
			URL:                 os.Getenv("REDIS_URL"),
			PoolSize:            envInt("REDIS_POOL_SIZE", 20),
			MinIdleConns:        envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:         envDuration("REDIS_DIAL_TIMEOUT", 2*time.Second),
			ReadTimeout:         envDuration("REDIS_READ_TIMEOUT", 500*time.Millisecond),
			WriteTimeout:        envDuration("REDIS_WRITE_TIMEOUT", 500*time.Millisecond),
			InvalidationChannel: envString("TENANT_INVALIDATION_CHANNEL", "campusgate:tenant-invalidation"),
			RevocationPrefix:    envString("TOKEN_REVOCATION_PREFIX", "campusgate:revoked:"),
		},
		Kafka: KafkaConfig{
			Brokers:        envList("KAFKA_BROKERS", nil),
			LifecycleTopic: envString("KAFKA_TENANT_LIFECYCLE_TOPIC", "billing.tenant-lifecycle"),
			ConsumerGroup:  envString("KAFKA_CONSUMER_GROUP", "campusgate-invalidation"),
			ProgressTopic:  envString("KAFKA_PROGRESS_TOPIC", "campusgate.operation-progress"),
		},
	}

	if raw := os.Getenv("ADMIN_TOKEN_HASH"); raw != "" {
		cfg.Admin.TokenHash = []byte(raw)
	} else if hexHash := os.Getenv("ADMIN_TOKEN_HASH_HEX"); hexHash != "" {
		decoded, err := hex.DecodeString(hexHash)
		if err != nil {
			return Config{}, fmt.Errorf("ADMIN_TOKEN_HASH_HEX: %w", err)
		}
		cfg.Admin.TokenHash = decoded
	} else if env != EnvProduction {
		hash, err := bcrypt.GenerateFromPassword([]byte(DevAdminToken), bcrypt.MinCost)
		if err != nil {
			return Config{}, fmt.Errorf("hash dev admin token: %w", err)
		}
		cfg.Admin.TokenHash = hash
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations that would weaken the pipeline.
func (c Config) Validate() error {
	if c.Tenancy.BaseDomain == "" {
		return fmt.Errorf("BASE_DOMAIN is required")
	}
	if c.Cache.TTL <= 0 || c.Cache.FetchTimeout <= 0 || c.Directory.MembershipTimeout <= 0 {
		return fmt.Errorf("cache TTL and directory timeouts must be positive")
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("TENANT_CACHE_MAX_ENTRIES must be positive")
	}
	if c.Environment == EnvProduction {
		if c.Auth.JWTSigningKey == DevSigningKey || len(c.Auth.JWTSigningKey) < 32 {
			return fmt.Errorf("JWT_SIGNING_KEY must be set to a 32+ byte secret in production")
		}
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required in production")
		}
	}
	return nil
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	return out
}

func envPrefixes(key string) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, raw := range envList(key, nil) {
		p, err := netip.ParsePrefix(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		prefixes = append(prefixes, p)
	}
	return prefixes, nil
}
