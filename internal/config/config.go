package config

import (
	"fmt"
	"log"
	"net/netip"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/MrSnakeDoc/urldammit/internal/domain"
)

// Prefix is prepended to every environment variable name.
const Prefix = "URLDAMMIT_"

// Backends
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"

	CacheLRU   = "lru"
	CacheRedis = "redis"
	CacheNull  = "null"
)

type Config struct {
	ListenPort      string        `env:"LISTEN_PORT"      envDefault:":8080"` // ex: ":8080"
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`
	BaseURL         string        `env:"BASE_URL"`                            // optional, ex: "https://urldammit.example.com"

	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"` // "debug" | "info" | "warn" | "error"
	PrettyLog bool   `env:"PRETTY_LOG" envDefault:"true"` // true => zap dev (color), false => zap prod (JSON)

	// Persistence
	Store            string        `env:"STORE"              envDefault:"sqlite"` // memory | sqlite | postgres | redis
	SQLitePath       string        `env:"SQLITE_PATH"        envDefault:"/data/urldammit.db"`
	PostgresDSN      string        `env:"POSTGRES_DSN"`
	Cache            string        `env:"CACHE"              envDefault:"lru"` // lru | redis | null
	KnownCacheSize   int           `env:"KNOWN_CACHE_SIZE"   envDefault:"1000"`
	UnknownCacheSize int           `env:"UNKNOWN_CACHE_SIZE" envDefault:"100"`
	CacheNamespace   string        `env:"CACHE_NAMESPACE"    envDefault:"urldammit"`
	CacheTTL         time.Duration `env:"CACHE_TTL"          envDefault:"24h"`

	// Field limits
	TagMaxLen         int `env:"TAG_MAX_LEN"          envDefault:"20"`
	PairKeyMaxLen     int `env:"PAIR_KEY_MAX_LEN"     envDefault:"20"`
	PairValueMaxBytes int `env:"PAIR_VALUE_MAX_BYTES" envDefault:"100"`
	URIMaxLen         int `env:"URI_MAX_LEN"          envDefault:"255"`

	// Redis
	RedisAddr             string        `env:"REDIS_ADDR"              envDefault:"localhost:6379"`
	RedisUser             string        `env:"REDIS_USERNAME"`
	RedisPassword         string        `env:"REDIS_PASSWORD"`
	RedisPasswordRequired bool          `env:"REDIS_PASSWORD_REQUIRED" envDefault:"false"`
	RedisDB               int           `env:"REDIS_DB"                envDefault:"0"`
	RedisDT               time.Duration `env:"REDIS_DIAL_TIMEOUT"      envDefault:"5s"`
	RedisRT               time.Duration `env:"REDIS_READ_TIMEOUT"      envDefault:"3s"`
	RedisWT               time.Duration `env:"REDIS_WRITE_TIMEOUT"     envDefault:"3s"`
	RedisMaxWait          time.Duration `env:"REDIS_MAX_WAIT"          envDefault:"10s"`
	RedisPingTimeout      time.Duration `env:"REDIS_PING_TIMEOUT"      envDefault:"5s"`
	RedisPoolSize         int           `env:"REDIS_POOL_SIZE"         envDefault:"10"`
	RedisConnectTimeout   time.Duration `env:"REDIS_CONNECT_TIMEOUT"   envDefault:"30s"`
	RedisRetryInterval    time.Duration `env:"REDIS_RETRY_INTERVAL"    envDefault:"2s"`
	RedisWarnThreshold    int           `env:"REDIS_WARN_THRESHOLD"    envDefault:"3"`

	// Access restrictions
	AllowedHosts    []string `env:"ALLOWED_HOSTS"      envSeparator:","` // optional, restrict access to specific Host headers
	TrustedCIDRS    []string `env:"TRUSTED_CIDRS"      envSeparator:","` // optional, clients allowed to redirect, 404 and delete
	TrustProxy      bool     `env:"TRUST_PROXY"        envDefault:"false"`
	RateLimitBurst  int      `env:"RATE_LIMIT_BURST"   envDefault:"20"`
	RateLimitPerMin int      `env:"RATE_LIMIT_PER_MIN" envDefault:"60"`

	// Background jobs
	SeedFile      string        `env:"SEED_FILE"` // optional, empty = seeding disabled
	SeedInterval  time.Duration `env:"SEED_INTERVAL"  envDefault:"24h"`
	PurgeInterval time.Duration `env:"PURGE_INTERVAL" envDefault:"24h"`
	PurgeAfter    time.Duration `env:"PURGE_AFTER"    envDefault:"720h"`

	// Tracing
	OTELEndpoint string `env:"OTEL_ENDPOINT"` // optional, empty = tracing disabled
}

// Load parses the environment and panics on invalid configuration.
func Load() *Config {
	cfg, err := Parse()
	if err != nil {
		panic(fmt.Sprintf("❌ FATAL: %v", err))
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		log.Printf("[DEBUG] cfg: %+v\n", cfg.Redacted())
	}

	return cfg
}

// Parse reads and validates the configuration without panicking.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: Prefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.AllowedHosts = splitAndTrim(cfg.AllowedHosts)
	cfg.TrustedCIDRS = splitAndTrim(cfg.TrustedCIDRS)
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store {
	case StoreMemory, StoreRedis:
	case StoreSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("%sSQLITE_PATH is required when %sSTORE=sqlite", Prefix, Prefix)
		}
	case StorePostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return fmt.Errorf("%sPOSTGRES_DSN is required when %sSTORE=postgres", Prefix, Prefix)
		}
	default:
		return fmt.Errorf("unknown store %q (want memory, sqlite, postgres or redis)", c.Store)
	}

	switch c.Cache {
	case CacheLRU:
		if c.KnownCacheSize <= 0 || c.UnknownCacheSize <= 0 {
			return fmt.Errorf("cache sizes must be > 0, got known=%d unknown=%d", c.KnownCacheSize, c.UnknownCacheSize)
		}
	case CacheRedis, CacheNull:
	default:
		return fmt.Errorf("unknown cache %q (want lru, redis or null)", c.Cache)
	}

	if c.TagMaxLen <= 0 || c.PairKeyMaxLen <= 0 || c.PairValueMaxBytes < 0 || c.URIMaxLen <= 0 {
		return fmt.Errorf("field limits must be positive")
	}

	// Validate Redis password configuration
	if c.NeedsRedis() && c.RedisPasswordRequired && c.RedisPassword == "" {
		return fmt.Errorf("%sREDIS_PASSWORD is required when %sREDIS_PASSWORD_REQUIRED=true", Prefix, Prefix)
	}

	for _, cidr := range c.TrustedCIDRS {
		if _, err := parseCIDR(cidr); err != nil {
			return fmt.Errorf("invalid %sTRUSTED_CIDRS entry %q: %w", Prefix, cidr, err)
		}
	}

	if c.PurgeAfter <= 0 {
		return fmt.Errorf("%sPURGE_AFTER must be > 0, got %v", Prefix, c.PurgeAfter)
	}
	return nil
}

// NeedsRedis reports whether any backend talks to Redis.
func (c *Config) NeedsRedis() bool {
	return c.Store == StoreRedis || c.Cache == CacheRedis
}

// Limits returns the configured field bounds.
func (c *Config) Limits() domain.Limits {
	return domain.Limits{
		TagMaxLen:         c.TagMaxLen,
		PairKeyMaxLen:     c.PairKeyMaxLen,
		PairValueMaxBytes: c.PairValueMaxBytes,
		URIMaxLen:         c.URIMaxLen,
	}
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() Config {
	cfgCopy := *c
	if cfgCopy.RedisPassword != "" {
		cfgCopy.RedisPassword = "***REDACTED***"
	}
	if cfgCopy.RedisUser != "" {
		cfgCopy.RedisUser = "***REDACTED***"
	}
	if cfgCopy.PostgresDSN != "" {
		cfgCopy.PostgresDSN = "***REDACTED***"
	}
	return cfgCopy
}

// parseCIDR accepts a prefix or a bare address.
func parseCIDR(s string) (netip.Prefix, error) {
	if strings.Contains(s, "/") {
		return netip.ParsePrefix(s)
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

func splitAndTrim(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	parts := make([]string, 0, len(values))
	for _, part := range values {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	if len(parts) == 0 {
		return nil
	}
	return parts
}
