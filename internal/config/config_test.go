package config

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"ListenPort", cfg.ListenPort, ":8080"},
		{"ShutdownTimeout", cfg.ShutdownTimeout, 5 * time.Second},
		{"LogLevel", cfg.LogLevel, "info"},
		{"PrettyLog", cfg.PrettyLog, true},
		{"Store", cfg.Store, StoreSQLite},
		{"Cache", cfg.Cache, CacheLRU},
		{"KnownCacheSize", cfg.KnownCacheSize, 1000},
		{"UnknownCacheSize", cfg.UnknownCacheSize, 100},
		{"CacheNamespace", cfg.CacheNamespace, "urldammit"},
		{"CacheTTL", cfg.CacheTTL, 24 * time.Hour},
		{"PurgeAfter", cfg.PurgeAfter, 720 * time.Hour},
		{"SeedInterval", cfg.SeedInterval, 24 * time.Hour},
		{"TrustedCIDRS", cfg.TrustedCIDRS, []string(nil)},
	}
	for _, tt := range tests {
		if !reflect.DeepEqual(tt.got, tt.want) {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}

	limits := cfg.Limits()
	if limits.TagMaxLen != 20 || limits.PairKeyMaxLen != 20 || limits.PairValueMaxBytes != 100 || limits.URIMaxLen != 255 {
		t.Errorf("Limits() = %+v, want defaults", limits)
	}
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("URLDAMMIT_STORE", "redis")
	t.Setenv("URLDAMMIT_CACHE", "null")
	t.Setenv("URLDAMMIT_TAG_MAX_LEN", "8")
	t.Setenv("URLDAMMIT_BASE_URL", "https://u.example.com/")
	t.Setenv("URLDAMMIT_TRUSTED_CIDRS", ` 10.0.0.0/8, "192.168.1.10" ,`)
	t.Setenv("URLDAMMIT_PURGE_AFTER", "48h")

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Store != StoreRedis || cfg.Cache != CacheNull {
		t.Errorf("Store, Cache = %q, %q", cfg.Store, cfg.Cache)
	}
	if !cfg.NeedsRedis() {
		t.Error("NeedsRedis() = false with redis store")
	}
	if cfg.Limits().TagMaxLen != 8 {
		t.Errorf("TagMaxLen = %d, want 8", cfg.Limits().TagMaxLen)
	}
	if cfg.BaseURL != "https://u.example.com" {
		t.Errorf("BaseURL = %q, want trailing slash trimmed", cfg.BaseURL)
	}
	if want := []string{"10.0.0.0/8", "192.168.1.10"}; !reflect.DeepEqual(cfg.TrustedCIDRS, want) {
		t.Errorf("TrustedCIDRS = %v, want %v", cfg.TrustedCIDRS, want)
	}
	if cfg.PurgeAfter != 48*time.Hour {
		t.Errorf("PurgeAfter = %v, want 48h", cfg.PurgeAfter)
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unknown store", map[string]string{"URLDAMMIT_STORE": "mysql"}, "unknown store"},
		{"unknown cache", map[string]string{"URLDAMMIT_CACHE": "memcached"}, "unknown cache"},
		{"postgres without dsn", map[string]string{"URLDAMMIT_STORE": "postgres"}, "POSTGRES_DSN"},
		{"zero cache size", map[string]string{"URLDAMMIT_KNOWN_CACHE_SIZE": "0"}, "cache sizes"},
		{"bad cidr", map[string]string{"URLDAMMIT_TRUSTED_CIDRS": "10.0.0.0/99"}, "TRUSTED_CIDRS"},
		{"bad duration", map[string]string{"URLDAMMIT_CACHE_TTL": "soon"}, "parse env"},
		{"negative limit", map[string]string{"URLDAMMIT_URI_MAX_LEN": "-1"}, "field limits"},
		{
			"redis password required",
			map[string]string{"URLDAMMIT_CACHE": "redis", "URLDAMMIT_REDIS_PASSWORD_REQUIRED": "true"},
			"REDIS_PASSWORD",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Parse()
			if err == nil {
				t.Fatal("Parse() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Parse() error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadPanicsOnInvalid(t *testing.T) {
	t.Setenv("URLDAMMIT_STORE", "mysql")
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("Load() should have panicked")
		}
		if msg, _ := r.(string); !strings.HasPrefix(msg, "❌ FATAL:") {
			t.Errorf("panic = %v, want FATAL message", r)
		}
	}()
	Load()
}

func TestRedacted(t *testing.T) {
	cfg := &Config{RedisUser: "u", RedisPassword: "secret", PostgresDSN: "postgres://u:p@h/db"}
	red := cfg.Redacted()
	for _, v := range []string{red.RedisUser, red.RedisPassword, red.PostgresDSN} {
		if v != "***REDACTED***" {
			t.Errorf("Redacted() leaked %q", v)
		}
	}
	if cfg.RedisPassword != "secret" {
		t.Error("Redacted() modified the original")
	}
}

func TestSplitAndTrim(t *testing.T) {
	tests := []struct {
		in   []string
		want []string
	}{
		{nil, nil},
		{[]string{""}, nil},
		{[]string{" a ", "'b'", `"c"`, ""}, []string{"a", "b", "c"}},
	}
	for _, tt := range tests {
		if got := splitAndTrim(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitAndTrim(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
