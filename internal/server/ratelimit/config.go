package ratelimit

import (
	"strconv"
	"strings"
	"time"
)

// EndpointConfig limits one route. Path segments written as "*" match any single
// segment, so "/v1/documents/*/generate" covers every document.
type EndpointConfig struct {
	Path   string
	Method string
	Limit  int           // requests per Window
	Window time.Duration
	Burst  int // defaults to Limit when 0
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool
	DefaultLimit    int
	DefaultWindow   time.Duration
	CleanupInterval time.Duration
	IdleTTL         time.Duration // clients unseen this long are forgotten
	Allowlist       map[string]bool
	Denylist        map[string]bool
	Endpoints       []EndpointConfig
}

// DefaultConfig is the configuration used when no environment overrides apply.
func DefaultConfig() *Config {
	return &Config{
		Enabled:         true,
		DefaultLimit:    1000,
		DefaultWindow:   time.Minute,
		CleanupInterval: 5 * time.Minute,
		IdleTTL:         time.Hour,
		Allowlist:       map[string]bool{},
		Denylist:        map[string]bool{},
		Endpoints:       DefaultEndpoints(),
	}
}

// DefaultEndpoints returns the per-route limits. Generation dispatches a model call,
// so it gets the strictest budget.
func DefaultEndpoints() []EndpointConfig {
	return []EndpointConfig{
		{Path: "/v1/documents/*/generate", Method: "POST", Limit: 60, Window: time.Hour, Burst: 5},
		{Path: "/v1/documents/*/variants", Method: "POST", Limit: 100, Window: time.Minute, Burst: 10},
	}
}

// LoadConfig applies RATE_LIMIT_* variables on top of DefaultConfig. Unparseable
// values keep the default. getenv is usually os.Getenv.
func LoadConfig(getenv func(string) string) *Config {
	cfg := DefaultConfig()
	cfg.Enabled = envBool(getenv, "RATE_LIMIT_ENABLED", cfg.Enabled)
	if !cfg.Enabled {
		return cfg
	}

	cfg.DefaultLimit = envInt(getenv, "RATE_LIMIT_DEFAULT_LIMIT", cfg.DefaultLimit)
	cfg.DefaultWindow = envDuration(getenv, "RATE_LIMIT_DEFAULT_WINDOW", cfg.DefaultWindow)
	cfg.CleanupInterval = envDuration(getenv, "RATE_LIMIT_CLEANUP_INTERVAL", cfg.CleanupInterval)
	cfg.Allowlist = parseList(getenv("RATE_LIMIT_ALLOWLIST"))
	cfg.Denylist = parseList(getenv("RATE_LIMIT_DENYLIST"))

	if limit := envInt(getenv, "RATE_LIMIT_GENERATE_PER_HOUR", 0); limit > 0 {
		cfg.Endpoints[0].Limit = limit
	}
	return cfg
}

// Match returns the endpoint configuration for a request, or nil when the default
// applies.
func (c *Config) Match(path, method string) *EndpointConfig {
	for i := range c.Endpoints {
		ep := &c.Endpoints[i]
		if ep.Method == method && pathMatches(ep.Path, path) {
			return ep
		}
	}
	return nil
}

func pathMatches(pattern, path string) bool {
	want := strings.Split(strings.Trim(pattern, "/"), "/")
	got := strings.Split(strings.Trim(path, "/"), "/")
	if len(want) != len(got) {
		return false
	}
	for i := range want {
		if want[i] != "*" && want[i] != got[i] {
			return false
		}
	}
	return true
}

func envInt(getenv func(string) string, key string, def int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(getenv(key))); err == nil {
		return n
	}
	return def
}

func envBool(getenv func(string) string, key string, def bool) bool {
	if b, err := strconv.ParseBool(strings.TrimSpace(getenv(key))); err == nil {
		return b
	}
	return def
}

func envDuration(getenv func(string) string, key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(getenv(key))); err == nil {
		return d
	}
	return def
}

func parseList(list string) map[string]bool {
	out := make(map[string]bool)
	for _, item := range strings.Split(list, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out[item] = true
		}
	}
	return out
}
