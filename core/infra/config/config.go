package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHTTPAddr        = ":8787"
	defaultMetricsAddr     = ":9093"
	defaultPackStoreURL    = "http://localhost:3000"
	defaultUpstreamTimeout = 5 * time.Second
	defaultCacheControl    = "public, max-age=300"
	defaultRateLimitRPS    = 200
	defaultRateLimitBurst  = 400
	defaultIncidentTTL     = 7 * 24 * time.Hour
	defaultEventsSubject   = "edge.events"

	envHTTPAddr        = "EDGE_HTTP_ADDR"
	envMetricsAddr     = "EDGE_METRICS_ADDR"
	envPackStoreURL    = "PACK_STORE_URL"
	envPackStoreAPIKey = "PACK_STORE_API_KEY"
	envSearchAPIURL    = "SEARCH_API_URL"
	envUpstreamTimeout = "EDGE_UPSTREAM_TIMEOUT"
	envAllowedOrigins  = "EDGE_ALLOWED_ORIGINS"
	envCacheControl    = "EDGE_CACHE_CONTROL"
	envRateLimitRPS    = "EDGE_RATE_LIMIT_RPS"
	envRateLimitBurst  = "EDGE_RATE_LIMIT_BURST"
	envGzip            = "EDGE_GZIP"
	envRedisURL        = "REDIS_URL"
	envIncidentTTL     = "INCIDENT_TTL"
	envNATSURL         = "NATS_URL"
	envEventsSubject   = "EDGE_EVENTS_SUBJECT"
	envAdminToken      = "EDGE_ADMIN_TOKEN"
	envConfigPath      = "EDGE_CONFIG_PATH"
)

// Config holds runtime configuration for the edge router. It is built once at
// startup and treated as read-only afterwards.
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	PackStoreURL    string
	PackStoreAPIKey string
	SearchAPIURL    string
	UpstreamTimeout time.Duration

	AllowedOrigins      []string
	DefaultCacheControl string
	SecurityHeaders     map[string]string

	RateLimitRPS   int
	RateLimitBurst int
	Gzip           bool

	RedisURL      string
	IncidentTTL   time.Duration
	NatsURL       string
	EventsSubject string

	AdminToken string
	ConfigPath string
}

// Load returns configuration using environment variables with sane defaults.
func Load() *Config {
	cfg := defaults()
	applyEnv(cfg)
	return cfg
}

// LoadWithFile layers defaults, the YAML file named by EDGE_CONFIG_PATH (when
// set), then environment variables.
func LoadWithFile() (*Config, error) {
	path := strings.TrimSpace(os.Getenv(envConfigPath))
	if path == "" {
		return Load(), nil
	}
	return LoadFile(path)
}

// SearchURL returns the search upstream, defaulting to the pack store search API.
func (c *Config) SearchURL() string {
	if c == nil {
		return ""
	}
	if c.SearchAPIURL != "" {
		return c.SearchAPIURL
	}
	return strings.TrimRight(c.PackStoreURL, "/") + "/api/search"
}

// AdminEnabled reports whether the admin endpoints are reachable.
func (c *Config) AdminEnabled() bool {
	return c != nil && c.AdminToken != ""
}

func defaults() *Config {
	return &Config{
		HTTPAddr:            defaultHTTPAddr,
		MetricsAddr:         defaultMetricsAddr,
		PackStoreURL:        defaultPackStoreURL,
		UpstreamTimeout:     defaultUpstreamTimeout,
		DefaultCacheControl: defaultCacheControl,
		RateLimitRPS:        defaultRateLimitRPS,
		RateLimitBurst:      defaultRateLimitBurst,
		Gzip:                true,
		IncidentTTL:         defaultIncidentTTL,
		EventsSubject:       defaultEventsSubject,
	}
}

func applyEnv(cfg *Config) {
	setString(&cfg.HTTPAddr, envHTTPAddr)
	setString(&cfg.MetricsAddr, envMetricsAddr)
	setString(&cfg.PackStoreURL, envPackStoreURL)
	setString(&cfg.PackStoreAPIKey, envPackStoreAPIKey)
	setString(&cfg.SearchAPIURL, envSearchAPIURL)
	setString(&cfg.DefaultCacheControl, envCacheControl)
	setString(&cfg.RedisURL, envRedisURL)
	setString(&cfg.NatsURL, envNATSURL)
	setString(&cfg.EventsSubject, envEventsSubject)
	setString(&cfg.AdminToken, envAdminToken)
	setString(&cfg.ConfigPath, envConfigPath)
	setDuration(&cfg.UpstreamTimeout, envUpstreamTimeout)
	setDuration(&cfg.IncidentTTL, envIncidentTTL)
	setInt(&cfg.RateLimitRPS, envRateLimitRPS)
	setInt(&cfg.RateLimitBurst, envRateLimitBurst)
	if raw := strings.TrimSpace(os.Getenv(envGzip)); raw != "" {
		cfg.Gzip = parseBool(raw)
	}
	if raw := strings.TrimSpace(os.Getenv(envAllowedOrigins)); raw != "" {
		cfg.AllowedOrigins = splitList(raw)
	}
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) {
	if raw := strings.TrimSpace(os.Getenv(key)); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			*dst = d
		}
	}
}

func setInt(dst *int, key string) {
	if raw := strings.TrimSpace(os.Getenv(key)); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			*dst = n
		}
	}
}

func parseBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func splitList(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
