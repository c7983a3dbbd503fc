package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	configschema "github.com/cordum/packedge/core/infra/schema"
	"gopkg.in/yaml.v3"
)

type fileConfig struct {
	HTTPAddr    string `yaml:"http_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	PackStore   struct {
		URL     string `yaml:"url"`
		APIKey  string `yaml:"api_key"`
		Timeout string `yaml:"timeout"`
	} `yaml:"pack_store"`
	Search struct {
		URL string `yaml:"url"`
	} `yaml:"search"`
	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
	CacheControl    string            `yaml:"cache_control"`
	SecurityHeaders map[string]string `yaml:"security_headers"`
	RateLimit       struct {
		RPS   *int `yaml:"rps"`
		Burst *int `yaml:"burst"`
	} `yaml:"rate_limit"`
	Gzip  *bool `yaml:"gzip"`
	Redis struct {
		URL         string `yaml:"url"`
		IncidentTTL string `yaml:"incident_ttl"`
	} `yaml:"redis"`
	NATS struct {
		URL     string `yaml:"url"`
		Subject string `yaml:"subject"`
	} `yaml:"nats"`
	AdminToken string `yaml:"admin_token"`
}

// LoadFile reads a YAML overlay, validates it against the embedded schema and
// layers environment variables on top.
func LoadFile(path string) (*Config, error) {
	// #nosec G304 -- config path is operator-provided.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read edge config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.ConfigPath = path
	applyEnv(cfg)
	return cfg, nil
}

// Parse builds a Config from YAML bytes layered over defaults. Environment
// variables are not consulted.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if len(strings.TrimSpace(string(data))) == 0 {
		return cfg, nil
	}
	if err := validateConfigSchema("edge", edgeSchemaFile, data); err != nil {
		return nil, err
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse edge config: %w", err)
	}
	if err := fc.apply(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (fc *fileConfig) apply(cfg *Config) error {
	overlay(&cfg.HTTPAddr, fc.HTTPAddr)
	overlay(&cfg.MetricsAddr, fc.MetricsAddr)
	overlay(&cfg.PackStoreURL, fc.PackStore.URL)
	overlay(&cfg.PackStoreAPIKey, fc.PackStore.APIKey)
	overlay(&cfg.SearchAPIURL, fc.Search.URL)
	overlay(&cfg.DefaultCacheControl, fc.CacheControl)
	overlay(&cfg.RedisURL, fc.Redis.URL)
	overlay(&cfg.NatsURL, fc.NATS.URL)
	overlay(&cfg.EventsSubject, fc.NATS.Subject)
	overlay(&cfg.AdminToken, fc.AdminToken)
	if fc.PackStore.Timeout != "" {
		d, err := time.ParseDuration(fc.PackStore.Timeout)
		if err != nil || d <= 0 {
			return fmt.Errorf("parse edge config: invalid pack_store.timeout %q", fc.PackStore.Timeout)
		}
		cfg.UpstreamTimeout = d
	}
	if fc.Redis.IncidentTTL != "" {
		d, err := time.ParseDuration(fc.Redis.IncidentTTL)
		if err != nil || d <= 0 {
			return fmt.Errorf("parse edge config: invalid redis.incident_ttl %q", fc.Redis.IncidentTTL)
		}
		cfg.IncidentTTL = d
	}
	if len(fc.CORS.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = append([]string(nil), fc.CORS.AllowedOrigins...)
	}
	if len(fc.SecurityHeaders) > 0 {
		cfg.SecurityHeaders = make(map[string]string, len(fc.SecurityHeaders))
		for k, v := range fc.SecurityHeaders {
			cfg.SecurityHeaders[k] = v
		}
	}
	if fc.RateLimit.RPS != nil {
		cfg.RateLimitRPS = *fc.RateLimit.RPS
	}
	if fc.RateLimit.Burst != nil {
		cfg.RateLimitBurst = *fc.RateLimit.Burst
	}
	if fc.Gzip != nil {
		cfg.Gzip = *fc.Gzip
	}
	return nil
}

func overlay(dst *string, val string) {
	if v := strings.TrimSpace(val); v != "" {
		*dst = v
	}
}

func validateConfigSchema(name, schemaPath string, data []byte) error {
	schemaBytes, err := configSchemaFS.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("load %s schema: %w", name, err)
	}
	var payload any
	if err := yaml.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("parse %s config: %w", name, err)
	}
	// Round-trip through JSON so the validator sees JSON-native types.
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("parse %s config: %w", name, err)
	}
	if err := configschema.ValidateSchema(name+"-config", schemaBytes, raw); err != nil {
		return fmt.Errorf("validate %s config: %w", name, err)
	}
	return nil
}
