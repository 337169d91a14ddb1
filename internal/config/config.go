// Package config loads convoy's process-wide settings: storage connection
// strings, the LLM proxy and knowledge-service base URLs, and the tunable
// defaults (debounce window, credit rate, tracing sampling), with per-tenant
// credit-rate overrides kept in the same file. A YAML file plus CONVOY_*
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/orbitalcx/convoy/internal/tracing"
)

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LLMProxyConfig points at the OpenAI-compatible completion/classification
// proxy the pipeline and ticket guard call through internal/llmproxy.
type LLMProxyConfig struct {
	BaseURL string `yaml:"base_url"`
}

// KnowledgeConfig configures the knowledge index's embedded vector store
// and reranker.
type KnowledgeConfig struct {
	VectorDBPath  string `yaml:"vector_db_path"`
	RerankBaseURL string `yaml:"rerank_base_url"`
}

// DebounceConfig sets the default quiescence window; a tenant never
// overrides this today, but operators tune it here without a redeploy.
type DebounceConfig struct {
	WindowSeconds int `yaml:"window_seconds"`
}

// CreditsConfig sets the default per-token billing rate, used when
// neither the proxy's cost_usd nor a tenant-specific override applies.
type CreditsConfig struct {
	DefaultRatePerToken float64            `yaml:"default_rate_per_token"`
	TenantRateOverrides map[string]float64 `yaml:"tenant_rate_overrides"`
}

// TicketsConfig parameterizes the ticket guard beyond its built-in
// defaults: a per-tenant CEL expression over {message_count, priority,
// category, minutes_open} that, when true on a repeat contact, bumps an
// already-open ticket's priority one step.
type TicketsConfig struct {
	TenantEscalationExprs map[string]string `yaml:"tenant_escalation_exprs"`
}

// S3Config backs media_url presigning and object fetches. Endpoint and
// the static key pair are only set for MinIO-style deployments; empty means
// the ambient AWS credential chain.
type S3Config struct {
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type Config struct {
	BindAddr string `yaml:"bind_addr"`
	LogLevel string `yaml:"log_level"`

	Postgres  PostgresConfig     `yaml:"postgres"`
	Redis     RedisConfig        `yaml:"redis"`
	LLMProxy  LLMProxyConfig     `yaml:"llm_proxy"`
	Knowledge KnowledgeConfig    `yaml:"knowledge"`
	Debounce  DebounceConfig     `yaml:"debounce"`
	Credits   CreditsConfig      `yaml:"credits"`
	Tickets   TicketsConfig      `yaml:"tickets"`
	S3        S3Config           `yaml:"s3"`
	Tracing   tracing.OtelConfig `yaml:"tracing"`
}

// DebounceWindow returns the configured window as a time.Duration,
// defaulting to 5s (matching internal/debounce's own fallback) when unset.
func (c Config) DebounceWindow() time.Duration {
	if c.Debounce.WindowSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Debounce.WindowSeconds) * time.Second
}

// CreditRateFor returns the effective per-token rate for tenantID, falling
// back to DefaultRatePerToken when no tenant-specific override is configured.
func (c Config) CreditRateFor(tenantID string) float64 {
	if rate, ok := c.Credits.TenantRateOverrides[tenantID]; ok && rate > 0 {
		return rate
	}
	if c.Credits.DefaultRatePerToken > 0 {
		return c.Credits.DefaultRatePerToken
	}
	return 0.000002
}

// EscalationExprFor returns the tenant's configured auto-escalation
// predicate, or "" when escalation is not enabled for the tenant.
func (c Config) EscalationExprFor(tenantID string) string {
	return c.Tickets.TenantEscalationExprs[tenantID]
}

func defaultConfig() Config {
	return Config{
		BindAddr: "0.0.0.0:8080",
		LogLevel: "info",
		Redis:    RedisConfig{Addr: "127.0.0.1:6379"},
		Knowledge: KnowledgeConfig{
			VectorDBPath: "./data/knowledge.db",
		},
		Debounce: DebounceConfig{WindowSeconds: 5},
		Credits:  CreditsConfig{DefaultRatePerToken: 0.000002},
	}
}

// Load reads path (a YAML file; a missing file is not an error, defaults
// apply) and layers CONVOY_* environment overrides on top.
func Load(path string) (Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	return cfg, nil
}

func normalize(cfg *Config) {
	if cfg.BindAddr == "" {
		cfg.BindAddr = "0.0.0.0:8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "127.0.0.1:6379"
	}
	if cfg.Debounce.WindowSeconds <= 0 {
		cfg.Debounce.WindowSeconds = 5
	}
	if cfg.Credits.DefaultRatePerToken <= 0 {
		cfg.Credits.DefaultRatePerToken = 0.000002
	}
	if cfg.Tracing.SampleRate <= 0 {
		cfg.Tracing.SampleRate = 1.0
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CONVOY_BIND_ADDR"); v != "" {
		cfg.BindAddr = v
	}
	if v := os.Getenv("CONVOY_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CONVOY_POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("CONVOY_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("CONVOY_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("CONVOY_LLM_PROXY_BASE_URL"); v != "" {
		cfg.LLMProxy.BaseURL = v
	}
	if v := os.Getenv("CONVOY_KNOWLEDGE_VECTOR_DB_PATH"); v != "" {
		cfg.Knowledge.VectorDBPath = v
	}
	if v := os.Getenv("CONVOY_KNOWLEDGE_RERANK_BASE_URL"); v != "" {
		cfg.Knowledge.RerankBaseURL = v
	}
	if v := os.Getenv("CONVOY_DEBOUNCE_WINDOW_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Debounce.WindowSeconds = n
		}
	}
	if v := os.Getenv("CONVOY_CREDITS_DEFAULT_RATE_PER_TOKEN"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Credits.DefaultRatePerToken = f
		}
	}
	if v := os.Getenv("CONVOY_S3_REGION"); v != "" {
		cfg.S3.Region = v
	}
	if v := os.Getenv("CONVOY_S3_BUCKET"); v != "" {
		cfg.S3.Bucket = v
	}
	if v := os.Getenv("CONVOY_S3_ENDPOINT"); v != "" {
		cfg.S3.Endpoint = v
	}
	if v := os.Getenv("CONVOY_S3_ACCESS_KEY_ID"); v != "" {
		cfg.S3.AccessKeyID = v
	}
	if v := os.Getenv("CONVOY_S3_SECRET_ACCESS_KEY"); v != "" {
		cfg.S3.SecretAccessKey = v
	}
	if v := os.Getenv("CONVOY_TRACING_ENABLED"); v != "" {
		cfg.Tracing.Enabled = v == "1" || v == "true"
	}
	if v := os.Getenv("CONVOY_TRACING_ENDPOINT"); v != "" {
		cfg.Tracing.Endpoint = v
	}
}

// Path resolves the config file location: CONVOY_CONFIG if set, otherwise
// ./convoy.yaml relative to the working directory.
func Path() string {
	if v := os.Getenv("CONVOY_CONFIG"); v != "" {
		return v
	}
	return filepath.Join(".", "convoy.yaml")
}
