// Package config decodes process configuration from the environment,
// grounded on internal/config/config.go's env-driven Config struct but
// using envdecode's struct tags instead of hand-rolled getEnv/getIntEnv
// helpers.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config holds every environment-derived setting cmd/appserver needs to
// wire the enrichment backend.
type Config struct {
	Env string `env:"APP_ENV,default=development"`

	HTTPAddr string `env:"HTTP_ADDR,default=:8080"`

	Storage    string `env:"STORAGE_BACKEND,default=postgres"` // cmd/appserver accepts postgres only
	PostgresDSN string `env:"DATABASE_URL"`

	ClickHouseDSN string `env:"CLICKHOUSE_DSN"`

	WorkflowBackend string `env:"WORKFLOW_BACKEND,default=redis"` // redis|inprocess
	RedisAddr       string `env:"REDIS_ADDR,default=localhost:6379"`
	RedisQueueKey   string `env:"REDIS_QUEUE_KEY,default=enrichment:workflows"` // not read: the queue key is fixed in internal/app/workflow/redis.go

	VaultMasterKeyHex string `env:"VAULT_MASTER_KEY_HEX"`

	WebhookWorkerCount   int           `env:"WEBHOOK_WORKER_COUNT,default=4"`
	WebhookDeliveryTimeout time.Duration `env:"WEBHOOK_DELIVERY_TIMEOUT,default=10s"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=text"`

	MetricsEnabled bool `env:"METRICS_ENABLED,default=true"`
	MetricsAddr    string `env:"METRICS_ADDR,default=:9090"`

	AuditLogPath string `env:"AUDIT_LOG_PATH"`

	ProviderAdapterRateLimitPerSec float64 `env:"PROVIDER_ADAPTER_RATE_LIMIT_PER_SEC,default=20"`

	ProvidersConfigPath string `env:"PROVIDERS_CONFIG_PATH,default=config/providers.yaml"`

	VaultBackend        string `env:"VAULT_BACKEND,default=static"` // static|azure_keyvault
	AzureVaultURL       string `env:"AZURE_VAULT_URL"`
	AzureVaultSecretName string `env:"AZURE_VAULT_SECRET_NAME,default=enrichlayer-master-key"`

	ClickHouseMigrationsEnabled bool `env:"CLICKHOUSE_MIGRATIONS_ENABLED,default=false"`

	WebhookRetrySweepSchedule string `env:"WEBHOOK_RETRY_SWEEP_SCHEDULE,default=@every 5m"`
	WebhookMaxSweeps          int    `env:"WEBHOOK_MAX_SWEEPS,default=5"`

	ApolloBaseURL   string `env:"APOLLO_BASE_URL,default=https://api.apollo.io"`
	ClearbitBaseURL string `env:"CLEARBIT_BASE_URL,default=https://person.clearbit.com"`
	HunterBaseURL   string `env:"HUNTER_BASE_URL,default=https://api.hunter.io"`
}

// Load reads an optional .env file for the current APP_ENV, then decodes
// environment variables into a Config. Missing .env files are not an
// error; a malformed one is.
func Load() (*Config, error) {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	envFile := fmt.Sprintf(".env.%s", env)
	if err := godotenv.Load(envFile); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
		_ = godotenv.Load() // fall back to a plain .env if present
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if cfg.Storage == "postgres" && cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("DATABASE_URL is required when STORAGE_BACKEND=postgres")
	}
	if cfg.VaultBackend == "static" && cfg.VaultMasterKeyHex == "" {
		return nil, fmt.Errorf("VAULT_MASTER_KEY_HEX is required when VAULT_BACKEND=static")
	}
	if cfg.VaultBackend == "azure_keyvault" && cfg.AzureVaultURL == "" {
		return nil, fmt.Errorf("AZURE_VAULT_URL is required when VAULT_BACKEND=azure_keyvault")
	}
	return &cfg, nil
}
