package config

import (
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Storage backends selectable via PROV_STORAGE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Config carries everything the gateway needs, decoded from the
// environment. An optional .env file is merged in first.
type Config struct {
	ListenAddr string `env:"PROV_LISTEN_ADDR,default=0.0.0.0:9876"`

	StorageBackend string `env:"PROV_STORAGE_BACKEND,default=memory"`
	PostgresDSN    string `env:"PROV_POSTGRES_DSN"`

	// NodeSecret is the hex-encoded private key this node signs bundles with.
	NodeSecret string `env:"PROV_NODE_SECRET"`

	LedgerRPCURL  string        `env:"PROV_LEDGER_RPC_URL"`
	LedgerTimeout time.Duration `env:"PROV_LEDGER_TIMEOUT,default=30s"`

	// FinaliseSpec is a cron expression controlling bundle finalisation.
	// Empty disables the scheduler.
	FinaliseSpec string `env:"PROV_FINALISE_SPEC,default=@every 1m"`

	// RateLimit is requests per second allowed per caller address;
	// RateBurst the accompanying burst. Zero disables limiting.
	RateLimit float64 `env:"PROV_RATE_LIMIT,default=0"`
	RateBurst int     `env:"PROV_RATE_BURST,default=10"`

	// AuditFile mirrors the in-memory audit trail to a JSONL file when set.
	AuditFile string `env:"PROV_AUDIT_FILE"`

	LogLevel  string `env:"PROV_LOG_LEVEL,default=info"`
	LogFormat string `env:"PROV_LOG_FORMAT,default=text"`
}

// Load reads the optional .env file and decodes the environment.
func Load() (*Config, error) {
	// Missing .env is fine; explicit environment still applies.
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field requirements that envdecode cannot express.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("PROV_POSTGRES_DSN is required with the postgres backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}
	if c.NodeSecret == "" {
		return fmt.Errorf("PROV_NODE_SECRET is required")
	}
	return nil
}
