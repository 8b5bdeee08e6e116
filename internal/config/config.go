package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"kora"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"kora"`

	NSQLookupd string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP   string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`

	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// SecretKey encrypts provider API keys at rest. Any non-empty string;
	// it is stretched to a cipher key before use.
	SecretKey string `envconfig:"KORA_SECRET_KEY"`

	// Ingestion
	ChunkMaxSize   int `envconfig:"CHUNK_MAX_SIZE" default:"1000"`
	ChunkOverlap   int `envconfig:"CHUNK_OVERLAP" default:"200"`
	EmbedBatchSize int `envconfig:"EMBED_BATCH_SIZE" default:"5"`

	// Retrieval
	RetrievalTopK      int     `envconfig:"RETRIEVAL_TOP_K" default:"5"`
	RetrievalThreshold float64 `envconfig:"RETRIEVAL_THRESHOLD" default:"0.78"`

	// Provider rate limiting (requests per minute, per provider+operation)
	ProviderRPM int `envconfig:"PROVIDER_RPM" default:"60"`

	// Server
	ServerPort      int    `envconfig:"SERVER_PORT" default:"8081"`
	MaxUploadSizeMB int64  `envconfig:"MAX_UPLOAD_SIZE_MB" default:"50"`
	UploadDir       string `envconfig:"KORA_UPLOAD_DIR" default:"./uploads"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Env vars may be set in the shell; .env files are best-effort.
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	rootEnv := filepath.Join(cwd, "../../.env")
	_ = godotenv.Load(rootEnv)

	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.SecretKey == "" {
		return fmt.Errorf("%w: KORA_SECRET_KEY", ErrMissingRequired)
	}
	if c.ChunkOverlap >= c.ChunkMaxSize {
		return fmt.Errorf("CHUNK_OVERLAP must be smaller than CHUNK_MAX_SIZE")
	}
	return nil
}
