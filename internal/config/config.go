package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	CounterPostgres = "postgres"
	CounterRedis    = "redis"
	CounterFile     = "file"

	ContentPinata = "pinata"
	ContentLocal  = "local"

	ImageFixed = "fixed"
	ImageAsset = "asset"
)

type Config struct {
	// Server
	Port               string   `envconfig:"PORT" default:"8080"`
	Environment        string   `envconfig:"ENVIRONMENT" default:"development"`
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogFile  string `envconfig:"LOG_FILE"`

	// Ledger database
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// Token counter and mint lock
	CounterBackend string        `envconfig:"COUNTER_BACKEND" default:"postgres"`
	CounterName    string        `envconfig:"COUNTER_NAME" default:"token"`
	CounterFile    string        `envconfig:"COUNTER_FILE" default:"token_id_tracker.json"`
	RedisURL       string        `envconfig:"REDIS_URL"`
	MintLockTTL    time.Duration `envconfig:"MINT_LOCK_TTL" default:"5m"`

	// Content store
	ContentBackend   string        `envconfig:"CONTENT_BACKEND" default:"pinata"`
	PinataAPIKey     string        `envconfig:"PINATA_API_KEY"`
	PinataSecretKey  string        `envconfig:"PINATA_SECRET_API_KEY"`
	PinataEndpoint   string        `envconfig:"PINATA_ENDPOINT" default:"https://api.pinata.cloud/pinning/pinFileToIPFS"`
	PinataGateway    string        `envconfig:"PINATA_GATEWAY" default:"https://gateway.pinata.cloud/ipfs"`
	ContentLocalDir  string        `envconfig:"CONTENT_LOCAL_DIR" default:"content"`
	ContentPublicURL string        `envconfig:"CONTENT_PUBLIC_URL" default:"http://localhost:8080/content"`
	PublishTimeout   time.Duration `envconfig:"PUBLISH_TIMEOUT" default:"60s"`

	// Card images
	ImagePolicy    string `envconfig:"IMAGE_POLICY" default:"fixed"`
	ImageFixedPath string `envconfig:"IMAGE_FIXED_PATH"`
	ImageAssetDir  string `envconfig:"IMAGE_ASSET_DIR"`
	SampleAttempts int    `envconfig:"SAMPLE_ATTEMPTS" default:"16"`
	CollectionName string `envconfig:"COLLECTION_NAME" default:"SegaUNLEASHED"`

	// Chain
	ChainRPCURL          string        `envconfig:"CHAIN_RPC_URL" required:"true"`
	ChainPrivateKey      string        `envconfig:"CHAIN_PRIVATE_KEY" required:"true"`
	ChainContractAddress string        `envconfig:"CHAIN_CONTRACT_ADDRESS" required:"true"`
	ChainID              int64         `envconfig:"CHAIN_CHAIN_ID" default:"0"`
	ChainSubmitTimeout   time.Duration `envconfig:"CHAIN_SUBMIT_TIMEOUT" default:"30s"`
	ChainConfirmTimeout  time.Duration `envconfig:"CHAIN_CONFIRM_TIMEOUT" default:"2m"`

	// Battle collaborator
	BattleJWTSecret string `envconfig:"BATTLE_JWT_SECRET" required:"true"`

	// Reconciliation
	ReconcileFile     string `envconfig:"RECONCILE_FILE" default:"reconciliation.jsonl"`
	ReconcileSchedule string `envconfig:"RECONCILE_SCHEDULE" default:"@every 1m"`

	LeaderboardSize int `envconfig:"LEADERBOARD_SIZE" default:"10"`
}

// Load reads a .env file if present, then the environment. Any missing
// required setting is an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that are only required for some backends.
func (c *Config) Validate() error {
	var errs []error

	switch c.CounterBackend {
	case CounterPostgres, CounterFile:
	case CounterRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required when COUNTER_BACKEND=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("COUNTER_BACKEND must be one of postgres, redis, file; got %q", c.CounterBackend))
	}

	if c.MintLockTTL <= 0 {
		errs = append(errs, fmt.Errorf("MINT_LOCK_TTL must be positive; got %s", c.MintLockTTL))
	}

	switch c.ContentBackend {
	case ContentPinata:
		if c.PinataAPIKey == "" || c.PinataSecretKey == "" {
			errs = append(errs, errors.New("PINATA_API_KEY and PINATA_SECRET_API_KEY are required when CONTENT_BACKEND=pinata"))
		}
	case ContentLocal:
		if c.ContentLocalDir == "" {
			errs = append(errs, errors.New("CONTENT_LOCAL_DIR is required when CONTENT_BACKEND=local"))
		}
	default:
		errs = append(errs, fmt.Errorf("CONTENT_BACKEND must be pinata or local; got %q", c.ContentBackend))
	}

	switch c.ImagePolicy {
	case ImageFixed:
		if c.ImageFixedPath == "" {
			errs = append(errs, errors.New("IMAGE_FIXED_PATH is required when IMAGE_POLICY=fixed"))
		}
	case ImageAsset:
		if c.ImageAssetDir == "" {
			errs = append(errs, errors.New("IMAGE_ASSET_DIR is required when IMAGE_POLICY=asset"))
		}
	default:
		errs = append(errs, fmt.Errorf("IMAGE_POLICY must be fixed or asset; got %q", c.ImagePolicy))
	}

	if c.SampleAttempts < 1 {
		errs = append(errs, errors.New("SAMPLE_ATTEMPTS must be at least 1"))
	}
	if c.LeaderboardSize < 1 {
		errs = append(errs, errors.New("LEADERBOARD_SIZE must be at least 1"))
	}
	if strings.TrimSpace(c.CollectionName) == "" {
		errs = append(errs, errors.New("COLLECTION_NAME must not be empty"))
	}

	return errors.Join(errs...)
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// ShutdownTimeout covers one card still in flight: its uploads, its chain
// submit and confirmation, plus time for the HTTP server to close.
func (c *Config) ShutdownTimeout() time.Duration {
	budget := 2*c.PublishTimeout + c.ChainSubmitTimeout + c.ChainConfirmTimeout + 30*time.Second
	if budget < 30*time.Second {
		return 30 * time.Second
	}
	return budget
}
