package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"tournament-registration/utils"
)

type App struct {
	Env string `envconfig:"ENV" default:"dev"`

	// DB
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// HTTP
	ListenAddr     string `envconfig:"LISTEN_ADDR" default:":5200"`
	AllowedOrigins string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000"`

	// Auth
	GatewayServiceToken string `envconfig:"GATEWAY_SERVICE_TOKEN"`
	JWTSecret           string `envconfig:"JWT_SECRET"`

	// Evidence storage: "local" or "r2"
	BlobDriver     string `envconfig:"BLOB_DRIVER" default:"local"`
	UploadDir      string `envconfig:"UPLOAD_DIR" default:"./uploads"`
	PublicBaseURL  string `envconfig:"PUBLIC_BASE_URL" default:"http://localhost:5200"`
	R2AccountID    string `envconfig:"R2_ACCOUNT_ID"`
	R2AccessKeyID  string `envconfig:"R2_ACCESS_KEY_ID"`
	R2AccessSecret string `envconfig:"R2_ACCESS_KEY_SECRET"`
	R2Bucket       string `envconfig:"R2_BUCKET"`
	CDNBaseURL     string `envconfig:"CDN_BASE_URL"`

	UploadCachePath string `envconfig:"UPLOAD_CACHE_PATH" default:"./data/upload-cache.db"`

	// Events
	RabbitURL      string `envconfig:"RABBIT_URL"`
	EventsExchange string `envconfig:"EVENTS_EXCHANGE" default:"tournament.events"`

	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	// Workers
	ProfileSyncURL      string        `envconfig:"PROFILE_SYNC_URL"`
	ProfileSyncPath     string        `envconfig:"PROFILE_SYNC_PATH" default:"/api/v1/public/profiles"`
	ProfileSyncInterval time.Duration `envconfig:"PROFILE_SYNC_INTERVAL" default:"2m"`
	DepositPollInterval time.Duration `envconfig:"DEPOSIT_POLL_INTERVAL" default:"10s"`

	SessionTTL time.Duration `envconfig:"SESSION_TTL" default:"30m"`

	// Amounts above these need a bank statement, e.g. "NGN:50000,INR:100000,USD:1000"
	ProofThresholds map[string]string `envconfig:"PROOF_THRESHOLDS" default:"NGN:50000,INR:100000,USD:1000"`
}

// Load reads .env (if any) and then the process environment.
func Load() (App, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}
	var c App
	if err := envconfig.Process("", &c); err != nil {
		return c, err
	}
	return c, c.validate()
}

func (c App) validate() error {
	switch c.BlobDriver {
	case "local":
	case "r2":
		if c.R2AccountID == "" || c.R2Bucket == "" {
			return fmt.Errorf("BLOB_DRIVER=r2 requires R2_ACCOUNT_ID and R2_BUCKET")
		}
	default:
		return fmt.Errorf("unknown BLOB_DRIVER %q", c.BlobDriver)
	}
	if c.GatewayServiceToken == "" && c.JWTSecret == "" {
		return fmt.Errorf("one of GATEWAY_SERVICE_TOKEN or JWT_SECRET must be set")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	_, err := c.Thresholds()
	return err
}

// Thresholds parses ProofThresholds into currency -> amount.
func (c App) Thresholds() (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(c.ProofThresholds))
	for code, raw := range c.ProofThresholds {
		cur, err := utils.NormalizeCurrency(code)
		if err != nil {
			return nil, fmt.Errorf("PROOF_THRESHOLDS: %w", err)
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil || !amount.IsPositive() {
			return nil, fmt.Errorf("PROOF_THRESHOLDS: invalid amount %q for %s", raw, cur)
		}
		out[cur] = amount
	}
	return out, nil
}

// Origins splits ALLOWED_ORIGINS and trims each entry.
func (c App) Origins() string {
	parts := strings.Split(c.AllowedOrigins, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return strings.Join(parts, ",")
}
