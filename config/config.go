// Package config loads runtime configuration from the environment, with an
// optional .env file for development.
package config

import (
	"context"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Store and mail backend names.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSES    = "ses"
)

// Config is the full runtime configuration of the service.
type Config struct {
	Env      string `env:"REQFLOW_ENV,default=development"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
	LogJSON  bool   `env:"LOG_JSON,default=false"`

	StoreBackend string `env:"STORE_BACKEND,default=memory"`
	RedisURL     string `env:"REDIS_URL,default=redis://localhost:6379/0"`

	MailBackend string `env:"MAIL_BACKEND,default=memory"`
	Mailbox     string `env:"INBOUND_MAILBOX,default=inbox"`

	AWSRegion          string `env:"AWS_REGION"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	SESSender          string `env:"SES_SENDER_EMAIL"`
	SESInboundBucket   string `env:"SES_INBOUND_BUCKET"`
	SESInboundPrefix   string `env:"SES_INBOUND_PREFIX,default=inbound/"`

	OpenAIAPIKey string `env:"OPENAI_API_KEY"`
	OpenAIModel  string `env:"OPENAI_MODEL,default=gpt-4o-mini"`

	MetricsAddr string `env:"METRICS_ADDR,default=:9090"`

	InboundInterval  time.Duration `env:"INBOUND_INTERVAL,default=1m"`
	DeadlineInterval time.Duration `env:"DEADLINE_INTERVAL,default=1h"`
	SweepConcurrency int           `env:"SWEEP_CONCURRENCY,default=4"`
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; a missing file is not an error.
func Load(ctx context.Context) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field consistency that tag defaults cannot express.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}
	if c.StoreBackend == BackendRedis && c.RedisURL == "" {
		return fmt.Errorf("store backend %q requires REDIS_URL", BackendRedis)
	}

	switch c.MailBackend {
	case BackendMemory, BackendSES:
	default:
		return fmt.Errorf("unknown mail backend %q", c.MailBackend)
	}
	if c.MailBackend == BackendSES {
		if c.AWSRegion == "" {
			return fmt.Errorf("mail backend %q requires AWS_REGION", BackendSES)
		}
		if c.SESSender == "" {
			return fmt.Errorf("mail backend %q requires SES_SENDER_EMAIL", BackendSES)
		}
	}

	if c.InboundInterval <= 0 {
		return fmt.Errorf("INBOUND_INTERVAL must be positive, got %s", c.InboundInterval)
	}
	if c.DeadlineInterval <= 0 {
		return fmt.Errorf("DEADLINE_INTERVAL must be positive, got %s", c.DeadlineInterval)
	}
	return nil
}

// Production reports whether the service runs in a production environment.
func (c *Config) Production() bool {
	return c.Env == "production"
}
