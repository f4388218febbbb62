package invite

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the invite policy of a deployment.
type Config struct {
	LinkBase          string        `env:"SECURECHAT_INVITE_LINK_BASE"          envDefault:"https://securechat.app"`
	StrictPersistence bool          `env:"SECURECHAT_INVITE_STRICT_PERSISTENCE" envDefault:"false"`
	SweepInterval     time.Duration `env:"SECURECHAT_INVITE_SWEEP_INTERVAL"     envDefault:"1m"`
	MaxEmailBatch     int           `env:"SECURECHAT_INVITE_MAX_EMAIL_BATCH"    envDefault:"50"`
	MaxMessageLen     int           `env:"SECURECHAT_INVITE_MAX_MESSAGE_LEN"    envDefault:"512"`
}

// DefaultConfig returns the values used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		LinkBase:      DefaultLinkBase,
		SweepInterval: time.Minute,
		MaxEmailBatch: 50,
		MaxMessageLen: 512,
	}
}

// LoadConfigFromEnv reads SECURECHAT_INVITE_* variables.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse invite env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the Service cannot run with.
func (c Config) Validate() error {
	switch {
	case c.SweepInterval <= 0:
		return ValidationError{Field: "SECURECHAT_INVITE_SWEEP_INTERVAL", Value: c.SweepInterval.String(), Reason: "must be positive"}
	case c.MaxEmailBatch <= 0:
		return ValidationError{Field: "SECURECHAT_INVITE_MAX_EMAIL_BATCH", Value: fmt.Sprint(c.MaxEmailBatch), Reason: "must be positive"}
	case c.MaxMessageLen <= 0:
		return ValidationError{Field: "SECURECHAT_INVITE_MAX_MESSAGE_LEN", Value: fmt.Sprint(c.MaxMessageLen), Reason: "must be positive"}
	}
	return nil
}

// Options turns the config into Service options.
func (c Config) Options() []Option {
	return []Option{
		WithLinker(Linker{Base: c.LinkBase}),
		WithStrictPersistence(c.StrictPersistence),
		WithLimits(c.MaxEmailBatch, c.MaxMessageLen),
	}
}
