package core

import (
	"fmt"
	"strings"
	"time"
)

type RetryConfig struct {
	MaxTransientAttempts int           `koanf:"max_transient_attempts" mapstructure:"max_transient_attempts"`
	InitialBackoff       time.Duration `koanf:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff           time.Duration `koanf:"max_backoff" mapstructure:"max_backoff"`
}

type Config struct {
	ServiceName       string        `koanf:"service_name" mapstructure:"service_name"`
	StateTTL          time.Duration `koanf:"state_ttl" mapstructure:"state_ttl"`
	RefreshLeadWindow time.Duration `koanf:"refresh_lead_window" mapstructure:"refresh_lead_window"`
	FetchTimeout      time.Duration `koanf:"fetch_timeout" mapstructure:"fetch_timeout"`
	Retry             RetryConfig   `koanf:"retry" mapstructure:"retry"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:       "integrations",
		StateTTL:          DefaultStateTTL,
		RefreshLeadWindow: DefaultRefreshLeadWindow,
		FetchTimeout:      30 * time.Second,
		Retry: RetryConfig{
			MaxTransientAttempts: defaultRefreshMaxAttempts,
			InitialBackoff:       defaultRefreshInitialBackoff,
			MaxBackoff:           defaultRefreshMaxBackoff,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.StateTTL < 0 {
		return fmt.Errorf("core: state_ttl must be >= 0")
	}
	if c.RefreshLeadWindow < 0 {
		return fmt.Errorf("core: refresh_lead_window must be >= 0")
	}
	if c.Retry.MaxTransientAttempts < 0 {
		return fmt.Errorf("core: retry.max_transient_attempts must be >= 0")
	}
	return nil
}
