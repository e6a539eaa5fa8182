package config

import (
	"fmt"
	"net/url"
	"os"
	"time"
)

var integrationNames = []string{"email_finder", "personalizer", "draft_composer", "sender"}

// IntegrationConfig defines how to reach one stage collaborator.
type IntegrationConfig struct {
	BaseURL    string        `mapstructure:"base_url"`    // Collaborator HTTP endpoint root
	APIKey     string        `mapstructure:"api_key"`     // API key (can be set directly or via env var)
	APIKeyEnv  string        `mapstructure:"api_key_env"` // Environment variable name for API key
	Timeout    time.Duration `mapstructure:"timeout"`     // Per-request timeout
	RetryCount int           `mapstructure:"retry_count"` // Retries on 429 and 5xx
}

// ResolveEnvVars loads APIKey from APIKeyEnv when no direct value is set.
func (c *IntegrationConfig) ResolveEnvVars() {
	if c.APIKeyEnv != "" && c.APIKey == "" {
		if val := os.Getenv(c.APIKeyEnv); val != "" {
			c.APIKey = val
		}
	}
}

// Enabled reports whether the collaborator has an endpoint configured.
func (c *IntegrationConfig) Enabled() bool {
	return c.BaseURL != ""
}

// Validate checks an enabled integration. Disabled integrations are valid.
func (c *IntegrationConfig) Validate(name string) error {
	if !c.Enabled() {
		return nil
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("integration %q: invalid base_url %q", name, c.BaseURL)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("integration %q: timeout must not be negative", name)
	}
	if c.RetryCount < 0 {
		return fmt.Errorf("integration %q: retry_count must not be negative", name)
	}
	return nil
}

// All returns the integrations keyed by their config name.
func (c IntegrationsConfig) All() map[string]IntegrationConfig {
	return map[string]IntegrationConfig{
		"email_finder":   c.EmailFinder,
		"personalizer":   c.Personalizer,
		"draft_composer": c.DraftComposer,
		"sender":         c.Sender,
	}
}

func (c *IntegrationsConfig) pointers() []*IntegrationConfig {
	return []*IntegrationConfig{&c.EmailFinder, &c.Personalizer, &c.DraftComposer, &c.Sender}
}
