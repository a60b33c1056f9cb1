// Package config loads process configuration from a JSON or YAML file and the
// environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jonathan/cv-tailor/internal/llm"
	"github.com/jonathan/cv-tailor/internal/tenancy"
	"github.com/jonathan/cv-tailor/internal/types"
)

// DefaultPort is the HTTP port used when none is configured.
const DefaultPort = 8080

// Config is the process configuration. All fields are optional; missing values use
// defaults or come from CLI flags.
type Config struct {
	DatabaseURL string `json:"database_url,omitempty" yaml:"database_url,omitempty"` // PostgreSQL connection URL
	Port        int    `json:"port,omitempty" yaml:"port,omitempty"`
	UseBrowser  bool   `json:"use_browser,omitempty" yaml:"use_browser,omitempty"` // Render SPA job boards in headless Chrome
	Verbose     bool   `json:"verbose,omitempty" yaml:"verbose,omitempty"`

	// Process default provider, the last tier of resolution.
	LLM LLMConfig `json:"llm" yaml:"llm"`
}

// LLMConfig is the process default provider plus the dispatch timeouts.
type LLMConfig struct {
	Provider              string `json:"provider,omitempty" yaml:"provider,omitempty"`
	Model                 string `json:"model,omitempty" yaml:"model,omitempty"`
	BaseEndpoint          string `json:"base_endpoint,omitempty" yaml:"base_endpoint,omitempty"`
	APIKey                string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	APIKeySealed          string `json:"api_key_sealed,omitempty" yaml:"api_key_sealed,omitempty"` // secrets.Box ciphertext
	SupportsImages        *bool  `json:"supports_images,omitempty" yaml:"supports_images,omitempty"`
	ContextClass          string `json:"context_class,omitempty" yaml:"context_class,omitempty"`
	TimeoutSeconds        int    `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
	ConnectTimeoutSeconds int    `json:"connect_timeout_seconds,omitempty" yaml:"connect_timeout_seconds,omitempty"`
}

// LoadConfig loads configuration from a JSON or YAML file, chosen by extension.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	return &cfg, nil
}

// ApplyEnv overrides fields from environment variables. getenv is usually os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	setString := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, key string) error {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %v", key, err)
		}
		*dst = n
		return nil
	}

	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.LLM.Provider, "DEFAULT_PROVIDER")
	setString(&c.LLM.Model, "DEFAULT_MODEL")
	setString(&c.LLM.BaseEndpoint, "DEFAULT_BASE_ENDPOINT")
	setString(&c.LLM.APIKey, "DEFAULT_API_KEY")
	setString(&c.LLM.ContextClass, "DEFAULT_CONTEXT_CLASS")

	if c.LLM.APIKey == "" && c.LLM.APIKeySealed == "" {
		if key, ok := providerKeyEnv[strings.ToLower(c.LLM.Provider)]; ok {
			setString(&c.LLM.APIKey, key)
		}
	}

	if v := strings.TrimSpace(getenv("USE_BROWSER")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid USE_BROWSER: %v", err)
		}
		c.UseBrowser = b
	}

	for key, dst := range map[string]*int{
		"PORT":                        &c.Port,
		"LLM_TIMEOUT_SECONDS":         &c.LLM.TimeoutSeconds,
		"LLM_CONNECT_TIMEOUT_SECONDS": &c.LLM.ConnectTimeoutSeconds,
	} {
		if err := setInt(dst, key); err != nil {
			return err
		}
	}
	return nil
}

// providerKeyEnv names the conventional API key variable of each remote provider.
var providerKeyEnv = map[string]string{
	string(llm.ProviderOpenAI):    "OPENAI_API_KEY",
	string(llm.ProviderAnthropic): "ANTHROPIC_API_KEY",
	string(llm.ProviderGemini):    "GEMINI_API_KEY",
}

// Validate checks that the configuration has valid values.
// Required fields are checked by the commands that need them.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config error: 'port' must be between 0 and 65535")
	}
	if c.LLM.TimeoutSeconds < 0 || c.LLM.ConnectTimeoutSeconds < 0 {
		return fmt.Errorf("config error: llm timeouts must be non-negative")
	}
	if c.LLM.Provider != "" {
		if _, err := llm.ParseProvider(c.LLM.Provider); err != nil {
			return fmt.Errorf("config error: %w", err)
		}
	}
	switch types.ContextClass(c.LLM.ContextClass) {
	case "", types.ContextFull, types.ContextConstrained:
	default:
		return fmt.Errorf("config error: 'llm.context_class' must be full or constrained, got %q", c.LLM.ContextClass)
	}
	if c.LLM.APIKey != "" && c.LLM.APIKeySealed != "" {
		return fmt.Errorf("config error: 'llm.api_key' and 'llm.api_key_sealed' are mutually exclusive")
	}
	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
// This is used to apply config file values as defaults for CLI flags.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.Port == 0 {
		result.Port = defaults.Port
	}

	l, d := &result.LLM, defaults.LLM
	if l.Provider == "" {
		l.Provider = d.Provider
		// A model or key only makes sense for the provider it was set with.
		if l.Model == "" {
			l.Model = d.Model
		}
		if l.BaseEndpoint == "" {
			l.BaseEndpoint = d.BaseEndpoint
		}
		if l.APIKey == "" && l.APIKeySealed == "" {
			l.APIKey, l.APIKeySealed = d.APIKey, d.APIKeySealed
		}
		if l.SupportsImages == nil {
			l.SupportsImages = d.SupportsImages
		}
		if l.ContextClass == "" {
			l.ContextClass = d.ContextClass
		}
	}
	if l.TimeoutSeconds == 0 {
		l.TimeoutSeconds = d.TimeoutSeconds
	}
	if l.ConnectTimeoutSeconds == 0 {
		l.ConnectTimeoutSeconds = d.ConnectTimeoutSeconds
	}

	// Bool fields: cannot distinguish unset from false, so CLI flags always win.
	return result
}

// ListenPort returns the configured port or DefaultPort.
func (c *Config) ListenPort() int {
	if c.Port == 0 {
		return DefaultPort
	}
	return c.Port
}

// Timeouts returns the dispatch bounds. Unset values fall back to the llm defaults.
func (c *Config) Timeouts() llm.Timeouts {
	return llm.Timeouts{
		Connect: time.Duration(c.LLM.ConnectTimeoutSeconds) * time.Second,
		Total:   time.Duration(c.LLM.TimeoutSeconds) * time.Second,
	}
}

// DefaultTier returns the process default provider tier, or nil when no default
// provider is configured.
func (c *Config) DefaultTier() *tenancy.Tier {
	if c.LLM.Provider == "" {
		return nil
	}
	tier := &tenancy.Tier{
		Provider:                llm.ProviderID(strings.ToLower(c.LLM.Provider)),
		Model:                   c.LLM.Model,
		BaseEndpoint:            c.LLM.BaseEndpoint,
		SupportsImageAttachment: c.LLM.SupportsImages,
		ContextClass:            types.ContextClass(c.LLM.ContextClass),
	}
	switch {
	case c.LLM.APIKeySealed != "":
		tier.Credential = llm.SealedCredential(c.LLM.APIKeySealed)
	case c.LLM.APIKey != "":
		tier.Credential = llm.PlainCredential(c.LLM.APIKey)
	}
	return tier
}
