// Package llm resolves a provider configuration into a dispatch backend and executes
// single-shot generation calls against remote or local model services.
package llm

import (
	"fmt"
	"strings"

	"github.com/jonathan/cv-tailor/internal/types"
)

// ProviderID identifies a generation backend.
type ProviderID string

// Supported providers. LocalDevice is never dispatched by the server.
const (
	ProviderOpenAI      ProviderID = "openai"
	ProviderAnthropic   ProviderID = "anthropic"
	ProviderGemini      ProviderID = "gemini"
	ProviderOllama      ProviderID = "ollama"
	ProviderLocalDevice ProviderID = "local-device"
)

// AllProviders lists the closed provider set.
var AllProviders = []ProviderID{
	ProviderOpenAI,
	ProviderAnthropic,
	ProviderGemini,
	ProviderOllama,
	ProviderLocalDevice,
}

// ParseProvider parses a provider id case-insensitively.
func ParseProvider(raw string) (ProviderID, error) {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	for _, p := range AllProviders {
		if trimmed == string(p) {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown provider %q", raw)
}

// RequiresCredential reports whether calls to the provider need an API key.
func (p ProviderID) RequiresCredential() bool {
	switch p {
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini:
		return true
	default:
		return false
	}
}

// Defaults holds the per-provider values used when a tier leaves them unset.
type Defaults struct {
	Endpoint     string
	Model        string
	Images       bool
	ContextClass types.ContextClass
}

var providerDefaults = map[ProviderID]Defaults{
	ProviderOpenAI: {
		Endpoint:     "https://api.openai.com/v1",
		Model:        "gpt-4o-mini",
		Images:       true,
		ContextClass: types.ContextFull,
	},
	ProviderAnthropic: {
		Endpoint:     "https://api.anthropic.com/v1",
		Model:        "claude-3-5-haiku-latest",
		Images:       true,
		ContextClass: types.ContextFull,
	},
	ProviderGemini: {
		Endpoint:     "",
		Model:        "gemini-2.5-flash",
		Images:       true,
		ContextClass: types.ContextFull,
	},
	ProviderOllama: {
		Endpoint:     "http://localhost:11434",
		Model:        "llama3.2",
		Images:       false,
		ContextClass: types.ContextConstrained,
	},
	ProviderLocalDevice: {
		Model:        "on-device",
		Images:       false,
		ContextClass: types.ContextConstrained,
	},
}

// DefaultsFor returns the built-in defaults for a provider.
func DefaultsFor(p ProviderID) Defaults {
	return providerDefaults[p]
}

// ProviderConfig is the resolved configuration for one generation.
type ProviderConfig struct {
	Provider                ProviderID         `json:"providerId"`
	Credential              Credential         `json:"credential"`
	Model                   string             `json:"model"`
	BaseEndpoint            string             `json:"baseEndpoint,omitempty"`
	SupportsImageAttachment bool               `json:"supportsImageAttachment"`
	ContextClass            types.ContextClass `json:"contextClass"`
}

// Deferred reports whether inference runs on the caller's device.
func (c ProviderConfig) Deferred() bool {
	return c.Provider == ProviderLocalDevice
}

// WithDefaults fills unset fields from the provider defaults. local-device is
// always constrained.
func (c ProviderConfig) WithDefaults() ProviderConfig {
	d := DefaultsFor(c.Provider)
	if c.Model == "" {
		c.Model = d.Model
	}
	if c.BaseEndpoint == "" {
		c.BaseEndpoint = d.Endpoint
	}
	if c.ContextClass == "" {
		c.ContextClass = d.ContextClass
	}
	if c.Provider == ProviderLocalDevice {
		c.ContextClass = types.ContextConstrained
		c.SupportsImageAttachment = false
	}
	return c
}

// Params are the generation parameters passed with every call.
type Params struct {
	Temperature float64
	MaxTokens   int
}

// DefaultParams returns the parameters used for CV generation.
func DefaultParams() Params {
	return Params{Temperature: 0.2, MaxTokens: 4096}
}
