// Package tenancy resolves which provider, model and credential apply to a user,
// walking the user, organisation and process-default tiers.
package tenancy

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jonathan/cv-tailor/internal/llm"
	"github.com/jonathan/cv-tailor/internal/types"
)

// Tier is one stored provider preference. A nil *Tier means the tier has no
// preference and resolution moves on.
type Tier struct {
	Provider                llm.ProviderID
	Model                   string
	BaseEndpoint            string
	Credential              llm.Credential
	SupportsImageAttachment *bool
	ContextClass            types.ContextClass
}

// Tiers is everything the tenant source knows about a user.
type Tiers struct {
	User     *Tier
	Org      *Tier
	OrgOptIn bool
	Default  *Tier
}

// TenantSource loads the stored tiers for a user.
type TenantSource interface {
	ResolveTenantConfig(ctx context.Context, userID string) (Tiers, error)
}

// Source names the tier that won resolution.
type Source string

// Resolution sources.
const (
	SourceUser    Source = "user"
	SourceOrg     Source = "org"
	SourceDefault Source = "default"
)

// ConfigurationError is returned when no usable provider can be resolved.
type ConfigurationError struct {
	Message string
	Cause   error
}

func (e *ConfigurationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

// Resolver picks one ProviderConfig per request.
type Resolver struct {
	source   TenantSource
	fallback *Tier
	logger   *zap.Logger
}

// NewResolver creates a resolver. fallback is the process default, consulted when
// the source has no default tier of its own.
func NewResolver(source TenantSource, fallback *Tier, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{source: source, fallback: fallback, logger: logger.Named("tenancy")}
}

// Resolve returns the configuration of the first tier with a preference. Tiers are
// never merged: the winning tier's credential is the only one considered.
func (r *Resolver) Resolve(ctx context.Context, userID string) (llm.ProviderConfig, Source, error) {
	var tiers Tiers
	if r.source != nil {
		var err error
		tiers, err = r.source.ResolveTenantConfig(ctx, userID)
		if err != nil {
			return llm.ProviderConfig{}, "", fmt.Errorf("failed to load tenant configuration: %w", err)
		}
	}
	if tiers.Default == nil {
		tiers.Default = r.fallback
	}

	tier, source := pick(tiers)
	if tier == nil {
		return llm.ProviderConfig{}, "", &ConfigurationError{Message: "no provider configured at any tier"}
	}

	cfg, err := tier.config()
	if err != nil {
		return llm.ProviderConfig{}, "", err
	}

	r.logger.Debug("provider resolved",
		zap.String("user_id", userID),
		zap.String("source", string(source)),
		zap.String("provider", string(cfg.Provider)),
		zap.String("model", cfg.Model),
		zap.String("context_class", string(cfg.ContextClass)),
		zap.Object("credential", cfg.Credential),
	)
	return cfg, source, nil
}

func pick(t Tiers) (*Tier, Source) {
	switch {
	case t.User != nil && t.User.Provider != "":
		return t.User, SourceUser
	case t.OrgOptIn && t.Org != nil && t.Org.Provider != "":
		return t.Org, SourceOrg
	case t.Default != nil && t.Default.Provider != "":
		return t.Default, SourceDefault
	default:
		return nil, ""
	}
}

func (t *Tier) config() (llm.ProviderConfig, error) {
	provider, err := llm.ParseProvider(string(t.Provider))
	if err != nil {
		return llm.ProviderConfig{}, &ConfigurationError{Message: "stored provider is not supported", Cause: err}
	}
	if provider.RequiresCredential() && t.Credential.IsZero() {
		return llm.ProviderConfig{}, &ConfigurationError{
			Message: fmt.Sprintf("provider %s requires an API key but none is configured", provider),
		}
	}

	images := llm.DefaultsFor(provider).Images
	if t.SupportsImageAttachment != nil {
		images = *t.SupportsImageAttachment
	}

	cfg := llm.ProviderConfig{
		Provider:                provider,
		Credential:              t.Credential,
		Model:                   t.Model,
		BaseEndpoint:            t.BaseEndpoint,
		SupportsImageAttachment: images,
		ContextClass:            t.ContextClass,
	}
	return cfg.WithDefaults(), nil
}
