package config

import (
	"fmt"
	"strconv"
	"strings"
)

// MinJWTSecretLength is the shortest accepted HMAC secret, in bytes.
const MinJWTSecretLength = 32

// JWTConfig holds the settings for bearer tokens on the HTTP API.
type JWTConfig struct {
	Secret          string
	Issuer          string
	ExpirationHours int
}

// NewJWTConfig reads JWT_SECRET (required), JWT_ISSUER (default "cv-tailor") and
// JWT_EXPIRATION_HOURS (default 24). getenv is usually os.Getenv.
func NewJWTConfig(getenv func(string) string) (*JWTConfig, error) {
	cfg := &JWTConfig{
		Secret:          getenv("JWT_SECRET"),
		Issuer:          strings.TrimSpace(getenv("JWT_ISSUER")),
		ExpirationHours: 24,
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "cv-tailor"
	}

	if raw := strings.TrimSpace(getenv("JWT_EXPIRATION_HOURS")); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid JWT_EXPIRATION_HOURS: %v", err)
		}
		cfg.ExpirationHours = hours
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the secret and the token lifetime.
func (c *JWTConfig) Validate() error {
	if c.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required but not set")
	}
	if len(c.Secret) < MinJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes, got %d", MinJWTSecretLength, len(c.Secret))
	}
	if c.ExpirationHours < 1 {
		return fmt.Errorf("JWT_EXPIRATION_HOURS must be at least 1 hour, got: %d", c.ExpirationHours)
	}
	return nil
}
