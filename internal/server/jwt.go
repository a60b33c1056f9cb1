package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jonathan/cv-tailor/internal/config"
)

// Claims are the bearer token claims. The subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
}

// JWTService issues and checks HS256 bearer tokens.
type JWTService struct {
	config *config.JWTConfig
	now    func() time.Time
}

// NewJWTService creates a JWT service with the given configuration.
func NewJWTService(cfg *config.JWTConfig) *JWTService {
	return &JWTService{config: cfg, now: time.Now}
}

// GenerateToken issues a token for the user.
func (s *JWTService) GenerateToken(userID uuid.UUID) (string, error) {
	now := s.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    s.config.Issuer,
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(s.config.ExpirationHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken checks the signature, lifetime and issuer of a token and returns
// its user id. It satisfies middleware.TokenValidator.
func (s *JWTService) ValidateToken(tokenString string) (string, error) {
	if tokenString == "" {
		return "", fmt.Errorf("token string is empty")
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (any, error) {
			return []byte(s.config.Secret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.config.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return "", fmt.Errorf("token expired: %w", err)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return "", fmt.Errorf("invalid token signature: %w", err)
		case errors.Is(err, jwt.ErrTokenMalformed):
			return "", fmt.Errorf("malformed token: %w", err)
		}
		return "", fmt.Errorf("failed to parse token: %w", err)
	}

	if _, err := uuid.Parse(claims.Subject); err != nil {
		return "", fmt.Errorf("token subject is not a user id: %w", err)
	}
	return claims.Subject, nil
}
