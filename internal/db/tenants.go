package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jonathan/cv-tailor/internal/llm"
	"github.com/jonathan/cv-tailor/internal/tenancy"
	"github.com/jonathan/cv-tailor/internal/types"
)

// -----------------------------------------------------------------------------
// User and Organization Methods
// -----------------------------------------------------------------------------

// FindOrCreateUser returns the id of the user with this email, creating the user
// when needed.
func (db *DB) FindOrCreateUser(ctx context.Context, email string, orgID *uuid.UUID) (uuid.UUID, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return uuid.Nil, fmt.Errorf("user email cannot be empty")
	}

	var id uuid.UUID
	err := db.pool.QueryRow(ctx,
		`INSERT INTO users (email, org_id)
		 VALUES ($1, $2)
		 ON CONFLICT (email) DO UPDATE SET org_id = COALESCE(EXCLUDED.org_id, users.org_id)
		 RETURNING id`,
		email, orgID,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to find or create user: %w", err)
	}
	return id, nil
}

// CreateOrganization creates an organization and returns its id.
func (db *DB) CreateOrganization(ctx context.Context, name string, llmOptIn bool) (uuid.UUID, error) {
	var id uuid.UUID
	err := db.pool.QueryRow(ctx,
		`INSERT INTO organizations (name, llm_opt_in) VALUES ($1, $2) RETURNING id`,
		name, llmOptIn,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create organization: %w", err)
	}
	return id, nil
}

// -----------------------------------------------------------------------------
// LLM Settings Methods
// -----------------------------------------------------------------------------

// UpsertLLMSettings stores the provider preference for one owner.
func (db *DB) UpsertLLMSettings(ctx context.Context, s LLMSettings) error {
	switch s.OwnerKind {
	case OwnerUser, OwnerOrg:
		if s.OwnerID == nil {
			return fmt.Errorf("%s settings require an owner id", s.OwnerKind)
		}
	case OwnerDefault:
		s.OwnerID = nil
	default:
		return fmt.Errorf("unknown settings owner kind %q", s.OwnerKind)
	}
	if _, err := llm.ParseProvider(s.Provider); err != nil {
		return err
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO llm_settings (owner_kind, owner_id, provider, model, base_endpoint, credential_sealed, supports_images, context_class)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (owner_kind, COALESCE(owner_id, '00000000-0000-0000-0000-000000000000'::uuid))
		 DO UPDATE SET provider = $3, model = $4, base_endpoint = $5, credential_sealed = $6,
		               supports_images = $7, context_class = $8, updated_at = NOW()`,
		s.OwnerKind, s.OwnerID, s.Provider, s.Model, s.BaseEndpoint, s.CredentialSealed, s.SupportsImages, s.ContextClass,
	)
	if err != nil {
		return fmt.Errorf("failed to save llm settings: %w", err)
	}
	return nil
}

// ResolveTenantConfig loads the user, organization and default tiers for a user.
// An unknown user still gets the stored default tier.
func (db *DB) ResolveTenantConfig(ctx context.Context, userID string) (tenancy.Tiers, error) {
	var uid *uuid.UUID
	if parsed, err := uuid.Parse(userID); err == nil {
		uid = &parsed
	}

	var orgID *uuid.UUID
	optIn := false
	if uid != nil {
		err := db.pool.QueryRow(ctx,
			`SELECT u.org_id, COALESCE(o.llm_opt_in, FALSE)
			 FROM users u LEFT JOIN organizations o ON o.id = u.org_id
			 WHERE u.id = $1`,
			*uid,
		).Scan(&orgID, &optIn)
		if err != nil && !isNoRows(err) {
			return tenancy.Tiers{}, fmt.Errorf("failed to load user organization: %w", err)
		}
	}

	rows, err := db.pool.Query(ctx,
		`SELECT owner_kind, owner_id, provider, model, base_endpoint, credential_sealed, supports_images, context_class, updated_at
		 FROM llm_settings
		 WHERE (owner_kind = 'user' AND owner_id = $1)
		    OR (owner_kind = 'org' AND owner_id = $2)
		    OR owner_kind = 'default'`,
		uid, orgID,
	)
	if err != nil {
		return tenancy.Tiers{}, fmt.Errorf("failed to load llm settings: %w", err)
	}
	defer rows.Close()

	var settings []LLMSettings
	for rows.Next() {
		var s LLMSettings
		if err := rows.Scan(&s.OwnerKind, &s.OwnerID, &s.Provider, &s.Model, &s.BaseEndpoint,
			&s.CredentialSealed, &s.SupportsImages, &s.ContextClass, &s.UpdatedAt); err != nil {
			return tenancy.Tiers{}, fmt.Errorf("failed to scan llm settings: %w", err)
		}
		settings = append(settings, s)
	}
	if err := rows.Err(); err != nil {
		return tenancy.Tiers{}, fmt.Errorf("failed to load llm settings: %w", err)
	}

	return tiersFromSettings(settings, optIn), nil
}

// tiersFromSettings places each settings row in its tier.
func tiersFromSettings(settings []LLMSettings, orgOptIn bool) tenancy.Tiers {
	tiers := tenancy.Tiers{OrgOptIn: orgOptIn}
	for _, s := range settings {
		tier := s.tier()
		switch s.OwnerKind {
		case OwnerUser:
			tiers.User = tier
		case OwnerOrg:
			tiers.Org = tier
		case OwnerDefault:
			tiers.Default = tier
		}
	}
	return tiers
}

func (s LLMSettings) tier() *tenancy.Tier {
	t := &tenancy.Tier{
		Provider:                llm.ProviderID(s.Provider),
		Model:                   s.Model,
		BaseEndpoint:            s.BaseEndpoint,
		SupportsImageAttachment: s.SupportsImages,
		ContextClass:            types.ContextClass(s.ContextClass),
	}
	if s.CredentialSealed != "" {
		t.Credential = llm.SealedCredential(s.CredentialSealed)
	}
	return t
}
