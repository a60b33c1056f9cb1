package db

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DocumentSummary is a document row without its content.
type DocumentSummary struct {
	ID               uuid.UUID  `json:"id"`
	SourceDocumentID *uuid.UUID `json:"source_document_id,omitempty"`
	Title            string     `json:"title"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// DocumentError reports a document that cannot be stored or read back.
type DocumentError struct {
	Message string
	Cause   error
}

func (e *DocumentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("document error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("document error: %s", e.Message)
}

func (e *DocumentError) Unwrap() error {
	return e.Cause
}

// Owner kinds for LLM settings rows.
const (
	OwnerUser    = "user"
	OwnerOrg     = "org"
	OwnerDefault = "default"
)

// LLMSettings is one stored provider preference. CredentialSealed holds a
// secrets.Box ciphertext and is never returned in API responses.
type LLMSettings struct {
	OwnerKind        string     `json:"owner_kind"`
	OwnerID          *uuid.UUID `json:"owner_id,omitempty"`
	Provider         string     `json:"provider"`
	Model            string     `json:"model,omitempty"`
	BaseEndpoint     string     `json:"base_endpoint,omitempty"`
	CredentialSealed string     `json:"-"`
	SupportsImages   *bool      `json:"supports_images,omitempty"`
	ContextClass     string     `json:"context_class,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
