package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/cv-tailor/internal/schemas"
	"github.com/jonathan/cv-tailor/internal/types"
)

// -----------------------------------------------------------------------------
// Document Methods
// -----------------------------------------------------------------------------

// LoadDocument returns the user's document, or nil when the user has no document
// with that id.
func (db *DB) LoadDocument(ctx context.Context, userID, documentID string) (*types.CvDocument, error) {
	uid, docID, ok := parseIDs(userID, documentID)
	if !ok {
		return nil, nil
	}

	var content []byte
	err := db.pool.QueryRow(ctx,
		`SELECT content FROM documents WHERE id = $1 AND user_id = $2`,
		docID, uid,
	).Scan(&content)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	return decodeDocument(content)
}

// SaveDocument overwrites an existing document owned by the user.
func (db *DB) SaveDocument(ctx context.Context, userID string, doc *types.CvDocument) error {
	uid, docID, ok := parseIDs(userID, doc.ID)
	if !ok {
		return &DocumentError{Message: fmt.Sprintf("invalid user or document id %q", doc.ID)}
	}
	content, err := encodeDocument(doc)
	if err != nil {
		return err
	}

	tag, err := db.pool.Exec(ctx,
		`UPDATE documents SET content = $1, title = $2, updated_at = NOW()
		 WHERE id = $3 AND user_id = $4`,
		content, doc.Title, docID, uid,
	)
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &DocumentError{Message: fmt.Sprintf("document %s not found", doc.ID)}
	}
	return nil
}

// InsertDocument stores a new top-level document. A missing id is generated.
func (db *DB) InsertDocument(ctx context.Context, userID string, doc *types.CvDocument) (*types.CvDocument, error) {
	out := doc.Clone()
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	uid, docID, ok := parseIDs(userID, out.ID)
	if !ok {
		return nil, &DocumentError{Message: fmt.Sprintf("invalid user or document id %q", out.ID)}
	}
	content, err := encodeDocument(out)
	if err != nil {
		return nil, err
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO documents (id, user_id, title, content) VALUES ($1, $2, $3, $4)`,
		docID, uid, out.Title, content,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert document: %w", err)
	}
	return out, nil
}

// ListDocuments returns the user's documents, newest first.
func (db *DB) ListDocuments(ctx context.Context, userID string) ([]DocumentSummary, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, nil
	}

	rows, err := db.pool.Query(ctx,
		`SELECT id, source_document_id, title, created_at, updated_at
		 FROM documents WHERE user_id = $1 ORDER BY updated_at DESC`,
		uid,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var out []DocumentSummary
	for rows.Next() {
		var s DocumentSummary
		if err := rows.Scan(&s.ID, &s.SourceDocumentID, &s.Title, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return out, nil
}

// CreateVariant returns the user's existing variant of variant.SourceDocumentID for
// contextKey, or inserts variant when there is none. The lookup and the insert run
// as two statements, so two concurrent calls can both insert.
func (db *DB) CreateVariant(ctx context.Context, userID, contextKey string, variant *types.CvDocument) (*types.CvDocument, bool, error) {
	uid, sourceID, ok := parseIDs(userID, variant.SourceDocumentID)
	if !ok {
		return nil, false, &DocumentError{Message: fmt.Sprintf("invalid user or source document id %q", variant.SourceDocumentID)}
	}

	var existing []byte
	err := db.pool.QueryRow(ctx,
		`SELECT content FROM documents
		 WHERE user_id = $1 AND source_document_id = $2 AND context_key = $3
		 ORDER BY created_at LIMIT 1`,
		uid, sourceID, contextKey,
	).Scan(&existing)
	if err == nil {
		doc, err := decodeDocument(existing)
		return doc, false, err
	}
	if !isNoRows(err) {
		return nil, false, fmt.Errorf("failed to look up variant: %w", err)
	}

	variantID, err := uuid.Parse(variant.ID)
	if err != nil {
		return nil, false, &DocumentError{Message: fmt.Sprintf("invalid variant id %q", variant.ID), Cause: err}
	}
	content, err := encodeDocument(variant)
	if err != nil {
		return nil, false, err
	}
	_, err = db.pool.Exec(ctx,
		`INSERT INTO documents (id, user_id, source_document_id, context_key, title, content)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		variantID, uid, sourceID, contextKey, variant.Title, content,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert variant: %w", err)
	}
	return variant, true, nil
}

func parseIDs(userID, documentID string) (uuid.UUID, uuid.UUID, bool) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return uuid.Nil, uuid.Nil, false
	}
	docID, err := uuid.Parse(documentID)
	if err != nil {
		return uuid.Nil, uuid.Nil, false
	}
	return uid, docID, true
}

// encodeDocument validates doc against the document schema before it is stored.
func encodeDocument(doc *types.CvDocument) ([]byte, error) {
	content, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	if err := schemas.ValidateDocument(content); err != nil {
		return nil, &DocumentError{Message: "document does not match the CV schema", Cause: err}
	}
	return content, nil
}

func decodeDocument(content []byte) (*types.CvDocument, error) {
	var doc types.CvDocument
	if err := json.Unmarshal(content, &doc); err != nil {
		return nil, &DocumentError{Message: "stored document is not valid JSON", Cause: err}
	}
	return &doc, nil
}
