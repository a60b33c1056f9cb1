package types

import (
	"encoding/json"
	"strings"
)

// ErrorKind classifies a failed generation.
type ErrorKind string

// Error kinds surfaced to callers. MergeNoOp is informational and never marks a
// result as failed.
const (
	ErrConfiguration     ErrorKind = "ConfigurationError"
	ErrConnection        ErrorKind = "ConnectionError"
	ErrTimeout           ErrorKind = "TimeoutError"
	ErrUpstream          ErrorKind = "UpstreamError"
	ErrMalformedResponse ErrorKind = "MalformedResponseError"
	ErrParse             ErrorKind = "ParseError"
	ErrValidation        ErrorKind = "ValidationError"
	OutcomeMergeNoOp     ErrorKind = "MergeNoOp"
)

// ContextClass describes how much prompt a backend can reliably process.
type ContextClass string

// Context classes.
const (
	ContextFull        ContextClass = "full"
	ContextConstrained ContextClass = "constrained"
)

// ImageAttachment is an optional image sent alongside the prompt.
type ImageAttachment struct {
	MIMEType string `json:"mimeType" validate:"required"`
	Data     []byte `json:"data" validate:"required"` // base64 in JSON
}

// GenerationRequest is created per user action and never persisted.
type GenerationRequest struct {
	DocumentRef         string           `json:"documentRef" validate:"required"`
	TargetSections      []SectionID      `json:"targetSections" validate:"required,min=1,dive,section"`
	ContextText         string           `json:"contextText,omitempty" validate:"required_without=ContextRef"`
	ContextRef          string           `json:"contextRef,omitempty" validate:"omitempty,http_url"`
	CustomInstructions  string           `json:"customInstructions,omitempty"`
	ExecutionResultText string           `json:"executionResultText,omitempty"`
	Image               *ImageAttachment `json:"image,omitempty"`
}

// IsSecondRoundTrip reports whether the request carries the output of a
// client-executed inference.
func (r *GenerationRequest) IsSecondRoundTrip() bool {
	return r.ExecutionResultText != ""
}

// Sections returns the target sections as a set.
func (r *GenerationRequest) Sections() SectionSet {
	return NewSectionSet(r.TargetSections...)
}

// Status is the terminal state of a generation.
type Status string

// Generation statuses.
const (
	StatusSuccess  Status = "success"
	StatusDeferred Status = "deferred"
	StatusFailed   Status = "failed"
)

// DeferredContract tells the caller how to run inference on its own device.
type DeferredContract struct {
	Deferred    bool         `json:"deferred"`
	Prompt      string       `json:"prompt"`
	ModelID     string       `json:"modelId"`
	ModelClass  ContextClass `json:"modelClass"`
	Temperature float64      `json:"temperature"`
	MaxTokens   int          `json:"maxTokens"`
}

// MergeStrategy names how a patch entity was matched.
type MergeStrategy string

// Match strategies in priority order, plus the skills append rule.
const (
	MatchEntityID       MergeStrategy = "entityId"
	MatchSourceEntityID MergeStrategy = "sourceEntityId"
	MatchNaturalKey     MergeStrategy = "naturalKey"
	MatchAppended       MergeStrategy = "appended"
	MatchSingleton      MergeStrategy = "singleton"
)

// MergeMatch records one applied patch entity.
type MergeMatch struct {
	Section  SectionID     `json:"section"`
	EntityID string        `json:"entityId"`
	Strategy MergeStrategy `json:"strategy"`
}

// MergeDiscard records one patch entity that matched nothing.
type MergeDiscard struct {
	Section SectionID `json:"section"`
	Hint    string    `json:"hint"`
}

// MergeReport summarises a reconciliation merge.
type MergeReport struct {
	Matched   []MergeMatch   `json:"matched"`
	Discarded []MergeDiscard `json:"discarded"`
	Ignored   []SectionID    `json:"ignored,omitempty"`
}

// NoOp reports whether the merge changed nothing.
func (r *MergeReport) NoOp() bool {
	return r == nil || len(r.Matched) == 0
}

// GenerationResult is always exactly one of success, deferred or failed.
type GenerationResult struct {
	Status       Status            `json:"status"`
	RawText      string            `json:"rawText,omitempty"`
	Payload      json.RawMessage   `json:"parsedPayload,omitempty"`
	Document     *CvDocument       `json:"document,omitempty"`
	Deferred     *DeferredContract `json:"deferred,omitempty"`
	Merge        *MergeReport      `json:"merge,omitempty"`
	Outcome      ErrorKind         `json:"outcome,omitempty"`
	ErrorKind    ErrorKind         `json:"errorKind,omitempty"`
	ErrorMessage string            `json:"errorMessage,omitempty"`
	ErrorHint    string            `json:"errorHint,omitempty"`
}

// Failed builds a failed result.
func Failed(kind ErrorKind, message string) *GenerationResult {
	return &GenerationResult{
		Status:       StatusFailed,
		ErrorKind:    kind,
		ErrorMessage: message,
	}
}

// VariantRequest asks for the derived copy of a document tailored to one context.
type VariantRequest struct {
	DocumentRef string `json:"documentRef" validate:"required"`
	ContextText string `json:"contextText,omitempty" validate:"required_without=ContextRef"`
	ContextRef  string `json:"contextRef,omitempty" validate:"omitempty,http_url"`
	Title       string `json:"title,omitempty" validate:"max=200"`
}

// ContextKey identifies the request's context for the one-variant-per-context rule.
// A URL wins over inline text.
func (r *VariantRequest) ContextKey() string {
	if ref := strings.TrimSpace(r.ContextRef); ref != "" {
		return "ref:" + ref
	}
	return "text:" + strings.Join(strings.Fields(r.ContextText), " ")
}
