// Package generation runs one CV generation end to end. It decides where inference
// runs, builds the prompt for the backend's context class, and sequences dispatch,
// normalization, merge and the single save.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jonathan/cv-tailor/internal/fetch"
	"github.com/jonathan/cv-tailor/internal/llm"
	"github.com/jonathan/cv-tailor/internal/merge"
	"github.com/jonathan/cv-tailor/internal/tenancy"
	"github.com/jonathan/cv-tailor/internal/types"
)

// ConstrainedMaxTokens caps output for constrained backends.
const ConstrainedMaxTokens = 2048

// DocumentStore loads and saves documents owned by a user.
type DocumentStore interface {
	LoadDocument(ctx context.Context, userID, documentID string) (*types.CvDocument, error)
	SaveDocument(ctx context.Context, userID string, doc *types.CvDocument) error
}

// ConfigResolver picks the provider configuration for a user.
type ConfigResolver interface {
	Resolve(ctx context.Context, userID string) (llm.ProviderConfig, tenancy.Source, error)
}

// ContextFetcher turns a context URL into plain text.
type ContextFetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
}

// Controller is the entry point of a generation run.
type Controller struct {
	store       DocumentStore
	resolver    ConfigResolver
	fetcher     ContextFetcher
	engine      *merge.Engine
	backendOpts []llm.Option
	logger      *zap.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithFetcher enables contextRef resolution.
func WithFetcher(f ContextFetcher) Option {
	return func(c *Controller) { c.fetcher = f }
}

// WithMergeEngine replaces the default merge engine.
func WithMergeEngine(e *merge.Engine) Option {
	return func(c *Controller) { c.engine = e }
}

// WithBackendOptions are passed to llm.NewBackend on every run.
func WithBackendOptions(opts ...llm.Option) Option {
	return func(c *Controller) { c.backendOpts = append(c.backendOpts, opts...) }
}

// WithLogger sets the logger. It is also handed to the backend and merge engine
// unless they were configured separately.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// NewController creates a controller.
func NewController(store DocumentStore, resolver ConfigResolver, opts ...Option) *Controller {
	c := &Controller{store: store, resolver: resolver}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.engine == nil {
		c.engine = merge.NewEngine(c.logger)
	}
	c.backendOpts = append([]llm.Option{llm.WithLogger(c.logger)}, c.backendOpts...)
	c.logger = c.logger.Named("generation")
	return c
}

// ParamsFor returns the sampling parameters for a context class.
func ParamsFor(class types.ContextClass) llm.Params {
	p := llm.DefaultParams()
	if class == types.ContextConstrained {
		p.MaxTokens = ConstrainedMaxTokens
	}
	return p
}

// Generate runs one user action. Provider, parse and validation failures come back
// as a failed result; invalid requests and store failures are returned as errors.
func (c *Controller) Generate(ctx context.Context, userID string, req types.GenerationRequest) (*types.GenerationResult, error) {
	if err := req.Validate(); err != nil {
		return nil, &RequestError{Message: "generation request is incomplete", Cause: err}
	}
	targets := req.Sections()
	logger := c.logger.With(zap.String("user_id", userID), zap.String("document_id", req.DocumentRef))

	if req.IsSecondRoundTrip() {
		doc, err := c.load(ctx, userID, req.DocumentRef)
		if err != nil {
			return nil, err
		}
		logger.Info("applying device generated output", zap.Int("raw_chars", len(req.ExecutionResultText)))
		return c.finish(ctx, logger, userID, doc, req.ExecutionResultText, targets)
	}

	cfg, source, err := c.resolver.Resolve(ctx, userID)
	if err != nil {
		var cfgErr *tenancy.ConfigurationError
		if errors.As(err, &cfgErr) {
			return types.Failed(types.ErrConfiguration, cfgErr.Error()), nil
		}
		return nil, err
	}
	logger = logger.With(zap.String("provider", string(cfg.Provider)), zap.String("config_source", string(source)))

	backend, err := llm.NewBackend(cfg, c.backendOpts...)
	if err != nil {
		return failedFromDispatch(err)
	}

	doc, err := c.load(ctx, userID, req.DocumentRef)
	if err != nil {
		return nil, err
	}

	contextText := req.ContextText
	if req.ContextRef != "" {
		if c.fetcher == nil {
			return types.Failed(types.ErrConfiguration, "context URLs are not supported by this deployment"), nil
		}
		fetched, err := c.fetcher.FetchText(ctx, req.ContextRef)
		if errors.Is(err, fetch.ErrBlockedAddress) {
			logger.Warn("context URL refused", zap.String("context_ref", req.ContextRef))
			return nil, &RequestError{Message: "contextRef must point to a public address", Cause: err}
		}
		if err != nil {
			logger.Warn("context fetch failed", zap.String("context_ref", req.ContextRef), zap.Error(err))
			return types.Failed(types.ErrConnection, fmt.Sprintf("could not fetch context from %s: %v", req.ContextRef, err)), nil
		}
		contextText = joinContext(contextText, fetched)
	}

	cfg = backend.Config()
	prompt, err := BuildPrompt(PromptInput{
		Document:     doc,
		Sections:     targets,
		Context:      contextText,
		Instructions: req.CustomInstructions,
		Class:        cfg.ContextClass,
		HasImage:     req.Image != nil && cfg.SupportsImageAttachment,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build prompt: %w", err)
	}
	params := ParamsFor(cfg.ContextClass)

	switch b := backend.(type) {
	case *llm.DeviceTarget:
		if req.Image != nil {
			prompt += llm.ImageOmittedNote
		}
		logger.Info("generation deferred to device",
			zap.String("model", cfg.Model),
			zap.Int("prompt_chars", len(prompt)),
		)
		return &types.GenerationResult{
			Status: types.StatusDeferred,
			Deferred: &types.DeferredContract{
				Deferred:    true,
				Prompt:      prompt,
				ModelID:     cfg.Model,
				ModelClass:  cfg.ContextClass,
				Temperature: params.Temperature,
				MaxTokens:   params.MaxTokens,
			},
		}, nil
	case *llm.Dispatcher:
		defer b.Close()
		raw, err := b.Dispatch(ctx, prompt, params, req.Image)
		if err != nil {
			return failedFromDispatch(err)
		}
		return c.finish(ctx, logger, userID, doc, raw, targets)
	default:
		return nil, fmt.Errorf("unsupported backend %T", backend)
	}
}

// finish reconciles model output with doc and saves the merged document once.
func (c *Controller) finish(ctx context.Context, logger *zap.Logger, userID string, doc *types.CvDocument, raw string, targets types.SectionSet) (*types.GenerationResult, error) {
	result, err := Reconcile(c.engine, logger, doc, raw, targets)
	if err != nil || result.Status == types.StatusFailed || result.Outcome == types.OutcomeMergeNoOp {
		return result, err
	}

	if err := c.store.SaveDocument(ctx, userID, result.Document); err != nil {
		return nil, &StoreError{Op: "save", Cause: err}
	}
	logger.Info("generation merged",
		zap.Int("matched", len(result.Merge.Matched)),
		zap.Int("discarded", len(result.Merge.Discarded)),
		zap.Int("ignored_sections", len(result.Merge.Ignored)),
	)
	return result, nil
}

func (c *Controller) load(ctx context.Context, userID, documentID string) (*types.CvDocument, error) {
	doc, err := c.store.LoadDocument(ctx, userID, documentID)
	if err != nil {
		return nil, &StoreError{Op: "load", Cause: err}
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
	}
	return doc, nil
}

func failedFromDispatch(err error) (*types.GenerationResult, error) {
	var llmErr *llm.Error
	if !errors.As(err, &llmErr) {
		return nil, err
	}
	result := types.Failed(llmErr.Kind, llmErr.Message)
	result.ErrorHint = llmErr.Hint
	return result, nil
}

func joinContext(inline, fetched string) string {
	inline = strings.TrimSpace(inline)
	fetched = strings.TrimSpace(fetched)
	if inline == "" {
		return fetched
	}
	return inline + "\n\n" + fetched
}
