package llm

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/cv-tailor/internal/types"
)

// ImageOmittedNote is appended to the prompt when an image is dropped because the
// provider cannot accept it.
const ImageOmittedNote = "\n\n[Note: the user attached an image, but it was omitted because the selected model does not accept images.]"

// Backend is where a generation runs. It is either a *Dispatcher (the server calls
// the provider) or a DeviceTarget (the caller runs inference itself). The set is
// closed: only this package implements it.
type Backend interface {
	Config() ProviderConfig
	isBackend()
}

// DeviceTarget describes inference deferred to the caller's device.
type DeviceTarget struct {
	cfg ProviderConfig
}

// Config returns the resolved configuration.
func (d *DeviceTarget) Config() ProviderConfig { return d.cfg }

func (*DeviceTarget) isBackend() {}

// adapter executes one call in a provider's wire format.
type adapter interface {
	call(ctx context.Context, client *http.Client, in callInput) (string, error)
}

type callInput struct {
	prompt   string
	params   Params
	image    *types.ImageAttachment
	key      string
	model    string
	endpoint string
}

// Option configures NewBackend.
type Option func(*backendOptions)

type backendOptions struct {
	opener   Opener
	client   *http.Client
	logger   *zap.Logger
	timeouts Timeouts
}

// WithOpener sets how sealed credentials are opened.
func WithOpener(o Opener) Option {
	return func(b *backendOptions) { b.opener = o }
}

// WithHTTPClient shares a client across dispatchers. Its transport should bound
// dial time, as NewHTTPClient does.
func WithHTTPClient(c *http.Client) Option {
	return func(b *backendOptions) { b.client = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *backendOptions) { b.logger = l }
}

// WithTimeouts sets the connect and total call bounds.
func WithTimeouts(t Timeouts) Option {
	return func(b *backendOptions) { b.timeouts = t }
}

// NewBackend turns a resolved configuration into the single object that will run
// the generation. Callers switch on the concrete type once; nothing downstream
// branches on the provider id.
func NewBackend(cfg ProviderConfig, opts ...Option) (Backend, error) {
	cfg = cfg.WithDefaults()
	o := backendOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	o.timeouts = o.timeouts.withDefaults()

	var a adapter
	switch cfg.Provider {
	case ProviderLocalDevice:
		return &DeviceTarget{cfg: cfg}, nil
	case ProviderOpenAI:
		a = openAIAdapter{}
	case ProviderAnthropic:
		a = anthropicAdapter{}
	case ProviderGemini:
		a = newGeminiAdapter()
	case ProviderOllama:
		a = ollamaAdapter{}
	default:
		return nil, &Error{Kind: KindConfiguration, Provider: cfg.Provider, Message: "unsupported provider"}
	}

	if cfg.Provider.RequiresCredential() && cfg.Credential.IsZero() {
		return nil, &Error{Kind: KindConfiguration, Provider: cfg.Provider, Message: "provider requires an API key but none is configured"}
	}

	client := o.client
	owned := false
	if client == nil {
		client = NewHTTPClient(o.timeouts)
		owned = true
	}

	return &Dispatcher{
		cfg:      cfg,
		adapter:  a,
		opener:   o.opener,
		client:   client,
		owned:    owned,
		timeouts: o.timeouts,
		logger:   o.logger.Named("llm").With(zap.String("provider", string(cfg.Provider)), zap.String("model", cfg.Model)),
	}, nil
}

// Dispatcher calls one remote or local-service provider.
type Dispatcher struct {
	cfg      ProviderConfig
	adapter  adapter
	opener   Opener
	client   *http.Client
	owned    bool
	timeouts Timeouts
	logger   *zap.Logger
}

// Config returns the resolved configuration.
func (d *Dispatcher) Config() ProviderConfig { return d.cfg }

func (*Dispatcher) isBackend() {}

// Dispatch makes exactly one provider call and returns the generated text.
// Failures are *Error values. An image the provider cannot accept is dropped and
// replaced by a note in the prompt.
func (d *Dispatcher) Dispatch(ctx context.Context, prompt string, params Params, image *types.ImageAttachment) (string, error) {
	if image != nil && !d.cfg.SupportsImageAttachment {
		d.logger.Info("dropping image attachment unsupported by provider",
			zap.String("mime_type", image.MIMEType),
			zap.Int("bytes", len(image.Data)),
		)
		image = nil
		prompt += ImageOmittedNote
	}

	key, err := d.cfg.Credential.reveal(d.opener)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeouts.Total)
	defer cancel()

	start := time.Now()
	text, err := d.adapter.call(ctx, d.client, callInput{
		prompt:   prompt,
		params:   params,
		image:    image,
		key:      key,
		model:    d.cfg.Model,
		endpoint: d.cfg.BaseEndpoint,
	})
	if err != nil {
		if classified, ok := err.(*Error); ok && classified.Provider == "" {
			classified.Provider = d.cfg.Provider
		}
		d.logger.Warn("provider call failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return "", err
	}

	d.logger.Info("provider call completed",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("prompt_chars", len(prompt)),
		zap.Int("response_chars", len(text)),
	)
	return text, nil
}

// Close releases idle connections when the dispatcher created its own client.
func (d *Dispatcher) Close() {
	if d.owned {
		d.client.CloseIdleConnections()
	}
}
