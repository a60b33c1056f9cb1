package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const geminiEndpoint = "https://generativelanguage.googleapis.com"

// geminiGenerator is the part of *genai.GenerativeModel the adapter uses.
type geminiGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// geminiAdapter calls Gemini through the generative-ai-go SDK over the shared
// HTTP client, so the connect bound and error classification match the other providers.
type geminiAdapter struct {
	open func(ctx context.Context, client *http.Client, in callInput) (geminiGenerator, io.Closer, error)
}

func newGeminiAdapter() geminiAdapter {
	return geminiAdapter{open: openGemini}
}

func openGemini(ctx context.Context, client *http.Client, in callInput) (geminiGenerator, io.Closer, error) {
	opts := []option.ClientOption{
		option.WithAPIKey(in.key),
		option.WithHTTPClient(&http.Client{
			Transport: &apiKeyTransport{key: in.key, base: client.Transport},
		}),
	}
	if in.endpoint != "" {
		opts = append(opts, option.WithEndpoint(in.endpoint))
	}

	c, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, nil, &Error{Kind: KindConfiguration, Provider: ProviderGemini, Message: "failed to create Gemini client", Cause: err}
	}

	model := c.GenerativeModel(in.model)
	model.SetTemperature(float32(in.params.Temperature))
	if in.params.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(in.params.MaxTokens))
	}
	model.ResponseMIMEType = "application/json"
	return model, c, nil
}

func (a geminiAdapter) call(ctx context.Context, client *http.Client, in callInput) (string, error) {
	model, closer, err := a.open(ctx, client, in)
	if err != nil {
		return "", err
	}
	defer func() { _ = closer.Close() }()

	parts := []genai.Part{genai.Text(in.prompt)}
	if in.image != nil {
		parts = append(parts, genai.Blob{MIMEType: in.image.MIMEType, Data: in.image.Data})
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", classifyGemini(ctx, in.endpoint, err)
	}
	return geminiText(resp)
}

func classifyGemini(ctx context.Context, endpoint string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = upstreamMessage([]byte(apiErr.Body))
		}
		return &Error{Kind: KindUpstream, Provider: ProviderGemini, StatusCode: apiErr.Code, Message: fmt.Sprintf("HTTP %d: %s", apiErr.Code, msg)}
	}
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return &Error{Kind: KindUpstream, Provider: ProviderGemini, Message: blocked.Error()}
	}
	if endpoint == "" {
		endpoint = geminiEndpoint
	}
	return classifyTransport(ctx, ProviderGemini, endpoint, err)
}

func geminiText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", malformed(ProviderGemini, "response has no candidates")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return "", malformed(ProviderGemini, "candidate has no content")
	}

	var sb strings.Builder
	found := false
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
			found = true
		}
	}
	if !found {
		return "", malformed(ProviderGemini, "candidate has no text parts")
	}
	return sb.String(), nil
}

// apiKeyTransport adds the Gemini API key header. The SDK skips its own key
// handling when given a custom HTTP client.
type apiKeyTransport struct {
	key  string
	base http.RoundTripper
}

func (t *apiKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("x-goog-api-key", t.key)
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(clone)
}
