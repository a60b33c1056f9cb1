package llm

import (
	"context"
	"encoding/base64"
	"net/http"
)

// openAIAdapter speaks the OpenAI-compatible chat completions API.
type openAIAdapter struct{}

type openAIMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type openAIPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

func (openAIAdapter) call(ctx context.Context, client *http.Client, in callInput) (string, error) {
	var content any = in.prompt
	if in.image != nil {
		content = []openAIPart{
			{Type: "text", Text: in.prompt},
			{Type: "image_url", ImageURL: &openAIImageURL{
				URL: "data:" + in.image.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(in.image.Data),
			}},
		}
	}

	return postJSON(ctx, client, jsonCall{
		provider: ProviderOpenAI,
		url:      joinURL(in.endpoint, "/chat/completions"),
		headers:  map[string]string{"Authorization": "Bearer " + in.key},
		body: openAIRequest{
			Model:       in.model,
			Messages:    []openAIMessage{{Role: "user", Content: content}},
			Temperature: in.params.Temperature,
			MaxTokens:   in.params.MaxTokens,
		},
		textPath: "choices.0.message.content",
	})
}
