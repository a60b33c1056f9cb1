package llm

import (
	"context"
	"encoding/base64"
	"net/http"
)

// ollamaAdapter speaks the local Ollama chat API. It needs no credential.
type ollamaAdapter struct{}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
	Options  ollamaOptions   `json:"options"`
}

func (ollamaAdapter) call(ctx context.Context, client *http.Client, in callInput) (string, error) {
	msg := ollamaMessage{Role: "user", Content: in.prompt}
	if in.image != nil {
		msg.Images = []string{base64.StdEncoding.EncodeToString(in.image.Data)}
	}

	return postJSON(ctx, client, jsonCall{
		provider: ProviderOllama,
		url:      joinURL(in.endpoint, "/api/chat"),
		body: ollamaRequest{
			Model:    in.model,
			Messages: []ollamaMessage{msg},
			Stream:   false,
			Format:   "json",
			Options: ollamaOptions{
				Temperature: in.params.Temperature,
				NumPredict:  in.params.MaxTokens,
			},
		},
		textPath: "message.content",
	})
}
