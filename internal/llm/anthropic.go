package llm

import (
	"context"
	"encoding/base64"
	"net/http"
)

const anthropicVersion = "2023-06-01"

// anthropicAdapter speaks the Anthropic messages API.
type anthropicAdapter struct{}

type anthropicBlock struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	Messages    []anthropicMessage `json:"messages"`
}

func (anthropicAdapter) call(ctx context.Context, client *http.Client, in callInput) (string, error) {
	blocks := []anthropicBlock{}
	if in.image != nil {
		blocks = append(blocks, anthropicBlock{
			Type: "image",
			Source: &anthropicSource{
				Type:      "base64",
				MediaType: in.image.MIMEType,
				Data:      base64.StdEncoding.EncodeToString(in.image.Data),
			},
		})
	}
	blocks = append(blocks, anthropicBlock{Type: "text", Text: in.prompt})

	maxTokens := in.params.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultParams().MaxTokens
	}

	return postJSON(ctx, client, jsonCall{
		provider: ProviderAnthropic,
		url:      joinURL(in.endpoint, "/messages"),
		headers: map[string]string{
			"x-api-key":         in.key,
			"anthropic-version": anthropicVersion,
		},
		body: anthropicRequest{
			Model:       in.model,
			MaxTokens:   maxTokens,
			Temperature: in.params.Temperature,
			Messages:    []anthropicMessage{{Role: "user", Content: blocks}},
		},
		textPath: `content.#(type=="text").text`,
	})
}
