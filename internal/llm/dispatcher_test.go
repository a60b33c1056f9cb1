package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jonathan/cv-tailor/internal/types"
)

// newTestDispatcher points a dispatcher for provider at server and releases its
// connections when the test ends.
func newTestDispatcher(t *testing.T, cfg ProviderConfig, opts ...Option) *Dispatcher {
	t.Helper()
	client := NewHTTPClient(Timeouts{Connect: time.Second, Total: 5 * time.Second})
	t.Cleanup(client.CloseIdleConnections)

	backend, err := NewBackend(cfg, append([]Option{WithHTTPClient(client)}, opts...)...)
	require.NoError(t, err)
	d, ok := backend.(*Dispatcher)
	require.True(t, ok, "expected *Dispatcher, got %T", backend)
	return d
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	body, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func TestDispatch_OpenAI(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		body := decodeBody(t, r)
		assert.Equal(t, "gpt-test", body["model"])
		assert.Equal(t, 0.2, body["temperature"])
		assert.Equal(t, float64(4096), body["max_tokens"])
		messages := body["messages"].([]any)
		assert.Equal(t, "rewrite this", messages[0].(map[string]any)["content"])

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"a\":1}"}}]}`))
	}))
	defer server.Close()

	d := newTestDispatcher(t, ProviderConfig{
		Provider:     ProviderOpenAI,
		Credential:   PlainCredential("sk-test"),
		Model:        "gpt-test",
		BaseEndpoint: server.URL + "/v1",
	})

	text, err := d.Dispatch(context.Background(), "rewrite this", DefaultParams(), nil)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, text)
}

func TestDispatch_OpenAIImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		content := body["messages"].([]any)[0].(map[string]any)["content"].([]any)
		require.Len(t, content, 2)
		image := content[1].(map[string]any)
		assert.Equal(t, "image_url", image["type"])
		assert.Equal(t, "data:image/png;base64,iVBO", image["image_url"].(map[string]any)["url"])
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	d := newTestDispatcher(t, ProviderConfig{
		Provider:                ProviderOpenAI,
		Credential:              PlainCredential("sk-test"),
		BaseEndpoint:            server.URL + "/v1",
		SupportsImageAttachment: true,
	})

	image := &types.ImageAttachment{MIMEType: "image/png", Data: []byte{0x89, 0x50, 0x4e}}
	_, err := d.Dispatch(context.Background(), "describe", DefaultParams(), image)
	require.NoError(t, err)
}

func TestDispatch_Anthropic(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "ak-test", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		assert.Empty(t, r.Header.Get("Authorization"))

		body := decodeBody(t, r)
		assert.Equal(t, float64(1024), body["max_tokens"])

		_, _ = w.Write([]byte(`{"content":[{"type":"thinking","thinking":"hmm"},{"type":"text","text":"done"}]}`))
	}))
	defer server.Close()

	d := newTestDispatcher(t, ProviderConfig{
		Provider:     ProviderAnthropic,
		Credential:   PlainCredential("ak-test"),
		BaseEndpoint: server.URL + "/v1",
	})

	text, err := d.Dispatch(context.Background(), "hi", Params{Temperature: 0.1, MaxTokens: 1024}, nil)
	require.NoError(t, err)
	assert.Equal(t, "done", text)
}

func TestDispatch_Ollama(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		body := decodeBody(t, r)
		assert.Equal(t, false, body["stream"])
		assert.Equal(t, "llama3.2", body["model"])
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"local"},"done":true}`))
	}))
	defer server.Close()

	d := newTestDispatcher(t, ProviderConfig{Provider: ProviderOllama, BaseEndpoint: server.URL})

	text, err := d.Dispatch(context.Background(), "hi", DefaultParams(), nil)
	require.NoError(t, err)
	assert.Equal(t, "local", text)
}

func TestDispatch_UpstreamErrorMessages(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{name: "plain error string", status: http.StatusInternalServerError, body: `{"error":"out of memory"}`, message: "out of memory"},
		{name: "nested error message", status: http.StatusUnauthorized, body: `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`, message: "Incorrect API key provided"},
		{name: "top-level message", status: http.StatusBadRequest, body: `{"message":"model not found"}`, message: "model not found"},
		{name: "detail", status: http.StatusUnprocessableEntity, body: `{"detail":"bad input"}`, message: "bad input"},
		{name: "non json", status: http.StatusBadGateway, body: "<html>Bad Gateway</html>", message: "<html>Bad Gateway</html>"},
		{name: "empty", status: http.StatusServiceUnavailable, body: "", message: "empty response body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			d := newTestDispatcher(t, ProviderConfig{Provider: ProviderOllama, BaseEndpoint: server.URL})
			_, err := d.Dispatch(context.Background(), "hi", DefaultParams(), nil)

			var llmErr *Error
			require.ErrorAs(t, err, &llmErr)
			assert.Equal(t, KindUpstream, llmErr.Kind)
			assert.Equal(t, tt.status, llmErr.StatusCode)
			assert.Contains(t, llmErr.Message, tt.message)
		})
	}
}

func TestDispatch_UpstreamBodyIsBounded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(strings.Repeat("x", 10000)))
	}))
	defer server.Close()

	d := newTestDispatcher(t, ProviderConfig{Provider: ProviderOllama, BaseEndpoint: server.URL})
	_, err := d.Dispatch(context.Background(), "hi", DefaultParams(), nil)

	var llmErr *Error
	require.ErrorAs(t, err, &llmErr)
	assert.Less(t, len(llmErr.Message), 400)
}

func TestDispatch_MalformedResponse(t *testing.T) {
	tests := []struct {
		name     string
		provider ProviderID
		body     string
	}{
		{name: "openai without choices", provider: ProviderOpenAI, body: `{"id":"x","choices":[]}`},
		{name: "openai content not a string", provider: ProviderOpenAI, body: `{"choices":[{"message":{"content":null}}]}`},
		{name: "anthropic without text block", provider: ProviderAnthropic, body: `{"content":[{"type":"tool_use"}]}`},
		{name: "ollama not json", provider: ProviderOllama, body: `not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			d := newTestDispatcher(t, ProviderConfig{
				Provider:     tt.provider,
				Credential:   PlainCredential("k"),
				BaseEndpoint: server.URL,
			})
			_, err := d.Dispatch(context.Background(), "hi", DefaultParams(), nil)

			var llmErr *Error
			require.ErrorAs(t, err, &llmErr)
			assert.Equal(t, KindMalformed, llmErr.Kind)
		})
	}
}

func TestDispatch_ConnectionRefusedHasOllamaHint(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	endpoint := "http://" + listener.Addr().String()
	require.NoError(t, listener.Close())

	d := newTestDispatcher(t, ProviderConfig{Provider: ProviderOllama, BaseEndpoint: endpoint})
	_, err = d.Dispatch(context.Background(), "hi", DefaultParams(), nil)

	var llmErr *Error
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, KindConnection, llmErr.Kind)
	assert.Equal(t, fmt.Sprintf("is the local Ollama service running at %s?", endpoint), llmErr.Hint)
}

func TestDispatch_ConnectionRefusedRemoteHasNoHint(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	endpoint := "http://" + listener.Addr().String()
	require.NoError(t, listener.Close())

	d := newTestDispatcher(t, ProviderConfig{
		Provider:     ProviderOpenAI,
		Credential:   PlainCredential("k"),
		BaseEndpoint: endpoint,
	})
	_, err = d.Dispatch(context.Background(), "hi", DefaultParams(), nil)

	var llmErr *Error
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, KindConnection, llmErr.Kind)
	assert.Empty(t, llmErr.Hint)
}

func TestDispatch_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewHTTPClient(Timeouts{})
	t.Cleanup(client.CloseIdleConnections)
	backend, err := NewBackend(
		ProviderConfig{Provider: ProviderOllama, BaseEndpoint: server.URL},
		WithHTTPClient(client),
		WithTimeouts(Timeouts{Connect: time.Second, Total: 50 * time.Millisecond}),
	)
	require.NoError(t, err)

	_, err = backend.(*Dispatcher).Dispatch(context.Background(), "hi", DefaultParams(), nil)

	var llmErr *Error
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, KindTimeout, llmErr.Kind)
}

func TestDispatch_ImageDegrade(t *testing.T) {
	var gotPrompt string
	var gotImages any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		msg := body["messages"].([]any)[0].(map[string]any)
		gotPrompt = msg["content"].(string)
		gotImages = msg["images"]
		_, _ = w.Write([]byte(`{"message":{"content":"ok"}}`))
	}))
	defer server.Close()

	core, logs := observer.New(zapcore.InfoLevel)
	d := newTestDispatcher(t, ProviderConfig{Provider: ProviderOllama, BaseEndpoint: server.URL}, WithLogger(zap.New(core)))

	image := &types.ImageAttachment{MIMEType: "image/jpeg", Data: []byte("jpeg")}
	text, err := d.Dispatch(context.Background(), "tailor my CV", DefaultParams(), image)
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, "tailor my CV"+ImageOmittedNote, gotPrompt)
	assert.Nil(t, gotImages)
	assert.Equal(t, 1, logs.FilterMessage("dropping image attachment unsupported by provider").Len())
}

type stubOpener struct {
	plain string
	err   error
}

func (s stubOpener) Open(string) (string, error) { return s.plain, s.err }

func TestDispatch_SealedCredential(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer opened-key", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	cfg := ProviderConfig{
		Provider:     ProviderOpenAI,
		Credential:   SealedCredential("ciphertext"),
		BaseEndpoint: server.URL,
	}

	t.Run("opened at dispatch", func(t *testing.T) {
		d := newTestDispatcher(t, cfg, WithOpener(stubOpener{plain: "opened-key"}))
		_, err := d.Dispatch(context.Background(), "hi", DefaultParams(), nil)
		require.NoError(t, err)
	})

	t.Run("open failure is a configuration error", func(t *testing.T) {
		d := newTestDispatcher(t, cfg, WithOpener(stubOpener{err: errors.New("bad tag")}))
		_, err := d.Dispatch(context.Background(), "hi", DefaultParams(), nil)
		var llmErr *Error
		require.ErrorAs(t, err, &llmErr)
		assert.Equal(t, KindConfiguration, llmErr.Kind)
	})

	t.Run("no opener", func(t *testing.T) {
		d := newTestDispatcher(t, cfg)
		_, err := d.Dispatch(context.Background(), "hi", DefaultParams(), nil)
		var llmErr *Error
		require.ErrorAs(t, err, &llmErr)
		assert.Equal(t, KindConfiguration, llmErr.Kind)
	})
}

func TestNewBackend(t *testing.T) {
	t.Run("local device is deferred and constrained", func(t *testing.T) {
		backend, err := NewBackend(ProviderConfig{Provider: ProviderLocalDevice, ContextClass: types.ContextFull})
		require.NoError(t, err)
		device, ok := backend.(*DeviceTarget)
		require.True(t, ok)
		assert.Equal(t, types.ContextConstrained, device.Config().ContextClass)
		assert.Equal(t, "on-device", device.Config().Model)
	})

	t.Run("missing credential", func(t *testing.T) {
		_, err := NewBackend(ProviderConfig{Provider: ProviderAnthropic})
		var llmErr *Error
		require.ErrorAs(t, err, &llmErr)
		assert.Equal(t, KindConfiguration, llmErr.Kind)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := NewBackend(ProviderConfig{Provider: "cohere"})
		assert.Error(t, err)
	})

	t.Run("defaults applied", func(t *testing.T) {
		backend, err := NewBackend(ProviderConfig{Provider: ProviderOllama})
		require.NoError(t, err)
		d := backend.(*Dispatcher)
		defer d.Close()
		assert.Equal(t, "http://localhost:11434", d.Config().BaseEndpoint)
		assert.Equal(t, types.ContextConstrained, d.Config().ContextClass)
	})
}

func TestCredential_Redaction(t *testing.T) {
	cfg := ProviderConfig{Provider: ProviderOpenAI, Credential: PlainCredential("sk-very-secret")}

	assert.NotContains(t, fmt.Sprintf("%v", cfg), "sk-very-secret")
	assert.NotContains(t, fmt.Sprintf("%+v", cfg), "sk-very-secret")
	assert.NotContains(t, fmt.Sprintf("%#v", cfg), "sk-very-secret")

	encoded, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.NotContains(t, string(encoded), "sk-very-secret")
	assert.Contains(t, string(encoded), redacted)

	core, logs := observer.New(zapcore.DebugLevel)
	zap.New(core).Info("resolved", zap.Any("config", cfg), zap.Object("credential", cfg.Credential))
	for _, entry := range logs.All() {
		for _, field := range entry.Context {
			assert.NotContains(t, fmt.Sprintf("%v", field.Interface), "sk-very-secret")
			assert.NotContains(t, field.String, "sk-very-secret")
		}
	}
}

func TestParseProvider(t *testing.T) {
	p, err := ParseProvider(" Local-Device ")
	require.NoError(t, err)
	assert.Equal(t, ProviderLocalDevice, p)

	_, err = ParseProvider("mistral")
	assert.Error(t, err)
}
