package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Default call bounds. Generation on small local models can take minutes, while an
// unreachable local service should fail within seconds.
const (
	DefaultTotalTimeout   = 5 * time.Minute
	DefaultConnectTimeout = 5 * time.Second
)

const maxResponseBytes = 10 << 20

// Timeouts bounds a dispatch.
type Timeouts struct {
	Connect time.Duration
	Total   time.Duration
}

// DefaultTimeouts returns the default call bounds.
func DefaultTimeouts() Timeouts {
	return Timeouts{Connect: DefaultConnectTimeout, Total: DefaultTotalTimeout}
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Connect <= 0 {
		t.Connect = DefaultConnectTimeout
	}
	if t.Total <= 0 {
		t.Total = DefaultTotalTimeout
	}
	return t
}

// NewHTTPClient builds a client whose dial is bounded by the connect timeout.
// The total bound is applied per call through the request context.
func NewHTTPClient(t Timeouts) *http.Client {
	t = t.withDefaults()
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   t.Connect,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: t.Connect,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     90 * time.Second,
	}
	return &http.Client{Transport: transport}
}

// jsonCall is one provider request: where to send it, how to authenticate, and
// where the generated text lives in the response envelope.
type jsonCall struct {
	provider ProviderID
	url      string
	headers  map[string]string
	body     any
	textPath string
}

// postJSON executes a jsonCall and extracts the text at textPath.
func postJSON(ctx context.Context, client *http.Client, call jsonCall) (string, error) {
	payload, err := json.Marshal(call.body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s request: %w", call.provider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, call.url, bytes.NewReader(payload))
	if err != nil {
		return "", &Error{Kind: KindConfiguration, Provider: call.provider, Message: "invalid endpoint " + call.url, Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range call.headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", classifyTransport(ctx, call.provider, endpointOf(call.url), err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", classifyTransport(ctx, call.provider, endpointOf(call.url), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", upstreamError(call.provider, resp.StatusCode, body)
	}

	if !gjson.ValidBytes(body) {
		return "", malformed(call.provider, "response body is not JSON")
	}
	text := gjson.GetBytes(body, call.textPath)
	if !text.Exists() || text.Type != gjson.String {
		return "", malformed(call.provider, "response has no text at %s", call.textPath)
	}
	return text.Str, nil
}

// endpointOf trims the path so hints name the service, not the route.
func endpointOf(rawURL string) string {
	if i := strings.Index(rawURL, "://"); i >= 0 {
		if j := strings.Index(rawURL[i+3:], "/"); j >= 0 {
			return rawURL[:i+3+j]
		}
	}
	return rawURL
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}
