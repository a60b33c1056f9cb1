package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/tidwall/gjson"

	"github.com/jonathan/cv-tailor/internal/normalize"
	"github.com/jonathan/cv-tailor/internal/types"
)

// Failure kinds a dispatch can produce.
const (
	KindConfiguration = types.ErrConfiguration
	KindConnection    = types.ErrConnection
	KindTimeout       = types.ErrTimeout
	KindUpstream      = types.ErrUpstream
	KindMalformed     = types.ErrMalformedResponse
)

// upstreamBodyLimit bounds how much of an undecodable error body is echoed back.
const upstreamBodyLimit = 300

// Error is a classified dispatch failure.
type Error struct {
	Kind       types.ErrorKind
	Provider   ProviderID
	StatusCode int
	Message    string
	Hint       string
	Cause      error
}

func (e *Error) Error() string {
	msg := string(e.Kind) + ": " + e.Message
	if e.Provider != "" {
		msg = fmt.Sprintf("%s (%s): %s", e.Kind, e.Provider, e.Message)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// classifyTransport turns an error from the HTTP round trip into a classified Error.
// ctx is the call context, so an elapsed deadline wins over the transport's view.
func classifyTransport(ctx context.Context, provider ProviderID, endpoint string, err error) *Error {
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{
			Kind:     KindTimeout,
			Provider: provider,
			Message:  "no response before the call timeout elapsed",
			Cause:    err,
		}
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return &Error{
			Kind:     KindConnection,
			Provider: provider,
			Message:  "request was cancelled before the provider responded",
			Cause:    err,
		}
	}

	out := &Error{Kind: KindConnection, Provider: provider, Cause: err}
	var dnsErr *net.DNSError
	var opErr *net.OpError
	var netErr net.Error
	switch {
	case errors.As(err, &dnsErr):
		out.Message = fmt.Sprintf("could not resolve host %s", dnsErr.Name)
	case errors.Is(err, syscall.ECONNREFUSED):
		out.Message = fmt.Sprintf("connection refused by %s", endpoint)
	case errors.As(err, &opErr) && opErr.Op == "dial":
		out.Message = fmt.Sprintf("could not connect to %s", endpoint)
	case errors.As(err, &netErr) && netErr.Timeout():
		out.Kind = KindTimeout
		out.Message = "provider stopped responding"
	default:
		out.Message = fmt.Sprintf("request to %s failed", endpoint)
	}
	if out.Kind == KindConnection && provider == ProviderOllama {
		out.Hint = fmt.Sprintf("is the local Ollama service running at %s?", endpoint)
	}
	return out
}

// upstreamError builds an UpstreamError from a non-2xx response, surfacing the
// provider's own message when one can be decoded.
func upstreamError(provider ProviderID, status int, body []byte) *Error {
	return &Error{
		Kind:       KindUpstream,
		Provider:   provider,
		StatusCode: status,
		Message:    fmt.Sprintf("HTTP %d: %s", status, upstreamMessage(body)),
	}
}

// upstreamMessage looks for the error text in the common provider envelopes.
func upstreamMessage(body []byte) string {
	if gjson.ValidBytes(body) {
		for _, path := range []string{"error.message", "error", "message", "detail"} {
			r := gjson.GetBytes(body, path)
			switch {
			case r.Type == gjson.String && r.Str != "":
				return r.Str
			case path == "detail" && r.Exists():
				return r.Raw
			}
		}
	}
	if len(body) == 0 {
		return "empty response body"
	}
	return normalize.Excerpt(string(body), upstreamBodyLimit)
}

func malformed(provider ProviderID, format string, args ...any) *Error {
	return &Error{
		Kind:     KindMalformed,
		Provider: provider,
		Message:  fmt.Sprintf(format, args...),
	}
}
