// Package fetch resolves a context URL, typically a job posting, into plain text
// for the generation prompt.
package fetch

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 30 * time.Second

// DefaultUserAgent is the user agent string for HTTP requests.
const DefaultUserAgent = "Mozilla/5.0 (compatible; CVTailor/1.0)"

// maxBodyBytes bounds how much of a page is read.
const maxBodyBytes = 5 << 20

// Error represents an error during URL fetching.
type Error struct {
	URL     string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch error for %s: %s", e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Options configures the fetch behavior.
type Options struct {
	Timeout    time.Duration
	UserAgent  string
	UseBrowser bool
	// AllowPrivateNetworks permits loopback and private destinations. Leave it
	// off whenever the URL comes from a caller.
	AllowPrivateNetworks bool
	Client               *http.Client
}

// DefaultOptions returns sensible defaults for fetching.
func DefaultOptions() Options {
	return Options{
		Timeout:   DefaultTimeout,
		UserAgent: DefaultUserAgent,
	}
}

// RenderFunc renders a page and returns its HTML.
type RenderFunc func(ctx context.Context, url string, timeout time.Duration) (string, error)

// Fetcher turns URLs into text.
type Fetcher struct {
	opts   Options
	client *http.Client
	render RenderFunc
	logger *zap.Logger
}

// NewFetcher creates a fetcher. With UseBrowser set, pages whose text is too short
// to be a real posting are re-rendered in headless Chrome.
func NewFetcher(opts Options, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	client := opts.Client
	if client == nil {
		if opts.AllowPrivateNetworks {
			client = &http.Client{Timeout: opts.Timeout}
		} else {
			client = guardedClient(opts.Timeout)
		}
	}
	f := &Fetcher{opts: opts, client: client, logger: logger.Named("fetch")}
	if opts.UseBrowser {
		f.render = f.renderWithBrowser
	}
	return f
}

// FetchText retrieves a page and returns its main text.
func (f *Fetcher) FetchText(ctx context.Context, rawURL string) (string, error) {
	body, contentType, err := f.get(ctx, rawURL)
	if err != nil {
		return "", err
	}

	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == "text/plain" {
		return cleanWhitespace(body), nil
	}

	selectors := SelectorsFor(DetectBoard(rawURL))
	text, err := ExtractMainText(body, selectors)
	if err != nil {
		return "", &Error{URL: rawURL, Message: "failed to extract text", Cause: err}
	}

	if f.render != nil && ShouldUseBrowser(text) {
		f.logger.Info("page text too short, rendering in browser",
			zap.String("url", rawURL),
			zap.Int("text_chars", len(text)),
		)
		html, err := f.render(ctx, rawURL, f.opts.Timeout)
		if err != nil {
			f.logger.Warn("browser rendering failed, keeping fetched text", zap.Error(err))
		} else if rendered, err := ExtractMainText(html, selectors); err == nil && len(rendered) > len(text) {
			text = rendered
		}
	}

	if strings.TrimSpace(text) == "" {
		return "", &Error{URL: rawURL, Message: "page has no readable text"}
	}
	f.logger.Debug("context fetched", zap.String("url", rawURL), zap.Int("text_chars", len(text)))
	return text, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (string, string, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil || parsedURL.Host == "" || (parsedURL.Scheme != "http" && parsedURL.Scheme != "https") {
		return "", "", &Error{URL: rawURL, Message: "invalid URL", Cause: err}
	}
	if !f.opts.AllowPrivateNetworks {
		if err := checkHost(ctx, parsedURL.Hostname()); err != nil {
			return "", "", &Error{URL: rawURL, Message: "destination refused", Cause: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", "", &Error{URL: rawURL, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "text/html,text/plain;q=0.9,*/*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", "", &Error{URL: rawURL, Message: "HTTP request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", "", &Error{URL: rawURL, Message: fmt.Sprintf("HTTP status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", "", &Error{URL: rawURL, Message: "failed to read response body", Cause: err}
	}
	return string(body), resp.Header.Get("Content-Type"), nil
}

// ExtractMainText parses HTML and returns the main body text.
// It removes noise elements, then takes the first element matching a content
// selector, falling back to the body.
func ExtractMainText(html string, contentSelectors []string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("nav, footer, header, script, style, noscript, .ad, .advertisement, .ads, .sidebar, .cookie-banner, .popup").Remove()

	var mainContent *goquery.Selection
	for _, selector := range contentSelectors {
		if selection := doc.Find(selector); selection.Length() > 0 {
			mainContent = selection.First()
			break
		}
	}
	if mainContent == nil {
		mainContent = doc.Find("body")
	}

	return cleanWhitespace(mainContent.Text()), nil
}

// JobPostingSelectors returns selectors optimized for job board pages.
func JobPostingSelectors() []string {
	return []string{
		".job-description",
		".job-content",
		"#job-description",
		"#job-content",
		".posting-content",
		".job-details",
		"[data-testid='job-description']",
		"main",
		"article",
		".content",
		"#content",
	}
}

// cleanWhitespace trims every line and drops the empty ones.
func cleanWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	var cleaned []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}
