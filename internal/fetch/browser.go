package fetch

import (
	"context"
	"fmt"
	neturl "net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// MinContentLength is the minimum extracted text length to consider HTTP fetch successful.
// Shorter text usually means a JavaScript-rendered page.
const MinContentLength = 500

// ShouldUseBrowser reports whether the extracted text is too short to be the page content.
func ShouldUseBrowser(extractedText string) bool {
	return len(strings.TrimSpace(extractedText)) < MinContentLength
}

// renderWithBrowser renders a page in headless Chrome and returns the rendered HTML.
// Requires Chrome/Chromium to be installed on the system.
func (f *Fetcher) renderWithBrowser(ctx context.Context, url string, timeout time.Duration) (string, error) {
	f.logger.Debug("starting headless browser", zap.String("url", url))

	allocCtx, cancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.UserAgent(f.opts.UserAgent),
		)...,
	)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, timeout)
	defer cancel()

	var html, location string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.Sleep(3*time.Second),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("browser rendering failed: %w", err)
	}
	if !f.opts.AllowPrivateNetworks {
		// The browser follows redirects on its own dialer.
		final, err := neturl.Parse(location)
		if err != nil {
			return "", fmt.Errorf("browser ended on an unparsable location: %w", err)
		}
		if err := checkHost(ctx, final.Hostname()); err != nil {
			return "", err
		}
	}

	f.logger.Debug("browser rendered page", zap.String("url", url), zap.Int("bytes", len(html)))
	return html, nil
}
