// -----------------------------------------------------------------------
// ChromeDP Fetcher - renders a page in headless Chrome and returns HTML
// -----------------------------------------------------------------------

package extractor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
)

// FetchedPage holds the rendered HTML and title for one URL
type FetchedPage struct {
	URL   string
	Title string
	HTML  string
}

// ChromeFetcher renders pages with a shared headless browser instance.
// The browser context is created lazily on first fetch and reused across
// tasks; individual fetches are isolated in child tab contexts.
type ChromeFetcher struct {
	config common.ExtractorConfig
	logger arbor.ILogger

	mu              sync.Mutex
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	initialized     bool
}

// NewChromeFetcher creates a new browser-based page fetcher
func NewChromeFetcher(config common.ExtractorConfig, logger arbor.ILogger) *ChromeFetcher {
	return &ChromeFetcher{
		config: config,
		logger: logger,
	}
}

// ensureBrowser creates the shared allocator and browser context once
func (f *ChromeFetcher) ensureBrowser() (context.Context, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.initialized {
		return f.browserCtx, nil
	}

	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", f.config.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", f.config.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(f.config.UserAgent),
	)

	f.allocatorCtx, f.allocatorCancel = chromedp.NewExecAllocator(context.Background(), allocatorOpts...)
	f.browserCtx, f.browserCancel = chromedp.NewContext(f.allocatorCtx)

	// Start the browser process with a trivial navigation
	testCtx, testCancel := context.WithTimeout(f.browserCtx, 30*time.Second)
	defer testCancel()
	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		f.browserCancel()
		f.allocatorCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	f.initialized = true
	f.logger.Info().
		Bool("headless", f.config.Headless).
		Str("user_agent", f.config.UserAgent).
		Msg("Browser instance started")

	return f.browserCtx, nil
}

// Fetch navigates to the URL, waits for JavaScript rendering, and returns
// the page title and outer HTML. The whole operation is bounded by the
// configured request timeout.
func (f *ChromeFetcher) Fetch(ctx context.Context, url string) (*FetchedPage, error) {
	browserCtx, err := f.ensureBrowser()
	if err != nil {
		return nil, err
	}

	// Each fetch runs in its own tab so tasks never share page state
	tabCtx, tabCancel := chromedp.NewContext(browserCtx)
	defer tabCancel()

	timeout := f.config.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	runCtx, runCancel := context.WithTimeout(tabCtx, timeout)
	defer runCancel()

	// Honour caller cancellation alongside the fetch timeout
	go func() {
		select {
		case <-ctx.Done():
			runCancel()
		case <-runCtx.Done():
		}
	}()

	start := time.Now()
	var title, html string
	err = chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.Sleep(f.config.JavaScriptWaitTime),
		chromedp.Title(&title),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page %s: %w", url, err)
	}

	f.logger.Debug().
		Str("url", url).
		Str("title", title).
		Int("html_size", len(html)).
		Dur("duration", time.Since(start)).
		Msg("Page fetched")

	return &FetchedPage{URL: url, Title: title, HTML: html}, nil
}

// Close shuts down the shared browser instance
func (f *ChromeFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.initialized {
		return nil
	}
	f.browserCancel()
	f.allocatorCancel()
	f.initialized = false
	f.logger.Debug().Msg("Browser instance stopped")
	return nil
}
