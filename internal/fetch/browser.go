package fetch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/playwright-community/playwright-go"

	"github.com/lvasseur/ski-catalog-scraper/internal/browser"
	"github.com/lvasseur/ski-catalog-scraper/internal/source"
)

// BrowserFetcher renders catalog pages in a headless browser. One page
// object is reused for the whole crawl so the session (cookies, consent
// state) carries across page numbers.
type BrowserFetcher struct {
	browser    *browser.Browser
	page       playwright.Page
	profile    *source.Profile
	maxRetries int
	logger     *slog.Logger
}

// NewBrowserFetcher launches the browser and opens the session page.
func NewBrowserFetcher(opts *browser.Options, profile *source.Profile, maxRetries int, logger *slog.Logger) (*BrowserFetcher, error) {
	b, err := browser.New(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	page, err := b.NewPage()
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to open session page: %w", err)
	}

	if maxRetries < 1 {
		maxRetries = 1
	}

	return &BrowserFetcher{
		browser:    b,
		page:       page,
		profile:    profile,
		maxRetries: maxRetries,
		logger:     logger.With("component", "browser_fetcher"),
	}, nil
}

// Fetch navigates the session page to the requested catalog page and returns
// the rendered markup.
func (f *BrowserFetcher) Fetch(ctx context.Context, page int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	url := f.profile.PageURL(page)
	f.logger.Debug("navigating", "page", page, "url", url)

	if err := f.browser.NavigateWithRetry(f.page, url, f.maxRetries); err != nil {
		return "", fmt.Errorf("failed to fetch page %d: %w", page, err)
	}

	if f.profile.WaitSelector != "" {
		err := f.page.Locator(f.profile.WaitSelector).First().WaitFor(playwright.LocatorWaitForOptions{
			State:   playwright.WaitForSelectorStateAttached,
			Timeout: playwright.Float(5000),
		})
		if err != nil {
			// Absent items are a signal the stop policy interprets, not a
			// fetch failure.
			f.logger.Debug("wait selector never appeared", "page", page, "selector", f.profile.WaitSelector)
		}
	}

	f.browser.HumanizeInteraction(f.page)

	content, err := f.page.Content()
	if err != nil {
		return "", fmt.Errorf("failed to read page %d content: %w", page, err)
	}
	return content, nil
}

// Close shuts the session page and the browser down.
func (f *BrowserFetcher) Close() error {
	if f.page != nil {
		f.page.Close()
	}
	return f.browser.Close()
}
