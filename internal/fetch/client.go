package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/lvasseur/ski-catalog-scraper/internal/source"
)

// Statuses worth retrying before giving the page up.
var retryableStatuses = map[int]bool{
	408: true,
	429: true,
	503: true,
	504: true,
}

// ClientFetcher fetches catalog pages over plain HTTP. It fits sources that
// render listings server-side; JS-heavy catalogs need the browser fetcher.
type ClientFetcher struct {
	client  *resty.Client
	profile *source.Profile
	logger  *slog.Logger
}

// ClientOptions tunes the underlying HTTP client.
type ClientOptions struct {
	Timeout    time.Duration
	MaxRetries int
	UserAgent  string
}

// NewClientFetcher builds a resty-backed fetcher for the profile.
func NewClientFetcher(opts ClientOptions, profile *source.Profile, logger *slog.Logger) *ClientFetcher {
	client := resty.New()
	client.SetTimeout(opts.Timeout)
	client.SetRetryCount(opts.MaxRetries)
	client.SetRetryWaitTime(time.Second)
	client.SetRetryMaxWaitTime(10 * time.Second)
	client.SetHeader("User-Agent", opts.UserAgent)
	client.SetHeader("Accept", "text/html,application/xhtml+xml")
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		if err != nil {
			return true
		}
		return retryableStatuses[r.StatusCode()]
	})

	return &ClientFetcher{
		client:  client,
		profile: profile,
		logger:  logger.With("component", "http_fetcher"),
	}
}

// Fetch downloads one catalog page. Any terminal non-2xx status is an error;
// the stop policy decides what that means for the crawl.
func (f *ClientFetcher) Fetch(ctx context.Context, page int) (string, error) {
	url := f.profile.PageURL(page)
	f.logger.Debug("requesting", "page", page, "url", url)

	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return "", fmt.Errorf("failed to fetch page %d: %w", page, err)
	}

	if resp.IsError() {
		return "", fmt.Errorf("page %d returned status %d", page, resp.StatusCode())
	}

	return resp.String(), nil
}

// Close is a no-op; the HTTP client holds no session resources.
func (f *ClientFetcher) Close() error {
	return nil
}

// Client exposes the underlying resty client for tests.
func (f *ClientFetcher) Client() *resty.Client {
	return f.client
}
