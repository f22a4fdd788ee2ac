package fetch

import "context"

// Fetcher returns the raw markup of one catalog page. Implementations own
// whatever session state the source needs; the driver only hands them page
// numbers. A nil error with empty content is treated by the caller the same
// as a failed fetch.
type Fetcher interface {
	Fetch(ctx context.Context, page int) (string, error)
	Close() error
}
