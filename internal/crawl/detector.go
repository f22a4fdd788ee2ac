package crawl

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrFirstPageFailed marks a run that could not fetch its first page.
// Later pages failing the same way end the run gracefully instead.
var ErrFirstPageFailed = errors.New("first page failed")

// StopReason explains why a crawl run ended.
type StopReason int

const (
	ReasonNone StopReason = iota
	ReasonNoResults
	ReasonEmptyPage
	ReasonExhausted
	ReasonFetchFailed
	ReasonFirstPageFailed
	ReasonPageLimit
	ReasonCanceled
)

func (r StopReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonNoResults:
		return "no_results"
	case ReasonEmptyPage:
		return "empty_page"
	case ReasonExhausted:
		return "exhausted"
	case ReasonFetchFailed:
		return "fetch_failed"
	case ReasonFirstPageFailed:
		return "first_page_failed"
	case ReasonPageLimit:
		return "page_limit"
	case ReasonCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

func (r StopReason) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// PageReport is what one processed page looked like to the crawler.
type PageReport struct {
	Page       int
	FetchErr   error
	NoResults  bool
	ExtractErr error
	Raw        int
	Complete   int
	Kept       int
}

// Verdict is the detector's decision for a page. A non-nil Err always
// implies Stop.
type Verdict struct {
	Stop   bool
	Reason StopReason
	Err    error
}

// Detector decides after each page whether the catalog is exhausted.
type Detector struct {
	phrases []string
	logger  *slog.Logger
}

func NewDetector(phrases []string, logger *slog.Logger) *Detector {
	lowered := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			lowered = append(lowered, p)
		}
	}
	return &Detector{
		phrases: lowered,
		logger:  logger.With("component", "stop_policy"),
	}
}

// MatchesNoResults scans fetched markup for a configured no-results
// phrase. Matching is a case-insensitive substring test.
func (d *Detector) MatchesNoResults(html string) bool {
	lowered := strings.ToLower(html)
	for _, phrase := range d.phrases {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}

// Evaluate turns a page report into a continue/stop decision.
//
// A failed first page is the only fatal outcome. Extraction failures
// never end the run on their own: the page contributes nothing and the
// crawler moves on.
func (d *Detector) Evaluate(rep PageReport) Verdict {
	switch {
	case rep.FetchErr != nil:
		if rep.Page == 1 {
			return Verdict{
				Stop:   true,
				Reason: ReasonFirstPageFailed,
				Err:    fmt.Errorf("%w: %v", ErrFirstPageFailed, rep.FetchErr),
			}
		}
		d.logger.Warn("Stopping after fetch failure", "page", rep.Page, "error", rep.FetchErr)
		return Verdict{Stop: true, Reason: ReasonFetchFailed}

	case rep.NoResults:
		d.logger.Info("No-results marker found", "page", rep.Page)
		return Verdict{Stop: true, Reason: ReasonNoResults}

	case rep.ExtractErr != nil:
		d.logger.Warn("Page skipped after extraction failure", "page", rep.Page, "error", rep.ExtractErr)
		return Verdict{}

	case rep.Raw == 0:
		d.logger.Info("Page has no item tiles", "page", rep.Page)
		return Verdict{Stop: true, Reason: ReasonEmptyPage}

	case rep.Complete == 0:
		d.logger.Info("Page holds only incomplete tiles", "page", rep.Page, "raw", rep.Raw)
		return Verdict{Stop: true, Reason: ReasonExhausted}

	default:
		return Verdict{}
	}
}
