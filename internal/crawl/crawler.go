package crawl

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/lvasseur/ski-catalog-scraper/internal/dedup"
	"github.com/lvasseur/ski-catalog-scraper/internal/extract"
	"github.com/lvasseur/ski-catalog-scraper/internal/fetch"
	"github.com/lvasseur/ski-catalog-scraper/internal/metrics"
	"github.com/lvasseur/ski-catalog-scraper/internal/models"
	"github.com/lvasseur/ski-catalog-scraper/internal/normalize"
	"github.com/lvasseur/ski-catalog-scraper/internal/ratelimit"
	"github.com/lvasseur/ski-catalog-scraper/internal/source"
)

// RecordSink receives each kept record as it is accepted. Sink errors
// are logged and never interrupt a run.
type RecordSink interface {
	SaveRecord(ctx context.Context, rec models.Record, page int) error
}

// Stats counts what happened to every candidate seen during a run.
type Stats struct {
	PagesFetched int `json:"pages_fetched"`
	PagesFailed  int `json:"pages_failed"`
	Raw          int `json:"raw_candidates"`
	Incomplete   int `json:"incomplete"`
	Duplicates   int `json:"duplicates"`
	Kept         int `json:"kept"`
}

// Result is the outcome of one crawl run. Records are in encounter
// order: page by page, top of page first.
type Result struct {
	Source     string          `json:"source"`
	Records    []models.Record `json:"records"`
	Stats      Stats           `json:"stats"`
	StopReason StopReason      `json:"stop_reason"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

// PriceStats summarizes the parseable prices of a result.
type PriceStats struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
}

// PriceStats computes price statistics over the kept records. Records whose
// price does not parse as a number are left out of all four figures.
func (r *Result) PriceStats() PriceStats {
	var st PriceStats
	var sum float64
	for _, rec := range r.Records {
		v, err := strconv.ParseFloat(rec.Price, 64)
		if err != nil {
			continue
		}
		if st.Count == 0 || v < st.Min {
			st.Min = v
		}
		if st.Count == 0 || v > st.Max {
			st.Max = v
		}
		sum += v
		st.Count++
	}
	if st.Count > 0 {
		st.Avg = sum / float64(st.Count)
	}
	return st
}

// Options are the optional collaborators of a Crawler.
type Options struct {
	Limiter ratelimit.RateLimiter
	Sink    RecordSink
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Crawler walks a paginated catalog until the stop policy ends the run.
type Crawler struct {
	profile    *source.Profile
	fetcher    fetch.Fetcher
	extractor  extract.Extractor
	normalizer *normalize.Normalizer
	detector   *Detector
	strategy   dedup.Strategy
	limiter    ratelimit.RateLimiter
	sink       RecordSink
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func New(profile *source.Profile, fetcher fetch.Fetcher, extractor extract.Extractor, opts Options) *Crawler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.NewSimple(profile.PageDelay(), profile.PageDelay())
	}
	return &Crawler{
		profile:    profile,
		fetcher:    fetcher,
		extractor:  extractor,
		normalizer: normalize.New(profile.RequiredFields),
		detector:   NewDetector(profile.NoResultsPhrases, logger),
		strategy:   profile.Strategy(),
		limiter:    limiter,
		sink:       opts.Sink,
		metrics:    opts.Metrics,
		logger:     logger.With("component", "crawler"),
	}
}

// Run crawls pages starting at 1 until the stop policy fires, the page
// ceiling is reached, or ctx is canceled. Cancellation is not an error:
// the partial result is returned with ReasonCanceled so callers can
// still export what was collected.
func (c *Crawler) Run(ctx context.Context) (*Result, error) {
	res := &Result{
		Source:    c.profile.Name,
		Records:   make([]models.Record, 0),
		StartedAt: time.Now().UTC(),
	}
	seen := dedup.NewSet()

	c.logger.Info("Starting crawl",
		"source", c.profile.Name,
		"base_url", c.profile.BaseURL,
		"max_pages", c.profile.MaxPages,
	)

	reason := ReasonPageLimit
	for page := 1; page <= c.profile.MaxPages; page++ {
		if page == 1 {
			if ctx.Err() != nil {
				reason = ReasonCanceled
				break
			}
		} else if err := c.limiter.Wait(ctx); err != nil {
			reason = ReasonCanceled
			break
		}

		rep := c.processPage(ctx, page, seen, res)

		// A fetch cut short by cancellation must not be read as a
		// dead catalog or a fatal first page.
		if ctx.Err() != nil {
			reason = ReasonCanceled
			break
		}

		verdict := c.detector.Evaluate(rep)
		if verdict.Err != nil {
			return c.finish(res, verdict.Reason), verdict.Err
		}
		if verdict.Stop {
			reason = verdict.Reason
			break
		}
	}

	if reason == ReasonPageLimit {
		c.logger.Warn("Reached page ceiling before the catalog ended", "max_pages", c.profile.MaxPages)
	}
	return c.finish(res, reason), nil
}

func (c *Crawler) finish(res *Result, reason StopReason) *Result {
	res.StopReason = reason
	res.FinishedAt = time.Now().UTC()
	c.metrics.RunFinished(reason.String())
	c.logger.Info("Crawl finished",
		"source", res.Source,
		"reason", reason.String(),
		"pages_fetched", res.Stats.PagesFetched,
		"kept", res.Stats.Kept,
		"duplicates", res.Stats.Duplicates,
		"incomplete", res.Stats.Incomplete,
	)
	return res
}

func (c *Crawler) processPage(ctx context.Context, page int, seen *dedup.Set, res *Result) (rep PageReport) {
	rep = PageReport{Page: page}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Panic while processing page", "page", page, "panic", r)
			rep.ExtractErr = fmt.Errorf("page %d: panic: %v", page, r)
			res.Stats.PagesFailed++
			c.metrics.PageFailed()
		}
	}()

	start := time.Now()
	html, err := c.fetcher.Fetch(ctx, page)
	if err == nil && strings.TrimSpace(html) == "" {
		err = fmt.Errorf("page %d returned empty content", page)
	}
	if rec, ok := c.limiter.(ratelimit.OutcomeRecorder); ok {
		if err != nil {
			rec.RecordError()
		} else {
			rec.RecordSuccess()
		}
	}
	if err != nil {
		rep.FetchErr = err
		res.Stats.PagesFailed++
		c.metrics.PageFailed()
		return rep
	}
	res.Stats.PagesFetched++
	c.metrics.PageFetched(time.Since(start))

	if c.detector.MatchesNoResults(html) {
		rep.NoResults = true
		return rep
	}

	candidates, err := c.extractor.Extract(ctx, html)
	if err != nil {
		rep.ExtractErr = err
		res.Stats.PagesFailed++
		c.metrics.PageFailed()
		return rep
	}
	rep.Raw = len(candidates)
	res.Stats.Raw += len(candidates)

	for _, cand := range candidates {
		record, ok := c.normalizer.Normalize(cand)
		if !ok {
			res.Stats.Incomplete++
			c.metrics.RecordIncomplete()
			continue
		}
		rep.Complete++

		key := c.strategy.Key(record)
		if seen.Contains(key) {
			res.Stats.Duplicates++
			c.metrics.RecordDuplicate()
			c.logger.Debug("Skipping duplicate", "page", page, "model", record.Model)
			continue
		}
		seen.Add(key)

		res.Records = append(res.Records, record)
		res.Stats.Kept++
		rep.Kept++
		c.metrics.RecordKept()

		if c.sink != nil {
			if err := c.sink.SaveRecord(ctx, record, page); err != nil {
				c.logger.Warn("Sink rejected record", "page", page, "model", record.Model, "error", err)
			}
		}
	}

	c.logger.Info("Processed page",
		"page", page,
		"raw", rep.Raw,
		"complete", rep.Complete,
		"kept", rep.Kept,
	)
	return rep
}
