package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lvasseur/ski-catalog-scraper/internal/browser"
	"github.com/lvasseur/ski-catalog-scraper/internal/config"
	"github.com/lvasseur/ski-catalog-scraper/internal/crawl"
	"github.com/lvasseur/ski-catalog-scraper/internal/events"
	"github.com/lvasseur/ski-catalog-scraper/internal/export"
	"github.com/lvasseur/ski-catalog-scraper/internal/extract"
	"github.com/lvasseur/ski-catalog-scraper/internal/fetch"
	"github.com/lvasseur/ski-catalog-scraper/internal/metrics"
	"github.com/lvasseur/ski-catalog-scraper/internal/ratelimit"
	"github.com/lvasseur/ski-catalog-scraper/internal/source"
	"github.com/lvasseur/ski-catalog-scraper/internal/storage"
)

func main() {
	var (
		profilePath   = flag.String("profile", "", "path to the source profile YAML (required)")
		engine        = flag.String("engine", "", "fetch engine override: browser or http")
		extractorName = flag.String("extractor", "", "extractor override: css or llm")
		outDir        = flag.String("out", "", "export directory (default EXPORT_DIR)")
		formatsFlag   = flag.String("formats", "", "comma-separated export formats (default EXPORT_FORMATS)")
		maxPages      = flag.Int("max-pages", 0, "page ceiling override")
		pageDelay     = flag.Duration("delay", 0, "fixed delay between pages, e.g. 1500ms")
		metricsAddr   = flag.String("metrics-addr", "", "bind address for a /metrics listener, e.g. :9090")
		textLog       = flag.Bool("text-log", false, "log in text format instead of JSON")
	)
	flag.Parse()

	logger := newLogger(*textLog, slog.LevelInfo)
	slog.SetDefault(logger)

	if *profilePath == "" {
		logger.Error("missing required -profile flag")
		flag.Usage()
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger = newLogger(*textLog || cfg.Logging.Format == "text", cfg.Logging.SlogLevel())
	slog.SetDefault(logger)

	profile, err := source.LoadWithOverrides(*profilePath, source.Overrides{
		Engine:    *engine,
		Extractor: *extractorName,
		MaxPages:  *maxPages,
	})
	if err != nil {
		logger.Error("failed to load profile", "error", err, "path", *profilePath)
		os.Exit(1)
	}

	m := metrics.New()
	if addr := firstNonEmpty(*metricsAddr, cfg.Metrics.Addr); addr != "" {
		go serveMetrics(addr, m, logger)
	}

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		logger.Info("Interrupt received, finishing up")
		cancel()
	}()

	fetcher, err := newFetcher(cfg, profile, logger)
	if err != nil {
		logger.Error("failed to initialize fetcher", "error", err)
		os.Exit(1)
	}
	defer fetcher.Close()

	extractor, err := newExtractor(cfg, profile, logger)
	if err != nil {
		logger.Error("failed to initialize extractor", "error", err)
		fetcher.Close()
		os.Exit(1)
	}

	opts := crawl.Options{
		Limiter: newLimiter(cfg, profile, *pageDelay),
		Metrics: m,
		Logger:  logger,
	}

	// Optional persistence: listings and run history land in postgres and
	// feed the outbox when a database is configured.
	var (
		runRepo   *storage.RunRepository
		run       *storage.CrawlRun
		publisher *events.Publisher
	)
	if cfg.Database.Enabled {
		db, err := storage.New(ctx, cfg.Database.ConnString())
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			fetcher.Close()
			os.Exit(1)
		}
		defer db.Close()

		runRepo = storage.NewRunRepository(db)
		run, err = runRepo.Create(ctx, profile.Name)
		if err != nil {
			logger.Error("failed to create run record", "error", err)
			fetcher.Close()
			os.Exit(1)
		}

		opts.Sink = events.NewSink(db, profile.Name, profile.Strategy(), run.ID, logger)
		publisher = events.NewPublisher(db, logger)
		logger.Info("Database sink enabled", "run_id", run.ID)
	}

	crawler := crawl.New(profile, fetcher, extractor, opts)

	logger.Info("Starting crawl",
		"source", profile.Name,
		"url", profile.BaseURL,
		"engine", profile.Engine,
		"extractor", profile.Extractor,
		"max_pages", profile.MaxPages)

	result, runErr := crawler.Run(ctx)

	if runRepo != nil {
		// The crawl context may already be canceled; bookkeeping gets its own.
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 10*time.Second)
		finishRun(flushCtx, runRepo, run, publisher, result, runErr, logger)
		flushCancel()
	}

	if runErr != nil {
		logger.Error("Crawl failed", "error", runErr)
		fetcher.Close()
		os.Exit(1)
	}

	prices := result.PriceStats()
	logger.Info("Run summary",
		"source", result.Source,
		"stop_reason", result.StopReason.String(),
		"duration", result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond).String(),
		"pages_fetched", result.Stats.PagesFetched,
		"pages_failed", result.Stats.PagesFailed,
		"raw_candidates", result.Stats.Raw,
		"kept", result.Stats.Kept,
		"duplicates", result.Stats.Duplicates,
		"incomplete", result.Stats.Incomplete,
		"price_count", prices.Count,
		"price_min", prices.Min,
		"price_max", prices.Max,
		"price_avg", prices.Avg)

	if result.Stats.Kept == 0 {
		logger.Error("No data extracted, check the profile selectors and base URL",
			"stop_reason", result.StopReason.String())
		fetcher.Close()
		os.Exit(1)
	}

	formats := cfg.Export.Formats
	if *formatsFlag != "" {
		formats = splitList(*formatsFlag)
	}

	writer := export.NewWriter(firstNonEmpty(*outDir, cfg.Export.Dir), profile.ExportBase, logger)
	files, err := writer.Write(result.Records, formats)
	if err != nil {
		logger.Error("failed to write exports", "error", err)
		fetcher.Close()
		os.Exit(1)
	}

	logger.Info("Run complete", "records", result.Stats.Kept, "files", files)
}

func newLogger(text bool, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if text {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func newFetcher(cfg *config.Config, profile *source.Profile, logger *slog.Logger) (fetch.Fetcher, error) {
	if profile.Engine == source.EngineHTTP {
		return fetch.NewClientFetcher(fetch.ClientOptions{
			Timeout:    cfg.HTTP.Timeout,
			MaxRetries: cfg.HTTP.MaxRetries,
			UserAgent:  cfg.HTTP.UserAgent,
		}, profile, logger), nil
	}

	return fetch.NewBrowserFetcher(&browser.Options{
		Headless:       cfg.Browser.Headless,
		Timeout:        cfg.Browser.Timeout,
		UserAgent:      cfg.Browser.UserAgent,
		ViewportWidth:  cfg.Browser.ViewportWidth,
		ViewportHeight: cfg.Browser.ViewportHeight,
		AcceptLanguage: cfg.Browser.AcceptLanguage,
		TimezoneID:     cfg.Browser.TimezoneID,
		Locale:         cfg.Browser.Locale,
	}, profile, cfg.Crawler.FetchRetries, logger)
}

func newExtractor(cfg *config.Config, profile *source.Profile, logger *slog.Logger) (extract.Extractor, error) {
	if profile.Extractor == source.ExtractorLLM {
		return extract.NewLLMExtractor(extract.LLMOptions{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Timeout:     cfg.LLM.Timeout,
			Temperature: cfg.LLM.Temperature,
		}, profile, logger)
	}
	return extract.NewSelectorExtractor(profile, logger), nil
}

// newLimiter paces the crawl. Config sets a politeness floor over the
// profile delay; an explicit -delay bypasses both.
func newLimiter(cfg *config.Config, profile *source.Profile, override time.Duration) ratelimit.RateLimiter {
	minDelay := profile.PageDelay()
	if cfg.Crawler.PageDelayMin > minDelay {
		minDelay = cfg.Crawler.PageDelayMin
	}
	maxDelay := cfg.Crawler.PageDelayMax
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	if override > 0 {
		minDelay, maxDelay = override, override
	}

	if cfg.Crawler.AdaptivePacing {
		return ratelimit.NewAdaptive(minDelay, maxDelay)
	}
	return ratelimit.NewSimple(minDelay, maxDelay)
}

func finishRun(ctx context.Context, runRepo *storage.RunRepository, run *storage.CrawlRun, publisher *events.Publisher, result *crawl.Result, runErr error, logger *slog.Logger) {
	status := storage.RunStatusCompleted
	errMsg := ""
	if runErr != nil {
		status = storage.RunStatusFailed
		errMsg = runErr.Error()
	}

	upd := storage.RunUpdate{
		Status:       status,
		StopReason:   result.StopReason.String(),
		PagesFetched: result.Stats.PagesFetched,
		PagesFailed:  result.Stats.PagesFailed,
		RecordsKept:  result.Stats.Kept,
		Duplicates:   result.Stats.Duplicates,
		Incomplete:   result.Stats.Incomplete,
		ErrorMessage: errMsg,
	}
	if err := runRepo.Finish(ctx, run.ID, upd); err != nil {
		logger.Error("failed to finish run record", "error", err, "run_id", run.ID)
	}

	payload := &events.CrawlCompletedPayload{
		RunID:      run.ID.String(),
		Source:     result.Source,
		StopReason: result.StopReason,
		Stats:      result.Stats,
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
	}
	if err := publisher.PublishCrawlCompleted(ctx, payload); err != nil {
		logger.Error("failed to publish completion event", "error", err, "run_id", run.ID)
	}
}

func serveMetrics(addr string, m *metrics.Metrics, logger *slog.Logger) {
	r := chi.NewRouter()
	r.Handle("/metrics", m.Handler())

	logger.Info("Metrics listener started", "addr", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Error("metrics listener failed", "error", err)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(strings.ToLower(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
