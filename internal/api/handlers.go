package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lvasseur/ski-catalog-scraper/internal/catalog"
	"github.com/lvasseur/ski-catalog-scraper/internal/export"
	"github.com/lvasseur/ski-catalog-scraper/internal/storage"
)

// RunLister provides crawl run history. *storage.RunRepository satisfies it;
// the server passes nil when no database is configured.
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]storage.CrawlRun, error)
}

type Handlers struct {
	catalog    *catalog.Service
	runs       RunLister
	exportsDir string
	logger     *slog.Logger
}

func NewHandlers(catalog *catalog.Service, runs RunLister, exportsDir string, logger *slog.Logger) *Handlers {
	return &Handlers{
		catalog:    catalog,
		runs:       runs,
		exportsDir: exportsDir,
		logger:     logger,
	}
}

// RecordsResponse represents a filtered page of catalog records
type RecordsResponse struct {
	Total   int           `json:"total"`
	Count   int           `json:"count"`
	Records []catalog.Row `json:"records"`
}

// ListRecords handles filtered, sorted catalog queries
func (h *Handlers) ListRecords(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit, offset, err := parsePaging(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows := h.catalog.Rows(q)
	total := len(rows)

	if offset > len(rows) {
		offset = len(rows)
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	if rows == nil {
		rows = []catalog.Row{}
	}

	h.respondJSON(w, http.StatusOK, RecordsResponse{
		Total:   total,
		Count:   len(rows),
		Records: rows,
	})
}

// ExportRecords handles filtered CSV downloads
func (h *Handlers) ExportRecords(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	filename := fmt.Sprintf("catalog_export_%s.csv", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if err := h.catalog.ExportCSV(w, q); err != nil {
		h.logger.Error("failed to stream csv export", "error", err)
	}
}

// GetBrands handles brand list retrieval
func (h *Handlers) GetBrands(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.catalog.Brands())
}

// GetStats handles dataset statistics retrieval
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.catalog.Summarize())
}

// ListExports handles export file listing
func (h *Handlers) ListExports(w http.ResponseWriter, r *http.Request) {
	files, err := export.ListExports(h.exportsDir)
	if err != nil {
		h.logger.Error("failed to list exports", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list exports")
		return
	}
	if files == nil {
		files = []export.FileInfo{}
	}
	h.respondJSON(w, http.StatusOK, files)
}

// ReloadDataset handles reloading the catalog from the newest export
func (h *Handlers) ReloadDataset(w http.ResponseWriter, r *http.Request) {
	path, count, err := h.catalog.Reload()
	if err != nil {
		if errors.Is(err, export.ErrNoExports) {
			h.respondError(w, http.StatusNotFound, "no export files found")
			return
		}
		h.logger.Error("failed to reload dataset", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to reload dataset")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"loaded_from": filepath.Base(path),
		"records":     count,
	})
}

// ListRuns handles crawl run history retrieval
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		h.respondError(w, http.StatusNotFound, "run history requires the database")
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			h.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := h.runs.ListRuns(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list runs", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []storage.CrawlRun{}
	}

	h.respondJSON(w, http.StatusOK, runs)
}

// parseQuery builds a catalog query from request parameters. The brand
// filter accepts repeated brand= params.
func parseQuery(r *http.Request) (catalog.Query, error) {
	params := r.URL.Query()

	q := catalog.Query{
		Search: strings.TrimSpace(params.Get("search")),
		Brands: params["brand"],
	}

	var err error
	if q.MinPrice, err = parseFloatParam(params.Get("min_price"), "min_price"); err != nil {
		return q, err
	}
	if q.MaxPrice, err = parseFloatParam(params.Get("max_price"), "max_price"); err != nil {
		return q, err
	}
	if q.MinDiscount, err = parseFloatParam(params.Get("min_discount"), "min_discount"); err != nil {
		return q, err
	}

	if sortKey := params.Get("sort"); sortKey != "" {
		if !catalog.ValidSort(sortKey) {
			return q, fmt.Errorf("unknown sort %q", sortKey)
		}
		q.Sort = sortKey
	}

	switch order := strings.ToLower(params.Get("order")); order {
	case "", "asc":
	case "desc":
		q.Desc = true
	default:
		return q, fmt.Errorf("order must be asc or desc")
	}

	return q, nil
}

func parseFloatParam(raw, name string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("%s must be a number", name)
	}
	return &v, nil
}

func parsePaging(r *http.Request) (limit, offset int, err error) {
	params := r.URL.Query()

	if v := params.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			return 0, 0, fmt.Errorf("limit must be a non-negative integer")
		}
	}
	if v := params.Get("offset"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("offset must be a non-negative integer")
		}
	}

	return limit, offset, nil
}

// Helper methods
func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
