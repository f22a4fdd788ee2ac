// Package catalog serves a crawled dataset for browsing: filtering,
// sorting, brand listing, and re-export of filtered views.
package catalog

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/lvasseur/ski-catalog-scraper/internal/export"
	"github.com/lvasseur/ski-catalog-scraper/internal/models"
	"github.com/lvasseur/ski-catalog-scraper/internal/normalize"
)

const defaultCacheSize = 64

// Sort keys accepted by Query.Sort. Discount sorts by magnitude, so
// descending puts the deepest discount first.
const (
	SortPrice    = "price"
	SortDiscount = "discount"
	SortBrand    = "brand"
	SortModel    = "model"
)

// ValidSort reports whether key is an accepted sort key. Empty keeps
// the dataset's encounter order.
func ValidSort(key string) bool {
	switch key {
	case "", SortPrice, SortDiscount, SortBrand, SortModel:
		return true
	}
	return false
}

// Row is one catalog record plus its parsed numeric views. A nil value
// means the string field was empty or not a number.
type Row struct {
	models.Record
	PriceValue    *float64 `json:"price_value,omitempty"`
	DiscountValue *float64 `json:"discount_value,omitempty"`
}

// Query narrows and orders the dataset. MinDiscount is a magnitude:
// 20 keeps rows discounted by 20% or more.
type Query struct {
	Search      string
	Brands      []string
	MinPrice    *float64
	MaxPrice    *float64
	MinDiscount *float64
	Sort        string
	Desc        bool
}

func (q Query) cacheKey() string {
	f := func(p *float64) string {
		if p == nil {
			return "-"
		}
		return strconv.FormatFloat(*p, 'f', -1, 64)
	}
	return strings.Join([]string{
		strings.ToLower(q.Search),
		strings.ToLower(strings.Join(q.Brands, ",")),
		f(q.MinPrice),
		f(q.MaxPrice),
		f(q.MinDiscount),
		q.Sort,
		strconv.FormatBool(q.Desc),
	}, "|")
}

func (q Query) matches(row Row) bool {
	if q.Search != "" {
		needle := strings.ToLower(q.Search)
		if !strings.Contains(strings.ToLower(row.Brand), needle) &&
			!strings.Contains(strings.ToLower(row.Model), needle) &&
			!strings.Contains(strings.ToLower(row.Description), needle) {
			return false
		}
	}
	if len(q.Brands) > 0 {
		found := false
		for _, b := range q.Brands {
			if strings.EqualFold(strings.TrimSpace(b), row.Brand) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.MinPrice != nil || q.MaxPrice != nil {
		if row.PriceValue == nil {
			return false
		}
		if q.MinPrice != nil && *row.PriceValue < *q.MinPrice {
			return false
		}
		if q.MaxPrice != nil && *row.PriceValue > *q.MaxPrice {
			return false
		}
	}
	if q.MinDiscount != nil {
		if row.DiscountValue == nil || *row.DiscountValue > -*q.MinDiscount {
			return false
		}
	}
	return true
}

// Summary are dataset-level statistics for the stats endpoint.
type Summary struct {
	Total        int       `json:"total"`
	Brands       int       `json:"brands"`
	WithPrice    int       `json:"with_price"`
	WithDiscount int       `json:"with_discount"`
	MinPrice     *float64  `json:"min_price,omitempty"`
	MaxPrice     *float64  `json:"max_price,omitempty"`
	AvgPrice     *float64  `json:"avg_price,omitempty"`
	LoadedFrom   string    `json:"loaded_from,omitempty"`
	LoadedAt     time.Time `json:"loaded_at"`
}

// Service holds the active dataset and answers queries against it.
// Filtered views are cached per query until the dataset is reloaded.
type Service struct {
	mu     sync.RWMutex
	dir    string
	path   string
	rows   []Row
	loaded time.Time
	gen    int
	cache  *lru.Cache[string, []Row]
	logger *slog.Logger
}

// NewService loads the newest JSON export under dir.
func NewService(dir string, logger *slog.Logger) (*Service, error) {
	cache, err := lru.New[string, []Row](defaultCacheSize)
	if err != nil {
		return nil, err
	}
	s := &Service{
		dir:    dir,
		cache:  cache,
		logger: logger.With("component", "catalog"),
	}
	if _, _, err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewFromRecords builds a Service over an in-memory dataset.
func NewFromRecords(records []models.Record, logger *slog.Logger) *Service {
	cache, _ := lru.New[string, []Row](defaultCacheSize)
	return &Service{
		rows:   buildRows(records),
		loaded: time.Now().UTC(),
		cache:  cache,
		logger: logger.With("component", "catalog"),
	}
}

// Reload re-reads the newest JSON export and swaps the dataset in.
// Cached views of the old dataset expire with the key generation.
func (s *Service) Reload() (string, int, error) {
	path, err := export.LatestExport(s.dir)
	if err != nil {
		return "", 0, err
	}
	records, err := export.ReadRecords(path)
	if err != nil {
		return "", 0, err
	}
	rows := buildRows(records)

	s.mu.Lock()
	s.path = path
	s.rows = rows
	s.loaded = time.Now().UTC()
	s.gen++
	s.mu.Unlock()
	s.cache.Purge()

	s.logger.Info("Catalog loaded", "path", path, "records", len(rows))
	return path, len(rows), nil
}

// Rows returns the dataset narrowed and ordered by q.
func (s *Service) Rows(q Query) []Row {
	s.mu.RLock()
	rows := s.rows
	gen := s.gen
	s.mu.RUnlock()

	key := fmt.Sprintf("%d|%s", gen, q.cacheKey())
	if cached, ok := s.cache.Get(key); ok {
		return cached
	}

	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		if q.matches(row) {
			out = append(out, row)
		}
	}
	sortRows(out, q.Sort, q.Desc)

	s.cache.Add(key, out)
	return out
}

// Brands returns the distinct brands in the dataset, sorted, keeping
// the casing of each brand's first occurrence.
func (s *Service) Brands() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]string)
	for _, row := range s.rows {
		b := strings.TrimSpace(row.Brand)
		if b == "" {
			continue
		}
		key := strings.ToLower(b)
		if _, ok := seen[key]; !ok {
			seen[key] = b
		}
	}
	brands := make([]string, 0, len(seen))
	for _, b := range seen {
		brands = append(brands, b)
	}
	sort.Slice(brands, func(i, j int) bool {
		return strings.ToLower(brands[i]) < strings.ToLower(brands[j])
	})
	return brands
}

// Summarize computes dataset statistics. Averages are rounded to
// cents.
func (s *Service) Summarize() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := Summary{
		Total:      len(s.rows),
		LoadedFrom: filepath.Base(s.path),
		LoadedAt:   s.loaded,
	}
	if s.path == "" {
		sum.LoadedFrom = ""
	}

	brands := make(map[string]struct{})
	var total float64
	for _, row := range s.rows {
		if b := strings.ToLower(strings.TrimSpace(row.Brand)); b != "" {
			brands[b] = struct{}{}
		}
		if row.DiscountValue != nil {
			sum.WithDiscount++
		}
		v := row.PriceValue
		if v == nil {
			continue
		}
		sum.WithPrice++
		total += *v
		if sum.MinPrice == nil || *v < *sum.MinPrice {
			sum.MinPrice = ptr(*v)
		}
		if sum.MaxPrice == nil || *v > *sum.MaxPrice {
			sum.MaxPrice = ptr(*v)
		}
	}
	sum.Brands = len(brands)
	if sum.WithPrice > 0 {
		sum.AvgPrice = ptr(math.Round(total/float64(sum.WithPrice)*100) / 100)
	}
	return sum
}

// ExportCSV writes the filtered view as CSV, BOM and header included,
// matching the crawler's own CSV exports.
func (s *Service) ExportCSV(w io.Writer, q Query) error {
	rows := s.Rows(q)

	if _, err := io.WriteString(w, "\xEF\xBB\xBF"); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(models.Fields); err != nil {
		return err
	}
	for _, row := range rows {
		out := make([]string, 0, len(models.Fields))
		for _, name := range models.Fields {
			out = append(out, row.Field(name))
		}
		if err := cw.Write(out); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Dataset reports where the active dataset came from.
func (s *Service) Dataset() (path string, loaded time.Time, count int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path, s.loaded, len(s.rows)
}

func buildRows(records []models.Record) []Row {
	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		rows = append(rows, Row{
			Record:        rec,
			PriceValue:    parseNumber(rec.Price),
			DiscountValue: parseNumber(rec.Discount),
		})
	}
	return rows
}

// parseNumber coerces a display value to a number. Discounts arrive in
// their source form ("-30%"), so the value is run through the price
// cleaner before parsing. Unparseable values become nil.
func parseNumber(s string) *float64 {
	s = normalize.CleanPrice(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func ptr(v float64) *float64 { return &v }

func magnitude(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return ptr(math.Abs(*v))
}

// compareNumeric orders values with nils last in either direction.
func compareNumeric(a, b *float64, desc bool) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	case desc:
		return *a > *b
	default:
		return *a < *b
	}
}

func sortRows(rows []Row, key string, desc bool) {
	switch key {
	case SortPrice:
		sort.SliceStable(rows, func(i, j int) bool {
			return compareNumeric(rows[i].PriceValue, rows[j].PriceValue, desc)
		})
	case SortDiscount:
		sort.SliceStable(rows, func(i, j int) bool {
			return compareNumeric(magnitude(rows[i].DiscountValue), magnitude(rows[j].DiscountValue), desc)
		})
	case SortBrand:
		sort.SliceStable(rows, func(i, j int) bool {
			return stringLess(rows[i].Brand, rows[j].Brand, desc)
		})
	case SortModel:
		sort.SliceStable(rows, func(i, j int) bool {
			return stringLess(rows[i].Model, rows[j].Model, desc)
		})
	}
}

func stringLess(a, b string, desc bool) bool {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if desc {
		return a > b
	}
	return a < b
}
