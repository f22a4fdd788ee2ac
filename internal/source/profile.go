package source

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lvasseur/ski-catalog-scraper/internal/dedup"
	"github.com/lvasseur/ski-catalog-scraper/internal/models"
)

// Engine selects how pages are fetched.
const (
	EngineBrowser = "browser"
	EngineHTTP    = "http"
)

// Extractor selects how candidates are lifted from fetched markup.
const (
	ExtractorCSS = "css"
	ExtractorLLM = "llm"
)

var (
	ErrMissingName    = errors.New("profile is missing a name")
	ErrMissingBaseURL = errors.New("profile is missing base_url")
)

// FieldSelector locates one canonical field inside an item node. When Attr
// is set the attribute value is read instead of the node text.
type FieldSelector struct {
	Selector string `yaml:"selector"`
	Attr     string `yaml:"attr,omitempty"`
}

// Profile describes one scrape target: where the catalog lives, how its
// pages are addressed, how to locate listing fields, and how the crawl
// should behave against it.
type Profile struct {
	Name      string `yaml:"name"`
	BaseURL   string `yaml:"base_url"`
	PageParam string `yaml:"page_param"`
	Engine    string `yaml:"engine"`
	Extractor string `yaml:"extractor"`

	ItemSelector string                   `yaml:"item_selector"`
	Fields       map[string]FieldSelector `yaml:"fields"`
	WaitSelector string                   `yaml:"wait_selector"`

	RequiredFields   []string `yaml:"required_fields"`
	DedupKey         string   `yaml:"dedup_key"`
	NoResultsPhrases []string `yaml:"no_results_phrases"`

	MaxPages    int `yaml:"max_pages"`
	PageDelayMs int `yaml:"page_delay_ms"`

	ExportBase string `yaml:"export_base"`
}

// Overrides replace profile values before defaults are derived, so an
// extractor override also flips the required-field and dedup defaults that
// hang off it.
type Overrides struct {
	Engine    string
	Extractor string
	MaxPages  int
}

// Load reads, defaults, and validates a profile file. A profile that fails
// to load is a configuration error and must abort the caller before any
// network activity.
func Load(path string) (*Profile, error) {
	return LoadWithOverrides(path, Overrides{})
}

// LoadWithOverrides is Load with command-line overrides applied between
// parsing and defaulting.
func LoadWithOverrides(path string, o Overrides) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse profile YAML: %w", err)
	}

	if o.Engine != "" {
		p.Engine = o.Engine
	}
	if o.Extractor != "" {
		p.Extractor = o.Extractor
	}
	if o.MaxPages > 0 {
		p.MaxPages = o.MaxPages
	}

	p.applyDefaults()
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("profile validation failed: %w", err)
	}
	return &p, nil
}

func (p *Profile) applyDefaults() {
	if p.PageParam == "" {
		p.PageParam = "page"
	}
	if p.Engine == "" {
		p.Engine = EngineBrowser
	}
	if p.Extractor == "" {
		p.Extractor = ExtractorCSS
	}
	if len(p.RequiredFields) == 0 {
		if p.Extractor == ExtractorLLM {
			p.RequiredFields = []string{models.FieldModel, models.FieldDescription, models.FieldPrice}
		} else {
			p.RequiredFields = []string{models.FieldBrand, models.FieldModel, models.FieldPrice, models.FieldDiscount}
		}
	}
	if p.DedupKey == "" {
		if p.Extractor == ExtractorLLM {
			p.DedupKey = string(dedup.StrategyModel)
		} else {
			p.DedupKey = string(dedup.StrategyBrandModel)
		}
	}
	if len(p.NoResultsPhrases) == 0 {
		p.NoResultsPhrases = []string{"no results found", "0 results", "no matching items"}
	}
	if p.MaxPages == 0 {
		p.MaxPages = 50
	}
	if p.PageDelayMs == 0 {
		p.PageDelayMs = 2500
	}
	if p.ExportBase == "" {
		p.ExportBase = p.Name
	}
}

// Validate checks the profile for contradictions before any fetch happens.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return ErrMissingName
	}
	if p.BaseURL == "" {
		return ErrMissingBaseURL
	}
	u, err := url.Parse(p.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base_url must be http or https, got %q", u.Scheme)
	}

	if p.Engine != EngineBrowser && p.Engine != EngineHTTP {
		return fmt.Errorf("unknown engine %q", p.Engine)
	}
	if p.Extractor != ExtractorCSS && p.Extractor != ExtractorLLM {
		return fmt.Errorf("unknown extractor %q", p.Extractor)
	}

	if p.Extractor == ExtractorCSS {
		if p.ItemSelector == "" {
			return errors.New("css extractor requires item_selector")
		}
		for _, field := range p.RequiredFields {
			fs, ok := p.Fields[field]
			if !ok || fs.Selector == "" {
				return fmt.Errorf("required field %q has no selector", field)
			}
		}
	}

	for _, field := range p.RequiredFields {
		if !knownField(field) {
			return fmt.Errorf("unknown required field %q", field)
		}
	}
	for field := range p.Fields {
		if !knownField(field) {
			return fmt.Errorf("unknown field %q in selector map", field)
		}
	}

	if _, err := dedup.Parse(p.DedupKey); err != nil {
		return err
	}

	if p.MaxPages < 1 {
		return fmt.Errorf("max_pages must be positive, got %d", p.MaxPages)
	}
	if p.PageDelayMs < 0 {
		return fmt.Errorf("page_delay_ms must not be negative, got %d", p.PageDelayMs)
	}
	return nil
}

// PageURL returns the address of the given 1-based page. Page 1 is the base
// URL untouched; later pages carry the page parameter in the query string.
func (p *Profile) PageURL(page int) string {
	if page <= 1 {
		return p.BaseURL
	}

	u, err := url.Parse(p.BaseURL)
	if err != nil {
		return p.BaseURL
	}
	q := u.Query()
	q.Set(p.PageParam, strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}

// PageDelay returns the inter-page pacing delay.
func (p *Profile) PageDelay() time.Duration {
	return time.Duration(p.PageDelayMs) * time.Millisecond
}

// Strategy returns the dedup strategy the profile selected. Validate
// guarantees the value parses.
func (p *Profile) Strategy() dedup.Strategy {
	s, _ := dedup.Parse(p.DedupKey)
	return s
}

func knownField(name string) bool {
	for _, f := range models.Fields {
		if f == name {
			return true
		}
	}
	return false
}
