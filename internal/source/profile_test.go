package source

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvasseur/ski-catalog-scraper/internal/dedup"
)

const sampleProfile = `
name: skiwebshop-baselayers
base_url: https://www.skiwebshop.com/ski-base-layers
page_param: p
engine: http
extractor: css
item_selector: li.product-item
fields:
  brand:
    selector: "section > a"
  model:
    selector: h3
  price:
    selector: span.price
  discount:
    selector: p.discount
required_fields: [brand, model, price, discount]
dedup_key: brand_model
max_pages: 10
page_delay_ms: 1000
`

func writeProfile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	p, err := Load(writeProfile(t, sampleProfile))
	require.NoError(t, err)

	assert.Equal(t, "skiwebshop-baselayers", p.Name)
	assert.Equal(t, EngineHTTP, p.Engine)
	assert.Equal(t, "li.product-item", p.ItemSelector)
	assert.Equal(t, 10, p.MaxPages)
	assert.Equal(t, time.Second, p.PageDelay())
	assert.Equal(t, dedup.StrategyBrandModel, p.Strategy())
	assert.Equal(t, "skiwebshop-baselayers", p.ExportBase)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

const minimalProfile = `
name: skiwebshop-baselayers
base_url: https://www.skiwebshop.com/ski-base-layers
item_selector: li.product-item
fields:
  brand:
    selector: "section > a"
  model:
    selector: h3
  price:
    selector: span.price
  discount:
    selector: p.discount
`

func TestLoadWithOverrides(t *testing.T) {
	t.Run("extractor override flips its defaults", func(t *testing.T) {
		p, err := LoadWithOverrides(writeProfile(t, minimalProfile), Overrides{Extractor: ExtractorLLM})
		require.NoError(t, err)

		assert.Equal(t, ExtractorLLM, p.Extractor)
		assert.Equal(t, []string{"model", "description", "price"}, p.RequiredFields)
		assert.Equal(t, dedup.StrategyModel, p.Strategy())
	})

	t.Run("engine and page ceiling overrides", func(t *testing.T) {
		p, err := LoadWithOverrides(writeProfile(t, sampleProfile), Overrides{Engine: EngineBrowser, MaxPages: 3})
		require.NoError(t, err)

		assert.Equal(t, EngineBrowser, p.Engine)
		assert.Equal(t, 3, p.MaxPages)
	})

	t.Run("bad override fails validation", func(t *testing.T) {
		_, err := LoadWithOverrides(writeProfile(t, sampleProfile), Overrides{Engine: "carrier-pigeon"})
		assert.Error(t, err)
	})
}

func TestDefaults(t *testing.T) {
	t.Run("css extractor", func(t *testing.T) {
		p := &Profile{Name: "x", BaseURL: "https://example.com/catalog"}
		p.applyDefaults()

		assert.Equal(t, EngineBrowser, p.Engine)
		assert.Equal(t, ExtractorCSS, p.Extractor)
		assert.Equal(t, "page", p.PageParam)
		assert.Equal(t, []string{"brand", "model", "price", "discount"}, p.RequiredFields)
		assert.Equal(t, "brand_model", p.DedupKey)
		assert.Equal(t, 50, p.MaxPages)
		assert.Equal(t, 2500*time.Millisecond, p.PageDelay())
		assert.Contains(t, p.NoResultsPhrases, "no results found")
	})

	t.Run("llm extractor", func(t *testing.T) {
		p := &Profile{Name: "x", BaseURL: "https://example.com/catalog", Extractor: ExtractorLLM}
		p.applyDefaults()

		assert.Equal(t, []string{"model", "description", "price"}, p.RequiredFields)
		assert.Equal(t, "model", p.DedupKey)
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Profile {
		p := &Profile{
			Name:         "shop",
			BaseURL:      "https://example.com/catalog",
			ItemSelector: "li.item",
			Fields: map[string]FieldSelector{
				"brand":    {Selector: "a.brand"},
				"model":    {Selector: "h3"},
				"price":    {Selector: "span.price"},
				"discount": {Selector: "p.discount"},
			},
		}
		p.applyDefaults()
		return p
	}

	tests := []struct {
		name    string
		mutate  func(p *Profile)
		wantErr string
	}{
		{
			name:   "valid profile",
			mutate: func(p *Profile) {},
		},
		{
			name:    "missing name",
			mutate:  func(p *Profile) { p.Name = "" },
			wantErr: "name",
		},
		{
			name:    "missing base url",
			mutate:  func(p *Profile) { p.BaseURL = "" },
			wantErr: "base_url",
		},
		{
			name:    "non-http scheme",
			mutate:  func(p *Profile) { p.BaseURL = "ftp://example.com" },
			wantErr: "http",
		},
		{
			name:    "unknown engine",
			mutate:  func(p *Profile) { p.Engine = "carrier-pigeon" },
			wantErr: "engine",
		},
		{
			name:    "required field without selector",
			mutate:  func(p *Profile) { delete(p.Fields, "price") },
			wantErr: `"price"`,
		},
		{
			name:    "unknown required field",
			mutate:  func(p *Profile) { p.RequiredFields = append(p.RequiredFields, "ean") },
			wantErr: "unknown required field",
		},
		{
			name:    "bad dedup strategy",
			mutate:  func(p *Profile) { p.DedupKey = "color" },
			wantErr: "dedup",
		},
		{
			name:    "zero max pages",
			mutate:  func(p *Profile) { p.MaxPages = 0 },
			wantErr: "max_pages",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(p)

			err := p.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestPageURL(t *testing.T) {
	tests := []struct {
		name     string
		baseURL  string
		param    string
		page     int
		expected string
	}{
		{
			name:     "page one is the base url",
			baseURL:  "https://example.com/catalog",
			param:    "p",
			page:     1,
			expected: "https://example.com/catalog",
		},
		{
			name:     "later pages append the parameter",
			baseURL:  "https://example.com/catalog",
			param:    "p",
			page:     3,
			expected: "https://example.com/catalog?p=3",
		},
		{
			name:     "existing query keeps its values",
			baseURL:  "https://example.com/catalog?sort=price",
			param:    "page",
			page:     2,
			expected: "https://example.com/catalog?page=2&sort=price",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Profile{BaseURL: tt.baseURL, PageParam: tt.param}
			assert.Equal(t, tt.expected, p.PageURL(tt.page))
		})
	}
}
