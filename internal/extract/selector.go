package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/lvasseur/ski-catalog-scraper/internal/models"
	"github.com/lvasseur/ski-catalog-scraper/internal/source"
)

// SelectorExtractor reads candidates out of markup with the profile's CSS
// selectors. Field lookups that match nothing leave the key absent.
type SelectorExtractor struct {
	itemSelector string
	fields       map[string]source.FieldSelector
	logger       *slog.Logger
}

func NewSelectorExtractor(profile *source.Profile, logger *slog.Logger) *SelectorExtractor {
	return &SelectorExtractor{
		itemSelector: profile.ItemSelector,
		fields:       profile.Fields,
		logger:       logger.With("component", "selector_extractor"),
	}
}

func (e *SelectorExtractor) Extract(_ context.Context, html string) ([]models.Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse markup: %w", err)
	}

	var candidates []models.Candidate
	doc.Find(e.itemSelector).Each(func(_ int, item *goquery.Selection) {
		c := models.Candidate{}
		for name, fs := range e.fields {
			node := item.Find(fs.Selector).First()
			if node.Length() == 0 {
				continue
			}

			var value string
			if fs.Attr != "" {
				value, _ = node.Attr(fs.Attr)
			} else {
				value = node.Text()
			}
			value = strings.TrimSpace(value)
			if value != "" {
				c[name] = value
			}
		}
		candidates = append(candidates, c)
	})

	e.logger.Debug("extracted candidates", "count", len(candidates))
	return candidates, nil
}
