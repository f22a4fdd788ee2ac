package extract

import (
	"context"

	"github.com/lvasseur/ski-catalog-scraper/internal/models"
)

// Extractor lifts raw candidates out of fetched page markup. Every item tile
// the page carries becomes one candidate, including tiles whose fields could
// not be read; the stop policy needs the raw tile count to tell an exhausted
// catalog from an empty page.
type Extractor interface {
	Extract(ctx context.Context, html string) ([]models.Candidate, error)
}
