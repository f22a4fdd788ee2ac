package events

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvasseur/ski-catalog-scraper/internal/crawl"
	"github.com/lvasseur/ski-catalog-scraper/internal/dedup"
	"github.com/lvasseur/ski-catalog-scraper/internal/models"
	"github.com/lvasseur/ski-catalog-scraper/internal/storage"
)

var _ crawl.RecordSink = (*Sink)(nil)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestListingUpsertedPayloadJSON(t *testing.T) {
	payload := ListingUpsertedPayload{
		EventID:     "evt-1",
		EventType:   string(EventTypeListingUpserted),
		Timestamp:   time.Now(),
		Source:      "skiwebshop",
		IdentityKey: "rossignol\x1fhero elite",
		Brand:       "Rossignol",
		Model:       "Hero Elite",
		Price:       "549.99",
		Page:        2,
		FirstSeen:   true,
	}

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &m))

	assert.Equal(t, "LISTING_UPSERTED", m["event_type"])
	assert.Equal(t, "rossignol\x1fhero elite", m["identity_key"])
	assert.Equal(t, true, m["first_seen"])
	assert.NotContains(t, m, "run_id")
	assert.NotContains(t, m, "discount")
}

func TestCrawlCompletedPayloadJSON(t *testing.T) {
	payload := CrawlCompletedPayload{
		EventID:    "evt-2",
		EventType:  string(EventTypeCrawlCompleted),
		Timestamp:  time.Now(),
		RunID:      uuid.New().String(),
		Source:     "skiwebshop",
		StopReason: crawl.ReasonExhausted,
		Stats:      crawl.Stats{PagesFetched: 5, Raw: 40, Kept: 32, Duplicates: 6, Incomplete: 2},
		StartedAt:  time.Now().Add(-time.Minute),
		FinishedAt: time.Now(),
	}

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &m))

	assert.Equal(t, "exhausted", m["stop_reason"])

	stats, ok := m["stats"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 5, stats["pages_fetched"])
	assert.EqualValues(t, 40, stats["raw_candidates"])
	assert.EqualValues(t, 32, stats["kept"])
}

func TestPublishCrawlCompleted(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	publisher := NewPublisher(db, testLogger())

	payload := &CrawlCompletedPayload{
		RunID:      uuid.New().String(),
		Source:     "skiwebshop",
		StopReason: crawl.ReasonNoResults,
		Stats:      crawl.Stats{PagesFetched: 3, Raw: 24, Kept: 20, Duplicates: 4},
		StartedAt:  time.Now().Add(-time.Minute),
		FinishedAt: time.Now(),
	}

	err := publisher.PublishCrawlCompleted(ctx, payload)
	require.NoError(t, err)

	assert.NotEmpty(t, payload.EventID)
	assert.Equal(t, "CRAWL_COMPLETED", payload.EventType)
	assert.False(t, payload.Timestamp.IsZero())
}

func TestSinkSaveRecord(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	sink := NewSink(db, "skiwebshop", dedup.StrategyBrandModel, uuid.Nil, testLogger())

	rec := models.Record{Brand: "Rossignol", Model: "Hero Elite", Price: "549.99"}
	require.NoError(t, sink.SaveRecord(ctx, rec, 1))

	listings := storage.NewListingRepository(db)
	got, err := listings.Get(ctx, "skiwebshop", dedup.Fold(dedup.StrategyBrandModel.Key(rec)))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Hero Elite", got.Model)

	rec.Price = "499.99"
	require.NoError(t, sink.SaveRecord(ctx, rec, 3))

	got, err = listings.Get(ctx, "skiwebshop", dedup.Fold(dedup.StrategyBrandModel.Key(rec)))
	require.NoError(t, err)
	assert.Equal(t, "499.99", got.Price)
}

// setupTestDB connects to the integration test database. Tests that need it
// are skipped when none is configured.
func setupTestDB(t *testing.T) *storage.DB {
	t.Helper()
	t.Skip("Test database not configured")
	return nil
}
