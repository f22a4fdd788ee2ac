package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lvasseur/ski-catalog-scraper/internal/dedup"
	"github.com/lvasseur/ski-catalog-scraper/internal/models"
	"github.com/lvasseur/ski-catalog-scraper/internal/storage"
)

// Sink persists kept records as they are crawled. The listings upsert and
// the LISTING_UPSERTED outbox insert share one transaction, so the event
// never outlives a rolled-back row.
type Sink struct {
	db       *storage.DB
	listings *storage.ListingRepository
	outbox   *storage.OutboxRepository
	source   string
	strategy dedup.Strategy
	runID    uuid.UUID
	logger   *slog.Logger
}

// NewSink creates a sink for one crawl run. Pass uuid.Nil as runID when no
// run row exists.
func NewSink(db *storage.DB, source string, strategy dedup.Strategy, runID uuid.UUID, logger *slog.Logger) *Sink {
	return &Sink{
		db:       db,
		listings: storage.NewListingRepository(db),
		outbox:   storage.NewOutboxRepository(db),
		source:   source,
		strategy: strategy,
		runID:    runID,
		logger:   logger.With("component", "record_sink"),
	}
}

// SaveRecord upserts the record and queues its event in one transaction.
func (s *Sink) SaveRecord(ctx context.Context, rec models.Record, page int) error {
	identityKey := dedup.Fold(s.strategy.Key(rec))

	listing := &storage.Listing{
		Source:      s.source,
		IdentityKey: identityKey,
		Brand:       rec.Brand,
		Model:       rec.Model,
		Description: rec.Description,
		Price:       rec.Price,
		Discount:    rec.Discount,
		Page:        page,
	}

	err := s.db.Transaction(ctx, func(tx pgx.Tx) error {
		inserted, err := s.listings.Upsert(ctx, tx, listing)
		if err != nil {
			return fmt.Errorf("failed to upsert listing: %w", err)
		}

		payload := &ListingUpsertedPayload{
			EventID:     uuid.New().String(),
			EventType:   string(EventTypeListingUpserted),
			Timestamp:   time.Now(),
			Source:      s.source,
			IdentityKey: identityKey,
			Brand:       rec.Brand,
			Model:       rec.Model,
			Description: rec.Description,
			Price:       rec.Price,
			Discount:    rec.Discount,
			Page:        page,
			FirstSeen:   inserted,
		}
		if s.runID != uuid.Nil {
			payload.RunID = s.runID.String()
		}

		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}

		outboxEvent := &storage.OutboxEvent{
			AggregateType: "listing",
			AggregateID:   s.source + ":" + identityKey,
			EventType:     string(EventTypeListingUpserted),
			Payload:       data,
			TargetStream:  storage.DefaultStream,
		}
		if err := s.outbox.InsertWithTx(ctx, tx, outboxEvent); err != nil {
			return fmt.Errorf("failed to insert outbox event: %w", err)
		}

		s.logger.Debug("listing saved",
			"identity_key", identityKey,
			"page", page,
			"first_seen", inserted)

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}

	return nil
}
