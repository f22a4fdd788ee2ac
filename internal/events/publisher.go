// Package events publishes domain events through the transactional
// outbox, so consumers never see an event for state that rolled back.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lvasseur/ski-catalog-scraper/internal/crawl"
	"github.com/lvasseur/ski-catalog-scraper/internal/storage"
)

// EventType represents the type of event
type EventType string

const (
	// EventTypeListingUpserted is published when a crawl keeps a record.
	EventTypeListingUpserted EventType = "LISTING_UPSERTED"
	// EventTypeCrawlCompleted is published when a crawl run finishes.
	EventTypeCrawlCompleted EventType = "CRAWL_COMPLETED"
)

// ListingUpsertedPayload represents the payload for LISTING_UPSERTED events
type ListingUpsertedPayload struct {
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	Source      string    `json:"source"`
	IdentityKey string    `json:"identity_key"`
	Brand       string    `json:"brand,omitempty"`
	Model       string    `json:"model"`
	Description string    `json:"description,omitempty"`
	Price       string    `json:"price,omitempty"`
	Discount    string    `json:"discount,omitempty"`
	Page        int       `json:"page"`
	FirstSeen   bool      `json:"first_seen"`
	RunID       string    `json:"run_id,omitempty"`
}

// CrawlCompletedPayload represents the payload for CRAWL_COMPLETED events
type CrawlCompletedPayload struct {
	EventID    string           `json:"event_id"`
	EventType  string           `json:"event_type"`
	Timestamp  time.Time        `json:"timestamp"`
	RunID      string           `json:"run_id"`
	Source     string           `json:"source"`
	StopReason crawl.StopReason `json:"stop_reason"`
	Stats      crawl.Stats      `json:"stats"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
}

// Publisher handles event publishing using the transactional outbox pattern
type Publisher struct {
	db     *storage.DB
	outbox *storage.OutboxRepository
	logger *slog.Logger
}

// NewPublisher creates a new event publisher with database connection
func NewPublisher(db *storage.DB, logger *slog.Logger) *Publisher {
	return &Publisher{
		db:     db,
		outbox: storage.NewOutboxRepository(db),
		logger: logger.With("component", "event_publisher"),
	}
}

// PublishCrawlCompleted publishes a CRAWL_COMPLETED event using the outbox
func (p *Publisher) PublishCrawlCompleted(ctx context.Context, payload *CrawlCompletedPayload) error {
	if payload.EventID == "" {
		payload.EventID = uuid.New().String()
	}
	if payload.EventType == "" {
		payload.EventType = string(EventTypeCrawlCompleted)
	}
	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now()
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	outboxEvent := &storage.OutboxEvent{
		AggregateType: "crawl_run",
		AggregateID:   payload.RunID,
		EventType:     string(EventTypeCrawlCompleted),
		Payload:       data,
		TargetStream:  storage.DefaultStream,
	}

	err = p.db.Transaction(ctx, func(tx pgx.Tx) error {
		if err := p.outbox.InsertWithTx(ctx, tx, outboxEvent); err != nil {
			return fmt.Errorf("failed to insert outbox event: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Info("event published to outbox",
		"type", payload.EventType,
		"event_id", payload.EventID,
		"run_id", payload.RunID,
		"outbox_id", outboxEvent.ID,
	)

	return nil
}
