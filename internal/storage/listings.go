package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Listing is one catalog record tied to the source it came from.
// IdentityKey is the folded dedup key, so re-crawls update the same
// row instead of stacking duplicates.
type Listing struct {
	ID          uuid.UUID `json:"id"`
	Source      string    `json:"source"`
	IdentityKey string    `json:"identity_key"`
	Brand       string    `json:"brand,omitempty"`
	Model       string    `json:"model"`
	Description string    `json:"description,omitempty"`
	Price       string    `json:"price"`
	Discount    string    `json:"discount,omitempty"`
	Page        int       `json:"page"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// ListingRepository persists catalog listings
type ListingRepository struct {
	db *DB
}

func NewListingRepository(db *DB) *ListingRepository {
	return &ListingRepository{db: db}
}

// Upsert inserts the listing or refreshes the existing row for the
// same (source, identity_key). It reports whether the row was new.
func (r *ListingRepository) Upsert(ctx context.Context, tx pgx.Tx, l *Listing) (bool, error) {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}

	query := `
		INSERT INTO catalog_listing (
			id, source, identity_key, brand, model, description,
			price, discount, page, first_seen_at, last_seen_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP
		)
		ON CONFLICT (source, identity_key) DO UPDATE SET
			brand = EXCLUDED.brand,
			model = EXCLUDED.model,
			description = EXCLUDED.description,
			price = EXCLUDED.price,
			discount = EXCLUDED.discount,
			page = EXCLUDED.page,
			last_seen_at = CURRENT_TIMESTAMP
		RETURNING id, first_seen_at, last_seen_at`

	err := tx.QueryRow(ctx, query,
		l.ID, l.Source, l.IdentityKey, l.Brand, l.Model, l.Description,
		l.Price, l.Discount, l.Page,
	).Scan(&l.ID, &l.FirstSeenAt, &l.LastSeenAt)
	if err != nil {
		return false, fmt.Errorf("failed to upsert listing: %w", err)
	}

	// CURRENT_TIMESTAMP is stable within a transaction, so a fresh
	// insert leaves both timestamps equal.
	return l.FirstSeenAt.Equal(l.LastSeenAt), nil
}

// Get retrieves a listing by its identity. Returns nil when no row
// matches.
func (r *ListingRepository) Get(ctx context.Context, source, identityKey string) (*Listing, error) {
	query := `
		SELECT id, source, identity_key, brand, model, description,
			price, discount, page, first_seen_at, last_seen_at
		FROM catalog_listing
		WHERE source = $1 AND identity_key = $2`

	l := &Listing{}
	err := r.db.pool.QueryRow(ctx, query, source, identityKey).Scan(
		&l.ID, &l.Source, &l.IdentityKey, &l.Brand, &l.Model, &l.Description,
		&l.Price, &l.Discount, &l.Page, &l.FirstSeenAt, &l.LastSeenAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}

	return l, nil
}

// CountBySource returns how many listings each source holds.
func (r *ListingRepository) CountBySource(ctx context.Context) (map[string]int, error) {
	query := `
		SELECT source, COUNT(*) AS count
		FROM catalog_listing
		GROUP BY source`

	rows, err := r.db.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count listings: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var source string
		var count int
		if err := rows.Scan(&source, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[source] = count
	}

	return counts, nil
}
