package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"immojagd/models"
)

// PostgresStore holds the domain data: listings, the geo-blocked side
// channel and price baselines. It implements services.Store and
// services.BaselineStore.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

// =============================================================================
// Listings
// =============================================================================

const listingColumns = `id, platform, source_url, title, price, area, price_per_area,
	location, region, category, description, image_urls, phone,
	first_seen_at, last_scraped_at, last_changed_at, last_change_kind,
	score, tier, gold_find, deleted, created_at, updated_at`

func (s *PostgresStore) GetListingBySourceURL(ctx context.Context, platform models.Platform, url string) (*models.Listing, error) {
	query := `SELECT ` + listingColumns + `
		FROM listings WHERE platform = $1 AND source_url = $2`

	var l models.Listing
	err := s.pool.QueryRow(ctx, query, platform, url).Scan(
		&l.ID, &l.Platform, &l.SourceURL, &l.Title, &l.Price, &l.Area, &l.PricePerArea,
		&l.Location, &l.Region, &l.Category, &l.Description, &l.ImageURLs, &l.Phone,
		&l.FirstSeenAt, &l.LastScrapedAt, &l.LastChangedAt, &l.LastChangeKind,
		&l.Score, &l.Tier, &l.GoldFind, &l.Deleted, &l.CreatedAt, &l.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *PostgresStore) CreateListing(ctx context.Context, l *models.Listing) error {
	query := `
		INSERT INTO listings (` + listingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`

	_, err := s.pool.Exec(ctx, query,
		l.ID, l.Platform, l.SourceURL, l.Title, l.Price, l.Area, l.PricePerArea,
		l.Location, l.Region, l.Category, l.Description, l.ImageURLs, l.Phone,
		l.FirstSeenAt, l.LastScrapedAt, l.LastChangedAt, l.LastChangeKind,
		l.Score, l.Tier, l.GoldFind, l.Deleted, l.CreatedAt, l.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) UpdateListing(ctx context.Context, l *models.Listing) error {
	query := `
		UPDATE listings SET
			title = $3, price = $4, area = $5, price_per_area = $6,
			location = $7, description = $8, image_urls = $9,
			phone = COALESCE($10, phone),
			last_scraped_at = $11, last_changed_at = $12, last_change_kind = $13,
			score = $14, tier = $15, gold_find = $16, updated_at = $17
		WHERE platform = $1 AND source_url = $2`

	tag, err := s.pool.Exec(ctx, query,
		l.Platform, l.SourceURL,
		l.Title, l.Price, l.Area, l.PricePerArea,
		l.Location, l.Description, l.ImageURLs,
		l.Phone,
		l.LastScrapedAt, l.LastChangedAt, l.LastChangeKind,
		l.Score, l.Tier, l.GoldFind, l.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("listing %s not found", l.SourceURL)
	}
	return nil
}

func (s *PostgresStore) TouchListing(ctx context.Context, platform models.Platform, url string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE listings SET last_scraped_at = $3 WHERE platform = $1 AND source_url = $2`,
		platform, url, at)
	return err
}

// =============================================================================
// Geo-blocked side channel
// =============================================================================

func (s *PostgresStore) SaveGeoBlockedListing(ctx context.Context, b *models.GeoBlockedListing) error {
	query := `
		INSERT INTO geo_blocked_listings (
			id, platform, source_url, title, price, area, location,
			category, block_reason, postal_code, locality, blocked_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.pool.Exec(ctx, query,
		b.ID, b.Platform, b.SourceURL, b.Title, b.Price, b.Area, b.Location,
		b.Category, b.BlockReason, b.PostalCode, b.Locality, b.BlockedAt,
	)
	return err
}

// =============================================================================
// Price baselines
// =============================================================================

func (s *PostgresStore) GetPriceBaseline(ctx context.Context, region models.Region, category models.Category) (*models.PriceBaseline, error) {
	var b models.PriceBaseline
	err := s.pool.QueryRow(ctx,
		`SELECT region, category, median_per_m2, sample_count
		 FROM price_baselines WHERE region = $1 AND category = $2`,
		region, category,
	).Scan(&b.Region, &b.Category, &b.MedianPerM2, &b.SampleCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *PostgresStore) UpsertPriceBaseline(ctx context.Context, b *models.PriceBaseline) error {
	query := `
		INSERT INTO price_baselines (region, category, median_per_m2, sample_count, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (region, category) DO UPDATE SET
			median_per_m2 = EXCLUDED.median_per_m2,
			sample_count = EXCLUDED.sample_count,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query, b.Region, b.Category, b.MedianPerM2, b.SampleCount)
	return err
}

func (s *PostgresStore) ListPricePerArea(ctx context.Context, region models.Region, category models.Category) ([]float64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT price_per_area FROM listings
		 WHERE region = $1 AND category = $2
		   AND price_per_area IS NOT NULL AND NOT deleted`,
		region, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		samples = append(samples, v)
	}
	return samples, rows.Err()
}

// =============================================================================
// Photo queue (image archival worker)
// =============================================================================

// ListingPhoto is one queued gallery image.
type ListingPhoto struct {
	ID         int64
	ListingID  string
	URL        string
	S3Key      *string
	Status     string // pending, uploaded, failed
	Attempts   int
}

func (s *PostgresStore) EnqueueListingPhotos(ctx context.Context, listingID string, urls []string) error {
	for position, url := range urls {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO listing_photos (listing_id, url, position, status)
			 VALUES ($1, $2, $3, 'pending')
			 ON CONFLICT (listing_id, url) DO NOTHING`,
			listingID, url, position)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) GetPendingPhotos(ctx context.Context, limit int) ([]ListingPhoto, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, listing_id, url, s3_key, status, attempts
		 FROM listing_photos
		 WHERE status = 'pending' AND attempts < 3
		 ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var photos []ListingPhoto
	for rows.Next() {
		var p ListingPhoto
		if err := rows.Scan(&p.ID, &p.ListingID, &p.URL, &p.S3Key, &p.Status, &p.Attempts); err != nil {
			return nil, err
		}
		photos = append(photos, p)
	}
	return photos, rows.Err()
}

func (s *PostgresStore) MarkPhotoUploaded(ctx context.Context, id int64, s3Key string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE listing_photos SET status = 'uploaded', s3_key = $2 WHERE id = $1`,
		id, s3Key)
	return err
}

func (s *PostgresStore) MarkPhotoFailed(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE listing_photos SET attempts = attempts + 1,
			status = CASE WHEN attempts + 1 >= 3 THEN 'failed' ELSE 'pending' END
		 WHERE id = $1`, id)
	return err
}
