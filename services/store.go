package services

import (
	"context"
	"time"

	"immojagd/models"
)

// Store is the narrow persistence contract the pipeline consumes. The
// durable record store itself is an external collaborator; immojagd ships a
// Postgres implementation in storage, but nothing in the pipeline depends
// on it beyond this interface.
type Store interface {
	GetListingBySourceURL(ctx context.Context, platform models.Platform, url string) (*models.Listing, error)
	CreateListing(ctx context.Context, l *models.Listing) error
	UpdateListing(ctx context.Context, l *models.Listing) error
	// TouchListing bumps only the last-re-scraped timestamp.
	TouchListing(ctx context.Context, platform models.Platform, url string, at time.Time) error
	SaveGeoBlockedListing(ctx context.Context, b *models.GeoBlockedListing) error
}

// BaselineStore is the persistence surface for regional €/m² baselines.
type BaselineStore interface {
	GetPriceBaseline(ctx context.Context, region models.Region, category models.Category) (*models.PriceBaseline, error)
	UpsertPriceBaseline(ctx context.Context, b *models.PriceBaseline) error
	// ListPricePerArea returns the stored €/m² samples for one
	// (region, category) pair.
	ListPricePerArea(ctx context.Context, region models.Region, category models.Category) ([]float64, error)
}
