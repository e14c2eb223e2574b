package services

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"immojagd/models"
)

// ListingService is the change detector / upsert coordinator: it decides
// whether a freshly extracted candidate is new, unchanged, or materially
// changed, and keeps the stored record and its quality score in step.
type ListingService struct {
	store  Store
	scorer *Scorer
}

func NewListingService(store Store, scorer *Scorer) *ListingService {
	return &ListingService{store: store, scorer: scorer}
}

// ProcessResult is the outcome of processing one candidate.
type ProcessResult struct {
	Listing          *models.Listing
	IsNew            bool
	ChangeKind       models.ChangeKind
	PriceDropPercent float64 // > 0 when the price decreased
	Score            models.QualityScore
}

// ProcessStats accumulates per-cycle counters.
type ProcessStats struct {
	Seen      int
	New       int
	Changed   int
	Untouched int
	Errors    int
}

func (s *ProcessStats) Aggregate(r *ProcessResult) {
	s.Seen++
	switch {
	case r.IsNew:
		s.New++
	case r.ChangeKind != models.ChangeNone:
		s.Changed++
	default:
		s.Untouched++
	}
}

// ProcessCandidate upserts one candidate. Persistence errors propagate to
// the caller; one bad record never aborts a category.
func (s *ListingService) ProcessCandidate(ctx context.Context, cand *models.ListingCandidate) (*ProcessResult, error) {
	now := cand.ScrapedAt
	if now.IsZero() {
		now = time.Now()
	}

	existing, err := s.store.GetListingBySourceURL(ctx, cand.Platform, cand.SourceURL)
	if err != nil {
		return nil, fmt.Errorf("get listing: %w", err)
	}

	if existing == nil {
		return s.createNew(ctx, cand, now)
	}

	kind, dropPct := DetectChange(existing, cand)
	if kind == models.ChangeNone {
		// Touch only the re-scrape timestamp; no side effects, no
		// score drift beyond freshness decay on the next read.
		if err := s.store.TouchListing(ctx, cand.Platform, cand.SourceURL, now); err != nil {
			return nil, fmt.Errorf("touch listing: %w", err)
		}
		existing.LastScrapedAt = now
		return &ProcessResult{
			Listing:    existing,
			ChangeKind: models.ChangeNone,
			Score:      s.scorer.Score(existing),
		}, nil
	}

	applyCandidate(existing, cand)
	existing.LastScrapedAt = now
	existing.LastChangedAt = &now
	existing.LastChangeKind = kind
	existing.UpdatedAt = now

	score := s.scorer.Score(existing)
	existing.Score = score.Total
	existing.Tier = score.Tier
	existing.GoldFind = score.GoldFind

	if err := s.store.UpdateListing(ctx, existing); err != nil {
		return nil, fmt.Errorf("update listing: %w", err)
	}

	return &ProcessResult{
		Listing:          existing,
		ChangeKind:       kind,
		PriceDropPercent: dropPct,
		Score:            score,
	}, nil
}

func (s *ListingService) createNew(ctx context.Context, cand *models.ListingCandidate, now time.Time) (*ProcessResult, error) {
	listing := &models.Listing{
		ID:             uuid.New(),
		Platform:       cand.Platform,
		SourceURL:      cand.SourceURL,
		Title:          cand.Title,
		Price:          cand.Price,
		Area:           cand.Area,
		Location:       cand.Location,
		Region:         cand.Region,
		Category:       cand.Category,
		Description:    cand.Description,
		ImageURLs:      cand.ImageURLs,
		Phone:          cand.Phone,
		FirstSeenAt:    now,
		LastScrapedAt:  now,
		LastChangeKind: models.ChangeNone,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	listing.RecomputePricePerArea()

	score := s.scorer.Score(listing)
	listing.Score = score.Total
	listing.Tier = score.Tier
	listing.GoldFind = score.GoldFind

	if err := s.store.CreateListing(ctx, listing); err != nil {
		return nil, fmt.Errorf("create listing: %w", err)
	}

	return &ProcessResult{Listing: listing, IsNew: true, Score: score}, nil
}

// DetectChange compares the stored listing against the rescraped candidate
// and returns the single most significant change kind; price beats every
// textual or image change when several fields moved at once. The second
// return is the percentage drop for price decreases, 0 otherwise.
func DetectChange(stored *models.Listing, cand *models.ListingCandidate) (models.ChangeKind, float64) {
	var dropPct float64
	if cand.Price != stored.Price {
		if cand.Price < stored.Price && stored.Price > 0 {
			dropPct = float64(stored.Price-cand.Price) / float64(stored.Price) * 100
		}
		return models.ChangePrice, dropPct
	}
	if cand.Title != stored.Title {
		return models.ChangeTitle, 0
	}
	if !equalText(stored.Description, cand.Description) {
		return models.ChangeDescription, 0
	}
	if !equalArea(stored.Area, cand.Area) {
		return models.ChangeArea, 0
	}
	if !equalImageSet(stored.ImageURLs, cand.ImageURLs) {
		return models.ChangeImages, 0
	}
	return models.ChangeNone, 0
}

// applyCandidate copies the rescraped fields onto the stored record. The
// derived €/m² is recomputed in the same step, never written on its own.
func applyCandidate(l *models.Listing, cand *models.ListingCandidate) {
	l.Title = cand.Title
	l.Price = cand.Price
	l.Area = cand.Area
	l.Location = cand.Location
	l.Description = cand.Description
	l.ImageURLs = cand.ImageURLs
	if cand.Phone != nil {
		l.Phone = cand.Phone
	}
	l.RecomputePricePerArea()
}

func equalText(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalArea(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return math.Abs(*a-*b) < 0.01
}

// equalImageSet compares image URL sets; platforms shuffle gallery order
// between renders, so order is not a material difference.
func equalImageSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, url := range a {
		set[url] = true
	}
	for _, url := range b {
		if !set[url] {
			return false
		}
	}
	return true
}

// geoBlockTimeout bounds the fire-and-forget side-channel write.
const geoBlockTimeout = 10 * time.Second

// SaveGeoBlockedAsync routes a geo-rejected candidate to the blocked
// side-channel without blocking the pipeline; failures are logged and
// swallowed.
func (s *ListingService) SaveGeoBlockedAsync(b *models.GeoBlockedListing) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), geoBlockTimeout)
		defer cancel()
		if err := s.store.SaveGeoBlockedListing(ctx, b); err != nil {
			log.Printf("geo-blocked side-channel write failed for %s: %v", b.SourceURL, err)
		}
	}()
}
