package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"immojagd/models"
)

// fakeStore is an in-memory Store keyed by (platform, source URL).
type fakeStore struct {
	listings   map[string]*models.Listing
	geoBlocked []*models.GeoBlockedListing
	creates    int
	updates    int
	touches    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{listings: map[string]*models.Listing{}}
}

func storeKey(platform models.Platform, url string) string {
	return string(platform) + "|" + url
}

func (s *fakeStore) GetListingBySourceURL(_ context.Context, platform models.Platform, url string) (*models.Listing, error) {
	l, ok := s.listings[storeKey(platform, url)]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (s *fakeStore) CreateListing(_ context.Context, l *models.Listing) error {
	cp := *l
	s.listings[storeKey(l.Platform, l.SourceURL)] = &cp
	s.creates++
	return nil
}

func (s *fakeStore) UpdateListing(_ context.Context, l *models.Listing) error {
	cp := *l
	s.listings[storeKey(l.Platform, l.SourceURL)] = &cp
	s.updates++
	return nil
}

func (s *fakeStore) TouchListing(_ context.Context, platform models.Platform, url string, at time.Time) error {
	if l, ok := s.listings[storeKey(platform, url)]; ok {
		l.LastScrapedAt = at
	}
	s.touches++
	return nil
}

func (s *fakeStore) SaveGeoBlockedListing(_ context.Context, b *models.GeoBlockedListing) error {
	s.geoBlocked = append(s.geoBlocked, b)
	return nil
}

func testScorer() *Scorer {
	return NewScorer(nil, nil)
}

func floatPtr(v float64) *float64 { return &v }
func strPtr(v string) *string     { return &v }

func candidate(url string) *models.ListingCandidate {
	return &models.ListingCandidate{
		Platform:  models.PlatformWillhaben,
		SourceURL: url,
		ListingID: "100001",
		Title:     "Helle 3-Zimmer-Wohnung, Privatverkauf",
		Price:     300000,
		Area:      floatPtr(85),
		Location:  "1160 Wien, Ottakring",
		Region:    models.RegionWien,
		Category:  models.CategoryApartment,
		ScrapedAt: time.Now(),
	}
}

func TestProcessCandidateCreatesNew(t *testing.T) {
	store := newFakeStore()
	svc := NewListingService(store, testScorer())

	result, err := svc.ProcessCandidate(context.Background(), candidate("https://example.com/ad/100001"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !result.IsNew {
		t.Fatalf("expected new listing")
	}
	if store.creates != 1 {
		t.Fatalf("expected 1 create, got %d", store.creates)
	}
	l := result.Listing
	if l.ID == uuid.Nil {
		t.Fatalf("listing ID not assigned")
	}
	if l.PricePerArea == nil {
		t.Fatalf("price per area not derived")
	}
	if got := *l.PricePerArea; got < 3529 || got > 3530 {
		t.Fatalf("price per area = %f, want ~3529.4", got)
	}
	if l.FirstSeenAt.IsZero() || l.LastScrapedAt.IsZero() {
		t.Fatalf("timestamps not set")
	}
	if l.LastChangedAt != nil {
		t.Fatalf("a new listing has no change yet")
	}
}

// An identical re-scrape only bumps the re-scrape timestamp. Running it
// twice more must stay side-effect free.
func TestProcessCandidateUnchangedTouchesOnly(t *testing.T) {
	store := newFakeStore()
	svc := NewListingService(store, testScorer())
	ctx := context.Background()

	cand := candidate("https://example.com/ad/100001")
	if _, err := svc.ProcessCandidate(ctx, cand); err != nil {
		t.Fatalf("seed: %v", err)
	}

	for i := 0; i < 2; i++ {
		again := candidate("https://example.com/ad/100001")
		again.ScrapedAt = time.Now().Add(time.Duration(i+1) * time.Hour)
		result, err := svc.ProcessCandidate(ctx, again)
		if err != nil {
			t.Fatalf("rescrape %d: %v", i, err)
		}
		if result.IsNew || result.ChangeKind != models.ChangeNone {
			t.Fatalf("rescrape %d: expected no change, got new=%v kind=%s", i, result.IsNew, result.ChangeKind)
		}
		if !result.Listing.LastScrapedAt.Equal(again.ScrapedAt) {
			t.Fatalf("rescrape %d: LastScrapedAt not bumped", i)
		}
		if result.Listing.LastChangedAt != nil {
			t.Fatalf("rescrape %d: LastChangedAt moved on an unchanged listing", i)
		}
	}
	if store.updates != 0 {
		t.Fatalf("unchanged rescrapes must not update, got %d updates", store.updates)
	}
	if store.touches != 2 {
		t.Fatalf("expected 2 touches, got %d", store.touches)
	}
}

func TestProcessCandidatePriceDrop(t *testing.T) {
	store := newFakeStore()
	svc := NewListingService(store, testScorer())
	ctx := context.Background()

	if _, err := svc.ProcessCandidate(ctx, candidate("https://example.com/ad/100001")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	dropped := candidate("https://example.com/ad/100001")
	dropped.Price = 270000
	result, err := svc.ProcessCandidate(ctx, dropped)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.ChangeKind != models.ChangePrice {
		t.Fatalf("expected price change, got %s", result.ChangeKind)
	}
	if result.PriceDropPercent != 10.0 {
		t.Fatalf("300000 -> 270000 must be exactly 10.0%%, got %f", result.PriceDropPercent)
	}
	if result.Listing.LastChangedAt == nil {
		t.Fatalf("LastChangedAt not set on change")
	}
	if result.Listing.PricePerArea == nil || *result.Listing.PricePerArea > 3180 {
		t.Fatalf("price per area not recomputed: %v", result.Listing.PricePerArea)
	}
}

func TestPriceIncreaseHasNoDropPercent(t *testing.T) {
	store := newFakeStore()
	svc := NewListingService(store, testScorer())
	ctx := context.Background()

	if _, err := svc.ProcessCandidate(ctx, candidate("https://example.com/ad/100001")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	raised := candidate("https://example.com/ad/100001")
	raised.Price = 330000
	result, err := svc.ProcessCandidate(ctx, raised)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.ChangeKind != models.ChangePrice || result.PriceDropPercent != 0 {
		t.Fatalf("got kind=%s drop=%f", result.ChangeKind, result.PriceDropPercent)
	}
}

// When several fields moved at once, the reported kind follows the fixed
// precedence: price first, then title, description, area, images.
func TestDetectChangePrecedence(t *testing.T) {
	stored := &models.Listing{
		Title:       "Alt",
		Price:       300000,
		Area:        floatPtr(85),
		Description: strPtr("alte Beschreibung"),
		ImageURLs:   []string{"a.jpg"},
	}

	cand := &models.ListingCandidate{
		Title:       "Neu",
		Price:       280000,
		Area:        floatPtr(90),
		Description: strPtr("neue Beschreibung"),
		ImageURLs:   []string{"b.jpg"},
	}
	if kind, _ := DetectChange(stored, cand); kind != models.ChangePrice {
		t.Fatalf("expected price to win, got %s", kind)
	}

	cand.Price = stored.Price
	if kind, _ := DetectChange(stored, cand); kind != models.ChangeTitle {
		t.Fatalf("expected title next, got %s", kind)
	}

	cand.Title = stored.Title
	if kind, _ := DetectChange(stored, cand); kind != models.ChangeDescription {
		t.Fatalf("expected description next, got %s", kind)
	}

	cand.Description = strPtr(*stored.Description)
	if kind, _ := DetectChange(stored, cand); kind != models.ChangeArea {
		t.Fatalf("expected area next, got %s", kind)
	}

	cand.Area = floatPtr(*stored.Area)
	if kind, _ := DetectChange(stored, cand); kind != models.ChangeImages {
		t.Fatalf("expected images last, got %s", kind)
	}

	cand.ImageURLs = []string{"a.jpg"}
	if kind, _ := DetectChange(stored, cand); kind != models.ChangeNone {
		t.Fatalf("expected no change, got %s", kind)
	}
}

// Gallery order shuffles between renders and is not a material change.
func TestImageOrderIsNotAChange(t *testing.T) {
	stored := &models.Listing{
		Title:     "Wohnung",
		Price:     300000,
		ImageURLs: []string{"a.jpg", "b.jpg", "c.jpg"},
	}
	cand := &models.ListingCandidate{
		Title:     "Wohnung",
		Price:     300000,
		ImageURLs: []string{"c.jpg", "a.jpg", "b.jpg"},
	}
	if kind, _ := DetectChange(stored, cand); kind != models.ChangeNone {
		t.Fatalf("reordered gallery reported as %s", kind)
	}
}

// A candidate without a phone must not erase a phone captured earlier.
func TestMissingPhoneDoesNotEraseStored(t *testing.T) {
	store := newFakeStore()
	svc := NewListingService(store, testScorer())
	ctx := context.Background()

	seed := candidate("https://example.com/ad/100001")
	seed.Phone = strPtr("+436601234567")
	if _, err := svc.ProcessCandidate(ctx, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	changed := candidate("https://example.com/ad/100001")
	changed.Price = 290000
	changed.Phone = nil
	result, err := svc.ProcessCandidate(ctx, changed)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Listing.Phone == nil || *result.Listing.Phone != "+436601234567" {
		t.Fatalf("stored phone lost: %v", result.Listing.Phone)
	}
}

func TestProcessStatsAggregate(t *testing.T) {
	var stats ProcessStats
	stats.Aggregate(&ProcessResult{IsNew: true})
	stats.Aggregate(&ProcessResult{ChangeKind: models.ChangePrice})
	stats.Aggregate(&ProcessResult{ChangeKind: models.ChangeNone})
	if stats.Seen != 3 || stats.New != 1 || stats.Changed != 1 || stats.Untouched != 1 {
		t.Fatalf("got %+v", stats)
	}
}
