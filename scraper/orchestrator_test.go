package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"immojagd/config"
	"immojagd/geo"
	"immojagd/models"
	"immojagd/pagination"
	"immojagd/services"
	"immojagd/transport"
)

// memStore implements services.Store; the async geo side-channel writes from
// its own goroutine, hence the mutex.
type memStore struct {
	mu         sync.Mutex
	listings   map[string]*models.Listing
	geoBlocked []*models.GeoBlockedListing
}

func newMemStore() *memStore {
	return &memStore{listings: map[string]*models.Listing{}}
}

func (s *memStore) GetListingBySourceURL(_ context.Context, platform models.Platform, url string) (*models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[string(platform)+"|"+url]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (s *memStore) CreateListing(_ context.Context, l *models.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *l
	s.listings[string(l.Platform)+"|"+l.SourceURL] = &cp
	return nil
}

func (s *memStore) UpdateListing(_ context.Context, l *models.Listing) error {
	return s.CreateListing(context.Background(), l)
}

func (s *memStore) TouchListing(_ context.Context, platform models.Platform, url string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.listings[string(platform)+"|"+url]; ok {
		l.LastScrapedAt = at
	}
	return nil
}

func (s *memStore) SaveGeoBlockedListing(_ context.Context, b *models.GeoBlockedListing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.geoBlocked = append(s.geoBlocked, b)
	return nil
}

func (s *memStore) listingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listings)
}

func (s *memStore) geoBlockedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.geoBlocked)
}

type memOpsStore struct {
	cursors map[string]string
	cycles  []*models.ScrapeCycle
	number  int
}

func newMemOpsStore() *memOpsStore {
	return &memOpsStore{cursors: map[string]string{}}
}

func (s *memOpsStore) GetCursor(name, defaultVal string) (string, error) {
	if v, ok := s.cursors[name]; ok {
		return v, nil
	}
	return defaultVal, nil
}

func (s *memOpsStore) SetCursor(name, value string) error {
	s.cursors[name] = value
	return nil
}

func (s *memOpsStore) CreateCycle(c *models.ScrapeCycle) (int64, error) {
	cp := *c
	s.cycles = append(s.cycles, &cp)
	return int64(len(s.cycles)), nil
}

func (s *memOpsStore) UpdateCycle(c *models.ScrapeCycle) error {
	cp := *c
	s.cycles[c.ID-1] = &cp
	return nil
}

func (s *memOpsStore) NextCycleNumber() (int, error) {
	s.number++
	return s.number, nil
}

func (s *memOpsStore) Log(*int64, models.LogLevel, string, string) error { return nil }

func detailPage(title, price, location, sellerType, organisation string) string {
	org := ""
	if organisation != "" {
		org = fmt.Sprintf(`<div data-testid="top-contact-box-organisation-name">%s</div>`, organisation)
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html><body>
<div data-testid="ad-detail-ad-title"><h1>%s</h1></div>
<div data-testid="ad-detail-ad-price"><span>%s</span></div>
<div data-testid="ad-detail-ad-location">%s</div>
<div data-testid="ad-detail-ad-properties">Wohnfläche: 80 m²</div>
<div data-testid="ad-detail-ad-description">Gepflegte Wohnung, sofort beziehbar, hell und ruhig gelegen.</div>
<aside>
<div data-testid="top-contact-box-seller-type">%s</div>
%s
</aside>
</body></html>`, title, price, location, sellerType, org)
}

// testServer serves one index page with three ads: a private one in Wien, a
// brokered one, and a private one outside the target regions.
func testServer(t *testing.T, detailHits map[string]int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>willkommen</body></html>"))
	})
	mux.HandleFunc("/suche", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") != "1" {
			w.Write([]byte("<html><body>Keine weiteren Anzeigen</body></html>"))
			return
		}
		w.Write([]byte(`<html><body>
<a href="/iad/immobilien/d/wohnung-privat-111111/">Privatwohnung Wien</a>
<a href="/iad/immobilien/d/wohnung-makler-222222/">Maklerwohnung</a>
<a href="/iad/immobilien/d/wohnung-graz-333333/">Wohnung Graz</a>
</body></html>`))
	})
	mux.HandleFunc("/iad/immobilien/d/wohnung-privat-111111/", func(w http.ResponseWriter, r *http.Request) {
		detailHits["111111"]++
		w.Write([]byte(detailPage("Privatwohnung Wien", "€ 300.000", "1160 Wien", "Privatperson", "")))
	})
	mux.HandleFunc("/iad/immobilien/d/wohnung-makler-222222/", func(w http.ResponseWriter, r *http.Request) {
		detailHits["222222"]++
		w.Write([]byte(detailPage("Maklerwohnung", "€ 250.000", "1100 Wien", "Gewerblicher Anbieter", "Musterimmo GmbH")))
	})
	mux.HandleFunc("/iad/immobilien/d/wohnung-graz-333333/", func(w http.ResponseWriter, r *http.Request) {
		detailHits["333333"]++
		w.Write([]byte(detailPage("Wohnung Graz", "€ 200.000", "8010 Graz", "Privatperson", "")))
	})
	return httptest.NewServer(mux)
}

func testOrchestrator(t *testing.T, srv *httptest.Server, store *memStore, ops *memOpsStore, events Events) *Orchestrator {
	t.Helper()
	cfg := &config.Config{
		Scraper: config.ScraperConfig{BaselinePages: 5, MaxPages: 20},
		Sites: map[string]*config.SiteConfig{
			"willhaben": {
				ID:      "willhaben",
				RootURL: srv.URL,
				Categories: map[string]config.Category{
					"wohnung-kauf-wien": {URL: srv.URL + "/suche", Region: "wien", Kind: "apartment"},
				},
			},
		},
	}

	fetcher := transport.NewFetcher(srv.Client(), 0, 0)
	tracker := pagination.NewTracker(ops, cfg.Scraper.BaselinePages, cfg.Scraper.MaxPages)
	listings := services.NewListingService(store, services.NewScorer(nil, nil))

	o, err := NewOrchestrator(cfg, fetcher, tracker, listings, nil, geo.NewFilter(nil), ops, events)
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}
	return o
}

func waitForGeoBlocked(t *testing.T, store *memStore, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for store.geoBlockedCount() < want {
		if time.Now().After(deadline) {
			t.Fatalf("geo-blocked count = %d, want %d", store.geoBlockedCount(), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestQuickCheckCycle(t *testing.T) {
	detailHits := map[string]int{}
	srv := testServer(t, detailHits)
	defer srv.Close()

	store := newMemStore()
	ops := newMemOpsStore()

	var found []*models.Listing
	o := testOrchestrator(t, srv, store, ops, Events{
		OnListingFound: func(l *models.Listing, _ *services.ProcessResult) {
			found = append(found, l)
		},
	})

	if err := o.RunCycle(context.Background(), models.CycleQuickCheck, RunOptions{}); err != nil {
		t.Fatalf("run: %v", err)
	}

	if store.listingCount() != 1 {
		t.Fatalf("expected 1 stored listing, got %d", store.listingCount())
	}
	if len(found) != 1 || found[0].Title != "Privatwohnung Wien" {
		t.Fatalf("found = %v", found)
	}
	waitForGeoBlocked(t, store, 1)

	cycle := ops.cycles[0]
	if cycle.Status != models.CycleStatusCompleted {
		t.Fatalf("cycle status = %s", cycle.Status)
	}
	if cycle.ListingsNew != 1 || cycle.Rejected != 1 || cycle.GeoBlocked != 1 {
		t.Fatalf("cycle counters: %+v", cycle)
	}

	// Quick checks never touch pagination cursors.
	if len(ops.cursors) != 0 {
		t.Fatalf("quick check wrote cursors: %v", ops.cursors)
	}
}

func TestFullScrapeSeedsCursorThenCatchesUp(t *testing.T) {
	detailHits := map[string]int{}
	srv := testServer(t, detailHits)
	defer srv.Close()

	store := newMemStore()
	ops := newMemOpsStore()
	o := testOrchestrator(t, srv, store, ops, Events{})

	if err := o.RunCycle(context.Background(), models.CycleFullScrape, RunOptions{}); err != nil {
		t.Fatalf("baseline run: %v", err)
	}
	if got := ops.cursors["cursor:willhaben:wohnung-kauf-wien"]; got != "111111" {
		t.Fatalf("cursor = %q, want 111111", got)
	}
	if detailHits["111111"] != 1 {
		t.Fatalf("baseline run fetched the first ad %d times", detailHits["111111"])
	}

	// Nothing changed upstream: the next walk stops at the cursor before
	// fetching a single detail page.
	if err := o.RunCycle(context.Background(), models.CycleFullScrape, RunOptions{}); err != nil {
		t.Fatalf("tracking run: %v", err)
	}
	if detailHits["111111"] != 1 || detailHits["222222"] != 1 || detailHits["333333"] != 1 {
		t.Fatalf("tracking run re-fetched details: %v", detailHits)
	}
	if got := ops.cursors["cursor:willhaben:wohnung-kauf-wien"]; got != "111111" {
		t.Fatalf("cursor moved to %q", got)
	}
}

func TestRunCycleBusy(t *testing.T) {
	detailHits := map[string]int{}
	srv := testServer(t, detailHits)
	defer srv.Close()

	o := testOrchestrator(t, srv, newMemStore(), newMemOpsStore(), Events{})
	o.busy.Store(true)
	if err := o.RunCycle(context.Background(), models.CycleQuickCheck, RunOptions{}); err != ErrBusy {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
}

func TestRunCycleUnknownPlatform(t *testing.T) {
	detailHits := map[string]int{}
	srv := testServer(t, detailHits)
	defer srv.Close()

	o := testOrchestrator(t, srv, newMemStore(), newMemOpsStore(), Events{})
	err := o.RunCycle(context.Background(), models.CycleQuickCheck, RunOptions{Platforms: []string{"kleinanzeigen"}})
	if err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestPausedCycleIsNoOp(t *testing.T) {
	detailHits := map[string]int{}
	srv := testServer(t, detailHits)
	defer srv.Close()

	store := newMemStore()
	o := testOrchestrator(t, srv, store, newMemOpsStore(), Events{})
	o.Pause()
	if err := o.RunCycle(context.Background(), models.CycleQuickCheck, RunOptions{}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if store.listingCount() != 0 {
		t.Fatalf("paused cycle scraped %d listings", store.listingCount())
	}
}
