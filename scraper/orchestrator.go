package scraper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"immojagd/classify"
	"immojagd/config"
	"immojagd/geo"
	"immojagd/models"
	"immojagd/pagination"
	"immojagd/services"
	"immojagd/transport"
)

// ErrBusy is returned when a cycle fires while another one is fetching.
// Quick checks treat it as "skip entirely", never as "queue".
var ErrBusy = errors.New("a scrape cycle is already running")

// Events are the only outward channels of the pipeline. Nil callbacks are
// allowed and skipped.
type Events struct {
	OnListingFound func(*models.Listing, *services.ProcessResult)
	OnPhoneFound   func(url, phone string)
	OnLog          func(message string)
}

// RunOptions narrows one cycle. Zero values mean "everything".
type RunOptions struct {
	Platforms  []string
	Categories []string
	MaxPages   int
	Keyword    string
}

// OpsStore persists operational records: cycles and per-cycle log rows.
type OpsStore interface {
	CreateCycle(c *models.ScrapeCycle) (int64, error)
	UpdateCycle(c *models.ScrapeCycle) error
	NextCycleNumber() (int, error)
	Log(cycleID *int64, level models.LogLevel, message, platform string) error
}

type Orchestrator struct {
	cfg       *config.Config
	adapters  map[string]Adapter
	fetcher   *transport.Fetcher
	tracker   *pagination.Tracker
	listings  *services.ListingService
	baselines *services.BaselineService
	geoFilter *geo.Filter
	ops       OpsStore
	events    Events

	busy      atomic.Bool // at most one cycle fetches at a time
	running   atomic.Bool // cleared by Stop; polled between requests
	paused    atomic.Bool
	lastCycle atomic.Int64 // last completed cycle number, for status
}

func NewOrchestrator(
	cfg *config.Config,
	fetcher *transport.Fetcher,
	tracker *pagination.Tracker,
	listings *services.ListingService,
	baselines *services.BaselineService,
	geoFilter *geo.Filter,
	ops OpsStore,
	events Events,
) (*Orchestrator, error) {
	adapters := make(map[string]Adapter, len(cfg.Sites))
	for id, siteCfg := range cfg.Sites {
		adapter, err := NewAdapter(siteCfg)
		if err != nil {
			return nil, err
		}
		adapters[id] = adapter
	}

	return &Orchestrator{
		cfg:       cfg,
		adapters:  adapters,
		fetcher:   fetcher,
		tracker:   tracker,
		listings:  listings,
		baselines: baselines,
		geoFilter: geoFilter,
		ops:       ops,
		events:    events,
	}, nil
}

// ValidateOptions fails fast on unknown platform or category keys; an
// unknown key is a caller bug, not a mid-cycle condition.
func (o *Orchestrator) ValidateOptions(opts RunOptions) error {
	for _, platform := range opts.Platforms {
		if _, ok := o.adapters[platform]; !ok {
			return fmt.Errorf("unknown platform: %s", platform)
		}
	}
	for _, category := range opts.Categories {
		found := false
		for _, adapter := range o.adapters {
			if _, ok := adapter.Categories()[category]; ok {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("unknown category: %s", category)
		}
	}
	return nil
}

// RunCycle executes one quick-check or full-scrape pass. Platforms and
// categories run sequentially: session state is scoped to one adapter at a
// time and the volumes do not justify interleaving.
func (o *Orchestrator) RunCycle(ctx context.Context, kind models.CycleKind, opts RunOptions) error {
	if !o.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer o.busy.Store(false)

	if o.paused.Load() {
		log.Println("Scraper is paused, skipping cycle")
		return nil
	}
	if err := o.ValidateOptions(opts); err != nil {
		return err
	}

	o.running.Store(true)

	number, err := o.ops.NextCycleNumber()
	if err != nil {
		return fmt.Errorf("cycle number: %w", err)
	}

	cycle := &models.ScrapeCycle{
		Number:    number,
		Kind:      kind,
		StartedAt: time.Now(),
		Status:    models.CycleStatusRunning,
	}
	cycleID, err := o.ops.CreateCycle(cycle)
	if err != nil {
		return fmt.Errorf("create cycle: %w", err)
	}
	cycle.ID = cycleID

	stats := &services.ProcessStats{}
	o.log(cycle, models.LogLevelInfo, fmt.Sprintf("Cycle %d (%s) started", number, kind), "")

	defer func() {
		now := time.Now()
		cycle.FinishedAt = &now
		if cycle.Status == models.CycleStatusRunning {
			cycle.Status = models.CycleStatusCompleted
		}
		if err := o.ops.UpdateCycle(cycle); err != nil {
			log.Printf("Warning: failed to update cycle record: %v", err)
		}
		o.lastCycle.Store(int64(number))
		o.log(cycle, models.LogLevelInfo,
			fmt.Sprintf("Cycle %d done: %d seen, %d new, %d changed, %d geo-blocked, %d rejected, %d errors",
				number, stats.Seen, stats.New, stats.Changed, cycle.GeoBlocked, cycle.Rejected, cycle.ErrorsCount), "")
	}()

	for _, platformID := range o.platformOrder(opts) {
		if !o.running.Load() {
			break
		}
		if err := o.runPlatform(ctx, o.adapters[platformID], kind, cycle, opts, stats); err != nil {
			o.log(cycle, models.LogLevelError, fmt.Sprintf("platform failed: %v", err), platformID)
			cycle.ErrorsCount++
		}
	}

	cycle.ListingsSeen = stats.Seen
	cycle.ListingsNew = stats.New
	cycle.ListingsChanged = stats.Changed

	if kind == models.CycleFullScrape && o.running.Load() && o.baselines != nil {
		if err := o.baselines.Refresh(ctx); err != nil {
			o.log(cycle, models.LogLevelWarn, fmt.Sprintf("baseline refresh: %v", err), "")
		}
	}

	return nil
}

func (o *Orchestrator) platformOrder(opts RunOptions) []string {
	var ids []string
	if len(opts.Platforms) > 0 {
		ids = append(ids, opts.Platforms...)
	} else {
		for id := range o.adapters {
			ids = append(ids, id)
		}
	}
	rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	return ids
}

func (o *Orchestrator) runPlatform(ctx context.Context, adapter Adapter, kind models.CycleKind, cycle *models.ScrapeCycle, opts RunOptions, stats *services.ProcessStats) error {
	platform := string(adapter.Platform())

	// One session per adapter per cycle; the state value is threaded
	// through every fetch rather than hidden in the adapter.
	session := transport.NewSession(adapter.RootURL())

	var keys []string
	for key := range adapter.Categories() {
		if len(opts.Categories) > 0 && !contains(opts.Categories, key) {
			continue
		}
		keys = append(keys, key)
	}
	rand.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })

	for _, key := range keys {
		if !o.running.Load() {
			break
		}
		cat := adapter.Categories()[key]
		if err := o.runCategory(ctx, adapter, &session, kind, cycle, key, cat, opts, stats); err != nil {
			// One category's failure moves on to the next.
			o.log(cycle, models.LogLevelError, fmt.Sprintf("category %s: %v", key, err), platform)
			cycle.ErrorsCount++
		}
	}

	return nil
}

func (o *Orchestrator) runCategory(ctx context.Context, adapter Adapter, session *transport.SessionState, kind models.CycleKind, cycle *models.ScrapeCycle, key string, cat config.Category, opts RunOptions, stats *services.ProcessStats) error {
	platform := string(adapter.Platform())

	var walk *pagination.Walk
	maxPages := 1 // quick check inspects exactly page 1
	if kind == models.CycleFullScrape {
		var err error
		walk, err = o.tracker.Begin(platform, key)
		if err != nil {
			return err
		}
		maxPages = walk.MaxPages()
		o.log(cycle, models.LogLevelInfo,
			fmt.Sprintf("category %s: %s walk, up to %d pages", key, walk.State(), maxPages), platform)
	}
	if opts.MaxPages > 0 && opts.MaxPages < maxPages {
		maxPages = opts.MaxPages
	}

	caughtUp := false
	for page := 1; page <= maxPages && !caughtUp; page++ {
		if !o.running.Load() {
			break
		}

		pageURL := adapter.IndexPageURL(cat.URL, page)
		doc, err := o.fetcher.Fetch(ctx, pageURL, session)
		if err != nil {
			// Index pages are load-bearing: without one the rest of
			// the category order is unknowable, so abort the category.
			if fe, ok := transport.AsFetchError(err); ok && fe.Kind == transport.ErrRateLimited {
				o.log(cycle, models.LogLevelWarn, "rate limited, backing off 60s", platform)
				o.sleep(ctx, time.Minute)
			}
			return fmt.Errorf("index page %d: %w", page, err)
		}

		urls := adapter.ExtractListingURLs(doc)
		o.log(cycle, models.LogLevelInfo,
			fmt.Sprintf("category %s page %d: %d listings", key, page, len(urls)), platform)
		if len(urls) == 0 {
			break
		}

		if page == 1 && walk != nil {
			walk.ObserveFirst(adapter.ListingID(urls[0]))
		}

		for _, url := range urls {
			if !o.running.Load() {
				break
			}
			if walk != nil && walk.CaughtUp(adapter.ListingID(url)) {
				// Reached last cycle's newest item; position
				// re-confirmed, nothing newer remains.
				o.log(cycle, models.LogLevelInfo,
					fmt.Sprintf("category %s: caught up at page %d", key, page), platform)
				caughtUp = true
				break
			}
			o.processURL(ctx, adapter, session, cycle, url, cat, opts, stats)
		}
	}

	if walk != nil {
		if !caughtUp {
			walk.NoteCap()
		}
		if err := walk.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// processURL runs one detail document through extraction, classification,
// geo admission, change detection and scoring. Nothing in here is fatal to
// the category.
func (o *Orchestrator) processURL(ctx context.Context, adapter Adapter, session *transport.SessionState, cycle *models.ScrapeCycle, url string, cat config.Category, opts RunOptions, stats *services.ProcessStats) {
	platform := string(adapter.Platform())

	doc, err := o.fetcher.Fetch(ctx, url, session)
	if err != nil {
		// A single lost detail page is tolerable; skip it.
		o.log(cycle, models.LogLevelWarn, fmt.Sprintf("skip %s: %v", url, err), platform)
		cycle.ErrorsCount++
		if fe, ok := transport.AsFetchError(err); ok && fe.Kind == transport.ErrRateLimited {
			o.sleep(ctx, time.Minute)
		}
		return
	}

	cand, reason := adapter.ParseDetail(doc, url, cat)
	if cand == nil {
		o.log(cycle, models.LogLevelInfo, fmt.Sprintf("unparsed %s: %s", url, reason), platform)
		return
	}

	if opts.Keyword != "" && !candidateMatchesKeyword(cand, opts.Keyword) {
		return
	}

	verdict := classify.Run(adapter.ExtractSignals(doc))
	o.log(cycle, models.LogLevelInfo,
		fmt.Sprintf("classified %s: allowed=%t confidence=%s (%s)", url, verdict.Allowed, verdict.Confidence, verdict.Reason), platform)
	if !verdict.Allowed {
		cycle.Rejected++
		return
	}

	decision := o.geoFilter.Admit(cand.Location, cand.Region)
	if !decision.Allowed {
		cycle.GeoBlocked++
		o.listings.SaveGeoBlockedAsync(&models.GeoBlockedListing{
			ID:          uuid.New(),
			Platform:    cand.Platform,
			SourceURL:   cand.SourceURL,
			Title:       cand.Title,
			Price:       cand.Price,
			Area:        cand.Area,
			Location:    cand.Location,
			Category:    cand.Category,
			BlockReason: decision.Reason,
			PostalCode:  decision.PostalCode,
			Locality:    decision.Locality,
			BlockedAt:   time.Now(),
		})
		return
	}

	result, err := o.listings.ProcessCandidate(ctx, cand)
	if err != nil {
		o.log(cycle, models.LogLevelError, fmt.Sprintf("persist %s: %v", url, err), platform)
		cycle.ErrorsCount++
		stats.Errors++
		return
	}
	stats.Aggregate(result)

	if result.IsNew || result.ChangeKind != models.ChangeNone {
		o.emitListing(result)
	}
	if cand.Phone != nil && o.events.OnPhoneFound != nil {
		o.events.OnPhoneFound(cand.SourceURL, *cand.Phone)
	}
}

func (o *Orchestrator) emitListing(result *services.ProcessResult) {
	if o.events.OnListingFound == nil {
		return
	}
	o.events.OnListingFound(result.Listing, result)
}

func candidateMatchesKeyword(cand *models.ListingCandidate, keyword string) bool {
	kw := strings.ToLower(keyword)
	if strings.Contains(strings.ToLower(cand.Title), kw) {
		return true
	}
	return cand.Description != nil && strings.Contains(strings.ToLower(*cand.Description), kw)
}

// Stop flips the running flag; loops observe it between requests, so
// in-flight fetches complete but no new ones start.
func (o *Orchestrator) Stop() {
	o.running.Store(false)
}

func (o *Orchestrator) Pause()  { o.paused.Store(true) }
func (o *Orchestrator) Resume() { o.paused.Store(false) }

func (o *Orchestrator) IsBusy() bool   { return o.busy.Load() }
func (o *Orchestrator) IsPaused() bool { return o.paused.Load() }

// LastCycleNumber returns the number of the most recently finished cycle.
func (o *Orchestrator) LastCycleNumber() int { return int(o.lastCycle.Load()) }

// Cursors returns the stored pagination cursor per (platform, category),
// for status reporting.
func (o *Orchestrator) Cursors() map[string]string {
	out := make(map[string]string)
	for id, adapter := range o.adapters {
		for key := range adapter.Categories() {
			if cursor := o.tracker.Cursor(id, key); cursor != "" {
				out[id+":"+key] = cursor
			}
		}
	}
	return out
}

func (o *Orchestrator) PlatformIDs() []string {
	var ids []string
	for id := range o.adapters {
		ids = append(ids, id)
	}
	return ids
}

func (o *Orchestrator) log(cycle *models.ScrapeCycle, level models.LogLevel, message, platform string) {
	log.Printf("[%s] %s %s", level, platform, message)
	if o.ops != nil {
		o.ops.Log(&cycle.ID, level, message, platform)
	}
	if o.events.OnLog != nil {
		o.events.OnLog(message)
	}
}

func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
