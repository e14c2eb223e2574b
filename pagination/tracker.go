// Package pagination implements the incremental ("smart") crawl cursor:
// walk a category's index pages from page 1 until the previous cycle's
// newest listing is reached, then remember the new front of the feed.
package pagination

import (
	"fmt"
	"log"
)

// CursorStore is the minimal persistence surface the tracker needs: one
// string value per cursor name, durable across restarts.
type CursorStore interface {
	GetCursor(name, defaultVal string) (string, error)
	SetCursor(name, value string) error
}

// State of one (platform, category) pair. The first-run branch is modeled
// explicitly instead of being inferred from cursor presence at call sites.
type State int

const (
	// Uninitialized: no cursor stored yet; next walk is a Baseline walk.
	Uninitialized State = iota
	// Baseline: walking a fixed number of pages to seed the cursor.
	Baseline
	// Tracking: walking until the stored cursor is re-encountered.
	Tracking
)

func (s State) String() string {
	switch s {
	case Baseline:
		return "baseline"
	case Tracking:
		return "tracking"
	default:
		return "uninitialized"
	}
}

// Tracker hands out category walks backed by the cursor store.
type Tracker struct {
	store         CursorStore
	baselinePages int
	maxPages      int
}

func NewTracker(store CursorStore, baselinePages, maxPages int) *Tracker {
	return &Tracker{store: store, baselinePages: baselinePages, maxPages: maxPages}
}

func cursorName(platform, category string) string {
	return fmt.Sprintf("cursor:%s:%s", platform, category)
}

// Begin loads the stored cursor for (platform, category) and returns the
// walk for this cycle.
func (t *Tracker) Begin(platform, category string) (*Walk, error) {
	name := cursorName(platform, category)
	stored, err := t.store.GetCursor(name, "")
	if err != nil {
		return nil, fmt.Errorf("load cursor %s: %w", name, err)
	}

	state := Uninitialized
	if stored != "" {
		state = Tracking
	}

	return &Walk{
		tracker:      t,
		name:         name,
		state:        state,
		storedCursor: stored,
	}, nil
}

// Cursor returns the stored cursor value without starting a walk (status
// reporting).
func (t *Tracker) Cursor(platform, category string) string {
	v, err := t.store.GetCursor(cursorName(platform, category), "")
	if err != nil {
		return ""
	}
	return v
}

// Walk is the per-cycle scratch state for one category. It is discarded at
// the end of the cycle; only Commit writes anything durable.
type Walk struct {
	tracker      *Tracker
	name         string
	state        State
	storedCursor string
	firstID      string
	caughtUp     bool
	cappedOut    bool
}

func (w *Walk) State() State {
	if w.state == Uninitialized {
		return Baseline
	}
	return w.state
}

// MaxPages is this walk's page budget: the fixed baseline depth on a first
// run, otherwise the hard safety cap against unstable result ordering.
func (w *Walk) MaxPages() int {
	if w.State() == Baseline {
		return w.tracker.baselinePages
	}
	return w.tracker.maxPages
}

// ObserveFirst records the first listing identifier seen on page 1; that
// identifier becomes the cursor once the walk commits.
func (w *Walk) ObserveFirst(listingID string) {
	if w.firstID == "" {
		w.firstID = listingID
	}
}

// CaughtUp reports whether listingID equals the stored cursor, meaning the
// walk has reached last cycle's newest item. Always false on a baseline
// walk. The matching listing itself is still re-confirmed by the caller.
func (w *Walk) CaughtUp(listingID string) bool {
	if w.State() != Tracking || w.storedCursor == "" {
		return false
	}
	if listingID == w.storedCursor {
		w.caughtUp = true
	}
	return w.caughtUp
}

// NoteCap marks that the walk ran into the page cap without finding the
// cursor. A warning, not an error: platforms reorder results.
func (w *Walk) NoteCap() {
	if w.State() == Tracking && !w.caughtUp {
		w.cappedOut = true
		log.Printf("WARN pagination %s: hit page cap %d without finding cursor %s",
			w.name, w.tracker.maxPages, w.storedCursor)
	}
}

// Commit stores the new page-1 first identifier and moves the category into
// (or keeps it in) Tracking. Called after the category finished processing;
// a walk that saw nothing keeps the previous cursor.
func (w *Walk) Commit() error {
	if w.firstID == "" {
		return nil
	}
	if err := w.tracker.store.SetCursor(w.name, w.firstID); err != nil {
		return fmt.Errorf("store cursor %s: %w", w.name, err)
	}
	w.storedCursor = w.firstID
	w.state = Tracking
	return nil
}
