package models

import "time"

type CycleKind string

const (
	CycleQuickCheck CycleKind = "quick_check"
	CycleFullScrape CycleKind = "full_scrape"
)

type CycleStatus string

const (
	CycleStatusRunning   CycleStatus = "running"
	CycleStatusCompleted CycleStatus = "completed"
	CycleStatusFailed    CycleStatus = "failed"
)

// ScrapeCycle is the operational record of one scheduler-driven pass.
// Numbers are monotonic across restarts (seeded from the cycle cursor).
type ScrapeCycle struct {
	ID              int64       `json:"id" db:"id"`
	Number          int         `json:"number" db:"number"`
	Kind            CycleKind   `json:"kind" db:"kind"`
	StartedAt       time.Time   `json:"started_at" db:"started_at"`
	FinishedAt      *time.Time  `json:"finished_at" db:"finished_at"`
	Status          CycleStatus `json:"status" db:"status"`
	ListingsSeen    int         `json:"listings_seen" db:"listings_seen"`
	ListingsNew     int         `json:"listings_new" db:"listings_new"`
	ListingsChanged int         `json:"listings_changed" db:"listings_changed"`
	GeoBlocked      int         `json:"geo_blocked" db:"geo_blocked"`
	Rejected        int         `json:"rejected" db:"rejected"`
	ErrorsCount     int         `json:"errors_count" db:"errors_count"`
}
