package models

import (
	"time"

	"github.com/google/uuid"
)

// Platform identifies one integrated source site.
type Platform string

const (
	PlatformWillhaben  Platform = "willhaben"
	PlatformBazar      Platform = "bazar"
	PlatformImmodirekt Platform = "immodirekt"
)

// Region is the normalized target region of a listing.
type Region string

const (
	RegionWien             Region = "wien"
	RegionNiederoesterreich Region = "niederoesterreich"
	RegionOther            Region = "other"
)

// Category is the property category of a listing.
type Category string

const (
	CategoryApartment Category = "apartment"
	CategoryHouse     Category = "house"
	CategoryPlot      Category = "plot"
)

// ChangeKind is the most significant field change detected on re-scrape.
type ChangeKind string

const (
	ChangePrice       ChangeKind = "price"
	ChangeTitle       ChangeKind = "title"
	ChangeDescription ChangeKind = "description"
	ChangeArea        ChangeKind = "area"
	ChangeImages      ChangeKind = "images"
	ChangeNone        ChangeKind = "none"
)

// Tier is the quality band derived from the numeric score.
type Tier string

const (
	TierExcellent Tier = "excellent"
	TierGood      Tier = "good"
	TierMedium    Tier = "medium"
	TierLow       Tier = "low"
)

// Listing is the canonical persisted entity. (Platform, SourceURL) is the
// unique key; Price is always > 0 once a listing reaches persistence.
type Listing struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	Platform       Platform   `json:"platform" db:"platform"`
	SourceURL      string     `json:"source_url" db:"source_url"`
	Title          string     `json:"title" db:"title"`
	Price          int        `json:"price" db:"price"` // EUR, whole units
	Area           *float64   `json:"area" db:"area"`   // m², living or plot
	PricePerArea   *float64   `json:"price_per_area" db:"price_per_area"`
	Location       string     `json:"location" db:"location"`
	Region         Region     `json:"region" db:"region"`
	Category       Category   `json:"category" db:"category"`
	Description    *string    `json:"description" db:"description"`
	ImageURLs      []string   `json:"image_urls" db:"image_urls"`
	Phone          *string    `json:"phone" db:"phone"` // normalized +43...
	FirstSeenAt    time.Time  `json:"first_seen_at" db:"first_seen_at"`
	LastScrapedAt  time.Time  `json:"last_scraped_at" db:"last_scraped_at"`
	LastChangedAt  *time.Time `json:"last_changed_at" db:"last_changed_at"`
	LastChangeKind ChangeKind `json:"last_change_kind" db:"last_change_kind"`
	Score          int        `json:"score" db:"score"` // 0..160
	Tier           Tier       `json:"tier" db:"tier"`
	GoldFind       bool       `json:"gold_find" db:"gold_find"`
	Deleted        bool       `json:"deleted" db:"deleted"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// RecomputePricePerArea refreshes the derived €/m² value. Called whenever
// price or area is written; the field is never updated on its own.
func (l *Listing) RecomputePricePerArea() {
	if l.Area != nil && *l.Area > 0 && l.Price > 0 {
		v := float64(l.Price) / *l.Area
		l.PricePerArea = &v
	} else {
		l.PricePerArea = nil
	}
}

// ListingCandidate is the validated intermediate representation produced by
// an adapter's detail parse, before classification and geo admission.
// Required fields are plain values; everything optional is a pointer.
type ListingCandidate struct {
	Platform    Platform
	SourceURL   string
	ListingID   string // platform-native ad identifier
	Title       string
	Price       int
	Area        *float64
	Location    string
	Region      Region
	Category    Category
	Description *string
	ImageURLs   []string
	Phone       *string
	ScrapedAt   time.Time
}

// Validate reports why a candidate must not reach persistence or scoring,
// or "" if it is acceptable.
func (c *ListingCandidate) Validate() string {
	switch {
	case c.SourceURL == "":
		return "missing source url"
	case c.Title == "":
		return "missing title"
	case c.Price <= 0:
		return "missing or non-positive price"
	case c.Location == "":
		return "missing location"
	default:
		return ""
	}
}
