package models

import (
	"time"

	"github.com/google/uuid"
)

// GeoBlockedListing is the shadow record for a candidate that passed
// classification but fell outside the configured target regions. Rows are
// informational only and are not deduplicated across cycles.
type GeoBlockedListing struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Platform    Platform  `json:"platform" db:"platform"`
	SourceURL   string    `json:"source_url" db:"source_url"`
	Title       string    `json:"title" db:"title"`
	Price       int       `json:"price" db:"price"`
	Area        *float64  `json:"area" db:"area"`
	Location    string    `json:"location" db:"location"`
	Category    Category  `json:"category" db:"category"`
	BlockReason string    `json:"block_reason" db:"block_reason"`
	PostalCode  string    `json:"postal_code" db:"postal_code"`
	Locality    string    `json:"locality" db:"locality"`
	BlockedAt   time.Time `json:"blocked_at" db:"blocked_at"`
}
