package scraper

import (
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"immojagd/classify"
	"immojagd/config"
	"immojagd/models"
	"immojagd/normalize"
)

// Adapter is the per-platform contract: a static category catalog, listing
// URL extraction from index pages, and defensive detail parsing. Adapters
// hold no session state; the orchestrator owns that.
type Adapter interface {
	Platform() models.Platform
	RootURL() string
	Categories() map[string]config.Category

	// IndexPageURL builds the URL of one result page of a category.
	IndexPageURL(baseURL string, page int) string

	// ExtractListingURLs returns deduplicated, absolute detail URLs in
	// document order, excluding non-listing shapes the pipeline cannot
	// parse (e.g. new-development projects).
	ExtractListingURLs(doc *goquery.Document) []string

	// ListingID derives the platform-native ad identifier from a detail
	// URL; it is the pagination cursor identity. "" when unparseable.
	ListingID(url string) string

	// ParseDetail turns a detail document into a candidate. A removed or
	// malformed page yields (nil, reason) rather than a partial listing.
	ParseDetail(doc *goquery.Document, url string, cat config.Category) (*models.ListingCandidate, string)

	// ExtractSignals gathers the private-vs-commercial evidence for the
	// shared classification pipeline.
	ExtractSignals(doc *goquery.Document) classify.Signals

	// ExtractPhone is best-effort; a missing phone is not an error.
	ExtractPhone(doc *goquery.Document) *string
}

// NewAdapter builds the adapter for a configured site.
func NewAdapter(siteCfg *config.SiteConfig) (Adapter, error) {
	switch models.Platform(siteCfg.ID) {
	case models.PlatformWillhaben:
		return NewWillhabenAdapter(siteCfg), nil
	case models.PlatformBazar:
		return NewBazarAdapter(siteCfg), nil
	case models.PlatformImmodirekt:
		return NewImmodirektAdapter(siteCfg), nil
	default:
		return nil, fmt.Errorf("no adapter for site %q", siteCfg.ID)
	}
}

// selectText walks a fallback chain of selectors and returns the first
// non-empty trimmed text. Platforms rename their markup hooks often enough
// that every field extraction carries alternatives.
func selectText(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if text := normalize.Whitespace(doc.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}
