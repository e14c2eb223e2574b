package scraper

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"immojagd/classify"
	"immojagd/config"
	"immojagd/models"
	"immojagd/normalize"
)

// WillhabenAdapter scrapes willhaben.at, the primary source. Detail pages
// are server-rendered with data-testid hooks plus older class names kept
// as fallbacks.
type WillhabenAdapter struct {
	cfg *config.SiteConfig
}

func NewWillhabenAdapter(cfg *config.SiteConfig) *WillhabenAdapter {
	return &WillhabenAdapter{cfg: cfg}
}

func (a *WillhabenAdapter) Platform() models.Platform { return models.PlatformWillhaben }

func (a *WillhabenAdapter) RootURL() string { return a.cfg.RootURL }

func (a *WillhabenAdapter) Categories() map[string]config.Category { return a.cfg.Categories }

func (a *WillhabenAdapter) IndexPageURL(baseURL string, page int) string {
	sep := "?"
	if strings.Contains(baseURL, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%spage=%d", baseURL, sep, page)
}

var willhabenIDRegex = regexp.MustCompile(`-(\d{6,})/?$`)

func (a *WillhabenAdapter) ListingID(url string) string {
	match := willhabenIDRegex.FindStringSubmatch(strings.TrimSuffix(url, "/"))
	if match == nil {
		return ""
	}
	return match[1]
}

func (a *WillhabenAdapter) ExtractListingURLs(doc *goquery.Document) []string {
	seen := make(map[string]bool)
	var urls []string

	for _, sel := range []string{
		`a[href*="/iad/immobilien/d/"]`,
		`a[data-testid^="search-result-entry"]`,
		`.result-item a`,
	} {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			href, ok := s.Attr("href")
			if !ok || !strings.Contains(href, "/iad/immobilien/d/") {
				return
			}
			// New-development projects lack price/area fields and are
			// always agency-run; skip that URL shape entirely.
			if strings.Contains(href, "/neubauprojekt/") || strings.Contains(href, "/neubauprojekte/") {
				return
			}
			if strings.HasPrefix(href, "/") {
				href = a.cfg.RootURL + href
			}
			if idx := strings.IndexByte(href, '?'); idx >= 0 {
				href = href[:idx]
			}
			if !seen[href] {
				seen[href] = true
				urls = append(urls, href)
			}
		})
	}

	return urls
}

func (a *WillhabenAdapter) ParseDetail(doc *goquery.Document, url string, cat config.Category) (*models.ListingCandidate, string) {
	if reason := a.unavailableReason(doc); reason != "" {
		return nil, reason
	}

	title := selectText(doc,
		`[data-testid="ad-detail-ad-title"] h1`,
		`h1[data-testid="ad-detail-header"]`,
		`.AdDetailTitle`,
		`h1`,
	)
	if title == "" {
		return nil, "no title element"
	}

	price := normalize.Price(selectText(doc,
		`[data-testid="ad-detail-ad-price"] span`,
		`[data-testid="contact-box-price-box-price-value-0"]`,
		`.AdDetailPrice`,
		`.price-value`,
	))
	if price <= 0 {
		return nil, "no parseable price"
	}

	location := selectText(doc,
		`[data-testid="ad-detail-ad-location"]`,
		`[data-testid="top-contact-box-address-box"]`,
		`.AdDetailLocation`,
	)
	if location == "" {
		return nil, "no location element"
	}

	area := normalize.Area(selectText(doc,
		`[data-testid="ad-detail-ad-properties"]`,
		`[data-testid="attribute-group-basic"]`,
		`.AdDetailProperties`,
	))

	var description *string
	if text := selectText(doc,
		`[data-testid="ad-detail-ad-description"]`,
		`.AdDescription-description`,
	); text != "" {
		bounded := normalize.Truncate(text, 4000)
		description = &bounded
	}

	cand := &models.ListingCandidate{
		Platform:    a.Platform(),
		SourceURL:   url,
		ListingID:   a.ListingID(url),
		Title:       title,
		Price:       price,
		Area:        area,
		Location:    location,
		Region:      models.Region(cat.Region),
		Category:    models.Category(cat.Kind),
		Description: description,
		ImageURLs:   a.extractImages(doc),
		Phone:       a.ExtractPhone(doc),
		ScrapedAt:   time.Now(),
	}

	if reason := cand.Validate(); reason != "" {
		return nil, reason
	}
	return cand, ""
}

// unavailableReason detects removed/expired ad documents that still come
// back with HTTP 200.
func (a *WillhabenAdapter) unavailableReason(doc *goquery.Document) string {
	if doc.Find(`[data-testid="ad-detail-expired"]`).Length() > 0 {
		return "listing expired"
	}
	body := strings.ToLower(doc.Find("body").Text())
	for _, marker := range []string{
		"diese anzeige ist leider nicht mehr verfügbar",
		"anzeige wurde gelöscht",
		"seite nicht gefunden",
	} {
		if strings.Contains(body, marker) {
			return "listing removed"
		}
	}
	return ""
}

func (a *WillhabenAdapter) ExtractSignals(doc *goquery.Document) classify.Signals {
	sig := classify.Signals{
		RenderedText: doc.Find("body").Text(),
		CompanyName: selectText(doc,
			`[data-testid="top-contact-box-organisation-name"]`,
			`[data-testid="ad-detail-contact-box-organisation"]`,
			`.ContactBox-organisation`,
		),
	}

	// Seller-type badge is willhaben's structured flag.
	sellerType := strings.ToLower(selectText(doc,
		`[data-testid="top-contact-box-seller-type"]`,
		`[data-testid="ad-detail-seller-type"]`,
	))
	switch {
	case strings.Contains(sellerType, "privat"):
		private := true
		sig.PrivateFlag = &private
	case strings.Contains(sellerType, "gewerblich"), strings.Contains(sellerType, "makler"):
		private := false
		sig.PrivateFlag = &private
	}

	return sig
}

func (a *WillhabenAdapter) extractImages(doc *goquery.Document) []string {
	seen := make(map[string]bool)
	var urls []string

	for _, sel := range []string{
		`[data-testid="ad-detail-gallery"] img`,
		`.ImageGallery img`,
		`meta[property="og:image"]`,
	} {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			src, ok := s.Attr("src")
			if !ok {
				src, ok = s.Attr("content")
			}
			if !ok || src == "" || strings.HasPrefix(src, "data:") {
				return
			}
			if !seen[src] {
				seen[src] = true
				urls = append(urls, src)
			}
		})
	}

	return urls
}

func (a *WillhabenAdapter) ExtractPhone(doc *goquery.Document) *string {
	// Phone shows up in the contact box when the seller opted in, and
	// often again inside the description text.
	if phone := normalize.Phone(selectText(doc,
		`[data-testid="top-contact-box-phone-number"]`,
		`a[href^="tel:"]`,
	)); phone != nil {
		return phone
	}
	html, err := doc.Html()
	if err != nil {
		return nil
	}
	return normalize.Phone(html)
}
