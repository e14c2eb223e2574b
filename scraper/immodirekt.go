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

// ImmodirektAdapter scrapes immodirekt.at. The site exposes an explicit
// "Privatanbieter" flag in its offer header, which makes the structured
// stage decisive for most of its ads.
type ImmodirektAdapter struct {
	cfg *config.SiteConfig
}

func NewImmodirektAdapter(cfg *config.SiteConfig) *ImmodirektAdapter {
	return &ImmodirektAdapter{cfg: cfg}
}

func (a *ImmodirektAdapter) Platform() models.Platform { return models.PlatformImmodirekt }

func (a *ImmodirektAdapter) RootURL() string { return a.cfg.RootURL }

func (a *ImmodirektAdapter) Categories() map[string]config.Category { return a.cfg.Categories }

func (a *ImmodirektAdapter) IndexPageURL(baseURL string, page int) string {
	sep := "?"
	if strings.Contains(baseURL, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%sp=%d", baseURL, sep, page)
}

var immodirektIDRegex = regexp.MustCompile(`/objekt/(\d+)`)

func (a *ImmodirektAdapter) ListingID(url string) string {
	match := immodirektIDRegex.FindStringSubmatch(url)
	if match == nil {
		return ""
	}
	return match[1]
}

func (a *ImmodirektAdapter) ExtractListingURLs(doc *goquery.Document) []string {
	seen := make(map[string]bool)
	var urls []string

	doc.Find(`a[href*="/objekt/"]`).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		if strings.HasPrefix(href, "/") {
			href = a.cfg.RootURL + href
		}
		if idx := strings.IndexByte(href, '?'); idx >= 0 {
			href = href[:idx]
		}
		if a.ListingID(href) == "" {
			return
		}
		if !seen[href] {
			seen[href] = true
			urls = append(urls, href)
		}
	})

	return urls
}

func (a *ImmodirektAdapter) ParseDetail(doc *goquery.Document, url string, cat config.Category) (*models.ListingCandidate, string) {
	if doc.Find(`.object-unavailable, .error-404`).Length() > 0 {
		return nil, "listing removed"
	}

	title := selectText(doc, `h1.object-title`, `.offer-header h1`, `h1`)
	if title == "" {
		return nil, "no title element"
	}

	price := normalize.Price(selectText(doc, `.object-price .value`, `.offer-price`, `.price`))
	if price <= 0 {
		return nil, "no parseable price"
	}

	location := selectText(doc, `.object-address`, `.offer-header .address`)
	if location == "" {
		return nil, "no location element"
	}

	area := normalize.Area(selectText(doc, `.object-facts`, `.key-facts`))

	var description *string
	if text := selectText(doc, `.object-description`, `#beschreibung`); text != "" {
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

func (a *ImmodirektAdapter) ExtractSignals(doc *goquery.Document) classify.Signals {
	sig := classify.Signals{
		RenderedText: doc.Find("body").Text(),
		CompanyName:  selectText(doc, `.provider-company`, `.offer-provider .company-name`),
	}

	offerType := strings.ToLower(selectText(doc, `.offer-type-badge`, `.provider-type`))
	switch {
	case strings.Contains(offerType, "privatanbieter"), strings.Contains(offerType, "privat"):
		private := true
		sig.PrivateFlag = &private
	case strings.Contains(offerType, "gewerblich"), strings.Contains(offerType, "makler"):
		private := false
		sig.PrivateFlag = &private
	}

	return sig
}

func (a *ImmodirektAdapter) extractImages(doc *goquery.Document) []string {
	seen := make(map[string]bool)
	var urls []string

	doc.Find(`.object-gallery img`).Each(func(_ int, s *goquery.Selection) {
		src, ok := s.Attr("data-src")
		if !ok {
			src, ok = s.Attr("src")
		}
		if !ok || src == "" {
			return
		}
		if !seen[src] {
			seen[src] = true
			urls = append(urls, src)
		}
	})

	return urls
}

func (a *ImmodirektAdapter) ExtractPhone(doc *goquery.Document) *string {
	if phone := normalize.Phone(selectText(doc, `.provider-phone`, `a[href^="tel:"]`)); phone != nil {
		return phone
	}
	return normalize.Phone(doc.Find(`.object-description`).Text())
}
