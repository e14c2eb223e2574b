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

// BazarAdapter scrapes bazar.at. The markup is class-based table-era HTML;
// there is no structured seller-type flag, so classification leans on the
// company field and vocabulary stages.
type BazarAdapter struct {
	cfg *config.SiteConfig
}

func NewBazarAdapter(cfg *config.SiteConfig) *BazarAdapter {
	return &BazarAdapter{cfg: cfg}
}

func (a *BazarAdapter) Platform() models.Platform { return models.PlatformBazar }

func (a *BazarAdapter) RootURL() string { return a.cfg.RootURL }

func (a *BazarAdapter) Categories() map[string]config.Category { return a.cfg.Categories }

func (a *BazarAdapter) IndexPageURL(baseURL string, page int) string {
	sep := "?"
	if strings.Contains(baseURL, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%sseite=%d", baseURL, sep, page)
}

var bazarIDRegex = regexp.MustCompile(`-(\d+)\.html$`)

func (a *BazarAdapter) ListingID(url string) string {
	match := bazarIDRegex.FindStringSubmatch(url)
	if match == nil {
		return ""
	}
	return match[1]
}

func (a *BazarAdapter) ExtractListingURLs(doc *goquery.Document) []string {
	seen := make(map[string]bool)
	var urls []string

	for _, sel := range []string{
		`a.ad-title[href*="/anzeige/"]`,
		`.ad-list-item a[href*="/anzeige/"]`,
		`a[href*="/anzeige/"]`,
	} {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			href, ok := s.Attr("href")
			if !ok || !strings.HasSuffix(href, ".html") {
				return
			}
			if strings.HasPrefix(href, "/") {
				href = a.cfg.RootURL + href
			}
			if !seen[href] {
				seen[href] = true
				urls = append(urls, href)
			}
		})
	}

	return urls
}

func (a *BazarAdapter) ParseDetail(doc *goquery.Document, url string, cat config.Category) (*models.ListingCandidate, string) {
	body := strings.ToLower(doc.Find("body").Text())
	if strings.Contains(body, "diese anzeige existiert nicht mehr") ||
		strings.Contains(body, "anzeige nicht gefunden") {
		return nil, "listing removed"
	}

	title := selectText(doc, `h1.ad-headline`, `.ad-detail h1`, `h1`)
	if title == "" {
		return nil, "no title element"
	}

	price := normalize.Price(selectText(doc, `.ad-price`, `.price-box .price`, `span.price`))
	if price <= 0 {
		return nil, "no parseable price"
	}

	location := selectText(doc, `.ad-location`, `.seller-address`, `.ad-detail-address`)
	if location == "" {
		return nil, "no location element"
	}

	// Area sits in the attribute table when present, otherwise it is
	// only mentioned in the free text.
	area := normalize.Area(selectText(doc, `.ad-attributes`, `table.attributes`))
	if area == nil {
		area = normalize.Area(doc.Find(`.ad-description`).Text())
	}

	var description *string
	if text := selectText(doc, `.ad-description`, `#description`); text != "" {
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

func (a *BazarAdapter) ExtractSignals(doc *goquery.Document) classify.Signals {
	return classify.Signals{
		// No structured flag on bazar; the badge text "Privatanzeige"
		// appears as plain vocabulary and is caught by the text stage.
		CompanyName: selectText(doc,
			`.seller-company-name`,
			`.dealer-info .company`,
		),
		RenderedText: doc.Find("body").Text(),
	}
}

func (a *BazarAdapter) extractImages(doc *goquery.Document) []string {
	seen := make(map[string]bool)
	var urls []string

	doc.Find(`.ad-gallery img, .image-strip img`).Each(func(_ int, s *goquery.Selection) {
		src, ok := s.Attr("src")
		if !ok || src == "" {
			return
		}
		if strings.HasPrefix(src, "/") {
			src = a.cfg.RootURL + src
		}
		if !seen[src] {
			seen[src] = true
			urls = append(urls, src)
		}
	})

	return urls
}

func (a *BazarAdapter) ExtractPhone(doc *goquery.Document) *string {
	if phone := normalize.Phone(selectText(doc, `.seller-phone`, `a[href^="tel:"]`)); phone != nil {
		return phone
	}
	return normalize.Phone(doc.Find(`.ad-description`).Text())
}
