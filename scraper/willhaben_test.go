package scraper

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"immojagd/config"
	"immojagd/models"
)

func loadDoc(t *testing.T, name string) *goquery.Document {
	t.Helper()
	f, err := os.Open(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("open fixture %s: %v", name, err)
	}
	defer f.Close()
	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		t.Fatalf("parse fixture %s: %v", name, err)
	}
	return doc
}

func willhabenAdapter() *WillhabenAdapter {
	return NewWillhabenAdapter(&config.SiteConfig{
		ID:      "willhaben",
		RootURL: "https://www.willhaben.at",
		Categories: map[string]config.Category{
			"eigentumswohnung-wien": {
				URL:    "https://www.willhaben.at/iad/immobilien/eigentumswohnung/eigentumswohnung-angebote?areaId=900",
				Region: "wien",
				Kind:   "apartment",
			},
		},
	})
}

func willhabenCategory() config.Category {
	return willhabenAdapter().Categories()["eigentumswohnung-wien"]
}

func TestWillhabenExtractListingURLs(t *testing.T) {
	doc := loadDoc(t, "willhaben_index.html")
	urls := willhabenAdapter().ExtractListingURLs(doc)

	want := []string{
		"https://www.willhaben.at/iad/immobilien/d/eigentumswohnung/wien/ottakring/helle-3-zimmer-wohnung-123456789/",
		"https://www.willhaben.at/iad/immobilien/d/haus/niederoesterreich/baden/landhaus-mit-garten-987654321/",
	}
	if len(urls) != len(want) {
		t.Fatalf("expected %d urls, got %d: %v", len(want), len(urls), urls)
	}
	for i := range want {
		if urls[i] != want[i] {
			t.Fatalf("url %d = %s, want %s", i, urls[i], want[i])
		}
	}
}

func TestWillhabenListingID(t *testing.T) {
	a := willhabenAdapter()
	cases := []struct {
		url  string
		want string
	}{
		{"https://www.willhaben.at/iad/immobilien/d/eigentumswohnung/wien/wohnung-123456789/", "123456789"},
		{"https://www.willhaben.at/iad/immobilien/d/haus/noe/landhaus-987654321", "987654321"},
		{"https://www.willhaben.at/iad/immobilien/angebote", ""},
		{"https://www.willhaben.at/iad/immobilien/d/wohnung-42/", ""}, // too short for an ad id
	}
	for _, tc := range cases {
		if got := a.ListingID(tc.url); got != tc.want {
			t.Fatalf("ListingID(%s) = %q, want %q", tc.url, got, tc.want)
		}
	}
}

func TestWillhabenIndexPageURL(t *testing.T) {
	a := willhabenAdapter()
	base := "https://www.willhaben.at/iad/immobilien/eigentumswohnung/eigentumswohnung-angebote?areaId=900"
	if got := a.IndexPageURL(base, 3); got != base+"&page=3" {
		t.Fatalf("got %s", got)
	}
	if got := a.IndexPageURL("https://www.willhaben.at/iad/immobilien/angebote", 2); got != "https://www.willhaben.at/iad/immobilien/angebote?page=2" {
		t.Fatalf("got %s", got)
	}
}

func TestWillhabenParseDetail(t *testing.T) {
	doc := loadDoc(t, "willhaben_detail_private.html")
	url := "https://www.willhaben.at/iad/immobilien/d/eigentumswohnung/wien/ottakring/helle-3-zimmer-wohnung-123456789/"

	cand, reason := willhabenAdapter().ParseDetail(doc, url, willhabenCategory())
	if cand == nil {
		t.Fatalf("parse failed: %s", reason)
	}
	if cand.Title != "Helle 3-Zimmer-Wohnung mit Balkon" {
		t.Fatalf("title = %q", cand.Title)
	}
	if cand.Price != 298000 {
		t.Fatalf("price = %d", cand.Price)
	}
	if cand.Location != "1160 Wien, 16. Bezirk, Ottakring" {
		t.Fatalf("location = %q", cand.Location)
	}
	if cand.Area == nil || *cand.Area != 85 {
		t.Fatalf("area = %v", cand.Area)
	}
	if cand.ListingID != "123456789" {
		t.Fatalf("listing id = %q", cand.ListingID)
	}
	if cand.Region != models.RegionWien || cand.Category != models.CategoryApartment {
		t.Fatalf("region/category = %s/%s", cand.Region, cand.Category)
	}
	if len(cand.ImageURLs) != 3 {
		t.Fatalf("images = %v", cand.ImageURLs)
	}
	if cand.Phone == nil || *cand.Phone != "+436601234567" {
		t.Fatalf("phone = %v", cand.Phone)
	}
	if cand.Description == nil || len(*cand.Description) < 80 {
		t.Fatalf("description missing or too short: %v", cand.Description)
	}
}

func TestWillhabenParseDetailRemoved(t *testing.T) {
	doc := loadDoc(t, "willhaben_detail_removed.html")
	cand, reason := willhabenAdapter().ParseDetail(doc, "https://www.willhaben.at/iad/immobilien/d/x-123456789/", willhabenCategory())
	if cand != nil {
		t.Fatalf("removed page produced a candidate")
	}
	if reason != "listing removed" {
		t.Fatalf("reason = %q", reason)
	}
}

func TestWillhabenSignalsPrivate(t *testing.T) {
	doc := loadDoc(t, "willhaben_detail_private.html")
	sig := willhabenAdapter().ExtractSignals(doc)
	if sig.PrivateFlag == nil || !*sig.PrivateFlag {
		t.Fatalf("expected private flag, got %v", sig.PrivateFlag)
	}
	if sig.CompanyName != "" {
		t.Fatalf("unexpected company %q", sig.CompanyName)
	}
}

func TestWillhabenSignalsCommercial(t *testing.T) {
	doc := loadDoc(t, "willhaben_detail_commercial.html")
	sig := willhabenAdapter().ExtractSignals(doc)
	if sig.PrivateFlag == nil || *sig.PrivateFlag {
		t.Fatalf("expected commercial flag, got %v", sig.PrivateFlag)
	}
	if sig.CompanyName != "Musterimmo GmbH" {
		t.Fatalf("company = %q", sig.CompanyName)
	}
}
