package geo

import (
	"testing"

	"immojagd/models"
)

func TestAdmitWienPostalCode(t *testing.T) {
	f := NewFilter(nil)
	cases := []struct {
		location string
		allowed  bool
	}{
		{"1010 Wien, Innere Stadt", true},
		{"1230 Wien", true},
		{"1239 Wien, Liesing", true},
		{"Wien 22., Donaustadt", true}, // locality fallback, no postal code
		{"8010 Graz", false},
		{"4020 Linz, Zentrum", false},
	}
	for _, tc := range cases {
		d := f.Admit(tc.location, models.RegionWien)
		if d.Allowed != tc.allowed {
			t.Fatalf("%q: allowed=%v, want %v (%s)", tc.location, d.Allowed, tc.allowed, d.Reason)
		}
	}
}

func TestAdmitNiederoesterreich(t *testing.T) {
	f := NewFilter(nil)
	cases := []struct {
		location string
		allowed  bool
	}{
		{"2500 Baden bei Wien", true},
		{"3100 St. Pölten", true},
		{"3943 Schrems", true},
		{"Klosterneuburg, Weidling", true},
		{"2901 irgendwo", false}, // gap between the 2xxx and 3xxx ranges
		{"7000 Eisenstadt", false},
	}
	for _, tc := range cases {
		d := f.Admit(tc.location, models.RegionNiederoesterreich)
		if d.Allowed != tc.allowed {
			t.Fatalf("%q: allowed=%v, want %v (%s)", tc.location, d.Allowed, tc.allowed, d.Reason)
		}
	}
}

// Denied localities win even when the postal code is inside a target range.
func TestDeniedLocalityWinsOverPostalRange(t *testing.T) {
	f := NewFilter(nil)
	d := f.Admit("3830 Waidhofen an der Thaya", models.RegionNiederoesterreich)
	if d.Allowed {
		t.Fatalf("expected deny, got allow: %s", d.Reason)
	}

	// One character off the denied name and the postal range decides again.
	d = f.Admit("3830 Waldhofen an der Thaya", models.RegionNiederoesterreich)
	if !d.Allowed {
		t.Fatalf("expected allow for non-denied locality: %s", d.Reason)
	}
}

func TestAdmitUnknownRegion(t *testing.T) {
	f := NewFilter(nil)
	d := f.Admit("1010 Wien", models.Region("steiermark"))
	if d.Allowed {
		t.Fatalf("untargeted region must never admit")
	}
}

func TestAdmitCarriesPostalCode(t *testing.T) {
	f := NewFilter(nil)
	d := f.Admit("1160 Wien, Ottakring", models.RegionWien)
	if d.PostalCode != "1160" {
		t.Fatalf("expected postal code 1160, got %q", d.PostalCode)
	}
}
