package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	nonDigitRegex   = regexp.MustCompile(`[^\d]`)
	multiSpaceRegex = regexp.MustCompile(`\s+`)
	areaRegex       = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*m²`)
	postalCodeRegex = regexp.MustCompile(`\b([1-9]\d{3})\b`)
)

// Price parses an Austrian price string ("€ 298.000,-", "298.000 EUR") into
// whole euros. Cent fractions after a comma are dropped. Returns 0 when no
// digits are present.
func Price(text string) int {
	// Cut a trailing ",xx" cent part so it does not glue onto the euros.
	if idx := strings.LastIndex(text, ","); idx >= 0 && len(text)-idx <= 4 {
		text = text[:idx]
	}
	digits := nonDigitRegex.ReplaceAllString(text, "")
	if digits == "" {
		return 0
	}
	v, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return v
}

// Area extracts the first square-meter figure from text ("85 m²",
// "ca. 72,5 m² Wohnfläche"). Returns nil when absent.
func Area(text string) *float64 {
	match := areaRegex.FindStringSubmatch(text)
	if match == nil {
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(match[1], ",", "."), 64)
	if err != nil || v <= 0 {
		return nil
	}
	return &v
}

// PostalCode pulls a four-digit Austrian postal code out of a location
// string, or "" when none is present.
func PostalCode(location string) string {
	match := postalCodeRegex.FindStringSubmatch(location)
	if match == nil {
		return ""
	}
	return match[1]
}

// Whitespace collapses runs of whitespace and trims the ends.
func Whitespace(s string) string {
	return strings.TrimSpace(multiSpaceRegex.ReplaceAllString(s, " "))
}

// Truncate bounds a string to max runes, keeping whole runes.
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
