package normalize

import (
	"regexp"
	"strings"
)

// Austrian phone numbers as they appear in ad text: international form
// (+43 / 0043) or national form starting with 0. Separators vary wildly.
var phonePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\+43|0043)[\s\-/\.]?[1-9]\d{0,4}[\s\-/\.]?\d{3,8}(?:[\s\-/\.]?\d{1,6})*`),
	regexp.MustCompile(`\b0[1-9]\d{0,4}[\s\-/\.]?\d{3,8}(?:[\s\-/\.]?\d{1,6})*`),
}

var phoneSeparators = regexp.MustCompile(`[\s\-/\.\(\)]`)

// Phone extracts the first plausible phone number from free text and
// normalizes it to +43 international form. Returns nil when nothing
// usable is found; a missing phone is never an error.
func Phone(text string) *string {
	for _, pattern := range phonePatterns {
		match := pattern.FindString(text)
		if match == "" {
			continue
		}
		normalized := normalizePhone(match)
		if normalized != "" {
			return &normalized
		}
	}
	return nil
}

func normalizePhone(raw string) string {
	digits := phoneSeparators.ReplaceAllString(raw, "")

	switch {
	case strings.HasPrefix(digits, "+43"):
		// already international
	case strings.HasPrefix(digits, "0043"):
		digits = "+43" + digits[4:]
	case strings.HasPrefix(digits, "0"):
		digits = "+43" + digits[1:]
	default:
		return ""
	}

	// +43 plus at least area code and a short subscriber number
	if len(digits) < 8 || len(digits) > 16 {
		return ""
	}
	return digits
}
