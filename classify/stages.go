package classify

import (
	"strings"

	"immojagd/models"
)

// Vocabulary that marks a brokerage-mediated ad. Deliberately narrow:
// "ohne makler" and "doppelmakler" contain "makler" but are private-sale
// phrases, so bare "makler" must not appear here.
var commercialVocabulary = []string{
	"käuferprovision",
	"maklerprovision",
	"vermittlungsprovision",
	"zzgl. provision",
	"zzgl provision",
	"vermittlungshonorar",
	"maklerhonorar",
	"courtage",
	"immobilientreuhänder",
	"exklusiv vermarktet durch",
	"ihr immobilienmakler",
}

// Vocabulary that marks an explicit private sale.
var privateVocabulary = []string{
	"privatverkauf",
	"privat verkauf",
	"von privat",
	"privater verkäufer",
	"privatperson",
	"ohne makler",
	"doppelmakler",
}

// Stages is the classification pipeline in its contractual order. The
// company check must win over a structured private flag, which is why the
// flag stage withholds its allow while a company name is present. Do not
// reorder or merge these.
var Stages = []Stage{
	{
		Name:       "structured-flag",
		Confidence: models.ConfidenceHigh,
		Check: func(sig Signals) (Verdict, string) {
			if sig.PrivateFlag == nil {
				return Inconclusive, ""
			}
			if !*sig.PrivateFlag {
				return Block, "commercial flag set"
			}
			if strings.TrimSpace(sig.CompanyName) != "" {
				// Private flag contradicted by an attached company
				// name; defer to the company stage.
				return Inconclusive, ""
			}
			return Allow, "private flag set"
		},
	},
	{
		Name:       "company-field",
		Confidence: models.ConfidenceHigh,
		Check: func(sig Signals) (Verdict, string) {
			if name := strings.TrimSpace(sig.CompanyName); name != "" {
				return Block, "seller company present: " + name
			}
			return Inconclusive, ""
		},
	},
	{
		Name:       "commercial-vocabulary",
		Confidence: models.ConfidenceMedium,
		Check: func(sig Signals) (Verdict, string) {
			text := strings.ToLower(sig.RenderedText)
			for _, phrase := range commercialVocabulary {
				if strings.Contains(text, phrase) {
					return Block, "matched " + quoted(phrase)
				}
			}
			return Inconclusive, ""
		},
	},
	{
		Name:       "private-vocabulary",
		Confidence: models.ConfidenceMedium,
		Check: func(sig Signals) (Verdict, string) {
			text := strings.ToLower(sig.RenderedText)
			for _, phrase := range privateVocabulary {
				if strings.Contains(text, phrase) {
					return Allow, "matched " + quoted(phrase)
				}
			}
			return Inconclusive, ""
		},
	},
	{
		Name:       "default",
		Confidence: models.ConfidenceLow,
		Check: func(Signals) (Verdict, string) {
			// Uncertain ads are excluded rather than polluting the
			// lead list.
			return Block, "no decisive signal"
		},
	},
}

func quoted(phrase string) string {
	return `"` + phrase + `"`
}
