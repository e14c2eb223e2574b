// Package classify decides whether a parsed ad was posted by a private
// seller or a commercial vendor. The decision is an ordered short-circuit
// over heuristic stages; stage order is part of the business contract and
// is encoded as data so tests can pin it.
package classify

import (
	"immojagd/models"
)

// Signals is everything a platform adapter could extract that bears on the
// private-vs-commercial question. Absent signals stay at their zero value
// (PrivateFlag nil means the platform exposes no structured flag).
type Signals struct {
	// PrivateFlag is the platform's structured "private seller" marker,
	// when the document carries one.
	PrivateFlag *bool
	// CompanyName is the seller/company field, verbatim.
	CompanyName string
	// RenderedText is the full visible text of the detail page.
	RenderedText string
}

// Verdict is one stage's contribution: a decisive allow/block, or
// inconclusive, in which case the next stage runs.
type Verdict int

const (
	Inconclusive Verdict = iota
	Allow
	Block
)

// Stage is one pure predicate in the pipeline.
type Stage struct {
	Name       string
	Confidence models.Confidence
	Check      func(Signals) (Verdict, string)
}

// Run evaluates the stages in order and returns the first decisive verdict.
// The final stage never returns Inconclusive, so Run always decides.
func Run(sig Signals) models.ClassificationResult {
	for _, stage := range Stages {
		verdict, reason := stage.Check(sig)
		if verdict == Inconclusive {
			continue
		}
		return models.ClassificationResult{
			Allowed:    verdict == Allow,
			Reason:     stage.Name + ": " + reason,
			Confidence: stage.Confidence,
		}
	}
	// Unreachable while the default stage is last; kept so Run is total.
	return models.ClassificationResult{
		Allowed:    false,
		Reason:     "no stage decided",
		Confidence: models.ConfidenceLow,
	}
}
