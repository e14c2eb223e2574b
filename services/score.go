package services

import (
	"math"
	"time"

	"immojagd/models"
)

// Component caps. They sum to the 160-point scale.
const (
	freshnessMax    = 50
	completenessMax = 60
	priceValueMax   = 50

	neutralPriceValue = 25 // no baseline or no area: neither reward nor punish
)

// Gold-find condition: an aged listing with a very recent change.
const (
	goldFindMinAge       = 60 * 24 * time.Hour
	goldFindChangeWindow = 72 * time.Hour
)

// BaselineProvider supplies the regional €/m² reference for price-value
// scoring; nil results mean "no baseline yet".
type BaselineProvider interface {
	Baseline(region models.Region, category models.Category) *models.PriceBaseline
}

// Model is an optional learned score predictor blended into the total. Its
// weight grows with the number of examples it was fit on.
type Model interface {
	// Predict returns a score estimate on the 0..160 scale. Out-of-range
	// predictions are tolerated and clamped by the scorer.
	Predict(freshness, completeness, priceValue int) float64
	TrainingExamples() int
}

// fullConfidenceExamples is the training-set size at which the model's
// blend weight reaches 1.
const fullConfidenceExamples = 200

// Scorer computes lead-quality scores. It never errors: missing optional
// fields score their neutral defaults.
type Scorer struct {
	baselines BaselineProvider
	model     Model
	now       func() time.Time
}

func NewScorer(baselines BaselineProvider, model Model) *Scorer {
	return &Scorer{baselines: baselines, model: model, now: time.Now}
}

// Score computes the quality of one listing as currently stored.
func (s *Scorer) Score(l *models.Listing) models.QualityScore {
	freshness := s.freshness(l)
	completeness := s.completeness(l)
	priceValue := s.priceValue(l)

	total := clampScore(freshness + completeness + priceValue)

	if s.model != nil && s.model.TrainingExamples() > 0 {
		weight := float64(s.model.TrainingExamples()) / fullConfidenceExamples
		if weight > 1 {
			weight = 1
		}
		predicted := s.model.Predict(freshness, completeness, priceValue)
		blended := weight*predicted + (1-weight)*float64(total)
		total = clampScore(int(math.Round(blended)))
	}

	return models.QualityScore{
		Total:        total,
		Freshness:    freshness,
		Completeness: completeness,
		PriceValue:   priceValue,
		Tier:         models.TierForScore(total),
		GoldFind:     s.goldFind(l),
	}
}

// freshness decays with the age of the last meaningful change, or of the
// first sighting when nothing ever changed.
func (s *Scorer) freshness(l *models.Listing) int {
	reference := l.FirstSeenAt
	if l.LastChangedAt != nil {
		reference = *l.LastChangedAt
	}
	if reference.IsZero() {
		return freshnessMax / 2
	}

	days := s.now().Sub(reference).Hours() / 24
	score := freshnessMax - int(days*2)
	if score < 0 {
		return 0
	}
	if score > freshnessMax {
		return freshnessMax
	}
	return score
}

func (s *Scorer) completeness(l *models.Listing) int {
	score := 0
	if l.Description != nil && len(*l.Description) >= 80 {
		score += 15
	}
	if n := len(l.ImageURLs); n > 0 {
		score += 10
		if n > 5 {
			n = 5
		}
		score += n
	}
	if l.Phone != nil {
		score += 20
	}
	if l.Area != nil && *l.Area > 0 {
		score += 10
	}
	if score > completenessMax {
		return completenessMax
	}
	return score
}

// priceValue positions the listing's €/m² against the regional baseline:
// 30% under baseline scores full points, 30% over scores zero, linear in
// between.
func (s *Scorer) priceValue(l *models.Listing) int {
	if l.PricePerArea == nil || s.baselines == nil {
		return neutralPriceValue
	}
	baseline := s.baselines.Baseline(l.Region, l.Category)
	if baseline == nil || baseline.MedianPerM2 <= 0 {
		return neutralPriceValue
	}

	ratio := *l.PricePerArea / baseline.MedianPerM2
	switch {
	case ratio <= 0.7:
		return priceValueMax
	case ratio >= 1.3:
		return 0
	default:
		return int(math.Round(priceValueMax * (1.3 - ratio) / 0.6))
	}
}

func (s *Scorer) goldFind(l *models.Listing) bool {
	if l.LastChangedAt == nil {
		return false
	}
	now := s.now()
	return now.Sub(l.FirstSeenAt) > goldFindMinAge &&
		now.Sub(*l.LastChangedAt) <= goldFindChangeWindow
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > models.ScoreMax {
		return models.ScoreMax
	}
	return v
}
