package models

// Score range and tier thresholds.
const (
	ScoreMax           = 160
	TierExcellentFloor = 80
	TierGoodFloor      = 60
	TierMediumFloor    = 40
)

// QualityScore is the result of one scoring pass. The breakdown is always
// the deterministic computation, even when Total is a model blend.
type QualityScore struct {
	Total        int  `json:"total"` // 0..160
	Freshness    int  `json:"freshness"`
	Completeness int  `json:"completeness"`
	PriceValue   int  `json:"price_value"`
	Tier         Tier `json:"tier"`
	GoldFind     bool `json:"gold_find"`
}

// TierForScore maps a total score onto its band.
func TierForScore(total int) Tier {
	switch {
	case total >= TierExcellentFloor:
		return TierExcellent
	case total >= TierGoodFloor:
		return TierGood
	case total >= TierMediumFloor:
		return TierMedium
	default:
		return TierLow
	}
}

// PriceBaseline is the stored median €/m² for one (region, category) pair,
// used as the reference point for price-value scoring.
type PriceBaseline struct {
	Region       Region   `json:"region" db:"region"`
	Category     Category `json:"category" db:"category"`
	MedianPerM2  float64  `json:"median_per_m2" db:"median_per_m2"`
	SampleCount  int      `json:"sample_count" db:"sample_count"`
}
