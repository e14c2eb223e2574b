package services

// LinearModel is the shipped implementation of Model: a linear predictor
// over the three deterministic components, refit whenever labeled examples
// arrive from the review side.
type LinearModel struct {
	Bias       float64
	WFreshness float64
	WComplete  float64
	WPrice     float64
	Examples   int
}

// TrainingSample pairs component values with a reviewed target score.
type TrainingSample struct {
	Freshness    int
	Completeness int
	PriceValue   int
	Target       float64
}

func (m *LinearModel) Predict(freshness, completeness, priceValue int) float64 {
	return m.Bias +
		m.WFreshness*float64(freshness) +
		m.WComplete*float64(completeness) +
		m.WPrice*float64(priceValue)
}

func (m *LinearModel) TrainingExamples() int { return m.Examples }

// Fit runs plain batch gradient descent on squared error. Feature values
// are small (component caps) so a fixed learning rate converges fine.
func (m *LinearModel) Fit(samples []TrainingSample, epochs int, rate float64) {
	if len(samples) == 0 {
		return
	}
	n := float64(len(samples))

	for epoch := 0; epoch < epochs; epoch++ {
		var gBias, gFresh, gComplete, gPrice float64
		for _, s := range samples {
			err := m.Predict(s.Freshness, s.Completeness, s.PriceValue) - s.Target
			gBias += err
			gFresh += err * float64(s.Freshness)
			gComplete += err * float64(s.Completeness)
			gPrice += err * float64(s.PriceValue)
		}
		m.Bias -= rate * gBias / n
		m.WFreshness -= rate * gFresh / n
		m.WComplete -= rate * gComplete / n
		m.WPrice -= rate * gPrice / n
	}

	m.Examples = len(samples)
}
