package exchange

import (
	"math"
	"time"
)

// DefaultBalanceNorm is the normalization constant K for the data sub-score.
const DefaultBalanceNorm = 1000

// Fixed weights for the four built-in sub-scores. These are design constants
// rather than configuration so scores stay comparable across relationships.
const (
	weightData     = 0.25
	weightQuality  = 0.25
	weightValue    = 0.35
	weightTemporal = 0.15
)

// Dimension is a pluggable scoring sub-metric. Supplied weights are
// normalized together with the built-in weights to sum to 1 before combining,
// so extensions dilute rather than break the built-in balance.
type Dimension interface {
	Name() string
	Calculate(state *RelationshipState) float64
	Weight() float64
}

// Scorer derives the bounded balance score from a relationship's aggregate.
type Scorer struct {
	balanceNorm float64
	extra       []Dimension
}

// NewScorer builds a Scorer with normalization constant K and optional
// extension dimensions.
func NewScorer(balanceNorm float64, extra ...Dimension) *Scorer {
	if balanceNorm <= 0 {
		balanceNorm = DefaultBalanceNorm
	}
	return &Scorer{balanceNorm: balanceNorm, extra: extra}
}

// Snapshot computes the current score and its sub-scores for state at the
// given instant. It does not mutate state.
func (sc *Scorer) Snapshot(state *RelationshipState, at time.Time) ScoreSnapshot {
	data := math.Tanh(state.CumulativeBalance / sc.balanceNorm)
	quality := state.QualityEMA
	value := math.Tanh(state.ValueAccumulator)
	temporal := temporalScore(state.FrequencySamples)

	weighted := weightData*data + weightQuality*quality + weightValue*value + weightTemporal*temporal
	totalWeight := weightData + weightQuality + weightValue + weightTemporal
	for _, d := range sc.extra {
		w := d.Weight()
		if w <= 0 {
			continue
		}
		weighted += w * d.Calculate(state)
		totalWeight += w
	}

	return ScoreSnapshot{
		SchemaVersion:   SchemaVersion,
		RelationshipKey: state.RelationshipKey,
		Timestamp:       at,
		Score:           weighted / totalWeight,
		DataScore:       data,
		QualityScore:    quality,
		ValueScore:      value,
		TemporalScore:   temporal,
	}
}

// temporalScore measures interaction rhythm regularity. With fewer than two
// intervals there is no evidence either way, so the score is neutral (0.5).
// Perfectly regular intervals score 1.0; irregularity decays the score via
// exp(-cv) where cv is the coefficient of variation.
func temporalScore(samples []float64) float64 {
	if len(samples) < 2 {
		return 0.5
	}
	mean := 0.0
	for _, s := range samples {
		mean += s
	}
	mean /= float64(len(samples))

	variance := 0.0
	for _, s := range samples {
		d := s - mean
		variance += d * d
	}
	variance /= float64(len(samples))
	stddev := math.Sqrt(variance)
	if stddev == 0 {
		return 1.0
	}
	return math.Exp(-stddev / mean)
}
