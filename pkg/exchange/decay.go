package exchange

import (
	"math"
	"time"
)

// DefaultDecayRate is the per-hour exponential decay constant applied to the
// running sums between events.
const DefaultDecayRate = 0.1

// ApplyDecay advances the state to `at` by multiplying cumulative_balance and
// value_accumulator by exp(-rate * elapsedHours), then stamps last_update_time.
// quality_ema and frequency_samples are self-stabilizing and are not decayed.
//
// Decay forms a semigroup under addition of elapsed time: decaying by t1 then
// t2 equals decaying once by t1+t2 (within floating-point tolerance). Callers
// rely on that to apply decay opportunistically.
func ApplyDecay(state *RelationshipState, at time.Time, rate float64) {
	if state == nil || at.Before(state.LastUpdateTime) {
		return
	}
	if rate <= 0 {
		state.LastUpdateTime = at
		return
	}
	dt := at.Sub(state.LastUpdateTime).Hours()
	factor := math.Exp(-rate * dt)
	state.CumulativeBalance *= factor
	state.ValueAccumulator *= factor
	state.LastUpdateTime = at
}
