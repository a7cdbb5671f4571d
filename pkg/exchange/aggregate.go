package exchange

import (
	"math"
	"time"
)

// qualityAlpha is the fixed EMA smoothing factor for response quality.
// It is a design constant, not configuration: the EMA update rule is closed
// over [0,1] only with a fixed alpha applied uniformly.
const qualityAlpha = 0.3

// DefaultFrequencyWindow bounds how many inter-event intervals are kept for
// the temporal sub-score. Oldest samples are dropped past capacity.
const DefaultFrequencyWindow = 64

// Integrate folds a validated event into a state that has already been
// decayed to the event's timestamp. It updates the running balance, the
// quality EMA, the value-creation accumulator and the frequency history,
// then appends the recomputed score to score_history.
func Integrate(state *RelationshipState, ev InteractionEvent, scorer *Scorer, window int) ScoreSnapshot {
	if window <= 0 {
		window = DefaultFrequencyWindow
	}

	state.CumulativeBalance += ev.AmountProvided - ev.AmountRequested

	if state.EventCount == 0 {
		state.QualityEMA = ev.ResponseQuality
	} else {
		state.QualityEMA = qualityAlpha*ev.ResponseQuality + (1-qualityAlpha)*state.QualityEMA

		// Only events after the first contribute an inter-event interval.
		gap := ev.Timestamp.Sub(state.previousEventTime()).Hours()
		state.FrequencySamples = append(state.FrequencySamples, gap)
		if len(state.FrequencySamples) > window {
			state.FrequencySamples = state.FrequencySamples[len(state.FrequencySamples)-window:]
		}
	}

	state.ValueAccumulator += valueDelta(ev)
	state.EventCount++
	state.LastUpdateTime = ev.Timestamp

	snap := scorer.Snapshot(state, ev.Timestamp)
	state.ScoreHistory = append(state.ScoreHistory, ScoreSample{Timestamp: ev.Timestamp, Score: snap.Score})
	return snap
}

// previousEventTime is the timestamp the inter-event gap is measured from.
// Decay has already advanced LastUpdateTime to the incoming event, so the
// previous event's time is the tail of score_history.
func (s *RelationshipState) previousEventTime() time.Time {
	if n := len(s.ScoreHistory); n > 0 {
		return s.ScoreHistory[n-1].Timestamp
	}
	return s.LastUpdateTime
}

// valueDelta is the per-event value-creation contribution:
// efficiency (outcome per unit of total effort) scaled by how evenly the
// effort was shared.
func valueDelta(ev InteractionEvent) float64 {
	total := ev.InitiatorEffort + ev.ResponderEffort
	if total == 0 {
		// Zero total effort: efficiency 0, effort balance 1 by convention.
		return 0
	}
	efficiency := ev.OutcomeValue / total
	effortBalance := 1 - math.Abs(ev.InitiatorEffort-ev.ResponderEffort)/total
	return efficiency * effortBalance
}
