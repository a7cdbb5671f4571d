package exchange

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Summarize compresses an ordered batch of events that share a classifier
// outcome into a digest. Aggressive digests keep statistics only; balanced
// digests additionally preserve deterministic exemplar events.
func Summarize(batch []InteractionEvent, action RetentionAction, exemplarCap int, now time.Time) (InteractionSummary, error) {
	if len(batch) == 0 {
		return InteractionSummary{}, fmt.Errorf("summarize: empty batch")
	}
	if action != SummarizeBalanced && action != SummarizeAggressive {
		return InteractionSummary{}, fmt.Errorf("summarize: action %q has no digest form", action)
	}

	sum := InteractionSummary{
		SchemaVersion:   SchemaVersion,
		SummaryID:       "sum-" + uuid.NewString(),
		RelationshipKey: batch[0].RelationshipKey,
		Action:          action,
		Count:           len(batch),
		CreatedAt:       now,
	}
	totalQuality := 0.0
	for _, ev := range batch {
		totalQuality += ev.ResponseQuality
		sum.TotalValue += ev.OutcomeValue
		sum.TimeRange.Extend(ev.Timestamp)
	}
	sum.AvgQuality = totalQuality / float64(len(batch))

	if action == SummarizeBalanced {
		sum.Exemplars = selectExemplars(batch, exemplarCap)
	}
	return sum, nil
}

// selectExemplars picks up to cap events deterministically: the batch is
// sorted by outcome_value, the minimum and maximum are always kept, and the
// remaining slots are filled at evenly spaced rank positions interpolated
// over the sorted index range. Results are returned in timestamp order.
func selectExemplars(batch []InteractionEvent, limit int) []InteractionEvent {
	if limit < 2 {
		limit = 2
	}
	sorted := append([]InteractionEvent(nil), batch...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OutcomeValue < sorted[j].OutcomeValue
	})
	if len(sorted) <= limit {
		out := sorted
		sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
		return out
	}

	picked := make([]InteractionEvent, 0, limit)
	seen := make(map[int]struct{}, limit)
	last := float64(len(sorted) - 1)
	for i := 0; i < limit; i++ {
		rank := int(math.Round(float64(i) * last / float64(limit-1)))
		if _, ok := seen[rank]; ok {
			continue
		}
		seen[rank] = struct{}{}
		picked = append(picked, sorted[rank])
	}
	sort.SliceStable(picked, func(i, j int) bool { return picked[i].Timestamp.Before(picked[j].Timestamp) })
	return picked
}

// FoldForgotten folds a FORGET_COMPLETE batch into the relationship's
// running lifetime statistics. Only the count and covered time range survive.
func FoldForgotten(stats *LifetimeStats, batch []InteractionEvent) {
	if stats.SchemaVersion == 0 {
		stats.SchemaVersion = SchemaVersion
	}
	for _, ev := range batch {
		if stats.RelationshipKey == "" {
			stats.RelationshipKey = ev.RelationshipKey
		}
		stats.ForgottenCount++
		stats.TimeRange.Extend(ev.Timestamp)
	}
}
