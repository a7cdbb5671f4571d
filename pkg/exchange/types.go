package exchange

import "time"

// SchemaVersion tags every serialized record so future field additions do not
// break deserialization of older rows.
const SchemaVersion = 1

// RequestKind classifies what an initiator asked for.
type RequestKind string

const (
	RequestQuery        RequestKind = "query"
	RequestCreation     RequestKind = "creation"
	RequestAnalysis     RequestKind = "analysis"
	RequestModification RequestKind = "modification"
)

// Valid reports whether k is one of the closed set of request kinds.
func (k RequestKind) Valid() bool {
	switch k {
	case RequestQuery, RequestCreation, RequestAnalysis, RequestModification:
		return true
	}
	return false
}

// InteractionEvent is one exchange record between two parties.
// Timestamps must be monotonically non-decreasing within a relationship.
type InteractionEvent struct {
	SchemaVersion   int         `json:"schema_version"`
	EventID         string      `json:"event_id"`
	RelationshipKey string      `json:"relationship_key"`
	Timestamp       time.Time   `json:"timestamp"`
	AmountRequested float64     `json:"amount_requested"`
	AmountProvided  float64     `json:"amount_provided"`
	RequestKind     RequestKind `json:"request_kind"`
	ResponseQuality float64     `json:"response_quality"`
	InitiatorEffort float64     `json:"initiator_effort"`
	ResponderEffort float64     `json:"responder_effort"`
	OutcomeValue    float64     `json:"outcome_value"`
}

// ScoreSample is one (timestamp, score) point in a relationship's history.
type ScoreSample struct {
	Timestamp time.Time `json:"timestamp"`
	Score     float64   `json:"score"`
}

// RelationshipState is the continuously decaying aggregate for one
// relationship_key. It is mutated only through ApplyDecay followed by
// Integrate, always in that order.
type RelationshipState struct {
	SchemaVersion     int           `json:"schema_version"`
	RelationshipKey   string        `json:"relationship_key"`
	CumulativeBalance float64       `json:"cumulative_balance"`
	QualityEMA        float64       `json:"quality_ema"`
	ValueAccumulator  float64       `json:"value_accumulator"`
	FrequencySamples  []float64     `json:"frequency_samples"` // inter-event gaps in hours
	LastUpdateTime    time.Time     `json:"last_update_time"`
	ScoreHistory      []ScoreSample `json:"score_history"`
	EventCount        int           `json:"event_count"`
}

// Clone returns a deep copy so callers can stage mutations and commit only
// after persistence succeeds.
func (s *RelationshipState) Clone() *RelationshipState {
	if s == nil {
		return nil
	}
	cp := *s
	cp.FrequencySamples = append([]float64(nil), s.FrequencySamples...)
	cp.ScoreHistory = append([]ScoreSample(nil), s.ScoreHistory...)
	return &cp
}

// ScoreSnapshot is the engine's answer to "how balanced is this relationship
// right now": the weighted score plus its four sub-scores.
type ScoreSnapshot struct {
	SchemaVersion   int       `json:"schema_version"`
	RelationshipKey string    `json:"relationship_key"`
	Timestamp       time.Time `json:"timestamp"`
	Score           float64   `json:"score"`
	DataScore       float64   `json:"data_score"`
	QualityScore    float64   `json:"quality_score"`
	ValueScore      float64   `json:"value_score"`
	TemporalScore   float64   `json:"temporal_score"`
}

// RetentionAction is the outcome of classifying one record.
type RetentionAction string

const (
	RetainFull          RetentionAction = "retain_full"
	SummarizeBalanced   RetentionAction = "summarize_balanced"
	SummarizeAggressive RetentionAction = "summarize_aggressive"
	ForgetComplete      RetentionAction = "forget_complete"
)

// TimeRange spans the first and last event timestamp covered by a digest.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Extend widens the range to include t.
func (r *TimeRange) Extend(t time.Time) {
	if r.Start.IsZero() || t.Before(r.Start) {
		r.Start = t
	}
	if r.End.IsZero() || t.After(r.End) {
		r.End = t
	}
}

// InteractionSummary is the persisted digest of a downgraded batch: pure
// statistics for aggressive summaries, statistics plus preserved exemplar
// events for balanced ones.
type InteractionSummary struct {
	SchemaVersion   int                `json:"schema_version"`
	SummaryID       string             `json:"summary_id"`
	RelationshipKey string             `json:"relationship_key"`
	Action          RetentionAction    `json:"action"`
	Count           int                `json:"count"`
	AvgQuality      float64            `json:"avg_quality"`
	TotalValue      float64            `json:"total_value"`
	TimeRange       TimeRange          `json:"time_range"`
	Exemplars       []InteractionEvent `json:"exemplars,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
}

// LifetimeStats is what survives a FORGET_COMPLETE batch: only a running
// count and the covered time range, folded into the relationship's totals.
type LifetimeStats struct {
	SchemaVersion   int       `json:"schema_version"`
	RelationshipKey string    `json:"relationship_key"`
	ForgottenCount  int       `json:"forgotten_count"`
	TimeRange       TimeRange `json:"time_range"`
}

// SweepReport summarizes one retention sweep over a relationship's backlog.
type SweepReport struct {
	RelationshipKey      string `json:"relationship_key"`
	SweepID              string `json:"sweep_id"`
	Examined             int    `json:"examined"`
	Retained             int    `json:"retained"`
	SummarizedBalanced   int    `json:"summarized_balanced"`
	SummarizedAggressive int    `json:"summarized_aggressive"`
	Forgotten            int    `json:"forgotten"`
	SummariesWritten     int    `json:"summaries_written"`
	Interrupted          bool   `json:"interrupted"`
}

// SweepCheckpoint records sweep progress so an interrupted sweep resumes
// without reprocessing or skipping an event. A checkpoint is scoped to one
// logical sweep: same key, same reference time, same policy.
type SweepCheckpoint struct {
	SchemaVersion     int         `json:"schema_version"`
	RelationshipKey   string      `json:"relationship_key"`
	SweepID           string      `json:"sweep_id"`
	SweepTime         time.Time   `json:"sweep_time"`
	PolicyFingerprint string      `json:"policy_fingerprint"`
	LastSeq           int64       `json:"last_seq"`
	LastEventID       string      `json:"last_event_id"`
	LastEventTime     time.Time   `json:"last_event_time"`
	Report            SweepReport `json:"report"`
}
