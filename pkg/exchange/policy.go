package exchange

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"
)

// RetentionPolicy drives the classifier's deterministic threshold table.
type RetentionPolicy struct {
	HighValueThreshold     float64       `json:"high_value_threshold"`
	LowValueThreshold      float64       `json:"low_value_threshold"`
	DetailRetentionPeriod  time.Duration `json:"detail_retention_period"`
	SummaryRetentionPeriod time.Duration `json:"summary_retention_period"`

	// ExemplarCap bounds how many original events a balanced digest keeps,
	// including the batch minimum and maximum.
	ExemplarCap int `json:"exemplar_cap"`
}

// DefaultRetentionPolicy returns the standard thresholds.
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		HighValueThreshold:     0.8,
		LowValueThreshold:      0.2,
		DetailRetentionPeriod:  7 * 24 * time.Hour,
		SummaryRetentionPeriod: 90 * 24 * time.Hour,
		ExemplarCap:            5,
	}
}

// Validate fails fast on threshold orderings that would make the decision
// table ambiguous. Wraps ErrPolicyMisconfigured.
func (p RetentionPolicy) Validate() error {
	if p.LowValueThreshold >= p.HighValueThreshold {
		return fmt.Errorf("%w: low_value_threshold %v must be below high_value_threshold %v",
			ErrPolicyMisconfigured, p.LowValueThreshold, p.HighValueThreshold)
	}
	if p.DetailRetentionPeriod <= 0 || p.SummaryRetentionPeriod <= 0 {
		return fmt.Errorf("%w: retention periods must be positive", ErrPolicyMisconfigured)
	}
	if p.DetailRetentionPeriod >= p.SummaryRetentionPeriod {
		return fmt.Errorf("%w: detail_retention_period %v must be below summary_retention_period %v",
			ErrPolicyMisconfigured, p.DetailRetentionPeriod, p.SummaryRetentionPeriod)
	}
	if p.ExemplarCap < 2 {
		return fmt.Errorf("%w: exemplar_cap %d must be at least 2", ErrPolicyMisconfigured, p.ExemplarCap)
	}
	return nil
}

// Classify maps (score, record age) to a retention action. It is a pure
// function: no state, identical inputs always yield the identical action.
//
// The rules are evaluated in precedence order, thresholds inclusive on the
// more retentive side:
//  1. score >= high threshold         -> retain, regardless of age
//  2. age < detail period             -> retain
//  3. score < low threshold, age > summary period -> forget
//  4. score < low threshold           -> aggressive summary
//  5. otherwise                       -> balanced summary
func (p RetentionPolicy) Classify(score float64, age time.Duration) RetentionAction {
	switch {
	case score >= p.HighValueThreshold:
		return RetainFull
	case age < p.DetailRetentionPeriod:
		return RetainFull
	case score < p.LowValueThreshold && age > p.SummaryRetentionPeriod:
		return ForgetComplete
	case score < p.LowValueThreshold:
		return SummarizeAggressive
	default:
		return SummarizeBalanced
	}
}

// Fingerprint identifies a policy's decision surface. Sweeps use it to tell
// whether a stored checkpoint belongs to the same logical sweep.
func (p RetentionPolicy) Fingerprint() string {
	h := sha1.Sum([]byte(fmt.Sprintf("%v|%v|%v|%v|%d",
		p.HighValueThreshold, p.LowValueThreshold,
		p.DetailRetentionPeriod, p.SummaryRetentionPeriod, p.ExemplarCap)))
	return hex.EncodeToString(h[:])
}
