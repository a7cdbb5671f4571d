package exchange

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const day = 24 * time.Hour

func TestRetentionPolicy_DecisionTable(t *testing.T) {
	p := DefaultRetentionPolicy()

	cases := []struct {
		name  string
		score float64
		age   time.Duration
		want  RetentionAction
	}{
		{"high value ignores age", 0.9, 365 * day, RetainFull},
		{"high fresh", 0.9, 1 * day, RetainFull},
		{"low and very old", 0.1, 100 * day, ForgetComplete},
		{"low but within summary window", 0.1, 30 * day, SummarizeAggressive},
		{"mid score past detail window", 0.5, 30 * day, SummarizeBalanced},
		{"mid score fresh", 0.5, 1 * day, RetainFull},
		{"low score fresh", 0.1, 1 * day, RetainFull},
		// Boundary conventions: inclusive on the more retentive side.
		{"exactly high threshold", 0.8, 200 * day, RetainFull},
		{"just under high threshold, old", 0.7999, 30 * day, SummarizeBalanced},
		{"exactly detail period", 0.5, 7 * day, SummarizeBalanced},
		{"just under detail period", 0.5, 7*day - time.Second, RetainFull},
		{"exactly low threshold, old", 0.2, 100 * day, SummarizeBalanced},
		{"exactly summary period, low score", 0.1, 90 * day, SummarizeAggressive},
		{"just past summary period, low score", 0.1, 90*day + time.Second, ForgetComplete},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := p.Classify(tc.score, tc.age); got != tc.want {
				t.Fatalf("Classify(%v, %v) = %s, want %s", tc.score, tc.age, got, tc.want)
			}
		})
	}
}

func TestRetentionPolicy_Pure(t *testing.T) {
	p := DefaultRetentionPolicy()
	first := p.Classify(0.42, 33*day)
	for i := 0; i < 100; i++ {
		if got := p.Classify(0.42, 33*day); got != first {
			t.Fatalf("classifier not pure: call %d returned %s, first returned %s", i, got, first)
		}
	}
}

func TestRetentionPolicy_ValidateFailsFast(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*RetentionPolicy)
	}{
		{"low above high", func(p *RetentionPolicy) { p.LowValueThreshold = 0.9 }},
		{"low equals high", func(p *RetentionPolicy) { p.LowValueThreshold = p.HighValueThreshold }},
		{"detail above summary", func(p *RetentionPolicy) { p.DetailRetentionPeriod = 100 * day }},
		{"zero detail period", func(p *RetentionPolicy) { p.DetailRetentionPeriod = 0 }},
		{"exemplar cap below two", func(p *RetentionPolicy) { p.ExemplarCap = 1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := DefaultRetentionPolicy()
			tc.mutate(&p)
			if err := p.Validate(); !errors.Is(err, ErrPolicyMisconfigured) {
				t.Fatalf("want ErrPolicyMisconfigured, got %v", err)
			}
		})
	}

	if err := DefaultRetentionPolicy().Validate(); err != nil {
		t.Fatalf("default policy rejected: %v", err)
	}
}

func TestRetentionPolicy_ValidateReportsCapValue(t *testing.T) {
	p := DefaultRetentionPolicy()
	p.ExemplarCap = 1
	err := p.Validate()
	if !errors.Is(err, ErrPolicyMisconfigured) {
		t.Fatalf("want ErrPolicyMisconfigured, got %v", err)
	}
	if !strings.Contains(err.Error(), "exemplar_cap 1") {
		t.Fatalf("error should name the offending cap value: %v", err)
	}
}

func TestRetentionPolicy_FingerprintTracksThresholds(t *testing.T) {
	a := DefaultRetentionPolicy()
	b := DefaultRetentionPolicy()
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatalf("identical policies produced different fingerprints")
	}
	b.LowValueThreshold = 0.25
	if a.Fingerprint() == b.Fingerprint() {
		t.Fatalf("different policies produced identical fingerprints")
	}
}
