package exchange

import (
	"errors"
	"math"
	"testing"
	"time"
)

func validEvent(key string, at time.Time) InteractionEvent {
	return InteractionEvent{
		SchemaVersion:   SchemaVersion,
		EventID:         "ev-1",
		RelationshipKey: key,
		Timestamp:       at,
		AmountRequested: 50,
		AmountProvided:  100,
		RequestKind:     RequestQuery,
		ResponseQuality: 0.9,
		InitiatorEffort: 1,
		ResponderEffort: 1,
		OutcomeValue:    1,
	}
}

func TestValidateEvent_AcceptsValid(t *testing.T) {
	ev := validEvent("rel-a", time.Now())
	if err := ValidateEvent(ev, nil); err != nil {
		t.Fatalf("valid event rejected: %v", err)
	}
}

func TestValidateEvent_RangeViolations(t *testing.T) {
	base := validEvent("rel-a", time.Now())

	cases := []struct {
		name   string
		mutate func(*InteractionEvent)
	}{
		{"negative amount_requested", func(ev *InteractionEvent) { ev.AmountRequested = -1 }},
		{"negative amount_provided", func(ev *InteractionEvent) { ev.AmountProvided = -0.5 }},
		{"negative initiator_effort", func(ev *InteractionEvent) { ev.InitiatorEffort = -2 }},
		{"negative responder_effort", func(ev *InteractionEvent) { ev.ResponderEffort = -2 }},
		{"quality above one", func(ev *InteractionEvent) { ev.ResponseQuality = 1.01 }},
		{"quality below zero", func(ev *InteractionEvent) { ev.ResponseQuality = -0.01 }},
		{"quality NaN", func(ev *InteractionEvent) { ev.ResponseQuality = math.NaN() }},
		{"outcome NaN", func(ev *InteractionEvent) { ev.OutcomeValue = math.NaN() }},
		{"unknown request kind", func(ev *InteractionEvent) { ev.RequestKind = "barter" }},
		{"empty event id", func(ev *InteractionEvent) { ev.EventID = " " }},
		{"empty relationship key", func(ev *InteractionEvent) { ev.RelationshipKey = "" }},
		{"zero timestamp", func(ev *InteractionEvent) { ev.Timestamp = time.Time{} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev := base
			tc.mutate(&ev)
			err := ValidateEvent(ev, nil)
			if !errors.Is(err, ErrInvalidEvent) {
				t.Fatalf("want ErrInvalidEvent, got %v", err)
			}
		})
	}
}

func TestValidateEvent_OutOfOrder(t *testing.T) {
	now := time.Now()
	state := &RelationshipState{RelationshipKey: "rel-a", LastUpdateTime: now}

	ev := validEvent("rel-a", now.Add(-time.Minute))
	if err := ValidateEvent(ev, state); !errors.Is(err, ErrOutOfOrderEvent) {
		t.Fatalf("want ErrOutOfOrderEvent, got %v", err)
	}

	// Equal timestamps are allowed: monotonically non-decreasing.
	ev.Timestamp = now
	if err := ValidateEvent(ev, state); err != nil {
		t.Fatalf("equal timestamp rejected: %v", err)
	}
}
