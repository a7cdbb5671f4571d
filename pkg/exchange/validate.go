package exchange

import (
	"fmt"
	"math"
	"strings"
)

// ValidateEvent checks a raw event for structural and ordering validity
// against the relationship's current state (nil if the relationship is new).
// On failure nothing has been mutated; the returned error wraps
// ErrInvalidEvent or ErrOutOfOrderEvent.
func ValidateEvent(ev InteractionEvent, state *RelationshipState) error {
	if strings.TrimSpace(ev.EventID) == "" {
		return fmt.Errorf("%w: empty event_id", ErrInvalidEvent)
	}
	if strings.TrimSpace(ev.RelationshipKey) == "" {
		return fmt.Errorf("%w: empty relationship_key", ErrInvalidEvent)
	}
	if ev.Timestamp.IsZero() {
		return fmt.Errorf("%w: zero timestamp", ErrInvalidEvent)
	}
	if !ev.RequestKind.Valid() {
		return fmt.Errorf("%w: request_kind %q", ErrInvalidEvent, ev.RequestKind)
	}
	if err := checkNonNegative("amount_requested", ev.AmountRequested); err != nil {
		return err
	}
	if err := checkNonNegative("amount_provided", ev.AmountProvided); err != nil {
		return err
	}
	if err := checkNonNegative("initiator_effort", ev.InitiatorEffort); err != nil {
		return err
	}
	if err := checkNonNegative("responder_effort", ev.ResponderEffort); err != nil {
		return err
	}
	if math.IsNaN(ev.ResponseQuality) || ev.ResponseQuality < 0 || ev.ResponseQuality > 1 {
		return fmt.Errorf("%w: response_quality %v outside [0,1]", ErrInvalidEvent, ev.ResponseQuality)
	}
	if math.IsNaN(ev.OutcomeValue) || math.IsInf(ev.OutcomeValue, 0) {
		return fmt.Errorf("%w: outcome_value %v", ErrInvalidEvent, ev.OutcomeValue)
	}

	if state != nil && ev.Timestamp.Before(state.LastUpdateTime) {
		return fmt.Errorf("%w: event at %s precedes last update %s",
			ErrOutOfOrderEvent, ev.Timestamp.Format(timeLayout), state.LastUpdateTime.Format(timeLayout))
	}
	return nil
}

func checkNonNegative(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return fmt.Errorf("%w: %s %v must be a non-negative number", ErrInvalidEvent, field, v)
	}
	return nil
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"
