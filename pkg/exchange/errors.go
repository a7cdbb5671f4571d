package exchange

import "errors"

var (
	// ErrInvalidEvent means a field was outside its declared range. The
	// caller must fix the record before resubmitting; retrying as-is fails
	// identically.
	ErrInvalidEvent = errors.New("invalid interaction event")

	// ErrOutOfOrderEvent means the event timestamp precedes the
	// relationship's last update. The caller must drop or re-timestamp.
	ErrOutOfOrderEvent = errors.New("out-of-order interaction event")

	// ErrPolicyMisconfigured means retention thresholds violate their
	// required ordering. Raised at policy construction, never per event.
	ErrPolicyMisconfigured = errors.New("retention policy misconfigured")

	// ErrSweepInterrupted is the cooperative cancellation signal for a
	// retention sweep. The sweep is resumable; this is not a failure.
	ErrSweepInterrupted = errors.New("retention sweep interrupted")

	// ErrUnknownRelationship is returned for reads of a key the engine has
	// never seen.
	ErrUnknownRelationship = errors.New("unknown relationship")
)
