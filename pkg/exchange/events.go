package exchange

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// FeedEventKind discriminates notifications on an EventFeed.
type FeedEventKind string

const (
	// FeedScoreUpdated fires after an interaction is recorded and the
	// relationship's score recomputed.
	FeedScoreUpdated FeedEventKind = "score_updated"
	// FeedSweepCompleted fires after a retention sweep finishes a
	// relationship's backlog.
	FeedSweepCompleted FeedEventKind = "sweep_completed"
)

// FeedEvent is one notification. Snapshot is set for score updates,
// Report for sweep completions.
type FeedEvent struct {
	Kind            FeedEventKind
	RelationshipKey string
	At              time.Time
	Snapshot        *ScoreSnapshot
	Report          *SweepReport
}

const feedPublishTimeout = 100 * time.Millisecond

// EventFeed is an optional bounded notification stream for engine activity.
// Publishing never blocks the engine's hot path: when the buffer stays full
// past a short grace period the event is dropped and counted.
type EventFeed struct {
	ch      chan FeedEvent
	closed  bool
	dropped atomic.Uint64
	mu      sync.RWMutex
}

// NewEventFeed returns a feed with the given buffer size; zero or negative
// means 100.
func NewEventFeed(buffer int) *EventFeed {
	if buffer <= 0 {
		buffer = 100
	}
	return &EventFeed{ch: make(chan FeedEvent, buffer)}
}

func (f *EventFeed) Publish(ev FeedEvent) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return
	}

	select {
	case f.ch <- ev:
	default:
		timer := time.NewTimer(feedPublishTimeout)
		defer timer.Stop()
		select {
		case f.ch <- ev:
		case <-timer.C:
			f.dropped.Add(1)
		}
	}
}

// Next blocks until an event arrives, the feed closes, or ctx is done.
func (f *EventFeed) Next(ctx context.Context) (FeedEvent, bool) {
	select {
	case ev, ok := <-f.ch:
		if !ok {
			return FeedEvent{}, false
		}
		return ev, true
	case <-ctx.Done():
		return FeedEvent{}, false
	}
}

// Dropped reports how many events overflowed the buffer.
func (f *EventFeed) Dropped() uint64 {
	return f.dropped.Load()
}

func (f *EventFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	close(f.ch)
}
