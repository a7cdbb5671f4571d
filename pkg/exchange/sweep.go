package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// sweepPageSize bounds how many backlog events one page examines between
// cooperative interruption checks.
const sweepPageSize = 128

// RunRetentionSweep applies the classifier and summarizer to every backlog
// event of a relationship, using the relationship's current score and each
// record's age at `now`. It returns counts per action taken.
//
// The sweep holds the relationship's write lock (mutual exclusion with live
// writes), checkpoints progress after every flushed batch, and honors
// context cancellation between batches: an interrupted sweep reports
// Interrupted=true with a nil error and resumes from its checkpoint when
// called again with the same now and policy.
func (e *Engine) RunRetentionSweep(ctx context.Context, key string, now time.Time, policy RetentionPolicy) (SweepReport, error) {
	if err := policy.Validate(); err != nil {
		return SweepReport{}, err
	}

	rel := e.handle(key)
	rel.mu.Lock()
	defer rel.mu.Unlock()

	if err := e.ensureLoaded(ctx, rel, key); err != nil {
		return SweepReport{}, err
	}
	if rel.state == nil {
		return SweepReport{RelationshipKey: key}, nil
	}

	report, err := e.sweepBacklog(ctx, key, rel.lastSnapshot.Score, now, policy)
	if errors.Is(err, ErrSweepInterrupted) {
		report.Interrupted = true
		e.log.Info("retention sweep interrupted",
			"relationship_key", key, "sweep_id", report.SweepID, "examined", report.Examined)
		return report, nil
	}
	if err != nil {
		return report, err
	}

	if err := e.store.ClearSweepCheckpoint(ctx, key); err != nil {
		return report, fmt.Errorf("clear sweep checkpoint for %s: %w", key, err)
	}
	e.log.Info("retention sweep complete",
		"relationship_key", key, "sweep_id", report.SweepID,
		"examined", report.Examined, "retained", report.Retained,
		"summarized_balanced", report.SummarizedBalanced,
		"summarized_aggressive", report.SummarizedAggressive,
		"forgotten", report.Forgotten)
	if e.cfg.Feed != nil {
		e.cfg.Feed.Publish(FeedEvent{
			Kind:            FeedSweepCompleted,
			RelationshipKey: key,
			At:              now,
			Report:          &report,
		})
	}
	return report, nil
}

// sweepBacklog streams the backlog in sequence order, batching contiguous
// same-action runs. Each batch is flushed durably (summary written, events
// deleted, checkpoint advanced) before the next begins, so an interruption
// never reprocesses or skips a record.
func (e *Engine) sweepBacklog(ctx context.Context, key string, score float64, now time.Time, policy RetentionPolicy) (SweepReport, error) {
	fingerprint := policy.Fingerprint()

	report := SweepReport{RelationshipKey: key, SweepID: "swp-" + uuid.NewString()}
	var cursor int64
	if cp, err := e.store.GetSweepCheckpoint(ctx, key); err != nil {
		return report, fmt.Errorf("load sweep checkpoint for %s: %w", key, err)
	} else if cp != nil && cp.SweepTime.Equal(now) && cp.PolicyFingerprint == fingerprint {
		// Same logical sweep: resume past the last durably processed event.
		report = cp.Report
		report.Interrupted = false
		cursor = cp.LastSeq
	}

	stats, err := e.store.GetLifetimeStats(ctx, key)
	if err != nil {
		return report, fmt.Errorf("load lifetime stats for %s: %w", key, err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return report, ErrSweepInterrupted
		}
		page, err := e.store.ListEvents(ctx, key, cursor, sweepPageSize)
		if err != nil {
			return report, fmt.Errorf("list backlog for %s: %w", key, err)
		}
		if len(page) == 0 {
			return report, nil
		}

		var batch []StoredEvent
		var batchAction RetentionAction
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			if err := e.flushBatch(ctx, key, batch, batchAction, now, policy, &stats, &report); err != nil {
				return err
			}
			cp := checkpointFor(key, now, fingerprint, batch[len(batch)-1], report)
			if err := e.store.SaveSweepCheckpoint(ctx, cp); err != nil {
				return fmt.Errorf("save sweep checkpoint for %s: %w", key, err)
			}
			cursor = batch[len(batch)-1].Seq
			batch = batch[:0]
			return nil
		}

		for _, se := range page {
			action := policy.Classify(score, now.Sub(se.Event.Timestamp))
			if len(batch) > 0 && action != batchAction {
				if err := flush(); err != nil {
					return report, err
				}
				if err := ctx.Err(); err != nil {
					return report, ErrSweepInterrupted
				}
			}
			batchAction = action
			batch = append(batch, se)
		}
		if err := flush(); err != nil {
			return report, err
		}
	}
}

// flushBatch makes one batch's disposition durable and updates the counters.
func (e *Engine) flushBatch(ctx context.Context, key string, batch []StoredEvent, action RetentionAction, now time.Time, policy RetentionPolicy, stats *LifetimeStats, report *SweepReport) error {
	report.Examined += len(batch)

	switch action {
	case RetainFull:
		report.Retained += len(batch)
		return nil

	case SummarizeBalanced, SummarizeAggressive:
		events := make([]InteractionEvent, len(batch))
		for i, se := range batch {
			events[i] = se.Event
		}
		sum, err := Summarize(events, action, policy.ExemplarCap, now)
		if err != nil {
			return err
		}
		if err := e.store.SaveSummary(ctx, sum); err != nil {
			return fmt.Errorf("save summary for %s: %w", key, err)
		}
		if err := e.deleteBatch(ctx, key, events); err != nil {
			return err
		}
		report.SummariesWritten++
		if action == SummarizeBalanced {
			report.SummarizedBalanced += len(batch)
		} else {
			report.SummarizedAggressive += len(batch)
		}
		return nil

	case ForgetComplete:
		events := make([]InteractionEvent, len(batch))
		for i, se := range batch {
			events[i] = se.Event
		}
		FoldForgotten(stats, events)
		if err := e.store.SaveLifetimeStats(ctx, *stats); err != nil {
			return fmt.Errorf("save lifetime stats for %s: %w", key, err)
		}
		if err := e.deleteBatch(ctx, key, events); err != nil {
			return err
		}
		report.Forgotten += len(batch)
		return nil
	}
	return fmt.Errorf("unknown retention action %q", action)
}

func (e *Engine) deleteBatch(ctx context.Context, key string, events []InteractionEvent) error {
	ids := make([]string, len(events))
	for i, ev := range events {
		ids[i] = ev.EventID
	}
	if err := e.store.DeleteEvents(ctx, key, ids); err != nil {
		return fmt.Errorf("delete swept events for %s: %w", key, err)
	}
	return nil
}

func checkpointFor(key string, now time.Time, fingerprint string, last StoredEvent, report SweepReport) SweepCheckpoint {
	return SweepCheckpoint{
		SchemaVersion:     SchemaVersion,
		RelationshipKey:   key,
		SweepID:           report.SweepID,
		SweepTime:         now,
		PolicyFingerprint: fingerprint,
		LastSeq:           last.Seq,
		LastEventID:       last.Event.EventID,
		LastEventTime:     last.Event.Timestamp,
		Report:            report,
	}
}
