package lsr

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/storm-alert-triage/internal/config"
	"github.com/couchcryptid/storm-alert-triage/internal/domain"
	"github.com/couchcryptid/storm-alert-triage/internal/observability"
)

// HoldStore is the persistence surface for the confirmation hold state
// machine.
type HoldStore interface {
	// AlertsAwaitingRecheck returns held alerts whose last check is older
	// than the cutoff, including never-checked ones.
	AlertsAwaitingRecheck(ctx context.Context, checkedBefore time.Time, limit int) ([]domain.EnrichedAlert, error)
	// UpdateHold transitions the hold status and bumps the check bookkeeping.
	UpdateHold(ctx context.Context, alertID string, status domain.HoldStatus, checkedAt time.Time) error
}

// RecheckStats summarizes one recheck pass.
type RecheckStats struct {
	Checked int
	Matched int
	Expired int
	// MatchedIDs are alerts whose hold closed with confirmation this pass;
	// their triage needs recomputing.
	MatchedIDs []string
}

const recheckBatchLimit = 200

// Rechecker re-runs report discovery and matching for alerts held awaiting
// confirmation.
// Holds close as matched when a report arrives, or as expired once the alert
// has been over for the configured expiry window.
type Rechecker struct {
	engine *Engine
	store  HoldStore

	interval   time.Duration
	holdExpiry time.Duration

	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewRechecker wires the rechecker from its dependencies.
func NewRechecker(cfg *config.Config, engine *Engine, store HoldStore, logger *slog.Logger, metrics *observability.Metrics) *Rechecker {
	return &Rechecker{
		engine:     engine,
		store:      store,
		interval:   cfg.RecheckInterval,
		holdExpiry: cfg.HoldExpiry,
		logger:     logger,
		metrics:    metrics,
	}
}

// RunOnce processes one batch of due holds. Every processed alert gets its
// check bookkeeping bumped regardless of outcome, so a failing alert cannot
// pin the head of the queue.
func (r *Rechecker) RunOnce(ctx context.Context) (RecheckStats, error) {
	var stats RecheckStats

	now := domain.Now()
	due, err := r.store.AlertsAwaitingRecheck(ctx, now.Add(-r.interval), recheckBatchLimit)
	if err != nil {
		return stats, err
	}
	if len(due) == 0 {
		return stats, nil
	}

	// Pick up bulletins issued since the last pass before re-matching, so a
	// late report can close a hold. Matching below still works off already
	// stored observations when discovery fails.
	if _, err := r.engine.RefreshObservations(ctx); err != nil {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		r.logger.Warn("recheck bulletin refresh failed", "error", err)
	}

	for _, alert := range due {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Checked++
		r.metrics.RechecksRun.Inc()

		matches, err := r.engine.Match(ctx, []string{alert.AlertID})
		if err != nil {
			r.logger.Warn("recheck matching failed", "alert_id", alert.AlertID, "error", err)
		}

		status := domain.HoldAwaiting
		switch {
		case err == nil && (matches > 0 || alert.MatchCount > 0):
			status = domain.HoldMatched
			stats.Matched++
			stats.MatchedIDs = append(stats.MatchedIDs, alert.AlertID)
		case r.holdExpired(alert, now):
			status = domain.HoldExpired
			stats.Expired++
		}

		if err := r.store.UpdateHold(ctx, alert.AlertID, status, now); err != nil {
			r.logger.Warn("hold update failed", "alert_id", alert.AlertID, "error", err)
		}
	}

	return stats, nil
}

// holdExpired reports whether the hold has outlived the expiry window,
// measured from when the alert ended (falling back to first observation).
func (r *Rechecker) holdExpired(alert domain.EnrichedAlert, now time.Time) bool {
	ref := alert.FirstSeenAt
	if alert.Expires != nil {
		ref = *alert.Expires
	}
	if alert.Ends != nil {
		ref = *alert.Ends
	}
	return now.After(ref.Add(r.holdExpiry))
}
