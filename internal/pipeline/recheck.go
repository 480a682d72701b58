package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/storm-alert-triage/internal/domain"
	"github.com/couchcryptid/storm-alert-triage/internal/lsr"
	"github.com/couchcryptid/storm-alert-triage/internal/observability"
)

// RecheckLoop periodically re-runs report matching for held alerts,
// independent of the ingestion cadence so a slow cycle cannot delay
// confirmation.
type RecheckLoop struct {
	rechecker *lsr.Rechecker
	pipeline  *Pipeline
	store     Store

	interval time.Duration

	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewRecheckLoop wires the recheck loop. The pipeline reference is used to
// rescore alerts whose hold closed with a confirming match.
func NewRecheckLoop(rechecker *lsr.Rechecker, pipeline *Pipeline, store Store, interval time.Duration, logger *slog.Logger, metrics *observability.Metrics) *RecheckLoop {
	return &RecheckLoop{
		rechecker: rechecker,
		pipeline:  pipeline,
		store:     store,
		interval:  interval,
		logger:    logger,
		metrics:   metrics,
	}
}

// Run processes recheck batches until the context is cancelled.
func (l *RecheckLoop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.logger.Info("recheck loop started", "interval", l.interval)
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("recheck loop stopping", "reason", ctx.Err())
			return nil
		case <-ticker.C:
		}

		stats, err := l.rechecker.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.logger.Error("recheck pass failed", "error", err)
			continue
		}
		if stats.Checked > 0 {
			l.logger.Info("recheck pass complete",
				"checked", stats.Checked, "matched", stats.Matched, "expired", stats.Expired)
		}

		l.rescoreMatched(ctx, stats.MatchedIDs)
	}
}

// rescoreMatched recomputes triage for alerts whose hold just closed with a
// match, so confirmation is reflected without waiting for the next cycle.
func (l *RecheckLoop) rescoreMatched(ctx context.Context, alertIDs []string) {
	if len(alertIDs) == 0 {
		return
	}
	alerts, err := l.store.SystemOwnedAlerts(ctx, alertIDs)
	if err != nil {
		l.logger.Error("post-recheck rescore failed", "error", err)
		return
	}
	var stats CycleStats
	for i := range alerts {
		if err := l.pipeline.rescoreAlert(ctx, &alerts[i], domain.TextSignals{}, &stats); err != nil {
			l.logger.Error("post-recheck rescore failed", "alert_id", alerts[i].AlertID, "error", err)
		}
	}
}
