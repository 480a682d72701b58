// Package pipeline orchestrates the ingestion cycle: fetch, normalize,
// resolve geography, persist, match storm reports, and recompute triage.
// Stage failures after the fetch are isolated so a broken report feed cannot
// take down alert ingestion.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-alert-triage/internal/config"
	"github.com/couchcryptid/storm-alert-triage/internal/domain"
	"github.com/couchcryptid/storm-alert-triage/internal/geo"
	"github.com/couchcryptid/storm-alert-triage/internal/lsr"
	"github.com/couchcryptid/storm-alert-triage/internal/observability"
	"github.com/couchcryptid/storm-alert-triage/internal/triage"
)

// AlertSource fetches the active alert features for a set of regions.
type AlertSource interface {
	FetchActive(ctx context.Context, regions []string) ([]domain.Feature, error)
}

// Resolver resolves impacted ZIPs for a batch of alerts.
type Resolver interface {
	ResolveAll(ctx context.Context, alerts []*domain.Alert) map[string]geo.Resolution
}

// ReportEngine runs storm-report ingestion and summarization.
type ReportEngine interface {
	Run(ctx context.Context, alertIDs []string) (lsr.Stats, error)
	Summarize(ctx context.Context, alertID string) (domain.ReportSummary, error)
}

// Store is the persistence surface the pipeline writes through.
type Store interface {
	UpsertAlerts(ctx context.Context, alerts []domain.EnrichedAlert) error
	SystemOwnedAlerts(ctx context.Context, alertIDs []string) ([]domain.EnrichedAlert, error)
	UpdateSummary(ctx context.Context, alertID string, summary domain.ReportSummary) error
	UpdateScore(ctx context.Context, alertID string, flags domain.InterestingFlags, damageScore int) error
	UpdateSystemTriage(ctx context.Context, alertID string, status domain.TriageStatus, reasons []string, confidence domain.Confidence) error
	SetHold(ctx context.Context, alertID string, status domain.HoldStatus) error
}

// CycleStats summarizes one ingestion cycle for the run log.
type CycleStats struct {
	Fetched       int
	Active        int
	Upserted      int
	ZipsResolved  int
	ReportStats   lsr.Stats
	Rescored      int
	HoldsOpened   int
	StageFailures int
}

// Pipeline drives the poll loop.
type Pipeline struct {
	source   AlertSource
	resolver Resolver
	engine   ReportEngine
	store    Store

	regions      []string
	activation   domain.ActivationConfig
	thresholds   triage.Thresholds
	pollInterval time.Duration
	inferZip     bool

	logger  *slog.Logger
	metrics *observability.Metrics
	ready   atomic.Bool
}

// New wires the pipeline from its stages.
func New(cfg *config.Config, source AlertSource, resolver Resolver, engine ReportEngine, store Store, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		source:   source,
		resolver: resolver,
		engine:   engine,
		store:    store,
		regions:  cfg.FeedRegions,
		activation: domain.ActivationConfig{
			AllowedEvents: cfg.AllowedEvents,
			IncludeWatch:  cfg.IncludeWatch,
		},
		thresholds: triage.Thresholds{
			HailInches:        cfg.InterestingHailInches,
			WindMPH:           cfg.InterestingWindMPH,
			FreezeRareRegions: cfg.FreezeRareRegions,
		},
		pollInterval: cfg.PollInterval,
		inferZip:     cfg.InferZip,
		logger:       logger,
		metrics:      metrics,
	}
}

// CheckReadiness returns nil once at least one cycle has completed.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no ingestion cycle has completed yet")
	}
	return nil
}

// Run executes ingestion cycles until the context is cancelled. Cycle
// failures back off exponentially; a success resets the cadence.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "regions", p.regions, "poll_interval", p.pollInterval)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	backoff := 30 * time.Second
	maxBackoff := 10 * time.Minute

	for {
		stats, err := p.RunCycle(ctx)
		if ctx.Err() != nil {
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		}

		wait := p.pollInterval
		if err != nil {
			p.logger.Error("cycle failed", "error", err)
			wait = backoff
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		} else {
			backoff = 30 * time.Second
			p.ready.Store(true)
			p.logger.Info("cycle complete",
				"fetched", stats.Fetched,
				"active", stats.Active,
				"upserted", stats.Upserted,
				"bulletins", stats.ReportStats.BulletinsFetched,
				"observations", stats.ReportStats.ObservationsFound,
				"new_matches", stats.ReportStats.NewMatches,
				"rescored", stats.Rescored,
				"holds_opened", stats.HoldsOpened,
				"stage_failures", stats.StageFailures)
		}

		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		case <-time.After(wait):
		}
	}
}

// RunCycle executes one ingestion cycle. Only the feed fetch is fatal:
// downstream stage errors are counted, logged, and skipped.
func (p *Pipeline) RunCycle(ctx context.Context) (CycleStats, error) {
	var stats CycleStats
	start := time.Now()
	p.metrics.CyclesTotal.Inc()

	features, err := p.source.FetchActive(ctx, p.regions)
	if err != nil {
		p.metrics.CycleFailures.Inc()
		return stats, err
	}
	stats.Fetched = len(features)
	p.metrics.AlertsFetched.Add(float64(len(features)))

	active := p.normalize(features)
	stats.Active = len(active)
	if len(active) == 0 {
		p.metrics.CycleDuration.Observe(time.Since(start).Seconds())
		return stats, nil
	}

	resolutions := p.resolveGeography(ctx, active, &stats)

	now := domain.Now()
	rows := make([]domain.EnrichedAlert, 0, len(active))
	activeIDs := make([]string, 0, len(active))
	signalsByID := make(map[string]domain.TextSignals, len(active))
	for _, alert := range active {
		rows = append(rows, buildRow(alert, resolutions[alert.ID], now))
		activeIDs = append(activeIDs, alert.ID)
		signalsByID[alert.ID] = domain.ExtractTextSignals(alert.Headline, alert.Description, alert.Instruction)
	}

	if err := p.store.UpsertAlerts(ctx, rows); err != nil {
		p.metrics.CycleFailures.Inc()
		return stats, err
	}
	stats.Upserted = len(rows)
	p.metrics.AlertsUpserted.Add(float64(len(rows)))

	p.runReportStage(ctx, activeIDs, &stats)
	p.runScoringStage(ctx, activeIDs, signalsByID, &stats)

	p.metrics.CycleDuration.Observe(time.Since(start).Seconds())
	return stats, nil
}

// normalize converts raw features to alerts and keeps the active subset.
func (p *Pipeline) normalize(features []domain.Feature) []*domain.Alert {
	var active []*domain.Alert
	for _, f := range features {
		alert := domain.NormalizeFeature(f)
		if alert == nil {
			continue
		}
		if !domain.ClassifyActivation(alert, p.activation).Actionable {
			continue
		}
		active = append(active, alert)
	}
	return active
}

func (p *Pipeline) resolveGeography(ctx context.Context, active []*domain.Alert, stats *CycleStats) map[string]geo.Resolution {
	if !p.inferZip {
		return map[string]geo.Resolution{}
	}
	stageStart := time.Now()
	resolutions := p.resolver.ResolveAll(ctx, active)
	p.metrics.StageDuration.WithLabelValues("geography").Observe(time.Since(stageStart).Seconds())
	for _, res := range resolutions {
		stats.ZipsResolved += len(res.Zips)
	}
	return resolutions
}

// runReportStage ingests storm reports and matches them against this cycle's
// alerts. Isolated: a report feed outage degrades enrichment, not ingestion.
func (p *Pipeline) runReportStage(ctx context.Context, alertIDs []string, stats *CycleStats) {
	stageStart := time.Now()
	reportStats, err := p.engine.Run(ctx, alertIDs)
	p.metrics.StageDuration.WithLabelValues("storm_reports").Observe(time.Since(stageStart).Seconds())
	if err != nil {
		stats.StageFailures++
		p.metrics.StageFailures.WithLabelValues("storm_reports").Inc()
		p.logger.Error("storm report stage failed", "error", err)
		return
	}
	stats.ReportStats = reportStats
}

// runScoringStage recomputes summary, score, triage, and hold state for the
// system-owned alerts in this cycle. Per-alert failures are isolated.
func (p *Pipeline) runScoringStage(ctx context.Context, alertIDs []string, signalsByID map[string]domain.TextSignals, stats *CycleStats) {
	stageStart := time.Now()
	defer func() {
		p.metrics.StageDuration.WithLabelValues("scoring").Observe(time.Since(stageStart).Seconds())
	}()

	alerts, err := p.store.SystemOwnedAlerts(ctx, alertIDs)
	if err != nil {
		stats.StageFailures++
		p.metrics.StageFailures.WithLabelValues("scoring").Inc()
		p.logger.Error("scoring stage failed", "error", err)
		return
	}

	for i := range alerts {
		if ctx.Err() != nil {
			return
		}
		if err := p.rescoreAlert(ctx, &alerts[i], signalsByID[alerts[i].AlertID], stats); err != nil {
			stats.StageFailures++
			p.metrics.StageFailures.WithLabelValues("scoring").Inc()
			p.logger.Error("rescore failed", "alert_id", alerts[i].AlertID, "error", err)
		}
	}
}

// rescoreAlert recomputes the full derived state for one system-owned alert.
// signals carries the alert-text fallback magnitudes for unconfirmed alerts;
// zero value when the caller has no alert text in hand.
func (p *Pipeline) rescoreAlert(ctx context.Context, alert *domain.EnrichedAlert, signals domain.TextSignals, stats *CycleStats) error {
	summary, err := p.engine.Summarize(ctx, alert.AlertID)
	if err != nil {
		return err
	}
	if err := p.store.UpdateSummary(ctx, alert.AlertID, summary); err != nil {
		return err
	}

	score := triage.Compute(alert.Event, alert.Regions, summary, signals, p.thresholds)
	if err := p.store.UpdateScore(ctx, alert.AlertID, score.Flags, score.DamageScore); err != nil {
		return err
	}

	result := triage.ComputeTriage(triage.Input{
		AlertClass:  alert.AlertClass,
		GeomPresent: alert.GeomPresent,
		MatchCount:  summary.MatchCount,
		Flags:       score.Flags,
		HailMax:     summary.HailMaxInches,
		WindMax:     summary.WindMaxMPH,
	})
	if err := p.store.UpdateSystemTriage(ctx, alert.AlertID, result.Status, result.Reasons, result.Confidence); err != nil {
		return err
	}
	stats.Rescored++

	return p.updateHold(ctx, alert, summary.MatchCount, stats)
}

// updateHold opens or closes the confirmation hold. Only warnings with
// geometry can be confirmed by a report, so only they wait; a match closes
// the hold for any class. Expiry is the rechecker's job, never decided here.
func (p *Pipeline) updateHold(ctx context.Context, alert *domain.EnrichedAlert, matchCount int, stats *CycleStats) error {
	switch {
	case matchCount > 0 && alert.HoldStatus != domain.HoldMatched:
		return p.store.SetHold(ctx, alert.AlertID, domain.HoldMatched)
	case matchCount == 0 && alert.AlertClass == domain.ClassWarning && alert.GeomPresent && alert.HoldStatus == domain.HoldNone:
		stats.HoldsOpened++
		return p.store.SetHold(ctx, alert.AlertID, domain.HoldAwaiting)
	default:
		return nil
	}
}

// buildRow projects a normalized alert plus its ZIP resolution into the
// persistent row shape.
func buildRow(a *domain.Alert, res geo.Resolution, now time.Time) domain.EnrichedAlert {
	geomPresent := a.GeomPresent()
	return domain.EnrichedAlert{
		AlertID:     a.ID,
		Event:       a.Event,
		Status:      a.Status,
		MessageType: a.MessageType,
		Severity:    a.Severity,
		Certainty:   a.Certainty,
		Urgency:     a.Urgency,
		Headline:    a.Headline,
		AreaDesc:    a.AreaDesc,

		Sent:      a.Sent,
		Effective: a.Effective,
		Onset:     a.Onset,
		Expires:   a.Expires,
		Ends:      a.Ends,

		GeometryJSON: a.Geometry,
		GeomPresent:  geomPresent,

		Zips:         domain.StringList(res.Zips),
		ZipCount:     len(res.Zips),
		Regions:      domain.StringList(a.Regions),
		AreaSqMiles:  res.AreaSqMiles,
		ZipDensity:   domain.ZipDensity(len(res.Zips), res.AreaSqMiles),
		GeoMethod:    domain.DeriveGeoMethod(geomPresent, a.ZoneCodes),
		ZipInference: domain.DeriveZipInferenceMethod(geomPresent, len(res.Zips)),
		AlertClass:   domain.DeriveAlertClass(a.Event),

		FirstSeenAt: now,
		LastSeenAt:  now,
	}
}
