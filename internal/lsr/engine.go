package lsr

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/couchcryptid/storm-alert-triage/internal/config"
	"github.com/couchcryptid/storm-alert-triage/internal/domain"
	"github.com/couchcryptid/storm-alert-triage/internal/feed"
	"github.com/couchcryptid/storm-alert-triage/internal/observability"
)

// BulletinSource supplies recent report bulletins from the upstream feed.
// The int is the number of bulletins skipped due to individual fetch errors.
type BulletinSource interface {
	FetchRecentReports(ctx context.Context) ([]feed.Bulletin, int, error)
}

// Store is the persistence surface the engine needs. Matching is set based:
// InsertMatches joins observations against alert geometries inside the
// database and inserts only new (alert, observation) pairs.
type Store interface {
	UpsertObservations(ctx context.Context, observations []domain.StormReportObservation) error
	InsertMatches(ctx context.Context, alertIDs []string, timeBuffer time.Duration, maxDistanceMeters float64) (int64, error)
	MatchedObservations(ctx context.Context, alertID string) ([]domain.StormReportObservation, error)
}

// Stats summarizes one engine run.
type Stats struct {
	BulletinsFetched  int
	ObservationsFound int
	NewMatches        int64
}

// Engine drives storm-report ingestion: bulletin discovery, line parsing,
// observation persistence, and geometry matching.
type Engine struct {
	source BulletinSource
	store  Store

	timeBuffer     time.Duration
	distanceMeters float64

	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewEngine wires the engine from its dependencies.
func NewEngine(cfg *config.Config, source BulletinSource, store Store, logger *slog.Logger, metrics *observability.Metrics) *Engine {
	return &Engine{
		source:         source,
		store:          store,
		timeBuffer:     time.Duration(cfg.TimeBufferHours) * time.Hour,
		distanceMeters: cfg.MatchDistanceMeters,
		logger:         logger,
		metrics:        metrics,
	}
}

// Run ingests recent bulletins and matches their observations against the
// given alerts. Observation upserts are idempotent, so re-ingesting an
// already-seen bulletin is a no-op.
func (e *Engine) Run(ctx context.Context, alertIDs []string) (Stats, error) {
	stats, err := e.RefreshObservations(ctx)
	if err != nil {
		return stats, err
	}

	matches, err := e.Match(ctx, alertIDs)
	if err != nil {
		return stats, err
	}
	stats.NewMatches = matches
	return stats, nil
}

// RefreshObservations discovers recent bulletins, parses them, and upserts
// the observations without matching. The recheck loop calls this before
// re-matching held alerts so bulletins issued after the main cycle are seen.
func (e *Engine) RefreshObservations(ctx context.Context) (Stats, error) {
	var stats Stats

	bulletins, skipped, err := e.source.FetchRecentReports(ctx)
	if err != nil {
		return stats, err
	}
	stats.BulletinsFetched = len(bulletins)
	e.metrics.BulletinsFetched.Add(float64(len(bulletins)))
	if skipped > 0 {
		e.metrics.BulletinFetchSkipped.Add(float64(skipped))
		e.logger.Warn("bulletins skipped", "count", skipped)
	}

	var observations []domain.StormReportObservation
	for _, b := range bulletins {
		observations = append(observations, ParseBulletin(b.Text, b.ID, b.IssuedAt)...)
	}
	stats.ObservationsFound = len(observations)
	e.metrics.ObservationsParsed.Add(float64(len(observations)))

	if len(observations) > 0 {
		if err := e.store.UpsertObservations(ctx, observations); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// Match runs set-based matching for the given alerts against all stored
// observations and returns the number of newly inserted matches.
func (e *Engine) Match(ctx context.Context, alertIDs []string) (int64, error) {
	if len(alertIDs) == 0 {
		return 0, nil
	}
	matches, err := e.store.InsertMatches(ctx, alertIDs, e.timeBuffer, e.distanceMeters)
	if err != nil {
		return 0, err
	}
	e.metrics.MatchesInserted.Add(float64(matches))
	return matches, nil
}

// maxSummarySnippets caps the raw-line excerpts carried on an alert summary.
const maxSummarySnippets = 3

// snippetMaxLen bounds each stored raw-line excerpt.
const snippetMaxLen = 160

// Summarize aggregates the matched observations for one alert into the
// persisted report summary. Snippets are the raw lines of the most recent
// observations, truncated.
func (e *Engine) Summarize(ctx context.Context, alertID string) (domain.ReportSummary, error) {
	observations, err := e.store.MatchedObservations(ctx, alertID)
	if err != nil {
		return domain.ReportSummary{}, err
	}
	return BuildSummary(observations), nil
}

// BuildSummary folds matched observations into a report summary.
func BuildSummary(observations []domain.StormReportObservation) domain.ReportSummary {
	summary := domain.ReportSummary{MatchCount: len(observations)}
	if len(observations) == 0 {
		return summary
	}

	for _, o := range observations {
		if o.HailInches != nil && (summary.HailMaxInches == nil || *o.HailInches > *summary.HailMaxInches) {
			v := *o.HailInches
			summary.HailMaxInches = &v
		}
		if o.WindMPH != nil && (summary.WindMaxMPH == nil || *o.WindMPH > *summary.WindMaxMPH) {
			v := *o.WindMPH
			summary.WindMaxMPH = &v
		}
		switch o.EventType {
		case domain.EventTornado, domain.EventFunnelCloud:
			summary.TornadoCount++
		case domain.EventFlashFlood, domain.EventHeavyRain:
			summary.FloodCount++
		}
		summary.DamageKeywordHits += domain.CountDamageKeywords(o.RawLine)
	}

	recent := make([]domain.StormReportObservation, len(observations))
	copy(recent, observations)
	sort.SliceStable(recent, func(i, j int) bool {
		return occurredAfter(recent[i], recent[j])
	})
	for i := 0; i < len(recent) && i < maxSummarySnippets; i++ {
		summary.TopSnippets = append(summary.TopSnippets, truncateSnippet(recent[i].RawLine))
	}
	return summary
}

// occurredAfter orders observations newest first; untimed ones sink to the end.
func occurredAfter(a, b domain.StormReportObservation) bool {
	switch {
	case a.OccurredAt == nil:
		return false
	case b.OccurredAt == nil:
		return true
	default:
		return a.OccurredAt.After(*b.OccurredAt)
	}
}

func truncateSnippet(line string) string {
	if len(line) <= snippetMaxLen {
		return line
	}
	return line[:snippetMaxLen]
}
