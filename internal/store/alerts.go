package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/couchcryptid/storm-alert-triage/internal/domain"
)

// ErrAlertNotFound reports a lookup for an unknown alert id.
var ErrAlertNotFound = errors.New("alert not found")

// UpsertAlerts writes the feed-derived columns for a batch of alerts, keyed
// by alert id. Conflicts update only what the feed owns: triage, summary,
// and hold columns are managed by their own updaters and survive re-ingest.
func (s *Store) UpsertAlerts(ctx context.Context, alerts []domain.EnrichedAlert) error {
	if len(alerts) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "alert_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"event", "status", "message_type", "severity", "certainty", "urgency",
			"headline", "area_desc", "sent", "effective", "onset", "expires", "ends",
			"geometry_json", "geom_present",
			"zips", "zip_count", "impacted_states", "area_sq_miles", "zip_density",
			"geo_method", "zip_inference_method", "alert_class",
			"last_seen_at",
		}),
	}).Create(alerts).Error
	if err != nil {
		return fmt.Errorf("upsert alerts: %w", err)
	}
	return nil
}

// GetAlert fetches one enriched alert by id.
func (s *Store) GetAlert(ctx context.Context, alertID string) (*domain.EnrichedAlert, error) {
	var alert domain.EnrichedAlert
	err := s.db.WithContext(ctx).First(&alert, "alert_id = ?", alertID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

// GetAlertsByIDs fetches a batch of alerts; missing ids are simply absent
// from the result.
func (s *Store) GetAlertsByIDs(ctx context.Context, alertIDs []string) ([]domain.EnrichedAlert, error) {
	if len(alertIDs) == 0 {
		return nil, nil
	}
	var alerts []domain.EnrichedAlert
	err := s.db.WithContext(ctx).Where("alert_id IN ?", alertIDs).Find(&alerts).Error
	return alerts, err
}

// UpdateSummary writes the storm-report aggregate for one alert.
func (s *Store) UpdateSummary(ctx context.Context, alertID string, summary domain.ReportSummary) error {
	return s.db.WithContext(ctx).Model(&domain.EnrichedAlert{}).
		Where("alert_id = ?", alertID).
		Updates(map[string]any{
			"lsr_match_count":     summary.MatchCount,
			"hail_max_inches":     summary.HailMaxInches,
			"wind_max_mph":        summary.WindMaxMPH,
			"tornado_count":       summary.TornadoCount,
			"flood_count":         summary.FloodCount,
			"damage_keyword_hits": summary.DamageKeywordHits,
			"lsr_snippets":        summary.TopSnippets,
		}).Error
}

// UpdateScore writes the threshold flags and damage score for one alert.
func (s *Store) UpdateScore(ctx context.Context, alertID string, flags domain.InterestingFlags, damageScore int) error {
	return s.db.WithContext(ctx).Model(&domain.EnrichedAlert{}).
		Where("alert_id = ?", alertID).
		Updates(map[string]any{
			"interesting_hail":        flags.Hail,
			"interesting_wind":        flags.Wind,
			"interesting_rare_freeze": flags.RareFreeze,
			"interesting_any":         flags.Any,
			"damage_score":            damageScore,
		}).Error
}

// UpdateSystemTriage writes a recomputed triage decision, but only onto
// system-owned rows. Operator overrides are sticky until an explicit reset.
func (s *Store) UpdateSystemTriage(ctx context.Context, alertID string, status domain.TriageStatus, reasons []string, confidence domain.Confidence) error {
	return s.db.WithContext(ctx).Model(&domain.EnrichedAlert{}).
		Where("alert_id = ? AND triage_status_source = ?", alertID, domain.SourceSystem).
		Updates(map[string]any{
			"triage_status":    status,
			"triage_reasons":   domain.StringList(reasons),
			"confidence_level": confidence,
		}).Error
}

// SetHold assigns the confirmation hold status without touching the check
// bookkeeping. Used when an alert first enters or leaves the hold.
func (s *Store) SetHold(ctx context.Context, alertID string, status domain.HoldStatus) error {
	return s.db.WithContext(ctx).Model(&domain.EnrichedAlert{}).
		Where("alert_id = ?", alertID).
		Update("lsr_status", status).Error
}

// ListFilter narrows and orders alert listings for the operator surface.
type ListFilter struct {
	Region       string
	TriageStatus domain.TriageStatus
	AlertClass   domain.AlertClass
	Interesting  bool
	SortBy       string
	SortDesc     bool
	Limit        int
	Offset       int
}

// listSortColumns whitelists operator-facing sort keys; anything else falls
// back to sent time.
var listSortColumns = map[string]string{
	"damage_score":    "damage_score",
	"sent":            "sent",
	"lsr_match_count": "lsr_match_count",
	"zip_count":       "zip_count",
	"confidence":      "confidence_level",
}

// ListAlerts returns a filtered, sorted page of alerts.
func (s *Store) ListAlerts(ctx context.Context, filter ListFilter) ([]domain.EnrichedAlert, error) {
	q := s.db.WithContext(ctx).Model(&domain.EnrichedAlert{})

	if filter.Region != "" {
		q = q.Where("impacted_states @> ?", `["`+strings.ToUpper(filter.Region)+`"]`)
	}
	if filter.TriageStatus != "" {
		q = q.Where("triage_status = ?", filter.TriageStatus)
	}
	if filter.AlertClass != "" {
		q = q.Where("alert_class = ?", filter.AlertClass)
	}
	if filter.Interesting {
		q = q.Where("interesting_any = ?", true)
	}

	column, ok := listSortColumns[filter.SortBy]
	if !ok {
		column = "sent"
	}
	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}
	q = q.Order(column + " " + direction + " NULLS LAST")

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q = q.Limit(limit).Offset(filter.Offset)

	var alerts []domain.EnrichedAlert
	err := q.Find(&alerts).Error
	return alerts, err
}

// SystemOwnedAlerts returns the alerts among the given ids whose triage is
// still system owned.
func (s *Store) SystemOwnedAlerts(ctx context.Context, alertIDs []string) ([]domain.EnrichedAlert, error) {
	if len(alertIDs) == 0 {
		return nil, nil
	}
	var alerts []domain.EnrichedAlert
	err := s.db.WithContext(ctx).
		Where("alert_id IN ? AND triage_status_source = ?", alertIDs, domain.SourceSystem).
		Find(&alerts).Error
	return alerts, err
}
