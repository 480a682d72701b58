package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/couchcryptid/storm-alert-triage/internal/domain"
)

// UpsertObservations writes parsed report lines keyed by their deterministic
// observation id. Re-parsing a bulletin produces the same ids, so conflicts
// are silently ignored.
func (s *Store) UpsertObservations(ctx context.Context, observations []domain.StormReportObservation) error {
	if len(observations) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "observation_id"}},
		DoNothing: true,
	}).CreateInBatches(observations, 200).Error
	if err != nil {
		return fmt.Errorf("upsert observations: %w", err)
	}
	return nil
}

// MatchedObservations returns the observations matched to one alert, newest
// occurrence first.
func (s *Store) MatchedObservations(ctx context.Context, alertID string) ([]domain.StormReportObservation, error) {
	var observations []domain.StormReportObservation
	err := s.db.WithContext(ctx).
		Joins("JOIN storm_report_matches m ON m.observation_id = storm_report_observations.observation_id").
		Where("m.alert_id = ?", alertID).
		Order("storm_report_observations.occurred_at DESC NULLS LAST").
		Find(&observations).Error
	if err != nil {
		return nil, fmt.Errorf("matched observations: %w", err)
	}
	return observations, nil
}

// AlertsAwaitingRecheck returns held alerts due for another look: never
// checked, or last checked before the cutoff. Oldest check first so no alert
// starves.
func (s *Store) AlertsAwaitingRecheck(ctx context.Context, checkedBefore time.Time, limit int) ([]domain.EnrichedAlert, error) {
	var alerts []domain.EnrichedAlert
	err := s.db.WithContext(ctx).
		Where("lsr_status = ?", domain.HoldAwaiting).
		Where("lsr_last_checked_at IS NULL OR lsr_last_checked_at < ?", checkedBefore).
		Order("lsr_last_checked_at ASC NULLS FIRST").
		Limit(limit).
		Find(&alerts).Error
	if err != nil {
		return nil, fmt.Errorf("awaiting recheck: %w", err)
	}
	return alerts, nil
}

// UpdateHold transitions the hold status and bumps the check bookkeeping in
// one statement.
func (s *Store) UpdateHold(ctx context.Context, alertID string, status domain.HoldStatus, checkedAt time.Time) error {
	return s.db.WithContext(ctx).Model(&domain.EnrichedAlert{}).
		Where("alert_id = ?", alertID).
		Updates(map[string]any{
			"lsr_status":           status,
			"lsr_last_checked_at":  checkedAt,
			"lsr_recheck_attempts": gorm.Expr("lsr_recheck_attempts + 1"),
		}).Error
}
