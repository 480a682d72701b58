package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/couchcryptid/storm-alert-triage/internal/outbox"
)

// InsertOnce inserts an outbox entry keyed by event key. When the key already
// exists the row is refreshed instead: status back to queued, payload and
// destination replaced. Sent rows are terminal and returned untouched. The
// caller gets inserted=false for both conflict outcomes.
func (s *Store) InsertOnce(ctx context.Context, entry *outbox.Entry) (*outbox.Entry, bool, error) {
	refresh := clause.Assignments(map[string]any{
		"status":      outbox.StatusQueued,
		"payload":     entry.Payload,
		"destination": entry.Destination,
	})
	notSent := clause.Where{Exprs: []clause.Expression{
		clause.Neq{Column: clause.Column{Table: entry.TableName(), Name: "status"}, Value: outbox.StatusSent},
	}}

	var existing outbox.Entry
	err := s.db.WithContext(ctx).First(&existing, "event_key = ?", entry.EventKey).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		// New key. A concurrent enqueue of the same key resolves through the
		// same refresh clause instead of erroring.
		result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_key"}},
			DoUpdates: refresh,
			Where:     notSent,
		}).Create(entry)
		if result.Error != nil {
			return nil, false, fmt.Errorf("insert outbox entry: %w", result.Error)
		}
		return entry, true, nil
	case err != nil:
		return nil, false, fmt.Errorf("load existing outbox entry: %w", err)
	}

	if existing.Status == outbox.StatusSent {
		return &existing, false, nil
	}
	err = s.db.WithContext(ctx).Model(&outbox.Entry{}).
		Where("id = ? AND status <> ?", existing.ID, outbox.StatusSent).
		Updates(map[string]any{
			"status":      outbox.StatusQueued,
			"payload":     entry.Payload,
			"destination": entry.Destination,
		}).Error
	if err != nil {
		return nil, false, fmt.Errorf("refresh outbox entry: %w", err)
	}
	existing.Status = outbox.StatusQueued
	existing.Payload = entry.Payload
	existing.Destination = entry.Destination
	return &existing, false, nil
}

// GetEntry fetches one outbox row by id.
func (s *Store) GetEntry(ctx context.Context, id string) (*outbox.Entry, error) {
	var entry outbox.Entry
	err := s.db.WithContext(ctx).First(&entry, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, outbox.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListByStatus returns outbox rows in a given state, oldest first.
func (s *Store) ListByStatus(ctx context.Context, status outbox.Status, limit int) ([]outbox.Entry, error) {
	var entries []outbox.Entry
	err := s.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// ListOutboxForAlert returns every delivery row for one alert, newest first.
func (s *Store) ListOutboxForAlert(ctx context.Context, alertID string) ([]outbox.Entry, error) {
	var entries []outbox.Entry
	err := s.db.WithContext(ctx).
		Where("alert_id = ?", alertID).
		Order("created_at DESC").
		Find(&entries).Error
	return entries, err
}

// SetStatus moves an outbox row to a new lifecycle state.
func (s *Store) SetStatus(ctx context.Context, id string, status outbox.Status) error {
	result := s.db.WithContext(ctx).Model(&outbox.Entry{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return outbox.ErrNotFound
	}
	return nil
}

// RecordAttempt finalizes one send attempt.
func (s *Store) RecordAttempt(ctx context.Context, id string, status outbox.Status, remoteJobID, lastError string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&outbox.Entry{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":          status,
			"attempt_count":   gorm.Expr("attempt_count + 1"),
			"last_attempt_at": at,
			"last_error":      lastError,
			"remote_job_id":   remoteJobID,
		}).Error
}
