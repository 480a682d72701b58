package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/couchcryptid/storm-alert-triage/internal/domain"
	"github.com/couchcryptid/storm-alert-triage/internal/triage"
)

// ApplyTriageAction performs one operator mutation atomically: status flip,
// ownership change, and the audit row commit or roll back together.
// A reset recomputes the system decision from the row's current state.
func (s *Store) ApplyTriageAction(ctx context.Context, alertID string, action domain.TriageAction, actor, note string) (*domain.EnrichedAlert, error) {
	var updated *domain.EnrichedAlert

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		alert, err := applyTriageTx(tx, alertID, action, actor, note)
		if err != nil {
			return err
		}
		updated = alert
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// applyTriageTx performs one status flip plus its audit row inside the
// caller's transaction.
func applyTriageTx(tx *gorm.DB, alertID string, action domain.TriageAction, actor, note string) (*domain.EnrichedAlert, error) {
	var alert domain.EnrichedAlert
	if err := tx.First(&alert, "alert_id = ?", alertID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAlertNotFound
		}
		return nil, err
	}

	prev := alert.TriageStatus
	updates := map[string]any{}

	if action == domain.ActionResetToSystem {
		result := triage.ComputeTriage(triage.Input{
			AlertClass:  alert.AlertClass,
			GeomPresent: alert.GeomPresent,
			MatchCount:  alert.MatchCount,
			Flags:       alert.InterestingFlags,
			HailMax:     alert.HailMaxInches,
			WindMax:     alert.WindMaxMPH,
		})
		alert.TriageStatus = result.Status
		alert.TriageSource = domain.SourceSystem
		alert.TriageReasons = domain.StringList(result.Reasons)
		alert.Confidence = result.Confidence
		updates["triage_status"] = result.Status
		updates["triage_status_source"] = domain.SourceSystem
		updates["triage_reasons"] = domain.StringList(result.Reasons)
		updates["confidence_level"] = result.Confidence
	} else {
		status, ok := triage.ActionToStatus(action)
		if !ok {
			return nil, fmt.Errorf("unknown triage action %q", action)
		}
		alert.TriageStatus = status
		alert.TriageSource = domain.SourceOperator
		updates["triage_status"] = status
		updates["triage_status_source"] = domain.SourceOperator
	}

	if err := tx.Model(&domain.EnrichedAlert{}).Where("alert_id = ?", alertID).Updates(updates).Error; err != nil {
		return nil, err
	}

	audit := domain.TriageAuditEntry{
		ID:         uuid.NewString(),
		AlertID:    alertID,
		Actor:      actor,
		Action:     action,
		PrevStatus: prev,
		NewStatus:  alert.TriageStatus,
		Note:       note,
		CreatedAt:  domain.Now(),
	}
	if err := tx.Create(&audit).Error; err != nil {
		return nil, err
	}

	return &alert, nil
}

// BulkResult reports a bulk triage outcome: which ids applied and which were
// rejected, with the reason.
type BulkResult struct {
	Applied []string            `json:"applied"`
	Failed  []BulkFailure       `json:"failed"`
	Action  domain.TriageAction `json:"action"`
}

// BulkFailure is one rejected id in a bulk operation.
type BulkFailure struct {
	AlertID string `json:"alert_id"`
	Reason  string `json:"reason"`
}

// BulkTriage applies one action to many alerts in a single transaction:
// every known alert's status flip and audit row commit together or the batch
// rolls back. Unknown ids are filtered into the failure list up front and do
// not poison the rest.
func (s *Store) BulkTriage(ctx context.Context, alertIDs []string, action domain.TriageAction, actor, note string) (*BulkResult, error) {
	result := &BulkResult{Action: action}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var known []string
		if err := tx.Model(&domain.EnrichedAlert{}).
			Where("alert_id IN ?", alertIDs).
			Pluck("alert_id", &known).Error; err != nil {
			return err
		}
		knownSet := make(map[string]struct{}, len(known))
		for _, id := range known {
			knownSet[id] = struct{}{}
		}

		for _, id := range alertIDs {
			if _, ok := knownSet[id]; !ok {
				result.Failed = append(result.Failed, BulkFailure{AlertID: id, Reason: "not found"})
				continue
			}
			if _, err := applyTriageTx(tx, id, action, actor, note); err != nil {
				return err
			}
			result.Applied = append(result.Applied, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// TriageAuditForAlert returns the audit trail for one alert, newest first.
func (s *Store) TriageAuditForAlert(ctx context.Context, alertID string) ([]domain.TriageAuditEntry, error) {
	var entries []domain.TriageAuditEntry
	err := s.db.WithContext(ctx).
		Where("alert_id = ?", alertID).
		Order("created_at DESC").
		Find(&entries).Error
	return entries, err
}
