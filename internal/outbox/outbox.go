package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/storm-alert-triage/internal/domain"
	"github.com/couchcryptid/storm-alert-triage/internal/observability"
	"github.com/couchcryptid/storm-alert-triage/internal/triage"
)

// Status is the delivery lifecycle state of an outbox row.
type Status string

const (
	StatusQueued   Status = "queued"
	StatusSending  Status = "sending"
	StatusSent     Status = "sent"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
)

// ErrAlreadySent rejects retry and cancel on rows that have gone out; a sent
// delivery is a historical fact, not a mutable state.
var ErrAlreadySent = errors.New("delivery already sent")

// ErrDeliveryInFlight rejects cancel while the worker holds the row.
var ErrDeliveryInFlight = errors.New("delivery is in flight")

// ErrNotFound reports a missing outbox row.
var ErrNotFound = errors.New("outbox entry not found")

// Entry is one delivery outbox row. EventKey is unique: enqueueing the same
// alert/version/ZIP-set twice refreshes the existing row instead of
// inserting a second one.
type Entry struct {
	ID          string          `gorm:"column:id;primaryKey;size:36" json:"id"`
	EventKey    string          `gorm:"column:event_key;uniqueIndex" json:"event_key"`
	AlertID     string          `gorm:"column:alert_id;index" json:"alert_id"`
	Destination string          `gorm:"column:destination" json:"destination"`
	Payload     json.RawMessage `gorm:"column:payload;type:jsonb" json:"payload"`
	Status      Status          `gorm:"column:status;size:16;default:queued" json:"status"`

	AttemptCount  int        `gorm:"column:attempt_count;default:0" json:"attempt_count"`
	LastAttemptAt *time.Time `gorm:"column:last_attempt_at" json:"last_attempt_at"`
	LastError     string     `gorm:"column:last_error" json:"last_error,omitempty"`
	RemoteJobID   string     `gorm:"column:remote_job_id" json:"remote_job_id,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// TableName overrides the gorm default.
func (Entry) TableName() string { return "zip_delivery_outbox" }

// Store is the persistence surface for outbox rows.
type Store interface {
	// InsertOnce inserts the entry unless a row with its event key exists.
	// On conflict the existing row is refreshed (status back to queued,
	// payload and destination replaced, sent rows left untouched) and
	// returned with inserted=false.
	InsertOnce(ctx context.Context, entry *Entry) (*Entry, bool, error)
	GetEntry(ctx context.Context, id string) (*Entry, error)
	ListByStatus(ctx context.Context, status Status, limit int) ([]Entry, error)
	SetStatus(ctx context.Context, id string, status Status) error
	// RecordAttempt finalizes one send attempt: status, attempt counter,
	// timestamp, and either the remote job id or the error text.
	RecordAttempt(ctx context.Context, id string, status Status, remoteJobID, lastError string, at time.Time) error
}

// DefaultDestination is the downstream consumer for enqueued deliveries.
const DefaultDestination = "property_enrichment_v1"

// Service owns the business rules around the outbox: idempotent enqueue and
// the sent-is-final transitions.
type Service struct {
	store      Store
	thresholds triage.Thresholds

	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewService wires the outbox service.
func NewService(store Store, thresholds triage.Thresholds, logger *slog.Logger, metrics *observability.Metrics) *Service {
	return &Service{store: store, thresholds: thresholds, logger: logger, metrics: metrics}
}

// Enqueue builds the delivery payload for an alert and inserts it once.
// Returns the outbox row and whether this call created it.
func (s *Service) Enqueue(ctx context.Context, alert *domain.EnrichedAlert, destination string) (*Entry, bool, error) {
	if destination == "" {
		destination = DefaultDestination
	}

	payload := BuildPayload(alert, s.thresholds)
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, false, fmt.Errorf("marshal payload: %w", err)
	}

	entry := &Entry{
		ID:          uuid.NewString(),
		EventKey:    payload.EventKey,
		AlertID:     alert.AlertID,
		Destination: destination,
		Payload:     raw,
		Status:      StatusQueued,
	}

	existing, inserted, err := s.store.InsertOnce(ctx, entry)
	if err != nil {
		return nil, false, err
	}
	if inserted {
		s.metrics.OutboxEnqueued.Inc()
		s.logger.Info("delivery enqueued", "alert_id", alert.AlertID, "event_key", payload.EventKey, "destination", destination)
	} else {
		s.metrics.OutboxDuplicates.Inc()
	}
	return existing, inserted, nil
}

// Retry re-queues a failed or canceled delivery. Sent rows are immutable.
func (s *Service) Retry(ctx context.Context, id string) error {
	entry, err := s.store.GetEntry(ctx, id)
	if err != nil {
		return err
	}
	if entry.Status == StatusSent {
		return ErrAlreadySent
	}
	return s.store.SetStatus(ctx, id, StatusQueued)
}

// Cancel withdraws a queued or failed delivery. Sent rows are immutable and
// a row mid-send belongs to the worker until it lands in sent or failed.
func (s *Service) Cancel(ctx context.Context, id string) error {
	entry, err := s.store.GetEntry(ctx, id)
	if err != nil {
		return err
	}
	switch entry.Status {
	case StatusSent:
		return ErrAlreadySent
	case StatusSending:
		return ErrDeliveryInFlight
	case StatusCanceled:
		return nil
	}
	return s.store.SetStatus(ctx, id, StatusCanceled)
}
