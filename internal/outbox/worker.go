package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/storm-alert-triage/internal/domain"
)

// Sender pushes one delivery to the downstream transport and returns the
// remote job id when the destination assigns one.
type Sender interface {
	Send(ctx context.Context, entry Entry) (remoteJobID string, err error)
}

// Worker drains queued outbox rows. Rows move queued -> sending -> sent or
// failed; a crash mid-send leaves the row in sending for manual inspection
// rather than risking a double delivery.
type Worker struct {
	store  Store
	sender Sender

	pollInterval time.Duration
	batchSize    int

	logger *slog.Logger
}

// NewWorker wires the delivery worker.
func NewWorker(store Store, sender Sender, pollInterval time.Duration, batchSize int, logger *slog.Logger) *Worker {
	return &Worker{
		store:        store,
		sender:       sender,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		logger:       logger,
	}
}

// RunOnce drains one batch of queued rows and returns how many were
// processed. Send failures mark the row failed and keep draining.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	rows, err := w.store.ListByStatus(ctx, StatusQueued, w.batchSize)
	if err != nil {
		return 0, err
	}

	for _, row := range rows {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		w.processOne(ctx, row)
	}
	return len(rows), nil
}

func (w *Worker) processOne(ctx context.Context, row Entry) {
	if err := w.store.SetStatus(ctx, row.ID, StatusSending); err != nil {
		w.logger.Error("outbox claim failed", "id", row.ID, "error", err)
		return
	}

	remoteJobID, err := w.sender.Send(ctx, row)
	now := domain.Now()
	if err != nil {
		w.logger.Warn("delivery failed", "id", row.ID, "alert_id", row.AlertID, "error", err)
		if uerr := w.store.RecordAttempt(ctx, row.ID, StatusFailed, "", err.Error(), now); uerr != nil {
			w.logger.Error("outbox update failed", "id", row.ID, "error", uerr)
		}
		return
	}

	w.logger.Info("delivery sent", "id", row.ID, "alert_id", row.AlertID, "remote_job_id", remoteJobID)
	if uerr := w.store.RecordAttempt(ctx, row.ID, StatusSent, remoteJobID, "", now); uerr != nil {
		w.logger.Error("outbox update failed", "id", row.ID, "error", uerr)
	}
}

// Run polls until the context is canceled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.Info("delivery worker started", "poll_interval", w.pollInterval, "batch_size", w.batchSize)
	for {
		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("delivery batch failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
