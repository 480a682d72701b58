package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/couchcryptid/storm-alert-triage/internal/domain"
	"github.com/couchcryptid/storm-alert-triage/internal/outbox"
	"github.com/couchcryptid/storm-alert-triage/internal/store"
)

// AlertStore is the read/triage surface the API needs from persistence.
type AlertStore interface {
	GetAlert(ctx context.Context, alertID string) (*domain.EnrichedAlert, error)
	ListAlerts(ctx context.Context, filter store.ListFilter) ([]domain.EnrichedAlert, error)
	TriageAuditForAlert(ctx context.Context, alertID string) ([]domain.TriageAuditEntry, error)
	ListOutboxForAlert(ctx context.Context, alertID string) ([]outbox.Entry, error)
	ApplyTriageAction(ctx context.Context, alertID string, action domain.TriageAction, actor, note string) (*domain.EnrichedAlert, error)
	BulkTriage(ctx context.Context, alertIDs []string, action domain.TriageAction, actor, note string) (*store.BulkResult, error)
}

// DeliveryService is the outbox surface the API needs.
type DeliveryService interface {
	Enqueue(ctx context.Context, alert *domain.EnrichedAlert, destination string) (*outbox.Entry, bool, error)
	Retry(ctx context.Context, id string) error
	Cancel(ctx context.Context, id string) error
}

// API serves the operator routes.
type API struct {
	store      AlertStore
	deliveries DeliveryService
	bulkMax    int
	logger     *slog.Logger
}

// NewAPI wires the operator API.
func NewAPI(store AlertStore, deliveries DeliveryService, bulkMax int, logger *slog.Logger) *API {
	return &API{store: store, deliveries: deliveries, bulkMax: bulkMax, logger: logger}
}

func (a *API) mount(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/alerts", a.handleListAlerts)
	mux.HandleFunc("GET /v1/alerts/{id}", a.handleGetAlert)
	mux.HandleFunc("POST /v1/alerts/{id}/triage", a.handleTriageAction)
	mux.HandleFunc("POST /v1/triage/bulk", a.handleBulkTriage)
	mux.HandleFunc("POST /v1/alerts/{id}/deliver", a.handleEnqueueDelivery)
	mux.HandleFunc("GET /v1/alerts/{id}/deliveries", a.handleListDeliveries)
	mux.HandleFunc("POST /v1/outbox/{id}/retry", a.handleOutboxRetry)
	mux.HandleFunc("POST /v1/outbox/{id}/cancel", a.handleOutboxCancel)
}

func (a *API) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ListFilter{
		Region:       q.Get("state"),
		TriageStatus: domain.TriageStatus(q.Get("triage_status")),
		AlertClass:   domain.AlertClass(q.Get("alert_class")),
		Interesting:  q.Get("interesting") == "true",
		SortBy:       q.Get("sort_by"),
		SortDesc:     q.Get("sort_dir") != "asc",
	}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = n
	}
	if n, err := strconv.Atoi(q.Get("offset")); err == nil {
		filter.Offset = n
	}

	alerts, err := a.store.ListAlerts(r.Context(), filter)
	if err != nil {
		a.serverError(w, "list alerts", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts, "count": len(alerts)})
}

func (a *API) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	alertID := r.PathValue("id")
	alert, err := a.store.GetAlert(r.Context(), alertID)
	if errors.Is(err, store.ErrAlertNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "alert not found"})
		return
	}
	if err != nil {
		a.serverError(w, "get alert", err)
		return
	}

	audit, err := a.store.TriageAuditForAlert(r.Context(), alertID)
	if err != nil {
		a.serverError(w, "get audit", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alert": alert, "triage_audit": audit})
}

type triageRequest struct {
	Action domain.TriageAction `json:"action"`
	Actor  string              `json:"actor"`
	Note   string              `json:"note"`
}

var validActions = map[domain.TriageAction]bool{
	domain.ActionSetActionable: true,
	domain.ActionSetMonitoring: true,
	domain.ActionSetSuppressed: true,
	domain.ActionSetSentManual: true,
	domain.ActionResetToSystem: true,
}

func (a *API) handleTriageAction(w http.ResponseWriter, r *http.Request) {
	var req triageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if !validActions[req.Action] {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown action"})
		return
	}
	if req.Actor == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "actor is required"})
		return
	}

	alert, err := a.store.ApplyTriageAction(r.Context(), r.PathValue("id"), req.Action, req.Actor, req.Note)
	if errors.Is(err, store.ErrAlertNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "alert not found"})
		return
	}
	if err != nil {
		a.serverError(w, "triage action", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alert": alert})
}

type bulkTriageRequest struct {
	AlertIDs []string            `json:"alert_ids"`
	Action   domain.TriageAction `json:"action"`
	Actor    string              `json:"actor"`
	Note     string              `json:"note"`
}

func (a *API) handleBulkTriage(w http.ResponseWriter, r *http.Request) {
	var req bulkTriageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if !validActions[req.Action] {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown action"})
		return
	}
	if req.Actor == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "actor is required"})
		return
	}
	if len(req.AlertIDs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "alert_ids is required"})
		return
	}
	if len(req.AlertIDs) > a.bulkMax {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "too many alert_ids (max " + strconv.Itoa(a.bulkMax) + ")",
		})
		return
	}

	result, err := a.store.BulkTriage(r.Context(), req.AlertIDs, req.Action, req.Actor, req.Note)
	if err != nil {
		a.serverError(w, "bulk triage", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type deliverRequest struct {
	Destination string `json:"destination"`
}

func (a *API) handleEnqueueDelivery(w http.ResponseWriter, r *http.Request) {
	alertID := r.PathValue("id")
	var req deliverRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	alert, err := a.store.GetAlert(r.Context(), alertID)
	if errors.Is(err, store.ErrAlertNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "alert not found"})
		return
	}
	if err != nil {
		a.serverError(w, "get alert", err)
		return
	}

	entry, inserted, err := a.deliveries.Enqueue(r.Context(), alert, req.Destination)
	if err != nil {
		a.serverError(w, "enqueue delivery", err)
		return
	}
	status := http.StatusOK
	if inserted {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"entry": entry, "created": inserted})
}

func (a *API) handleListDeliveries(w http.ResponseWriter, r *http.Request) {
	entries, err := a.store.ListOutboxForAlert(r.Context(), r.PathValue("id"))
	if err != nil {
		a.serverError(w, "list deliveries", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deliveries": entries, "count": len(entries)})
}

func (a *API) handleOutboxRetry(w http.ResponseWriter, r *http.Request) {
	a.outboxTransition(w, r, a.deliveries.Retry)
}

func (a *API) handleOutboxCancel(w http.ResponseWriter, r *http.Request) {
	a.outboxTransition(w, r, a.deliveries.Cancel)
}

func (a *API) outboxTransition(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) error) {
	err := fn(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, outbox.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "outbox entry not found"})
	case errors.Is(err, outbox.ErrAlreadySent):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "delivery already sent"})
	case errors.Is(err, outbox.ErrDeliveryInFlight):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "delivery is in flight"})
	case err != nil:
		a.serverError(w, "outbox transition", err)
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (a *API) serverError(w http.ResponseWriter, op string, err error) {
	a.logger.Error(op+" failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}
