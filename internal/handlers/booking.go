// Package handlers is the HTTP facade of the booking engine for the host
// application. It translates engine error codes into status codes; all
// requests arrive already authorized and tenant-scoped.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/slotwise/slotwise/internal/engine"
	"github.com/slotwise/slotwise/internal/model"
)

type BookingHandler struct {
	engine *engine.Engine
	logger *slog.Logger
}

func NewBookingHandler(eng *engine.Engine, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{engine: eng, logger: logger}
}

type slotItem struct {
	StartTime string `json:"start_time"`
}

type bookRequest struct {
	BusinessID   string `json:"business_id"`
	CustomerID   string `json:"customer_id"`
	ScheduledAt  string `json:"scheduled_at"`
	DurationMins int    `json:"duration_minutes"`
}

type appointmentResponse struct {
	AppointmentID   string `json:"appointment_id"`
	BusinessID      string `json:"business_id"`
	ScheduledAt     string `json:"scheduled_at"`
	DurationMins    int    `json:"duration_minutes"`
	Status          string `json:"status"`
	FinishedAt      string `json:"finished_at,omitempty"`
	RescheduledFrom string `json:"rescheduled_from,omitempty"`
}

type transitionRequest struct {
	BusinessID    string `json:"business_id"`
	AppointmentID string `json:"appointment_id"`
	ToStatus      string `json:"to_status"`
	ActorID       string `json:"actor_id"`
	FinishedAt    string `json:"finished_at"`
}

type rescheduleRequest struct {
	BusinessID    string `json:"business_id"`
	AppointmentID string `json:"appointment_id"`
	ScheduledAt   string `json:"scheduled_at"`
	ActorID       string `json:"actor_id"`
}

type policyCheckRequest struct {
	Kind          string `json:"kind"`
	BusinessID    string `json:"business_id"`
	AppointmentID string `json:"appointment_id"`
	ActorID       string `json:"actor_id"`
	ScheduledAt   string `json:"scheduled_at"`
}

func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	businessID := strings.TrimSpace(r.URL.Query().Get("business_id"))
	fromStr := strings.TrimSpace(r.URL.Query().Get("from"))
	toStr := strings.TrimSpace(r.URL.Query().Get("to"))
	if businessID == "" || fromStr == "" || toStr == "" {
		http.Error(w, "business_id, from, and to are required", http.StatusBadRequest)
		return
	}

	from, err := time.Parse("2006-01-02", fromStr)
	if err != nil {
		http.Error(w, "invalid from date", http.StatusBadRequest)
		return
	}
	to, err := time.Parse("2006-01-02", toStr)
	if err != nil {
		http.Error(w, "invalid to date", http.StatusBadRequest)
		return
	}
	if to.Before(from) {
		http.Error(w, "to must not be before from", http.StatusBadRequest)
		return
	}

	limit := 100
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	slots, err := h.engine.ListAvailableSlots(r.Context(), businessID, from, to, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}

	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{StartTime: s.UTC().Format(time.RFC3339)})
	}
	h.writeJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	if req.BusinessID == "" {
		http.Error(w, "business_id required", http.StatusBadRequest)
		return
	}
	scheduledAt, err := time.Parse(time.RFC3339, strings.TrimSpace(req.ScheduledAt))
	if err != nil {
		http.Error(w, "invalid scheduled_at", http.StatusBadRequest)
		return
	}

	appt, err := h.engine.CommitBooking(r.Context(), engine.CommitRequest{
		BusinessID:   req.BusinessID,
		CustomerID:   strings.TrimSpace(req.CustomerID),
		ScheduledAt:  scheduledAt,
		DurationMins: req.DurationMins,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toResponse(appt))
}

func (h *BookingHandler) Transition(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.BusinessID == "" || req.AppointmentID == "" {
		http.Error(w, "business_id and appointment_id required", http.StatusBadRequest)
		return
	}

	appt, err := h.engine.TransitionAppointment(r.Context(), req.BusinessID, req.AppointmentID,
		model.Status(strings.TrimSpace(req.ToStatus)), model.Actor{ID: strings.TrimSpace(req.ActorID)}, strings.TrimSpace(req.FinishedAt))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toResponse(appt))
}

func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.BusinessID == "" || req.AppointmentID == "" {
		http.Error(w, "business_id and appointment_id required", http.StatusBadRequest)
		return
	}
	scheduledAt, err := time.Parse(time.RFC3339, strings.TrimSpace(req.ScheduledAt))
	if err != nil {
		http.Error(w, "invalid scheduled_at", http.StatusBadRequest)
		return
	}

	appt, err := h.engine.RescheduleAppointment(r.Context(), req.BusinessID, req.AppointmentID,
		scheduledAt, model.Actor{ID: strings.TrimSpace(req.ActorID)})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toResponse(appt))
}

func (h *BookingHandler) PolicyCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req policyCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	if req.BusinessID == "" {
		http.Error(w, "business_id required", http.StatusBadRequest)
		return
	}
	actor := model.Actor{ID: strings.TrimSpace(req.ActorID)}

	var allowed bool
	var err error
	switch strings.TrimSpace(req.Kind) {
	case "cancellation":
		allowed, err = h.engine.CheckCancellation(r.Context(), req.BusinessID, strings.TrimSpace(req.AppointmentID), actor)
	case "reschedule":
		allowed, err = h.engine.CheckReschedule(r.Context(), req.BusinessID, strings.TrimSpace(req.AppointmentID), actor)
	case "slot_request":
		var candidate time.Time
		candidate, err = time.Parse(time.RFC3339, strings.TrimSpace(req.ScheduledAt))
		if err != nil {
			http.Error(w, "invalid scheduled_at", http.StatusBadRequest)
			return
		}
		allowed, err = h.engine.CheckSlotRequest(r.Context(), req.BusinessID, candidate)
	default:
		http.Error(w, "kind must be cancellation, reschedule, or slot_request", http.StatusBadRequest)
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"allowed": allowed})
}

func toResponse(appt model.Appointment) appointmentResponse {
	resp := appointmentResponse{
		AppointmentID: appt.ID,
		BusinessID:    appt.BusinessID,
		ScheduledAt:   appt.ScheduledAt.UTC().Format(time.RFC3339),
		DurationMins:  appt.DurationMins,
		Status:        string(appt.Status),
	}
	if appt.FinishedAt != nil {
		resp.FinishedAt = appt.FinishedAt.UTC().Format(time.RFC3339)
	}
	if appt.RescheduledFrom != nil {
		resp.RescheduledFrom = appt.RescheduledFrom.UTC().Format(time.RFC3339)
	}
	return resp
}

func (h *BookingHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func (h *BookingHandler) writeError(w http.ResponseWriter, err error) {
	var engineErr *model.Error
	if !errors.As(err, &engineErr) {
		h.logger.Error("booking engine failure", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	status := http.StatusInternalServerError
	switch {
	case model.IsNotFound(err):
		status = http.StatusNotFound
	case model.IsConflict(err):
		status = http.StatusConflict
	case model.IsPolicy(err):
		status = http.StatusUnprocessableEntity
	case model.IsTransition(err):
		status = http.StatusConflict
	case model.IsMalformed(err):
		status = http.StatusBadRequest
	}

	data, merr := json.Marshal(map[string]string{
		"error":   string(engineErr.Code),
		"message": engineErr.Reason,
	})
	if merr != nil {
		http.Error(w, engineErr.Error(), status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
