package handlers_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/slotwise/slotwise/internal/engine"
	"github.com/slotwise/slotwise/internal/handlers"
	"github.com/slotwise/slotwise/internal/model"
	"github.com/slotwise/slotwise/internal/testfixtures"
)

func minutes(v int) *int {
	return &v
}

func intPtr(v int) *int {
	return &v
}

func setup(t *testing.T, policy model.BookingPolicy) (*handlers.BookingHandler, *testfixtures.Store, *testfixtures.Clock) {
	t.Helper()
	store := testfixtures.NewStore()
	store.SeedBusiness(model.Business{
		ID:               "biz-1",
		OwnerID:          "owner-1",
		Timezone:         "America/Sao_Paulo",
		SlotDurationMins: 30,
		Policy:           policy,
	})
	store.SeedSchedule(model.AvailabilitySchedule{
		ID:         "sched-1",
		BusinessID: "biz-1",
		Windows: []model.AvailabilityWindow{
			{Weekday: time.Monday, OpensMinute: minutes(540), ClosesMinute: minutes(1020)},
		},
	})
	clock := testfixtures.NewClock(time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := engine.New(store, logger, engine.WithClock(clock.NowFunc()))
	return handlers.NewBookingHandler(eng, logger), store, clock
}

func postJSON(t *testing.T, handler http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestSlots_ListsOpenSlots(t *testing.T) {
	h, _, _ := setup(t, model.BookingPolicy{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?business_id=biz-1&from=2026-03-02&to=2026-03-02", nil)
	rec := httptest.NewRecorder()
	h.Slots(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var items []struct {
		StartTime string `json:"start_time"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(items) != 16 {
		t.Fatalf("expected 16 slots, got %d", len(items))
	}
	// 09:00 America/Sao_Paulo is 12:00 UTC.
	if items[0].StartTime != "2026-03-02T12:00:00Z" {
		t.Fatalf("unexpected first slot %s", items[0].StartTime)
	}
}

func TestSlots_ValidatesQuery(t *testing.T) {
	h, _, _ := setup(t, model.BookingPolicy{})

	for _, target := range []string{
		"/api/v1/public/slots?from=2026-03-02&to=2026-03-02",
		"/api/v1/public/slots?business_id=biz-1&from=march-2&to=2026-03-02",
		"/api/v1/public/slots?business_id=biz-1&from=2026-03-05&to=2026-03-02",
	} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rec := httptest.NewRecorder()
		h.Slots(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, rec.Code)
		}
	}
}

func TestBook_CreatesAndConflicts(t *testing.T) {
	h, _, _ := setup(t, model.BookingPolicy{})
	body := `{"business_id":"biz-1","customer_id":"cust-1","scheduled_at":"2026-03-02T10:00:00-03:00"}`

	rec := postJSON(t, h.Book, "/api/v1/public/book", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		AppointmentID string `json:"appointment_id"`
		Status        string `json:"status"`
		DurationMins  int    `json:"duration_minutes"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.AppointmentID == "" || resp.Status != "pending" || resp.DurationMins != 30 {
		t.Fatalf("unexpected response %+v", resp)
	}

	rec = postJSON(t, h.Book, "/api/v1/public/book", body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for the taken slot, got %d", rec.Code)
	}
	var errResp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.Error != "slot_conflict" {
		t.Fatalf("expected slot_conflict, got %q", errResp.Error)
	}
}

func TestBook_PolicyRejectionIs422(t *testing.T) {
	h, _, _ := setup(t, model.BookingPolicy{MinLeadHours: intPtr(72)})
	body := `{"business_id":"biz-1","customer_id":"cust-1","scheduled_at":"2026-03-02T10:00:00-03:00"}`

	rec := postJSON(t, h.Book, "/api/v1/public/book", body)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestBook_UnknownBusinessIs404(t *testing.T) {
	h, _, _ := setup(t, model.BookingPolicy{})
	body := `{"business_id":"missing","customer_id":"cust-1","scheduled_at":"2026-03-02T10:00:00-03:00"}`

	rec := postJSON(t, h.Book, "/api/v1/public/book", body)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestTransition_MapsTransitionErrorsTo409(t *testing.T) {
	h, store, _ := setup(t, model.BookingPolicy{})
	rec := postJSON(t, h.Book, "/api/v1/public/book",
		`{"business_id":"biz-1","customer_id":"cust-1","scheduled_at":"2026-03-02T10:00:00-03:00"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("booking failed: %d", rec.Code)
	}
	var created struct {
		AppointmentID string `json:"appointment_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	// pending -> cancelled is not an edge in the graph.
	rec = postJSON(t, h.Transition, "/api/v1/appointments/transition",
		`{"business_id":"biz-1","appointment_id":"`+created.AppointmentID+`","to_status":"cancelled","actor_id":"owner-1"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = postJSON(t, h.Transition, "/api/v1/appointments/transition",
		`{"business_id":"biz-1","appointment_id":"`+created.AppointmentID+`","to_status":"confirmed","actor_id":"owner-1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if stored, _ := store.StoredAppointment(created.AppointmentID); stored.Status != model.StatusConfirmed {
		t.Fatalf("expected confirmed persisted, got %s", stored.Status)
	}

	// Garbage status is malformed, not a graph error.
	rec = postJSON(t, h.Transition, "/api/v1/appointments/transition",
		`{"business_id":"biz-1","appointment_id":"`+created.AppointmentID+`","to_status":"archived","actor_id":"owner-1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestReschedule_ReturnsMovedAppointment(t *testing.T) {
	h, _, _ := setup(t, model.BookingPolicy{})
	rec := postJSON(t, h.Book, "/api/v1/public/book",
		`{"business_id":"biz-1","customer_id":"cust-1","scheduled_at":"2026-03-02T10:00:00-03:00"}`)
	var created struct {
		AppointmentID string `json:"appointment_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	postJSON(t, h.Transition, "/api/v1/appointments/transition",
		`{"business_id":"biz-1","appointment_id":"`+created.AppointmentID+`","to_status":"confirmed","actor_id":"owner-1"}`)

	rec = postJSON(t, h.Reschedule, "/api/v1/appointments/reschedule",
		`{"business_id":"biz-1","appointment_id":"`+created.AppointmentID+`","scheduled_at":"2026-03-02T14:00:00-03:00","actor_id":"cust-1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Status          string `json:"status"`
		ScheduledAt     string `json:"scheduled_at"`
		RescheduledFrom string `json:"rescheduled_from"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "rescheduled" {
		t.Fatalf("expected rescheduled, got %s", resp.Status)
	}
	if resp.ScheduledAt != "2026-03-02T17:00:00Z" {
		t.Fatalf("unexpected scheduled_at %s", resp.ScheduledAt)
	}
	if resp.RescheduledFrom != "2026-03-02T13:00:00Z" {
		t.Fatalf("unexpected rescheduled_from %s", resp.RescheduledFrom)
	}
}

func TestPolicyCheck_Kinds(t *testing.T) {
	h, _, _ := setup(t, model.BookingPolicy{CancellationNoticeHours: intPtr(48)})
	rec := postJSON(t, h.Book, "/api/v1/public/book",
		`{"business_id":"biz-1","customer_id":"cust-1","scheduled_at":"2026-03-02T10:00:00-03:00"}`)
	var created struct {
		AppointmentID string `json:"appointment_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	check := func(body string) bool {
		t.Helper()
		rec := postJSON(t, h.PolicyCheck, "/api/v1/policy/check", body)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var resp struct {
			Allowed bool `json:"allowed"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		return resp.Allowed
	}

	// 25h of notice against a 48h threshold: blocked for the customer,
	// bypassed for the owner.
	if check(`{"kind":"cancellation","business_id":"biz-1","appointment_id":"` + created.AppointmentID + `","actor_id":"cust-1"}`) {
		t.Fatal("customer cancellation should be blocked")
	}
	if !check(`{"kind":"cancellation","business_id":"biz-1","appointment_id":"` + created.AppointmentID + `","actor_id":"owner-1"}`) {
		t.Fatal("owner cancellation should be allowed")
	}
	if !check(`{"kind":"slot_request","business_id":"biz-1","scheduled_at":"2026-03-02T14:00:00-03:00"}`) {
		t.Fatal("slot request with no lead policy should be allowed")
	}

	rec = postJSON(t, h.PolicyCheck, "/api/v1/policy/check", `{"kind":"unknown","business_id":"biz-1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown kind, got %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h, _, _ := setup(t, model.BookingPolicy{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/slots", nil)
	rec := httptest.NewRecorder()
	h.Slots(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/public/book", nil)
	rec = httptest.NewRecorder()
	h.Book(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
