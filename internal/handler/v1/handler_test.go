package v1

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/prempal04/AyurSutra/internal/config"
	"github.com/prempal04/AyurSutra/internal/domain"
	"github.com/prempal04/AyurSutra/internal/middleware"
	"github.com/prempal04/AyurSutra/internal/repository/memory"
	"github.com/prempal04/AyurSutra/internal/service"
	"github.com/prempal04/AyurSutra/pkg/auth"
	"github.com/prempal04/AyurSutra/pkg/cache"
	"github.com/prempal04/AyurSutra/pkg/clock"
	"github.com/prempal04/AyurSutra/pkg/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var practitioner = uuid.MustParse("5e2b7c90-1d3f-4a8e-b6c2-9f0a4d7e1b35")

type testAPI struct {
	router  *gin.Engine
	jwt     *auth.JWTManager
	date    string
	patient uuid.UUID
}

// nextWeekday is the first Monday-Friday after today in the clinic timezone,
// so every slot of the day is still bookable.
func nextWeekday(s *config.Schedule) time.Time {
	d := s.Today(time.Now()).AddDate(0, 0, 1)
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	log := zap.NewNop()
	sched := config.DefaultSchedule()
	m := metrics.NewCollector("test", prometheus.NewRegistry())
	repo := memory.NewAppointmentRepository()

	auditSvc := service.NewAuditService(memory.NewAuditRepository(), m, log)
	t.Cleanup(auditSvc.Shutdown)
	avail := service.NewAvailabilityService(repo, sched, cache.NopSlotCache{}, m, log)
	appts := service.NewAppointmentService(repo, avail, auditSvc, m, log)

	jwtm := auth.NewJWTManager(config.JWTConfig{
		Secret:         "handler-test-secret-with-enough-length",
		AccessTokenTTL: time.Hour,
		Issuer:         "ayursutra-api",
	})

	r := gin.New()
	r.Use(middleware.RequestID())
	RegisterRoutes(r.Group("/api/v1"), jwtm, NewAvailabilityHandler(avail, log), NewAppointmentHandler(appts, log))

	return &testAPI{
		router:  r,
		jwt:     jwtm,
		date:    clock.FormatDate(nextWeekday(sched)),
		patient: uuid.New(),
	}
}

func (a *testAPI) token(t *testing.T, role domain.Role) string {
	t.Helper()
	claims := &domain.Claims{UserID: uuid.New(), Role: role}
	switch role {
	case domain.RoleDoctor:
		claims.StaffID = &practitioner
	case domain.RolePatient:
		claims.PatientID = &a.patient
	}
	tok, _, err := a.jwt.GenerateAccessToken(claims)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return tok
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding %q: %v", w.Body.String(), err)
	}
	return out
}

func (a *testAPI) book(t *testing.T, token, start, end string) *httptest.ResponseRecorder {
	t.Helper()
	return a.do(t, http.MethodPost, "/api/v1/appointments", token, map[string]any{
		"patient_id":      a.patient,
		"practitioner_id": practitioner,
		"date":            a.date,
		"start":           start,
		"end":             end,
	})
}

func (a *testAPI) mustBook(t *testing.T, start, end string) appointmentResponse {
	t.Helper()
	w := a.book(t, a.token(t, domain.RoleReceptionist), start, end)
	if w.Code != http.StatusCreated {
		t.Fatalf("booking %s-%s: status %d: %s", start, end, w.Code, w.Body.String())
	}
	return decode[APIResponse[appointmentResponse]](t, w).Data
}

func TestRoutes_RequireAuthentication(t *testing.T) {
	api := newTestAPI(t)
	if w := api.do(t, http.MethodGet, "/api/v1/appointments", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d", w.Code)
	}
}

func TestFreeSlots(t *testing.T) {
	api := newTestAPI(t)
	api.mustBook(t, "10:00", "11:00")

	w := api.do(t, http.MethodGet, "/api/v1/availability/"+practitioner.String()+"/"+api.date, api.token(t, domain.RolePatient), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	resp := decode[APIResponse[freeSlotsResponse]](t, w).Data
	if len(resp.Slots) != 16 {
		t.Fatalf("got %d slots", len(resp.Slots))
	}
	first := resp.Slots[0]
	if first.Start != "09:00" || first.End != "09:30" || first.StartMinute != 540 {
		t.Errorf("first slot = %+v", first)
	}
	for _, s := range resp.Slots {
		if s.Start == "10:00" || s.Start == "10:30" {
			t.Errorf("booked slot %s listed", s.Start)
		}
	}
}

func TestFreeSlots_BadParams(t *testing.T) {
	api := newTestAPI(t)
	tok := api.token(t, domain.RoleReceptionist)

	if w := api.do(t, http.MethodGet, "/api/v1/availability/not-a-uuid/"+api.date, tok, nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad id: %d", w.Code)
	}
	if w := api.do(t, http.MethodGet, "/api/v1/availability/"+practitioner.String()+"/15-10-2026", tok, nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad date: %d", w.Code)
	}
}

func TestCheck(t *testing.T) {
	api := newTestAPI(t)
	booked := api.mustBook(t, "10:00", "11:00")
	tok := api.token(t, domain.RoleReceptionist)
	base := "/api/v1/availability/" + practitioner.String() + "/" + api.date + "/check"

	w := api.do(t, http.MethodGet, base+"?start=10:30&end=11:30", tok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	res := decode[APIResponse[checkResponse]](t, w).Data
	if res.Available || len(res.Conflicts) != 1 || res.Conflicts[0].AppointmentID != booked.ID {
		t.Errorf("result = %+v", res)
	}

	res = decode[APIResponse[checkResponse]](t, api.do(t, http.MethodGet, base+"?start=11:00&end=11:30", tok, nil)).Data
	if !res.Available || len(res.Conflicts) != 0 {
		t.Errorf("adjacent slot = %+v", res)
	}

	for _, q := range []string{"?start=9:00&end=10:00", "?start=11:00", "?start=12:00&end=11:00"} {
		if w := api.do(t, http.MethodGet, base+q, tok, nil); w.Code != http.StatusBadRequest {
			t.Errorf("%s: status %d", q, w.Code)
		}
	}
}

func TestSummary(t *testing.T) {
	api := newTestAPI(t)
	api.mustBook(t, "09:00", "09:30")
	path := "/api/v1/availability/" + practitioner.String() + "/" + api.date + "/summary"

	if w := api.do(t, http.MethodGet, path, api.token(t, domain.RolePatient), nil); w.Code != http.StatusForbidden {
		t.Errorf("patient status = %d", w.Code)
	}

	w := api.do(t, http.MethodGet, path, api.token(t, domain.RoleDoctor), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	sum := decode[APIResponse[daySummaryResponse]](t, w).Data
	if sum.Occupying != 1 || sum.FreeSlots != 17 || sum.TotalSlots != 18 || sum.Hours == nil || sum.Hours.Start != "09:00" {
		t.Errorf("summary = %+v", sum)
	}
}

func TestCreate_Conflict(t *testing.T) {
	api := newTestAPI(t)
	first := api.mustBook(t, "10:00", "11:00")
	if first.Status != "scheduled" || first.Start != "10:00" || first.Date != api.date {
		t.Errorf("created = %+v", first)
	}

	w := api.book(t, api.token(t, domain.RoleReceptionist), "10:30", "11:30")
	if w.Code != http.StatusConflict {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	resp := decode[ConflictErrorResponse](t, w)
	if resp.Code != "SLOT_CONFLICT" || len(resp.Conflicts) != 1 || resp.Conflicts[0].AppointmentID != first.ID {
		t.Errorf("conflict body = %+v", resp)
	}
	if resp.Conflicts[0].Start != "10:00" || resp.Conflicts[0].End != "11:00" {
		t.Errorf("conflict slot = %+v", resp.Conflicts[0])
	}

	api.mustBook(t, "11:00", "11:30")
}

func TestCreate_Rejects(t *testing.T) {
	api := newTestAPI(t)
	tok := api.token(t, domain.RoleReceptionist)

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"malformed time", map[string]any{"patient_id": api.patient, "practitioner_id": practitioner, "date": api.date, "start": "9:00", "end": "09:30"}, http.StatusBadRequest},
		{"missing end", map[string]any{"patient_id": api.patient, "practitioner_id": practitioner, "date": api.date, "start": "09:00"}, http.StatusBadRequest},
		{"bad date", map[string]any{"patient_id": api.patient, "practitioner_id": practitioner, "date": "tomorrow", "start": "09:00", "end": "09:30"}, http.StatusBadRequest},
		{"missing practitioner", map[string]any{"patient_id": api.patient, "date": api.date, "start": "09:00", "end": "09:30"}, http.StatusBadRequest},
		{"outside hours", map[string]any{"patient_id": api.patient, "practitioner_id": practitioner, "date": api.date, "start": "19:00", "end": "19:30"}, http.StatusBadRequest},
		{"unknown type", map[string]any{"patient_id": api.patient, "practitioner_id": practitioner, "date": api.date, "start": "09:00", "end": "09:30", "type": "spa"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := api.do(t, http.MethodPost, "/api/v1/appointments", tok, tt.body); w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestCreate_PatientForOthers(t *testing.T) {
	api := newTestAPI(t)
	w := api.do(t, http.MethodPost, "/api/v1/appointments", api.token(t, domain.RolePatient), map[string]any{
		"patient_id":      uuid.New(),
		"practitioner_id": practitioner,
		"date":            api.date,
		"start":           "09:00",
		"end":             "09:30",
	})
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d", w.Code)
	}
}

func TestListAndGet(t *testing.T) {
	api := newTestAPI(t)
	a := api.mustBook(t, "09:00", "09:30")
	api.mustBook(t, "09:30", "10:00")
	tok := api.token(t, domain.RolePatient)

	w := api.do(t, http.MethodGet, "/api/v1/appointments?page_size=1&date="+api.date, tok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	page := decode[APIResponse[pageResponse]](t, w).Data
	if page.TotalCount != 2 || page.TotalPages != 2 || len(page.Appointments) != 1 || page.Appointments[0].ID != a.ID {
		t.Errorf("page = %+v", page)
	}

	if w := api.do(t, http.MethodGet, "/api/v1/appointments?status=pending", tok, nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad status filter: %d", w.Code)
	}

	if w := api.do(t, http.MethodGet, "/api/v1/appointments/"+a.ID.String(), tok, nil); w.Code != http.StatusOK {
		t.Errorf("get: %d", w.Code)
	}
	if w := api.do(t, http.MethodGet, "/api/v1/appointments/"+uuid.NewString(), tok, nil); w.Code != http.StatusNotFound {
		t.Errorf("get unknown: %d", w.Code)
	}
}

func TestReschedule(t *testing.T) {
	api := newTestAPI(t)
	a := api.mustBook(t, "10:00", "11:00")
	api.mustBook(t, "12:00", "12:30")
	tok := api.token(t, domain.RoleReceptionist)
	path := "/api/v1/appointments/" + a.ID.String() + "/reschedule"

	w := api.do(t, http.MethodPut, path, tok, map[string]any{"date": api.date, "start": "10:30", "end": "11:30", "reason": "therapist request"})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	moved := decode[APIResponse[appointmentResponse]](t, w).Data
	if moved.Status != "rescheduled" || moved.Start != "10:30" || moved.Rescheduled == nil || moved.Rescheduled.Original.Start != "10:00" {
		t.Errorf("moved = %+v", moved)
	}

	if w := api.do(t, http.MethodPut, path, tok, map[string]any{"date": api.date, "start": "12:00", "end": "13:00"}); w.Code != http.StatusConflict {
		t.Errorf("conflicting reschedule: %d", w.Code)
	}
	if w := api.do(t, http.MethodPut, path, api.token(t, domain.RolePatient), map[string]any{"date": api.date, "start": "15:00", "end": "15:30"}); w.Code != http.StatusForbidden {
		t.Errorf("patient reschedule: %d", w.Code)
	}
}

func TestUpdateStatusAndDelete(t *testing.T) {
	api := newTestAPI(t)
	a := api.mustBook(t, "10:00", "11:00")
	statusPath := "/api/v1/appointments/" + a.ID.String() + "/status"

	if w := api.do(t, http.MethodPatch, statusPath, api.token(t, domain.RolePatient), map[string]string{"status": "confirmed"}); w.Code != http.StatusForbidden {
		t.Errorf("patient confirm: %d", w.Code)
	}

	w := api.do(t, http.MethodPatch, statusPath, api.token(t, domain.RoleDoctor), map[string]string{"status": "confirmed"})
	if w.Code != http.StatusOK {
		t.Fatalf("confirm: %d: %s", w.Code, w.Body.String())
	}
	if got := decode[APIResponse[appointmentResponse]](t, w).Data; got.Status != "confirmed" || got.ConfirmedAt == nil {
		t.Errorf("confirmed = %+v", got)
	}

	if w := api.do(t, http.MethodPatch, statusPath, api.token(t, domain.RoleDoctor), map[string]string{"status": "completed"}); w.Code != http.StatusBadRequest {
		t.Errorf("confirmed to completed: %d", w.Code)
	}
	if w := api.do(t, http.MethodPatch, statusPath, api.token(t, domain.RoleDoctor), map[string]string{}); w.Code != http.StatusBadRequest {
		t.Errorf("missing status: %d", w.Code)
	}

	del := "/api/v1/appointments/" + a.ID.String()
	if w := api.do(t, http.MethodDelete, del, api.token(t, domain.RoleReceptionist), nil); w.Code != http.StatusForbidden {
		t.Errorf("receptionist delete: %d", w.Code)
	}
	if w := api.do(t, http.MethodDelete, del, api.token(t, domain.RoleDoctor), nil); w.Code != http.StatusNoContent {
		t.Errorf("doctor delete: %d", w.Code)
	}
	if w := api.do(t, http.MethodGet, del, api.token(t, domain.RoleAdmin), nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete: %d", w.Code)
	}
}

func TestCancelByPatient(t *testing.T) {
	api := newTestAPI(t)
	a := api.mustBook(t, "10:00", "11:00")

	w := api.do(t, http.MethodPatch, "/api/v1/appointments/"+a.ID.String()+"/status", api.token(t, domain.RolePatient), map[string]string{"status": "cancelled", "reason": "travelling"})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	if got := decode[APIResponse[appointmentResponse]](t, w).Data; got.Status != "cancelled" || got.CancellationReason != "travelling" {
		t.Errorf("cancelled = %+v", got)
	}

	api.mustBook(t, "10:00", "11:00")
}
