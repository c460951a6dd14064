package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/wardwatch/internal/domain/patient"
	"github.com/ehr/wardwatch/internal/platform/auth"
)

type fakeAccess struct {
	owners map[uuid.UUID]string
}

func (f fakeAccess) Authorize(_ context.Context, s auth.Session, patientID uuid.UUID) error {
	if s.Role.IsStaff() || f.owners[patientID] == s.ProfileID {
		return nil
	}
	return patient.ErrForbidden
}

func request(e *echo.Echo, method, path, body string, s auth.Session) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithSession(req.Context(), s))
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func expectHTTPError(t *testing.T, err error, code int) {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected HTTPError %d, got %v", code, err)
	}
	if he.Code != code {
		t.Fatalf("expected status %d, got %d (%v)", code, he.Code, he.Message)
	}
}

func TestHandler_PatientBooksAndCancels(t *testing.T) {
	svc, _, _ := newTestService()
	owner := uuid.NewString()
	pid := uuid.New()
	h := NewHandler(svc, fakeAccess{owners: map[uuid.UUID]string{pid: owner}})
	e := echo.New()
	me := auth.Session{Role: auth.RolePatient, ProfileID: owner}

	at := testNow.Add(24 * time.Hour).Format(time.RFC3339)
	body := `{"patient_id":"` + pid.String() + `","doctor_id":"` + uuid.NewString() + `","appointment_type":"online","scheduled_at":"` + at + `"}`
	c, rec := request(e, http.MethodPost, "/api/v1/appointments", body, me)
	if err := h.CreateAppointment(c); err != nil {
		t.Fatalf("CreateAppointment: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var a Appointment
	_ = json.Unmarshal(rec.Body.Bytes(), &a)

	c, _ = request(e, http.MethodPost, "/", `{"status":"confirmed"}`, me)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	expectHTTPError(t, h.SetAppointmentStatus(c), http.StatusForbidden)

	c, rec = request(e, http.MethodPost, "/", `{"status":"cancelled"}`, me)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	if err := h.SetAppointmentStatus(c); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"status":"cancelled"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}

	c, _ = request(e, http.MethodPost, "/", `{"status":"cancelled"}`, auth.Session{Role: auth.RoleNurse})
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	expectHTTPError(t, h.SetAppointmentStatus(c), http.StatusConflict)
}

func TestHandler_PatientCannotBookForOthers(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc, fakeAccess{})
	at := testNow.Add(time.Hour).Format(time.RFC3339)
	body := `{"patient_id":"` + uuid.NewString() + `","doctor_id":"` + uuid.NewString() + `","scheduled_at":"` + at + `"}`
	c, _ := request(echo.New(), http.MethodPost, "/api/v1/appointments", body, auth.Session{Role: auth.RolePatient, ProfileID: uuid.NewString()})
	expectHTTPError(t, h.CreateAppointment(c), http.StatusForbidden)
}

func TestHandler_ListRequiresPatientScope(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc, fakeAccess{})
	e := echo.New()

	c, _ := request(e, http.MethodGet, "/api/v1/appointments", "", auth.Session{Role: auth.RolePatient, ProfileID: uuid.NewString()})
	expectHTTPError(t, h.ListAppointments(c), http.StatusForbidden)

	c, rec := request(e, http.MethodGet, "/api/v1/appointments?status=pending", "", auth.Session{Role: auth.RoleDoctor})
	if err := h.ListAppointments(c); err != nil {
		t.Fatalf("ListAppointments: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"data":[]`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}

	c, _ = request(e, http.MethodGet, "/api/v1/appointments?from=yesterday", "", auth.Session{Role: auth.RoleDoctor})
	expectHTTPError(t, h.ListAppointments(c), http.StatusBadRequest)

	c, _ = request(e, http.MethodGet, "/api/v1/consultations?status=paused", "", auth.Session{Role: auth.RoleDoctor})
	expectHTTPError(t, h.ListConsultations(c), http.StatusBadRequest)
}

func TestHandler_ConsultationFlow(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc, fakeAccess{})
	e := echo.New()
	doc := uuid.New()
	me := auth.Session{Role: auth.RoleOnlineDoctor, ProfileID: doc.String()}

	c, rec := request(e, http.MethodPost, "/api/v1/consultations", `{"patient_id":"`+uuid.NewString()+`","price":40}`, me)
	if err := h.CreateConsultation(c); err != nil {
		t.Fatalf("CreateConsultation: %v", err)
	}
	var cons Consultation
	_ = json.Unmarshal(rec.Body.Bytes(), &cons)
	if cons.DoctorID != doc {
		t.Fatalf("doctor should default to the caller, got %s", cons.DoctorID)
	}

	c, _ = request(e, http.MethodPost, "/", "", auth.Session{Role: auth.RoleDoctor, ProfileID: uuid.NewString()})
	c.SetParamNames("id")
	c.SetParamValues(cons.ID.String())
	expectHTTPError(t, h.StartConsultation(c), http.StatusForbidden)

	c, _ = request(e, http.MethodPost, "/", "", me)
	c.SetParamNames("id")
	c.SetParamValues(cons.ID.String())
	if err := h.StartConsultation(c); err != nil {
		t.Fatalf("StartConsultation: %v", err)
	}

	c, rec = request(e, http.MethodPost, "/", `{"notes":"rest"}`, me)
	c.SetParamNames("id")
	c.SetParamValues(cons.ID.String())
	if err := h.EndConsultation(c); err != nil {
		t.Fatalf("EndConsultation: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"status":"completed"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}
