package pharmacy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

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

func TestHandler_PrescribeAndDispense(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc, fakeAccess{})
	e := echo.New()
	doctor := auth.Session{Role: auth.RoleDoctor, ProfileID: uuid.NewString()}
	pharmacist := auth.Session{Role: auth.RolePharmacist, ProfileID: uuid.NewString()}

	body := `{"patient_id":"` + uuid.NewString() + `","medications":[{"name":"Ibuprofen","dosage":"400mg","frequency":"as needed"}]}`
	c, rec := request(e, http.MethodPost, "/api/v1/prescriptions", body, doctor)
	if err := h.Prescribe(c); err != nil {
		t.Fatalf("Prescribe: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var p Prescription
	if err := jsonDecode(rec, &p); err != nil {
		t.Fatalf("decode: %v", err)
	}

	c, rec = request(e, http.MethodPost, "/", "", pharmacist)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())
	if err := h.Dispense(c); err != nil {
		t.Fatalf("Dispense: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"status":"dispensed"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}

	c, _ = request(e, http.MethodPost, "/", "", pharmacist)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())
	expectHTTPError(t, h.Dispense(c), http.StatusConflict)
}

func TestHandler_ListPrescriptionsScope(t *testing.T) {
	svc, _, _ := newTestService()
	owner := uuid.NewString()
	pid := uuid.New()
	h := NewHandler(svc, fakeAccess{owners: map[uuid.UUID]string{pid: owner}})
	e := echo.New()
	me := auth.Session{Role: auth.RolePatient, ProfileID: owner}

	c, _ := request(e, http.MethodGet, "/api/v1/prescriptions", "", me)
	expectHTTPError(t, h.ListPrescriptions(c), http.StatusForbidden)

	c, _ = request(e, http.MethodGet, "/api/v1/prescriptions?patient_id="+uuid.NewString(), "", me)
	expectHTTPError(t, h.ListPrescriptions(c), http.StatusForbidden)

	c, rec := request(e, http.MethodGet, "/api/v1/prescriptions?patient_id="+pid.String(), "", me)
	if err := h.ListPrescriptions(c); err != nil {
		t.Fatalf("ListPrescriptions: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	c, _ = request(e, http.MethodGet, "/api/v1/prescriptions?status=lost", "", auth.Session{Role: auth.RolePharmacist})
	expectHTTPError(t, h.ListPrescriptions(c), http.StatusBadRequest)
}

func TestHandler_AdvanceOrderInvalid(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc, fakeAccess{})
	c, _ := request(echo.New(), http.MethodPost, "/", `{"status":"processing"}`, auth.Session{Role: auth.RolePharmacist, ProfileID: uuid.NewString()})
	c.SetParamNames("id")
	c.SetParamValues(uuid.NewString())
	expectHTTPError(t, h.AdvanceOrder(c), http.StatusNotFound)
}

func jsonDecode(rec *httptest.ResponseRecorder, v any) error {
	return json.Unmarshal(rec.Body.Bytes(), v)
}
