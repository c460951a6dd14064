package careteam

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/wardwatch/internal/platform/auth"
	"github.com/ehr/wardwatch/pkg/pagination"
)

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

func TestHandler_PatientRequestsAdminApproves(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	e := echo.New()
	owner := uuid.New()
	p := f.patients.add(owner, nil)
	wanted := f.directory.add("Dr Alves", true)
	me := auth.Session{Role: auth.RolePatient, ProfileID: owner.String()}

	body := `{"requested_doctor_id":"` + wanted.String() + `","reason":"closer to home"}`
	c, rec := request(e, http.MethodPost, "/api/v1/doctor-change-requests", body, me)
	if err := h.RequestChange(c); err != nil {
		t.Fatalf("RequestChange: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var created ChangeRequest
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}

	c, _ = request(e, http.MethodPost, "/api/v1/doctor-change-requests", `{"reason":"again"}`, me)
	expectHTTPError(t, h.RequestChange(c), http.StatusConflict)

	admin := auth.Session{Role: auth.RoleAdmin, ProfileID: uuid.NewString()}
	c, rec = request(e, http.MethodPost, "/", "", admin)
	c.SetParamNames("id")
	c.SetParamValues(created.ID.String())
	if err := h.Approve(c); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	var approved ChangeRequest
	if err := json.Unmarshal(rec.Body.Bytes(), &approved); err != nil {
		t.Fatal(err)
	}
	if approved.Status != RequestApproved || approved.ReviewedBy == nil || approved.ReviewedBy.String() != admin.ProfileID {
		t.Errorf("unexpected approval %+v", approved)
	}
	if p.AssignedDoctorID == nil || *p.AssignedDoctorID != wanted {
		t.Error("patient should now be assigned to the requested doctor")
	}

	c, _ = request(e, http.MethodPost, "/", "", admin)
	c.SetParamNames("id")
	c.SetParamValues(created.ID.String())
	expectHTTPError(t, h.Reject(c), http.StatusConflict)
}

func TestHandler_ListRequestsScope(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	e := echo.New()

	c, _ := request(e, http.MethodGet, "/api/v1/doctor-change-requests", "", auth.Session{Role: auth.RoleNurse, ProfileID: uuid.NewString()})
	expectHTTPError(t, h.ListRequests(c), http.StatusForbidden)

	c, _ = request(e, http.MethodGet, "/api/v1/doctor-change-requests", "", auth.Session{Role: auth.RolePatient, ProfileID: uuid.NewString()})
	expectHTTPError(t, h.ListRequests(c), http.StatusNotFound)

	c, rec := request(e, http.MethodGet, "/api/v1/doctor-change-requests?status=pending", "", auth.Session{Role: auth.RoleAdmin})
	if err := h.ListRequests(c); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(rec.Body.String(), `"data":[]`) {
		t.Errorf("expected an empty page, got %s", rec.Body.String())
	}
}

func TestHandler_ListDoctors(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	e := echo.New()
	f.directory.add("Dr Alves", true, "Cardiology")
	f.directory.add("Dr Brito", true, "Dermatology")

	c, rec := request(e, http.MethodGet, "/api/v1/doctor-profiles?specialization=Cardiology", "", auth.Session{Role: auth.RolePatient})
	if err := h.ListDoctors(c); err != nil {
		t.Fatal(err)
	}
	var resp pagination.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || !strings.Contains(rec.Body.String(), "Dr Alves") {
		t.Errorf("unexpected directory page %s", rec.Body.String())
	}
}

func TestHandler_SaveProfileUsesCaller(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	e := echo.New()
	me := uuid.New()

	c, rec := request(e, http.MethodPut, "/api/v1/doctor-profiles/me",
		`{"consultation_price":50,"specializations":["Pediatrics"],"hospital_affiliation":"St. Mary"}`,
		auth.Session{Role: auth.RoleHospitalDoctor, ProfileID: me.String()})
	if err := h.SaveProfile(c); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	d := f.directory.doctors[me]
	if d == nil || d.ConsultationPrice == nil || *d.ConsultationPrice != 50 {
		t.Fatalf("expected the caller's entry to be stored, got %+v", d)
	}

	c, _ = request(e, http.MethodPut, "/api/v1/doctor-profiles/me", `{"doctor_type":"remote"}`,
		auth.Session{Role: auth.RoleHospitalDoctor, ProfileID: me.String()})
	expectHTTPError(t, h.SaveProfile(c), http.StatusBadRequest)
}

func TestHandler_Records(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc)
	e := echo.New()
	owner := uuid.New()
	p := f.patients.add(owner, nil)
	nurse := auth.Session{Role: auth.RoleNurse, ProfileID: uuid.NewString()}

	c, rec := request(e, http.MethodPost, "/", `{"record_type":"progress_note","title":"Night shift","content":"stable"}`, nurse)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())
	if err := h.AddRecord(c); err != nil {
		t.Fatalf("AddRecord: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	c, rec = request(e, http.MethodGet, "/", "", auth.Session{Role: auth.RolePatient, ProfileID: owner.String()})
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())
	if err := h.ListRecords(c); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(rec.Body.String(), "Night shift") {
		t.Errorf("owner should see the record, got %s", rec.Body.String())
	}

	c, _ = request(e, http.MethodGet, "/", "", auth.Session{Role: auth.RolePatient, ProfileID: uuid.NewString()})
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())
	expectHTTPError(t, h.ListRecords(c), http.StatusForbidden)

	c, _ = request(e, http.MethodGet, "/", "", nurse)
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")
	expectHTTPError(t, h.ListRecords(c), http.StatusBadRequest)
}
