package patient

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
)

func jsonRequest(e *echo.Echo, method, path, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func withSession(c echo.Context, s auth.Session) {
	c.SetRequest(c.Request().WithContext(auth.WithSession(c.Request().Context(), s)))
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

func TestHandler_AdmitAndGet(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)
	e := echo.New()

	c, rec := jsonRequest(e, http.MethodPost, "/api/v1/patients",
		`{"full_name":"Ines","email":"ines@example.com","blood_type":"A+","date_of_birth":"1991-07-04"}`)
	if err := h.Admit(c); err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var res AdmitResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.TemporaryPassword == "" || res.ProfileID == nil {
		t.Fatalf("expected account details, got %+v", res)
	}

	c, rec = jsonRequest(e, http.MethodGet, "/", "")
	c.SetParamNames("id")
	c.SetParamValues(res.Patient.ID.String())
	withSession(c, auth.Session{Role: auth.RolePatient, ProfileID: *res.ProfileID})
	if err := h.Get(c); err != nil {
		t.Fatalf("Get as owner: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	c, _ = jsonRequest(e, http.MethodGet, "/", "")
	c.SetParamNames("id")
	c.SetParamValues(res.Patient.ID.String())
	withSession(c, auth.Session{Role: auth.RolePatient, ProfileID: uuid.NewString()})
	expectHTTPError(t, h.Get(c), http.StatusForbidden)

	c, rec = jsonRequest(e, http.MethodGet, "/api/v1/patients/me", "")
	withSession(c, auth.Session{Role: auth.RolePatient, ProfileID: *res.ProfileID})
	if err := h.Mine(c); err != nil {
		t.Fatalf("Mine: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"full_name":"Ines"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestHandler_AdmitInvalidBloodType(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)
	c, _ := jsonRequest(echo.New(), http.MethodPost, "/api/v1/patients", `{"full_name":"X","blood_type":"Q"}`)
	expectHTTPError(t, h.Admit(c), http.StatusBadRequest)
}

func TestHandler_ListFilters(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)
	e := echo.New()

	c, _ := jsonRequest(e, http.MethodGet, "/api/v1/patients?doctor_id=nope", "")
	expectHTTPError(t, h.List(c), http.StatusBadRequest)

	c, rec := jsonRequest(e, http.MethodGet, "/api/v1/patients?roomed=true", "")
	if err := h.List(c); err != nil {
		t.Fatalf("List: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"data":[]`) {
		t.Errorf("expected empty data array, got %s", rec.Body.String())
	}
}

func TestHandler_GetNotFound(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)
	c, _ := jsonRequest(echo.New(), http.MethodGet, "/", "")
	c.SetParamNames("id")
	c.SetParamValues(uuid.NewString())
	withSession(c, auth.Session{Role: auth.RoleDoctor})
	expectHTTPError(t, h.Get(c), http.StatusNotFound)
}
