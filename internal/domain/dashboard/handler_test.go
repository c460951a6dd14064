package dashboard

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/wardwatch/internal/platform/auth"
)

func request(s *auth.Session) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if s != nil {
		req = req.WithContext(auth.WithSession(req.Context(), *s))
	}
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec), rec
}

func expectHTTPError(t *testing.T, err error, code int) {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected HTTPError %d, got %v", code, err)
	}
	if he.Code != code {
		t.Fatalf("expected status %d, got %d", code, he.Code)
	}
}

func TestHandler_Dashboard(t *testing.T) {
	h := NewHandler(newTestService(&fakeSources{}))
	s := session(auth.RoleNurse, uuid.New())
	c, rec := request(&s)
	if err := h.Dashboard(c); err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["role"] != "nurse" || body["nurse"] == nil || body["admin"] != nil {
		t.Errorf("unexpected body %v", body)
	}
}

func TestHandler_DashboardErrors(t *testing.T) {
	h := NewHandler(newTestService(&fakeSources{}))

	c, _ := request(nil)
	expectHTTPError(t, h.Dashboard(c), http.StatusUnauthorized)

	s := auth.Session{Role: "janitor", ProfileID: uuid.NewString()}
	c, _ = request(&s)
	expectHTTPError(t, h.Dashboard(c), http.StatusForbidden)

	failing := NewHandler(newTestService(&fakeSources{failWith: errors.New("down")}))
	s = session(auth.RolePharmacist, uuid.New())
	c, _ = request(&s)
	expectHTTPError(t, failing.Dashboard(c), http.StatusInternalServerError)
}

func TestHandler_Screens(t *testing.T) {
	h := NewHandler(newTestService(&fakeSources{}))
	s := session(auth.RolePatient, uuid.New())
	c, rec := request(&s)
	if err := h.Screens(c); err != nil {
		t.Fatalf("Screens: %v", err)
	}
	var body screensResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Home != "/patient" || len(body.Screens) == 0 {
		t.Fatalf("unexpected body %+v", body)
	}
	for _, sc := range body.Screens {
		if len(sc.Path) < 8 || sc.Path[:8] != "/patient" {
			t.Errorf("patient got foreign screen %s", sc.Path)
		}
	}
}
