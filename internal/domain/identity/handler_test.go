package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/ehr/wardwatch/internal/platform/auth"
)

func newTestHandler() (*Handler, *Service, *echo.Echo) {
	svc, _ := newTestService()
	return NewHandler(svc), svc, echo.New()
}

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

func TestHandler_SignUpAndSignIn(t *testing.T) {
	h, _, e := newTestHandler()

	c, rec := jsonRequest(e, http.MethodPost, "/api/v1/auth/signup", `{"email":"zoe@example.com","password":"secret1","full_name":"Zoe"}`)
	if err := h.SignUp(c); err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	c, rec = jsonRequest(e, http.MethodPost, "/api/v1/auth/signin", `{"email":"zoe@example.com","password":"secret1"}`)
	if err := h.SignIn(c); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	var resp TokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.AccessToken == "" || resp.Profile == nil || resp.Profile.Role != auth.RolePatient {
		t.Errorf("response = %s", rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Error("response must not expose password data")
	}
}

func TestHandler_SignInBadCredentials(t *testing.T) {
	h, _, e := newTestHandler()
	c, _ := jsonRequest(e, http.MethodPost, "/api/v1/auth/signin", `{"email":"x@example.com","password":"nope00"}`)
	err := h.SignIn(c)
	expectHTTPError(t, err, http.StatusUnauthorized)
	if msg := err.(*echo.HTTPError).Message; msg != ErrInvalidCredentials.Error() {
		t.Errorf("message = %v", msg)
	}
}

func TestHandler_SignUpConflict(t *testing.T) {
	h, _, e := newTestHandler()
	body := `{"email":"twice@example.com","password":"secret1","full_name":"Twice"}`
	c, _ := jsonRequest(e, http.MethodPost, "/", body)
	if err := h.SignUp(c); err != nil {
		t.Fatal(err)
	}
	c, _ = jsonRequest(e, http.MethodPost, "/", body)
	expectHTTPError(t, h.SignUp(c), http.StatusConflict)
}

func TestHandler_SignUpValidation(t *testing.T) {
	h, _, e := newTestHandler()
	c, _ := jsonRequest(e, http.MethodPost, "/", `{"email":"bad","password":"secret1","full_name":"X"}`)
	expectHTTPError(t, h.SignUp(c), http.StatusBadRequest)
}

func TestHandler_GetMe(t *testing.T) {
	h, svc, e := newTestHandler()
	resp, err := svc.SignUp(context.Background(), SignUpRequest{Email: "me@example.com", Password: "secret1", FullName: "Me"})
	if err != nil {
		t.Fatal(err)
	}

	c, rec := jsonRequest(e, http.MethodGet, "/api/v1/profiles/me", "")
	withSession(c, resp.Profile.Session())
	if err := h.GetMe(c); err != nil {
		t.Fatalf("GetMe: %v", err)
	}
	var p Profile
	json.Unmarshal(rec.Body.Bytes(), &p)
	if p.ID != resp.Profile.ID {
		t.Errorf("profile = %+v", p)
	}

	c, _ = jsonRequest(e, http.MethodGet, "/api/v1/profiles/me", "")
	expectHTTPError(t, h.GetMe(c), http.StatusUnauthorized)
}

func TestHandler_UpdateMe(t *testing.T) {
	h, svc, e := newTestHandler()
	resp, _ := svc.SignUp(context.Background(), SignUpRequest{Email: "up@example.com", Password: "secret1", FullName: "Up"})

	c, rec := jsonRequest(e, http.MethodPut, "/api/v1/profiles/me", `{"full_name":"Updated","avatar_url":"https://img.test/a.png"}`)
	withSession(c, resp.Profile.Session())
	if err := h.UpdateMe(c); err != nil {
		t.Fatalf("UpdateMe: %v", err)
	}
	var p Profile
	json.Unmarshal(rec.Body.Bytes(), &p)
	if p.FullName != "Updated" || p.AvatarURL == nil {
		t.Errorf("profile = %+v", p)
	}
}

func TestHandler_SignOut(t *testing.T) {
	h, svc, e := newTestHandler()
	resp, _ := svc.SignUp(context.Background(), SignUpRequest{Email: "bye@example.com", Password: "secret1", FullName: "Bye"})
	claims, err := testTokens.Verify(resp.AccessToken)
	if err != nil {
		t.Fatal(err)
	}

	c, rec := jsonRequest(e, http.MethodPost, "/api/v1/auth/signout", "")
	c.Set("auth_claims", claims)
	if err := h.SignOut(c); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if _, err := testTokens.Verify(resp.AccessToken); err == nil {
		t.Error("token should be revoked")
	}

	c, _ = jsonRequest(e, http.MethodPost, "/api/v1/auth/signout", "")
	expectHTTPError(t, h.SignOut(c), http.StatusUnauthorized)
}

func TestHandler_CreateStaff(t *testing.T) {
	h, _, e := newTestHandler()
	c, rec := jsonRequest(e, http.MethodPost, "/api/v1/staff",
		`{"email":"rx@example.com","password":"secret1","full_name":"Rx","role":"pharmacist"}`)
	if err := h.CreateStaff(c); err != nil {
		t.Fatalf("CreateStaff: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	c, _ = jsonRequest(e, http.MethodPost, "/api/v1/staff",
		`{"email":"boss@example.com","password":"secret1","full_name":"Boss","role":"admin"}`)
	expectHTTPError(t, h.CreateStaff(c), http.StatusBadRequest)
}

func TestHandler_ListProfiles(t *testing.T) {
	h, svc, e := newTestHandler()
	svc.CreateStaff(context.Background(), AccountRequest{Email: "n1@example.com", Password: "secret1", FullName: "Nurse", Role: auth.RoleNurse})
	svc.SignUp(context.Background(), SignUpRequest{Email: "p1@example.com", Password: "secret1", FullName: "Patient"})

	c, rec := jsonRequest(e, http.MethodGet, "/api/v1/profiles?role=nurse", "")
	if err := h.ListProfiles(c); err != nil {
		t.Fatalf("ListProfiles: %v", err)
	}
	var page struct {
		Data  []Profile `json:"data"`
		Total int       `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &page)
	if page.Total != 1 || page.Data[0].Role != auth.RoleNurse {
		t.Errorf("page = %s", rec.Body.String())
	}

	c, _ = jsonRequest(e, http.MethodGet, "/api/v1/profiles?role=wizard", "")
	expectHTTPError(t, h.ListProfiles(c), http.StatusBadRequest)
}

func TestHandler_GetProfileNotFound(t *testing.T) {
	h, _, e := newTestHandler()
	c, _ := jsonRequest(e, http.MethodGet, "/", "")
	c.SetParamNames("id")
	c.SetParamValues("00000000-0000-0000-0000-000000000001")
	expectHTTPError(t, h.GetProfile(c), http.StatusNotFound)

	c, _ = jsonRequest(e, http.MethodGet, "/", "")
	c.SetParamNames("id")
	c.SetParamValues("nope")
	expectHTTPError(t, h.GetProfile(c), http.StatusBadRequest)
}
