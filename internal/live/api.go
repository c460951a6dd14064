package live

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ehr/wardwatch/internal/domain/messaging"
	"github.com/ehr/wardwatch/internal/domain/monitoring"
)

// APIError is a non-2xx response from the data API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// API is a client for the /api/v1 data endpoints the live views need.
type API struct {
	base  string
	token string
	http  *http.Client
}

// NewAPI creates a client for the server at base (e.g. http://localhost:8000).
func NewAPI(base, token string, hc *http.Client) *API {
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &API{base: strings.TrimRight(base, "/") + "/api/v1", token: token, http: hc}
}

// WithToken returns a copy of the client authenticated with token.
func (a *API) WithToken(token string) *API {
	cp := *a
	cp.token = token
	return &cp
}

func (a *API) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	u := a.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Message string `json:"message"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &e) != nil || e.Message == "" {
			e.Message = strings.TrimSpace(string(data))
		}
		return &APIError{Status: resp.StatusCode, Message: e.Message}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

type page[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
}

// SignInResult is the token response of POST /auth/signin.
type SignInResult struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Profile     struct {
		ID       string `json:"id"`
		FullName string `json:"full_name"`
		Role     string `json:"role"`
	} `json:"profile"`
}

func (a *API) SignIn(ctx context.Context, email, password string) (*SignInResult, error) {
	var out SignInResult
	body := map[string]string{"email": email, "password": password}
	if err := a.do(ctx, http.MethodPost, "/auth/signin", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func limitQuery(limit int) url.Values {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return q
}

func pageQuery(limit, offset int) url.Values {
	q := limitQuery(limit)
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	return q
}

// ListAlerts returns one page of alerts, newest first, and the total count.
func (a *API) ListAlerts(ctx context.Context, limit, offset int) ([]monitoring.Alert, int, error) {
	var out page[monitoring.Alert]
	if err := a.do(ctx, http.MethodGet, "/alerts", pageQuery(limit, offset), nil, &out); err != nil {
		return nil, 0, err
	}
	return out.Data, out.Total, nil
}

func (a *API) AcknowledgeAlert(ctx context.Context, id string) (monitoring.Alert, error) {
	var out monitoring.AcknowledgeResult
	if err := a.do(ctx, http.MethodPost, "/alerts/"+url.PathEscape(id)+"/acknowledge", nil, nil, &out); err != nil {
		return monitoring.Alert{}, err
	}
	if out.Alert == nil {
		return monitoring.Alert{}, fmt.Errorf("acknowledge %s: empty response", id)
	}
	return *out.Alert, nil
}

// ListInbox returns one page of messages addressed to the caller, newest
// first, and the total count.
func (a *API) ListInbox(ctx context.Context, limit, offset int) ([]messaging.Message, int, error) {
	var out page[messaging.Message]
	if err := a.do(ctx, http.MethodGet, "/messages", pageQuery(limit, offset), nil, &out); err != nil {
		return nil, 0, err
	}
	return out.Data, out.Total, nil
}

func (a *API) MarkMessageRead(ctx context.Context, id string) (messaging.Message, error) {
	var out messaging.Message
	if err := a.do(ctx, http.MethodPut, "/messages/"+url.PathEscape(id)+"/read", nil, nil, &out); err != nil {
		return messaging.Message{}, err
	}
	return out, nil
}

func (a *API) ListVitals(ctx context.Context, patientID string, limit int) ([]monitoring.Vital, error) {
	var out page[monitoring.Vital]
	if err := a.do(ctx, http.MethodGet, "/patients/"+url.PathEscape(patientID)+"/vitals", limitQuery(limit), nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}
