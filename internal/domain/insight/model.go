package insight

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Type selects the prompt used for an analysis.
type Type string

const (
	TypeVitals  Type = "vitals_analysis"
	TypeAlerts  Type = "alert_analysis"
	TypeGeneral Type = "general"
)

// Request is the body of POST /insights. Vitals and Alerts are passed to the
// model verbatim.
type Request struct {
	Type   Type            `json:"type"`
	Vitals json.RawMessage `json:"vitals,omitempty"`
	Alerts json.RawMessage `json:"alerts,omitempty"`
	Prompt string          `json:"prompt,omitempty"`
}

// maxPayload caps the bytes of row data forwarded upstream.
const maxPayload = 64 << 10

func (r *Request) Validate() error {
	if r.Type == "" {
		r.Type = TypeGeneral
	}
	switch r.Type {
	case TypeVitals:
		if len(r.Vitals) == 0 {
			return errors.New("vitals are required for vitals_analysis")
		}
	case TypeAlerts:
		if len(r.Alerts) == 0 {
			return errors.New("alerts are required for alert_analysis")
		}
	case TypeGeneral:
	default:
		return fmt.Errorf("invalid type %q", r.Type)
	}
	if len(r.Vitals)+len(r.Alerts)+len(r.Prompt) > maxPayload {
		return fmt.Errorf("request exceeds %d bytes", maxPayload)
	}
	return nil
}

// Result is the normalized model reply. Vitals analyses fill Status,
// Insights and Recommendation; alert analyses fill Priority and Actions.
type Result struct {
	Status         string   `json:"status,omitempty"`
	Summary        string   `json:"summary"`
	Insights       []string `json:"insights,omitempty"`
	Recommendation string   `json:"recommendation,omitempty"`
	Priority       string   `json:"priority,omitempty"`
	Actions        []string `json:"actions,omitempty"`
}

var (
	ErrDisabled        = errors.New("insight endpoint is not configured")
	ErrRateLimited     = errors.New("rate limit exceeded, please try again later")
	ErrCreditsDepleted = errors.New("inference credits depleted")
	ErrUpstream        = errors.New("inference endpoint error")
)
