package monitoring

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Vital maps to the vitals table. JSON names equal column names so rows
// from the change feed decode directly.
type Vital struct {
	ID                     uuid.UUID `db:"id" json:"id"`
	PatientID              uuid.UUID `db:"patient_id" json:"patient_id"`
	HeartRate              *int      `db:"heart_rate" json:"heart_rate"`
	BloodPressureSystolic  *int      `db:"blood_pressure_systolic" json:"blood_pressure_systolic"`
	BloodPressureDiastolic *int      `db:"blood_pressure_diastolic" json:"blood_pressure_diastolic"`
	OxygenSaturation       *float64  `db:"oxygen_saturation" json:"oxygen_saturation"`
	Temperature            *float64  `db:"temperature" json:"temperature"`
	RespiratoryRate        *int      `db:"respiratory_rate" json:"respiratory_rate"`
	DeviceID               *string   `db:"device_id" json:"device_id"`
	IsAlert                bool      `db:"is_alert" json:"is_alert"`
	RecordedAt             time.Time `db:"recorded_at" json:"recorded_at"`
}

// Empty reports whether no metric was recorded.
func (v *Vital) Empty() bool {
	return v.HeartRate == nil && v.BloodPressureSystolic == nil && v.BloodPressureDiastolic == nil &&
		v.OxygenSaturation == nil && v.Temperature == nil && v.RespiratoryRate == nil
}

// Alert maps to the alerts table.
type Alert struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	PatientID      uuid.UUID  `db:"patient_id" json:"patient_id"`
	VitalID        *uuid.UUID `db:"vital_id" json:"vital_id"`
	AlertType      string     `db:"alert_type" json:"alert_type"`
	Severity       Severity   `db:"severity" json:"severity"`
	Message        string     `db:"message" json:"message"`
	IsAcknowledged bool       `db:"is_acknowledged" json:"is_acknowledged"`
	AcknowledgedBy *uuid.UUID `db:"acknowledged_by" json:"acknowledged_by"`
	AcknowledgedAt *time.Time `db:"acknowledged_at" json:"acknowledged_at"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// Pending reports whether the alert still needs review.
func (a *Alert) Pending() bool { return !a.IsAcknowledged }

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// AlertFilter narrows alert listings.
type AlertFilter struct {
	PatientID      *uuid.UUID
	Unacknowledged bool
	Severity       Severity
}

// AcknowledgeResult is returned by the acknowledge endpoint.
type AcknowledgeResult struct {
	Alert   *Alert `json:"alert"`
	Changed bool   `json:"changed"`
}

// RecordResult is a stored vital and the alerts raised for it.
type RecordResult struct {
	Vital    *Vital    `json:"vital"`
	Alerts   []*Alert  `json:"alerts"`
	Readings []Reading `json:"readings"`
}

var (
	ErrNotFound       = errors.New("not found")
	ErrEmptyReading   = errors.New("at least one vital sign is required")
	ErrUnknownPatient = errors.New("patient not found")
)

// Validate rejects readings no device can produce.
func (v *Vital) Validate() error {
	if v.Empty() {
		return ErrEmptyReading
	}
	for name, val := range map[string]*int{
		"heart_rate":               v.HeartRate,
		"blood_pressure_systolic":  v.BloodPressureSystolic,
		"blood_pressure_diastolic": v.BloodPressureDiastolic,
		"respiratory_rate":         v.RespiratoryRate,
	} {
		if val != nil && *val <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if v.OxygenSaturation != nil && (*v.OxygenSaturation <= 0 || *v.OxygenSaturation > 100) {
		return fmt.Errorf("oxygen_saturation must be within (0, 100]")
	}
	if v.Temperature != nil && (*v.Temperature < 20 || *v.Temperature > 45) {
		return fmt.Errorf("temperature must be within [20, 45]")
	}
	return nil
}
