package dashboard

import (
	"errors"
	"time"

	"github.com/ehr/wardwatch/internal/domain/messaging"
	"github.com/ehr/wardwatch/internal/domain/monitoring"
	"github.com/ehr/wardwatch/internal/domain/patient"
	"github.com/ehr/wardwatch/internal/domain/pharmacy"
	"github.com/ehr/wardwatch/internal/domain/scheduling"
	"github.com/ehr/wardwatch/internal/platform/auth"
)

// Dashboard is the landing payload for a session. Exactly one of the
// role views is set, matching Role.
type Dashboard struct {
	Role        auth.Role `json:"role"`
	Home        string    `json:"home"`
	GeneratedAt time.Time `json:"generated_at"`

	Admin          *AdminView          `json:"admin,omitempty"`
	HospitalDoctor *HospitalDoctorView `json:"hospital_doctor,omitempty"`
	OnlineDoctor   *OnlineDoctorView   `json:"online_doctor,omitempty"`
	Nurse          *NurseView          `json:"nurse,omitempty"`
	Pharmacist     *PharmacistView     `json:"pharmacist,omitempty"`
	Patient        *PatientView        `json:"patient,omitempty"`
}

type AdminView struct {
	Staff        map[auth.Role]int       `json:"staff"`
	Patients     int                     `json:"patients"`
	Alerts       monitoring.AlertSummary `json:"alerts"`
	RecentAlerts []monitoring.Alert      `json:"recent_alerts"`
}

type HospitalDoctorView struct {
	InPatients  []*patient.Patient        `json:"in_patients"`
	OutPatients []*patient.Patient        `json:"out_patients"`
	Alerts      monitoring.AlertSummary   `json:"alerts"`
	Today       []*scheduling.Appointment `json:"today"`
	Messages    messaging.Summary         `json:"messages"`
}

type OnlineDoctorView struct {
	Consultations []*scheduling.Consultation            `json:"consultations"`
	ByStatus      map[scheduling.ConsultationStatus]int `json:"by_status"`
	Upcoming      []*scheduling.Appointment             `json:"upcoming"`
	Messages      messaging.Summary                     `json:"messages"`
}

type NurseView struct {
	Patients      []*patient.Patient      `json:"patients"`
	Alerts        monitoring.AlertSummary `json:"alerts"`
	PendingAlerts []monitoring.Alert      `json:"pending_alerts"`
}

type PharmacistView struct {
	Prescriptions []*pharmacy.Prescription            `json:"prescriptions"`
	ByStatus      map[pharmacy.PrescriptionStatus]int `json:"by_status"`
	Orders        map[pharmacy.OrderStatus]int        `json:"orders"`
}

// PatientView has a nil Patient when the account has no admission record
// yet; the clinical fields are then empty.
type PatientView struct {
	Patient       *patient.Patient          `json:"patient"`
	Vitals        monitoring.VitalSummary   `json:"vitals"`
	Alerts        monitoring.AlertSummary   `json:"alerts"`
	Appointments  []*scheduling.Appointment `json:"appointments"`
	Prescriptions []*pharmacy.Prescription  `json:"prescriptions"`
	Messages      messaging.Summary         `json:"messages"`
}

var (
	ErrUnknownRole = errors.New("no dashboard for role")
	ErrNoProfile   = errors.New("session has no valid profile")
)
