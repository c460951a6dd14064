package scheduling

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type AppointmentType string

const (
	TypeOnline   AppointmentType = "online"
	TypeInPerson AppointmentType = "in-person"
)

func (t AppointmentType) Valid() bool { return t == TypeOnline || t == TypeInPerson }

type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

var appointmentTransitions = map[AppointmentStatus][]AppointmentStatus{
	AppointmentPending:   {AppointmentConfirmed, AppointmentCancelled},
	AppointmentConfirmed: {AppointmentCompleted, AppointmentCancelled},
}

// CanTransition reports whether an appointment may move from s to next.
func (s AppointmentStatus) CanTransition(next AppointmentStatus) bool {
	for _, n := range appointmentTransitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

// Active reports whether the appointment still holds its time slot.
func (s AppointmentStatus) Active() bool {
	return s == AppointmentPending || s == AppointmentConfirmed
}

func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentPending, AppointmentConfirmed, AppointmentCompleted, AppointmentCancelled:
		return true
	}
	return false
}

// Appointment maps to the appointments table.
type Appointment struct {
	ID              uuid.UUID         `db:"id" json:"id"`
	PatientID       uuid.UUID         `db:"patient_id" json:"patient_id"`
	DoctorID        uuid.UUID         `db:"doctor_id" json:"doctor_id"`
	AppointmentType AppointmentType   `db:"appointment_type" json:"appointment_type"`
	ScheduledAt     time.Time         `db:"scheduled_at" json:"scheduled_at"`
	DurationMinutes int               `db:"duration_minutes" json:"duration_minutes"`
	Status          AppointmentStatus `db:"status" json:"status"`
	Notes           *string           `db:"notes" json:"notes"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time         `db:"updated_at" json:"updated_at"`
}

// End is when the appointment's slot is over.
func (a *Appointment) End() time.Time {
	return a.ScheduledAt.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

type ConsultationStatus string

const (
	ConsultationWaiting    ConsultationStatus = "waiting"
	ConsultationInProgress ConsultationStatus = "in_progress"
	ConsultationCompleted  ConsultationStatus = "completed"
	ConsultationCancelled  ConsultationStatus = "cancelled"
)

var consultationTransitions = map[ConsultationStatus][]ConsultationStatus{
	ConsultationWaiting:    {ConsultationInProgress, ConsultationCancelled},
	ConsultationInProgress: {ConsultationCompleted, ConsultationCancelled},
}

func (s ConsultationStatus) CanTransition(next ConsultationStatus) bool {
	for _, n := range consultationTransitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

func (s ConsultationStatus) Valid() bool {
	switch s {
	case ConsultationWaiting, ConsultationInProgress, ConsultationCompleted, ConsultationCancelled:
		return true
	}
	return false
}

// Consultation maps to the consultations table.
type Consultation struct {
	ID                uuid.UUID          `db:"id" json:"id"`
	AppointmentID     *uuid.UUID         `db:"appointment_id" json:"appointment_id"`
	PatientID         uuid.UUID          `db:"patient_id" json:"patient_id"`
	DoctorID          uuid.UUID          `db:"doctor_id" json:"doctor_id"`
	Status            ConsultationStatus `db:"status" json:"status"`
	Price             *float64           `db:"price" json:"price"`
	ConsultationNotes *string            `db:"consultation_notes" json:"consultation_notes"`
	StartedAt         *time.Time         `db:"started_at" json:"started_at"`
	EndedAt           *time.Time         `db:"ended_at" json:"ended_at"`
	CreatedAt         time.Time          `db:"created_at" json:"created_at"`
}

// Duration is the elapsed consultation time, zero until it has ended.
func (c *Consultation) Duration() time.Duration {
	if c.StartedAt == nil || c.EndedAt == nil {
		return 0
	}
	return c.EndedAt.Sub(*c.StartedAt)
}

type AppointmentFilter struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Status    AppointmentStatus
	From, To  *time.Time
}

type ConsultationFilter struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Status    ConsultationStatus
}

type CreateAppointmentRequest struct {
	PatientID       uuid.UUID       `json:"patient_id"`
	DoctorID        uuid.UUID       `json:"doctor_id"`
	AppointmentType AppointmentType `json:"appointment_type"`
	ScheduledAt     time.Time       `json:"scheduled_at"`
	DurationMinutes int             `json:"duration_minutes,omitempty"`
	Notes           *string         `json:"notes,omitempty"`
}

type StatusRequest struct {
	Status AppointmentStatus `json:"status"`
	Notes  *string           `json:"notes,omitempty"`
}

type CreateConsultationRequest struct {
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	PatientID     uuid.UUID  `json:"patient_id"`
	DoctorID      uuid.UUID  `json:"doctor_id"`
	Price         *float64   `json:"price,omitempty"`
}

type EndRequest struct {
	Notes *string `json:"notes,omitempty"`
}

const (
	DefaultDurationMinutes = 30
	MaxDurationMinutes     = 480
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrSlotTaken         = errors.New("doctor already has an appointment at that time")
	ErrNotAssigned       = errors.New("consultation is assigned to another doctor")
)
