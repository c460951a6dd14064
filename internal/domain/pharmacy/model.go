package pharmacy

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Medication is one line of a prescription, stored in the medications
// JSONB column.
type Medication struct {
	Name      string `json:"name"`
	Dosage    string `json:"dosage"`
	Frequency string `json:"frequency"`
	Duration  string `json:"duration,omitempty"`
}

func (m *Medication) normalize() error {
	m.Name = strings.TrimSpace(m.Name)
	m.Dosage = strings.TrimSpace(m.Dosage)
	m.Frequency = strings.TrimSpace(m.Frequency)
	m.Duration = strings.TrimSpace(m.Duration)
	if m.Name == "" {
		return fmt.Errorf("medication name is required")
	}
	if m.Dosage == "" {
		return fmt.Errorf("dosage is required for %s", m.Name)
	}
	if m.Frequency == "" {
		return fmt.Errorf("frequency is required for %s", m.Name)
	}
	return nil
}

type PrescriptionStatus string

const (
	PrescriptionActive    PrescriptionStatus = "active"
	PrescriptionDispensed PrescriptionStatus = "dispensed"
	PrescriptionCancelled PrescriptionStatus = "cancelled"
)

func (s PrescriptionStatus) Valid() bool {
	switch s {
	case PrescriptionActive, PrescriptionDispensed, PrescriptionCancelled:
		return true
	}
	return false
}

// Prescription maps to the prescriptions table.
type Prescription struct {
	ID             uuid.UUID          `db:"id" json:"id"`
	PatientID      uuid.UUID          `db:"patient_id" json:"patient_id"`
	DoctorID       uuid.UUID          `db:"doctor_id" json:"doctor_id"`
	ConsultationID *uuid.UUID         `db:"consultation_id" json:"consultation_id"`
	Medications    []Medication       `db:"medications" json:"medications"`
	Diagnosis      *string            `db:"diagnosis" json:"diagnosis"`
	Instructions   *string            `db:"instructions" json:"instructions"`
	Status         PrescriptionStatus `db:"status" json:"status"`
	ValidUntil     *time.Time         `db:"valid_until" json:"valid_until"`
	CreatedAt      time.Time          `db:"created_at" json:"created_at"`
}

// Expired reports whether the prescription can no longer be filled at now.
// valid_until is inclusive of its whole day.
func (p *Prescription) Expired(now time.Time) bool {
	return p.ValidUntil != nil && now.After(p.ValidUntil.AddDate(0, 0, 1))
}

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderReady      OrderStatus = "ready"
	OrderDispensed  OrderStatus = "dispensed"
)

var orderSteps = map[OrderStatus]OrderStatus{
	OrderPending:    OrderProcessing,
	OrderProcessing: OrderReady,
	OrderReady:      OrderDispensed,
}

// Next is the single status an order may move to, or "" when it is done.
func (s OrderStatus) Next() OrderStatus { return orderSteps[s] }

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderProcessing, OrderReady, OrderDispensed:
		return true
	}
	return false
}

// PharmacyOrder maps to the pharmacy_orders table.
type PharmacyOrder struct {
	ID             uuid.UUID   `db:"id" json:"id"`
	PrescriptionID uuid.UUID   `db:"prescription_id" json:"prescription_id"`
	PharmacistID   *uuid.UUID  `db:"pharmacist_id" json:"pharmacist_id"`
	Status         OrderStatus `db:"status" json:"status"`
	Notes          *string     `db:"notes" json:"notes"`
	DispensedAt    *time.Time  `db:"dispensed_at" json:"dispensed_at"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updated_at"`
}

type PrescribeRequest struct {
	PatientID      uuid.UUID    `json:"patient_id"`
	ConsultationID *uuid.UUID   `json:"consultation_id,omitempty"`
	Medications    []Medication `json:"medications"`
	Diagnosis      *string      `json:"diagnosis,omitempty"`
	Instructions   *string      `json:"instructions,omitempty"`
	// ValidUntil is a YYYY-MM-DD date.
	ValidUntil *string `json:"valid_until,omitempty"`
}

type OrderStatusRequest struct {
	Status OrderStatus `json:"status"`
	Notes  *string     `json:"notes,omitempty"`
}

type DispenseRequest struct {
	Notes *string `json:"notes,omitempty"`
}

// DispenseResult is the pair of rows changed by a dispense.
type DispenseResult struct {
	Prescription *Prescription  `json:"prescription"`
	Order        *PharmacyOrder `json:"order"`
}

type PrescriptionFilter struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Status    PrescriptionStatus
}

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrExpired           = errors.New("prescription has expired")
)
