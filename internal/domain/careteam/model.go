package careteam

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/wardwatch/internal/platform/auth"
)

// DoctorType distinguishes ward doctors from remote consultants.
type DoctorType string

const (
	DoctorHospital DoctorType = "hospital"
	DoctorOnline   DoctorType = "online"
)

func (t DoctorType) Valid() bool { return t == DoctorHospital || t == DoctorOnline }

// DoctorProfile maps to doctor_profiles joined with the doctor's profile name.
type DoctorProfile struct {
	ID                  uuid.UUID      `db:"id" json:"id"`
	ProfileID           uuid.UUID      `db:"profile_id" json:"profile_id"`
	FullName            string         `db:"full_name" json:"full_name"`
	DoctorType          DoctorType     `db:"doctor_type" json:"doctor_type"`
	ConsultationPrice   *float64       `db:"consultation_price" json:"consultation_price"`
	Specializations     []string       `db:"specializations" json:"specializations"`
	HospitalAffiliation *string        `db:"hospital_affiliation" json:"hospital_affiliation"`
	LicenseNumber       *string        `db:"license_number" json:"license_number"`
	IsVerified          bool           `db:"is_verified" json:"is_verified"`
	Availability        map[string]any `db:"availability" json:"availability"`
	CreatedAt           time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at" json:"updated_at"`
}

// ProfileInput is the body of PUT /doctor-profiles/me.
type ProfileInput struct {
	DoctorType          *DoctorType    `json:"doctor_type,omitempty"`
	ConsultationPrice   *float64       `json:"consultation_price,omitempty"`
	Specializations     []string       `json:"specializations,omitempty"`
	HospitalAffiliation *string        `json:"hospital_affiliation,omitempty"`
	LicenseNumber       *string        `json:"license_number,omitempty"`
	Availability        map[string]any `json:"availability,omitempty"`
}

func (in *ProfileInput) Validate() error {
	if in.DoctorType != nil && !in.DoctorType.Valid() {
		return fmt.Errorf("invalid doctor_type %q", *in.DoctorType)
	}
	if in.ConsultationPrice != nil && *in.ConsultationPrice < 0 {
		return fmt.Errorf("consultation_price cannot be negative")
	}
	return nil
}

// defaultDoctorType picks the directory type for a doctor role.
func defaultDoctorType(r auth.Role) DoctorType {
	if r == auth.RoleOnlineDoctor {
		return DoctorOnline
	}
	return DoctorHospital
}

// cleanSpecializations trims and de-duplicates, keeping first-seen order.
func cleanSpecializations(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[strings.ToLower(s)] {
			continue
		}
		seen[strings.ToLower(s)] = true
		out = append(out, s)
	}
	return out
}

type DirectoryFilter struct {
	Specialization string
	VerifiedOnly   bool
}

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

func (s RequestStatus) Valid() bool {
	return s == RequestPending || s == RequestApproved || s == RequestRejected
}

// ChangeRequest maps to doctor_change_requests.
type ChangeRequest struct {
	ID                uuid.UUID     `db:"id" json:"id"`
	PatientID         uuid.UUID     `db:"patient_id" json:"patient_id"`
	CurrentDoctorID   *uuid.UUID    `db:"current_doctor_id" json:"current_doctor_id"`
	RequestedDoctorID *uuid.UUID    `db:"requested_doctor_id" json:"requested_doctor_id"`
	Reason            string        `db:"reason" json:"reason"`
	Status            RequestStatus `db:"status" json:"status"`
	ReviewedBy        *uuid.UUID    `db:"reviewed_by" json:"reviewed_by"`
	ReviewedAt        *time.Time    `db:"reviewed_at" json:"reviewed_at"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
}

// ChangeRequestInput is the body of POST /doctor-change-requests.
type ChangeRequestInput struct {
	RequestedDoctorID *uuid.UUID `json:"requested_doctor_id,omitempty"`
	Reason            string     `json:"reason"`
}

func (in *ChangeRequestInput) Validate() error {
	in.Reason = strings.TrimSpace(in.Reason)
	if in.Reason == "" {
		return fmt.Errorf("reason is required")
	}
	return nil
}

type RequestFilter struct {
	PatientID *uuid.UUID
	Status    RequestStatus
}

// Record maps to emr_records.
type Record struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	PatientID   uuid.UUID  `db:"patient_id" json:"patient_id"`
	DoctorID    *uuid.UUID `db:"doctor_id" json:"doctor_id"`
	RecordType  string     `db:"record_type" json:"record_type"`
	Title       string     `db:"title" json:"title"`
	Content     *string    `db:"content" json:"content"`
	IsInpatient bool       `db:"is_inpatient" json:"is_inpatient"`
	Attachments []string   `db:"attachments" json:"attachments"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// RecordInput is the body of POST /patients/:id/records.
type RecordInput struct {
	RecordType  string   `json:"record_type"`
	Title       string   `json:"title"`
	Content     *string  `json:"content,omitempty"`
	IsInpatient bool     `json:"is_inpatient"`
	Attachments []string `json:"attachments,omitempty"`
}

const maxRecordType = 32

func (in *RecordInput) Validate() error {
	in.RecordType = strings.ToLower(strings.TrimSpace(in.RecordType))
	in.Title = strings.TrimSpace(in.Title)
	switch {
	case in.RecordType == "":
		return fmt.Errorf("record_type is required")
	case len(in.RecordType) > maxRecordType:
		return fmt.Errorf("record_type is longer than %d characters", maxRecordType)
	case in.Title == "":
		return fmt.Errorf("title is required")
	}
	return nil
}

const (
	admissionType  = "admission"
	admissionTitle = "Hospital Admission"
)

func admissionContent(reason string) string {
	if reason = strings.TrimSpace(reason); reason == "" {
		return "Patient admitted"
	}
	return "Patient admitted for: " + reason
}

var (
	ErrNotFound       = errors.New("not found")
	ErrPendingRequest = errors.New("a doctor change request is already pending")
	ErrNotPending     = errors.New("request has already been reviewed")
	ErrSameDoctor     = errors.New("requested doctor is already assigned")
	ErrNoDoctor       = errors.New("doctor_id is required to approve a request without a requested doctor")
	ErrUnlisted       = errors.New("doctor is not in the verified directory")
)
