package patient

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Patient maps to the patients table.
type Patient struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	ProfileID        *uuid.UUID `db:"profile_id" json:"profile_id"`
	FullName         string     `db:"full_name" json:"full_name"`
	AssignedDoctorID *uuid.UUID `db:"assigned_doctor_id" json:"assigned_doctor_id"`
	RoomNumber       *string    `db:"room_number" json:"room_number"`
	BloodType        *string    `db:"blood_type" json:"blood_type"`
	Allergies        []string   `db:"allergies" json:"allergies"`
	DateOfBirth      *time.Time `db:"date_of_birth" json:"date_of_birth"`
	EmergencyContact *string    `db:"emergency_contact" json:"emergency_contact"`
	EmergencyPhone   *string    `db:"emergency_phone" json:"emergency_phone"`
	AdmissionDate    *time.Time `db:"admission_date" json:"admission_date"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// Roomed reports whether the patient currently occupies a room.
func (p *Patient) Roomed() bool {
	return p.RoomNumber != nil && *p.RoomNumber != ""
}

var bloodTypes = map[string]bool{
	"A+": true, "A-": true, "B+": true, "B-": true,
	"AB+": true, "AB-": true, "O+": true, "O-": true,
}

// ValidBloodType reports whether s is an ABO/Rh group.
func ValidBloodType(s string) bool { return bloodTypes[s] }

const dateLayout = "2006-01-02"

func parseDate(field string, s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, *s)
	if err != nil {
		return nil, fmt.Errorf("%s must be a YYYY-MM-DD date", field)
	}
	return &t, nil
}

// AdmitRequest is the body of POST /patients. When Email is set a patient
// account is created and linked to the record.
type AdmitRequest struct {
	FullName         string     `json:"full_name"`
	Email            string     `json:"email,omitempty"`
	Password         string     `json:"password,omitempty"`
	Phone            *string    `json:"phone,omitempty"`
	DateOfBirth      *string    `json:"date_of_birth,omitempty"`
	BloodType        *string    `json:"blood_type,omitempty"`
	Allergies        []string   `json:"allergies,omitempty"`
	EmergencyContact *string    `json:"emergency_contact,omitempty"`
	EmergencyPhone   *string    `json:"emergency_phone,omitempty"`
	RoomNumber       *string    `json:"room_number,omitempty"`
	AssignedDoctorID *uuid.UUID `json:"assigned_doctor_id,omitempty"`
	AdmissionReason  string     `json:"admission_reason,omitempty"`
}

func (r *AdmitRequest) Validate() error {
	r.FullName = strings.TrimSpace(r.FullName)
	if r.FullName == "" {
		return fmt.Errorf("full_name is required")
	}
	if r.BloodType != nil && *r.BloodType != "" && !ValidBloodType(*r.BloodType) {
		return fmt.Errorf("invalid blood_type %q", *r.BloodType)
	}
	if _, err := parseDate("date_of_birth", r.DateOfBirth); err != nil {
		return err
	}
	return nil
}

// AdmitResult carries the generated password once, when one was generated.
type AdmitResult struct {
	Patient           *Patient `json:"patient"`
	ProfileID         *string  `json:"profile_id,omitempty"`
	TemporaryPassword string   `json:"temporary_password,omitempty"`
}

// Update is the body of PUT /patients/:id.
type Update struct {
	FullName         *string   `json:"full_name,omitempty"`
	RoomNumber       *string   `json:"room_number,omitempty"`
	BloodType        *string   `json:"blood_type,omitempty"`
	Allergies        *[]string `json:"allergies,omitempty"`
	DateOfBirth      *string   `json:"date_of_birth,omitempty"`
	EmergencyContact *string   `json:"emergency_contact,omitempty"`
	EmergencyPhone   *string   `json:"emergency_phone,omitempty"`
}

type ListFilter struct {
	DoctorID *uuid.UUID
	Roomed   *bool
	Search   string
}

var (
	ErrNotFound  = errors.New("patient not found")
	ErrForbidden = errors.New("patient record belongs to another account")
	ErrNotDoctor = errors.New("assigned profile is not a doctor")
)

func cleanAllergies(in []string) []string {
	out := make([]string, 0, len(in))
	for _, a := range in {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}
