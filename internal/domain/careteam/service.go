package careteam

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/wardwatch/internal/domain/patient"
	"github.com/ehr/wardwatch/internal/platform/auth"
	"github.com/ehr/wardwatch/internal/platform/db"
)

// Patients is the part of the patient service the care team depends on.
type Patients interface {
	Mine(ctx context.Context, profileID uuid.UUID) (*patient.Patient, error)
	AssignDoctor(ctx context.Context, id uuid.UUID, doctorID *uuid.UUID) (*patient.Patient, error)
	Authorize(ctx context.Context, s auth.Session, patientID uuid.UUID) error
}

type Service struct {
	directory DirectoryRepository
	requests  RequestRepository
	records   RecordRepository
	patients  Patients
	tx        db.TxBeginner
	now       func() time.Time
}

func NewService(directory DirectoryRepository, requests RequestRepository, records RecordRepository,
	patients Patients, tx db.TxBeginner) *Service {
	return &Service{
		directory: directory,
		requests:  requests,
		records:   records,
		patients:  patients,
		tx:        tx,
		now:       time.Now,
	}
}

// -- Directory --

// Doctors lists verified doctors, optionally those listing specialization.
func (s *Service) Doctors(ctx context.Context, specialization string, limit, offset int) ([]*DoctorProfile, int, error) {
	return s.directory.List(ctx, DirectoryFilter{
		Specialization: strings.TrimSpace(specialization),
		VerifiedOnly:   true,
	}, limit, offset)
}

func (s *Service) Doctor(ctx context.Context, profileID uuid.UUID) (*DoctorProfile, error) {
	return s.directory.GetByProfileID(ctx, profileID)
}

// SaveProfile replaces the caller's own directory entry. New entries start
// unverified.
func (s *Service) SaveProfile(ctx context.Context, profileID uuid.UUID, role auth.Role, in ProfileInput) (*DoctorProfile, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	d := &DoctorProfile{
		ProfileID:           profileID,
		DoctorType:          defaultDoctorType(role),
		ConsultationPrice:   in.ConsultationPrice,
		Specializations:     cleanSpecializations(in.Specializations),
		HospitalAffiliation: in.HospitalAffiliation,
		LicenseNumber:       in.LicenseNumber,
		Availability:        in.Availability,
	}
	if in.DoctorType != nil {
		d.DoctorType = *in.DoctorType
	}
	if err := s.directory.Upsert(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) Verify(ctx context.Context, profileID uuid.UUID, verified bool) (*DoctorProfile, error) {
	if err := s.directory.SetVerified(ctx, profileID, verified); err != nil {
		return nil, err
	}
	return s.directory.GetByProfileID(ctx, profileID)
}

func (s *Service) listed(ctx context.Context, profileID uuid.UUID) error {
	d, err := s.directory.GetByProfileID(ctx, profileID)
	if errors.Is(err, ErrNotFound) {
		return ErrUnlisted
	}
	if err != nil {
		return err
	}
	if !d.IsVerified {
		return ErrUnlisted
	}
	return nil
}

// -- Change requests --

// RequestChange files a request against the caller's own patient record,
// capturing the doctor assigned at the time.
func (s *Service) RequestChange(ctx context.Context, profileID uuid.UUID, in ChangeRequestInput) (*ChangeRequest, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	p, err := s.patients.Mine(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if in.RequestedDoctorID != nil {
		if p.AssignedDoctorID != nil && *p.AssignedDoctorID == *in.RequestedDoctorID {
			return nil, ErrSameDoctor
		}
		if err := s.listed(ctx, *in.RequestedDoctorID); err != nil {
			return nil, err
		}
	}
	c := &ChangeRequest{
		PatientID:         p.ID,
		CurrentDoctorID:   p.AssignedDoctorID,
		RequestedDoctorID: in.RequestedDoctorID,
		Reason:            in.Reason,
		Status:            RequestPending,
	}
	if err := s.requests.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Requests lists every request for admins and only the caller's own for
// patients.
func (s *Service) Requests(ctx context.Context, sess auth.Session, status RequestStatus, limit, offset int) ([]*ChangeRequest, int, error) {
	if status != "" && !status.Valid() {
		return nil, 0, fmt.Errorf("invalid status %q", status)
	}
	f := RequestFilter{Status: status}
	if sess.Role != auth.RoleAdmin {
		pid, err := uuid.Parse(sess.ProfileID)
		if err != nil {
			return nil, 0, patient.ErrForbidden
		}
		p, err := s.patients.Mine(ctx, pid)
		if err != nil {
			return nil, 0, err
		}
		f.PatientID = &p.ID
	}
	return s.requests.List(ctx, f, limit, offset)
}

// Approve reassigns the patient to doctorID, or to the requested doctor
// when doctorID is nil, and closes the request in the same transaction.
func (s *Service) Approve(ctx context.Context, reviewer, id uuid.UUID, doctorID *uuid.UUID) (*ChangeRequest, error) {
	var out *ChangeRequest
	err := db.WithTx(ctx, s.tx, func(ctx context.Context) error {
		c, err := s.pending(ctx, id)
		if err != nil {
			return err
		}
		if doctorID == nil {
			doctorID = c.RequestedDoctorID
		}
		if doctorID == nil {
			return ErrNoDoctor
		}
		if _, err := s.patients.AssignDoctor(ctx, c.PatientID, doctorID); err != nil {
			return err
		}
		c.RequestedDoctorID = doctorID
		if err := s.review(ctx, c, reviewer, RequestApproved); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Reject closes a pending request without touching the assignment.
func (s *Service) Reject(ctx context.Context, reviewer, id uuid.UUID) (*ChangeRequest, error) {
	c, err := s.pending(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.review(ctx, c, reviewer, RequestRejected); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) pending(ctx context.Context, id uuid.UUID) (*ChangeRequest, error) {
	c, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != RequestPending {
		return nil, ErrNotPending
	}
	return c, nil
}

func (s *Service) review(ctx context.Context, c *ChangeRequest, reviewer uuid.UUID, status RequestStatus) error {
	at := s.now().UTC()
	c.Status = status
	c.ReviewedBy = &reviewer
	c.ReviewedAt = &at
	return s.requests.Review(ctx, c)
}

// -- Records --

func (s *Service) Records(ctx context.Context, sess auth.Session, patientID uuid.UUID, limit, offset int) ([]*Record, int, error) {
	if err := s.patients.Authorize(ctx, sess, patientID); err != nil {
		return nil, 0, err
	}
	return s.records.ListByPatient(ctx, patientID, limit, offset)
}

// AddRecord writes a record authored by the calling clinician.
func (s *Service) AddRecord(ctx context.Context, author uuid.UUID, patientID uuid.UUID, in RecordInput) (*Record, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	rec := &Record{
		PatientID:   patientID,
		DoctorID:    &author,
		RecordType:  in.RecordType,
		Title:       in.Title,
		Content:     in.Content,
		IsInpatient: in.IsInpatient,
		Attachments: in.Attachments,
	}
	if err := s.records.Create(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// RecordAdmission opens the inpatient record of a new admission. It runs in
// the caller's transaction when there is one.
func (s *Service) RecordAdmission(ctx context.Context, patientID uuid.UUID, doctorID *uuid.UUID, reason string) error {
	content := admissionContent(reason)
	return s.records.Create(ctx, &Record{
		PatientID:   patientID,
		DoctorID:    doctorID,
		RecordType:  admissionType,
		Title:       admissionTitle,
		Content:     &content,
		IsInpatient: true,
	})
}
