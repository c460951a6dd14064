package patient

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/wardwatch/internal/domain/identity"
	"github.com/ehr/wardwatch/internal/platform/auth"
	"github.com/ehr/wardwatch/internal/platform/db"
)

// Accounts is the part of the identity service admission depends on.
type Accounts interface {
	CreateAccount(ctx context.Context, req identity.AccountRequest) (*identity.Profile, error)
	GetProfile(ctx context.Context, id uuid.UUID) (*identity.Profile, error)
}

// AdmissionRecorder opens the clinical record of a new admission.
type AdmissionRecorder interface {
	RecordAdmission(ctx context.Context, patientID uuid.UUID, doctorID *uuid.UUID, reason string) error
}

type Service struct {
	repo     Repository
	tx       db.TxBeginner
	accounts Accounts
	records  AdmissionRecorder
	now      func() time.Time
}

func NewService(repo Repository, tx db.TxBeginner, accounts Accounts) *Service {
	return &Service{repo: repo, tx: tx, accounts: accounts, now: time.Now}
}

// RecordAdmissionsWith makes Admit write the admission record through r in
// the admitting transaction.
func (s *Service) RecordAdmissionsWith(r AdmissionRecorder) {
	s.records = r
}

// temporaryPassword returns a random password handed to the admitting nurse.
func temporaryPassword() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate password: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Admit creates the patient record, its admission record when a recorder is
// set, and when an email is given the patient's login and profile, all in
// one transaction.
func (s *Service) Admit(ctx context.Context, req AdmitRequest) (*AdmitResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.AssignedDoctorID != nil {
		if err := s.checkDoctor(ctx, *req.AssignedDoctorID); err != nil {
			return nil, err
		}
	}
	dob, _ := parseDate("date_of_birth", req.DateOfBirth)
	admitted := s.now().UTC()

	p := &Patient{
		FullName:         req.FullName,
		AssignedDoctorID: req.AssignedDoctorID,
		RoomNumber:       req.RoomNumber,
		BloodType:        req.BloodType,
		Allergies:        cleanAllergies(req.Allergies),
		DateOfBirth:      dob,
		EmergencyContact: req.EmergencyContact,
		EmergencyPhone:   req.EmergencyPhone,
		AdmissionDate:    &admitted,
	}
	res := &AdmitResult{Patient: p}

	err := db.WithTx(ctx, s.tx, func(ctx context.Context) error {
		if strings.TrimSpace(req.Email) != "" {
			password := req.Password
			if password == "" {
				generated, err := temporaryPassword()
				if err != nil {
					return err
				}
				password = generated
				res.TemporaryPassword = generated
			}
			profile, err := s.accounts.CreateAccount(ctx, identity.AccountRequest{
				Email:    req.Email,
				Password: password,
				FullName: req.FullName,
				Phone:    req.Phone,
				Role:     auth.RolePatient,
			})
			if err != nil {
				return err
			}
			p.ProfileID = &profile.ID
			id := profile.ID.String()
			res.ProfileID = &id
		}
		if err := s.repo.Create(ctx, p); err != nil {
			return err
		}
		if s.records == nil {
			return nil
		}
		return s.records.RecordAdmission(ctx, p.ID, p.AssignedDoctorID, req.AdmissionReason)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) checkDoctor(ctx context.Context, id uuid.UUID) error {
	prof, err := s.accounts.GetProfile(ctx, id)
	if errors.Is(err, identity.ErrNotFound) {
		return ErrNotDoctor
	}
	if err != nil {
		return err
	}
	if !prof.Role.IsDoctor() {
		return ErrNotDoctor
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

// Mine returns the record linked to a patient's own profile.
func (s *Service) Mine(ctx context.Context, profileID uuid.UUID) (*Patient, error) {
	return s.repo.GetByProfileID(ctx, profileID)
}

func (s *Service) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Patient, int, error) {
	f.Search = strings.TrimSpace(f.Search)
	return s.repo.List(ctx, f, limit, offset)
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, upd Update) (*Patient, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.FullName != nil {
		name := strings.TrimSpace(*upd.FullName)
		if name == "" {
			return nil, fmt.Errorf("full_name cannot be empty")
		}
		p.FullName = name
	}
	if upd.BloodType != nil {
		if *upd.BloodType != "" && !ValidBloodType(*upd.BloodType) {
			return nil, fmt.Errorf("invalid blood_type %q", *upd.BloodType)
		}
		p.BloodType = upd.BloodType
	}
	if upd.DateOfBirth != nil {
		dob, err := parseDate("date_of_birth", upd.DateOfBirth)
		if err != nil {
			return nil, err
		}
		p.DateOfBirth = dob
	}
	if upd.RoomNumber != nil {
		p.RoomNumber = upd.RoomNumber
	}
	if upd.Allergies != nil {
		p.Allergies = cleanAllergies(*upd.Allergies)
	}
	if upd.EmergencyContact != nil {
		p.EmergencyContact = upd.EmergencyContact
	}
	if upd.EmergencyPhone != nil {
		p.EmergencyPhone = upd.EmergencyPhone
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// AssignDoctor sets or clears (nil) the attending doctor.
func (s *Service) AssignDoctor(ctx context.Context, id uuid.UUID, doctorID *uuid.UUID) (*Patient, error) {
	if doctorID != nil {
		if err := s.checkDoctor(ctx, *doctorID); err != nil {
			return nil, err
		}
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p.AssignedDoctorID = doctorID
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// OwnsPatient reports whether the patient record is linked to profileID. It
// backs the realtime channel policy for patient-scoped feeds.
func (s *Service) OwnsPatient(ctx context.Context, profileID, patientID string) (bool, error) {
	pid, err := uuid.Parse(profileID)
	if err != nil {
		return false, nil
	}
	id, err := uuid.Parse(patientID)
	if err != nil {
		return false, nil
	}
	p, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return p.ProfileID != nil && *p.ProfileID == pid, nil
}

// Authorize checks that the caller may read the patient's clinical data:
// staff always, patients only for their own record.
func (s *Service) Authorize(ctx context.Context, sess auth.Session, patientID uuid.UUID) error {
	if sess.Role.IsStaff() {
		return nil
	}
	ok, err := s.OwnsPatient(ctx, sess.ProfileID, patientID.String())
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}
