package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/wardwatch/internal/platform/db"
)

type Service struct {
	appointments  AppointmentRepository
	consultations ConsultationRepository
	tx            db.TxBeginner
	now           func() time.Time
}

func NewService(appt AppointmentRepository, consult ConsultationRepository, tx db.TxBeginner) *Service {
	return &Service{appointments: appt, consultations: consult, tx: tx, now: time.Now}
}

// -- Appointment --

func (s *Service) CreateAppointment(ctx context.Context, req CreateAppointmentRequest) (*Appointment, error) {
	if req.PatientID == uuid.Nil {
		return nil, fmt.Errorf("patient_id is required")
	}
	if req.DoctorID == uuid.Nil {
		return nil, fmt.Errorf("doctor_id is required")
	}
	if req.AppointmentType == "" {
		req.AppointmentType = TypeInPerson
	}
	if !req.AppointmentType.Valid() {
		return nil, fmt.Errorf("invalid appointment_type %q", req.AppointmentType)
	}
	if req.ScheduledAt.IsZero() {
		return nil, fmt.Errorf("scheduled_at is required")
	}
	if req.ScheduledAt.Before(s.now()) {
		return nil, fmt.Errorf("scheduled_at must be in the future")
	}
	if req.DurationMinutes == 0 {
		req.DurationMinutes = DefaultDurationMinutes
	}
	if req.DurationMinutes < 0 || req.DurationMinutes > MaxDurationMinutes {
		return nil, fmt.Errorf("duration_minutes must be between 1 and %d", MaxDurationMinutes)
	}

	a := &Appointment{
		PatientID:       req.PatientID,
		DoctorID:        req.DoctorID,
		AppointmentType: req.AppointmentType,
		ScheduledAt:     req.ScheduledAt.UTC(),
		DurationMinutes: req.DurationMinutes,
		Status:          AppointmentPending,
		Notes:           req.Notes,
	}
	err := db.WithTx(ctx, s.tx, func(ctx context.Context) error {
		// Concurrent bookings of one doctor would both pass the overlap check.
		if err := s.appointments.LockDoctor(ctx, a.DoctorID); err != nil {
			return err
		}
		taken, err := s.appointments.Overlaps(ctx, a.DoctorID, a.ScheduledAt, a.End())
		if err != nil {
			return err
		}
		if taken {
			return ErrSlotTaken
		}
		return s.appointments.Create(ctx, a)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}

func (s *Service) ListAppointments(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, fmt.Errorf("invalid status %q", f.Status)
	}
	return s.appointments.List(ctx, f, limit, offset)
}

// SetAppointmentStatus moves an appointment along its status machine.
func (s *Service) SetAppointmentStatus(ctx context.Context, id uuid.UUID, req StatusRequest) (*Appointment, error) {
	if !req.Status.Valid() {
		return nil, fmt.Errorf("invalid status %q", req.Status)
	}
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.Status.CanTransition(req.Status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, req.Status)
	}
	a.Status = req.Status
	if req.Notes != nil {
		a.Notes = req.Notes
	}
	if err := s.appointments.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// -- Consultation --

// CreateConsultation opens a waiting consultation. When it is booked from an
// appointment the patient and doctor come from that appointment, which must
// still be active.
func (s *Service) CreateConsultation(ctx context.Context, req CreateConsultationRequest) (*Consultation, error) {
	c := &Consultation{
		AppointmentID: req.AppointmentID,
		PatientID:     req.PatientID,
		DoctorID:      req.DoctorID,
		Status:        ConsultationWaiting,
		Price:         req.Price,
	}
	if c.Price != nil && *c.Price < 0 {
		return nil, fmt.Errorf("price cannot be negative")
	}
	if req.AppointmentID != nil {
		a, err := s.appointments.GetByID(ctx, *req.AppointmentID)
		if err != nil {
			return nil, err
		}
		if !a.Status.Active() {
			return nil, fmt.Errorf("%w: appointment is %s", ErrInvalidTransition, a.Status)
		}
		c.PatientID, c.DoctorID = a.PatientID, a.DoctorID
	}
	if c.PatientID == uuid.Nil {
		return nil, fmt.Errorf("patient_id is required")
	}
	if c.DoctorID == uuid.Nil {
		return nil, fmt.Errorf("doctor_id is required")
	}
	if err := s.consultations.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) GetConsultation(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	return s.consultations.GetByID(ctx, id)
}

func (s *Service) ListConsultations(ctx context.Context, f ConsultationFilter, limit, offset int) ([]*Consultation, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, fmt.Errorf("invalid status %q", f.Status)
	}
	return s.consultations.List(ctx, f, limit, offset)
}

// transition loads a consultation, checks the caller and the move, and
// lets apply stamp the new state. admin skips the doctor check.
func (s *Service) transition(ctx context.Context, id, by uuid.UUID, admin bool, next ConsultationStatus, apply func(*Consultation)) (*Consultation, error) {
	c, err := s.consultations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !admin && c.DoctorID != by {
		return nil, ErrNotAssigned
	}
	if !c.Status.CanTransition(next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, next)
	}
	c.Status = next
	if apply != nil {
		apply(c)
	}
	if err := s.consultations.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) StartConsultation(ctx context.Context, id, by uuid.UUID, admin bool) (*Consultation, error) {
	return s.transition(ctx, id, by, admin, ConsultationInProgress, func(c *Consultation) {
		now := s.now().UTC()
		c.StartedAt = &now
	})
}

// EndConsultation completes the consultation and, in the same transaction,
// its confirmed appointment.
func (s *Service) EndConsultation(ctx context.Context, id, by uuid.UUID, admin bool, req EndRequest) (*Consultation, error) {
	var out *Consultation
	err := db.WithTx(ctx, s.tx, func(ctx context.Context) error {
		c, err := s.transition(ctx, id, by, admin, ConsultationCompleted, func(c *Consultation) {
			now := s.now().UTC()
			c.EndedAt = &now
			if req.Notes != nil {
				c.ConsultationNotes = req.Notes
			}
		})
		if err != nil {
			return err
		}
		out = c
		if c.AppointmentID == nil {
			return nil
		}
		a, err := s.appointments.GetByID(ctx, *c.AppointmentID)
		if err != nil {
			return err
		}
		if a.Status != AppointmentConfirmed {
			return nil
		}
		a.Status = AppointmentCompleted
		return s.appointments.Update(ctx, a)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) CancelConsultation(ctx context.Context, id, by uuid.UUID, admin bool) (*Consultation, error) {
	return s.transition(ctx, id, by, admin, ConsultationCancelled, func(c *Consultation) {
		if c.StartedAt != nil {
			now := s.now().UTC()
			c.EndedAt = &now
		}
	})
}
