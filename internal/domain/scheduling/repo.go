package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	List(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error)
	// Overlaps reports whether the doctor has an active appointment
	// intersecting [start, end).
	Overlaps(ctx context.Context, doctorID uuid.UUID, start, end time.Time) (bool, error)
	// LockDoctor serializes bookings of doctorID until the surrounding
	// transaction ends.
	LockDoctor(ctx context.Context, doctorID uuid.UUID) error
}

type ConsultationRepository interface {
	Create(ctx context.Context, c *Consultation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Consultation, error)
	Update(ctx context.Context, c *Consultation) error
	List(ctx context.Context, f ConsultationFilter, limit, offset int) ([]*Consultation, int, error)
}
