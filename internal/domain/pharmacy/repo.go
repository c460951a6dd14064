package pharmacy

import (
	"context"

	"github.com/google/uuid"
)

type PrescriptionRepository interface {
	Create(ctx context.Context, p *Prescription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status PrescriptionStatus) error
	List(ctx context.Context, f PrescriptionFilter, limit, offset int) ([]*Prescription, int, error)
}

type OrderRepository interface {
	Create(ctx context.Context, o *PharmacyOrder) error
	GetByID(ctx context.Context, id uuid.UUID) (*PharmacyOrder, error)
	GetByPrescription(ctx context.Context, prescriptionID uuid.UUID) (*PharmacyOrder, error)
	Update(ctx context.Context, o *PharmacyOrder) error
	List(ctx context.Context, status OrderStatus, limit, offset int) ([]*PharmacyOrder, int, error)
}
