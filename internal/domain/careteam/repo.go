package careteam

import (
	"context"

	"github.com/google/uuid"
)

type DirectoryRepository interface {
	// Upsert creates or replaces the directory entry of p.ProfileID. It
	// never changes is_verified.
	Upsert(ctx context.Context, p *DoctorProfile) error
	GetByProfileID(ctx context.Context, profileID uuid.UUID) (*DoctorProfile, error)
	SetVerified(ctx context.Context, profileID uuid.UUID, verified bool) error
	List(ctx context.Context, f DirectoryFilter, limit, offset int) ([]*DoctorProfile, int, error)
}

type RequestRepository interface {
	// Create returns ErrPendingRequest when the patient already has an
	// open request.
	Create(ctx context.Context, r *ChangeRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*ChangeRequest, error)
	// Review stores the decision on a pending request and returns
	// ErrNotPending when it was already decided.
	Review(ctx context.Context, r *ChangeRequest) error
	List(ctx context.Context, f RequestFilter, limit, offset int) ([]*ChangeRequest, int, error)
}

type RecordRepository interface {
	Create(ctx context.Context, r *Record) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Record, int, error)
}
