package monitoring

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	CreateVital(ctx context.Context, v *Vital) error
	ListVitals(ctx context.Context, patientID uuid.UUID, limit int) ([]Vital, error)

	CreateAlert(ctx context.Context, a *Alert) error
	GetAlert(ctx context.Context, id uuid.UUID) (*Alert, error)
	ListAlerts(ctx context.Context, f AlertFilter, limit, offset int) ([]Alert, int, error)
	SummarizeAlerts(ctx context.Context, f AlertFilter) (AlertSummary, error)
	// AcknowledgeAlert flips a pending alert and reports whether it changed.
	AcknowledgeAlert(ctx context.Context, id, by uuid.UUID, at time.Time) (*Alert, bool, error)
}
