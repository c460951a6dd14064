package monitoring

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/wardwatch/internal/platform/db"
)

// DefaultVitalsLimit is the rolling window shown on vitals monitors.
const DefaultVitalsLimit = 24

type Service struct {
	repo Repository
	tx   db.TxBeginner
	now  func() time.Time
}

func NewService(repo Repository, tx db.TxBeginner) *Service {
	return &Service{repo: repo, tx: tx, now: time.Now}
}

// Record classifies v, stores it and one alert per breached metric in a
// single transaction.
func (s *Service) Record(ctx context.Context, v Vital) (*RecordResult, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	if v.RecordedAt.IsZero() {
		v.RecordedAt = s.now().UTC()
	}
	readings := Classify(v)
	v.IsAlert = len(Breaches(readings)) > 0
	alerts := AlertsFor(v, readings)

	err := db.WithTx(ctx, s.tx, func(ctx context.Context) error {
		if err := s.repo.CreateVital(ctx, &v); err != nil {
			return err
		}
		for _, a := range alerts {
			a.VitalID = &v.ID
			if err := s.repo.CreateAlert(ctx, a); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &RecordResult{Vital: &v, Alerts: alerts, Readings: readings}, nil
}

// Vitals returns up to limit readings for a patient, newest first.
func (s *Service) Vitals(ctx context.Context, patientID uuid.UUID, limit int) ([]Vital, error) {
	if limit <= 0 || limit > 500 {
		limit = DefaultVitalsLimit
	}
	return s.repo.ListVitals(ctx, patientID, limit)
}

func (s *Service) Alerts(ctx context.Context, f AlertFilter, limit, offset int) ([]Alert, int, error) {
	return s.repo.ListAlerts(ctx, f, limit, offset)
}

func (s *Service) Summary(ctx context.Context, f AlertFilter) (AlertSummary, error) {
	return s.repo.SummarizeAlerts(ctx, f)
}

// Acknowledge marks an alert reviewed. Acknowledging twice is not an error;
// the second call reports Changed=false and leaves the first reviewer.
func (s *Service) Acknowledge(ctx context.Context, id, by uuid.UUID) (*AcknowledgeResult, error) {
	a, changed, err := s.repo.AcknowledgeAlert(ctx, id, by, s.now().UTC())
	if err != nil {
		return nil, err
	}
	return &AcknowledgeResult{Alert: a, Changed: changed}, nil
}
