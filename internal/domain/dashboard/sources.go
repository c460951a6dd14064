package dashboard

import (
	"context"

	"github.com/google/uuid"

	"github.com/ehr/wardwatch/internal/domain/identity"
	"github.com/ehr/wardwatch/internal/domain/messaging"
	"github.com/ehr/wardwatch/internal/domain/monitoring"
	"github.com/ehr/wardwatch/internal/domain/patient"
	"github.com/ehr/wardwatch/internal/domain/pharmacy"
	"github.com/ehr/wardwatch/internal/domain/scheduling"
)

type PatientSource interface {
	List(ctx context.Context, f patient.ListFilter, limit, offset int) ([]*patient.Patient, int, error)
	Mine(ctx context.Context, profileID uuid.UUID) (*patient.Patient, error)
}

type MonitoringSource interface {
	Vitals(ctx context.Context, patientID uuid.UUID, limit int) ([]monitoring.Vital, error)
	Alerts(ctx context.Context, f monitoring.AlertFilter, limit, offset int) ([]monitoring.Alert, int, error)
	// Summary counts every alert matching f.
	Summary(ctx context.Context, f monitoring.AlertFilter) (monitoring.AlertSummary, error)
}

type MessageSource interface {
	Inbox(ctx context.Context, me uuid.UUID, limit, offset int) ([]messaging.Message, int, error)
	UnreadCount(ctx context.Context, me uuid.UUID) (int, error)
}

type ScheduleSource interface {
	ListAppointments(ctx context.Context, f scheduling.AppointmentFilter, limit, offset int) ([]*scheduling.Appointment, int, error)
	ListConsultations(ctx context.Context, f scheduling.ConsultationFilter, limit, offset int) ([]*scheduling.Consultation, int, error)
}

type PharmacySource interface {
	ListPrescriptions(ctx context.Context, f pharmacy.PrescriptionFilter, limit, offset int) ([]*pharmacy.Prescription, int, error)
	ListOrders(ctx context.Context, status pharmacy.OrderStatus, limit, offset int) ([]*pharmacy.PharmacyOrder, int, error)
}

type ProfileSource interface {
	ListProfiles(ctx context.Context, f identity.ProfileFilter, limit, offset int) ([]*identity.Profile, int, error)
}

// Sources are the read services the builders draw from. The domain
// services satisfy these directly.
type Sources struct {
	Patients   PatientSource
	Monitoring MonitoringSource
	Messages   MessageSource
	Schedule   ScheduleSource
	Pharmacy   PharmacySource
	Profiles   ProfileSource
}
