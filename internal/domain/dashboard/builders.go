package dashboard

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ehr/wardwatch/internal/domain/identity"
	"github.com/ehr/wardwatch/internal/domain/messaging"
	"github.com/ehr/wardwatch/internal/domain/monitoring"
	"github.com/ehr/wardwatch/internal/domain/patient"
	"github.com/ehr/wardwatch/internal/domain/pharmacy"
	"github.com/ehr/wardwatch/internal/domain/scheduling"
	"github.com/ehr/wardwatch/internal/platform/auth"
)

// window bounds every list a builder reads. Counts shown on the cards come
// from count queries and are never taken from a windowed list.
const window = 100

// recent is how many rows a card lists.
const recent = 10

// Builder fills the role view of d for the profile me.
type Builder func(ctx context.Context, src Sources, me uuid.UUID, now time.Time, d *Dashboard) error

// Builders maps each role to its dashboard. The legacy doctor role gets the
// hospital doctor board.
var Builders = map[auth.Role]Builder{
	auth.RoleAdmin:          buildAdmin,
	auth.RoleDoctor:         buildHospitalDoctor,
	auth.RoleHospitalDoctor: buildHospitalDoctor,
	auth.RoleOnlineDoctor:   buildOnlineDoctor,
	auth.RoleNurse:          buildNurse,
	auth.RolePharmacist:     buildPharmacist,
	auth.RolePatient:        buildPatient,
}

func buildAdmin(ctx context.Context, src Sources, _ uuid.UUID, _ time.Time, d *Dashboard) error {
	v := &AdminView{Staff: make(map[auth.Role]int, len(auth.StaffRoles))}
	counts := make([]int, len(auth.StaffRoles))
	var alerts []monitoring.Alert
	var summary monitoring.AlertSummary

	g, ctx := errgroup.WithContext(ctx)
	for i, role := range auth.StaffRoles {
		g.Go(func() error {
			_, n, err := src.Profiles.ListProfiles(ctx, identity.ProfileFilter{Roles: []auth.Role{role}}, 1, 0)
			counts[i] = n
			return err
		})
	}
	g.Go(func() error {
		_, n, err := src.Patients.List(ctx, patient.ListFilter{}, 1, 0)
		v.Patients = n
		return err
	})
	g.Go(func() error {
		var err error
		alerts, _, err = src.Monitoring.Alerts(ctx, monitoring.AlertFilter{}, recent, 0)
		return err
	})
	g.Go(func() error {
		var err error
		summary, err = src.Monitoring.Summary(ctx, monitoring.AlertFilter{})
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	for i, role := range auth.StaffRoles {
		v.Staff[role] = counts[i]
	}
	v.Alerts = summary
	v.RecentAlerts = head(alerts, recent)
	d.Admin = v
	return nil
}

func buildHospitalDoctor(ctx context.Context, src Sources, me uuid.UUID, now time.Time, d *Dashboard) error {
	var (
		patients []*patient.Patient
		alerts   monitoring.AlertSummary
		today    []*scheduling.Appointment
		inbox    messaging.Summary
	)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		patients, _, err = src.Patients.List(ctx, patient.ListFilter{DoctorID: &me}, window, 0)
		return err
	})
	g.Go(func() error {
		var err error
		alerts, err = src.Monitoring.Summary(ctx, monitoring.AlertFilter{Unacknowledged: true})
		return err
	})
	g.Go(func() error {
		var err error
		today, _, err = src.Schedule.ListAppointments(ctx, scheduling.AppointmentFilter{DoctorID: &me, From: &dayStart, To: &dayEnd}, window, 0)
		return err
	})
	g.Go(func() error {
		var err error
		inbox, err = inboxSummary(ctx, src.Messages, me)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	v := &HospitalDoctorView{
		InPatients:  []*patient.Patient{},
		OutPatients: []*patient.Patient{},
		Alerts:      alerts,
		Today:       activeAppointments(today),
		Messages:    inbox,
	}
	for _, p := range patients {
		if p.Roomed() {
			v.InPatients = append(v.InPatients, p)
		} else {
			v.OutPatients = append(v.OutPatients, p)
		}
	}
	d.HospitalDoctor = v
	return nil
}

func buildOnlineDoctor(ctx context.Context, src Sources, me uuid.UUID, now time.Time, d *Dashboard) error {
	var (
		consultations []*scheduling.Consultation
		upcoming      []*scheduling.Appointment
		inbox         messaging.Summary
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		consultations, _, err = src.Schedule.ListConsultations(ctx, scheduling.ConsultationFilter{DoctorID: &me}, window, 0)
		return err
	})
	g.Go(func() error {
		var err error
		upcoming, _, err = src.Schedule.ListAppointments(ctx, scheduling.AppointmentFilter{DoctorID: &me, From: &now}, window, 0)
		return err
	})
	g.Go(func() error {
		var err error
		inbox, err = inboxSummary(ctx, src.Messages, me)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	v := &OnlineDoctorView{
		Consultations: nonNil(consultations),
		ByStatus:      make(map[scheduling.ConsultationStatus]int),
		Upcoming:      activeAppointments(upcoming),
		Messages:      inbox,
	}
	for _, c := range consultations {
		v.ByStatus[c.Status]++
	}
	d.OnlineDoctor = v
	return nil
}

func buildNurse(ctx context.Context, src Sources, _ uuid.UUID, _ time.Time, d *Dashboard) error {
	roomed := true
	var (
		patients []*patient.Patient
		pending  []monitoring.Alert
		summary  monitoring.AlertSummary
	)
	unacknowledged := monitoring.AlertFilter{Unacknowledged: true}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		patients, _, err = src.Patients.List(ctx, patient.ListFilter{Roomed: &roomed}, window, 0)
		return err
	})
	g.Go(func() error {
		var err error
		pending, _, err = src.Monitoring.Alerts(ctx, unacknowledged, recent, 0)
		return err
	})
	g.Go(func() error {
		var err error
		summary, err = src.Monitoring.Summary(ctx, unacknowledged)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	d.Nurse = &NurseView{
		Patients:      nonNil(patients),
		Alerts:        summary,
		PendingAlerts: head(pending, recent),
	}
	return nil
}

var orderStatuses = []pharmacy.OrderStatus{
	pharmacy.OrderPending, pharmacy.OrderProcessing, pharmacy.OrderReady, pharmacy.OrderDispensed,
}

func buildPharmacist(ctx context.Context, src Sources, _ uuid.UUID, _ time.Time, d *Dashboard) error {
	var prescriptions []*pharmacy.Prescription
	orderCounts := make([]int, len(orderStatuses))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		prescriptions, _, err = src.Pharmacy.ListPrescriptions(ctx, pharmacy.PrescriptionFilter{}, window, 0)
		return err
	})
	for i, status := range orderStatuses {
		g.Go(func() error {
			_, n, err := src.Pharmacy.ListOrders(ctx, status, 1, 0)
			orderCounts[i] = n
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	v := &PharmacistView{
		Prescriptions: []*pharmacy.Prescription{},
		ByStatus:      make(map[pharmacy.PrescriptionStatus]int),
		Orders:        make(map[pharmacy.OrderStatus]int, len(orderStatuses)),
	}
	for _, p := range prescriptions {
		v.ByStatus[p.Status]++
		if p.Status == pharmacy.PrescriptionActive {
			v.Prescriptions = append(v.Prescriptions, p)
		}
	}
	for i, status := range orderStatuses {
		v.Orders[status] = orderCounts[i]
	}
	d.Pharmacist = v
	return nil
}

func buildPatient(ctx context.Context, src Sources, me uuid.UUID, now time.Time, d *Dashboard) error {
	v := &PatientView{
		Vitals:        monitoring.SummarizeVitals(nil),
		Appointments:  []*scheduling.Appointment{},
		Prescriptions: []*pharmacy.Prescription{},
	}
	d.Patient = v

	p, err := src.Patients.Mine(ctx, me)
	if errors.Is(err, patient.ErrNotFound) {
		v.Messages, err = inboxSummary(ctx, src.Messages, me)
		return err
	}
	if err != nil {
		return err
	}
	v.Patient = p

	var (
		vitals        []monitoring.Vital
		alerts        monitoring.AlertSummary
		appointments  []*scheduling.Appointment
		prescriptions []*pharmacy.Prescription
		inbox         messaging.Summary
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		vitals, err = src.Monitoring.Vitals(ctx, p.ID, monitoring.DefaultVitalsLimit)
		return err
	})
	g.Go(func() error {
		var err error
		alerts, err = src.Monitoring.Summary(ctx, monitoring.AlertFilter{PatientID: &p.ID})
		return err
	})
	g.Go(func() error {
		var err error
		appointments, _, err = src.Schedule.ListAppointments(ctx, scheduling.AppointmentFilter{PatientID: &p.ID, From: &now}, window, 0)
		return err
	})
	g.Go(func() error {
		var err error
		prescriptions, _, err = src.Pharmacy.ListPrescriptions(ctx, pharmacy.PrescriptionFilter{PatientID: &p.ID, Status: pharmacy.PrescriptionActive}, window, 0)
		return err
	})
	g.Go(func() error {
		var err error
		inbox, err = inboxSummary(ctx, src.Messages, me)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	v.Vitals = monitoring.SummarizeVitals(vitals)
	v.Alerts = alerts
	v.Appointments = activeAppointments(appointments)
	v.Prescriptions = nonNil(prescriptions)
	v.Messages = inbox
	return nil
}

// inboxSummary counts the inbox of me exactly. The per-sender breakdown
// covers the newest window of messages.
func inboxSummary(ctx context.Context, src MessageSource, me uuid.UUID) (messaging.Summary, error) {
	rows, total, err := src.Inbox(ctx, me, window, 0)
	if err != nil {
		return messaging.Summary{}, err
	}
	unread, err := src.UnreadCount(ctx, me)
	if err != nil {
		return messaging.Summary{}, err
	}
	sum := messaging.Summarize(rows, me)
	sum.Total = total
	sum.Received = total
	sum.Unread = unread
	return sum, nil
}

func activeAppointments(in []*scheduling.Appointment) []*scheduling.Appointment {
	out := []*scheduling.Appointment{}
	for _, a := range in {
		if a.Status.Active() {
			out = append(out, a)
		}
	}
	return out
}

func head[T any](s []T, n int) []T {
	if len(s) > n {
		s = s[:n]
	}
	if s == nil {
		return []T{}
	}
	return s
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
