package scheduling

import (
	"testing"
	"time"
)

func TestAppointmentStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to AppointmentStatus
		want     bool
	}{
		{AppointmentPending, AppointmentConfirmed, true},
		{AppointmentPending, AppointmentCancelled, true},
		{AppointmentPending, AppointmentCompleted, false},
		{AppointmentConfirmed, AppointmentCompleted, true},
		{AppointmentConfirmed, AppointmentCancelled, true},
		{AppointmentConfirmed, AppointmentPending, false},
		{AppointmentCompleted, AppointmentCancelled, false},
		{AppointmentCancelled, AppointmentPending, false},
		{AppointmentPending, AppointmentPending, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestConsultationStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to ConsultationStatus
		want     bool
	}{
		{ConsultationWaiting, ConsultationInProgress, true},
		{ConsultationWaiting, ConsultationCancelled, true},
		{ConsultationWaiting, ConsultationCompleted, false},
		{ConsultationInProgress, ConsultationCompleted, true},
		{ConsultationInProgress, ConsultationCancelled, true},
		{ConsultationCompleted, ConsultationInProgress, false},
		{ConsultationCancelled, ConsultationWaiting, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestAppointment_End(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	a := Appointment{ScheduledAt: start, DurationMinutes: 45}
	if !a.End().Equal(start.Add(45 * time.Minute)) {
		t.Errorf("unexpected end %v", a.End())
	}
}

func TestConsultation_Duration(t *testing.T) {
	start := time.Now()
	end := start.Add(20 * time.Minute)
	c := Consultation{StartedAt: &start}
	if c.Duration() != 0 {
		t.Error("duration should be zero before the end")
	}
	c.EndedAt = &end
	if c.Duration() != 20*time.Minute {
		t.Errorf("unexpected duration %v", c.Duration())
	}
}
