package monitoring

import (
	"testing"
	"time"
)

func TestSummarizeAlerts(t *testing.T) {
	alerts := []Alert{
		{Severity: SeverityCritical},
		{Severity: SeverityCritical, IsAcknowledged: true},
		{Severity: SeverityMedium},
		{Severity: SeverityHigh, IsAcknowledged: true},
	}
	got := SummarizeAlerts(alerts)
	want := AlertSummary{Total: 4, Unacknowledged: 2, Critical: 2, PendingCritical: 1}
	if got != want {
		t.Errorf("SummarizeAlerts = %+v, want %+v", got, want)
	}
	if (SummarizeAlerts(nil) != AlertSummary{}) {
		t.Error("empty input should produce a zero summary")
	}
}

func TestSummarizeVitals(t *testing.T) {
	now := time.Now()
	vitals := []Vital{
		{HeartRate: intp(125), IsAlert: true, RecordedAt: now},
		{HeartRate: intp(80), RecordedAt: now.Add(-time.Minute)},
		{OxygenSaturation: floatp(93), IsAlert: true, RecordedAt: now.Add(-2 * time.Minute)},
	}
	s := SummarizeVitals(vitals)
	if s.Total != 3 || s.Flagged != 2 {
		t.Errorf("unexpected counts %+v", s)
	}
	if s.Latest == nil || *s.Latest.HeartRate != 125 {
		t.Fatalf("latest should be the first row, got %+v", s.Latest)
	}
	if s.Status != LevelCritical {
		t.Errorf("expected critical status, got %s", s.Status)
	}

	empty := SummarizeVitals(nil)
	if empty.Status != LevelNormal || empty.Latest != nil {
		t.Errorf("unexpected empty summary %+v", empty)
	}
}
