package monitoring

// AlertSummary is the aggregate shown on alert boards.
type AlertSummary struct {
	Total           int `json:"total"`
	Unacknowledged  int `json:"unacknowledged"`
	Critical        int `json:"critical"`
	PendingCritical int `json:"pending_critical"`
}

// SummarizeAlerts scans alerts from scratch.
func SummarizeAlerts(alerts []Alert) AlertSummary {
	var s AlertSummary
	for i := range alerts {
		a := &alerts[i]
		s.Total++
		critical := a.Severity == SeverityCritical
		if critical {
			s.Critical++
		}
		if a.Pending() {
			s.Unacknowledged++
			if critical {
				s.PendingCritical++
			}
		}
	}
	return s
}

// VitalSummary is the aggregate shown on vitals monitors. Latest is the
// first row of a newest-first slice.
type VitalSummary struct {
	Total   int       `json:"total"`
	Flagged int       `json:"flagged"`
	Latest  *Vital    `json:"latest,omitempty"`
	Status  Level     `json:"status"`
	Current []Reading `json:"current,omitempty"`
}

// SummarizeVitals expects vitals newest first.
func SummarizeVitals(vitals []Vital) VitalSummary {
	s := VitalSummary{Total: len(vitals), Status: LevelNormal}
	for i := range vitals {
		if vitals[i].IsAlert {
			s.Flagged++
		}
	}
	if len(vitals) > 0 {
		latest := vitals[0]
		s.Latest = &latest
		s.Current = Classify(latest)
		s.Status = StatusOf(s.Current)
	}
	return s
}
