package monitoring

import (
	"fmt"
)

// Level is the classification of one measurement.
type Level string

const (
	LevelNormal   Level = "normal"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

func (l Level) rank() int {
	switch l {
	case LevelCritical:
		return 2
	case LevelWarning:
		return 1
	}
	return 0
}

// Metric names a vital sign.
type Metric string

const (
	MetricHeartRate       Metric = "heart_rate"
	MetricOxygen          Metric = "oxygen_saturation"
	MetricTemperature     Metric = "temperature"
	MetricSystolic        Metric = "blood_pressure_systolic"
	MetricRespiratoryRate Metric = "respiratory_rate"
)

// Reading is one classified measurement.
type Reading struct {
	Metric Metric  `json:"metric"`
	Value  float64 `json:"value"`
	Level  Level   `json:"level"`
}

// band holds the bounds outside of which a value is warning or critical.
// A zero bound is not checked.
type band struct {
	criticalLow, warningLow   float64
	warningHigh, criticalHigh float64
	unit, label               string
}

var bands = map[Metric]band{
	MetricHeartRate:       {criticalLow: 50, warningLow: 60, warningHigh: 100, criticalHigh: 120, unit: "bpm", label: "Heart rate"},
	MetricOxygen:          {criticalLow: 90, warningLow: 95, unit: "%", label: "Oxygen saturation"},
	MetricTemperature:     {criticalLow: 35, warningLow: 36, warningHigh: 37.5, criticalHigh: 39, unit: "°C", label: "Temperature"},
	MetricSystolic:        {criticalLow: 90, warningHigh: 140, criticalHigh: 180, unit: "mmHg", label: "Systolic blood pressure"},
	MetricRespiratoryRate: {criticalLow: 8, warningLow: 12, warningHigh: 20, criticalHigh: 30, unit: "/min", label: "Respiratory rate"},
}

func (b band) classify(v float64) Level {
	switch {
	case b.criticalLow != 0 && v < b.criticalLow, b.criticalHigh != 0 && v > b.criticalHigh:
		return LevelCritical
	case b.warningLow != 0 && v < b.warningLow, b.warningHigh != 0 && v > b.warningHigh:
		return LevelWarning
	}
	return LevelNormal
}

// ClassifyMetric classifies a single value.
func ClassifyMetric(m Metric, v float64) Level {
	b, ok := bands[m]
	if !ok {
		return LevelNormal
	}
	return b.classify(v)
}

// Classify returns every recorded metric of v with its level, in a fixed
// metric order.
func Classify(v Vital) []Reading {
	var out []Reading
	add := func(m Metric, val float64) {
		out = append(out, Reading{Metric: m, Value: val, Level: ClassifyMetric(m, val)})
	}
	if v.HeartRate != nil {
		add(MetricHeartRate, float64(*v.HeartRate))
	}
	if v.OxygenSaturation != nil {
		add(MetricOxygen, *v.OxygenSaturation)
	}
	if v.Temperature != nil {
		add(MetricTemperature, *v.Temperature)
	}
	if v.BloodPressureSystolic != nil {
		add(MetricSystolic, float64(*v.BloodPressureSystolic))
	}
	if v.RespiratoryRate != nil {
		add(MetricRespiratoryRate, float64(*v.RespiratoryRate))
	}
	return out
}

// Breaches filters readings to those that are not normal.
func Breaches(readings []Reading) []Reading {
	var out []Reading
	for _, r := range readings {
		if r.Level != LevelNormal {
			out = append(out, r)
		}
	}
	return out
}

// StatusOf is the worst level across readings.
func StatusOf(readings []Reading) Level {
	worst := LevelNormal
	for _, r := range readings {
		if r.Level.rank() > worst.rank() {
			worst = r.Level
		}
	}
	return worst
}

// SeverityFor maps a breach to an alert severity. Two or more warnings on
// the same vital escalate each warning to high.
func SeverityFor(r Reading, breaches []Reading) Severity {
	if r.Level == LevelCritical {
		return SeverityCritical
	}
	warnings := 0
	for _, b := range breaches {
		if b.Level == LevelWarning {
			warnings++
		}
	}
	if warnings >= 2 {
		return SeverityHigh
	}
	return SeverityMedium
}

// AlertMessage is the human readable text stored on an alert.
func AlertMessage(r Reading) string {
	b := bands[r.Metric]
	direction := "high"
	if (b.criticalLow != 0 && r.Value < b.criticalLow) || (b.warningLow != 0 && r.Value < b.warningLow) {
		direction = "low"
	}
	return fmt.Sprintf("%s %s: %g %s (%s)", b.label, direction, r.Value, b.unit, r.Level)
}

// AlertsFor builds the alerts raised by v, one per breached metric.
func AlertsFor(v Vital, readings []Reading) []*Alert {
	breaches := Breaches(readings)
	alerts := make([]*Alert, 0, len(breaches))
	for _, r := range breaches {
		alerts = append(alerts, &Alert{
			PatientID: v.PatientID,
			AlertType: string(r.Metric),
			Severity:  SeverityFor(r, breaches),
			Message:   AlertMessage(r),
		})
	}
	return alerts
}
