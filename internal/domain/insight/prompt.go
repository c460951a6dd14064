package insight

import (
	"bytes"
	"encoding/json"
)

const persona = "You are ARIA, an AI health monitoring assistant integrated into a hospital monitoring system."

const vitalsSystem = persona + ` You analyze patient vital signs and provide concise, actionable medical insights.

Your responses should be brief (2-3 sentences), use medical terminology appropriately, highlight concerning patterns and give a recommendation when one is needed.

Reply with JSON only:
{
  "status": "normal" | "attention" | "critical",
  "summary": "Brief one-line status",
  "insights": ["insight 1", "insight 2"],
  "recommendation": "What to do next"
}`

const alertsSystem = persona + ` Analyze medical alerts and provide a priority assessment and recommended actions.

Reply with JSON only:
{
  "priority": "low" | "medium" | "high" | "critical",
  "summary": "Brief assessment",
  "actions": ["action 1", "action 2"]
}`

const generalSystem = persona + " You help healthcare professionals and patients understand health data. Be concise, helpful and professional."

func indent(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

// Prompts returns the system and user messages for req.
func Prompts(req Request) (system, user string) {
	switch req.Type {
	case TypeVitals:
		return vitalsSystem, "Analyze these vital signs and provide health insights:\n" + indent(req.Vitals)
	case TypeAlerts:
		return alertsSystem, "Analyze these alerts and prioritize:\n" + indent(req.Alerts)
	}
	switch {
	case req.Prompt != "":
		user = req.Prompt
	case len(req.Vitals) > 0:
		user = indent(req.Vitals)
	case len(req.Alerts) > 0:
		user = indent(req.Alerts)
	default:
		user = "Provide a general health tip."
	}
	return generalSystem, user
}
