package insight

import (
	"strings"

	"github.com/tidwall/gjson"
)

// stripFence removes a ```json ... ``` wrapper around a reply.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

func stringList(r gjson.Result) []string {
	var out []string
	for _, v := range r.Array() {
		if s := strings.TrimSpace(v.String()); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ParseReply reads the model output. Anything that is not a JSON object
// becomes a normal-status summary carrying the raw text.
func ParseReply(content string) Result {
	body := stripFence(content)
	if !gjson.Valid(body) {
		return Result{Status: "normal", Summary: strings.TrimSpace(content)}
	}
	doc := gjson.Parse(body)
	if !doc.IsObject() {
		return Result{Status: "normal", Summary: strings.TrimSpace(content)}
	}
	return Result{
		Status:         doc.Get("status").String(),
		Summary:        doc.Get("summary").String(),
		Insights:       stringList(doc.Get("insights")),
		Recommendation: doc.Get("recommendation").String(),
		Priority:       doc.Get("priority").String(),
		Actions:        stringList(doc.Get("actions")),
	}
}
