package models

import "strings"

const (
	// UnknownRootCause is reported whenever no decision could be obtained.
	UnknownRootCause = "unknown"
	// PlaceholderDecisionID stands in for a decision that carried no id.
	PlaceholderDecisionID = "unknown"
)

// Decision is the advisory judgement returned by the decision service.
type Decision struct {
	ID         string         `json:"id"`
	RootCause  string         `json:"root_cause"`
	Confidence float64        `json:"confidence"`
	Severity   Severity       `json:"severity"`
	Actions    []Action       `json:"actions"`
	Raw        map[string]any `json:"raw,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// UnknownDecision is the placeholder used when the decision service is unavailable.
func UnknownDecision(err error) Decision {
	d := Decision{
		ID:        PlaceholderDecisionID,
		RootCause: UnknownRootCause,
		Severity:  SeverityMedium,
		Actions:   []Action{},
	}
	if err != nil {
		d.Error = err.Error()
	}
	return d
}

// DecisionFromMap reads a loosely typed decision payload; missing fields default
// rather than fail.
func DecisionFromMap(raw map[string]any) Decision {
	d := Decision{
		ID:        PlaceholderDecisionID,
		RootCause: UnknownRootCause,
		Severity:  SeverityMedium,
		Actions:   []Action{},
		Raw:       raw,
	}
	if raw == nil {
		return d
	}
	if id, ok := raw["id"].(string); ok && strings.TrimSpace(id) != "" {
		d.ID = id
	}
	if rc, ok := raw["root_cause"].(string); ok && strings.TrimSpace(rc) != "" {
		d.RootCause = rc
	}
	switch c := raw["confidence"].(type) {
	case float64:
		d.Confidence = clampUnit(c)
	case int:
		d.Confidence = clampUnit(float64(c))
	}
	if sev, ok := raw["severity"].(string); ok {
		d.Severity = ParseSeverity(sev)
	}
	if actions := ParseActions(raw["actions"]); actions != nil {
		d.Actions = actions
	}
	if msg, ok := raw["error"].(string); ok {
		d.Error = msg
	}
	return d
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
