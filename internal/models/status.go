package models

import "strings"

// Status is the coarse outcome reported on every result structure.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Severity captures impact levels.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseSeverity normalises a free-form severity, defaulting to medium.
func ParseSeverity(value string) Severity {
	switch sev := Severity(strings.ToLower(strings.TrimSpace(value))); sev {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return sev
	default:
		return SeverityMedium
	}
}
