package models

import (
	"strings"
	"time"
)

// AlarmState mirrors the CloudWatch alarm state values.
type AlarmState string

const (
	AlarmStateOK               AlarmState = "OK"
	AlarmStateAlarm            AlarmState = "ALARM"
	AlarmStateInsufficientData AlarmState = "INSUFFICIENT_DATA"
)

// Alarm is a single firing monitoring condition observed in one snapshot.
type Alarm struct {
	Name           string            `json:"alarm_name"`
	ARN            string            `json:"alarm_arn,omitempty"`
	Namespace      string            `json:"namespace"`
	MetricName     string            `json:"metric_name"`
	State          AlarmState        `json:"state"`
	StateReason    string            `json:"state_reason,omitempty"`
	StateUpdatedAt time.Time         `json:"state_updated_at"`
	Dimensions     map[string]string `json:"dimensions,omitempty"`
}

// Source returns the signal source the alarm belongs to, with the vendor prefix stripped.
func (a Alarm) Source() string {
	return SourceFromNamespace(a.Namespace)
}

// SourceFromNamespace strips the "AWS/" vendor prefix from a CloudWatch namespace.
func SourceFromNamespace(namespace string) string {
	return strings.TrimPrefix(strings.TrimSpace(namespace), "AWS/")
}

// AlertGroup is an ordered, non-empty run of related alarms from one correlation pass.
type AlertGroup struct {
	Alarms             []Alarm         `json:"alerts"`
	RootCause          string          `json:"root_cause"`
	Confidence         float64         `json:"confidence"`
	RecommendedActions []Action        `json:"recommended_actions"`
	History            *HistoryContext `json:"history,omitempty"`
	Error              string          `json:"error,omitempty"`
}

// Sources lists the distinct signal sources referenced by the group, in first-seen order.
func (g AlertGroup) Sources() []string {
	seen := make(map[string]struct{}, len(g.Alarms))
	sources := make([]string, 0, len(g.Alarms))
	for _, alarm := range g.Alarms {
		if alarm.Namespace == "" {
			continue
		}
		src := alarm.Source()
		if _, ok := seen[src]; ok {
			continue
		}
		seen[src] = struct{}{}
		sources = append(sources, src)
	}
	return sources
}

// CorrelationResult is the outcome of one correlation pass.
type CorrelationResult struct {
	Groups       []AlertGroup `json:"groups"`
	Status       Status       `json:"status"`
	Error        string       `json:"error,omitempty"`
	CorrelatedAt time.Time    `json:"correlation_time"`
}

// TimeRange bounds a look-back window.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// HistoryContext is the recent-incident context handed to the decision service.
type HistoryContext struct {
	RecentIncidents []IncidentRecord `json:"recent_incidents"`
	RecurringCauses []RecurringCause `json:"recurring_causes,omitempty"`
	TimeRange       TimeRange        `json:"time_range"`
	Error           string           `json:"error,omitempty"`
}

// RecurringCause counts how often a root cause was seen in the history window.
type RecurringCause struct {
	RootCause string    `json:"root_cause"`
	Sources   []string  `json:"sources,omitempty"`
	Count     int       `json:"count"`
	LastSeen  time.Time `json:"last_seen"`
}

// IncidentRecord is the persisted summary of an assembled incident.
type IncidentRecord struct {
	ID         string    `json:"incident_id" dynamodbav:"incident_id"`
	Timestamp  time.Time `json:"timestamp" dynamodbav:"timestamp"`
	RootCause  string    `json:"root_cause" dynamodbav:"root_cause"`
	Severity   Severity  `json:"severity" dynamodbav:"severity"`
	Confidence float64   `json:"confidence" dynamodbav:"confidence"`
	Sources    []string  `json:"sources,omitempty" dynamodbav:"sources,omitempty"`
	AlarmNames []string  `json:"alarm_names,omitempty" dynamodbav:"alarm_names,omitempty"`
	DecisionID string    `json:"decision_id,omitempty" dynamodbav:"decision_id,omitempty"`
}
