package models

import "time"

// Channel identifies a notification channel. The set is closed; senders switch
// over it exhaustively.
type Channel string

const (
	ChannelTeams     Channel = "teams"
	ChannelSlack     Channel = "slack"
	ChannelPagerDuty Channel = "pagerduty"
	ChannelEmail     Channel = "email"
)

// Channels lists every known channel.
var Channels = []Channel{ChannelTeams, ChannelSlack, ChannelPagerDuty, ChannelEmail}

// ParseChannel reports whether value names a known channel.
func ParseChannel(value string) (Channel, bool) {
	for _, c := range Channels {
		if string(c) == value {
			return c, true
		}
	}
	return "", false
}

// ActionResult is the outcome of executing a single action.
type ActionResult struct {
	Type        ActionType `json:"type"`
	Status      Status     `json:"status"`
	ExecutionID string     `json:"execution_id,omitempty"`
	MessageID   string     `json:"message_id,omitempty"`
	Reference   string     `json:"reference,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// ActionOutcome aggregates action results for one decision.
type ActionOutcome struct {
	DecisionID    string         `json:"decision_id"`
	ActionResults []ActionResult `json:"action_results"`
	Status        Status         `json:"status"`
	Error         string         `json:"error,omitempty"`
}

// ChannelResult is the outcome of one channel delivery attempt.
type ChannelResult struct {
	Channel    Channel `json:"channel"`
	Status     Status  `json:"status"`
	StatusCode int     `json:"status_code,omitempty"`
	MessageID  string  `json:"message_id,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// NotificationOutcome aggregates channel results for one incident.
type NotificationOutcome struct {
	IncidentID          string          `json:"incident_id"`
	NotificationResults []ChannelResult `json:"notification_results"`
	Status              Status          `json:"status"`
	Error               string          `json:"error,omitempty"`
}

// Notification is the incident summary handed to the notifier.
type Notification struct {
	ID             string                    `json:"id"`
	Type           string                    `json:"type"`
	Title          string                    `json:"title"`
	Description    string                    `json:"description"`
	Severity       Severity                  `json:"severity"`
	Status         string                    `json:"status"`
	Alerts         []Alarm                   `json:"alerts"`
	Actions        []ActionResult            `json:"actions"`
	MetricInsights map[string]ServiceInsight `json:"metric_insights,omitempty"`
	Timestamp      time.Time                 `json:"timestamp"`
}

// IncidentResult is the assembled record of one correlated, decided and dispatched group.
type IncidentResult struct {
	IncidentID     string                    `json:"incident_id"`
	Correlation    AlertGroup                `json:"correlation"`
	MetricInsights map[string]ServiceInsight `json:"metric_insights"`
	Decision       Decision                  `json:"decision"`
	Actions        ActionOutcome             `json:"actions"`
	Notifications  NotificationOutcome       `json:"notifications"`
	Timestamp      time.Time                 `json:"timestamp"`
}

// Result is the aggregate response of one event processing run.
type Result struct {
	Status    Status           `json:"status"`
	Results   []IncidentResult `json:"results,omitempty"`
	Warnings  []string         `json:"warnings,omitempty"`
	Error     string           `json:"error,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}
