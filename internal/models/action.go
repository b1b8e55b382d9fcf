package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ActionType tags the concrete Action variant.
type ActionType string

const (
	ActionRemediate ActionType = "remediate"
	ActionNotify    ActionType = "notify"
	ActionTicket    ActionType = "ticket"
)

// Action is a remediation step recommended by the decision service. The set of
// variants is closed: RemediateAction, NotifyAction, TicketAction and UnknownAction.
type Action interface {
	Type() ActionType
	isAction()
}

// RemediateAction starts an SSM automation document or invokes a Lambda
// function; Document takes precedence when both are set.
type RemediateAction struct {
	Document       string              `json:"ssm_document,omitempty"`
	Parameters     map[string][]string `json:"parameters,omitempty"`
	LambdaFunction string              `json:"lambda_function,omitempty"`
	Payload        map[string]any      `json:"payload,omitempty"`
}

// NotifyAction publishes a message to an SNS topic.
type NotifyAction struct {
	TopicARN string `json:"topic_arn,omitempty"`
	Subject  string `json:"subject,omitempty"`
	Message  string `json:"message,omitempty"`
}

// TicketAction opens a ticket in the configured tracker.
type TicketAction struct {
	Summary     string `json:"summary,omitempty"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority,omitempty"`
}

// UnknownAction preserves an action whose type is missing or not recognised.
type UnknownAction struct {
	RawType string         `json:"raw_type,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
}

func (RemediateAction) Type() ActionType { return ActionRemediate }
func (NotifyAction) Type() ActionType    { return ActionNotify }
func (TicketAction) Type() ActionType    { return ActionTicket }
func (a UnknownAction) Type() ActionType { return ActionType(a.RawType) }

func (RemediateAction) isAction() {}
func (NotifyAction) isAction()    {}
func (TicketAction) isAction()    {}
func (UnknownAction) isAction()   {}

func (a RemediateAction) MarshalJSON() ([]byte, error) {
	type alias RemediateAction
	return json.Marshal(struct {
		Type ActionType `json:"type"`
		alias
	}{ActionRemediate, alias(a)})
}

func (a NotifyAction) MarshalJSON() ([]byte, error) {
	type alias NotifyAction
	return json.Marshal(struct {
		Type ActionType `json:"type"`
		alias
	}{ActionNotify, alias(a)})
}

func (a TicketAction) MarshalJSON() ([]byte, error) {
	type alias TicketAction
	return json.Marshal(struct {
		Type ActionType `json:"type"`
		alias
	}{ActionTicket, alias(a)})
}

func (a UnknownAction) MarshalJSON() ([]byte, error) {
	type alias UnknownAction
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{a.RawType, alias(a)})
}

// ParseAction maps a loosely typed action payload onto its variant.
func ParseAction(raw map[string]any) Action {
	kind, _ := raw["type"].(string)
	switch ActionType(strings.ToLower(kind)) {
	case ActionRemediate:
		payload, _ := raw["payload"].(map[string]any)
		return RemediateAction{
			Document:       stringField(raw, "ssm_document"),
			Parameters:     parameterField(raw, "parameters"),
			LambdaFunction: stringField(raw, "lambda_function"),
			Payload:        payload,
		}
	case ActionNotify:
		return NotifyAction{
			TopicARN: stringField(raw, "topic_arn"),
			Subject:  stringField(raw, "subject"),
			Message:  stringField(raw, "message"),
		}
	case ActionTicket:
		return TicketAction{
			Summary:     stringField(raw, "summary"),
			Description: stringField(raw, "description"),
			Priority:    stringField(raw, "priority"),
		}
	default:
		return UnknownAction{RawType: kind, Fields: raw}
	}
}

// ParseActions converts a decoded JSON list into actions, skipping non-object entries.
func ParseActions(value any) []Action {
	list, ok := value.([]any)
	if !ok {
		return nil
	}
	actions := make([]Action, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			actions = append(actions, ParseAction(m))
		}
	}
	return actions
}

func stringField(raw map[string]any, key string) string {
	v, ok := raw[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// parameterField accepts both {"k": "v"} and {"k": ["v1", "v2"]} shapes, as SSM does.
func parameterField(raw map[string]any, key string) map[string][]string {
	m, ok := raw[key].(map[string]any)
	if !ok || len(m) == 0 {
		return nil
	}
	params := make(map[string][]string, len(m))
	for k, v := range m {
		switch typed := v.(type) {
		case []any:
			for _, item := range typed {
				params[k] = append(params[k], fmt.Sprint(item))
			}
		case nil:
		default:
			params[k] = []string{fmt.Sprint(typed)}
		}
	}
	return params
}
