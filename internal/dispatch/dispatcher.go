package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/miradorstack/mirador-noc/internal/metrics"
	"github.com/miradorstack/mirador-noc/internal/models"
)

// SSMAPI is the subset of the SSM client used for remediation.
type SSMAPI interface {
	StartAutomationExecution(ctx context.Context, params *ssm.StartAutomationExecutionInput, optFns ...func(*ssm.Options)) (*ssm.StartAutomationExecutionOutput, error)
}

// LambdaAPI is the subset of the Lambda client used for remediation.
type LambdaAPI interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// SNSAPI is the subset of the SNS client used for notify actions.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Dispatcher runs every action of a decision and reports one result per action.
type Dispatcher struct {
	logger     *slog.Logger
	ssm        SSMAPI
	lambda     LambdaAPI
	sns        SNSAPI
	ticketURL  string
	httpClient *http.Client
}

// New constructs a Dispatcher. Nil clients make the matching actions fail
// with a "not configured" result.
func New(logger *slog.Logger, ssmClient SSMAPI, lambdaClient LambdaAPI, snsClient SNSAPI, ticketURL string, timeout time.Duration) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		logger:     logger,
		ssm:        ssmClient,
		lambda:     lambdaClient,
		sns:        snsClient,
		ticketURL:  ticketURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// NewFromConfig builds a Dispatcher on real SDK clients.
func NewFromConfig(cfg aws.Config, logger *slog.Logger, ticketURL string, timeout time.Duration) *Dispatcher {
	return New(logger, ssm.NewFromConfig(cfg), lambda.NewFromConfig(cfg), sns.NewFromConfig(cfg), ticketURL, timeout)
}

// Execute runs the decision's actions in order. Individual failures are
// recorded on their result; the outcome itself only fails for a nil receiver.
func (d *Dispatcher) Execute(ctx context.Context, decision models.Decision) models.ActionOutcome {
	outcome := models.ActionOutcome{
		DecisionID:    decision.ID,
		ActionResults: make([]models.ActionResult, 0, len(decision.Actions)),
		Status:        models.StatusSuccess,
	}
	if outcome.DecisionID == "" {
		outcome.DecisionID = models.PlaceholderDecisionID
	}

	for _, action := range decision.Actions {
		result := d.executeOne(ctx, decision, action)
		if result.Status == models.StatusError {
			d.logger.Warn("action failed",
				slog.String("decision_id", outcome.DecisionID),
				slog.String("type", string(result.Type)),
				slog.String("error", result.Error),
			)
		}
		metrics.ObserveAction(string(result.Type), string(result.Status))
		outcome.ActionResults = append(outcome.ActionResults, result)
	}
	return outcome
}

func (d *Dispatcher) executeOne(ctx context.Context, decision models.Decision, action models.Action) models.ActionResult {
	switch a := action.(type) {
	case models.RemediateAction:
		return d.remediate(ctx, a)
	case models.NotifyAction:
		return d.publish(ctx, a)
	case models.TicketAction:
		return d.ticket(ctx, decision, a)
	case models.UnknownAction:
		if a.RawType == "" {
			return failed(a.Type(), "missing action type")
		}
		return failed(a.Type(), fmt.Sprintf("unknown action type: %s", a.RawType))
	default:
		return failed("", fmt.Sprintf("unsupported action %T", action))
	}
}

func failed(t models.ActionType, msg string) models.ActionResult {
	return models.ActionResult{Type: t, Status: models.StatusError, Error: msg}
}

func (d *Dispatcher) remediate(ctx context.Context, a models.RemediateAction) models.ActionResult {
	switch {
	case a.Document != "":
		if d.ssm == nil {
			return failed(models.ActionRemediate, "ssm client not configured")
		}
		out, err := d.ssm.StartAutomationExecution(ctx, &ssm.StartAutomationExecutionInput{
			DocumentName: aws.String(a.Document),
			Parameters:   a.Parameters,
		})
		if err != nil {
			return failed(models.ActionRemediate, fmt.Sprintf("start automation %s: %v", a.Document, err))
		}
		return models.ActionResult{
			Type:        models.ActionRemediate,
			Status:      models.StatusSuccess,
			ExecutionID: aws.ToString(out.AutomationExecutionId),
		}

	case a.LambdaFunction != "":
		if d.lambda == nil {
			return failed(models.ActionRemediate, "lambda client not configured")
		}
		payload := a.Payload
		if payload == nil {
			payload = map[string]any{}
		}
		body, err := json.Marshal(payload)
		if err != nil {
			return failed(models.ActionRemediate, fmt.Sprintf("marshal lambda payload: %v", err))
		}
		out, err := d.lambda.Invoke(ctx, &lambda.InvokeInput{
			FunctionName: aws.String(a.LambdaFunction),
			Payload:      body,
		})
		if err != nil {
			return failed(models.ActionRemediate, fmt.Sprintf("invoke %s: %v", a.LambdaFunction, err))
		}
		if out.FunctionError != nil {
			return failed(models.ActionRemediate, fmt.Sprintf("%s returned %s: %s", a.LambdaFunction, aws.ToString(out.FunctionError), out.Payload))
		}
		return models.ActionResult{
			Type:      models.ActionRemediate,
			Status:    models.StatusSuccess,
			Reference: string(out.Payload),
		}

	default:
		return failed(models.ActionRemediate, "no supported remediation type found")
	}
}

func (d *Dispatcher) publish(ctx context.Context, a models.NotifyAction) models.ActionResult {
	if a.TopicARN == "" {
		return failed(models.ActionNotify, "no supported notification type found")
	}
	if d.sns == nil {
		return failed(models.ActionNotify, "sns client not configured")
	}
	in := &sns.PublishInput{
		TopicArn: aws.String(a.TopicARN),
		Message:  aws.String(a.Message),
	}
	if a.Subject != "" {
		in.Subject = aws.String(a.Subject)
	}
	out, err := d.sns.Publish(ctx, in)
	if err != nil {
		return failed(models.ActionNotify, fmt.Sprintf("publish to %s: %v", a.TopicARN, err))
	}
	return models.ActionResult{
		Type:      models.ActionNotify,
		Status:    models.StatusSuccess,
		MessageID: aws.ToString(out.MessageId),
	}
}

func (d *Dispatcher) ticket(ctx context.Context, decision models.Decision, a models.TicketAction) models.ActionResult {
	if d.ticketURL == "" {
		return failed(models.ActionTicket, "ticket endpoint not configured")
	}
	body, err := json.Marshal(map[string]any{
		"summary":     a.Summary,
		"description": a.Description,
		"priority":    a.Priority,
		"decision_id": decision.ID,
		"root_cause":  decision.RootCause,
		"severity":    decision.Severity,
	})
	if err != nil {
		return failed(models.ActionTicket, fmt.Sprintf("marshal ticket: %v", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.ticketURL, bytes.NewReader(body))
	if err != nil {
		return failed(models.ActionTicket, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return failed(models.ActionTicket, fmt.Sprintf("create ticket: %v", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return failed(models.ActionTicket, fmt.Sprintf("ticket endpoint returned %s", resp.Status))
	}

	var created struct {
		ID  string `json:"id"`
		Key string `json:"key"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&created)
	ref := created.ID
	if ref == "" {
		ref = created.Key
	}
	return models.ActionResult{Type: models.ActionTicket, Status: models.StatusSuccess, Reference: ref}
}
