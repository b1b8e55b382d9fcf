package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/miradorstack/mirador-noc/internal/metrics"
	"github.com/miradorstack/mirador-noc/internal/models"
	"github.com/miradorstack/mirador-noc/internal/utils"
)

// AlarmSource snapshots the currently firing alarms.
type AlarmSource interface {
	ListFiring(ctx context.Context) ([]models.Alarm, error)
}

// InsightProvider produces per-source metric enrichment.
type InsightProvider interface {
	ServiceInsights(ctx context.Context, source string) models.ServiceInsight
}

// RuleMatcher selects rules relevant to a set of alarms.
type RuleMatcher interface {
	MatchingRules(alarms []models.Alarm) []models.Rule
}

// Dispatcher executes the actions of a decision.
type Dispatcher interface {
	Execute(ctx context.Context, decision models.Decision) models.ActionOutcome
}

// Notifier delivers an incident summary to channels.
type Notifier interface {
	Send(ctx context.Context, n models.Notification, channels []models.Channel, severity models.Severity) models.NotificationOutcome
}

// IncidentSink persists assembled incidents.
type IncidentSink interface {
	Record(ctx context.Context, record models.IncidentRecord) error
}

// Dependencies wires the orchestrator's collaborators. Any of them may be nil;
// the corresponding stage then degrades and says so on its result.
type Dependencies struct {
	Alarms      AlarmSource
	Correlator  *Correlator
	Insights    InsightProvider
	Rules       RuleMatcher
	Decisions   DecisionService
	Dispatcher  Dispatcher
	Notifier    Notifier
	Sink        IncidentSink
	Channels    ChannelPolicy
	Concurrency int
	Latency     *utils.LatencyTracker
}

// Orchestrator sequences snapshot, correlation, enrichment, decision, dispatch
// and notification for one event.
type Orchestrator struct {
	logger      *slog.Logger
	alarms      AlarmSource
	correlator  *Correlator
	insights    InsightProvider
	rules       RuleMatcher
	decisions   DecisionService
	dispatcher  Dispatcher
	notifier    Notifier
	sink        IncidentSink
	channels    ChannelPolicy
	concurrency int
	latency     *utils.LatencyTracker
	now         func() time.Time
	newID       func() string
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(logger *slog.Logger, deps Dependencies) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Correlator == nil {
		deps.Correlator = NewCorrelator(logger, nil, deps.Decisions, nil, nil, 0, 0)
	}
	if deps.Channels.Base == "" {
		deps.Channels = DefaultChannelPolicy()
	}
	if deps.Concurrency <= 0 {
		deps.Concurrency = 4
	}
	if deps.Latency == nil {
		deps.Latency = utils.NewLatencyTracker(256)
	}
	return &Orchestrator{
		logger:      logger,
		alarms:      deps.Alarms,
		correlator:  deps.Correlator,
		insights:    deps.Insights,
		rules:       deps.Rules,
		decisions:   deps.Decisions,
		dispatcher:  deps.Dispatcher,
		notifier:    deps.Notifier,
		sink:        deps.Sink,
		channels:    deps.Channels,
		concurrency: deps.Concurrency,
		latency:     deps.Latency,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// ProcessRawEvent decodes a JSON event and processes it.
func (o *Orchestrator) ProcessRawEvent(ctx context.Context, payload []byte) models.Result {
	var event map[string]any
	if err := json.Unmarshal(payload, &event); err != nil {
		err = utils.NewAppError("orchestrator.decode", utils.KindInvalidInput, "event is not a JSON object", err)
		result := o.failure(err.Error(), nil)
		metrics.ObserveEvent(0, metrics.OutcomeError)
		return result
	}
	return o.ProcessEvent(ctx, event)
}

// ProcessEvent runs the full pipeline for one alarm event. Only invalid input,
// a failed correlation pass or a panic produce an error status; every other
// failure is recorded on the affected group and processing continues.
func (o *Orchestrator) ProcessEvent(ctx context.Context, event map[string]any) (result models.Result) {
	start := o.now()
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("event processing panicked", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			result = o.failure(fmt.Sprintf("internal error: %v", r), nil)
		}
		outcome := metrics.OutcomeSuccess
		if result.Status == models.StatusError {
			outcome = metrics.OutcomeError
		}
		metrics.ObserveEvent(o.now().Sub(start), outcome)
	}()

	detail, err := eventDetail(event)
	if err != nil {
		o.logger.Warn("rejecting event", slog.Any("error", err))
		return o.failure(err.Error(), nil)
	}
	attrs := []any{
		slog.String("source", stringValue(event["source"])),
		slog.String("alarm", stringValue(detail["alarmName"])),
	}
	if ts, err := utils.ParseTimestamp(stringValue(event["time"])); err == nil {
		attrs = append(attrs, slog.Duration("event_age", o.now().Sub(ts)))
	}
	o.logger.Info("processing event", attrs...)

	var warnings []string
	alarms, err := o.snapshot(ctx)
	if err != nil {
		o.logger.Warn("alarm snapshot failed, continuing with none", slog.Any("error", err))
		warnings = append(warnings, err.Error())
	}

	stage := o.now()
	correlation := o.correlator.Correlate(ctx, alarms)
	o.latency.Observe("correlate", o.now().Sub(stage))
	if correlation.Status == models.StatusError {
		return o.failure("correlation failed: "+correlation.Error, warnings)
	}

	results := make([]models.IncidentResult, 0, len(correlation.Groups))
	for _, group := range correlation.Groups {
		incident, warning := o.processGroup(ctx, group)
		results = append(results, incident)
		if warning != "" {
			warnings = append(warnings, warning)
		}
	}

	o.logger.Info("event processed",
		slog.Int("alarms", len(alarms)),
		slog.Int("incidents", len(results)),
		slog.Duration("elapsed", o.now().Sub(start)),
	)
	if n := o.latency.Count("correlate"); n%20 == 0 {
		o.logStageLatency()
	}
	return models.Result{
		Status:    models.StatusSuccess,
		Results:   results,
		Warnings:  warnings,
		Timestamp: o.now().UTC(),
	}
}

func (o *Orchestrator) logStageLatency() {
	stages := o.latency.Stages()
	attrs := make([]any, 0, len(stages))
	for _, stage := range stages {
		attrs = append(attrs, slog.Duration(stage+"_p95", o.latency.Percentile(stage, 95)))
	}
	o.logger.Info("stage latency", attrs...)
}

func (o *Orchestrator) failure(msg string, warnings []string) models.Result {
	return models.Result{
		Status:    models.StatusError,
		Warnings:  warnings,
		Error:     msg,
		Timestamp: o.now().UTC(),
	}
}

func eventDetail(event map[string]any) (map[string]any, error) {
	const op = "orchestrator.validate"
	if event == nil {
		return nil, utils.NewAppError(op, utils.KindInvalidInput, "event is empty", nil)
	}
	raw, ok := event["detail"]
	if !ok {
		return nil, utils.NewAppError(op, utils.KindInvalidInput, "invalid event structure: missing 'detail' field", nil)
	}
	detail, ok := raw.(map[string]any)
	if !ok {
		return nil, utils.NewAppError(op, utils.KindInvalidInput, fmt.Sprintf("invalid event structure: 'detail' is %T, want object", raw), nil)
	}
	return detail, nil
}

func (o *Orchestrator) snapshot(ctx context.Context) ([]models.Alarm, error) {
	const op = "orchestrator.snapshot"
	if o.alarms == nil {
		return nil, utils.NewAppError(op, utils.KindUpstreamUnavailable, "alarm source not configured", nil)
	}
	stage := o.now()
	alarms, err := o.alarms.ListFiring(ctx)
	o.latency.Observe("snapshot", o.now().Sub(stage))
	if err != nil {
		return nil, utils.NewAppError(op, utils.KindUpstreamUnavailable, "alarm snapshot unavailable", err)
	}
	return alarms, nil
}

// processGroup runs stages a-g for one group. The returned warning is non-empty
// when the incident could not be persisted.
func (o *Orchestrator) processGroup(ctx context.Context, group models.AlertGroup) (models.IncidentResult, string) {
	incidentID := o.newID()

	stage := o.now()
	insights := o.collectInsights(ctx, group)
	o.latency.Observe("insights", o.now().Sub(stage))

	var rules []models.Rule
	if o.rules != nil {
		rules = o.rules.MatchingRules(group.Alarms)
	}

	stage = o.now()
	decision := o.decide(ctx, group, insights, rules)
	o.latency.Observe("decide", o.now().Sub(stage))

	stage = o.now()
	actions := o.execute(ctx, decision)
	o.latency.Observe("dispatch", o.now().Sub(stage))

	severity := decision.Severity
	if severity == "" {
		severity = models.SeverityMedium
	}
	note := buildNotification(incidentID, group, decision, severity, actions, insights, o.now().UTC())

	stage = o.now()
	notifications := o.notify(ctx, note, o.channels.Select(severity), severity)
	o.latency.Observe("notify", o.now().Sub(stage))

	incident := models.IncidentResult{
		IncidentID:     incidentID,
		Correlation:    group,
		MetricInsights: insights,
		Decision:       decision,
		Actions:        actions,
		Notifications:  notifications,
		Timestamp:      o.now().UTC(),
	}
	return incident, o.record(ctx, incident)
}

// collectInsights fetches every distinct source of the group concurrently and
// keys the results by source.
func (o *Orchestrator) collectInsights(ctx context.Context, group models.AlertGroup) map[string]models.ServiceInsight {
	sources := group.Sources()
	insights := make(map[string]models.ServiceInsight, len(sources))
	if o.insights == nil || len(sources) == 0 {
		return insights
	}

	collected := make([]models.ServiceInsight, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i, source := range sources {
		i, source := i, source
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("insights for %s panicked: %v", source, r)
				}
			}()
			collected[i] = o.insights.ServiceInsights(gctx, source)
			return nil
		})
	}
	// Re-raise on this goroutine so ProcessEvent's recover sees it.
	if err := g.Wait(); err != nil {
		panic(err)
	}

	for i, source := range sources {
		insights[source] = collected[i]
	}
	return insights
}

func (o *Orchestrator) decide(ctx context.Context, group models.AlertGroup, insights map[string]models.ServiceInsight, rules []models.Rule) models.Decision {
	const op = "orchestrator.decide"
	if o.decisions == nil {
		return models.UnknownDecision(utils.NewAppError(op, utils.KindDecisionUnavailable, "decision service not configured", nil))
	}
	if rules == nil {
		rules = []models.Rule{}
	}
	decision, err := o.decisions.Decide(ctx, map[string]any{
		"group":           group,
		"metric_insights": insights,
	}, rules)
	if err != nil {
		o.logger.Warn("decision failed, using placeholder", slog.Int("alarms", len(group.Alarms)), slog.Any("error", err))
		return models.UnknownDecision(err)
	}
	if strings.TrimSpace(decision.ID) == "" {
		decision.ID = models.PlaceholderDecisionID
	}
	if strings.TrimSpace(decision.RootCause) == "" {
		decision.RootCause = models.UnknownRootCause
	}
	if decision.Actions == nil {
		decision.Actions = []models.Action{}
	}
	return decision
}

func (o *Orchestrator) execute(ctx context.Context, decision models.Decision) models.ActionOutcome {
	if o.dispatcher == nil {
		return models.ActionOutcome{
			DecisionID:    decision.ID,
			ActionResults: []models.ActionResult{},
			Status:        models.StatusError,
			Error:         "action dispatcher not configured",
		}
	}
	return o.dispatcher.Execute(ctx, decision)
}

func (o *Orchestrator) notify(ctx context.Context, note models.Notification, channels []models.Channel, severity models.Severity) models.NotificationOutcome {
	if o.notifier == nil {
		return models.NotificationOutcome{
			IncidentID:          note.ID,
			NotificationResults: []models.ChannelResult{},
			Status:              models.StatusError,
			Error:               "notifier not configured",
		}
	}
	return o.notifier.Send(ctx, note, channels, severity)
}

func (o *Orchestrator) record(ctx context.Context, incident models.IncidentResult) string {
	if o.sink == nil {
		return ""
	}
	rec := models.IncidentRecord{
		ID:         incident.IncidentID,
		Timestamp:  incident.Timestamp,
		RootCause:  incident.Decision.RootCause,
		Severity:   incident.Decision.Severity,
		Confidence: incident.Decision.Confidence,
		Sources:    incident.Correlation.Sources(),
		DecisionID: incident.Decision.ID,
	}
	for _, alarm := range incident.Correlation.Alarms {
		rec.AlarmNames = append(rec.AlarmNames, alarm.Name)
	}
	if err := o.sink.Record(ctx, rec); err != nil {
		o.logger.Warn("incident not recorded", slog.String("incident_id", rec.ID), slog.Any("error", err))
		return fmt.Sprintf("incident %s not recorded: %v", rec.ID, err)
	}
	return ""
}

func buildNotification(
	id string,
	group models.AlertGroup,
	decision models.Decision,
	severity models.Severity,
	actions models.ActionOutcome,
	insights map[string]models.ServiceInsight,
	now time.Time,
) models.Notification {
	rootCause := decision.RootCause
	if rootCause == "" || rootCause == models.UnknownRootCause {
		rootCause = group.RootCause
	}
	if rootCause == "" {
		rootCause = models.UnknownRootCause
	}
	return models.Notification{
		ID:             id,
		Type:           rootCause,
		Title:          "NOC incident: " + rootCause,
		Description:    fmt.Sprintf("%d correlated alarm(s). Root cause: %s", len(group.Alarms), rootCause),
		Severity:       severity,
		Status:         "open",
		Alerts:         group.Alarms,
		Actions:        actions.ActionResults,
		MetricInsights: insights,
		Timestamp:      now,
	}
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}
