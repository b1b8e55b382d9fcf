package engine

import (
	"context"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/miradorstack/mirador-noc/internal/models"
)

func validEvent() map[string]any {
	return map[string]any{
		"source":      "aws.cloudwatch",
		"detail-type": "CloudWatch Alarm State Change",
		"detail":      map[string]any{"alarmName": "cpu-high"},
	}
}

func TestProcessEventRejectsMissingDetail(t *testing.T) {
	alarms := &fakeAlarms{alarms: []models.Alarm{alarmAt("a", "AWS/EC2", 0)}}
	o := NewOrchestrator(nil, Dependencies{Alarms: alarms})

	for _, event := range []map[string]any{
		{"source": "aws.cloudwatch"},
		{"detail": "not-an-object"},
		nil,
	} {
		res := o.ProcessEvent(context.Background(), event)
		if res.Status != models.StatusError || len(res.Results) != 0 || res.Error == "" {
			t.Fatalf("expected invalid input error for %v, got %+v", event, res)
		}
	}
}

func TestProcessRawEventRejectsNonObject(t *testing.T) {
	res := NewOrchestrator(nil, Dependencies{}).ProcessRawEvent(context.Background(), []byte(`[1,2,3]`))
	if res.Status != models.StatusError || len(res.Results) != 0 {
		t.Fatalf("expected error, got %+v", res)
	}
}

func TestProcessEventWithoutDecisionOrHistory(t *testing.T) {
	alarms := &fakeAlarms{alarms: []models.Alarm{
		alarmAt("cpu-a", "AWS/EC2", 0),
		alarmAt("cpu-b", "AWS/EC2", 10*time.Second),
	}}
	res := NewOrchestrator(nil, Dependencies{Alarms: alarms}).ProcessEvent(context.Background(), validEvent())
	if res.Status != models.StatusSuccess {
		t.Fatalf("expected success, got %+v", res)
	}
	if len(res.Results) != 1 {
		t.Fatalf("expected one incident, got %d", len(res.Results))
	}
	incident := res.Results[0]
	if len(incident.Correlation.Alarms) != 2 {
		t.Fatalf("expected both alarms in one group, got %+v", incident.Correlation.Alarms)
	}
	if incident.Correlation.RootCause != models.UnknownRootCause || incident.Decision.RootCause != models.UnknownRootCause {
		t.Fatalf("expected unknown root cause, got %q / %q", incident.Correlation.RootCause, incident.Decision.RootCause)
	}
	if incident.Decision.ID != models.PlaceholderDecisionID || incident.Decision.Error == "" {
		t.Fatalf("expected placeholder decision with error, got %+v", incident.Decision)
	}
}

func TestProcessEventSnapshotFailureDegrades(t *testing.T) {
	o := NewOrchestrator(nil, Dependencies{Alarms: &fakeAlarms{err: errUpstream}})
	res := o.ProcessEvent(context.Background(), validEvent())
	if res.Status != models.StatusSuccess || len(res.Results) != 0 || len(res.Warnings) != 1 {
		t.Fatalf("expected empty success with a warning, got %+v", res)
	}
}

func TestProcessEventCorrelationErrorIsTopLevel(t *testing.T) {
	o := NewOrchestrator(nil, Dependencies{Alarms: &fakeAlarms{alarms: []models.Alarm{{}}}})
	res := o.ProcessEvent(context.Background(), validEvent())
	if res.Status != models.StatusError || len(res.Results) != 0 {
		t.Fatalf("expected top-level error, got %+v", res)
	}
}

func TestProcessEventRecoversPanics(t *testing.T) {
	o := NewOrchestrator(nil, Dependencies{
		Alarms:   &fakeAlarms{alarms: []models.Alarm{alarmAt("a", "AWS/EC2", 0)}},
		Insights: &fakeInsights{panicOn: "EC2"},
	})
	res := o.ProcessEvent(context.Background(), validEvent())
	if res.Status != models.StatusError || len(res.Results) != 0 || res.Error == "" {
		t.Fatalf("expected recovered error, got %+v", res)
	}
}

func TestProcessEventFullPipeline(t *testing.T) {
	alarms := &fakeAlarms{alarms: []models.Alarm{
		alarmAt("ec2-cpu", "AWS/EC2", 0),
		alarmAt("rds-conn", "AWS/RDS", 20*time.Minute),
	}}
	store := &fakeStore{}
	groupDecisions := &fakeDecisions{decision: models.Decision{RootCause: "group-level"}}
	decisions := &fakeDecisions{decision: models.Decision{
		ID:         "dec-1",
		RootCause:  "database saturation",
		Confidence: 0.7,
		Severity:   models.SeverityCritical,
	}}
	rules := NewStaticRuleEngine([]models.Rule{{ID: "rds", Match: models.RuleMatch{Namespace: "AWS/RDS"}}})
	dispatcher := &fakeDispatcher{}
	notifier := &fakeNotifier{}
	sink := &fakeSink{}
	insights := &fakeInsights{}

	correlator := NewCorrelator(nil, store, groupDecisions, nil, nil, 0, 0)
	o := NewOrchestrator(nil, Dependencies{
		Alarms:     alarms,
		Correlator: correlator,
		Insights:   insights,
		Rules:      rules,
		Decisions:  decisions,
		Dispatcher: dispatcher,
		Notifier:   notifier,
		Sink:       sink,
	})
	ids := 0
	o.newID = func() string {
		ids++
		return fmt.Sprintf("inc-%d", ids)
	}

	res := o.ProcessEvent(context.Background(), validEvent())
	if res.Status != models.StatusSuccess || len(res.Results) != 2 {
		t.Fatalf("expected two incidents, got %+v", res)
	}
	if res.Results[0].Correlation.Alarms[0].Name != "ec2-cpu" || res.Results[1].Correlation.Alarms[0].Name != "rds-conn" {
		t.Fatalf("results must follow correlation order")
	}
	if res.Results[0].Correlation.RootCause != "group-level" {
		t.Fatalf("expected correlator decision on group, got %q", res.Results[0].Correlation.RootCause)
	}
	if _, ok := res.Results[0].MetricInsights["EC2"]; !ok {
		t.Fatalf("expected EC2 insights, got %v", res.Results[0].MetricInsights)
	}
	if len(decisions.rules[0]) != 0 || len(decisions.rules[1]) != 1 || decisions.rules[1][0].ID != "rds" {
		t.Fatalf("unexpected rules passed to decision: %+v", decisions.rules)
	}
	if _, ok := decisions.payloads[0]["metric_insights"]; !ok {
		t.Fatalf("decision payload missing metric_insights")
	}
	if len(dispatcher.decisions) != 2 || dispatcher.decisions[0].ID != "dec-1" {
		t.Fatalf("expected dispatch of each decision, got %+v", dispatcher.decisions)
	}
	wantChannels := []models.Channel{models.ChannelTeams, models.ChannelSlack, models.ChannelPagerDuty, models.ChannelEmail}
	if !reflect.DeepEqual(notifier.channels[0], wantChannels) {
		t.Fatalf("expected critical channels, got %v", notifier.channels[0])
	}
	if notifier.notes[0].ID != "inc-1" || notifier.notes[0].Type != "database saturation" {
		t.Fatalf("unexpected notification: %+v", notifier.notes[0])
	}
	if len(sink.records) != 2 || sink.records[1].ID != "inc-2" || sink.records[1].Sources[0] != "RDS" {
		t.Fatalf("expected both incidents recorded, got %+v", sink.records)
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", res.Warnings)
	}
}

func TestProcessEventDecisionFailureUsesPlaceholder(t *testing.T) {
	notifier := &fakeNotifier{}
	sink := &fakeSink{err: errUpstream}
	o := NewOrchestrator(nil, Dependencies{
		Alarms:     &fakeAlarms{alarms: []models.Alarm{alarmAt("a", "AWS/EC2", 0)}},
		Decisions:  &fakeDecisions{err: errUpstream},
		Dispatcher: &fakeDispatcher{},
		Notifier:   notifier,
		Sink:       sink,
	})
	res := o.ProcessEvent(context.Background(), validEvent())
	if res.Status != models.StatusSuccess || len(res.Results) != 1 {
		t.Fatalf("expected success with one incident, got %+v", res)
	}
	d := res.Results[0].Decision
	if d.ID != models.PlaceholderDecisionID || d.RootCause != models.UnknownRootCause || d.Error == "" {
		t.Fatalf("expected placeholder decision, got %+v", d)
	}
	if !reflect.DeepEqual(notifier.channels[0], []models.Channel{models.ChannelTeams}) {
		t.Fatalf("expected base channel for default severity, got %v", notifier.channels[0])
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("expected recording failure surfaced as warning, got %v", res.Warnings)
	}
}

func TestCollectInsightsPreservesSourceKeys(t *testing.T) {
	insights := &fakeInsights{delays: map[string]time.Duration{"EC2": 20 * time.Millisecond}}
	o := NewOrchestrator(nil, Dependencies{Insights: insights, Concurrency: 3})
	group := models.AlertGroup{Alarms: []models.Alarm{
		alarmAt("a", "AWS/EC2", 0),
		alarmAt("b", "AWS/RDS", 0),
		alarmAt("c", "AWS/Lambda", 0),
		alarmAt("d", "AWS/EC2", 0),
	}}
	got := o.collectInsights(context.Background(), group)
	if len(got) != 3 || len(insights.calls) != 3 {
		t.Fatalf("expected one fetch per distinct source, got %v calls=%v", got, insights.calls)
	}
	for _, src := range []string{"EC2", "RDS", "Lambda"} {
		if got[src].Source != src {
			t.Fatalf("insight for %s stored under wrong key: %+v", src, got[src])
		}
	}
}
