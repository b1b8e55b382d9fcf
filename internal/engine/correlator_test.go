package engine

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/miradorstack/mirador-noc/internal/models"
	"github.com/miradorstack/mirador-noc/internal/patterns"
)

func newTestCorrelator(store IncidentStore, decisions DecisionService, relation RelationStrategy) *Correlator {
	c := NewCorrelator(nil, store, decisions, relation, patterns.NewMiner(nil, 2, 5), 0, 0)
	c.now = func() time.Time { return baseTime.Add(time.Hour) }
	return c
}

func TestCorrelateEmpty(t *testing.T) {
	res := newTestCorrelator(&fakeStore{}, &fakeDecisions{}, nil).Correlate(context.Background(), nil)
	if res.Status != models.StatusSuccess || len(res.Groups) != 0 {
		t.Fatalf("expected empty success, got %+v", res)
	}
}

func TestCorrelatePartitionsEveryAlarmOnce(t *testing.T) {
	alarms := []models.Alarm{
		alarmAt("db-1", "AWS/RDS", 30*time.Second),
		alarmAt("ec2-2", "AWS/EC2", 20*time.Second),
		alarmAt("ec2-1", "AWS/EC2", 0),
		alarmAt("ec2-late", "AWS/EC2", 20*time.Minute),
	}
	res := newTestCorrelator(&fakeStore{}, &fakeDecisions{decision: models.Decision{RootCause: "cpu"}}, nil).Correlate(context.Background(), alarms)
	if res.Status != models.StatusSuccess {
		t.Fatalf("unexpected status: %+v", res)
	}
	var got [][]string
	total := 0
	for _, g := range res.Groups {
		got = append(got, names(g))
		total += len(g.Alarms)
	}
	want := [][]string{{"ec2-1", "ec2-2"}, {"db-1"}, {"ec2-late"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if total != len(alarms) {
		t.Fatalf("expected every alarm grouped exactly once, got %d of %d", total, len(alarms))
	}
}

func TestCorrelateChainsThroughLastMember(t *testing.T) {
	alarms := []models.Alarm{
		alarmAt("a", "AWS/EC2", 0),
		alarmAt("b", "AWS/EC2", 4*time.Minute),
		alarmAt("c", "AWS/EC2", 8*time.Minute),
		alarmAt("d", "AWS/EC2", 13*time.Minute+time.Second),
	}
	res := newTestCorrelator(&fakeStore{}, &fakeDecisions{}, nil).Correlate(context.Background(), alarms)
	if len(res.Groups) != 2 {
		t.Fatalf("expected two groups, got %d", len(res.Groups))
	}
	if got := names(res.Groups[0]); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("expected a chain spanning 8 minutes, got %v", got)
	}
}

func TestCorrelateWindowBoundaryInclusive(t *testing.T) {
	alarms := []models.Alarm{
		alarmAt("a", "AWS/EC2", 0),
		alarmAt("b", "AWS/EC2", 5*time.Minute),
	}
	res := newTestCorrelator(&fakeStore{}, &fakeDecisions{}, nil).Correlate(context.Background(), alarms)
	if len(res.Groups) != 1 {
		t.Fatalf("expected 300s gap to stay in one group, got %d groups", len(res.Groups))
	}
}

func TestCorrelateZeroTimestampSortsFirst(t *testing.T) {
	undated := models.Alarm{Name: "undated", Namespace: "AWS/S3"}
	alarms := []models.Alarm{alarmAt("a", "AWS/EC2", 0), undated}
	res := newTestCorrelator(&fakeStore{}, &fakeDecisions{}, nil).Correlate(context.Background(), alarms)
	if len(res.Groups) != 2 || res.Groups[0].Alarms[0].Name != "undated" {
		t.Fatalf("expected undated alarm first in its own group, got %+v", res.Groups)
	}
}

func TestCorrelateRelationStrategyJoinsNamespaces(t *testing.T) {
	elb := alarmAt("elb", "AWS/ApplicationELB", 0)
	elb.Dimensions = map[string]string{"AutoScalingGroupName": "web"}
	ec2 := alarmAt("ec2", "AWS/EC2", time.Minute)
	ec2.Dimensions = map[string]string{"AutoScalingGroupName": "web"}

	res := newTestCorrelator(&fakeStore{}, &fakeDecisions{}, TagRelation{Keys: []string{"AutoScalingGroupName"}}).
		Correlate(context.Background(), []models.Alarm{elb, ec2})
	if len(res.Groups) != 1 {
		t.Fatalf("expected tag relation to join namespaces, got %d groups", len(res.Groups))
	}
}

func TestCorrelateAppliesDecision(t *testing.T) {
	now := baseTime.Add(time.Hour)
	store := &fakeStore{records: []models.IncidentRecord{
		{ID: "i1", RootCause: "cpu saturation", Timestamp: now.Add(-2 * time.Hour)},
		{ID: "i2", RootCause: "cpu saturation", Timestamp: now.Add(-time.Hour)},
	}}
	decisions := &fakeDecisions{decision: models.Decision{
		RootCause:  "cpu saturation",
		Confidence: 0.9,
		Actions:    []models.Action{models.TicketAction{Summary: "scale"}},
	}}
	res := newTestCorrelator(store, decisions, nil).Correlate(context.Background(), []models.Alarm{alarmAt("a", "AWS/EC2", 0)})

	g := res.Groups[0]
	if g.RootCause != "cpu saturation" || g.Confidence != 0.9 || len(g.RecommendedActions) != 1 || g.Error != "" {
		t.Fatalf("unexpected group: %+v", g)
	}
	if !store.since[0].Equal(now.Add(-24 * time.Hour)) {
		t.Fatalf("expected 24h history lookup, got %v", store.since[0])
	}
	if g.History == nil || len(g.History.RecentIncidents) != 2 || len(g.History.RecurringCauses) != 1 {
		t.Fatalf("expected history with recurring cause, got %+v", g.History)
	}
	payload := decisions.payloads[0]
	for _, key := range []string{"alerts", "history", "timestamp"} {
		if _, ok := payload[key]; !ok {
			t.Fatalf("decision payload missing %q", key)
		}
	}
}

func TestCorrelateHistoryFailureStillDecides(t *testing.T) {
	decisions := &fakeDecisions{decision: models.Decision{RootCause: "disk-full", Confidence: 0.9}}
	res := newTestCorrelator(&fakeStore{err: errUpstream}, decisions, nil).Correlate(context.Background(), []models.Alarm{alarmAt("a", "AWS/EC2", 0)})
	if res.Status != models.StatusSuccess || len(res.Groups) != 1 {
		t.Fatalf("history failure must not abort the pass: %+v", res)
	}
	g := res.Groups[0]
	if g.RootCause != "disk-full" || g.Confidence != 0.9 || g.Error != "" {
		t.Fatalf("expected decision applied despite missing history, got %+v", g)
	}
	now := baseTime.Add(time.Hour)
	if g.History == nil || !g.History.TimeRange.End.Equal(now) || !g.History.TimeRange.Start.Equal(now.Add(-24*time.Hour)) {
		t.Fatalf("expected computed bounds on failure, got %+v", g.History)
	}
	if len(g.History.RecentIncidents) != 0 || g.History.Error == "" {
		t.Fatalf("expected empty history carrying the error, got %+v", g.History)
	}
	if len(decisions.payloads) != 1 {
		t.Fatalf("expected one decision call, got %d", len(decisions.payloads))
	}
	sent, ok := decisions.payloads[0]["history"].(models.HistoryContext)
	if !ok || len(sent.RecentIncidents) != 0 || sent.Error == "" {
		t.Fatalf("expected empty history in decision payload, got %#v", decisions.payloads[0]["history"])
	}
}

func TestCorrelateDecisionFailureIsolated(t *testing.T) {
	alarms := []models.Alarm{alarmAt("a", "AWS/EC2", 0), alarmAt("b", "AWS/RDS", 0)}
	res := newTestCorrelator(&fakeStore{}, &fakeDecisions{err: errUpstream}, nil).Correlate(context.Background(), alarms)
	if res.Status != models.StatusSuccess || len(res.Groups) != 2 {
		t.Fatalf("expected both groups retained, got %+v", res)
	}
	for _, g := range res.Groups {
		if g.Error == "" || g.RootCause != models.UnknownRootCause {
			t.Fatalf("expected degraded group, got %+v", g)
		}
	}
}

func TestCorrelateHardFailures(t *testing.T) {
	c := newTestCorrelator(&fakeStore{}, &fakeDecisions{}, nil)

	res := c.Correlate(context.Background(), []models.Alarm{{StateUpdatedAt: baseTime}})
	if res.Status != models.StatusError || len(res.Groups) != 0 {
		t.Fatalf("expected error for alarm without identity, got %+v", res)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res = c.Correlate(ctx, []models.Alarm{alarmAt("a", "AWS/EC2", 0)})
	if res.Status != models.StatusError || len(res.Groups) != 0 {
		t.Fatalf("expected error for cancelled context, got %+v", res)
	}
}
