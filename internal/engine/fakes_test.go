package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/miradorstack/mirador-noc/internal/models"
)

var errUpstream = errors.New("upstream down")

type fakeStore struct {
	records []models.IncidentRecord
	err     error
	since   []time.Time
}

func (f *fakeStore) Recent(_ context.Context, since time.Time) ([]models.IncidentRecord, error) {
	f.since = append(f.since, since)
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

type fakeDecisions struct {
	mu       sync.Mutex
	decision models.Decision
	err      error
	payloads []map[string]any
	rules    [][]models.Rule
}

func (f *fakeDecisions) Decide(_ context.Context, payload map[string]any, rules []models.Rule) (models.Decision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	f.rules = append(f.rules, rules)
	if f.err != nil {
		return models.Decision{}, f.err
	}
	return f.decision, nil
}

type fakeAlarms struct {
	alarms []models.Alarm
	err    error
}

func (f *fakeAlarms) ListFiring(context.Context) ([]models.Alarm, error) {
	return f.alarms, f.err
}

type fakeInsights struct {
	mu      sync.Mutex
	calls   []string
	delays  map[string]time.Duration
	panicOn string
}

func (f *fakeInsights) ServiceInsights(_ context.Context, source string) models.ServiceInsight {
	if source == f.panicOn {
		panic("insight provider exploded")
	}
	if d := f.delays[source]; d > 0 {
		time.Sleep(d)
	}
	f.mu.Lock()
	f.calls = append(f.calls, source)
	f.mu.Unlock()
	return models.ServiceInsight{Source: source, Metrics: []models.MetricInsight{}}
}

type fakeDispatcher struct {
	decisions []models.Decision
}

func (f *fakeDispatcher) Execute(_ context.Context, d models.Decision) models.ActionOutcome {
	f.decisions = append(f.decisions, d)
	return models.ActionOutcome{DecisionID: d.ID, ActionResults: []models.ActionResult{}, Status: models.StatusSuccess}
}

type fakeNotifier struct {
	channels [][]models.Channel
	notes    []models.Notification
}

func (f *fakeNotifier) Send(_ context.Context, n models.Notification, channels []models.Channel, _ models.Severity) models.NotificationOutcome {
	f.channels = append(f.channels, channels)
	f.notes = append(f.notes, n)
	return models.NotificationOutcome{IncidentID: n.ID, NotificationResults: []models.ChannelResult{}, Status: models.StatusSuccess}
}

type fakeSink struct {
	records []models.IncidentRecord
	err     error
}

func (f *fakeSink) Record(_ context.Context, rec models.IncidentRecord) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func alarmAt(name, namespace string, offset time.Duration) models.Alarm {
	return models.Alarm{
		Name:           name,
		Namespace:      namespace,
		MetricName:     "CPUUtilization",
		State:          models.AlarmStateAlarm,
		StateUpdatedAt: baseTime.Add(offset),
	}
}

func names(g models.AlertGroup) []string {
	out := make([]string, len(g.Alarms))
	for i, a := range g.Alarms {
		out[i] = a.Name
	}
	return out
}
