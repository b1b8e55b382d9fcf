package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/miradorstack/mirador-noc/internal/metrics"
	"github.com/miradorstack/mirador-noc/internal/models"
	"github.com/miradorstack/mirador-noc/internal/patterns"
	"github.com/miradorstack/mirador-noc/internal/utils"
)

const (
	// DefaultCorrelationWindow is the maximum gap between consecutive alarms of one group.
	DefaultCorrelationWindow = 5 * time.Minute
	// DefaultHistoryWindow bounds the incident-store lookup.
	DefaultHistoryWindow = 24 * time.Hour
)

// IncidentStore serves recently recorded incidents.
type IncidentStore interface {
	Recent(ctx context.Context, since time.Time) ([]models.IncidentRecord, error)
}

// DecisionService is the opaque scoring service consulted for root causes.
type DecisionService interface {
	Decide(ctx context.Context, payload map[string]any, rules []models.Rule) (models.Decision, error)
}

// Correlator groups firing alarms into candidate incidents.
type Correlator struct {
	logger        *slog.Logger
	store         IncidentStore
	decisions     DecisionService
	relation      RelationStrategy
	miner         *patterns.Miner
	window        time.Duration
	historyWindow time.Duration
	now           func() time.Time
}

// NewCorrelator constructs a Correlator. Nil collaborators are tolerated; groups
// then carry the corresponding error. Zero windows fall back to the defaults.
func NewCorrelator(
	logger *slog.Logger,
	store IncidentStore,
	decisions DecisionService,
	relation RelationStrategy,
	miner *patterns.Miner,
	window time.Duration,
	historyWindow time.Duration,
) *Correlator {
	if logger == nil {
		logger = slog.Default()
	}
	if relation == nil {
		relation = NoRelation{}
	}
	if window <= 0 {
		window = DefaultCorrelationWindow
	}
	if historyWindow <= 0 {
		historyWindow = DefaultHistoryWindow
	}
	return &Correlator{
		logger:        logger,
		store:         store,
		decisions:     decisions,
		relation:      relation,
		miner:         miner,
		window:        window,
		historyWindow: historyWindow,
		now:           time.Now,
	}
}

// Correlate partitions alarms into groups and enriches each group with history
// and a decision. Per-group failures are recorded on the group; only invalid
// input or a cancelled context fail the whole pass.
func (c *Correlator) Correlate(ctx context.Context, alarms []models.Alarm) models.CorrelationResult {
	result := models.CorrelationResult{
		Groups:       []models.AlertGroup{},
		Status:       models.StatusSuccess,
		CorrelatedAt: c.now().UTC(),
	}
	if len(alarms) == 0 {
		return result
	}

	groups, err := c.group(ctx, alarms)
	if err != nil {
		c.logger.Error("alarm grouping failed", slog.Any("error", err))
		result.Status = models.StatusError
		result.Error = err.Error()
		return result
	}

	for i := range groups {
		c.enrich(ctx, &groups[i])
		metrics.ObserveGroup(groups[i].Error != "")
	}
	result.Groups = groups
	c.logger.Debug("correlation pass complete", slog.Int("alarms", len(alarms)), slog.Int("groups", len(groups)))
	return result
}

// group sorts alarms by state change time and chains each alarm onto the
// current group when it is related to that group's last member.
func (c *Correlator) group(ctx context.Context, alarms []models.Alarm) ([]models.AlertGroup, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("correlation cancelled: %w", err)
	}
	for i, alarm := range alarms {
		if alarm.Name == "" && alarm.Namespace == "" {
			return nil, utils.NewAppError("correlator.group", utils.KindInvalidInput, fmt.Sprintf("alarm %d has neither name nor namespace", i), nil)
		}
	}

	sorted := make([]models.Alarm, len(alarms))
	copy(sorted, alarms)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StateUpdatedAt.Before(sorted[j].StateUpdatedAt)
	})

	var groups []models.AlertGroup
	current := []models.Alarm{sorted[0]}
	for _, alarm := range sorted[1:] {
		if c.related(current[len(current)-1], alarm) {
			current = append(current, alarm)
			continue
		}
		groups = append(groups, newGroup(current))
		current = []models.Alarm{alarm}
	}
	groups = append(groups, newGroup(current))
	return groups, nil
}

func (c *Correlator) related(prev, cur models.Alarm) bool {
	if utils.AbsDuration(cur.StateUpdatedAt, prev.StateUpdatedAt) > c.window {
		return false
	}
	if prev.Namespace == cur.Namespace {
		return true
	}
	return c.relation.Related(prev, cur)
}

func newGroup(alarms []models.Alarm) models.AlertGroup {
	return models.AlertGroup{
		Alarms:             alarms,
		RootCause:          models.UnknownRootCause,
		RecommendedActions: []models.Action{},
	}
}

func (c *Correlator) enrich(ctx context.Context, g *models.AlertGroup) {
	history, err := c.historyContext(ctx)
	g.History = &history
	if err != nil {
		c.logger.Warn("history context unavailable, deciding without it", slog.Int("alarms", len(g.Alarms)), slog.Any("error", err))
	}

	if c.decisions == nil {
		markUnknown(g, utils.NewAppError("correlator.decide", utils.KindDecisionUnavailable, "decision service not configured", nil))
		return
	}
	decision, err := c.decisions.Decide(ctx, map[string]any{
		"alerts":    g.Alarms,
		"history":   history,
		"timestamp": c.now().UTC().Format(time.RFC3339),
	}, nil)
	if err != nil {
		c.logger.Warn("group decision failed", slog.Int("alarms", len(g.Alarms)), slog.Any("error", err))
		markUnknown(g, err)
		return
	}

	g.RootCause = decision.RootCause
	g.Confidence = decision.Confidence
	g.RecommendedActions = decision.Actions
	if g.RecommendedActions == nil {
		g.RecommendedActions = []models.Action{}
	}
}

func markUnknown(g *models.AlertGroup, err error) {
	g.Error = err.Error()
	g.RootCause = models.UnknownRootCause
	g.Confidence = 0
	g.RecommendedActions = []models.Action{}
}

// historyContext computes the window bounds before querying the store so the
// failure path reports the same range with no incidents. Callers keep going
// with the empty history.
func (c *Correlator) historyContext(ctx context.Context) (models.HistoryContext, error) {
	start, end := utils.Window(c.now(), c.historyWindow)
	history := models.HistoryContext{
		RecentIncidents: []models.IncidentRecord{},
		TimeRange:       models.TimeRange{Start: start, End: end},
	}
	if c.store == nil {
		err := utils.NewAppError("correlator.history", utils.KindUpstreamUnavailable, "incident store not configured", nil)
		history.Error = err.Error()
		return history, err
	}

	records, err := c.store.Recent(ctx, start)
	if err != nil {
		err = utils.NewAppError("correlator.history", utils.KindUpstreamUnavailable, "incident history lookup failed", err)
		history.Error = err.Error()
		return history, err
	}
	if records != nil {
		history.RecentIncidents = records
	}
	history.RecurringCauses = c.miner.Mine(records)
	return history, nil
}
