package patterns

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/miradorstack/mirador-noc/internal/models"
)

// Miner finds root causes that keep coming back in incident history.
type Miner struct {
	minCount int
	limit    int
	logger   *slog.Logger
}

// NewMiner constructs a Miner. Causes seen fewer than minCount times are
// dropped and at most limit causes are returned (limit <= 0 means no cap).
func NewMiner(logger *slog.Logger, minCount, limit int) *Miner {
	if logger == nil {
		logger = slog.Default()
	}
	if minCount < 1 {
		minCount = 1
	}
	return &Miner{minCount: minCount, limit: limit, logger: logger}
}

// Mine aggregates records by root cause, most frequent first.
func (m *Miner) Mine(records []models.IncidentRecord) []models.RecurringCause {
	if m == nil || len(records) == 0 {
		return nil
	}

	stats := make(map[string]*causeAggregate)
	for _, rec := range records {
		key := normaliseCause(rec.RootCause)
		if key == "" || key == models.UnknownRootCause {
			continue
		}
		agg := ensureAggregate(stats, key, rec.RootCause)
		agg.count++
		if rec.Timestamp.After(agg.lastSeen) {
			agg.lastSeen = rec.Timestamp
		}
		for _, src := range rec.Sources {
			if src == "" {
				continue
			}
			if _, ok := agg.sources[src]; !ok {
				agg.sources[src] = struct{}{}
				agg.sourceOrder = append(agg.sourceOrder, src)
			}
		}
	}

	causes := make([]models.RecurringCause, 0, len(stats))
	for _, agg := range stats {
		if agg.count < m.minCount {
			continue
		}
		causes = append(causes, models.RecurringCause{
			RootCause: agg.label,
			Sources:   agg.sourceOrder,
			Count:     agg.count,
			LastSeen:  agg.lastSeen,
		})
	}

	sort.Slice(causes, func(i, j int) bool {
		if causes[i].Count != causes[j].Count {
			return causes[i].Count > causes[j].Count
		}
		if !causes[i].LastSeen.Equal(causes[j].LastSeen) {
			return causes[i].LastSeen.After(causes[j].LastSeen)
		}
		return causes[i].RootCause < causes[j].RootCause
	})
	if m.limit > 0 && len(causes) > m.limit {
		causes = causes[:m.limit]
	}
	if len(causes) > 0 {
		m.logger.Debug("recurring causes mined", slog.Int("records", len(records)), slog.Int("causes", len(causes)))
	}
	return causes
}

type causeAggregate struct {
	label       string
	count       int
	lastSeen    time.Time
	sources     map[string]struct{}
	sourceOrder []string
}

func ensureAggregate(m map[string]*causeAggregate, key, label string) *causeAggregate {
	agg, ok := m[key]
	if !ok {
		agg = &causeAggregate{label: strings.TrimSpace(label), sources: make(map[string]struct{})}
		m[key] = agg
	}
	return agg
}

func normaliseCause(cause string) string {
	return strings.ToLower(strings.Join(strings.Fields(cause), " "))
}
