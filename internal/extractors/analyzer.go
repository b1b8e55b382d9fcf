package extractors

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/miradorstack/mirador-noc/internal/metrics"
	"github.com/miradorstack/mirador-noc/internal/models"
	"github.com/miradorstack/mirador-noc/internal/utils"
)

const (
	// DefaultPeriod is the aggregation period requested from the time-series source.
	DefaultPeriod = 5 * time.Minute
	// DefaultWindow is the look-back used by Monitor and ServiceInsights.
	DefaultWindow = time.Hour
)

// TimeSeries returns aggregated samples for one metric of one source.
type TimeSeries interface {
	Samples(ctx context.Context, source, metric string, start, end time.Time, period time.Duration) ([]models.Sample, error)
}

// Decider is the decision service used for best-effort insights.
type Decider interface {
	Decide(ctx context.Context, payload map[string]any, rules []models.Rule) (models.Decision, error)
}

// Analyzer detects anomalies in key metrics of signal sources.
type Analyzer struct {
	logger      *slog.Logger
	series      TimeSeries
	decisions   Decider
	catalog     Catalog
	detector    Detector
	period      time.Duration
	window      time.Duration
	concurrency int
	now         func() time.Time
}

// AnalyzerOptions tunes an Analyzer; zero values select defaults.
type AnalyzerOptions struct {
	Period      time.Duration
	Window      time.Duration
	Sigma       float64
	Concurrency int
	KeyMetrics  map[string][]string
}

// NewAnalyzer constructs an Analyzer. decisions may be nil, in which case
// insights are reported as unavailable.
func NewAnalyzer(logger *slog.Logger, series TimeSeries, decisions Decider, opts AnalyzerOptions) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Period <= 0 {
		opts.Period = DefaultPeriod
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Analyzer{
		logger:      logger,
		series:      series,
		decisions:   decisions,
		catalog:     NewCatalog(opts.KeyMetrics),
		detector:    NewDetector(opts.Sigma),
		period:      opts.Period,
		window:      opts.Window,
		concurrency: opts.Concurrency,
		now:         time.Now,
	}
}

// Catalog exposes the key-metric catalog in use.
func (a *Analyzer) Catalog() Catalog { return a.catalog }

// Analyze fetches samples over [now-window, now] and flags anomalies. A fetch
// failure degrades to an empty analysis; only invalid arguments produce an
// error status.
func (a *Analyzer) Analyze(ctx context.Context, source, metric string, window time.Duration) models.MetricAnalysis {
	const op = "analyzer.analyze"
	now := a.now().UTC()
	res := models.MetricAnalysis{
		Source:    source,
		Metric:    metric,
		Anomalies: []models.Anomaly{},
		Status:    models.StatusSuccess,
		Timestamp: now,
	}

	if strings.TrimSpace(source) == "" || strings.TrimSpace(metric) == "" {
		return invalid(res, utils.NewAppError(op, utils.KindInvalidInput, "source and metric name are required", nil))
	}
	if window <= 0 {
		return invalid(res, utils.NewAppError(op, utils.KindInvalidInput, fmt.Sprintf("window must be positive, got %s", window), nil))
	}

	samples, err := a.fetch(ctx, source, metric, now, window)
	if err != nil {
		a.logger.Warn("metric fetch failed", slog.String("source", source), slog.String("metric", metric), slog.Any("error", err))
		res.Degraded = utils.NewAppError(op, utils.KindUpstreamUnavailable, "time series unavailable", err).Error()
		return res
	}
	if len(samples) == 0 {
		a.logger.Debug("no metric data", slog.String("source", source), slog.String("metric", metric))
		return res
	}

	res.Anomalies = a.detector.Detect(samples)
	metrics.ObserveAnomalies(source, len(res.Anomalies))
	if len(res.Anomalies) == 0 {
		return res
	}

	decision, err := a.decide(ctx, map[string]any{
		"metric_data": samples,
		"anomalies":   res.Anomalies,
		"timestamp":   now.Format(time.RFC3339),
	})
	if err != nil {
		res.InsightError = err.Error()
		return res
	}
	res.Insights = &decision
	return res
}

func invalid(res models.MetricAnalysis, err error) models.MetricAnalysis {
	res.Status = models.StatusError
	res.Error = err.Error()
	res.Err = err
	return res
}

// Monitor analyzes every key metric of source. An uncatalogued source yields
// an error status; a failing metric only marks its own entry.
func (a *Analyzer) Monitor(ctx context.Context, source string) models.MonitorResult {
	source = a.catalog.Canonical(source)
	res := models.MonitorResult{
		Source:    source,
		Status:    models.StatusSuccess,
		Timestamp: a.now().UTC(),
	}
	names, ok := a.catalog.KeyMetrics(source)
	if !ok {
		a.logger.Warn("no key metrics defined", slog.String("source", source))
		res.Status = models.StatusError
		res.Error = fmt.Sprintf("no key metrics defined for %q", source)
		return res
	}

	analyses := make([]models.MetricAnalysis, len(names))
	a.forEach(ctx, len(names), func(ctx context.Context, i int) {
		analyses[i] = a.Analyze(ctx, source, names[i], a.window)
	})

	res.Metrics = make(map[string]models.MetricAnalysis, len(names))
	for i, name := range names {
		res.Metrics[name] = analyses[i]
	}
	return res
}

// ServiceInsights collects the last window of every key metric of source,
// flags anomalies per metric and asks the decision service for an analysis.
func (a *Analyzer) ServiceInsights(ctx context.Context, source string) models.ServiceInsight {
	now := a.now().UTC()
	source = a.catalog.Canonical(source)
	insight := models.ServiceInsight{
		Source:    source,
		Metrics:   []models.MetricInsight{},
		Timestamp: now,
	}
	names, ok := a.catalog.KeyMetrics(source)
	if !ok {
		insight.Error = fmt.Sprintf("no key metrics defined for %q", source)
		return insight
	}

	collected := make([]*models.MetricInsight, len(names))
	a.forEach(ctx, len(names), func(ctx context.Context, i int) {
		samples, err := a.fetch(ctx, source, names[i], now, a.window)
		if err != nil {
			a.logger.Warn("metric fetch failed", slog.String("source", source), slog.String("metric", names[i]), slog.Any("error", err))
			collected[i] = &models.MetricInsight{
				Name:      names[i],
				Samples:   []models.Sample{},
				Anomalies: []models.Anomaly{},
				Error:     utils.NewAppError("analyzer.insights", utils.KindUpstreamUnavailable, "time series unavailable", err).Error(),
			}
			return
		}
		if len(samples) == 0 {
			return
		}
		anomalies := a.detector.Detect(samples)
		metrics.ObserveAnomalies(source, len(anomalies))
		collected[i] = &models.MetricInsight{Name: names[i], Samples: samples, Anomalies: anomalies}
	})
	for _, m := range collected {
		if m != nil {
			insight.Metrics = append(insight.Metrics, *m)
		}
	}

	if len(insight.Metrics) == 0 {
		return insight
	}
	decision, err := a.decide(ctx, map[string]any{
		"service": source,
		"metrics": insight.Metrics,
	})
	if err != nil {
		insight.Error = err.Error()
		return insight
	}
	insight.Analysis = &decision
	return insight
}

func (a *Analyzer) fetch(ctx context.Context, source, metric string, now time.Time, window time.Duration) ([]models.Sample, error) {
	if a.series == nil {
		return nil, fmt.Errorf("time series source not configured")
	}
	start, end := utils.Window(now, window)
	return a.series.Samples(ctx, source, metric, start, end, a.period)
}

func (a *Analyzer) decide(ctx context.Context, payload map[string]any) (models.Decision, error) {
	if a.decisions == nil {
		return models.Decision{}, utils.NewAppError("analyzer.insight", utils.KindDecisionUnavailable, "decision service not configured", nil)
	}
	return a.decisions.Decide(ctx, payload, []models.Rule{})
}

// forEach runs fn for indices [0, n) with bounded concurrency. fn records its
// own outcome at index i, so completion order does not affect results. A panic
// in fn is re-raised on the calling goroutine.
func (a *Analyzer) forEach(ctx context.Context, n int, fn func(context.Context, int)) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("metric %d panicked: %v", i, r)
				}
			}()
			fn(gctx, i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		panic(err)
	}
}
