package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/miradorstack/mirador-noc/internal/api"
	"github.com/miradorstack/mirador-noc/internal/cache"
	"github.com/miradorstack/mirador-noc/internal/config"
	"github.com/miradorstack/mirador-noc/internal/dispatch"
	"github.com/miradorstack/mirador-noc/internal/engine"
	"github.com/miradorstack/mirador-noc/internal/extractors"
	"github.com/miradorstack/mirador-noc/internal/metrics"
	"github.com/miradorstack/mirador-noc/internal/models"
	"github.com/miradorstack/mirador-noc/internal/notify"
	"github.com/miradorstack/mirador-noc/internal/patterns"
	"github.com/miradorstack/mirador-noc/internal/repo"
	"github.com/miradorstack/mirador-noc/internal/services"
	"github.com/miradorstack/mirador-noc/internal/utils"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run wires the agent and returns the process exit code so deferred cleanup
// runs before main exits.
func run(args []string) int {
	var configPath, eventPath, monitorSources string
	fs := flag.NewFlagSet("noc-agent", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration file")
	fs.StringVar(&eventPath, "event", "", "Process a single event from this JSON file (- for stdin) and exit")
	fs.StringVar(&monitorSources, "monitor", "", "Analyze key metrics of these comma-separated sources (or \"all\") and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	oneShot := eventPath != "" || monitorSources != ""

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		return 1
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	if oneShot {
		// stdout carries the JSON result
		logger = utils.NewLoggerTo(os.Stderr, cfg.Logging.Level, cfg.Logging.JSON)
	}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cacheProvider cache.Provider = cache.NoopProvider{}
	if cfg.Cache.Enabled {
		if cfg.Cache.Addr != "" {
			provider, err := cache.NewValkeyProvider(cache.ValkeyConfig{
				Addr:         cfg.Cache.Addr,
				Username:     cfg.Cache.Username,
				Password:     cfg.Cache.Password,
				DB:           cfg.Cache.DB,
				DialTimeout:  cfg.Cache.DialTimeout,
				ReadTimeout:  cfg.Cache.ReadTimeout,
				WriteTimeout: cfg.Cache.WriteTimeout,
				MaxRetries:   cfg.Cache.MaxRetries,
				TLS:          cfg.Cache.TLS,
			})
			if err != nil {
				logger.Warn("valkey cache unavailable, using in-process cache", slog.Any("error", err))
				cacheProvider = cache.NewMemoryProvider()
			} else {
				cacheProvider = provider
			}
		} else {
			cacheProvider = cache.NewMemoryProvider()
		}
	}
	defer cacheProvider.Close()

	awsCfg, err := repo.LoadAWSConfig(ctx, cfg.AWS.Region, cfg.AWS.Endpoint)
	if err != nil {
		logger.Error("failed to load aws config", slog.Any("error", err))
		return 1
	}

	cloudwatch := repo.NewCloudWatchRepoFromConfig(awsCfg)
	incidents := repo.NewIncidentRepoFromConfig(awsCfg, cfg.Incidents.Table, cacheProvider, cfg.Cache.HistoryTTL, logger)
	decisions := repo.NewDecisionClient(
		cfg.Decision.BaseURL,
		cfg.Decision.Path,
		cfg.Decision.APIKey,
		cfg.Decision.Timeout,
		cfg.Decision.MaxRetries,
	)

	ruleEngine, err := engine.NewRuleEngine(cfg.Rules.Path, logger)
	if err != nil {
		logger.Error("failed to load rule pack", slog.Any("error", err))
		return 1
	}

	relation, err := engine.NewRelationStrategy(cfg.Correlation.Relation)
	if err != nil {
		logger.Error("invalid relation strategy", slog.Any("error", err))
		return 1
	}
	channels, err := engine.NewChannelPolicy(cfg.Channels)
	if err != nil {
		logger.Error("invalid channel policy", slog.Any("error", err))
		return 1
	}

	analyzer := extractors.NewAnalyzer(logger, cloudwatch, decisions, extractors.AnalyzerOptions{
		Period:      cfg.Analyzer.Period,
		Window:      cfg.Analyzer.Window,
		Sigma:       cfg.Analyzer.Sigma,
		Concurrency: cfg.Analyzer.Concurrency,
		KeyMetrics:  cfg.Analyzer.KeyMetrics,
	})

	correlator := engine.NewCorrelator(
		logger,
		incidents,
		decisions,
		relation,
		patterns.NewMiner(logger, 2, 5),
		cfg.Correlation.Window,
		cfg.Incidents.HistoryWindow,
	)

	deps := engine.Dependencies{
		Alarms:      cloudwatch,
		Correlator:  correlator,
		Insights:    analyzer,
		Rules:       ruleEngine,
		Decisions:   decisions,
		Dispatcher:  dispatch.NewFromConfig(awsCfg, logger, cfg.Actions.TicketURL, cfg.Decision.Timeout),
		Notifier:    notify.New(logger, cfg.Notifications),
		Channels:    channels,
		Concurrency: cfg.Analyzer.Concurrency,
	}
	if cfg.Incidents.Record {
		deps.Sink = incidents
	}
	orchestrator := engine.NewOrchestrator(logger, deps)
	nocService := services.NewNOCService(logger, orchestrator)

	if eventPath != "" {
		return runOnce(ctx, logger, nocService, eventPath)
	}
	if monitorSources != "" {
		return runMonitor(ctx, logger, analyzer, monitorSources)
	}

	logger.Info("starting mirador-noc", slog.String("address", cfg.Server.Address))

	if cfg.Rules.Watch {
		go func() {
			if err := config.WatchFile(ctx, logger, ruleEngine.Path(), ruleEngine.Reload); err != nil {
				logger.Warn("rule pack watcher stopped", slog.Any("error", err))
			}
		}()
	}

	server, err := api.NewServer(logger, cfg.Server, nocService)
	if err != nil {
		logger.Error("failed to create gRPC server", slog.Any("error", err))
		return 1
	}

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	grpcDone := make(chan struct{})
	go func() {
		defer close(grpcDone)
		if err := server.Run(ctx); err != nil {
			logger.Error("gRPC server exited", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}
	<-grpcDone

	logger.Info("mirador-noc stopped")
	return 0
}

// runOnce processes one saved event and writes the result as JSON to stdout.
func runOnce(ctx context.Context, logger *slog.Logger, service *services.NOCService, path string) int {
	var payload []byte
	var err error
	if path == "-" {
		payload, err = io.ReadAll(os.Stdin)
	} else {
		payload, err = os.ReadFile(path)
	}
	if err != nil {
		logger.Error("failed to read event", slog.String("path", path), slog.Any("error", err))
		return 1
	}

	result := service.ProcessPayload(ctx, payload)

	if err := writeJSON(result); err != nil {
		logger.Error("failed to write result", slog.Any("error", err))
		return 1
	}
	if result.Status == models.StatusError {
		return 2
	}
	return 0
}

// runMonitor analyzes the key metrics of each listed source and writes the
// results as JSON to stdout.
func runMonitor(ctx context.Context, logger *slog.Logger, analyzer *extractors.Analyzer, list string) int {
	var sources []string
	if strings.EqualFold(strings.TrimSpace(list), "all") {
		sources = analyzer.Catalog().Sources()
	} else {
		for _, s := range strings.Split(list, ",") {
			if s = strings.TrimSpace(s); s != "" {
				sources = append(sources, s)
			}
		}
	}

	code := 0
	results := make([]models.MonitorResult, 0, len(sources))
	for _, source := range sources {
		res := analyzer.Monitor(ctx, source)
		if res.Status == models.StatusError {
			code = 2
		}
		results = append(results, res)
	}
	if err := writeJSON(results); err != nil {
		logger.Error("failed to write result", slog.Any("error", err))
		return 1
	}
	return code
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
