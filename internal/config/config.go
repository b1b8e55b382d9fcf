package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the NOC agent.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`
	AWS           AWSConfig           `yaml:"aws"`
	Correlation   CorrelationConfig   `yaml:"correlation"`
	Analyzer      AnalyzerConfig      `yaml:"analyzer"`
	Incidents     IncidentsConfig     `yaml:"incidents"`
	Decision      DecisionConfig      `yaml:"decision"`
	Actions       ActionsConfig       `yaml:"actions"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Channels      ChannelsConfig      `yaml:"channels"`
	Rules         RulesConfig         `yaml:"rules"`
	Cache         CacheConfig         `yaml:"cache"`
}

// ServerConfig controls gRPC listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
	Reflection      bool          `yaml:"reflection"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// AWSConfig selects the region and an optional endpoint override (localstack).
type AWSConfig struct {
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

// CorrelationConfig tunes alarm grouping.
type CorrelationConfig struct {
	Window   time.Duration  `yaml:"window"`
	Relation RelationConfig `yaml:"relation"`
}

// RelationConfig selects the cross-namespace relationship strategy.
type RelationConfig struct {
	// Strategy is one of none, namespace, tags, topology.
	Strategy        string              `yaml:"strategy"`
	NamespaceGroups map[string][]string `yaml:"namespaceGroups"`
	TagKeys         []string            `yaml:"tagKeys"`
	Edges           []TopologyEdge      `yaml:"edges"`
}

// TopologyEdge links two resource identifiers (dimension values).
type TopologyEdge struct {
	Source string `yaml:"source"`
	Target string `yaml:"target"`
}

// AnalyzerConfig tunes the metric anomaly analyzer.
type AnalyzerConfig struct {
	Window      time.Duration       `yaml:"window"`
	Period      time.Duration       `yaml:"period"`
	Sigma       float64             `yaml:"sigma"`
	Concurrency int                 `yaml:"concurrency"`
	KeyMetrics  map[string][]string `yaml:"keyMetrics"`
}

// IncidentsConfig configures the DynamoDB incident store.
type IncidentsConfig struct {
	Table         string        `yaml:"table"`
	HistoryWindow time.Duration `yaml:"historyWindow"`
	Record        bool          `yaml:"record"`
}

// DecisionConfig configures the decision service client.
type DecisionConfig struct {
	BaseURL    string        `yaml:"baseURL"`
	Path       string        `yaml:"path"`
	APIKey     string        `yaml:"apiKey"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"maxRetries"`
}

// ActionsConfig configures action dispatch targets.
type ActionsConfig struct {
	TicketURL string `yaml:"ticketURL"`
}

// NotificationsConfig holds per-channel delivery settings.
type NotificationsConfig struct {
	Timeout   time.Duration   `yaml:"timeout"`
	Teams     WebhookConfig   `yaml:"teams"`
	Slack     WebhookConfig   `yaml:"slack"`
	PagerDuty PagerDutyConfig `yaml:"pagerduty"`
	Email     EmailConfig     `yaml:"email"`
}

// WebhookConfig is an incoming-webhook endpoint.
type WebhookConfig struct {
	WebhookURL string `yaml:"webhookURL"`
}

// PagerDutyConfig configures the PagerDuty incidents API.
type PagerDutyConfig struct {
	APIKey string `yaml:"apiKey"`
	URL    string `yaml:"url"`
	From   string `yaml:"from"`
}

// EmailConfig configures SMTP delivery.
type EmailConfig struct {
	SMTPAddr   string   `yaml:"smtpAddr"`
	Username   string   `yaml:"username"`
	Password   string   `yaml:"password"`
	From       string   `yaml:"from"`
	Recipients []string `yaml:"recipients"`
}

// ChannelsConfig assigns channels to escalation tiers.
type ChannelsConfig struct {
	Base       string   `yaml:"base"`
	Escalation []string `yaml:"escalation"`
	Critical   string   `yaml:"critical"`
}

// RulesConfig controls rule-pack loading.
type RulesConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

// CacheConfig controls Valkey-backed caching of incident history lookups.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
	HistoryTTL   time.Duration `yaml:"historyTTL"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("NOC_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Correlation.Window <= 0 {
		return fmt.Errorf("correlation.window must be positive")
	}
	if c.Analyzer.Window <= 0 || c.Analyzer.Period <= 0 {
		return fmt.Errorf("analyzer.window and analyzer.period must be positive")
	}
	if c.Analyzer.Sigma <= 0 {
		return fmt.Errorf("analyzer.sigma must be positive")
	}
	switch strings.ToLower(c.Correlation.Relation.Strategy) {
	case "", "none", "namespace", "tags", "topology":
	default:
		return fmt.Errorf("correlation.relation.strategy %q not supported", c.Correlation.Relation.Strategy)
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50061",
			MetricsAddress:  ":2113",
			GracefulTimeout: 10 * time.Second,
			Reflection:      true,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		AWS:     AWSConfig{Region: "us-east-1"},
		Correlation: CorrelationConfig{
			Window:   5 * time.Minute,
			Relation: RelationConfig{Strategy: "none"},
		},
		Analyzer: AnalyzerConfig{
			Window:      time.Hour,
			Period:      5 * time.Minute,
			Sigma:       3,
			Concurrency: 4,
		},
		Incidents: IncidentsConfig{
			Table:         "NOCIncidents",
			HistoryWindow: 24 * time.Hour,
			Record:        true,
		},
		Decision: DecisionConfig{
			Path:       "/v1/decide",
			Timeout:    10 * time.Second,
			MaxRetries: 2,
		},
		Notifications: NotificationsConfig{
			Timeout:   5 * time.Second,
			PagerDuty: PagerDutyConfig{URL: "https://api.pagerduty.com/incidents"},
		},
		Channels: ChannelsConfig{
			Base:       "teams",
			Escalation: []string{"slack", "pagerduty"},
			Critical:   "email",
		},
		Rules: RulesConfig{Path: "configs/rules/default.yaml"},
		Cache: CacheConfig{
			Enabled:      false,
			HistoryTTL:   time.Minute,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NOC_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("NOC_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("NOC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("NOC_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.AWS.Region = v
	}
	if v := os.Getenv("NOC_AWS_ENDPOINT"); v != "" {
		cfg.AWS.Endpoint = v
	}
	if v := os.Getenv("NOC_CORRELATION_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Correlation.Window = d
		}
	}
	if v := os.Getenv("NOC_RELATION_STRATEGY"); v != "" {
		cfg.Correlation.Relation.Strategy = v
	}
	if v := os.Getenv("NOC_INCIDENTS_TABLE"); v != "" {
		cfg.Incidents.Table = v
	}
	if v := os.Getenv("NOC_DECISION_URL"); v != "" {
		cfg.Decision.BaseURL = v
	}
	if v := os.Getenv("NOC_DECISION_API_KEY"); v != "" {
		cfg.Decision.APIKey = v
	}
	if v := os.Getenv("NOC_DECISION_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Decision.MaxRetries = n
		}
	}
	if v := os.Getenv("NOC_TICKET_URL"); v != "" {
		cfg.Actions.TicketURL = v
	}
	if v := os.Getenv("NOC_TEAMS_WEBHOOK_URL"); v != "" {
		cfg.Notifications.Teams.WebhookURL = v
	}
	if v := os.Getenv("NOC_SLACK_WEBHOOK_URL"); v != "" {
		cfg.Notifications.Slack.WebhookURL = v
	}
	if v := os.Getenv("NOC_PAGERDUTY_API_KEY"); v != "" {
		cfg.Notifications.PagerDuty.APIKey = v
	}
	if v := os.Getenv("NOC_SMTP_PASSWORD"); v != "" {
		cfg.Notifications.Email.Password = v
	}
	if v := os.Getenv("NOC_RULES_PATH"); v != "" {
		cfg.Rules.Path = v
	}
	if v := os.Getenv("NOC_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("NOC_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("NOC_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("NOC_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("NOC_CACHE_TLS"); strings.EqualFold(v, "true") || strings.EqualFold(v, "1") {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("NOC_CACHE_HISTORY_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.HistoryTTL = d
		}
	}
}
