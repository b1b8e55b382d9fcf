package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-noc/internal/models"
)

// RuleEngine selects rule-pack entries relevant to a group of alarms. The
// pack can be reloaded while the engine is in use.
type RuleEngine struct {
	path   string
	logger *slog.Logger

	mu    sync.RWMutex
	rules []models.Rule
}

// RuleConfigFile is the YAML root structure.
type RuleConfigFile struct {
	Rules []models.Rule `yaml:"rules"`
}

// NewRuleEngine loads rules from path. A missing file yields an engine with no rules.
func NewRuleEngine(path string, logger *slog.Logger) (*RuleEngine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	e := &RuleEngine{path: path, logger: logger}
	if err := e.Reload(); err != nil {
		return nil, err
	}
	return e, nil
}

// NewStaticRuleEngine wraps an in-memory rule list.
func NewStaticRuleEngine(rules []models.Rule) *RuleEngine {
	return &RuleEngine{rules: rules, logger: slog.Default()}
}

// Reload re-reads the rule pack. On error the previous rules stay active.
func (e *RuleEngine) Reload() error {
	if e.path == "" {
		return nil
	}
	data, err := os.ReadFile(e.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			e.logger.Warn("rule pack not found, continuing without rules", slog.String("path", e.path))
			return nil
		}
		return fmt.Errorf("read rules: %w", err)
	}
	var cfg RuleConfigFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse rules: %w", err)
	}
	for i, rule := range cfg.Rules {
		if strings.TrimSpace(rule.ID) == "" {
			return fmt.Errorf("rule %d has no id", i)
		}
	}

	e.mu.Lock()
	e.rules = cfg.Rules
	e.mu.Unlock()
	e.logger.Info("rule pack loaded", slog.String("path", e.path), slog.Int("rules", len(cfg.Rules)))
	return nil
}

// Path returns the rule pack location.
func (e *RuleEngine) Path() string { return e.path }

// MatchingRules returns rules that match at least one alarm, in pack order.
func (e *RuleEngine) MatchingRules(alarms []models.Alarm) []models.Rule {
	if e == nil {
		return nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	matched := make([]models.Rule, 0)
	for _, rule := range e.rules {
		for _, alarm := range alarms {
			if ruleMatches(rule.Match, alarm) {
				matched = append(matched, rule)
				break
			}
		}
	}
	return matched
}

func ruleMatches(m models.RuleMatch, alarm models.Alarm) bool {
	if m.Namespace != "" && !strings.EqualFold(m.Namespace, alarm.Namespace) && !strings.EqualFold(m.Namespace, alarm.Source()) {
		return false
	}
	if m.MetricName != "" && !strings.EqualFold(m.MetricName, alarm.MetricName) {
		return false
	}
	if m.AlarmNamePrefix != "" && !strings.HasPrefix(strings.ToLower(alarm.Name), strings.ToLower(m.AlarmNamePrefix)) {
		return false
	}
	for key, want := range m.Dimensions {
		got, ok := alarm.Dimensions[key]
		if !ok {
			return false
		}
		if want != "*" && !strings.EqualFold(want, got) {
			return false
		}
	}
	return true
}
