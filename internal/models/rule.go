package models

// Rule is a remediation rule loaded from the rule pack.
type Rule struct {
	ID              string           `yaml:"id" json:"id"`
	Description     string           `yaml:"description" json:"description,omitempty"`
	Match           RuleMatch        `yaml:"match" json:"match"`
	Severity        string           `yaml:"severity" json:"severity,omitempty"`
	Actions         []map[string]any `yaml:"actions" json:"actions,omitempty"`
	Recommendations []string         `yaml:"recommendations" json:"recommendations,omitempty"`
}

// RuleMatch defines optional alarm attributes a rule applies to. Empty fields match anything.
type RuleMatch struct {
	Namespace       string            `yaml:"namespace" json:"namespace,omitempty"`
	MetricName      string            `yaml:"metric_name" json:"metric_name,omitempty"`
	AlarmNamePrefix string            `yaml:"alarm_name_prefix" json:"alarm_name_prefix,omitempty"`
	Dimensions      map[string]string `yaml:"dimensions" json:"dimensions,omitempty"`
}
