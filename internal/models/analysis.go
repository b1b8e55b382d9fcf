package models

import "time"

// Sample is one aggregated datapoint of a signal.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Anomaly is a sample flagged as statistically extreme within its window.
type Anomaly struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Deviation float64   `json:"deviation"`
	Threshold float64   `json:"threshold"`
}

// MetricAnalysis is the result of analysing one metric of one signal source.
type MetricAnalysis struct {
	Source       string    `json:"service"`
	Metric       string    `json:"metric"`
	Anomalies    []Anomaly `json:"anomalies"`
	Insights     *Decision `json:"insights,omitempty"`
	InsightError string    `json:"insight_error,omitempty"`
	Degraded     string    `json:"degraded,omitempty"`
	Status       Status    `json:"status"`
	Error        string    `json:"error,omitempty"`
	Err          error     `json:"-"`
	Timestamp    time.Time `json:"timestamp"`
}

// MonitorResult maps every key metric of a source to its analysis.
type MonitorResult struct {
	Source    string                    `json:"service"`
	Metrics   map[string]MetricAnalysis `json:"metrics,omitempty"`
	Status    Status                    `json:"status"`
	Error     string                    `json:"error,omitempty"`
	Timestamp time.Time                 `json:"timestamp"`
}

// MetricInsight carries the raw samples and flagged anomalies of one key metric.
type MetricInsight struct {
	Name      string    `json:"name"`
	Samples   []Sample  `json:"data"`
	Anomalies []Anomaly `json:"anomalies"`
	Error     string    `json:"error,omitempty"`
}

// ServiceInsight is the per-source enrichment attached to an alert group.
type ServiceInsight struct {
	Source    string          `json:"service"`
	Metrics   []MetricInsight `json:"metrics"`
	Analysis  *Decision       `json:"analysis,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// AnomalyCount sums anomalies across all metrics of the insight.
func (s ServiceInsight) AnomalyCount() int {
	total := 0
	for _, m := range s.Metrics {
		total += len(m.Anomalies)
	}
	return total
}
