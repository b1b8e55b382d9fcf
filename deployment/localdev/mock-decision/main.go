package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"
)

type decideRequest struct {
	Context map[string]any   `json:"context"`
	Rules   []map[string]any `json:"rules"`
}

func main() {
	var tickets atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/v1/decide", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		var req decideRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, decide(req))
	})

	mux.HandleFunc("/tickets", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": fmt.Sprintf("NOC-%d", tickets.Add(1))})
	})

	// Accepts Teams, Slack and PagerDuty payloads for local runs.
	mux.HandleFunc("/webhook/", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		log.Printf("webhook %s: %d top-level fields", r.URL.Path, len(body))
		w.WriteHeader(http.StatusAccepted)
	})

	logger := log.New(log.Writer(), "decision-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    ":8080",
		Handler: logRequests(logger, mux),
	}

	logger.Println("listening on :8080")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

// decide answers the three request shapes the agent sends: alert groups from
// the correlator, metric data from the analyzer and full incidents from the
// orchestrator.
func decide(req decideRequest) map[string]any {
	ctx := req.Context
	switch {
	case ctx["alerts"] != nil:
		alerts, _ := ctx["alerts"].([]any)
		return map[string]any{
			"root_cause": rootCause(alerts),
			"confidence": 0.6,
			"actions":    []any{},
		}
	case ctx["metric_data"] != nil || ctx["metrics"] != nil:
		return map[string]any{
			"root_cause": "metric deviation",
			"confidence": 0.5,
			"summary":    "anomalous samples detected",
		}
	default:
		group, _ := ctx["group"].(map[string]any)
		alarms, _ := group["alerts"].([]any)
		severity := "medium"
		switch {
		case len(alarms) >= 5:
			severity = "critical"
		case len(alarms) >= 2:
			severity = "high"
		}
		return map[string]any{
			"id":         fmt.Sprintf("dec-%d", time.Now().UnixNano()),
			"root_cause": rootCause(alarms),
			"confidence": 0.7,
			"severity":   severity,
			"rules":      len(req.Rules),
			"actions": []any{
				map[string]any{
					"type":     "ticket",
					"summary":  "Investigate " + rootCause(alarms),
					"priority": severity,
				},
			},
		}
	}
}

func rootCause(alarms []any) string {
	for _, a := range alarms {
		alarm, ok := a.(map[string]any)
		if !ok {
			continue
		}
		if metric, _ := alarm["metric_name"].(string); metric != "" {
			return metric + " breach"
		}
	}
	return "unknown"
}

func enforcePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
