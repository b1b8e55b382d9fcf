package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/miradorstack/mirador-noc/internal/models"
	"github.com/miradorstack/mirador-noc/internal/utils"
)

// DecisionClient calls the external decision service over HTTP.
type DecisionClient struct {
	baseURL       string
	path          string
	apiKey        string
	maxRetries    int
	retryInterval time.Duration
	httpClient    *http.Client
}

// NewDecisionClient constructs a client targeting baseURL + path.
func NewDecisionClient(baseURL, decidePath, apiKey string, timeout time.Duration, maxRetries int) *DecisionClient {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &DecisionClient{
		baseURL:       strings.TrimRight(baseURL, "/"),
		path:          decidePath,
		apiKey:        apiKey,
		maxRetries:    maxRetries,
		retryInterval: 200 * time.Millisecond,
		httpClient:    &http.Client{Timeout: timeout},
	}
}

type decideRequest struct {
	Context map[string]any `json:"context"`
	Rules   []models.Rule  `json:"rules"`
}

// Decide posts the context and matching rules and parses the returned decision.
// Transport errors and 5xx responses are retried; 4xx responses are not.
func (c *DecisionClient) Decide(ctx context.Context, payload map[string]any, rules []models.Rule) (models.Decision, error) {
	const op = "decision.decide"
	if c == nil || c.baseURL == "" {
		return models.Decision{}, utils.NewAppError(op, utils.KindDecisionUnavailable, "decision service not configured", nil)
	}
	if rules == nil {
		rules = []models.Rule{}
	}

	var raw map[string]any
	operation := func() error {
		raw = nil
		return c.postJSON(ctx, c.resolvePath(c.path), decideRequest{Context: payload, Rules: rules}, &raw)
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.retryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(c.maxRetries)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return models.Decision{}, utils.NewAppError(op, utils.KindDecisionUnavailable, "decision request failed", err)
	}
	return models.DecisionFromMap(raw), nil
}

func (c *DecisionClient) resolvePath(p string) string {
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (c *DecisionClient) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("marshal payload: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("decision service returned %s", resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return backoff.Permanent(fmt.Errorf("decision service returned %s", resp.Status))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return nil
}
