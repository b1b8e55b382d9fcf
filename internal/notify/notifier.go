package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"github.com/miradorstack/mirador-noc/internal/config"
	"github.com/miradorstack/mirador-noc/internal/metrics"
	"github.com/miradorstack/mirador-noc/internal/models"
)

const defaultPagerDutyURL = "https://api.pagerduty.com/incidents"

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Notifier delivers incident notifications. Each channel is attempted once.
type Notifier struct {
	logger   *slog.Logger
	cfg      config.NotificationsConfig
	client   *http.Client
	sendMail sendMailFunc
}

// New constructs a Notifier from the notifications config section.
func New(logger *slog.Logger, cfg config.NotificationsConfig) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if cfg.PagerDuty.URL == "" {
		cfg.PagerDuty.URL = defaultPagerDutyURL
	}
	return &Notifier{
		logger:   logger,
		cfg:      cfg,
		client:   &http.Client{Timeout: timeout},
		sendMail: smtp.SendMail,
	}
}

// Send delivers note to every channel in order. The outcome is an error only
// when every attempted channel failed.
func (n *Notifier) Send(ctx context.Context, note models.Notification, channels []models.Channel, severity models.Severity) models.NotificationOutcome {
	outcome := models.NotificationOutcome{
		IncidentID:          note.ID,
		NotificationResults: make([]models.ChannelResult, 0, len(channels)),
		Status:              models.StatusSuccess,
	}
	if outcome.IncidentID == "" {
		outcome.IncidentID = "unknown"
	}

	failures := 0
	for _, ch := range channels {
		res := n.sendOne(ctx, ch, note, severity)
		res.Channel = ch
		if res.Status == models.StatusError {
			failures++
			n.logger.Warn("notification failed",
				slog.String("incident_id", outcome.IncidentID),
				slog.String("channel", string(ch)),
				slog.String("error", res.Error),
			)
		}
		metrics.ObserveNotification(string(ch), string(res.Status))
		outcome.NotificationResults = append(outcome.NotificationResults, res)
	}
	if len(channels) > 0 && failures == len(channels) {
		outcome.Status = models.StatusError
		outcome.Error = "all notification channels failed"
	}
	return outcome
}

func (n *Notifier) sendOne(ctx context.Context, ch models.Channel, note models.Notification, severity models.Severity) models.ChannelResult {
	switch ch {
	case models.ChannelTeams:
		return n.sendTeams(ctx, note, severity)
	case models.ChannelSlack:
		return n.sendSlack(ctx, note, severity)
	case models.ChannelPagerDuty:
		return n.sendPagerDuty(ctx, note, severity)
	case models.ChannelEmail:
		return n.sendEmail(note, severity)
	default:
		return channelError(fmt.Sprintf("unknown channel: %s", ch))
	}
}

func channelError(msg string) models.ChannelResult {
	return models.ChannelResult{Status: models.StatusError, Error: msg}
}

func (n *Notifier) sendSlack(ctx context.Context, note models.Notification, severity models.Severity) models.ChannelResult {
	url := n.cfg.Slack.WebhookURL
	if url == "" {
		return channelError("slack webhook URL not configured")
	}
	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{"type": "plain_text", "text": note.Title},
			},
			map[string]any{
				"type": "section",
				"text": map[string]any{"type": "mrkdwn", "text": note.Description},
			},
			map[string]any{
				"type": "section",
				"fields": []any{
					map[string]any{"type": "mrkdwn", "text": "*Severity:*\n" + severityLabel(severity)},
					map[string]any{"type": "mrkdwn", "text": "*Status:*\n" + note.Status},
				},
			},
		},
	}
	return n.post(ctx, url, payload, nil)
}

func (n *Notifier) sendTeams(ctx context.Context, note models.Notification, severity models.Severity) models.ChannelResult {
	url := n.cfg.Teams.WebhookURL
	if url == "" {
		return channelError("teams webhook URL not configured")
	}
	payload := map[string]any{
		"type": "message",
		"attachments": []any{
			map[string]any{
				"contentType": "application/vnd.microsoft.card.adaptive",
				"content": map[string]any{
					"type":    "AdaptiveCard",
					"version": "1.4",
					"body": []any{
						map[string]any{"type": "TextBlock", "text": note.Title, "weight": "bolder", "size": "large"},
						map[string]any{"type": "TextBlock", "text": note.Description, "wrap": true},
						map[string]any{
							"type": "FactSet",
							"facts": []any{
								map[string]any{"title": "Severity", "value": severityLabel(severity)},
								map[string]any{"title": "Status", "value": note.Status},
								map[string]any{"title": "Incident", "value": note.ID},
							},
						},
					},
				},
			},
		},
	}
	return n.post(ctx, url, payload, nil)
}

func (n *Notifier) sendPagerDuty(ctx context.Context, note models.Notification, severity models.Severity) models.ChannelResult {
	pd := n.cfg.PagerDuty
	if pd.APIKey == "" {
		return channelError("pagerduty API key not configured")
	}
	urgency := "low"
	if severity == models.SeverityHigh || severity == models.SeverityCritical {
		urgency = "high"
	}
	payload := map[string]any{
		"incident": map[string]any{
			"type":         "incident",
			"title":        note.Title,
			"urgency":      urgency,
			"incident_key": note.ID,
			"body": map[string]any{
				"type":    "incident_body",
				"details": note.Description,
			},
		},
	}
	headers := map[string]string{
		"Authorization": "Token token=" + pd.APIKey,
		"Accept":        "application/vnd.pagerduty+json;version=2",
	}
	if pd.From != "" {
		headers["From"] = pd.From
	}
	return n.post(ctx, pd.URL, payload, headers)
}

func (n *Notifier) sendEmail(note models.Notification, severity models.Severity) models.ChannelResult {
	em := n.cfg.Email
	if em.SMTPAddr == "" || em.From == "" || len(em.Recipients) == 0 {
		return channelError("email configuration not complete")
	}
	var auth smtp.Auth
	if em.Username != "" {
		host := em.SMTPAddr
		if i := strings.LastIndex(host, ":"); i >= 0 {
			host = host[:i]
		}
		auth = smtp.PlainAuth("", em.Username, em.Password, host)
	}
	if err := n.sendMail(em.SMTPAddr, auth, em.From, em.Recipients, emailMessage(em, note, severity)); err != nil {
		return channelError(fmt.Sprintf("send email: %v", err))
	}
	return models.ChannelResult{Status: models.StatusSuccess, MessageID: note.ID}
}

func emailMessage(em config.EmailConfig, note models.Notification, severity models.Severity) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", em.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(em.Recipients, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", emailSubject(note.Title, severity))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&b, "%s\r\n\r\n", note.Description)
	fmt.Fprintf(&b, "Severity: %s\r\nStatus: %s\r\nIncident ID: %s\r\n", severityLabel(severity), note.Status, note.ID)
	for _, a := range note.Alerts {
		fmt.Fprintf(&b, "- %s (%s/%s)\r\n", a.Name, a.Namespace, a.MetricName)
	}
	return []byte(b.String())
}

var headerBreaks = strings.NewReplacer("\r", " ", "\n", " ")

// emailSubject folds line breaks out of title and Q-encodes non-ASCII text.
func emailSubject(title string, severity models.Severity) string {
	subject := fmt.Sprintf("[%s] %s", severityLabel(severity), headerBreaks.Replace(title))
	return mime.QEncoding.Encode("utf-8", subject)
}

func (n *Notifier) post(ctx context.Context, url string, payload any, headers map[string]string) models.ChannelResult {
	body, err := json.Marshal(payload)
	if err != nil {
		return channelError(fmt.Sprintf("marshal payload: %v", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return channelError(fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return channelError(fmt.Sprintf("http post: %v", err))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		res := channelError(fmt.Sprintf("webhook returned HTTP %d", resp.StatusCode))
		res.StatusCode = resp.StatusCode
		return res
	}
	return models.ChannelResult{Status: models.StatusSuccess, StatusCode: resp.StatusCode}
}

func severityLabel(s models.Severity) string {
	if s == "" {
		s = models.SeverityMedium
	}
	return strings.ToUpper(string(s))
}
