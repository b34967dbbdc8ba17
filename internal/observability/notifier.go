package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/valter-silva-au/weektrack/pkg/models"
)

// Notifier delivers reminders and alerts to an external channel.
type Notifier interface {
	NotifyReminders(ctx context.Context, reminders []models.Reminder) error
	NotifyAlerts(ctx context.Context, alerts []Alert) error
}

type slackNotifier struct {
	webhookURL string
	client     *http.Client
	loc        *time.Location
}

// NewSlackNotifier creates a Notifier posting to the given Slack webhook.
// Times are shown in loc.
func NewSlackNotifier(webhookURL string, loc *time.Location) Notifier {
	if loc == nil {
		loc = time.Local
	}
	return &slackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		loc:        loc,
	}
}

type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type string     `json:"type"`
	Text *slackText `json:"text,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// NotifyReminders posts one message listing the due reminders. Nothing is
// sent for an empty list.
func (s *slackNotifier) NotifyReminders(ctx context.Context, reminders []models.Reminder) error {
	if len(reminders) == 0 {
		return nil
	}
	lines := make([]string, 0, len(reminders))
	for _, r := range reminders {
		label := r.Label
		if label == "" {
			label = fmt.Sprintf("event %d", r.EventID)
		}
		lines = append(lines, fmt.Sprintf("⏰ *%s* at %s", label, r.Time.In(s.loc).Format("Mon 15:04")))
	}
	return s.post(ctx, slackMessage{
		Text: fmt.Sprintf("%d reminder(s) due", len(reminders)),
		Blocks: []slackBlock{
			{Type: "header", Text: &slackText{Type: "plain_text", Text: "Upcoming"}},
			{Type: "section", Text: &slackText{Type: "mrkdwn", Text: strings.Join(lines, "\n")}},
		},
	})
}

// NotifyAlerts posts the alerts, one section each.
func (s *slackNotifier) NotifyAlerts(ctx context.Context, alerts []Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	msg := slackMessage{
		Text:   fmt.Sprintf("%d weektrack alert(s)", len(alerts)),
		Blocks: []slackBlock{{Type: "header", Text: &slackText{Type: "plain_text", Text: "weektrack health"}}},
	}
	for i, a := range alerts {
		if i > 0 {
			msg.Blocks = append(msg.Blocks, slackBlock{Type: "divider"})
		}
		msg.Blocks = append(msg.Blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: fmt.Sprintf("%s *[%s]* %s",
				severityEmoji(a.Severity), strings.ToUpper(string(a.Severity)), a.Message)},
		})
	}
	return s.post(ctx, msg)
}

func (s *slackNotifier) post(ctx context.Context, msg slackMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("posting to slack: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("posting to slack: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to slack: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("posting to slack: webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func severityEmoji(severity AlertSeverity) string {
	switch severity {
	case SeverityHigh:
		return "\U0001f534"
	case SeverityMedium:
		return "\U0001f7e1"
	case SeverityLow:
		return "\U0001f535"
	default:
		return "❓"
	}
}
