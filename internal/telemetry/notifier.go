package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/DMHCAIT/turteltrader/internal/event"
)

// Embed colors for alert levels.
const (
	colorInfo  = 0x3498db
	colorWarn  = 0xf39c12
	colorFatal = 0xe74c3c
)

// WebhookNotifier sends alerts to a Discord-compatible webhook. A blank
// URL disables it.
type WebhookNotifier struct {
	webhookURL string
	enabled    bool
	client     *http.Client
}

// NewWebhookNotifier creates a notifier for the given webhook URL.
func NewWebhookNotifier(webhookURL string) *WebhookNotifier {
	return &WebhookNotifier{
		webhookURL: webhookURL,
		enabled:    webhookURL != "",
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Consume implements event.Sink. Only alert events leave the process;
// the rest of the stream stays in the audit log.
func (n *WebhookNotifier) Consume(ev event.Event) {
	alert, ok := ev.(*event.AlertEvent)
	if !ok {
		return
	}

	color := colorInfo
	switch alert.Level {
	case event.LevelWarn:
		color = colorWarn
	case event.LevelFatal:
		color = colorFatal
	}

	title := alert.Title
	if alert.Symbol != "" {
		title = fmt.Sprintf("[%s] %s", alert.Symbol, alert.Title)
	}

	if err := n.SendAlert(title, alert.Message, color); err != nil {
		slog.Warn("webhook notification failed", slog.String("err", err.Error()))
	}
}

// SendAlert posts one embed to the webhook.
func (n *WebhookNotifier) SendAlert(title, message string, color int) error {
	if !n.enabled {
		return nil
	}

	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{
			{
				"title":       title,
				"description": message,
				"color":       color,
				"footer": map[string]string{
					"text": "Turtle Trader | ETF Position Engine",
				},
				"timestamp": time.Now().Format(time.RFC3339),
			},
		},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := n.client.Post(n.webhookURL, "application/json", bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status: %d", resp.StatusCode)
	}

	return nil
}
