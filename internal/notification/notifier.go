// Package notification delivers pattern alerts to external channels
// (Telegram, webhooks, the log). Alerts are rendered from complete
// PatternEvents; nothing here computes indicator values.
package notification

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert is a rendered notification.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`

	EventID    uuid.UUID `json:"event_id"`
	Asset      string    `json:"asset"`
	Kind       string    `json:"kind"`
	Confidence int       `json:"confidence"`
	TS         time.Time `json:"ts"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Name identifies the backend in logs and metrics.
	Name() string
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the structured log.
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With("component", "notify")}
}

func (n *LogNotifier) Name() string { return "log" }

func (n *LogNotifier) Send(_ context.Context, alert Alert) error {
	n.log.Info(alert.Title,
		"level", string(alert.Level),
		"asset", alert.Asset,
		"kind", alert.Kind,
		"confidence", alert.Confidence,
		"message", alert.Message,
	)
	return nil
}
