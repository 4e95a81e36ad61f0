// Package alert escalates conditions the unattended session cannot
// resolve on its own, a failed protective exit above all. Delivery is
// best effort; the structured log remains the channel of record.
package alert

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Severity ranks an alert for routing and log level.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is one escalation event.
type Alert struct {
	Severity Severity
	Title    string
	Body     string
	Symbol   string
	Data     map[string]string
}

// Critical builds an alert for conditions that need a human: open risk
// the bot could not flatten.
func Critical(title, body, symbol string) Alert {
	return Alert{Severity: SeverityCritical, Title: title, Body: body, Symbol: symbol}
}

// Notifier delivers alerts. Implementations must never block the
// session loop.
type Notifier interface {
	Notify(ctx context.Context, a Alert)
	Close() error
}

// LogNotifier writes alerts to the structured log. It is the default
// when no push channel is configured.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier uses the process-wide logger.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: log.Logger}
}

func (n *LogNotifier) Notify(ctx context.Context, a Alert) {
	event := n.logger.Info()
	switch a.Severity {
	case SeverityWarning:
		event = n.logger.Warn()
	case SeverityCritical:
		event = n.logger.Error()
	}
	event.Str("severity", string(a.Severity)).
		Str("title", a.Title).
		Str("symbol", a.Symbol).
		Msg("session alert: " + a.Body)
}

func (n *LogNotifier) Close() error { return nil }
