// Package notification delivers preformatted alerts to external channels
// (Slack-style webhooks, Telegram, Kafka) or to the local log.
package notification

import (
	"context"
	"log"
	"time"

	"go.uber.org/multierr"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Kind separates trade alerts from operational errors on a shared channel.
type Kind string

const (
	KindSignal Kind = "signal"
	KindError  Kind = "error"
)

// Alert represents a notification to be sent. Message is already formatted
// for humans; backends must not rewrite it.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Kind    Kind       `json:"kind"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
	TS      time.Time  `json:"ts"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the process log. It is the fallback when no
// endpoint is configured.
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s/%s] %s:\n%s", alert.Level, alert.Kind, alert.Title, alert.Message)
	return nil
}

// Multi fans an alert out to every backend. All backends are tried; errors
// are combined.
type Multi struct {
	notifiers []Notifier
}

// NewMulti creates a fan-out notifier. Nil entries are dropped.
func NewMulti(notifiers ...Notifier) *Multi {
	m := &Multi{}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

// Len returns how many backends are attached.
func (m *Multi) Len() int { return len(m.notifiers) }

func (m *Multi) Send(ctx context.Context, alert Alert) error {
	if alert.TS.IsZero() {
		alert.TS = time.Now().UTC()
	}
	var err error
	for _, n := range m.notifiers {
		err = multierr.Append(err, n.Send(ctx, alert))
	}
	return err
}
