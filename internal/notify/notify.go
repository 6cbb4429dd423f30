// Package notify tells operators about campaign outcomes on a chat platform
// (Slack, Discord) or in the log.
package notify

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
)

// Notifier delivers a message to operators.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Message is one operator notification.
type Message struct {
	Channel string           // target channel; empty uses the notifier default
	Text    string           // plain text, also the fallback for Events
	Events  []FormattedEvent // structured attachments
}

// FormattedEvent is a notification rendered for a chat sidebar.
type FormattedEvent struct {
	Title    string
	Body     string
	Severity string // "info", "warning", "error", "success"
	Color    string // sidebar color, e.g. "#36a64f"
	Fields   []Field
}

// Field is a key-value pair shown with an event.
type Field struct {
	Name  string
	Value string
	Short bool // render side-by-side with another field
}

// LogNotifier writes notifications to a zerolog logger. It is the fallback
// when no chat platform is configured.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "notify").Logger()}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(ctx context.Context, msg Message) error {
	if len(msg.Events) == 0 {
		n.log.Info().Msg(msg.Text)
		return nil
	}
	for _, evt := range msg.Events {
		e := n.log.WithLevel(severityLevel(evt.Severity)).Str("title", evt.Title)
		for _, f := range evt.Fields {
			e = e.Str(strings.ToLower(strings.ReplaceAll(f.Name, " ", "_")), f.Value)
		}
		e.Msg(evt.Body)
	}
	return nil
}

func severityLevel(severity string) zerolog.Level {
	switch severity {
	case "error":
		return zerolog.ErrorLevel
	case "warning":
		return zerolog.WarnLevel
	default:
		return zerolog.InfoLevel
	}
}

// Multi fans a message out to every notifier and returns the first error.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, msg Message) error {
	var first error
	for _, n := range m {
		if err := n.Notify(ctx, msg); err != nil && first == nil {
			first = err
		}
	}
	return first
}
