// Package mail defines the dispatch collaborator lifecycle hooks invoke.
// Delivery and templating live outside this service; the default sender just
// records what would have been sent.
package mail

import (
	"context"
	"time"

	"communityshare.org/internal/obs"
)

// Message is a minimal outbound mail.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender dispatches messages. Errors are reported to the caller, which
// decides whether they fail the request or downgrade to a warning.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// LogSender writes messages to the structured log instead of delivering them.
type LogSender struct{}

func (LogSender) Send(_ context.Context, m Message) error {
	obs.LogLine(map[string]any{
		"ts":      time.Now().UTC().Format(time.RFC3339Nano),
		"type":    "mail",
		"to":      m.To,
		"subject": m.Subject,
	})
	return nil
}
