// Package notify delivers status change messages to a sink.
package notify

import (
	"context"
	"io"
	"os"

	"go.uber.org/zap"
)

// TestModeWebhook is the webhook value that selects console output.
const TestModeWebhook = "test"

// Notifier sends a single formatted message.
type Notifier interface {
	Send(ctx context.Context, message string) error
}

// New returns a Console notifier when webhook is TestModeWebhook and a Slack
// notifier otherwise. Pass nil logger to discard logs.
func New(webhook string, logger *zap.Logger) Notifier {
	if webhook == TestModeWebhook {
		return NewConsole(os.Stdout, logger)
	}
	return NewSlack(webhook, logger)
}

// Console writes messages to a writer instead of a webhook.
type Console struct {
	out    io.Writer
	logger *zap.Logger
}

// NewConsole creates a Console notifier writing to out.
func NewConsole(out io.Writer, logger *zap.Logger) *Console {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Console{out: out, logger: logger}
}

func (c *Console) Send(_ context.Context, message string) error {
	c.logger.Info("test mode notification", zap.String("message", message))
	_, err := io.WriteString(c.out, "[TEST MODE] Slack notification: "+message+"\n")
	return err
}
