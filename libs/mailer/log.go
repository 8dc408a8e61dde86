package mailer

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// LogProvider writes messages to the log instead of sending them. It is the
// default when no Resend key is configured.
type LogProvider struct {
	Logger *slog.Logger
}

func NewLogProvider(logger *slog.Logger) *LogProvider {
	return &LogProvider{Logger: logger}
}

func (l *LogProvider) Name() string {
	return "log"
}

func (l *LogProvider) Send(ctx context.Context, msg Message) (SendResult, error) {
	id := "log-" + uuid.NewString()
	l.Logger.InfoContext(ctx, "mailer: email logged (not sent)",
		"from", msg.From,
		"to", strings.Join(msg.To, ", "),
		"subject", msg.Subject,
		"text", msg.Text,
		"message_id", id,
	)
	return SendResult{ProviderMessageID: id}, nil
}
