package notify

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

var ErrNoRecipient = errors.New("notify: message has no recipient")

type Recipient struct {
	Email string
	Phone string
}

type Message struct {
	To      Recipient
	Subject string
	Body    string
}

// Notifier delivers out-of-band messages such as password reset links.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// LogNotifier writes messages to the log instead of delivering them.
// It stands in for a real channel in development.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(_ context.Context, msg Message) error {
	if msg.To.Email == "" && msg.To.Phone == "" {
		return ErrNoRecipient
	}
	n.logger.Info("notification",
		zap.String("to_email", msg.To.Email),
		zap.String("to_phone", msg.To.Phone),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body))
	return nil
}
