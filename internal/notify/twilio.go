package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	From       string
}

type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioNotifier sends SMS through the Twilio Messaging API. Recipients
// without a phone number are handed to the fallback notifier.
type TwilioNotifier struct {
	messages messageCreator
	from     string
	fallback Notifier
	logger   *zap.Logger
}

func NewTwilioNotifier(cfg TwilioConfig, fallback Notifier, logger *zap.Logger) (*TwilioNotifier, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, errors.New("notify: twilio credentials required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("notify: twilio sender required")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return newTwilioNotifier(client.Api, cfg.From, fallback, logger), nil
}

func newTwilioNotifier(messages messageCreator, from string, fallback Notifier, logger *zap.Logger) *TwilioNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if fallback == nil {
		fallback = NewLogNotifier(logger)
	}
	return &TwilioNotifier{messages: messages, from: from, fallback: fallback, logger: logger}
}

func (n *TwilioNotifier) Send(ctx context.Context, msg Message) error {
	if msg.To.Phone == "" {
		return n.fallback.Send(ctx, msg)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(msg.To.Phone)
	params.SetFrom(n.from)
	params.SetBody(formatSMS(msg))

	resp, err := n.messages.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("notify: twilio send: %w", err)
	}
	sid := ""
	if resp != nil && resp.Sid != nil {
		sid = *resp.Sid
	}
	n.logger.Info("sms sent", zap.String("sid", sid))
	return nil
}

func formatSMS(msg Message) string {
	if msg.Subject == "" {
		return msg.Body
	}
	return msg.Subject + ": " + msg.Body
}
