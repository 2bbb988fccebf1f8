package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/teachlyze/tamanduai-api/pkg/email"
)

// EmailSender delivers one outbound email.
type EmailSender interface {
	Send(ctx context.Context, msg email.Message) error
}

// LogEmailSender is used when no email provider is configured. It only logs.
type LogEmailSender struct {
	logger zerolog.Logger
}

// NewLogEmailSender constructs a logging sender.
func NewLogEmailSender(logger zerolog.Logger) *LogEmailSender {
	return &LogEmailSender{logger: logger.With().Str("component", "email_delivery").Logger()}
}

// Send logs the message and returns nil.
func (l *LogEmailSender) Send(ctx context.Context, msg email.Message) error {
	l.logger.Info().
		Str("to", maskEmailAddress(msg.ToAddress)).
		Str("subject", msg.Subject).
		Msg("email provider not configured, message logged only")
	return nil
}
