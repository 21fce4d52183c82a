package notify

import (
	"context"
	"log/slog"

	"github.com/finvault/guardian/internal/core/ports"
)

// Ensure interface compliance
var (
	_ ports.Mailer    = (*LogMailer)(nil)
	_ ports.SMSSender = (*LogSMSSender)(nil)
)

// LogMailer writes magic links to the log instead of delivering email.
// Stands in until an SMTP or provider integration is configured.
type LogMailer struct{}

func NewLogMailer() *LogMailer { return &LogMailer{} }

func (m *LogMailer) SendMagicLink(ctx context.Context, email, link string) error {
	slog.Info("magic link email", "to", email, "link", link)
	return nil
}

// LogSMSSender writes magic links to the log instead of sending SMS.
type LogSMSSender struct{}

func NewLogSMSSender() *LogSMSSender { return &LogSMSSender{} }

func (s *LogSMSSender) SendMagicLink(ctx context.Context, phone, link string) error {
	slog.Info("magic link sms", "to", phone, "link", link)
	return nil
}
