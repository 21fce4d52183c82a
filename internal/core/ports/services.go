package ports

import (
	"context"

	"github.com/finvault/guardian/internal/core/domain"
)

// AlertSink receives decoupled events of interest. Emit must never block
// the caller; delivery is best-effort.
type AlertSink interface {
	Emit(eventType domain.AlertType, details string)
}

// Mailer delivers magic links over email.
type Mailer interface {
	SendMagicLink(ctx context.Context, email, link string) error
}

// SMSSender delivers magic links over SMS.
type SMSSender interface {
	SendMagicLink(ctx context.Context, phone, link string) error
}

// WebAuthnVerifier performs the WebAuthn assertion ceremony. The ceremony
// implementation is an external collaborator; only the interface is owned
// here.
type WebAuthnVerifier interface {
	VerifyAssertion(ctx context.Context, userID string, credential map[string]any) error
}
