package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/finvault/guardian/internal/core/domain"
	"github.com/finvault/guardian/internal/core/ports"
)

// Recorder writes login attempts to the audit log. All writes are
// best-effort: an audit failure is logged and swallowed so it can never
// change an authentication outcome.
type Recorder struct {
	repo ports.AuditRepository
}

func NewRecorder(repo ports.AuditRepository) *Recorder {
	return &Recorder{repo: repo}
}

// Attempt records one login decision.
func (r *Recorder) Attempt(ctx context.Context, userID, location, status, details string) {
	if r == nil || r.repo == nil {
		return
	}
	err := r.repo.LogLoginAttempt(ctx, domain.LoginAttempt{
		UserID:    userID,
		Location:  location,
		Status:    status,
		Details:   details,
		Timestamp: time.Now(),
	})
	if err != nil {
		slog.Warn("audit write failed", "user_id", userID, "status", status, "error", err)
	}
}

// Recent returns the newest attempts, capped at limit.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]domain.LoginAttempt, error) {
	return r.repo.RecentAttempts(ctx, limit)
}
