package enrich

import (
	"context"
	"log/slog"
	"time"

	"github.com/finvault/guardian/internal/core/domain"
	"github.com/finvault/guardian/internal/core/ports"
	"github.com/finvault/guardian/internal/core/services/signal"
	"github.com/finvault/guardian/internal/core/services/signature"
)

// Recorder maintains the device and IP enrichment tables observed across
// logins and telemetry. Writes are best-effort and never block a decision.
type Recorder struct {
	store  ports.TelemetryStore
	binder *signature.Binder
}

func NewRecorder(store ports.TelemetryStore, binder *signature.Binder) *Recorder {
	return &Recorder{store: store, binder: binder}
}

// Observe upserts the device and IP rows for one observation and links the
// pair when both are present.
func (r *Recorder) Observe(ctx context.Context, userID string, metrics *domain.LoginMetrics) {
	if r == nil || r.store == nil || metrics == nil {
		return
	}
	now := time.Now()

	var deviceHash string
	if metrics.Device != nil && !metrics.Device.Empty() {
		canonical := signal.CanonicalDevice(*metrics.Device)
		deviceHash = r.binder.Compute(&canonical, "")
		err := r.store.UpsertDevice(ctx, domain.DeviceRecord{
			Hash:      deviceHash,
			UserID:    userID,
			Device:    canonical,
			FirstSeen: now,
			LastSeen:  now,
			SeenCount: 1,
		})
		if err != nil {
			slog.Warn("device enrichment failed", "user_id", userID, "error", err)
		}
	}

	if metrics.IP != "" {
		err := r.store.UpsertIP(ctx, domain.IPRecord{
			IP:        metrics.IP,
			Prefix:    signal.Prefix(metrics.IP),
			Private:   signal.IsPrivate(metrics.IP),
			ASN:       metrics.IPASN,
			ASNOrg:    metrics.IPASNOrg,
			City:      metrics.IPCity,
			Region:    metrics.IPRegion,
			Country:   metrics.IPCountry,
			FirstSeen: now,
			LastSeen:  now,
			SeenCount: 1,
		})
		if err != nil {
			slog.Warn("ip enrichment failed", "user_id", userID, "error", err)
		}
	}

	if deviceHash != "" && metrics.IP != "" {
		if err := r.store.LinkDeviceIP(ctx, deviceHash, metrics.IP, now); err != nil {
			slog.Warn("device/ip link failed", "user_id", userID, "error", err)
		}
	}
}
