package geo

import (
	"context"
	"log/slog"
	"time"

	"github.com/finvault/guardian/internal/core/domain"
	"github.com/finvault/guardian/internal/core/ports"
)

// Aggregator folds raw geo events into per-user tile aggregates and
// enforces the retention windows. Raw events are short-lived; tiles keep a
// longer coarse history for location familiarity.
type Aggregator struct {
	store    ports.GeoEventStore
	interval time.Duration
	now      func() time.Time
}

// NewAggregator creates an aggregator running at the given interval.
func NewAggregator(store ports.GeoEventStore, interval time.Duration) *Aggregator {
	return &Aggregator{store: store, interval: interval, now: time.Now}
}

// Run aggregates and sweeps until ctx is cancelled.
func (a *Aggregator) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.Aggregate(ctx); err != nil {
				slog.Warn("geo aggregation failed", "error", err)
			}
			if err := a.Sweep(ctx); err != nil {
				slog.Warn("geo retention sweep failed", "error", err)
			}
		}
	}
}

// Aggregate rolls the trailing day of raw events into tile aggregates.
// Tile upserts are additive, so re-aggregating an event window twice only
// inflates counts; the window matches the run interval to keep overlap
// small.
func (a *Aggregator) Aggregate(ctx context.Context) error {
	since := a.now().Add(-a.interval)
	events, err := a.store.EventsSince(ctx, since)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	type key struct {
		userID   string
		lat, lon float64
	}
	type agg struct {
		count    int64
		accuracy float64
		lastSeen time.Time
	}
	tiles := make(map[key]*agg)
	for _, ev := range events {
		k := key{userID: ev.UserID, lat: ev.TileLat, lon: ev.TileLon}
		t := tiles[k]
		if t == nil {
			t = &agg{}
			tiles[k] = t
		}
		t.count++
		t.accuracy += ev.Accuracy
		if ev.TS.After(t.lastSeen) {
			t.lastSeen = ev.TS
		}
	}

	for k, t := range tiles {
		avg := t.accuracy / float64(t.count)
		if err := a.store.UpsertTile(ctx, k.userID, k.lat, k.lon, t.count, avg, t.lastSeen); err != nil {
			return err
		}
	}
	slog.Debug("geo tiles aggregated", "events", len(events), "tiles", len(tiles))
	return nil
}

// Sweep deletes raw events and tiles past their retention windows.
func (a *Aggregator) Sweep(ctx context.Context) error {
	now := a.now()
	if err := a.store.DeleteEventsBefore(ctx, now.Add(-domain.GeoRawRetention)); err != nil {
		return err
	}
	return a.store.DeleteTilesBefore(ctx, now.Add(-domain.GeoTileRetention))
}
