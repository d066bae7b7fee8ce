// Package engine runs each realtime/alerts adapter on its own refresh-interval
// timer, forever, logging and continuing past individual pipeline errors.
//
// Grounded on the teacher's engines/realtime.rs and engines/alerts.rs
// (one tokio::spawn per adapter, sleep(refresh_interval) between ticks).
package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/trainstatus/ingest/control"
	"github.com/trainstatus/ingest/store"
)

// RunRealtime spawns one goroutine per adapter, each looping: run, sleep for
// refresh_interval, repeat. Errors are logged, never fatal.
func RunRealtime(ctx context.Context, log zerolog.Logger, trips *store.TripStore, positions *store.PositionStore, static *control.StaticController, adapters []control.Realtime) {
	for _, a := range adapters {
		a := a
		logger := log.With().Str("source", a.Source().String()).Logger()
		go func() {
			for {
				if err := a.Run(ctx, static, trips, positions); err != nil {
					logger.Error().Err(err).Msg("realtime pipeline error")
				}
				select {
				case <-ctx.Done():
					return
				case <-time.After(a.RefreshInterval()):
				}
			}
		}()
	}
}

// RunAlerts spawns one goroutine per adapter, identical in shape to
// RunRealtime but without static-data coordination.
func RunAlerts(ctx context.Context, log zerolog.Logger, alerts *store.AlertStore, adapters []control.Alerts) {
	for _, a := range adapters {
		a := a
		logger := log.With().Str("source", a.Source().String()).Logger()
		go func() {
			for {
				if err := a.Run(ctx, alerts); err != nil {
					logger.Error().Err(err).Msg("alert pipeline error")
				}
				select {
				case <-ctx.Done():
					return
				case <-time.After(a.RefreshInterval()):
				}
			}
		}()
	}
}
