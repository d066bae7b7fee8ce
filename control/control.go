// Package control coordinates static-data freshness across the realtime and
// alerts pipelines. Each source's static data (routes, stops, route_stops,
// transfers) is imported on demand rather than on a fixed schedule: the
// first realtime or alerts tick for a source blocks on an import, every
// tick after that returns immediately once the refresh interval has not
// yet elapsed, and concurrent demand for the same source coalesces onto a
// single in-flight import instead of racing.
//
// Grounded on the teacher's engines/static_data.rs (the mpsc/oneshot
// command-channel state machine) and the StaticAdapter/RealtimeAdapter/
// AlertsAdapter traits declared in sources/mod.rs, merged into one package
// here since Go has no equivalent to Rust's mutually-referencing modules.
package control

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/trainstatus/ingest/source"
	"github.com/trainstatus/ingest/store"
)

// Static imports a source's static data into the route/stop stores.
type Static interface {
	Source() source.Source
	RefreshInterval() time.Duration
	Import(ctx context.Context, routes *store.RouteStore, stops *store.StopStore) error
}

// Realtime fetches and saves one source's trip updates and vehicle
// positions. Implementations call StaticController.EnsureUpdated before
// writing, to avoid foreign-key failures against not-yet-imported static
// data.
type Realtime interface {
	Source() source.Source
	RefreshInterval() time.Duration
	Run(ctx context.Context, static *StaticController, trips *store.TripStore, positions *store.PositionStore) error
}

// Alerts fetches and saves one source's service alerts.
type Alerts interface {
	Source() source.Source
	RefreshInterval() time.Duration
	Run(ctx context.Context, alerts *store.AlertStore) error
}

// ErrUnknownSource is returned by EnsureUpdated for a source with no
// registered static adapter.
var ErrUnknownSource = errors.New("control: unknown source")

type ensureUpdatedRequest struct {
	replyTo chan error
}

// StaticController lets realtime/alerts adapters ensure a source's static
// data is fresh before writing rows that reference it. Safe for concurrent
// use; one command channel per source is owned by a dedicated goroutine.
type StaticController struct {
	channels map[source.Source]chan ensureUpdatedRequest
}

// EnsureUpdated blocks until src's static data is known fresh, triggering
// (or joining) an import if it is not. Returns an error for an unknown
// source or a failed import.
func (c *StaticController) EnsureUpdated(ctx context.Context, src source.Source) error {
	ch, ok := c.channels[src]
	if !ok {
		return fmt.Errorf("%w: no static adapter registered for %s", ErrUnknownSource, src)
	}
	reply := make(chan error, 1)
	select {
	case ch <- ensureUpdatedRequest{replyTo: reply}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunStatic spawns one handler goroutine per adapter and returns a
// controller for querying them. Each handler serializes all freshness
// checks and imports for its source onto a single goroutine; ctx cancels
// every handler.
func RunStatic(ctx context.Context, log zerolog.Logger, sources *store.SourceStore, routes *store.RouteStore, stops *store.StopStore, adapters []Static) *StaticController {
	channels := make(map[source.Source]chan ensureUpdatedRequest, len(adapters))
	for _, a := range adapters {
		ch := make(chan ensureUpdatedRequest, 100)
		channels[a.Source()] = ch
		go runSourceHandler(ctx, log, sources, routes, stops, a, ch)
	}
	return &StaticController{channels: channels}
}

func runSourceHandler(ctx context.Context, log zerolog.Logger, sources *store.SourceStore, routes *store.RouteStore, stops *store.StopStore, a Static, reqs chan ensureUpdatedRequest) {
	src := a.Source()
	logger := log.With().Str("source", src.String()).Logger()

	var pendingWaiters []chan error
	importDone := make(chan error, 1)
	importInProgress := false

	startImport := func() {
		importInProgress = true
		logger.Info().Msg("starting static import")
		go func() {
			err := a.Import(ctx, routes, stops)
			if err == nil {
				if merr := sources.MarkUpdated(ctx, src); merr != nil {
					logger.Error().Err(merr).Msg("marking source updated")
				}
			} else {
				logger.Error().Err(err).Msg("static import failed")
			}
			importDone <- err
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return

		case err := <-importDone:
			importInProgress = false
			for _, w := range pendingWaiters {
				w <- err
			}
			pendingWaiters = nil

		case req := <-reqs:
			stale, err := sources.NeedsUpdate(ctx, src, a.RefreshInterval())
			if err != nil {
				req.replyTo <- err
				continue
			}
			if !stale {
				req.replyTo <- nil
				continue
			}
			pendingWaiters = append(pendingWaiters, req.replyTo)
			if !importInProgress {
				startImport()
			}
		}
	}
}
