// Package pipeline holds the two generic data-processing algorithms shared
// by every source: the realtime trip/vehicle-position pipeline and the
// alerts pipeline. Concrete adapters (adapters/mtasubway, adapters/mtabus)
// supply only source-specific parsing; everything else — fetch, identity
// remapping, FK retry, dedup, cache invalidation — lives here once.
//
// Grounded on the teacher's integrations/gtfs_realtime.rs (run_pipeline) and
// sources/mta_bus/realtime.rs (the FK-retry/lookup-remap/OBA-merge variant),
// unified per spec §4.2 into one generic pipeline every adapter goes through.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"

	gtfsproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"google.golang.org/protobuf/proto"

	"github.com/trainstatus/ingest/control"
	"github.com/trainstatus/ingest/internal/rtfeed"
	"github.com/trainstatus/ingest/model"
	"github.com/trainstatus/ingest/source"
	"github.com/trainstatus/ingest/store"
)

// RealtimeSource is the per-adapter extension point for the generic
// realtime pipeline.
type RealtimeSource interface {
	Source() source.Source
	FeedURLs() []string
	ProcessTrip(update *gtfsproto.TripUpdate) (*model.Trip, []model.StopTime)
	ProcessVehicle(vehicle *gtfsproto.VehiclePosition) *model.VehiclePosition
}

// PositionEnricher is implemented by adapters needing to merge a secondary
// data source (e.g. bus OBA vehicle status) onto positions before save. It
// mutates positions in place; a fetch failure is logged and treated as
// "nothing to merge", never fatal to the realtime tick.
type PositionEnricher interface {
	EnrichPositions(ctx context.Context, positions []model.VehiclePosition) error
}

// fetchFeeds fetches every URL concurrently, decoding each as a GTFS-RT
// FeedMessage. A failing URL (network error or bad protobuf) is logged and
// skipped; it never fails the whole tick.
func fetchFeeds(ctx context.Context, log zerolog.Logger, client *http.Client, urls []string) []*gtfsproto.FeedMessage {
	msgs := make([]*gtfsproto.FeedMessage, len(urls))
	var g errgroup.Group
	for i, url := range urls {
		i, url := i, url
		g.Go(func() error {
			msg, err := fetchFeed(ctx, client, url)
			if err != nil {
				log.Error().Err(err).Str("url", url).Msg("fetching gtfs-rt feed")
				return nil // a failing feed is skipped, never fatal to the tick
			}
			msgs[i] = msg
			return nil
		})
	}
	_ = g.Wait() // every Go func above always returns nil

	out := msgs[:0]
	for _, m := range msgs {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

func fetchFeed(ctx context.Context, client *http.Client, url string) (*gtfsproto.FeedMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	msg := &gtfsproto.FeedMessage{}
	if err := proto.Unmarshal(body, msg); err != nil {
		return nil, fmt.Errorf("decoding protobuf: %w", err)
	}
	return msg, nil
}

// RunRealtime implements spec §4.2's generic realtime pipeline: ensure
// static data is fresh, fetch feeds, process entities, bulk-upsert trips and
// stop_times, rewrite position trip ids via the returned identity map, then
// save positions — retrying the trip upsert once on a foreign-key violation
// after another EnsureUpdated call.
func RunRealtime(ctx context.Context, log zerolog.Logger, client *http.Client, adapter RealtimeSource, static *control.StaticController, trips *store.TripStore, positions *store.PositionStore) error {
	src := adapter.Source()

	if err := static.EnsureUpdated(ctx, src); err != nil {
		return fmt.Errorf("ensuring static data for %s: %w", src, err)
	}

	feeds := fetchFeeds(ctx, log, client, adapter.FeedURLs())
	if len(feeds) == 0 {
		return nil
	}

	var items []store.TripWithStopTimes
	var positionList []model.VehiclePosition
	// vehicle_id -> proposed trip id, the link the teacher's
	// vehicle_to_trip map establishes before trips are saved.
	vehicleToTrip := map[string]uuid.UUID{}

	// A trip an upstream feed marks CANCELED is dropped from this tick
	// entirely rather than upserted with stale data (original_source leaves
	// this as an open TODO per source; see internal/rtfeed). A stop an
	// upstream feed marks SKIPPED on an otherwise-live trip is dropped from
	// that trip's stop_times individually.
	canceled := rtfeed.CanceledTrips(feeds)
	skippedStops := rtfeed.SkippedStops(feeds)

	for _, feed := range feeds {
		for _, entity := range feed.GetEntity() {
			if tu := entity.GetTripUpdate(); tu != nil {
				tripID := tu.GetTrip().GetTripId()
				if canceled[tripID] {
					continue
				}
				trip, stopTimes := adapter.ProcessTrip(tu)
				if trip != nil {
					trip.Source = src
					vehicleToTrip[trip.VehicleID] = trip.ID
					if skip := skippedStops[tripID]; len(skip) > 0 {
						kept := stopTimes[:0]
						for _, st := range stopTimes {
							if !skip[st.StopID] {
								kept = append(kept, st)
							}
						}
						stopTimes = kept
					}
					items = append(items, store.TripWithStopTimes{Trip: *trip, StopTimes: stopTimes})
				}
			}
			if vp := entity.GetVehicle(); vp != nil {
				if pos := adapter.ProcessVehicle(vp); pos != nil {
					positionList = append(positionList, *pos)
				}
			}
		}
	}

	log.Info().Int("trips", len(items)).Int("positions", len(positionList)).Int("canceled", len(canceled)).Msg("processed realtime feed")

	if enricher, ok := adapter.(PositionEnricher); ok {
		if err := enricher.EnrichPositions(ctx, positionList); err != nil {
			log.Warn().Err(err).Msg("enriching vehicle positions")
		}
	}

	idMap, err := saveTripsWithRetry(ctx, log, static, trips, src, items)
	if err != nil {
		return err
	}

	for i, pos := range positionList {
		if pos.TripID != nil {
			continue
		}
		proposed, ok := vehicleToTrip[pos.VehicleID]
		if !ok {
			continue
		}
		if actual, ok := idMap[proposed]; ok {
			positionList[i].TripID = &actual
		}
	}

	if err := positions.SaveVehiclePositions(ctx, src, positionList); err != nil {
		return fmt.Errorf("saving vehicle positions: %w", err)
	}
	return nil
}

// saveTripsWithRetry calls TripStore.SaveAll, and on a Postgres foreign-key
// violation (23503 — a referenced route doesn't exist in static data yet)
// calls EnsureUpdated and retries exactly once. EnsureUpdated re-imports
// only when src's static data is older than its refresh interval, so a
// source imported within that interval is not re-imported before the retry.
func saveTripsWithRetry(ctx context.Context, log zerolog.Logger, static *control.StaticController, trips *store.TripStore, src source.Source, items []store.TripWithStopTimes) (map[uuid.UUID]uuid.UUID, error) {
	idMap, err := trips.SaveAll(ctx, src, items)
	if err == nil {
		return idMap, nil
	}
	if !isForeignKeyViolation(err) {
		return nil, fmt.Errorf("saving trips: %w", err)
	}

	log.Warn().Str("source", src.String()).Msg("trip upsert hit missing static data, ensuring static data and retrying once")
	if rerr := static.EnsureUpdated(ctx, src); rerr != nil {
		return nil, fmt.Errorf("ensuring static data after FK violation: %w", rerr)
	}

	idMap, err = trips.SaveAll(ctx, src, items)
	if err != nil {
		return nil, fmt.Errorf("saving trips after retry: %w", err)
	}
	return idMap, nil
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return asPQError(err, &pqErr) && pqErr.Code == "23503"
}

func asPQError(err error, target **pq.Error) bool {
	for err != nil {
		if pe, ok := err.(*pq.Error); ok {
			*target = pe
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
