// Package mtabus implements the MtaBus source: GTFS-RT realtime merged with
// OBA vehicle status, GTFS-RT + Mercury extension alerts, and OBA
// routes-for-agency/stops-for-route JSON static data.
//
// Grounded on original_source/backend/src/sources/mta_bus/realtime.rs.
package mtabus

import (
	"context"
	"net/http"
	"strings"
	"time"

	gtfsproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/rs/zerolog"

	"github.com/trainstatus/ingest/control"
	"github.com/trainstatus/ingest/internal/geo"
	"github.com/trainstatus/ingest/internal/oba"
	"github.com/trainstatus/ingest/internal/transitid"
	"github.com/trainstatus/ingest/internal/triptime"
	"github.com/trainstatus/ingest/model"
	"github.com/trainstatus/ingest/pipeline"
	"github.com/trainstatus/ingest/source"
	"github.com/trainstatus/ingest/store"
)

var feedURLs = []string{
	"https://gtfsrt.prod.obanyc.com/tripUpdates",
	"https://gtfsrt.prod.obanyc.com/vehiclePositions",
}

// agencies is the set of OBA agency ids polled for vehicle status, each
// queried separately since the endpoint is scoped to one agency at a time.
var agencies = []string{"MTABC", "MTA NYCT"}

// Realtime implements pipeline.RealtimeSource and pipeline.PositionEnricher
// for the bus network.
type Realtime struct {
	Log      zerolog.Logger
	Client   *http.Client
	Endpoint string
	APIKey   string
}

func (r *Realtime) Source() source.Source          { return source.MtaBus }
func (r *Realtime) FeedURLs() []string              { return feedURLs }
func (r *Realtime) RefreshInterval() time.Duration { return 30 * time.Second }

// Run implements control.Realtime by delegating to the generic pipeline,
// which type-asserts r as a PositionEnricher to merge OBA data in.
func (r *Realtime) Run(ctx context.Context, static *control.StaticController, trips *store.TripStore, positions *store.PositionStore) error {
	return pipeline.RunRealtime(ctx, r.Log, r.Client, r, static, trips, positions)
}

func (r *Realtime) ProcessTrip(update *gtfsproto.TripUpdate) (*model.Trip, []model.StopTime) {
	desc := update.GetTrip()
	if desc == nil || desc.GetTripId() == "" {
		return nil, nil
	}
	mtaID := desc.GetTripId()
	if desc.GetRouteId() == "" {
		return nil, nil
	}
	routeID := transitid.StripAgencyPrefix(desc.GetRouteId())

	vehicle := update.GetVehicle()
	if vehicle == nil || vehicle.GetId() == "" {
		return nil, nil
	}
	vehicleID := transitid.StripAgencyPrefix(vehicle.GetId())

	var direction *int16
	if desc.DirectionId != nil {
		d := int16(desc.GetDirectionId())
		direction = &d
	}

	if desc.GetStartDate() == "" {
		return nil, nil
	}
	startDate, err := time.ParseInLocation("20060102", desc.GetStartDate(), time.UTC)
	if err != nil {
		return nil, nil
	}

	// Falls back to midnight (not a skip) when the trip id doesn't carry a
	// parseable origin time segment, matching the teacher: determinism of
	// created_at matters more here than correctness of an unparseable id,
	// since some MTA Bus Co. trip ids use an entirely different format.
	startTime, ok := parseBusOriginTime(mtaID)
	if !ok {
		startTime = 0
	}

	createdAt, ok := triptime.CreatedAt(startDate, startTime)
	if !ok {
		return nil, nil
	}

	var deviation *float64
	if update.Delay != nil {
		d := float64(update.GetDelay())
		deviation = &d
	}

	trip := &model.Trip{
		ID:         model.NewTripID(),
		OriginalID: mtaID,
		RouteID:    routeID,
		Direction:  direction,
		CreatedAt:  createdAt,
		VehicleID:  vehicleID,
		UpdatedAt:  time.Now().UTC(),
		Data:       model.MtaBusTripData{Deviation: deviation},
	}

	var stopTimes []model.StopTime
	for _, st := range update.GetStopTimeUpdate() {
		stopID := st.GetStopId()
		if stopID == "" {
			continue
		}
		arrival, departure, ok := arrivalDeparture(st)
		if !ok {
			continue
		}
		stopTimes = append(stopTimes, model.StopTime{
			StopID:    stopID,
			Arrival:   &arrival,
			Departure: &departure,
			Data:      model.MtaBusStopTimeData{},
		})
	}

	return trip, stopTimes
}

func (r *Realtime) ProcessVehicle(vehicle *gtfsproto.VehiclePosition) *model.VehiclePosition {
	desc := vehicle.GetVehicle()
	if desc == nil || desc.GetId() == "" {
		return nil
	}
	vehicleID := transitid.StripAgencyPrefix(desc.GetId())

	pos := vehicle.GetPosition()
	if pos == nil {
		return nil
	}
	geomBytes := geo.EncodePoint(float64(pos.GetLongitude()), float64(pos.GetLatitude()))

	var stopID *string
	if s := vehicle.GetStopId(); s != "" {
		stopID = &s
	}

	updatedAt := time.Now().UTC()
	if vehicle.Timestamp != nil {
		updatedAt = time.Unix(int64(vehicle.GetTimestamp()), 0).UTC()
	}

	return &model.VehiclePosition{
		VehicleID: vehicleID,
		TripID:    nil, // linked by pipeline.RunRealtime via vehicle_id -> trip id map
		StopID:    stopID,
		UpdatedAt: updatedAt,
		Geom:      geomBytes,
		Data:      model.MtaBusPositionData{},
	}
}

// EnrichPositions implements pipeline.PositionEnricher: it fetches current
// OBA vehicle status for every configured agency and merges occupancy and
// phase/status data onto the matching positions by vehicle id. A fetch
// failure for one or all agencies is non-fatal — positions simply keep
// whatever GTFS-RT alone provided.
func (r *Realtime) EnrichPositions(ctx context.Context, positions []model.VehiclePosition) error {
	byVehicle := map[string]oba.VehicleStatus{}
	for _, agency := range agencies {
		url := r.Endpoint + "/api/where/vehicles-for-agency/" + agency + ".json"
		vehicles, err := oba.FetchVehicles(ctx, r.Client, url, r.APIKey)
		if err != nil {
			r.Log.Warn().Err(err).Str("agency", agency).Msg("fetching OBA vehicles")
			continue
		}
		for _, v := range vehicles {
			id := transitid.StripAgencyPrefix(v.VehicleID)
			byVehicle[id] = v
		}
	}

	for i, p := range positions {
		v, ok := byVehicle[p.VehicleID]
		if !ok {
			continue
		}
		status, phase := v.Status, v.Phase
		positions[i].Data = model.MtaBusPositionData{
			OccupancyCount:    v.OccupancyCount,
			OccupancyCapacity: v.OccupancyCapacity,
			Status:            &status,
			Phase:             &phase,
		}
	}
	return nil
}

// parseBusOriginTime recovers the origin time encoded in the trip id's
// schedule segment: "{prefix}_{schedule}-{day}-{type}-{HHMMSS}_{route}_{block}".
func parseBusOriginTime(tripID string) (time.Duration, bool) {
	parts := strings.Split(tripID, "_")
	if len(parts) < 2 {
		return 0, false
	}
	segments := strings.Split(parts[1], "-")
	if len(segments) == 0 {
		return 0, false
	}
	timeStr := segments[len(segments)-1]
	t, err := time.Parse("150405", timeStr)
	if err != nil {
		return 0, false
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second, true
}

func arrivalDeparture(st *gtfsproto.TripUpdate_StopTimeUpdate) (arrival, departure time.Time, ok bool) {
	var arrivalUnix, departureUnix int64
	switch {
	case st.GetArrival() != nil && st.GetArrival().Time != nil:
		arrivalUnix = st.GetArrival().GetTime()
	case st.GetDeparture() != nil && st.GetDeparture().Time != nil:
		arrivalUnix = st.GetDeparture().GetTime()
	default:
		return time.Time{}, time.Time{}, false
	}
	switch {
	case st.GetDeparture() != nil && st.GetDeparture().Time != nil:
		departureUnix = st.GetDeparture().GetTime()
	case st.GetArrival() != nil && st.GetArrival().Time != nil:
		departureUnix = st.GetArrival().GetTime()
	default:
		return time.Time{}, time.Time{}, false
	}
	return time.Unix(arrivalUnix, 0).UTC(), time.Unix(departureUnix, 0).UTC(), true
}
