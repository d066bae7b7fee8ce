// Package mtasubway implements the MtaSubway source: GTFS-RT + NYCT
// extension realtime, GTFS-RT + Mercury extension alerts, and GTFS ZIP +
// MTA internal stops-for-route/nearby JSON static data.
//
// Grounded on original_source/backend/src/sources/mta_subway/realtime.rs.
package mtasubway

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	gtfsproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/rs/zerolog"

	"github.com/trainstatus/ingest/control"
	"github.com/trainstatus/ingest/internal/gtfsrt"
	"github.com/trainstatus/ingest/internal/transitid"
	"github.com/trainstatus/ingest/internal/triptime"
	"github.com/trainstatus/ingest/model"
	"github.com/trainstatus/ingest/pipeline"
	"github.com/trainstatus/ingest/source"
	"github.com/trainstatus/ingest/store"
)

// feedURLs is the fixed set of per-division NYCT subway GTFS-RT endpoints.
var feedURLs = []string{
	"https://api-endpoint.mta.info/Dataservice/mtagtfsfeeds/nyct%2Fgtfs-ace",
	"https://api-endpoint.mta.info/Dataservice/mtagtfsfeeds/nyct%2Fgtfs-bdfm",
	"https://api-endpoint.mta.info/Dataservice/mtagtfsfeeds/nyct%2Fgtfs-g",
	"https://api-endpoint.mta.info/Dataservice/mtagtfsfeeds/nyct%2Fgtfs-jz",
	"https://api-endpoint.mta.info/Dataservice/mtagtfsfeeds/nyct%2Fgtfs-nqrw",
	"https://api-endpoint.mta.info/Dataservice/mtagtfsfeeds/nyct%2Fgtfs-l",
	"https://api-endpoint.mta.info/Dataservice/mtagtfsfeeds/nyct%2Fgtfs", // 1234567
	"https://api-endpoint.mta.info/Dataservice/mtagtfsfeeds/nyct%2Fgtfs-si",
}

// Realtime implements pipeline.RealtimeSource and control.Realtime for the
// subway.
type Realtime struct {
	Log    zerolog.Logger
	Client *http.Client
}

func (Realtime) Source() source.Source           { return source.MtaSubway }
func (Realtime) FeedURLs() []string               { return feedURLs }
func (Realtime) RefreshInterval() time.Duration  { return 10 * time.Second }

// Run implements control.Realtime by delegating to the generic pipeline.
func (r Realtime) Run(ctx context.Context, static *control.StaticController, trips *store.TripStore, positions *store.PositionStore) error {
	return pipeline.RunRealtime(ctx, r.Log, r.Client, r, static, trips, positions)
}

func (Realtime) ProcessTrip(update *gtfsproto.TripUpdate) (*model.Trip, []model.StopTime) {
	desc := update.GetTrip()
	if desc == nil || desc.GetTripId() == "" || desc.GetRouteId() == "" {
		return nil, nil
	}
	mtaID := desc.GetTripId()
	routeID := transitid.ParseSubwayRouteID(desc.GetRouteId())

	nyct, ok := gtfsrt.GetNyctTripDescriptor(desc)
	if !ok || !nyct.HasTrainID {
		return nil, nil
	}
	trainID := nyct.TrainID

	direction, ok := subwayDirection(nyct, update)
	if !ok {
		return nil, nil
	}

	if desc.GetStartDate() == "" {
		return nil, nil
	}
	startDate, err := time.ParseInLocation("20060102", desc.GetStartDate(), time.UTC)
	if err != nil {
		return nil, nil
	}

	startTime, ok := subwayStartTime(desc, mtaID)
	if !ok {
		return nil, nil
	}

	createdAt, ok := triptime.CreatedAt(startDate, startTime)
	if !ok {
		return nil, nil
	}

	d := direction
	trip := &model.Trip{
		ID:         model.NewTripID(),
		OriginalID: mtaID,
		RouteID:    routeID,
		Direction:  &d,
		CreatedAt:  createdAt,
		VehicleID:  trainID,
		UpdatedAt:  time.Now().UTC(),
		Data:       model.MtaSubwayTripData{},
	}

	var stopTimes []model.StopTime
	for _, st := range update.GetStopTimeUpdate() {
		stopID := st.GetStopId()
		if stopID == "" {
			continue
		}
		stopID = transitid.StripSubwayDirectionSuffix(stopID)
		if transitid.IsFakeStop(stopID) {
			continue
		}

		arrival, departure, ok := arrivalDeparture(st)
		if !ok {
			continue
		}

		var scheduledTrack, actualTrack *string
		if nyctStu, ok := gtfsrt.GetNyctStopTimeUpdate(st); ok {
			scheduledTrack, actualTrack = nyctStu.ScheduledTrack, nyctStu.ActualTrack
		}

		stopTimes = append(stopTimes, model.StopTime{
			StopID:    stopID,
			Arrival:   &arrival,
			Departure: &departure,
			Data: model.MtaSubwayStopTimeData{
				ScheduledTrack: scheduledTrack,
				ActualTrack:    actualTrack,
			},
		})
	}

	return trip, stopTimes
}

func (Realtime) ProcessVehicle(vehicle *gtfsproto.VehiclePosition) *model.VehiclePosition {
	desc := vehicle.GetTrip()
	if desc == nil {
		return nil
	}
	nyct, ok := gtfsrt.GetNyctTripDescriptor(desc)
	if !ok || !nyct.HasTrainID {
		return nil
	}

	stopID := vehicle.GetStopId()
	if stopID == "" {
		return nil
	}
	stopID = transitid.StripSubwayDirectionSuffix(stopID)
	if transitid.IsFakeStop(stopID) {
		return nil
	}

	var status *string
	switch vehicle.GetCurrentStatus() {
	case gtfsproto.VehiclePosition_INCOMING_AT:
		s := "incoming"
		status = &s
	case gtfsproto.VehiclePosition_STOPPED_AT:
		s := "at_stop"
		status = &s
	case gtfsproto.VehiclePosition_IN_TRANSIT_TO:
		s := "in_transit_to"
		status = &s
	}

	if vehicle.Timestamp == nil {
		return nil
	}
	updatedAt := time.Unix(int64(vehicle.GetTimestamp()), 0).UTC()

	return &model.VehiclePosition{
		VehicleID: nyct.TrainID,
		TripID:    nil, // RunRealtime links it through the vehicle_id -> trip map
		StopID:    &stopID,
		UpdatedAt: updatedAt,
		Geom:      nil,
		Data: model.MtaSubwayPositionData{
			Assigned: nyct.IsAssigned,
			Status:   status,
		},
	}
}

// subwayDirection resolves the NYCT direction field ({1: north, 3: south}),
// falling back to the trailing N/S of the first stop_time_update's stop id.
func subwayDirection(nyct *gtfsrt.NyctTripDescriptor, update *gtfsproto.TripUpdate) (int16, bool) {
	if nyct.HasDirection {
		switch nyct.Direction {
		case 1:
			return 1, true
		case 3:
			return 3, true
		default:
			return 0, false
		}
	}
	stus := update.GetStopTimeUpdate()
	if len(stus) == 0 {
		return 0, false
	}
	return transitid.SubwayDirectionFromSuffix(stus[0].GetStopId())
}

// subwayStartTime prefers the feed's explicit start_time; when absent, it
// recovers the origin time encoded in the leading digits of the trip id
// (e.g. "097550_1..S03R" -> 97550 -> 16:15:30). ParseOriginTime already
// divides by 100 internally, so the raw digit prefix is passed through
// undivided.
func subwayStartTime(desc *gtfsproto.TripDescriptor, mtaID string) (time.Duration, bool) {
	if st := desc.GetStartTime(); st != "" {
		t, err := time.Parse("15:04:05", st)
		if err != nil {
			return 0, false
		}
		return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second, true
	}

	prefix, _, ok := strings.Cut(mtaID, "_")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(prefix)
	if err != nil {
		return 0, false
	}
	return triptime.ParseOriginTime(n), true
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
