package mtasubway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/trainstatus/ingest/internal/downloader"
	"github.com/trainstatus/ingest/internal/transitid"
	"github.com/trainstatus/ingest/model"
)

// stopsForRouteURL and nearbyURL are undocumented MTA internal endpoints
// (not part of the published GTFS static feed) that carry station metadata
// the GTFS zip doesn't: ADA accessibility, rider notes, borough, per-route
// stop type, and directional headsigns.
const (
	stopsForRouteURL = "https://collector-otp-prod.camsys-apps.com/schedule/MTASBWY/stopsForRoute"
	stopsForRouteKey = "qeqy84JE7hUKfaI0Lxm2Ttcm6ZA0bYrP"
	nearbyURL         = "https://otp-mta-prod.camsys-apps.com/otp/routers/default/nearby"
	nearbyKey         = "Z276E3rCeTzOQEoBPPN4JCEc6GfvdnYE"
)

// stationResponse is one row of the stopsForRoute response: a (route, stop)
// pair carrying the stop's rider-facing metadata.
type stationResponse struct {
	RouteID      string `json:"routeId"`
	StopSequence string `json:"stopSequence"`
	StopID       string `json:"stopId"`
	StopName     string `json:"stopName"`
	// 0 = full time, 1 = part time, 2 = late night, 3 = rush hour,
	// 4 = rush hour one direction, 5 = weekday only, 6 = nights/weekends only
	StopType string `json:"stopType"`
	ADA      string `json:"ada"`
	Notes    string `json:"notes"`
	Borough  string `json:"borough"`
}

type nearbyStation struct {
	Groups []nearbyGroup `json:"groups"`
	Stop   nearbyStop    `json:"stop"`
}

type nearbyGroup struct {
	Headsign string        `json:"headsign"`
	Times    []stationTime `json:"times"`
}

type nearbyStop struct {
	ID  string  `json:"id"`
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type stationTime struct {
	StopID string `json:"stopId"`
}

// stripMTASBWYPrefix removes the "MTASBWY:" agency prefix these two
// endpoints put on every route/stop id they return.
func stripMTASBWYPrefix(id string) string {
	_, rest, ok := strings.Cut(id, ":")
	if !ok {
		return id
	}
	return rest
}

// stationMetadata fetches stopsForRoute for every route and returns every
// (route, stop) row sorted by stop id, fake stops already filtered; a stop
// served by several routes appears once per route.
func stationMetadata(ctx context.Context, routeIDs []string) ([]stationResponse, error) {
	var all []stationResponse
	for _, routeID := range routeIDs {
		q := url.Values{}
		q.Set("apikey", stopsForRouteKey)
		q.Set("routeId", "MTASBWY:"+routeID)
		body, err := downloader.HTTPGet(ctx, stopsForRouteURL+"?"+q.Encode(), nil, downloader.GetOptions{Timeout: 30 * time.Second})
		if err != nil {
			return nil, fmt.Errorf("fetching stopsForRoute for %s: %w", routeID, err)
		}
		var rows []stationResponse
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, fmt.Errorf("decoding stopsForRoute for %s: %w", routeID, err)
		}
		for _, r := range rows {
			r.RouteID = stripMTASBWYPrefix(r.RouteID)
			r.StopID = stripMTASBWYPrefix(r.StopID)
			if transitid.IsFakeStop(r.StopID) {
				continue
			}
			all = append(all, r)
		}
	}

	sort.Slice(all, func(i, j int) bool { return all[i].StopID < all[j].StopID })
	return all, nil
}

// nearbyHeadsigns fetches the nearby endpoint for every stop id known from
// stationMetadata and returns, per stop id, the nearby station record;
// headsigns derives the north/south headsigns from it.
func nearbyHeadsigns(ctx context.Context, stopIDs []string) (map[string]nearbyStation, error) {
	if len(stopIDs) == 0 {
		return nil, nil
	}
	prefixed := make([]string, len(stopIDs))
	for i, id := range stopIDs {
		prefixed[i] = "MTASBWY:" + id
	}

	q := url.Values{}
	q.Set("apikey", nearbyKey)
	q.Set("stops", strings.Join(prefixed, ","))
	body, err := downloader.HTTPGet(ctx, nearbyURL+"?"+q.Encode(), nil, downloader.GetOptions{Timeout: 30 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("fetching nearby stations: %w", err)
	}

	var stations []nearbyStation
	if err := json.Unmarshal(body, &stations); err != nil {
		return nil, fmt.Errorf("decoding nearby stations: %w", err)
	}

	out := make(map[string]nearbyStation, len(stations))
	for _, s := range stations {
		s.Stop.ID = stripMTASBWYPrefix(s.Stop.ID)
		out[s.Stop.ID] = s
	}
	return out, nil
}

func headsigns(station nearbyStation) (north, south *string) {
	for _, g := range station.Groups {
		for _, t := range g.Times {
			if north == nil && strings.HasSuffix(t.StopID, "N") {
				h := g.Headsign
				north = &h
			}
			if south == nil && strings.HasSuffix(t.StopID, "S") {
				h := g.Headsign
				south = &h
			}
		}
	}
	return north, south
}

func parseStopType(raw string) model.StopType {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return model.StopTypeUnknown
	}
	switch n {
	case 0:
		return model.StopTypeFullTime
	case 1:
		return model.StopTypePartTime
	case 2:
		return model.StopTypeLateNight
	case 3:
		return model.StopTypeRushHour
	case 4:
		return model.StopTypeRushHourOneDirection
	case 5:
		return model.StopTypeWeekdayOnly
	case 6:
		return model.StopTypeNightsWeekendsOnly
	default:
		return model.StopTypeUnknown
	}
}

// parseADA maps stopsForRoute's ada field: "1" full ADA, "2" ADA for one
// direction only (still accessible), "0" not accessible.
func parseADA(raw string) bool {
	return raw == "1" || raw == "2"
}

func parseBorough(raw string) model.Borough {
	switch raw {
	case "Manhattan":
		return model.BoroughManhattan
	case "Brooklyn":
		return model.BoroughBrooklyn
	case "Queens":
		return model.BoroughQueens
	case "Bronx":
		return model.BoroughBronx
	case "Staten Island":
		return model.BoroughStatenIsland
	default:
		return model.BoroughUnknown
	}
}
