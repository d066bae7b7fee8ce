package mtabus

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/trainstatus/ingest/internal/geo"
	"github.com/trainstatus/ingest/internal/transitid"
	"github.com/trainstatus/ingest/model"
	"github.com/trainstatus/ingest/source"
	"github.com/trainstatus/ingest/store"
)

const obaBaseURL = "https://bustime.mta.info"

var staticAgencies = []string{"MTA NYCT", "MTABC"}

// Static implements control.Static for the bus network: imports routes and
// stops from OBA's routes-for-agency and stops-for-route JSON endpoints.
// Buses carry no transfer data in the API, so transfers are never written
// for this source.
type Static struct {
	Client *http.Client
	APIKey string
}

func (Static) Source() source.Source           { return source.MtaBus }
func (Static) RefreshInterval() time.Duration { return 72 * time.Hour }

func (s Static) Import(ctx context.Context, routes *store.RouteStore, stops *store.StopStore) error {
	agencyRoutes, err := s.fetchAllRoutes(ctx)
	if err != nil {
		return fmt.Errorf("fetching bus routes: %w", err)
	}

	var modelRoutes []model.Route
	var modelStops []model.Stop
	var modelRouteStops []model.RouteStop
	seenStops := map[string]bool{}
	seenRouteStops := map[string]bool{}

	for _, r := range agencyRoutes {
		routeStopsResp, err := s.fetchRouteStops(ctx, r.ID)
		if err != nil {
			continue
		}

		routeID := transitid.StripAgencyPrefix(r.ID)
		color := r.Color
		if color == "" {
			color = "FFFFFF"
		}
		modelRoutes = append(modelRoutes, model.Route{
			ID:        routeID,
			Source:    source.MtaBus,
			LongName:  r.LongName,
			ShortName: r.ShortName,
			Color:     "#" + color,
			Data:      model.MtaBusRouteData{Shuttle: r.Type == 711},
		})

		for _, bs := range routeStopsResp.References.Stops {
			if seenStops[bs.Code] {
				continue
			}
			seenStops[bs.Code] = true
			modelStops = append(modelStops, model.Stop{
				ID:     bs.Code,
				Source: source.MtaBus,
				Name:   humanizeStopName(bs.Name),
				Geom:   geo.EncodePoint(bs.Lon, bs.Lat),
				Data:   model.MtaBusStopData{Direction: parseCompassDirection(bs.Direction)},
			})
		}

		if len(routeStopsResp.Entry.StopGroupings) == 0 {
			continue
		}
		for _, group := range routeStopsResp.Entry.StopGroupings[0].StopGroups {
			for seq, rawStopID := range group.StopIDs {
				stopID := transitid.StripAgencyPrefix(rawStopID)
				key := routeID + "|" + stopID
				if seenRouteStops[key] {
					continue
				}
				seenRouteStops[key] = true
				modelRouteStops = append(modelRouteStops, model.RouteStop{
					RouteID:      routeID,
					Source:       source.MtaBus,
					StopID:       stopID,
					StopSequence: int16(seq),
					Data: model.MtaBusRouteStopData{
						Headsign:  group.Name.Name,
						Direction: parseGroupDirection(group.ID),
					},
				})
			}
		}
	}

	sort.Slice(modelStops, func(i, j int) bool { return modelStops[i].ID < modelStops[j].ID })

	if err := routes.SaveAll(ctx, source.MtaBus, modelRoutes); err != nil {
		return fmt.Errorf("saving bus routes: %w", err)
	}
	if err := stops.SaveAll(ctx, source.MtaBus, modelStops); err != nil {
		return fmt.Errorf("saving bus stops: %w", err)
	}
	if err := stops.SaveAllRouteStops(ctx, source.MtaBus, modelRouteStops); err != nil {
		return fmt.Errorf("saving bus route_stops: %w", err)
	}
	return nil
}

type agencyRoute struct {
	Color     string `json:"color"`
	ID        string `json:"id"`
	LongName  string `json:"longName"`
	ShortName string `json:"shortName"`
	Type      int    `json:"type"`
}

type routesForAgencyResponse struct {
	Data struct {
		List []agencyRoute `json:"list"`
	} `json:"data"`
}

func (s Static) fetchAllRoutes(ctx context.Context) ([]agencyRoute, error) {
	var all []agencyRoute
	for _, agency := range staticAgencies {
		u := fmt.Sprintf("%s/api/where/routes-for-agency/%s.json", obaBaseURL, url.PathEscape(agency))
		var resp routesForAgencyResponse
		if err := s.getJSON(ctx, u, nil, &resp); err != nil {
			return nil, fmt.Errorf("fetching routes for agency %s: %w", agency, err)
		}
		all = append(all, resp.Data.List...)
	}
	return all, nil
}

type busStop struct {
	Code      string `json:"code"`
	Direction string `json:"direction"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Name      string `json:"name"`
}

type stopGroupName struct {
	Name string `json:"name"`
}

type stopGroup struct {
	ID      string        `json:"id"`
	Name    stopGroupName `json:"name"`
	StopIDs []string      `json:"stopIds"`
}

type stopGrouping struct {
	StopGroups []stopGroup `json:"stopGroups"`
}

type routeStopsResponse struct {
	Data struct {
		Entry struct {
			StopGroupings []stopGrouping `json:"stopGroupings"`
		} `json:"entry"`
		References struct {
			Stops []busStop `json:"stops"`
		} `json:"references"`
	} `json:"data"`
}

// flattened view matching what Import needs, decoded straight off Data.
type routeStopsEntry struct {
	Entry struct {
		StopGroupings []stopGrouping `json:"stopGroupings"`
	}
	References struct {
		Stops []busStop
	}
}

func (s Static) fetchRouteStops(ctx context.Context, routeID string) (routeStopsEntry, error) {
	u := fmt.Sprintf("%s/api/where/stops-for-route/%s.json", obaBaseURL, url.PathEscape(routeID))
	var resp routeStopsResponse
	if err := s.getJSON(ctx, u, map[string]string{"version": "2"}, &resp); err != nil {
		return routeStopsEntry{}, err
	}
	var out routeStopsEntry
	out.Entry.StopGroupings = resp.Data.Entry.StopGroupings
	out.References.Stops = resp.Data.References.Stops
	return out, nil
}

func (s Static) getJSON(ctx context.Context, endpoint string, extraParams map[string]string, out interface{}) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return err
	}
	q := u.Query()
	q.Set("key", s.APIKey)
	for k, v := range extraParams {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request to %s returned status %d", endpoint, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// humanizeStopName title-cases an OBA stop name, capitalizing the first
// letter after each word boundary (start, space, '/', '-' or '('), e.g.
// "MAIN ST/1 AVE" -> "Main St/1 Ave"; OBA names arrive upper-case and this
// produces a more presentable display form.
func humanizeStopName(name string) string {
	out := []rune(strings.ToLower(name))
	for i, r := range out {
		if i == 0 || unicode.IsSpace(out[i-1]) || out[i-1] == '/' || out[i-1] == '-' || out[i-1] == '(' {
			out[i] = unicode.ToUpper(r)
		}
	}
	return string(out)
}

func parseCompassDirection(dir string) model.CompassDirection {
	switch dir {
	case "N":
		return model.CompassNorth
	case "S":
		return model.CompassSouth
	case "E":
		return model.CompassEast
	case "W":
		return model.CompassWest
	default:
		// NE/NW/SE/SW have no direct representation in this system's
		// 4-point CompassDirection; nearest-axis mapping isn't worth the
		// ambiguity, so diagonals fall back to Unknown.
		return model.CompassUnknown
	}
}

func parseGroupDirection(groupID string) model.CompassDirection {
	n, err := strconv.Atoi(groupID)
	if err != nil {
		return model.CompassUnknown
	}
	if n == 0 {
		return model.CompassNorth
	}
	return model.CompassSouth
}
