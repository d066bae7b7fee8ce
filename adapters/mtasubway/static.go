package mtasubway

import (
	"context"
	"fmt"
	"time"

	"github.com/trainstatus/ingest/internal/downloader"
	"github.com/trainstatus/ingest/internal/geo"
	"github.com/trainstatus/ingest/internal/staticimport"
	"github.com/trainstatus/ingest/internal/transitid"
	"github.com/trainstatus/ingest/model"
	"github.com/trainstatus/ingest/source"
	"github.com/trainstatus/ingest/store"
)

const staticFeedURL = "http://web.mta.info/developers/data/nyct/subway/google_transit.zip"

// Static implements control.Static for the subway: imports routes, stops
// and per-route stop patterns from the NYCT GTFS static zip.
type Static struct{}

func (Static) Source() source.Source           { return source.MtaSubway }
func (Static) RefreshInterval() time.Duration { return 24 * time.Hour }

func (Static) Import(ctx context.Context, routes *store.RouteStore, stops *store.StopStore) error {
	zipBytes, err := downloader.HTTPGet(ctx, staticFeedURL, nil, downloader.GetOptions{Timeout: 60 * time.Second})
	if err != nil {
		return fmt.Errorf("downloading subway static feed: %w", err)
	}

	c := staticimport.NewCollector()
	if err := staticimport.Parse(c, zipBytes); err != nil {
		return fmt.Errorf("parsing subway static feed: %w", err)
	}

	var modelRoutes []model.Route
	for _, r := range c.Routes {
		modelRoutes = append(modelRoutes, model.Route{
			ID:        transitid.ParseSubwayRouteID(r.ID),
			Source:    source.MtaSubway,
			LongName:  r.LongName,
			ShortName: r.ShortName,
			Color:     "#" + r.Color,
			Data:      model.MtaSubwayRouteData{},
		})
	}

	var rawRouteIDs []string
	for _, r := range c.Routes {
		rawRouteIDs = append(rawRouteIDs, r.ID)
	}
	stations, err := stationMetadata(ctx, rawRouteIDs)
	if err != nil {
		// The internal stopsForRoute/nearby endpoints are undocumented and
		// occasionally unavailable; degrade to GTFS-only stop/route_stop
		// data rather than failing the whole static import over them.
		stations = nil
	}
	byStopID := map[string]stationResponse{}
	stopTypeByRouteStop := map[[2]string]model.StopType{}
	var stopIDs []string
	for _, st := range stations {
		if _, seen := byStopID[st.StopID]; !seen {
			byStopID[st.StopID] = st
			stopIDs = append(stopIDs, st.StopID)
		}
		stopTypeByRouteStop[[2]string{transitid.ParseSubwayRouteID(st.RouteID), st.StopID}] = parseStopType(st.StopType)
	}
	nearby, err := nearbyHeadsigns(ctx, stopIDs)
	if err != nil {
		nearby = nil
	}

	var modelStops []model.Stop
	for _, s := range c.Stops {
		id := transitid.StripSubwayDirectionSuffix(s.ID)
		if transitid.IsFakeStop(id) {
			continue
		}
		data := model.MtaSubwayStopData{}
		if meta, ok := byStopID[id]; ok {
			data.ADA = parseADA(meta.ADA)
			data.Borough = parseBorough(meta.Borough)
			if meta.Notes != "" {
				notes := meta.Notes
				data.Notes = &notes
			}
		}
		if station, ok := nearby[id]; ok {
			data.NorthHeadsign, data.SouthHeadsign = headsigns(station)
		}
		modelStops = append(modelStops, model.Stop{
			ID:     id,
			Source: source.MtaSubway,
			Name:   s.Name,
			Geom:   geo.EncodePoint(s.Lon, s.Lat),
			Data:   data,
		})
	}

	var routeStops []model.RouteStop
	for _, pattern := range c.CanonicalRouteStops() {
		routeID := transitid.ParseSubwayRouteID(pattern.RouteID)
		for seq, stopID := range pattern.StopIDs {
			stopID = transitid.StripSubwayDirectionSuffix(stopID)
			if transitid.IsFakeStop(stopID) {
				continue
			}
			stopType := stopTypeByRouteStop[[2]string{routeID, stopID}]
			routeStops = append(routeStops, model.RouteStop{
				RouteID:      routeID,
				Source:       source.MtaSubway,
				StopID:       stopID,
				StopSequence: int16(seq),
				Data:         model.MtaSubwayRouteStopData{StopType: stopType},
			})
		}
	}

	transferRows, err := staticimport.ParseTransfers(zipBytes)
	if err != nil {
		return fmt.Errorf("parsing subway transfers feed: %w", err)
	}
	var transfers []model.StopTransfer
	for _, row := range transferRows {
		fromID := transitid.StripSubwayDirectionSuffix(row.FromStopID)
		toID := transitid.StripSubwayDirectionSuffix(row.ToStopID)
		if transitid.IsFakeStop(fromID) || transitid.IsFakeStop(toID) {
			continue
		}
		transfers = append(transfers, model.StopTransfer{
			FromStopID:      fromID,
			FromSource:      source.MtaSubway,
			ToStopID:        toID,
			ToSource:        source.MtaSubway,
			TransferType:    row.TransferType,
			MinTransferTime: row.MinTransferSeconds(),
		})
	}

	if err := routes.SaveAll(ctx, source.MtaSubway, modelRoutes); err != nil {
		return fmt.Errorf("saving subway routes: %w", err)
	}
	if err := stops.SaveAll(ctx, source.MtaSubway, modelStops); err != nil {
		return fmt.Errorf("saving subway stops: %w", err)
	}
	if err := stops.SaveAllRouteStops(ctx, source.MtaSubway, routeStops); err != nil {
		return fmt.Errorf("saving subway route_stops: %w", err)
	}
	if err := stops.SaveAllTransfers(ctx, transfers); err != nil {
		return fmt.Errorf("saving subway transfers: %w", err)
	}
	return nil
}
