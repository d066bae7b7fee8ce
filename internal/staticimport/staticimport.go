// Package staticimport adapts the teacher's GTFS static CSV parser
// (internal/gtfsstatic/parse) — originally aimed at a schedule/departure-
// board store — onto this system's route/stop/route_stop static model. It
// implements storage.FeedWriter by collecting rows in memory instead of
// writing them to a schedule database, then derives one canonical
// stop-sequence per (route, direction) from the busiest trip pattern seen.
//
// Grounded on internal/gtfsstatic/parse/parse.go (ParseStatic) and
// internal/gtfsstatic/storage/postgres.go (the teacher's own FeedWriter
// implementation, for the shape of a writer over these same parse calls).
package staticimport

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/spkg/bom"

	"github.com/trainstatus/ingest/internal/gtfsstatic"
	"github.com/trainstatus/ingest/internal/gtfsstatic/parse"
	"github.com/trainstatus/ingest/internal/gtfsstatic/storage"
)

// Collector gathers every row ParseStatic hands it. Calendar/calendar_dates
// are irrelevant to this system's static model (schedule storage is out of
// scope, see SPEC_FULL.md) and are dropped on the floor.
type Collector struct {
	Agencies  []gtfsstatic.Agency
	Routes    []gtfsstatic.Route
	Stops     []gtfsstatic.Stop
	trips     map[string]gtfsstatic.Trip
	stopTimes map[string][]gtfsstatic.StopTime
}

func NewCollector() *Collector {
	return &Collector{
		trips:     map[string]gtfsstatic.Trip{},
		stopTimes: map[string][]gtfsstatic.StopTime{},
	}
}

func (c *Collector) WriteAgency(a gtfsstatic.Agency) error { c.Agencies = append(c.Agencies, a); return nil }
func (c *Collector) WriteRoute(r gtfsstatic.Route) error   { c.Routes = append(c.Routes, r); return nil }
func (c *Collector) WriteStop(s gtfsstatic.Stop) error     { c.Stops = append(c.Stops, s); return nil }

func (c *Collector) WriteTrip(t gtfsstatic.Trip) error {
	c.trips[t.ID] = t
	return nil
}
func (c *Collector) BeginTrips() error { return nil }
func (c *Collector) EndTrips() error   { return nil }

func (c *Collector) WriteCalendar(gtfsstatic.Calendar) error         { return nil }
func (c *Collector) WriteCalendarDate(gtfsstatic.CalendarDate) error { return nil }

func (c *Collector) WriteStopTime(st gtfsstatic.StopTime) error {
	c.stopTimes[st.TripID] = append(c.stopTimes[st.TripID], st)
	return nil
}
func (c *Collector) BeginStopTimes() error { return nil }
func (c *Collector) EndStopTimes() error   { return nil }
func (c *Collector) Close() error          { return nil }

var _ storage.FeedWriter = (*Collector)(nil)

// Parse unzips and parses a GTFS static feed into the collector, reusing
// the teacher's CSV parsing untouched.
func Parse(c *Collector, zipBytes []byte) error {
	_, err := parse.ParseStatic(c, zipBytes)
	return err
}

// TransferCSV mirrors the columns of transfers.txt feeding the transfer
// model; GTFS's walk-time/distance metadata plays no role here and is left
// unparsed.
type TransferCSV struct {
	FromStopID      string `csv:"from_stop_id"`
	ToStopID        string `csv:"to_stop_id"`
	TransferType    int16  `csv:"transfer_type"`
	MinTransferTime string `csv:"min_transfer_time"`
}

// ParseTransfers extracts transfers.txt from the same static zip handed to
// Parse. transfers.txt is optional per the GTFS spec — ParseStatic's file
// table (internal/gtfsstatic/parse) never requires it, and not every feed
// carries one — so a missing file returns (nil, nil) rather than an error.
func ParseTransfers(zipBytes []byte) ([]TransferCSV, error) {
	r, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return nil, fmt.Errorf("unzipping: %w", err)
	}

	var rc io.ReadCloser
	for _, f := range r.File {
		path := strings.Split(f.Name, "/")
		if path[len(path)-1] != "transfers.txt" {
			continue
		}
		rc, err = f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening transfers.txt: %w", err)
		}
		break
	}
	if rc == nil {
		return nil, nil
	}
	defer rc.Close()

	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		return gocsv.LazyCSVReader(bom.NewReader(in))
	})

	var rows []*TransferCSV
	if err := gocsv.Unmarshal(rc, &rows); err != nil {
		return nil, fmt.Errorf("unmarshaling transfers csv: %w", err)
	}

	out := make([]TransferCSV, len(rows))
	for i, row := range rows {
		out[i] = *row
	}
	return out, nil
}

// MinTransferSeconds parses min_transfer_time into a pointer, the shape
// model.StopTransfer wants for an optional column; an empty or unparsable
// value yields nil.
func (t TransferCSV) MinTransferSeconds() *int16 {
	if t.MinTransferTime == "" {
		return nil
	}
	n, err := strconv.Atoi(t.MinTransferTime)
	if err != nil {
		return nil
	}
	v := int16(n)
	return &v
}

// RouteStopPattern is one canonical, ordered stop sequence for a route in
// one direction.
type RouteStopPattern struct {
	RouteID   string
	Direction int8
	StopIDs   []string
}

// CanonicalRouteStops picks, for every (route, direction) pair seen across
// all trips, the stop-time sequence from whichever trip visits the most
// stops — a simple proxy for "the full pattern" that avoids needing
// calendar data to pick a single "typical" trip.
func (c *Collector) CanonicalRouteStops() []RouteStopPattern {
	type key struct {
		routeID   string
		direction int8
	}
	best := map[key]string{}   // -> trip id
	bestLen := map[key]int{}

	for tripID, t := range c.trips {
		sts := c.stopTimes[tripID]
		if len(sts) == 0 {
			continue
		}
		k := key{routeID: t.RouteID, direction: t.DirectionID}
		if len(sts) > bestLen[k] {
			bestLen[k] = len(sts)
			best[k] = tripID
		}
	}

	var out []RouteStopPattern
	for k, tripID := range best {
		sts := append([]gtfsstatic.StopTime(nil), c.stopTimes[tripID]...)
		sort.Slice(sts, func(i, j int) bool { return sts[i].StopSequence < sts[j].StopSequence })
		ids := make([]string, len(sts))
		for i, st := range sts {
			ids[i] = st.StopID
		}
		out = append(out, RouteStopPattern{RouteID: k.routeID, Direction: k.direction, StopIDs: ids})
	}
	return out
}
