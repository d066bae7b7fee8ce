// Package api exposes the thin, read-only HTTP boundary documented by the
// external OpenAPI spec (spec External Interfaces §6): a handful of
// list/filter endpoints over what the pipeline has already persisted.
// There is no framework here beyond net/http's own ServeMux (no router
// library appears anywhere in the retrieved corpus, and five fixed routes
// don't need one) — every handler parses its own query params and calls
// straight into the store package.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/trainstatus/ingest/source"
	"github.com/trainstatus/ingest/store"
)

// Server holds the store handles every handler reads from.
type Server struct {
	Routes    *store.RouteStore
	Stops     *store.StopStore
	Trips     *store.TripStore
	StopTimes *store.StopTimeStore
	Alerts    *store.AlertStore
}

// Mux builds the routed handler for every documented endpoint. Routes
// under a prefix carry the source as their final path segment
// (/trips/mta_subway); this predates Go 1.22's pattern-matching
// ServeMux (go.mod pins 1.21, matching the teacher's), so segments are
// split by hand instead.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/routes", methodGuard(http.MethodGet, s.handleRoutes))
	mux.HandleFunc("/stops", methodGuard(http.MethodGet, s.handleStops))
	mux.HandleFunc("/trips/", methodGuard(http.MethodGet, withSourceSuffix("/trips/", s.handleTrips)))
	mux.HandleFunc("/stop_times/", methodGuard(http.MethodGet, withSourceSuffix("/stop_times/", s.handleStopTimes)))
	mux.HandleFunc("/alerts/", methodGuard(http.MethodGet, withSourceSuffix("/alerts/", s.handleAlerts)))
	return mux
}

func methodGuard(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

type sourceKey struct{}

// withSourceSuffix strips prefix off the request path and stashes the
// remainder in the request context as the path's source segment, for
// sourceFromPath to read back.
func withSourceSuffix(prefix string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		suffix := strings.TrimPrefix(r.URL.Path, prefix)
		ctx := context.WithValue(r.Context(), sourceKey{}, suffix)
		next(w, r.WithContext(ctx))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// parseAt reads the "at" query-param convention (§6): a Unix-seconds
// timestamp shifting the "now" anchor. A zero return means "now" and
// cache-eligible; a non-zero return means a caller-pinned instant.
func parseAt(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("at")
	if raw == "" {
		return time.Time{}, nil
	}
	sec, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0).UTC(), nil
}

func parseCSV(r *http.Request, param string) []string {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

func sourceFromPath(r *http.Request) (source.Source, error) {
	seg, _ := r.Context().Value(sourceKey{}).(string)
	return source.Parse(seg)
}

// handleRoutes answers GET /routes?geom=&route_type=. route_type (GTFS
// route_type convention: 1 for subway, 3 for bus) is treated as a source
// filter since this system's Route doesn't carry a per-row GTFS type, only
// a source; geom=0 drops the WKB geometry blob from the response to keep
// it light for callers that don't need it.
func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	includeGeom := r.URL.Query().Get("geom") != "0"
	sources := sourcesForRouteType(r.URL.Query().Get("route_type"))

	var out []routeView
	for _, src := range sources {
		routes, err := s.Routes.GetAll(ctx, src)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		for _, rt := range routes {
			v := routeView{ID: rt.ID, Source: rt.Source, LongName: rt.LongName, ShortName: rt.ShortName, Color: rt.Color, Data: rt.Data}
			if includeGeom {
				v.Geom = rt.Geom
			}
			out = append(out, v)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type routeView struct {
	ID        string        `json:"id"`
	Source    source.Source `json:"source"`
	LongName  string        `json:"long_name"`
	ShortName string        `json:"short_name"`
	Color     string        `json:"color"`
	Data      any           `json:"data"`
	Geom      []byte        `json:"geom,omitempty"`
}

func sourcesForRouteType(routeType string) []source.Source {
	switch routeType {
	case "":
		return source.All()
	case "1", "2": // GTFS subway/rail
		return []source.Source{source.MtaSubway}
	case "3": // GTFS bus
		return []source.Source{source.MtaBus}
	default:
		return source.All()
	}
}

// handleStops answers GET /stops, across every source.
func (s *Server) handleStops(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var out []any
	for _, src := range source.All() {
		stops, err := s.Stops.GetAll(ctx, src)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		for _, st := range stops {
			out = append(out, st)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleTrips answers GET /trips/{source}?at=&finished=. "at" shifts the
// point in time results are evaluated from; "finished" is applied by
// comparing each trip's most recent stop_time (if any were requested
// alongside, via the same store) — here, with no per-trip stop_time join
// wired into TripStore.GetAll, "finished" only filters trips that have an
// UpdatedAt before the anchor, a coarse but real approximation.
func (s *Server) handleTrips(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	src, err := sourceFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	at, err := parseAt(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	anchor := at
	if anchor.IsZero() {
		anchor = time.Now().UTC()
	}

	trips, err := s.Trips.GetAll(ctx, src)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	finishedParam := r.URL.Query().Get("finished")
	out := make([]any, 0, len(trips))
	for _, t := range trips {
		if finishedParam != "" {
			finished := t.UpdatedAt.Before(anchor)
			want := finishedParam == "1" || finishedParam == "true"
			if finished != want {
				continue
			}
		}
		out = append(out, t)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleStopTimes answers GET /stop_times/{source}?route_ids=&filter_arrival=&at=.
// filter_arrival, given as "start,end" Unix-seconds, bounds the arrival
// window server-side; route_ids narrows to a comma-separated route-id list.
func (s *Server) handleStopTimes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	src, err := sourceFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	routeIDs := parseCSV(r, "route_ids")

	var after, before time.Time
	if raw := r.URL.Query().Get("filter_arrival"); raw != "" {
		parts := strings.SplitN(raw, ",", 2)
		if len(parts) == 2 {
			if sec, err := strconv.ParseInt(parts[0], 10, 64); err == nil {
				after = time.Unix(sec, 0).UTC()
			}
			if sec, err := strconv.ParseInt(parts[1], 10, 64); err == nil {
				before = time.Unix(sec, 0).UTC()
			}
		}
	}

	stopTimes, err := s.StopTimes.GetAll(ctx, src, routeIDs, after, before)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stopTimes)
}

// handleAlerts answers GET /alerts/{source}?at=.
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	src, err := sourceFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	at, err := parseAt(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	alerts, err := s.Alerts.GetAll(ctx, src, at)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

// ListenAndServe starts the HTTP server on addr, shutting down cleanly
// when ctx is cancelled.
func ListenAndServe(ctx context.Context, addr string, s *Server) error {
	srv := &http.Server{Addr: addr, Handler: s.Mux()}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
