// Package transitid implements the small, pure identifier transforms shared
// by the per-source adapters: agency-prefix stripping, subway direction-
// suffix stripping, the fake-stop-id filter, and subway route-id aliasing.
//
// Grounded on original_source/backend/src/models/stop.rs (FAKE_STOP_IDS),
// sources/mta_subway/realtime.rs (parse_route_id, direction parsing) and
// sources/mta_bus/realtime.rs (parse_prefixed_id).
package transitid

import "strings"

// fakeStopIDs is the canonical 28-entry list. An older 27-entry list with
// slightly different contents exists in legacy code (times.rs); this is the
// newer, authoritative set and supersedes it (see DESIGN.md).
var fakeStopIDs = map[string]struct{}{
	"F17": {}, "A62": {}, "Q02": {}, "H19": {}, "H17": {}, "A58": {}, "A29": {},
	"A39": {}, "F10": {}, "H18": {}, "H05": {}, "R60": {}, "D23": {}, "R65": {},
	"M07": {}, "X22": {}, "N12": {}, "R10": {}, "B05": {}, "M17": {}, "R70": {},
	"J18": {}, "G25": {}, "D60": {}, "B24": {}, "S0M": {}, "S12": {}, "S10": {},
}

func IsFakeStop(stopID string) bool {
	_, ok := fakeStopIDs[stopID]
	return ok
}

// StripSubwayDirectionSuffix removes the trailing N/S platform-direction
// letter from a subway stop id ("127N" -> "127"). Stop ids shorter than 2
// runes, or not ending in N or S, are returned unchanged.
func StripSubwayDirectionSuffix(stopID string) string {
	if len(stopID) < 2 {
		return stopID
	}
	switch stopID[len(stopID)-1] {
	case 'N', 'S':
		return stopID[:len(stopID)-1]
	}
	return stopID
}

// SubwayDirectionFromSuffix maps a stop id's trailing platform-direction
// letter to the subway direction encoding (1=north, 3=south). ok is false
// for any other trailing rune.
func SubwayDirectionFromSuffix(stopID string) (direction int16, ok bool) {
	if stopID == "" {
		return 0, false
	}
	switch stopID[len(stopID)-1] {
	case 'N':
		return 1, true
	case 'S':
		return 3, true
	default:
		return 0, false
	}
}

// ParseSubwayRouteID converts the SIR express alias "SS" to "SI"; the
// express variant doesn't appear in static data like other express routes
// do (which instead get their trailing X stripped upstream).
func ParseSubwayRouteID(routeID string) string {
	if routeID == "SS" {
		return "SI"
	}
	return routeID
}

// StripAgencyPrefix strips an upstream "{AGENCY}_{NATURAL}" id down to its
// natural component, splitting on the first underscore. If there is no
// underscore the id is returned unchanged.
func StripAgencyPrefix(id string) string {
	if i := strings.IndexByte(id, '_'); i >= 0 {
		return id[i+1:]
	}
	return id
}
