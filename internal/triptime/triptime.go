// Package triptime implements the deterministic time arithmetic that trip
// identity depends on: converting a feed's local start date/time into the
// UTC created_at instant, and recovering a start time from an MTA-style
// origin-time encoding when the feed omits start_time outright.
//
// Grounded on original_source/backend/src/models/trip.rs (Trip::created_at)
// and sources/mta_subway/realtime.rs (parse_origin_time).
package triptime

import (
	"time"
)

// americaNewYork is loaded once; a missing tzdata is a boot-time fatal error
// for this process, not a per-call concern.
var americaNewYork = func() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		panic("triptime: America/New_York timezone data unavailable: " + err.Error())
	}
	return loc
}()

// CreatedAt computes the deterministic UTC instant for a trip's scheduled
// local start. It is a pure function of (date, timeOfDay): reprocessing the
// same feed must yield the identical instant so upserts match on it.
//
// On an ambiguous local time (the "fall back" DST transition, when a local
// clock reading occurs twice), the EARLIEST of the two instants is chosen,
// matching the original implementation's documented (if uncertain) choice.
// On a local time that never occurs (the "spring forward" gap), ok is false.
func CreatedAt(date time.Time, timeOfDay time.Duration) (t time.Time, ok bool) {
	y, m, d := date.Date()
	h := int(timeOfDay / time.Hour)
	min := int((timeOfDay % time.Hour) / time.Minute)
	s := int((timeOfDay % time.Minute) / time.Second)

	wallMatches := func(candidate time.Time) bool {
		loc := candidate.In(americaNewYork)
		ly, lm, ld := loc.Date()
		return ly == y && lm == m && ld == d && loc.Hour() == h && loc.Minute() == min && loc.Second() == s
	}

	// Probe the offsets in effect a day on either side of the requested
	// wall-clock reading; these are unambiguous and bracket any DST
	// transition that could make today's reading ambiguous (fold) or
	// nonexistent (gap).
	naiveUTC := time.Date(y, m, d, h, min, s, 0, time.UTC)
	_, offBefore := naiveUTC.AddDate(0, 0, -1).In(americaNewYork).Zone()
	_, offAfter := naiveUTC.AddDate(0, 0, 1).In(americaNewYork).Zone()

	before := time.Date(y, m, d, h, min, s, 0, time.FixedZone("", offBefore))
	after := time.Date(y, m, d, h, min, s, 0, time.FixedZone("", offAfter))

	beforeOK := wallMatches(before)
	afterOK := wallMatches(after)

	switch {
	case beforeOK && afterOK && !before.Equal(after):
		// Ambiguous (fold): two instants map to the same local reading.
		// Choose the earliest, per Trip::created_at's documented choice.
		if before.Before(after) {
			return before.UTC(), true
		}
		return after.UTC(), true
	case beforeOK:
		return before.UTC(), true
	case afterOK:
		return after.UTC(), true
	default:
		// Neither offset reproduces the requested wall clock: a
		// spring-forward gap. No such instant exists.
		return time.Time{}, false
	}
}

const secondsPerDay = 24 * 60 * 60

// euclideanMod returns a non-negative remainder, unlike Go's %.
func euclideanMod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// ParseOriginTime parses the MTA's origin-time encoding (hundredths of a
// minute since midnight, e.g. the digits before the first '_' in a subway
// trip id divided by 100) into a wall-clock time-of-day. It is total and
// periodic with period 144,000 (24h expressed in the same units): any int
// normalizes into [00:00:00, 23:59:59] via Euclidean modulo.
func ParseOriginTime(originTime int) time.Duration {
	minutes := float64(originTime) / 100.0
	totalSeconds := int64(minutes * 60.0)
	normalized := euclideanMod(totalSeconds, secondsPerDay)
	return time.Duration(normalized) * time.Second
}
