package mtasubway

import (
	"testing"
	"time"

	gtfsproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/assert"
	"google.golang.org/protobuf/proto"

	"github.com/trainstatus/ingest/internal/triptime"
)

// TestSubwayStartTimeFromTripIDPrefix exercises the origin-time fallback
// path against the trip id from the "Subway trip origin time parsing"
// scenario: prefix "097550" carries no explicit start_time, so the origin
// time must come from the raw, undivided digit prefix.
func TestSubwayStartTimeFromTripIDPrefix(t *testing.T) {
	desc := &gtfsproto.TripDescriptor{}
	got, ok := subwayStartTime(desc, "097550_1..S03R")
	assert.True(t, ok)
	assert.Equal(t, triptime.ParseOriginTime(97550), got)
	assert.Equal(t, 16*time.Hour+15*time.Minute+30*time.Second, got)
}

func TestSubwayStartTimeCreatedAt(t *testing.T) {
	desc := &gtfsproto.TripDescriptor{}
	start, ok := subwayStartTime(desc, "097550_1..S03R")
	assert.True(t, ok)

	startDate := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	createdAt, ok := triptime.CreatedAt(startDate, start)
	assert.True(t, ok)
	assert.Equal(t, "2025-02-01T21:15:30Z", createdAt.UTC().Format(time.RFC3339))
}

func TestSubwayStartTimePrefersExplicitStartTime(t *testing.T) {
	desc := &gtfsproto.TripDescriptor{StartTime: proto.String("09:50:30")}
	got, ok := subwayStartTime(desc, "098550_1..N03R")
	assert.True(t, ok)
	assert.Equal(t, 9*time.Hour+50*time.Minute+30*time.Second, got)
}

func TestSubwayStartTimeRejectsMalformedPrefix(t *testing.T) {
	desc := &gtfsproto.TripDescriptor{}
	_, ok := subwayStartTime(desc, "notanumber_1..S03R")
	assert.False(t, ok)
}
