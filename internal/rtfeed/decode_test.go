package rtfeed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/protobuf/proto"

	gtfsproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
)

func tripUpdateEntity(tripID string, sr gtfsproto.TripDescriptor_ScheduleRelationship, stopUpdates ...*gtfsproto.TripUpdate_StopTimeUpdate) *gtfsproto.FeedEntity {
	return &gtfsproto.FeedEntity{
		Id: proto.String("e-" + tripID),
		TripUpdate: &gtfsproto.TripUpdate{
			Trip: &gtfsproto.TripDescriptor{
				TripId:               proto.String(tripID),
				ScheduleRelationship: sr.Enum(),
			},
			StopTimeUpdate: stopUpdates,
		},
	}
}

func TestCanceledTrips(t *testing.T) {
	feeds := []*gtfsproto.FeedMessage{
		{
			Entity: []*gtfsproto.FeedEntity{
				tripUpdateEntity("trip-a", gtfsproto.TripDescriptor_SCHEDULED),
				tripUpdateEntity("trip-b", gtfsproto.TripDescriptor_CANCELED),
				{Id: proto.String("alert-only"), Alert: &gtfsproto.Alert{}},
			},
		},
		{
			Entity: []*gtfsproto.FeedEntity{
				tripUpdateEntity("trip-c", gtfsproto.TripDescriptor_CANCELED),
			},
		},
	}

	canceled := CanceledTrips(feeds)
	assert.Len(t, canceled, 2)
	assert.True(t, canceled["trip-b"])
	assert.True(t, canceled["trip-c"])
	assert.False(t, canceled["trip-a"])
}

func TestCanceledTripsEmpty(t *testing.T) {
	canceled := CanceledTrips(nil)
	assert.Empty(t, canceled)
}

func TestSkippedStops(t *testing.T) {
	skippedUpdate := &gtfsproto.TripUpdate_StopTimeUpdate{
		StopId:               proto.String("101N"),
		ScheduleRelationship: gtfsproto.TripUpdate_StopTimeUpdate_SKIPPED.Enum(),
	}
	scheduledUpdate := &gtfsproto.TripUpdate_StopTimeUpdate{
		StopId:               proto.String("102N"),
		ScheduleRelationship: gtfsproto.TripUpdate_StopTimeUpdate_SCHEDULED.Enum(),
	}

	feeds := []*gtfsproto.FeedMessage{
		{
			Entity: []*gtfsproto.FeedEntity{
				tripUpdateEntity("trip-a", gtfsproto.TripDescriptor_SCHEDULED, skippedUpdate, scheduledUpdate),
			},
		},
	}

	skipped := SkippedStops(feeds)
	assert.Len(t, skipped, 1)
	assert.True(t, skipped["trip-a"]["101N"])
	assert.False(t, skipped["trip-a"]["102N"])
}

func TestSkippedStopsNoneMarked(t *testing.T) {
	feeds := []*gtfsproto.FeedMessage{
		{
			Entity: []*gtfsproto.FeedEntity{
				tripUpdateEntity("trip-a", gtfsproto.TripDescriptor_SCHEDULED),
			},
		},
	}
	assert.Empty(t, SkippedStops(feeds))
}
