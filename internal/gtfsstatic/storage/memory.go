package storage

import (
	"fmt"

	"github.com/trainstatus/ingest/internal/gtfsstatic"
)

// MemoryStorage is a dependency-free Storage backend used only by
// internal/gtfsstatic/parse's unit tests, which exercise CSV-parsing
// behavior and don't need a real database underneath a FeedWriter/FeedReader
// pair.
type MemoryStorage struct {
	feeds map[string]*memoryFeed
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{feeds: map[string]*memoryFeed{}}
}

func (s *MemoryStorage) ListFeeds(filter ListFeedsFilter) ([]*FeedMetadata, error) {
	return nil, fmt.Errorf("memory storage: ListFeeds not supported")
}

func (s *MemoryStorage) WriteFeedMetadata(metadata *FeedMetadata) error {
	return nil
}

func (s *MemoryStorage) ListFeedRequests(url string) ([]FeedRequest, error) {
	return nil, fmt.Errorf("memory storage: ListFeedRequests not supported")
}

func (s *MemoryStorage) WriteFeedRequest(req FeedRequest) error {
	return nil
}

func (s *MemoryStorage) GetReader(hash string) (FeedReader, error) {
	f, ok := s.feeds[hash]
	if !ok {
		return nil, fmt.Errorf("memory storage: no feed %q", hash)
	}
	return f, nil
}

func (s *MemoryStorage) GetWriter(hash string) (FeedWriter, error) {
	f := &memoryFeed{}
	s.feeds[hash] = f
	return f, nil
}

// memoryFeed implements both FeedWriter and FeedReader by collecting
// everything into slices.
type memoryFeed struct {
	agencies      []gtfsstatic.Agency
	stops         []gtfsstatic.Stop
	routes        []gtfsstatic.Route
	trips         []gtfsstatic.Trip
	stopTimes     []gtfsstatic.StopTime
	calendars     []gtfsstatic.Calendar
	calendarDates []gtfsstatic.CalendarDate
}

func (f *memoryFeed) WriteAgency(agency gtfsstatic.Agency) error {
	f.agencies = append(f.agencies, agency)
	return nil
}

func (f *memoryFeed) WriteStop(stop gtfsstatic.Stop) error {
	f.stops = append(f.stops, stop)
	return nil
}

func (f *memoryFeed) WriteRoute(route gtfsstatic.Route) error {
	f.routes = append(f.routes, route)
	return nil
}

func (f *memoryFeed) WriteTrip(trip gtfsstatic.Trip) error {
	f.trips = append(f.trips, trip)
	return nil
}

func (f *memoryFeed) BeginTrips() error { return nil }
func (f *memoryFeed) EndTrips() error   { return nil }

func (f *memoryFeed) WriteCalendar(cal gtfsstatic.Calendar) error {
	f.calendars = append(f.calendars, cal)
	return nil
}

func (f *memoryFeed) WriteCalendarDate(caldate gtfsstatic.CalendarDate) error {
	f.calendarDates = append(f.calendarDates, caldate)
	return nil
}

func (f *memoryFeed) WriteStopTime(stopTime gtfsstatic.StopTime) error {
	f.stopTimes = append(f.stopTimes, stopTime)
	return nil
}

func (f *memoryFeed) BeginStopTimes() error { return nil }
func (f *memoryFeed) EndStopTimes() error   { return nil }
func (f *memoryFeed) Close() error          { return nil }

func (f *memoryFeed) Agencies() ([]gtfsstatic.Agency, error)    { return f.agencies, nil }
func (f *memoryFeed) Stops() ([]gtfsstatic.Stop, error)         { return f.stops, nil }
func (f *memoryFeed) Routes() ([]gtfsstatic.Route, error)       { return f.routes, nil }
func (f *memoryFeed) Trips() ([]gtfsstatic.Trip, error)         { return f.trips, nil }
func (f *memoryFeed) StopTimes() ([]gtfsstatic.StopTime, error) { return f.stopTimes, nil }
func (f *memoryFeed) Calendars() ([]gtfsstatic.Calendar, error) { return f.calendars, nil }
func (f *memoryFeed) CalendarDates() ([]gtfsstatic.CalendarDate, error) {
	return f.calendarDates, nil
}

func (f *memoryFeed) ActiveServices(date string) ([]string, error) {
	return nil, fmt.Errorf("memory storage: ActiveServices not supported")
}

func (f *memoryFeed) MinMaxStopSeq() (map[string][2]uint32, error) {
	return nil, fmt.Errorf("memory storage: MinMaxStopSeq not supported")
}

func (f *memoryFeed) StopTimeEvents(filter StopTimeEventFilter) ([]*StopTimeEvent, error) {
	return nil, fmt.Errorf("memory storage: StopTimeEvents not supported")
}

func (f *memoryFeed) RouteDirections(stopID string) ([]gtfsstatic.RouteDirection, error) {
	return nil, fmt.Errorf("memory storage: RouteDirections not supported")
}

func (f *memoryFeed) NearbyStops(lat, lng float64, limit int, routeTypes []gtfsstatic.RouteType) ([]gtfsstatic.Stop, error) {
	return nil, fmt.Errorf("memory storage: NearbyStops not supported")
}
