package triptime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseOriginTimeBoundaryValues(t *testing.T) {
	cases := []struct {
		name       string
		originTime int
		want       time.Duration
	}{
		{"21150 -> 03:31:30", 21150, 3*time.Hour + 31*time.Minute + 30*time.Second},
		{"negative wraps from end of day", -200, 23*time.Hour + 58*time.Minute},
		{"past midnight wraps forward", 145000, 10 * time.Minute},
		{"exactly one day normalizes to midnight", 144000, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, ParseOriginTime(c.originTime))
		})
	}
}

func TestCreatedAtOrdinaryDay(t *testing.T) {
	date := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	got, ok := CreatedAt(date, 9*time.Hour+30*time.Minute)
	assert.True(t, ok)
	assert.Equal(t, "2025-02-01T14:30:00Z", got.UTC().Format(time.RFC3339))
}

func TestCreatedAtFallBackFoldChoosesEarliestInstant(t *testing.T) {
	// 2025-11-02 01:30 America/New_York occurs twice (clocks fall back at
	// 2am EDT -> 1am EST). The earlier (EDT, UTC-4) instant must win.
	date := time.Date(2025, 11, 2, 0, 0, 0, 0, time.UTC)
	got, ok := CreatedAt(date, 1*time.Hour+30*time.Minute)
	assert.True(t, ok)
	assert.Equal(t, "2025-11-02T05:30:00Z", got.UTC().Format(time.RFC3339))
}

func TestCreatedAtSpringForwardGapIsRejected(t *testing.T) {
	// 2025-03-09 02:30 America/New_York never occurs (clocks spring
	// forward from 2am to 3am EDT).
	date := time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)
	_, ok := CreatedAt(date, 2*time.Hour+30*time.Minute)
	assert.False(t, ok)
}
