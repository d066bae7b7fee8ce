package mtasubway

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trainstatus/ingest/model"
)

func TestStripMTASBWYPrefix(t *testing.T) {
	assert.Equal(t, "127", stripMTASBWYPrefix("MTASBWY:127"))
	assert.Equal(t, "A", stripMTASBWYPrefix("MTASBWY:A"))
	assert.Equal(t, "noColon", stripMTASBWYPrefix("noColon"))
}

func TestParseStopType(t *testing.T) {
	assert.Equal(t, model.StopTypeFullTime, parseStopType("0"))
	assert.Equal(t, model.StopTypeRushHourOneDirection, parseStopType("4"))
	assert.Equal(t, model.StopTypeUnknown, parseStopType("99"))
	assert.Equal(t, model.StopTypeUnknown, parseStopType("not-a-number"))
}

func TestParseADA(t *testing.T) {
	assert.True(t, parseADA("1"))
	assert.True(t, parseADA("2"))
	assert.False(t, parseADA("0"))
	assert.False(t, parseADA(""))
}

func TestParseBorough(t *testing.T) {
	assert.Equal(t, model.BoroughBrooklyn, parseBorough("Brooklyn"))
	assert.Equal(t, model.BoroughStatenIsland, parseBorough("Staten Island"))
	assert.Equal(t, model.BoroughUnknown, parseBorough("Mars"))
}

func TestHeadsignsPicksFirstMatchingGroup(t *testing.T) {
	station := nearbyStation{
		Groups: []nearbyGroup{
			{Headsign: "Uptown", Times: []stationTime{{StopID: "127N"}}},
			{Headsign: "Downtown", Times: []stationTime{{StopID: "127S"}}},
		},
	}
	north, south := headsigns(station)
	assert.Equal(t, "Uptown", *north)
	assert.Equal(t, "Downtown", *south)
}

func TestHeadsignsMissingDirectionIsNil(t *testing.T) {
	station := nearbyStation{
		Groups: []nearbyGroup{
			{Headsign: "Uptown", Times: []stationTime{{StopID: "127N"}}},
		},
	}
	north, south := headsigns(station)
	assert.NotNil(t, north)
	assert.Nil(t, south)
}
