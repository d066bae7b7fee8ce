package transitid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsFakeStop(t *testing.T) {
	assert.True(t, IsFakeStop("F17"))
	assert.True(t, IsFakeStop("S0M"))
	assert.False(t, IsFakeStop("127"))
	assert.False(t, IsFakeStop(""))
}

func TestStripSubwayDirectionSuffix(t *testing.T) {
	assert.Equal(t, "127", StripSubwayDirectionSuffix("127N"))
	assert.Equal(t, "R16", StripSubwayDirectionSuffix("R16S"))
	assert.Equal(t, "1", StripSubwayDirectionSuffix("1"))
	assert.Equal(t, "", StripSubwayDirectionSuffix(""))
}

func TestSubwayDirectionFromSuffix(t *testing.T) {
	d, ok := SubwayDirectionFromSuffix("127N")
	assert.True(t, ok)
	assert.Equal(t, int16(1), d)

	d, ok = SubwayDirectionFromSuffix("127S")
	assert.True(t, ok)
	assert.Equal(t, int16(3), d)

	_, ok = SubwayDirectionFromSuffix("127")
	assert.False(t, ok)

	_, ok = SubwayDirectionFromSuffix("")
	assert.False(t, ok)
}

func TestParseSubwayRouteID(t *testing.T) {
	assert.Equal(t, "SI", ParseSubwayRouteID("SS"))
	assert.Equal(t, "A", ParseSubwayRouteID("A"))
	assert.Equal(t, "GS", ParseSubwayRouteID("GS"))
}

func TestStripAgencyPrefix(t *testing.T) {
	assert.Equal(t, "1234", StripAgencyPrefix("MTA NYCT_1234"))
	assert.Equal(t, "B6", StripAgencyPrefix("MTABC_B6"))
	assert.Equal(t, "noprefix", StripAgencyPrefix("noprefix"))
	assert.Equal(t, "", StripAgencyPrefix(""))
}
