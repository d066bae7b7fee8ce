package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/trainstatus/ingest/model"
	"github.com/trainstatus/ingest/source"
)

type PositionStore struct{ DB }

func NewPositionStore(db DB) *PositionStore { return &PositionStore{db} }

// SaveVehiclePositions upserts on conflict (vehicle_id, source), updating
// every mutable field. No history is kept here; the database trigger
// realtime.update_trip_geometry (internal/migrations/0001_schema.sql)
// accumulates geometry into trip_geometry when both trip_id and geom are
// present.
func (s *PositionStore) SaveVehiclePositions(ctx context.Context, src source.Source, positions []model.VehiclePosition) error {
	if len(positions) == 0 {
		return nil
	}
	for _, batch := range chunk(positions, maxBatchRows) {
		vehicleIDs := make([]string, len(batch))
		sources := make([]string, len(batch))
		tripIDs := make([]sql.NullString, len(batch))
		stopIDs := make([]sql.NullString, len(batch))
		updatedAts := make([]interface{}, len(batch))
		geoms := make([][]byte, len(batch))
		datas := make([]string, len(batch))
		for i, p := range batch {
			vehicleIDs[i] = p.VehicleID
			sources[i] = src.String()
			updatedAts[i] = p.UpdatedAt
			geoms[i] = p.Geom
			if p.TripID != nil {
				tripIDs[i] = sql.NullString{Valid: true, String: p.TripID.String()}
			}
			if p.StopID != nil {
				stopIDs[i] = sql.NullString{Valid: true, String: *p.StopID}
			}
			raw, err := marshalData(p.Data)
			if err != nil {
				return fmt.Errorf("marshaling position data for %s: %w", p.VehicleID, err)
			}
			datas[i] = string(raw)
		}
		_, err := s.SQL.ExecContext(ctx, `
			INSERT INTO realtime.vehicle_position (vehicle_id, source, trip_id, stop_id, updated_at, geom, data)
			SELECT * FROM UNNEST(
				$1::text[], $2::source_enum[], $3::uuid[], $4::text[], $5::timestamptz[], $6::geometry[], $7::jsonb[]
			)
			ON CONFLICT (vehicle_id, source) DO UPDATE SET
				trip_id = EXCLUDED.trip_id,
				stop_id = EXCLUDED.stop_id,
				updated_at = EXCLUDED.updated_at,
				geom = EXCLUDED.geom,
				data = EXCLUDED.data`,
			pq.Array(vehicleIDs), pq.Array(sources), pq.Array(tripIDs), pq.Array(stopIDs),
			pq.Array(updatedAts), pq.Array(geoms), pq.Array(datas))
		if err != nil {
			return fmt.Errorf("upserting vehicle positions: %w", err)
		}
	}
	return s.Cache.Invalidate(ctx, cacheKey("positions", src))
}
