package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/trainstatus/ingest/model"
	"github.com/trainstatus/ingest/source"
)

type TripStore struct{ DB }

func NewTripStore(db DB) *TripStore { return &TripStore{db} }

// TripWithStopTimes pairs a proposed trip with its stop times, the unit the
// realtime pipeline hands to SaveAll.
type TripWithStopTimes struct {
	Trip      model.Trip
	StopTimes []model.StopTime
}

// SaveAll upserts trips on the natural key (original_id, vehicle_id,
// created_at, direction), returning a map from each input trip's proposed
// id to the DB-resident id for that natural key (which may be a
// pre-existing row's id, not the proposed one). It then upserts the
// associated stop_times using the remapped trip ids. Both tables are
// written in one transaction so trips commit before stop_times can
// reference them.
func (s *TripStore) SaveAll(ctx context.Context, src source.Source, items []TripWithStopTimes) (map[uuid.UUID]uuid.UUID, error) {
	idMap := map[uuid.UUID]uuid.UUID{}
	if len(items) == 0 {
		return idMap, nil
	}

	tx, err := s.SQL.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning trip transaction: %w", err)
	}
	defer tx.Rollback()

	for _, batch := range chunk(items, maxBatchRows) {
		ids := make([]uuid.UUID, len(batch))
		originalIDs := make([]string, len(batch))
		vehicleIDs := make([]string, len(batch))
		routeIDs := make([]string, len(batch))
		directions := make([]sql.NullInt16, len(batch))
		createdAts := make([]interface{}, len(batch))
		datas := make([]string, len(batch))
		sources := make([]string, len(batch))

		for i, it := range batch {
			t := it.Trip
			ids[i] = t.ID
			originalIDs[i] = t.OriginalID
			vehicleIDs[i] = t.VehicleID
			routeIDs[i] = t.RouteID
			sources[i] = src.String()
			createdAts[i] = t.CreatedAt
			if t.Direction != nil {
				directions[i] = sql.NullInt16{Valid: true, Int16: *t.Direction}
			}
			raw, err := marshalData(t.Data)
			if err != nil {
				return nil, fmt.Errorf("marshaling trip data for %s: %w", t.OriginalID, err)
			}
			datas[i] = string(raw)
		}

		rows, err := tx.QueryContext(ctx, `
			WITH input AS (
				SELECT * FROM UNNEST(
					$1::uuid[], $2::text[], $3::text[], $4::text[],
					$5::smallint[], $6::timestamptz[], $7::jsonb[], $8::source_enum[]
				) AS t(id, original_id, vehicle_id, route_id, direction, created_at, data, source)
			),
			upserted AS (
				INSERT INTO realtime.trip (id, original_id, vehicle_id, route_id, direction, created_at, updated_at, data, source)
				SELECT id, original_id, vehicle_id, route_id, direction, created_at, now(), data, source FROM input
				ON CONFLICT (original_id, vehicle_id, created_at, direction, source) DO UPDATE SET
					route_id = EXCLUDED.route_id,
					updated_at = now(),
					data = EXCLUDED.data
				RETURNING id, original_id, vehicle_id, created_at, direction
			)
			SELECT input.id AS proposed_id, upserted.id AS actual_id
			FROM input
			JOIN upserted
				ON upserted.original_id = input.original_id
				AND upserted.vehicle_id = input.vehicle_id
				AND upserted.created_at = input.created_at
				AND upserted.direction IS NOT DISTINCT FROM input.direction`,
			pq.Array(ids), pq.Array(originalIDs), pq.Array(vehicleIDs), pq.Array(routeIDs),
			pq.Array(directions), pq.Array(createdAts), pq.Array(datas), pq.Array(sources))
		if err != nil {
			return nil, fmt.Errorf("upserting trips: %w", err)
		}

		batchMap := map[uuid.UUID]uuid.UUID{}
		for rows.Next() {
			var proposed, actual uuid.UUID
			if err := rows.Scan(&proposed, &actual); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning trip id map: %w", err)
			}
			batchMap[proposed] = actual
			idMap[proposed] = actual
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()

		var stopTimes []model.StopTime
		for _, it := range batch {
			actual, ok := batchMap[it.Trip.ID]
			if !ok {
				continue
			}
			for _, st := range it.StopTimes {
				st.TripID = actual
				st.Source = src
				stopTimes = append(stopTimes, st)
			}
		}
		if err := upsertStopTimesTx(ctx, tx, stopTimes); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing trip transaction: %w", err)
	}

	if err := s.Cache.Invalidate(ctx, cacheKey("trips", src)); err != nil {
		return idMap, err
	}
	return idMap, nil
}

// GetAll returns trips for src, read-through cached for 30s.
func (s *TripStore) GetAll(ctx context.Context, src source.Source) ([]model.Trip, error) {
	return readThroughWithReset(ctx, s.Cache, cacheKey("trips", src), ttlFor("trips"), func(ctx context.Context) ([]model.Trip, error) {
		rows, err := s.SQL.QueryContext(ctx, `
			SELECT id, original_id, vehicle_id, route_id, direction, created_at, updated_at, data
			FROM realtime.trip WHERE source = $1`, src.String())
		if err != nil {
			return nil, fmt.Errorf("querying trips: %w", err)
		}
		defer rows.Close()

		var out []model.Trip
		for rows.Next() {
			var t model.Trip
			var direction sql.NullInt16
			var rawData []byte
			if err := rows.Scan(&t.ID, &t.OriginalID, &t.VehicleID, &t.RouteID, &direction, &t.CreatedAt, &t.UpdatedAt, &rawData); err != nil {
				return nil, fmt.Errorf("scanning trip: %w", err)
			}
			if direction.Valid {
				d := direction.Int16
				t.Direction = &d
			}
			t.Source = src
			data, err := model.DecodeTripData(src, rawData)
			if err != nil {
				return nil, err
			}
			t.Data = data
			out = append(out, t)
		}
		return out, rows.Err()
	})
}
