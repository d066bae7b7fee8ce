package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/trainstatus/ingest/model"
	"github.com/trainstatus/ingest/source"
)

type StopStore struct{ DB }

func NewStopStore(db DB) *StopStore { return &StopStore{db} }

// GetAll returns every stop for src with its transfers joined in,
// read-through cached for 24h. route_stops are not loaded: Routes is left
// empty on every returned stop.
func (s *StopStore) GetAll(ctx context.Context, src source.Source) ([]model.Stop, error) {
	return readThroughWithReset(ctx, s.Cache, cacheKey("stops", src), ttlFor("stops"), func(ctx context.Context) ([]model.Stop, error) {
		rows, err := s.SQL.QueryContext(ctx, `
			SELECT
				s.id, s.name, s.geom,
				COALESCE(array_agg(st.to_stop_id) FILTER (WHERE st.to_stop_id IS NOT NULL), ARRAY[]::text[]),
				s.data
			FROM static.stop s
			LEFT JOIN static.stop_transfer st ON s.id = st.from_stop_id AND st.from_stop_source = s.source
			WHERE s.source = $1
			GROUP BY s.id, s.name, s.geom, s.data`, src.String())
		if err != nil {
			return nil, fmt.Errorf("querying stops: %w", err)
		}
		defer rows.Close()

		var out []model.Stop
		for rows.Next() {
			var st model.Stop
			var rawData []byte
			if err := rows.Scan(&st.ID, &st.Name, &st.Geom, pq.Array(&st.Transfers), &rawData); err != nil {
				return nil, fmt.Errorf("scanning stop: %w", err)
			}
			st.Source = src
			data, err := model.DecodeStopData(src, rawData)
			if err != nil {
				return nil, err
			}
			st.Data = data
			out = append(out, st)
		}
		return out, rows.Err()
	})
}

func (s *StopStore) SaveAll(ctx context.Context, src source.Source, stops []model.Stop) error {
	if len(stops) == 0 {
		return nil
	}
	for _, batch := range chunk(stops, maxBatchRows) {
		ids := make([]string, len(batch))
		names := make([]string, len(batch))
		geoms := make([][]byte, len(batch))
		datas := make([]string, len(batch))
		sources := make([]string, len(batch))
		for i, st := range batch {
			ids[i] = st.ID
			names[i] = st.Name
			geoms[i] = st.Geom
			sources[i] = src.String()
			raw, err := marshalData(st.Data)
			if err != nil {
				return fmt.Errorf("marshaling stop data for %s: %w", st.ID, err)
			}
			datas[i] = string(raw)
		}
		_, err := s.SQL.ExecContext(ctx, `
			INSERT INTO static.stop (id, source, name, geom, data)
			SELECT * FROM UNNEST($1::text[], $2::source_enum[], $3::text[], $4::geometry[], $5::jsonb[])
			ON CONFLICT (id, source) DO UPDATE SET
				name = EXCLUDED.name, geom = EXCLUDED.geom, data = EXCLUDED.data`,
			pq.Array(ids), pq.Array(sources), pq.Array(names), pq.Array(geoms), pq.Array(datas))
		if err != nil {
			return fmt.Errorf("upserting stops: %w", err)
		}
	}
	return s.Cache.Invalidate(ctx, cacheKey("stops", src))
}

func (s *StopStore) SaveAllRouteStops(ctx context.Context, src source.Source, routeStops []model.RouteStop) error {
	if len(routeStops) == 0 {
		return nil
	}
	for _, batch := range chunk(routeStops, maxBatchRows) {
		routeIDs := make([]string, len(batch))
		stopIDs := make([]string, len(batch))
		stopSeqs := make([]int16, len(batch))
		datas := make([]string, len(batch))
		sources := make([]string, len(batch))
		for i, rs := range batch {
			routeIDs[i] = rs.RouteID
			stopIDs[i] = rs.StopID
			stopSeqs[i] = rs.StopSequence
			sources[i] = src.String()
			raw, err := marshalData(rs.Data)
			if err != nil {
				return fmt.Errorf("marshaling route_stop data: %w", err)
			}
			datas[i] = string(raw)
		}
		_, err := s.SQL.ExecContext(ctx, `
			INSERT INTO static.route_stop (route_id, source, stop_id, stop_sequence, data)
			SELECT * FROM UNNEST($1::text[], $2::source_enum[], $3::text[], $4::smallint[], $5::jsonb[])
			ON CONFLICT (route_id, source, stop_id) DO UPDATE SET
				stop_sequence = EXCLUDED.stop_sequence, data = EXCLUDED.data`,
			pq.Array(routeIDs), pq.Array(sources), pq.Array(stopIDs), pq.Array(stopSeqs), pq.Array(datas))
		if err != nil {
			return fmt.Errorf("upserting route_stops: %w", err)
		}
	}
	return s.Cache.Invalidate(ctx, cacheKey("route_stops", src))
}

// SaveAllTransfers upserts stop transfers, silently skipping self-transfers
// and the known-bogus stop id (model.StopTransfer.Valid).
func (s *StopStore) SaveAllTransfers(ctx context.Context, transfers []model.StopTransfer) error {
	var valid []model.StopTransfer
	for _, t := range transfers {
		if t.Valid() {
			valid = append(valid, t)
		}
	}
	if len(valid) == 0 {
		return nil
	}

	for _, batch := range chunk(valid, maxBatchRows) {
		fromIDs := make([]string, len(batch))
		fromSrcs := make([]string, len(batch))
		toIDs := make([]string, len(batch))
		toSrcs := make([]string, len(batch))
		types := make([]int16, len(batch))
		mins := make([]sql.NullInt16, len(batch))
		for i, t := range batch {
			fromIDs[i] = t.FromStopID
			fromSrcs[i] = t.FromSource.String()
			toIDs[i] = t.ToStopID
			toSrcs[i] = t.ToSource.String()
			types[i] = t.TransferType
			if t.MinTransferTime != nil {
				mins[i] = sql.NullInt16{Valid: true, Int16: *t.MinTransferTime}
			}
		}
		_, err := s.SQL.ExecContext(ctx, `
			INSERT INTO static.stop_transfer
				(from_stop_id, from_stop_source, to_stop_id, to_stop_source, transfer_type, min_transfer_time)
			SELECT * FROM UNNEST(
				$1::text[], $2::source_enum[], $3::text[], $4::source_enum[], $5::smallint[], $6::smallint[]
			)
			ON CONFLICT (from_stop_id, from_stop_source, to_stop_id, to_stop_source) DO UPDATE SET
				transfer_type = EXCLUDED.transfer_type, min_transfer_time = EXCLUDED.min_transfer_time`,
			pq.Array(fromIDs), pq.Array(fromSrcs), pq.Array(toIDs), pq.Array(toSrcs),
			pq.Array(types), pq.Array(mins))
		if err != nil {
			return fmt.Errorf("upserting stop_transfers: %w", err)
		}
	}
	return nil
}
