package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/trainstatus/ingest/model"
	"github.com/trainstatus/ingest/source"
)

// upsertStopTimesTx is shared by TripStore.SaveAll (within its transaction,
// using already-remapped trip ids) and StopTimeStore.SaveAll (standalone).
func upsertStopTimesTx(ctx context.Context, tx *sql.Tx, stopTimes []model.StopTime) error {
	if len(stopTimes) == 0 {
		return nil
	}
	for _, batch := range chunk(stopTimes, maxBatchRows) {
		tripIDs := make([]string, len(batch))
		stopIDs := make([]string, len(batch))
		sources := make([]string, len(batch))
		arrivals := make([]interface{}, len(batch))
		departures := make([]interface{}, len(batch))
		datas := make([]string, len(batch))
		for i, st := range batch {
			tripIDs[i] = st.TripID.String()
			stopIDs[i] = st.StopID
			sources[i] = st.Source.String()
			if st.Arrival != nil {
				arrivals[i] = *st.Arrival
			}
			if st.Departure != nil {
				departures[i] = *st.Departure
			}
			raw, err := marshalData(st.Data)
			if err != nil {
				return fmt.Errorf("marshaling stop_time data: %w", err)
			}
			datas[i] = string(raw)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO realtime.stop_time (trip_id, stop_id, source, arrival, departure, data)
			SELECT * FROM UNNEST(
				$1::uuid[], $2::text[], $3::source_enum[], $4::timestamptz[], $5::timestamptz[], $6::jsonb[]
			)
			ON CONFLICT (trip_id, stop_id, source) DO UPDATE SET
				arrival = EXCLUDED.arrival, departure = EXCLUDED.departure, data = EXCLUDED.data`,
			pq.Array(tripIDs), pq.Array(stopIDs), pq.Array(sources), pq.Array(arrivals), pq.Array(departures), pq.Array(datas))
		if err != nil {
			return fmt.Errorf("upserting stop_times: %w", err)
		}
	}
	return nil
}

type StopTimeStore struct{ DB }

func NewStopTimeStore(db DB) *StopTimeStore { return &StopTimeStore{db} }

// SaveAll upserts stop_times outside of the trip-upsert transaction, for
// callers (tests, backfills) that already hold actual trip ids.
func (s *StopTimeStore) SaveAll(ctx context.Context, src source.Source, stopTimes []model.StopTime) error {
	if len(stopTimes) == 0 {
		return nil
	}
	tx, err := s.SQL.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := upsertStopTimesTx(ctx, tx, stopTimes); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return s.Cache.Invalidate(ctx, cacheKey("stop_times", src))
}

// GetAll returns stop_times for src, joined against trip for route_id
// filtering, optionally limited to an arrival window. routeIDs nil/empty
// means no route filter; a zero arrivalAfter/arrivalBefore means
// unbounded on that side. Not cached: the api package's query surface is
// intentionally thin (see DESIGN.md) and callers are expected to pass a
// narrow filter rather than page over the full table.
func (s *StopTimeStore) GetAll(ctx context.Context, src source.Source, routeIDs []string, arrivalAfter, arrivalBefore time.Time) ([]model.StopTime, error) {
	query := `
		SELECT st.trip_id, st.stop_id, st.arrival, st.departure, st.data
		FROM realtime.stop_time st
		JOIN realtime.trip t ON t.id = st.trip_id AND t.source = st.source
		WHERE st.source = $1`
	args := []interface{}{src.String()}

	if len(routeIDs) > 0 {
		args = append(args, pq.Array(routeIDs))
		query += fmt.Sprintf(" AND t.route_id = ANY($%d)", len(args))
	}
	if !arrivalAfter.IsZero() {
		args = append(args, arrivalAfter)
		query += fmt.Sprintf(" AND st.arrival >= $%d", len(args))
	}
	if !arrivalBefore.IsZero() {
		args = append(args, arrivalBefore)
		query += fmt.Sprintf(" AND st.arrival <= $%d", len(args))
	}

	rows, err := s.SQL.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying stop_times: %w", err)
	}
	defer rows.Close()

	var out []model.StopTime
	for rows.Next() {
		var st model.StopTime
		var tripID string
		var arrival, departure sql.NullTime
		var rawData []byte
		if err := rows.Scan(&tripID, &st.StopID, &arrival, &departure, &rawData); err != nil {
			return nil, fmt.Errorf("scanning stop_time: %w", err)
		}
		id, err := uuid.Parse(tripID)
		if err != nil {
			return nil, fmt.Errorf("parsing trip_id: %w", err)
		}
		st.TripID = id
		st.Source = src
		if arrival.Valid {
			a := arrival.Time
			st.Arrival = &a
		}
		if departure.Valid {
			d := departure.Time
			st.Departure = &d
		}
		data, err := model.DecodeStopTimeData(src, rawData)
		if err != nil {
			return nil, err
		}
		st.Data = data
		out = append(out, st)
	}
	return out, rows.Err()
}
