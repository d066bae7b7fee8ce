package store

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/trainstatus/ingest/model"
	"github.com/trainstatus/ingest/source"
)

type RouteStore struct{ DB }

func NewRouteStore(db DB) *RouteStore { return &RouteStore{db} }

func cacheKey(entity string, src source.Source) string {
	return fmt.Sprintf("%s:%s", entity, src.String())
}

// GetAll returns every route for src, read-through cached for 24h.
func (s *RouteStore) GetAll(ctx context.Context, src source.Source) ([]model.Route, error) {
	return readThroughWithReset(ctx, s.Cache, cacheKey("routes", src), ttlFor("routes"), func(ctx context.Context) ([]model.Route, error) {
		rows, err := s.SQL.QueryContext(ctx, `
			SELECT id, long_name, short_name, color, data, geom
			FROM static.route
			WHERE source = $1`, src.String())
		if err != nil {
			return nil, fmt.Errorf("querying routes: %w", err)
		}
		defer rows.Close()

		var out []model.Route
		for rows.Next() {
			var r model.Route
			var rawData []byte
			if err := rows.Scan(&r.ID, &r.LongName, &r.ShortName, &r.Color, &rawData, &r.Geom); err != nil {
				return nil, fmt.Errorf("scanning route: %w", err)
			}
			r.Source = src
			data, err := model.DecodeRouteData(src, rawData)
			if err != nil {
				return nil, err
			}
			r.Data = data
			out = append(out, r)
		}
		return out, rows.Err()
	})
}

// SaveAll upserts routes on conflict (id, source), then invalidates the
// cache for src.
func (s *RouteStore) SaveAll(ctx context.Context, src source.Source, routes []model.Route) error {
	if len(routes) == 0 {
		return nil
	}

	for _, batch := range chunk(routes, maxBatchRows) {
		ids := make([]string, len(batch))
		longNames := make([]string, len(batch))
		shortNames := make([]string, len(batch))
		colors := make([]string, len(batch))
		datas := make([]string, len(batch))
		geoms := make([][]byte, len(batch))
		sources := make([]string, len(batch))

		for i, r := range batch {
			ids[i] = r.ID
			longNames[i] = r.LongName
			shortNames[i] = r.ShortName
			colors[i] = r.Color
			sources[i] = src.String()
			geoms[i] = r.Geom
			raw, err := marshalData(r.Data)
			if err != nil {
				return fmt.Errorf("marshaling route data for %s: %w", r.ID, err)
			}
			datas[i] = string(raw)
		}

		_, err := s.SQL.ExecContext(ctx, `
			INSERT INTO static.route (id, source, long_name, short_name, color, data, geom)
			SELECT * FROM UNNEST(
				$1::text[], $2::source_enum[], $3::text[], $4::text[],
				$5::text[], $6::jsonb[], $7::geometry[]
			)
			ON CONFLICT (id, source) DO UPDATE SET
				long_name = EXCLUDED.long_name,
				short_name = EXCLUDED.short_name,
				color = EXCLUDED.color,
				data = EXCLUDED.data,
				geom = EXCLUDED.geom`,
			pq.Array(ids), pq.Array(sources), pq.Array(longNames), pq.Array(shortNames),
			pq.Array(colors), pq.Array(datas), pq.Array(geoms),
		)
		if err != nil {
			return fmt.Errorf("upserting routes: %w", err)
		}
	}

	return s.Cache.Invalidate(ctx, cacheKey("routes", src))
}
