package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/trainstatus/ingest/model"
	"github.com/trainstatus/ingest/source"
)

type AlertStore struct{ DB }

func NewAlertStore(db DB) *AlertStore { return &AlertStore{db} }

// SaveAll is transactional: it deletes any alert whose original_id has been
// superseded by a clone elsewhere in this batch, upserts the alerts
// themselves (via a CTE returning proposed->actual id), and then upserts
// translations/active_periods/affected_entities keyed off that mapping.
// Affected entities are dropped silently (via the LEFT JOIN filter below)
// when the referenced route or stop doesn't exist yet, so a transient gap
// in static data never blocks the rest of the alert from saving.
func (s *AlertStore) SaveAll(
	ctx context.Context,
	src source.Source,
	alerts []model.Alert,
	translations []model.AlertTranslation,
	activePeriods []model.ActivePeriod,
	affectedEntities []model.AffectedEntity,
	clonedOriginalIDs []string,
) error {
	if len(alerts) == 0 {
		return nil
	}

	tx, err := s.SQL.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning alert transaction: %w", err)
	}
	defer tx.Rollback()

	if len(clonedOriginalIDs) > 0 {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM realtime.alert WHERE original_id = ANY($1) AND source = $2`,
			pq.Array(clonedOriginalIDs), src.String()); err != nil {
			return fmt.Errorf("deleting superseded alerts: %w", err)
		}
	}

	idMap := map[string]string{}
	for _, batch := range chunk(alerts, maxBatchRows) {
		ids := make([]string, len(batch))
		originalIDs := make([]string, len(batch))
		sources := make([]string, len(batch))
		createdAts := make([]interface{}, len(batch))
		updatedAts := make([]interface{}, len(batch))
		recordedAts := make([]interface{}, len(batch))
		datas := make([]string, len(batch))
		for i, a := range batch {
			ids[i] = a.ID
			originalIDs[i] = a.OriginalID
			sources[i] = src.String()
			createdAts[i] = a.CreatedAt
			updatedAts[i] = a.UpdatedAt
			recordedAts[i] = a.RecordedAt
			raw, err := marshalData(a.Data)
			if err != nil {
				return fmt.Errorf("marshaling alert data for %s: %w", a.OriginalID, err)
			}
			datas[i] = string(raw)
		}

		rows, err := tx.QueryContext(ctx, `
			WITH input AS (
				SELECT * FROM UNNEST(
					$1::uuid[], $2::text[], $3::source_enum[],
					$4::timestamptz[], $5::timestamptz[], $6::timestamptz[], $7::jsonb[]
				) AS t(id, original_id, source, created_at, updated_at, recorded_at, data)
			),
			upserted AS (
				INSERT INTO realtime.alert (id, original_id, source, created_at, updated_at, recorded_at, data)
				SELECT id, original_id, source, created_at, updated_at, recorded_at, data FROM input
				ON CONFLICT (created_at, original_id, source) DO UPDATE SET
					updated_at = EXCLUDED.updated_at,
					recorded_at = EXCLUDED.recorded_at,
					data = EXCLUDED.data
				RETURNING id, original_id, source, created_at
			)
			SELECT input.id AS proposed_id, upserted.id AS actual_id
			FROM input
			JOIN upserted
				ON upserted.original_id = input.original_id
				AND upserted.source = input.source
				AND upserted.created_at = input.created_at`,
			pq.Array(ids), pq.Array(originalIDs), pq.Array(sources),
			pq.Array(createdAts), pq.Array(updatedAts), pq.Array(recordedAts), pq.Array(datas))
		if err != nil {
			return fmt.Errorf("upserting alerts: %w", err)
		}
		for rows.Next() {
			var proposed, actual string
			if err := rows.Scan(&proposed, &actual); err != nil {
				rows.Close()
				return fmt.Errorf("scanning alert id map: %w", err)
			}
			idMap[proposed] = actual
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()
	}

	if err := s.saveTranslations(ctx, tx, idMap, translations); err != nil {
		return err
	}
	if err := s.saveActivePeriods(ctx, tx, idMap, activePeriods); err != nil {
		return err
	}
	if err := s.saveAffectedEntities(ctx, tx, idMap, affectedEntities); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing alert transaction: %w", err)
	}

	return s.Cache.Invalidate(ctx, cacheKey("alerts", src))
}

func (s *AlertStore) saveTranslations(ctx context.Context, tx *sql.Tx, idMap map[string]string, translations []model.AlertTranslation) error {
	var filtered []model.AlertTranslation
	for _, t := range translations {
		if _, ok := idMap[t.AlertID]; ok {
			filtered = append(filtered, t)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	for _, batch := range chunk(filtered, maxBatchRows) {
		alertIDs := make([]string, len(batch))
		sections := make([]string, len(batch))
		formats := make([]string, len(batch))
		languages := make([]string, len(batch))
		texts := make([]string, len(batch))
		for i, t := range batch {
			alertIDs[i] = idMap[t.AlertID]
			sections[i] = t.Section.String()
			formats[i] = t.Format.String()
			languages[i] = t.Language
			texts[i] = t.Text
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO realtime.alert_translation (alert_id, section, format, language, text)
			SELECT * FROM UNNEST($1::uuid[], $2::alert_section[], $3::alert_format[], $4::text[], $5::text[])
			ON CONFLICT (alert_id, section, format, language) DO UPDATE SET text = EXCLUDED.text`,
			pq.Array(alertIDs), pq.Array(sections), pq.Array(formats), pq.Array(languages), pq.Array(texts))
		if err != nil {
			return fmt.Errorf("upserting alert translations: %w", err)
		}
	}
	return nil
}

func (s *AlertStore) saveActivePeriods(ctx context.Context, tx *sql.Tx, idMap map[string]string, periods []model.ActivePeriod) error {
	var filtered []model.ActivePeriod
	for _, p := range periods {
		if _, ok := idMap[p.AlertID]; ok {
			filtered = append(filtered, p)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	for _, batch := range chunk(filtered, maxBatchRows) {
		alertIDs := make([]string, len(batch))
		startTimes := make([]interface{}, len(batch))
		endTimes := make([]interface{}, len(batch))
		for i, p := range batch {
			alertIDs[i] = idMap[p.AlertID]
			startTimes[i] = p.StartTime
			if p.EndTime != nil {
				endTimes[i] = *p.EndTime
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO realtime.active_period (alert_id, start_time, end_time)
			SELECT * FROM UNNEST($1::uuid[], $2::timestamptz[], $3::timestamptz[])
			ON CONFLICT (alert_id, start_time) DO UPDATE SET end_time = EXCLUDED.end_time`,
			pq.Array(alertIDs), pq.Array(startTimes), pq.Array(endTimes))
		if err != nil {
			return fmt.Errorf("upserting active periods: %w", err)
		}
	}
	return nil
}

// saveAffectedEntities drops any row whose route_id/stop_id doesn't resolve
// against static data yet: the LEFT JOINs plus WHERE clause below silently
// exclude rows instead of failing the whole batch on a stale foreign key.
func (s *AlertStore) saveAffectedEntities(ctx context.Context, tx *sql.Tx, idMap map[string]string, entities []model.AffectedEntity) error {
	var filtered []model.AffectedEntity
	for _, e := range entities {
		if _, ok := idMap[e.AlertID]; ok {
			filtered = append(filtered, e)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	for _, batch := range chunk(filtered, maxBatchRows) {
		alertIDs := make([]string, len(batch))
		routeIDs := make([]sql.NullString, len(batch))
		sources := make([]string, len(batch))
		stopIDs := make([]sql.NullString, len(batch))
		sortOrders := make([]int32, len(batch))
		for i, e := range batch {
			alertIDs[i] = idMap[e.AlertID]
			sources[i] = e.Source.String()
			sortOrders[i] = e.SortOrder
			if e.RouteID != nil {
				routeIDs[i] = sql.NullString{Valid: true, String: *e.RouteID}
			}
			if e.StopID != nil {
				stopIDs[i] = sql.NullString{Valid: true, String: *e.StopID}
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO realtime.affected_entity (alert_id, route_id, source, stop_id, sort_order)
			SELECT data.alert_id, data.route_id, data.source, data.stop_id, data.sort_order
			FROM UNNEST($1::uuid[], $2::text[], $3::source_enum[], $4::text[], $5::int[])
				AS data(alert_id, route_id, source, stop_id, sort_order)
			LEFT JOIN static.route r ON data.route_id = r.id AND data.source = r.source
			LEFT JOIN static.stop st ON data.stop_id = st.id AND data.source = st.source
			WHERE (data.route_id IS NULL OR r.id IS NOT NULL)
				AND (data.stop_id IS NULL OR st.id IS NOT NULL)
			ON CONFLICT (alert_id, COALESCE(route_id, ''), source, COALESCE(stop_id, '')) DO UPDATE SET
				sort_order = EXCLUDED.sort_order`,
			pq.Array(alertIDs), pq.Array(routeIDs), pq.Array(sources), pq.Array(stopIDs), pq.Array(sortOrders))
		if err != nil {
			return fmt.Errorf("upserting affected entities: %w", err)
		}
	}
	return nil
}

// GetAll returns alerts active at the given instant, flattened for API
// consumption. When at is zero, the result is cached for 30s under the
// current-time read path; an explicit at bypasses the cache, matching the
// teacher's "don't cache point-in-time historical queries" rule.
func (s *AlertStore) GetAll(ctx context.Context, src source.Source, at time.Time) ([]model.APIAlert, error) {
	if at.IsZero() {
		return readThroughWithReset(ctx, s.Cache, cacheKey("alerts", src), ttlFor("alerts"), func(ctx context.Context) ([]model.APIAlert, error) {
			return s.queryAll(ctx, src, time.Now().UTC())
		})
	}
	return s.queryAll(ctx, src, at)
}

func (s *AlertStore) queryAll(ctx context.Context, src source.Source, at time.Time) ([]model.APIAlert, error) {
	rows, err := s.SQL.QueryContext(ctx, `
		SELECT
			a.id, a.original_id, a.created_at, a.updated_at, a.data,
			(SELECT t.text FROM realtime.alert_translation t
				WHERE t.alert_id = a.id AND t.section = 'header' AND t.format = 'html' AND t.language = 'en'
				LIMIT 1) AS header_html,
			(SELECT t.text FROM realtime.alert_translation t
				WHERE t.alert_id = a.id AND t.section = 'description' AND t.format = 'html' AND t.language = 'en'
				LIMIT 1) AS description_html,
			(SELECT MIN(ap.start_time) FROM realtime.active_period ap WHERE ap.alert_id = a.id) AS start_time,
			(SELECT CASE
				WHEN EXISTS (SELECT 1 FROM realtime.active_period ap WHERE ap.alert_id = a.id AND ap.end_time IS NULL)
					THEN NULL
				ELSE MAX(ap.end_time)
			END FROM realtime.active_period ap WHERE ap.alert_id = a.id) AS end_time,
			COALESCE((
				SELECT json_agg(json_build_object(
					'route_id', ae.route_id, 'sort_order', ae.sort_order, 'stop_id', ae.stop_id
				) ORDER BY ae.sort_order)
				FROM realtime.affected_entity ae
				WHERE ae.alert_id = a.id AND ae.route_id IS NOT NULL
			), '[]') AS entities
		FROM realtime.alert a
		WHERE a.source = $1
			AND EXISTS (
				SELECT 1 FROM realtime.active_period ap
				WHERE ap.alert_id = a.id AND ap.start_time <= $2 AND (ap.end_time IS NULL OR ap.end_time >= $2)
			)
		ORDER BY a.updated_at DESC`, src.String(), at)
	if err != nil {
		return nil, fmt.Errorf("querying alerts: %w", err)
	}
	defer rows.Close()

	var out []model.APIAlert
	for rows.Next() {
		var (
			a            model.APIAlert
			rawData      []byte
			headerHTML   sql.NullString
			descHTML     sql.NullString
			startTime    sql.NullTime
			endTime      sql.NullTime
			entitiesJSON []byte
		)
		if err := rows.Scan(&a.ID, &a.OriginalID, &a.CreatedAt, &a.UpdatedAt, &rawData,
			&headerHTML, &descHTML, &startTime, &endTime, &entitiesJSON); err != nil {
			return nil, fmt.Errorf("scanning alert: %w", err)
		}
		if !headerHTML.Valid || !startTime.Valid {
			// No English HTML header or no active period yet: not ready for API consumption.
			continue
		}
		var data struct {
			AlertType string `json:"alert_type"`
		}
		if len(rawData) > 0 {
			if err := json.Unmarshal(rawData, &data); err != nil {
				return nil, fmt.Errorf("decoding alert data: %w", err)
			}
		}
		if data.AlertType == "" {
			data.AlertType = "Unknown"
		}
		var entities []model.APIAlertEntity
		if err := json.Unmarshal(entitiesJSON, &entities); err != nil {
			return nil, fmt.Errorf("decoding affected entities: %w", err)
		}
		a.AlertType = data.AlertType
		a.HeaderHTML = headerHTML.String
		if descHTML.Valid {
			a.DescriptionHTML = &descHTML.String
		}
		a.StartTime = startTime.Time
		if endTime.Valid {
			a.EndTime = &endTime.Time
		}
		a.Entities = entities
		out = append(out, a)
	}
	return out, rows.Err()
}
