package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trainstatus/ingest/source"
)

// queryAll is exercised directly (bypassing Cache.Invalidate/ReadThrough,
// which need a live redis client) since it owns all the row-shape decisions:
// which rows are API-ready and what an empty affected-entities/data blob
// decodes to.
func TestAlertStoreQueryAllFiltersIncompleteRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC().Truncate(time.Second)
	rows := sqlmock.NewRows([]string{
		"id", "original_id", "created_at", "updated_at", "data",
		"header_html", "description_html", "start_time", "end_time", "entities",
	}).
		AddRow("alert-1", "orig-1", now, now, []byte(`{"alert_type":"Delay"}`),
			"Delayed service", nil, now, nil, []byte(`[{"route_id":"A","sort_order":0}]`)).
		AddRow("alert-2", "orig-2", now, now, []byte(`{}`),
			nil, nil, nil, nil, []byte(`[]`)) // no header/start_time: must be dropped

	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	s := &AlertStore{DB{SQL: db}}
	got, err := s.queryAll(context.Background(), source.MtaSubway, now)
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, "alert-1", got[0].ID)
	assert.Equal(t, "Delay", got[0].AlertType)
	assert.Equal(t, "Delayed service", got[0].HeaderHTML)
	assert.Nil(t, got[0].DescriptionHTML)
	require.Len(t, got[0].Entities, 1)
	assert.Equal(t, "A", got[0].Entities[0].RouteID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertStoreQueryAllDefaultsUnknownAlertType(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC().Truncate(time.Second)
	rows := sqlmock.NewRows([]string{
		"id", "original_id", "created_at", "updated_at", "data",
		"header_html", "description_html", "start_time", "end_time", "entities",
	}).AddRow("alert-1", "orig-1", now, now, []byte(`{}`),
		"Some header", nil, now, nil, []byte(`[]`))

	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	s := &AlertStore{DB{SQL: db}}
	got, err := s.queryAll(context.Background(), source.MtaBus, now)
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, "Unknown", got[0].AlertType)
	assert.Empty(t, got[0].Entities)
}
