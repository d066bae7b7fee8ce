package store

import (
	"context"
	"fmt"
	"time"

	"github.com/trainstatus/ingest/source"
)

// SourceStore tracks each source's last successful static import, backing
// the static controller's staleness check.
type SourceStore struct{ DB }

func NewSourceStore(db DB) *SourceStore { return &SourceStore{db} }

// NeedsUpdate reports whether src's static data is older than refresh,
// inserting a maximally-stale row (Unix epoch) the first time a source is
// seen so the very first ensure_updated call always imports.
func (s *SourceStore) NeedsUpdate(ctx context.Context, src source.Source, refresh time.Duration) (bool, error) {
	if _, err := s.SQL.ExecContext(ctx, `
		INSERT INTO source (id, name, updated_at)
		VALUES ($1, $2, to_timestamp(0))
		ON CONFLICT (id) DO NOTHING`,
		src.String(), src.String()); err != nil {
		return false, fmt.Errorf("seeding source row for %s: %w", src, err)
	}

	var updatedAt time.Time
	if err := s.SQL.QueryRowContext(ctx,
		`SELECT updated_at FROM source WHERE id = $1`, src.String()).Scan(&updatedAt); err != nil {
		return false, fmt.Errorf("reading source freshness for %s: %w", src, err)
	}
	return time.Since(updatedAt) > refresh, nil
}

// MarkUpdated records a successful import for src.
func (s *SourceStore) MarkUpdated(ctx context.Context, src source.Source) error {
	_, err := s.SQL.ExecContext(ctx, `UPDATE source SET updated_at = NOW() WHERE id = $1`, src.String())
	if err != nil {
		return fmt.Errorf("marking source %s updated: %w", src, err)
	}
	return nil
}
