package pipeline

import (
	"context"
	"fmt"
	"net/http"

	gtfsproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/rs/zerolog"

	"github.com/trainstatus/ingest/model"
	"github.com/trainstatus/ingest/source"
	"github.com/trainstatus/ingest/store"
)

// ProcessedAlert is what ProcessAlert returns for one feed entity: the
// alert itself plus every row it fans out to.
type ProcessedAlert struct {
	Alert           model.Alert
	Translations    []model.AlertTranslation
	ActivePeriods   []model.ActivePeriod
	AffectedEntities []model.AffectedEntity
}

// AlertsSource is the per-adapter extension point for the generic alerts
// pipeline.
type AlertsSource interface {
	Source() source.Source
	FeedURLs() []string
	// ProcessAlert maps one feed entity to a ProcessedAlert, or ok=false to
	// skip it (e.g. no Mercury extension present).
	ProcessAlert(entityID string, alert *gtfsproto.Alert) (ProcessedAlert, bool)
}

type dedupKey struct {
	createdAt  int64
	originalID string
}

// RunAlerts implements spec §4.3's generic alert pipeline: fetch, process,
// in-feed dedup by (created_at, original_id), drop anything superseded by a
// clone_id elsewhere in the batch, then persist the survivors.
func RunAlerts(ctx context.Context, log zerolog.Logger, client *http.Client, adapter AlertsSource, alerts *store.AlertStore) error {
	src := adapter.Source()

	feeds := fetchFeeds(ctx, log, client, adapter.FeedURLs())
	if len(feeds) == 0 {
		return nil
	}

	var processed []ProcessedAlert
	seen := map[dedupKey]bool{}
	clonedIDs := map[string]bool{}

	for _, feed := range feeds {
		for _, entity := range feed.GetEntity() {
			ga := entity.GetAlert()
			if ga == nil {
				continue
			}
			pa, ok := adapter.ProcessAlert(entity.GetId(), ga)
			if !ok {
				continue
			}

			key := dedupKey{createdAt: pa.Alert.CreatedAt.Unix(), originalID: pa.Alert.OriginalID}
			if seen[key] {
				continue
			}
			seen[key] = true

			if data, ok := pa.Alert.Data.(model.MtaAlertData); ok && data.CloneID != nil {
				clonedIDs[*data.CloneID] = true
			}

			processed = append(processed, pa)
		}
	}

	var keptAlerts []model.Alert
	var keptTranslations []model.AlertTranslation
	var keptPeriods []model.ActivePeriod
	var keptEntities []model.AffectedEntity
	var clonedList []string
	for id := range clonedIDs {
		clonedList = append(clonedList, id)
	}

	for _, pa := range processed {
		if clonedIDs[pa.Alert.OriginalID] {
			// Superseded by a clone elsewhere in this batch; drop the alert
			// and everything it fans out to.
			continue
		}
		keptAlerts = append(keptAlerts, pa.Alert)
		keptTranslations = append(keptTranslations, pa.Translations...)
		keptPeriods = append(keptPeriods, pa.ActivePeriods...)
		keptEntities = append(keptEntities, pa.AffectedEntities...)
	}

	log.Info().Int("alerts", len(keptAlerts)).Int("superseded", len(processed)-len(keptAlerts)).Msg("processed alert feed")

	if err := alerts.SaveAll(ctx, src, keptAlerts, keptTranslations, keptPeriods, keptEntities, clonedList); err != nil {
		return fmt.Errorf("saving alerts: %w", err)
	}
	return nil
}
