package mtabus

import (
	"context"
	"net/http"
	"time"

	gtfsproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/rs/zerolog"

	"github.com/trainstatus/ingest/internal/gtfsrt"
	"github.com/trainstatus/ingest/internal/transitid"
	"github.com/trainstatus/ingest/model"
	"github.com/trainstatus/ingest/pipeline"
	"github.com/trainstatus/ingest/source"
	"github.com/trainstatus/ingest/store"
)

var alertFeedURLs = []string{
	"https://gtfsrt.prod.obanyc.com/alerts",
}

// Alerts implements pipeline.AlertsSource and control.Alerts for the bus
// network.
type Alerts struct {
	Log    zerolog.Logger
	Client *http.Client
}

func (Alerts) Source() source.Source          { return source.MtaBus }
func (Alerts) FeedURLs() []string              { return alertFeedURLs }
func (Alerts) RefreshInterval() time.Duration { return 30 * time.Second }

func (a Alerts) Run(ctx context.Context, alerts *store.AlertStore) error {
	return pipeline.RunAlerts(ctx, a.Log, a.Client, a, alerts)
}

func (Alerts) ProcessAlert(entityID string, alert *gtfsproto.Alert) (pipeline.ProcessedAlert, bool) {
	mercury, ok := gtfsrt.GetMercuryAlert(alert)
	if !ok {
		return pipeline.ProcessedAlert{}, false
	}

	a := model.Alert{
		ID:         entityID,
		OriginalID: entityID,
		Source:     source.MtaBus,
		CreatedAt:  time.Unix(mercury.CreatedAtUnix, 0).UTC(),
		UpdatedAt:  time.Unix(mercury.UpdatedAtUnix, 0).UTC(),
		RecordedAt: time.Now().UTC(),
		Data: model.MtaAlertData{
			AlertType:           mercury.AlertType,
			DisplayBeforeActive: mercury.DisplayBeforeActive,
			CloneID:             mercury.CloneID,
		},
	}

	var translations []model.AlertTranslation
	for _, ht := range alert.GetHeaderText().GetTranslation() {
		lang, format := model.ParseMtaLanguageTag(ht.GetLanguage())
		translations = append(translations, model.AlertTranslation{
			AlertID: entityID, Section: model.AlertSectionHeader, Format: format, Language: lang, Text: ht.GetText(),
		})
	}
	for _, dt := range alert.GetDescriptionText().GetTranslation() {
		lang, format := model.ParseMtaLanguageTag(dt.GetLanguage())
		translations = append(translations, model.AlertTranslation{
			AlertID: entityID, Section: model.AlertSectionDescription, Format: format, Language: lang, Text: dt.GetText(),
		})
	}

	var periods []model.ActivePeriod
	for _, p := range alert.GetActivePeriod() {
		ap := model.ActivePeriod{AlertID: entityID}
		if p.Start != nil {
			ap.StartTime = time.Unix(int64(p.GetStart()), 0).UTC()
		}
		if p.End != nil {
			t := time.Unix(int64(p.GetEnd()), 0).UTC()
			ap.EndTime = &t
		}
		periods = append(periods, ap)
	}

	var entities []model.AffectedEntity
	for i, e := range alert.GetInformedEntity() {
		var routeID, stopID *string
		if r := e.GetRouteId(); r != "" {
			r = transitid.StripAgencyPrefix(r)
			routeID = &r
		}
		if s := e.GetStopId(); s != "" {
			s = transitid.StripAgencyPrefix(s)
			stopID = &s
		}
		if routeID == nil && stopID == nil {
			continue
		}
		entities = append(entities, model.AffectedEntity{
			AlertID: entityID, RouteID: routeID, Source: source.MtaBus, StopID: stopID, SortOrder: int32(i),
		})
	}

	return pipeline.ProcessedAlert{
		Alert:            a,
		Translations:     translations,
		ActivePeriods:    periods,
		AffectedEntities: entities,
	}, true
}
