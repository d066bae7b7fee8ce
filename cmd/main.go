// Command ingest runs the MTA subway/bus data ingestion service: the
// static-data controller plus one realtime and one alerts pipeline per
// source, all logging through zerolog per the teacher's convention.
package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/trainstatus/ingest/adapters/mtabus"
	"github.com/trainstatus/ingest/adapters/mtasubway"
	"github.com/trainstatus/ingest/api"
	"github.com/trainstatus/ingest/cache"
	"github.com/trainstatus/ingest/control"
	"github.com/trainstatus/ingest/engine"
	"github.com/trainstatus/ingest/internal/config"
	"github.com/trainstatus/ingest/internal/logging"
	"github.com/trainstatus/ingest/internal/migrations"
	"github.com/trainstatus/ingest/store"
)

func main() {
	log := logging.New()

	root := &cobra.Command{
		Use:   "ingest",
		Short: "MTA realtime/static data ingestion service",
	}
	root.AddCommand(serveCmd(log), migrateCmd(log))

	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

func serveCmd(log zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the static/realtime/alerts pipelines forever",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), log)
		},
	}
}

func migrateCmd(log zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := sql.Open("postgres", cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()
			return migrations.Apply(cmd.Context(), db)
		},
	}
}

func runServe(ctx context.Context, log zerolog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return err
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	rc := cache.New(redisClient)
	dbHandle := store.DB{SQL: db, Cache: rc}

	routeStore := store.NewRouteStore(dbHandle)
	stopStore := store.NewStopStore(dbHandle)
	tripStore := store.NewTripStore(dbHandle)
	stopTimeStore := store.NewStopTimeStore(dbHandle)
	positionStore := store.NewPositionStore(dbHandle)
	alertStore := store.NewAlertStore(dbHandle)
	sourceStore := store.NewSourceStore(dbHandle)

	httpClient := &http.Client{Timeout: 30 * time.Second}

	staticAdapters := []control.Static{
		mtasubway.Static{},
		mtabus.Static{Client: httpClient, APIKey: cfg.OBAAPIKey},
	}
	realtimeAdapters := []control.Realtime{
		&mtasubway.Realtime{Log: logging.Component(log, "mta_subway_realtime"), Client: httpClient},
		&mtabus.Realtime{
			Log:      logging.Component(log, "mta_bus_realtime"),
			Client:   httpClient,
			Endpoint: "https://bustime.mta.info",
			APIKey:   cfg.OBAAPIKey,
		},
	}
	alertsAdapters := []control.Alerts{
		mtasubway.Alerts{Log: logging.Component(log, "mta_subway_alerts"), Client: httpClient},
		mtabus.Alerts{Log: logging.Component(log, "mta_bus_alerts"), Client: httpClient},
	}

	staticController := control.RunStatic(ctx, log, sourceStore, routeStore, stopStore, staticAdapters)
	engine.RunRealtime(ctx, log, tripStore, positionStore, staticController, realtimeAdapters)
	engine.RunAlerts(ctx, log, alertStore, alertsAdapters)

	apiServer := &api.Server{
		Routes:    routeStore,
		Stops:     stopStore,
		Trips:     tripStore,
		StopTimes: stopTimeStore,
		Alerts:    alertStore,
	}
	go func() {
		if err := api.ListenAndServe(ctx, cfg.Address, apiServer); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("api server stopped")
		}
	}()

	log.Info().Str("address", cfg.Address).Msg("ingestion pipelines started")

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()
	log.Info().Msg("shutting down")
	return nil
}
