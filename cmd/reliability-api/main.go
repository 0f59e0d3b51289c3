package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"charger-monitor/reliability/internal/config"
	"charger-monitor/reliability/internal/logging"
	"charger-monitor/reliability/internal/pipeline"
	"charger-monitor/reliability/internal/reporting"
	"charger-monitor/reliability/internal/store"
	api "charger-monitor/reliability/internal/transport/http"
	"charger-monitor/reliability/internal/transport/mqtt"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	params, err := cfg.EngineParams()
	if err != nil {
		log.WithError(err).Fatal("invalid engine parameters")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.NewTimescaleStore(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("connect timescaledb")
	}
	defer db.Close()

	rdb, err := store.NewRedisStore(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("connect redis")
	}
	defer rdb.Close()

	reporter, err := reporting.NewReporter(db, rdb, log, reporting.Options{
		Params:   params,
		Workers:  cfg.ComputeWorkers,
		CacheTTL: cfg.ReportCacheTTL,
	})
	if err != nil {
		log.WithError(err).Fatal("build reporter")
	}

	// Workers outlive the signal so they can drain the channels.
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	dispatcher := pipeline.NewDispatcher(cfg.DBChannelSize, cfg.StateChannelSize, cfg.AlertChannelSize)
	var wg sync.WaitGroup
	start := func(n int, run func(context.Context)) {
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				run(workerCtx)
			}()
		}
	}
	start(cfg.DBWriterWorkers, pipeline.NewDBWriter(dispatcher.DBChan, db, log, cfg.DBBatchSize, cfg.DBFlushIntervalMS).Run)
	start(cfg.StateWriterWorkers, pipeline.NewStateWriter(dispatcher.StateChan, rdb, log).Run)
	start(cfg.AlertWorkers, pipeline.NewAlertEvaluator(dispatcher.AlertChan, db, rdb, log, cfg.AlertDedupTTL).Run)

	var sub *mqtt.Subscriber
	if cfg.MQTTBroker != "" {
		sub, err = mqtt.NewSubscriber(cfg.MQTTBroker, cfg.MQTTClientID, cfg.MQTTTopic, dispatcher, log)
		if err != nil {
			log.WithError(err).Fatal("connect mqtt")
		}
	} else {
		log.Info("MQTT_BROKER not set, status ingest over HTTP only")
	}

	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: api.NewRouter(api.Options{
			Reports:  reporter,
			Registry: db,
			Live:     rdb,
			Ingest:   dispatcher,
			Sessions: db,
			Alerts:   rdb,
			Checks: []api.HealthCheck{
				{Name: "timescale", Ping: db.Ping},
				{Name: "redis", Ping: rdb.Ping},
			},
			Log:           log,
			CORSOrigins:   cfg.CORSOrigins,
			DefaultWindow: cfg.DefaultWindow,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{
			"port":         cfg.HTTPPort,
			"max_ping_gap": params.MaxPingGap.String(),
			"merge_tol":    params.MergeTolerance.String(),
		}).Info("reliability api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("http server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown incomplete")
	}
	if sub != nil {
		sub.Close()
	}

	// No producer is left, so the writers can drain and exit.
	dispatcher.Close()
	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		log.Warn("pipeline did not drain in time")
		cancelWorkers()
		<-drained
	}
	log.Info("stopped")
}
