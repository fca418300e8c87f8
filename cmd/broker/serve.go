package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rzd-etran/broker/internal/config"
	"github.com/rzd-etran/broker/internal/control"
	"github.com/rzd-etran/broker/internal/heartbeat"
	"github.com/rzd-etran/broker/internal/pipeline"
	"github.com/rzd-etran/broker/internal/queue"
	"github.com/rzd-etran/broker/internal/sleepctl"
	"github.com/rzd-etran/broker/internal/store"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the producer/worker-pool/consumer pipeline until terminated",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(parentCtx context.Context) error {
	logger := newLogger()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parentCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	openStore := func(ctx context.Context) (store.Store, error) {
		return store.NewMSSQLStore(ctx, store.Config{
			Server:   cfg.DB.Server,
			Database: cfg.DB.Database,
			User:     cfg.DB.User,
			Password: cfg.DB.Password,
		})
	}

	bootStore, err := openStore(ctx)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	if err := bootStore.ResetProcessingQueue(ctx); err != nil {
		bootStore.Close()
		return fmt.Errorf("reset processing queue: %w", err)
	}
	bootStore.Close()
	logger.Info("processing queue reset at boot")

	queueIn := queue.NewPriorityQueue(cfg.App.QueueMaxSize)
	queueOut := queue.NewFIFO()
	sleeper := sleepctl.NewController()
	outage := &pipeline.OutageFlag{}

	g, gctx := errgroup.WithContext(ctx)

	// SIGINT/SIGTERM is a terminate-cancel: it must wake a sleeping producer
	// with ErrTerminated, not a plain Wake, so the producer loop unwinds
	// instead of looping back to sleep again.
	g.Go(func() error {
		<-ctx.Done()
		sleeper.Terminate()
		return nil
	})

	g.Go(func() error {
		return pipeline.RunProducer(gctx, pipeline.ProducerConfig{
			QueueIn:            queueIn,
			QueueOut:           queueOut,
			Sleep:              sleeper,
			SleepOnDisconnect:  cfg.App.SleepOnDisconnect,
			DBPollingInterval:  cfg.App.DBPollingInterval,
			DBQueryingInterval: cfg.App.DBQueryingInterval,
			Logger:             logger,
			OpenStore:          openStore,
		}, cfg.Etran.Login, cfg.Etran.Password, cfg.Etran.Gzip)
	})

	g.Go(func() error {
		return pipeline.RunWorkerPool(gctx, pipeline.WorkerPoolConfig{
			QueueIn:           queueIn,
			QueueOut:          queueOut,
			Outage:            outage,
			WorkersCount:      cfg.App.WorkersCount,
			SleepOnDos:        cfg.App.SleepOnDos,
			SleepOnDosMax:     cfg.App.SleepOnDosMax,
			SleepOnDisconnect: cfg.App.SleepOnDisconnect,
			RequestTimeout:    cfg.App.RequestTimeout,
			ETRANURL:          cfg.Etran.URL,
			ETRANHeaders:      cfg.Etran.Headers,
			Logger:            logger,
		})
	})

	g.Go(func() error {
		return pipeline.RunConsumer(gctx, pipeline.ConsumerConfig{
			QueueIn:           queueIn,
			QueueOut:          queueOut,
			Outage:            outage,
			SleepOnDisconnect: cfg.App.SleepOnDisconnect,
			Logger:            logger,
			OpenStore:         openStore,
		})
	})

	hb := heartbeat.NewWriter(cfg.App.HeartbeatPath, cfg.App.HeartbeatInterval, logger)
	g.Go(func() error { return hb.Run(gctx) })

	status := func() map[string]any {
		return map[string]any{
			"status":        "ok",
			"queue_in_len":  queueIn.Len(),
			"queue_out_len": queueOut.Len(),
			"etran_is_down": outage.IsDown(),
			"checked_at":    time.Now().Format(time.RFC3339),
		}
	}
	router := control.NewRouter(sleeper, status, logger)
	g.Go(func() error { return control.Serve(gctx, cfg.App.HTTPEndpointPort, router, logger) })

	logger.Info("broker started",
		"workers", cfg.App.WorkersCount,
		"queue_maxsize", cfg.App.QueueMaxSize,
		"http_port", cfg.App.HTTPEndpointPort)

	err = g.Wait()
	if ctx.Err() != nil {
		logger.Info("shutdown complete")
		return nil
	}
	return err
}
