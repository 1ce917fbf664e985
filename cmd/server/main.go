package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pharmapos/m/internal/api"
	"pharmapos/m/internal/config"
	"pharmapos/m/internal/database"
	"pharmapos/m/internal/events"
	"pharmapos/m/internal/migrations"
	"pharmapos/m/internal/scheduler"
	"pharmapos/m/internal/seed"
	"pharmapos/m/internal/service"
	"pharmapos/m/internal/store"
	"pharmapos/m/internal/store/memstore"
	"pharmapos/m/internal/store/sqlstore"
	"pharmapos/m/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.LogLevel))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)
	for _, warning := range cfg.Warnings() {
		baseLogger.Warn(warning)
	}

	// money goes over the wire as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true

	st, err := openStore(cfg)
	if err != nil {
		baseLogger.Fatal("failed to open store", zap.String("driver", cfg.DatabaseDriver), zap.Error(err))
	}
	defer func() {
		if err := st.Close(); err != nil {
			baseLogger.Error("failed to close store", zap.Error(err))
		}
	}()

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.KafkaEnabled() {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, baseLogger.Named("events.kafka"))
		baseLogger.Info("sale events enabled", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	} else {
		baseLogger.Warn("kafka brokers missing, sale events disabled")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			baseLogger.Error("failed to close event publisher", zap.Error(err))
		}
	}()

	svc := service.New(st, publisher, baseLogger.Named("svc.pharmacy"))

	if _, err := seed.LoadMedicinesFile(context.Background(), svc, cfg.SeedPath, baseLogger.Named("seed")); err != nil {
		baseLogger.Fatal("failed to seed medicine catalogue", zap.Error(err))
	}

	if cfg.StockAlertSchedule != "" {
		sched := scheduler.NewScheduler(svc, cfg.StockAlertSchedule, cfg.ExpiryWarningDays, baseLogger.Named("scheduler"))
		if err := sched.Start(); err != nil {
			baseLogger.Fatal("failed to start scheduler", zap.Error(err))
		}
		defer sched.Stop()
	}

	handler := api.New(svc, baseLogger.Named("api"), api.Options{
		AllowedOrigins:    cfg.AllowedOrigins,
		ExpiryWarningDays: cfg.ExpiryWarningDays,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      handler.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		baseLogger.Info("pharmacy POS server starting", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.DatabaseDriver == config.DriverMemory {
		return memstore.New(), nil
	}

	db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return sqlstore.New(db), nil
}
