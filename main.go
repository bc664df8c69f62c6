package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ajvera/storeguard-be/internal/api"
	"github.com/ajvera/storeguard-be/internal/config"
	"github.com/ajvera/storeguard-be/internal/database"
	"github.com/ajvera/storeguard-be/internal/dispatch"
	"github.com/ajvera/storeguard-be/internal/evaluator"
	"github.com/ajvera/storeguard-be/internal/logger"
	"github.com/ajvera/storeguard-be/internal/monitoring"
	"github.com/ajvera/storeguard-be/internal/pipeline"
	"github.com/ajvera/storeguard-be/internal/push"
	"github.com/ajvera/storeguard-be/internal/services"
	"github.com/ajvera/storeguard-be/internal/websocket"
	"github.com/rs/zerolog/log"
)

func main() {
	logger.Init()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Set up database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply database migrations")
	}

	// Set up the realtime bridge
	bridge := websocket.NewBridge()

	// Set up services
	eventService := services.NewEventService(db, cfg.QueryTimeout)
	storeService := services.NewStoreService(db)
	ruleService := services.NewRuleService(db)
	alertService := services.NewAlertService(db, eventService)
	notificationService := services.NewNotificationService(db)
	userService := services.NewUserService(db)

	// Rule evaluation and alert dispatch
	eval := evaluator.New(eventService, ruleService)

	var sender push.Sender
	if cfg.PushGatewayURL != "" {
		sender = push.NewClient(cfg.PushGatewayURL, cfg.PushGatewayKey, cfg.PushTimeout)
	}

	dispatcher := dispatch.NewDispatcher(notificationService, alertService, bridge, sender, cfg.PushTimeout)
	pipe := pipeline.New(eventService, storeService, eval, alertService, dispatcher, bridge)

	// Deliver alerts a previous run left open.
	go func() {
		if _, err := pipe.RedeliverOpen(context.Background(), 500); err != nil {
			log.Error().Err(err).Msg("Failed to redeliver open alerts at startup")
		}
	}()

	// Host monitor feeding the appliance's own store, when one is configured
	var monitor *monitoring.SystemMonitor
	if cfg.MonitorStoreID != "" {
		monitor = monitoring.NewSystemMonitor(monitoring.NewHostSampler(""), pipe, cfg.MonitorStoreID)
		go monitor.Run()
	}

	// Set up and run the retention sweeper
	sweeper, err := monitoring.NewRetentionSweeper(eventService, alertService, notificationService, pipe, cfg.RetentionCron, cfg.RetentionDays)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up the retention sweeper")
	}
	go sweeper.Run()

	// Set up router
	router := api.NewRouter(api.Deps{
		Config:        cfg,
		Ingestor:      pipe,
		Events:        eventService,
		Stores:        storeService,
		Rules:         ruleService,
		Alerts:        alertService,
		Notifications: notificationService,
		Users:         userService,
		Notifier:      dispatcher,
		Bridge:        bridge,
		Monitor:       monitor,
	})

	// Set up server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.ServerPort),
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		log.Info().Int("port", cfg.ServerPort).Msg("Server starting")
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	if monitor != nil {
		monitor.Stop()
	}
	sweeper.Stop()
	pipe.Stop()
	dispatcher.Wait()

	log.Info().Msg("Server exiting")
}
