package cmd

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/plateful/plateful/internal/handlers"
	"github.com/plateful/plateful/internal/loyalty"
	"github.com/plateful/plateful/internal/models"
	"github.com/plateful/plateful/internal/repositories"
	"github.com/plateful/plateful/internal/repositories/memory"
	"github.com/plateful/plateful/internal/repositories/postgres"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the loyalty HTTP API",
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

func loadConfig() *models.Config {
	cfg, err := models.LoadConfig(cfgFile)
	if err != nil {
		log.Printf("No config file loaded, using defaults: %v", err)
		cfg = &models.Config{}
		cfg.ApplyDefaults()
	}
	return cfg
}

func openStore(cfg *models.Config) repositories.Store {
	if cfg.Store == "memory" {
		log.Printf("Using in-memory store")
		return memory.NewStore()
	}
	store, err := postgres.NewStore(context.Background(), &cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	return store
}

func newEventSink(cfg *models.Config) loyalty.EventSink {
	if cfg.KafkaEnabled {
		sink, err := loyalty.NewKafkaSink(cfg)
		if err != nil {
			log.Fatalf("Failed to create Kafka producer: %s", err)
		}
		return sink
	}
	if cfg.EventLogPath != "" {
		return loyalty.NewFileSink(cfg.EventLogPath)
	}
	return &loyalty.ConsoleSink{}
}

func runServe() {
	cfg := loadConfig()

	store := openStore(cfg)
	defer store.Close()

	sink := newEventSink(cfg)
	defer sink.Close()

	gifts := loyalty.NewGiftService(store, cfg, sink)
	coordinator := loyalty.NewStatusCoordinator(store, cfg, gifts, sink)
	events := loyalty.NewEventService(store, cfg, sink)

	router := gin.Default()
	apiHandler := handlers.NewAPIHandler(coordinator, gifts, events, cfg.APITokens)
	apiHandler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	go func() {
		log.Printf("Listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Forced shutdown: %v", err)
	}
}
