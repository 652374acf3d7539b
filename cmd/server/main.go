package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MoldoAndr/hashbreaker/internal/config"
	"github.com/MoldoAndr/hashbreaker/internal/dispatcher"
	"github.com/MoldoAndr/hashbreaker/internal/metrics"
	"github.com/MoldoAndr/hashbreaker/internal/routes"
	"github.com/MoldoAndr/hashbreaker/internal/store"
	"github.com/MoldoAndr/hashbreaker/pkg/debug"
)

func main() {
	debug.Reinitialize()

	cfg, err := config.Load()
	if err != nil {
		debug.Error("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	jobStore, err := store.NewRedisStore(cfg.RedisURL, cfg.RedisTTL)
	if err != nil {
		debug.Error("Failed to connect to Redis: %v", err)
		os.Exit(1)
	}
	defer jobStore.Close()

	queue, err := dispatcher.NewAMQPQueue(cfg.AMQPURL, cfg.QueuePrefix)
	if err != nil {
		debug.Error("Failed to connect to broker: %v", err)
		os.Exit(1)
	}
	defer queue.Close()

	m := metrics.New()
	router := routes.Setup(cfg, jobStore, queue, m)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		debug.Info("API server listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			debug.Error("Server error: %v", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	debug.Info("Shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		debug.Error("Shutdown error: %v", err)
	}
}
