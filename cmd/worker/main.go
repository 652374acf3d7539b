package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/MoldoAndr/hashbreaker/internal/config"
	"github.com/MoldoAndr/hashbreaker/internal/cracking"
	"github.com/MoldoAndr/hashbreaker/internal/dispatcher"
	"github.com/MoldoAndr/hashbreaker/internal/generator"
	"github.com/MoldoAndr/hashbreaker/internal/hashcat"
	"github.com/MoldoAndr/hashbreaker/internal/metrics"
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
	engine := hashcat.NewExecutor(cfg.HashcatPath, cfg.HashcatForce, cfg.HashcatPotfileDisable)
	gen := generator.NewHTTPGenerator(cfg.GeneratorURL)
	runner := cracking.NewPhaseRunner(cfg, engine, gen)
	pipeline := cracking.NewPipeline(cfg, jobStore, m, runner)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	run := dispatcher.RunnerFunc(func(ctx context.Context, task dispatcher.Task) error {
		_, err := pipeline.Execute(ctx, task.JobID, task.Hash, task.HashTypeID, task.TimeoutSeconds)
		return err
	})

	if err := queue.Consume(ctx, run, cfg.WorkerConcurrency, cfg.WorkerKillTimeout); err != nil {
		debug.Error("Failed to start consumer: %v", err)
		os.Exit(1)
	}
	debug.Info("Worker running (%d concurrent jobs)", cfg.WorkerConcurrency)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	debug.Info("Worker shutting down")
	cancel()
}
