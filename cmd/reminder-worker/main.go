package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/brightclinic/scheduling/internal/config"
	"github.com/brightclinic/scheduling/internal/db"
	"github.com/brightclinic/scheduling/internal/observability/metrics"
	redisclient "github.com/brightclinic/scheduling/internal/redis"
	"github.com/brightclinic/scheduling/internal/scheduling"
	"github.com/brightclinic/scheduling/pkg/logging"
)

const dispatchBatchSize = 100

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("reminder-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("running reminder worker", "env", cfg.Env, "interval", cfg.WorkerInterval.String())

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("redis connection error: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()
	logger.Info("connected to Redis")

	store := scheduling.NewPgStore(pgPool)
	locker := redisclient.NewRedisScheduleLocker(rdb, cfg.LockTTL)
	svc := scheduling.NewService(store, locker, cfg, logger, metrics.NewSchedulingMetrics(nil))
	dispatcher := &scheduling.LogDispatcher{Logger: logger}

	// Run once at startup
	runOnce(rootCtx, svc, dispatcher, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping reminder worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, dispatcher, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *scheduling.Service, dispatcher scheduling.Dispatcher, logger *logging.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	start := time.Now()
	sent, failed, err := svc.DispatchDueReminders(runCtx, dispatcher, dispatchBatchSize)
	if err != nil {
		logger.Error("reminder run error", "error", err)
		return
	}
	logger.Info("reminder run complete", "sent", sent, "failed", failed, "took", time.Since(start).String())
}
