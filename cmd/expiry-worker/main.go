// The expiry worker sweeps consultations whose scheduled start has passed
// without payment and marks them EXPIRED, freeing the slot for rebooking.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/caredial/telehealth-platform/internal/config"
	"github.com/caredial/telehealth-platform/internal/consultation"
	"github.com/caredial/telehealth-platform/internal/db"
	"github.com/caredial/telehealth-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel).Component("expiry-worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.DatabaseURL == "" {
		logger.Error("expiry worker requires DATABASE_URL")
		os.Exit(1)
	}

	pool, err := db.ConnectPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	svc := consultation.NewService(consultation.NewRepository(pool), logger)

	interval := cfg.ExpirySweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	logger.Info("expiry worker started", "interval", interval.String())

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sweep(ctx, svc, logger)
			}
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("expiry worker shutting down")
	cancel()
	time.Sleep(2 * time.Second)
}

func sweep(ctx context.Context, svc *consultation.Service, logger *logging.Logger) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	expired, err := svc.ExpireStale(sweepCtx, time.Now().UTC())
	if err != nil {
		logger.Error("expiry sweep failed", "error", err)
		return
	}
	if expired > 0 {
		logger.Info("expired stale consultations", "count", expired)
	}
}
