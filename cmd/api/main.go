package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/caredial/telehealth-platform/internal/api/router"
	"github.com/caredial/telehealth-platform/internal/availability"
	appconfig "github.com/caredial/telehealth-platform/internal/config"
	"github.com/caredial/telehealth-platform/internal/consultation"
	"github.com/caredial/telehealth-platform/internal/db"
	"github.com/caredial/telehealth-platform/internal/doctors"
	"github.com/caredial/telehealth-platform/internal/notify"
	"github.com/caredial/telehealth-platform/internal/observability/metrics"
	"github.com/caredial/telehealth-platform/internal/payments"
	"github.com/caredial/telehealth-platform/internal/redisclient"
	"github.com/caredial/telehealth-platform/internal/slotlock"
	"github.com/caredial/telehealth-platform/internal/video"
	"github.com/caredial/telehealth-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting caredial API server", "env", cfg.Env, "port", cfg.Port)

	ctx := context.Background()

	pool, err := db.ConnectPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Slot locking degrades to the DB constraint alone when Redis is
	// absent or unreachable.
	var locks slotlock.Manager = slotlock.Noop{}
	if cfg.RedisAddr != "" {
		redisClient, err := redisclient.New(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			logger.Warn("redis unreachable, slot locking disabled", "error", err)
		} else {
			defer func() { _ = redisClient.Close() }()
			locks = slotlock.NewRedisManager(redisClient, cfg.SlotLockTTL, logger.Component("slotlock"))
		}
	}

	bookingMetrics := metrics.NewBookingMetrics(prometheus.DefaultRegisterer)

	doctorRepo := doctors.NewRepository(pool)
	consultationRepo := consultation.NewRepository(pool)
	paymentRepo := payments.NewRepository(pool)
	videoRepo := video.NewRepository(pool)

	consultationSvc := consultation.NewService(consultationRepo, logger.Component("consultation"))
	availabilitySvc := availability.NewService(doctorRepo, consultationRepo, cfg.BookingHorizonDays, logger.Component("availability"))

	checkoutClient := payments.NewProviderClient(
		cfg.PaymentAccessToken, cfg.PaymentBaseURL,
		cfg.PaymentSuccessURL, cfg.PaymentCancelURL,
		logger.Component("payments"),
	)
	paymentSvc := payments.NewService(
		paymentRepo, consultationRepo, checkoutClient, locks,
		cfg.PriceCents, logger.Component("payments"),
	).WithMetrics(bookingMetrics)

	sender := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger.Component("notify"))
	if sender != nil {
		confirmer := notify.NewConfirmer(sender, notify.NewUserDirectory(pool), doctorRepo, logger.Component("notify"))
		paymentSvc = paymentSvc.WithNotifier(confirmer)
	}

	videoProvider := video.NewProviderClient(cfg.VideoAPIKey, cfg.VideoBaseURL, logger.Component("video"))
	videoSvc := video.NewService(
		videoRepo, consultationRepo, videoProvider,
		time.Duration(cfg.VideoRoomExpiryMins)*time.Minute,
		logger.Component("video"),
	).WithMetrics(bookingMetrics)

	r := router.New(&router.Config{
		Logger:              logger,
		JWTSecret:           cfg.JWTSecret,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		AvailabilityHandler: availability.NewHandler(availabilitySvc, logger),
		ConsultationHandler: consultation.NewHandler(consultationSvc, logger),
		PaymentsHandler:     payments.NewHandler(paymentSvc, logger),
		PaymentsWebhook:     payments.NewWebhookHandler(cfg.PaymentWebhookKey, paymentSvc, bookingMetrics, logger),
		VideoHandler:        video.NewHandler(videoSvc, logger),
		MetricsHandler:      promhttp.Handler(),
		HealthCheck: func(w http.ResponseWriter, r *http.Request) {
			if err := pool.Ping(r.Context()); err != nil {
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		},
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
