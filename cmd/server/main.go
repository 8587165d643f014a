package main // Entry point package

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
	"github.com/labstack/echo/v4"

	"github.com/staybook/hotel-reservations/internal/config"
	"github.com/staybook/hotel-reservations/internal/database"
	"github.com/staybook/hotel-reservations/internal/gateway"
	"github.com/staybook/hotel-reservations/internal/handler"
	"github.com/staybook/hotel-reservations/internal/middleware"
	"github.com/staybook/hotel-reservations/internal/queue"
	"github.com/staybook/hotel-reservations/internal/repository"
	"github.com/staybook/hotel-reservations/internal/router"
	"github.com/staybook/hotel-reservations/internal/scheduler"
	"github.com/staybook/hotel-reservations/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env vars win
	cfg := config.Load()
	log := config.NewLogger(cfg)

	db, err := database.Open(cfg)
	if err != nil {
		log.WithError(err).Fatal("database: connect failed")
	}
	defer db.Close()
	if cfg.MigrateOnStart {
		if err := database.Migrate(db); err != nil {
			log.WithError(err).Fatal("database: migrations failed")
		}
		log.Info("database: migrations applied")
	}

	// Repositories
	reservations := repository.NewReservationRepo(db)
	hotels := repository.NewHotelRepo(db, reservations, cfg.BookingLockWait)
	users := repository.NewUserRepo(db)

	// Collaborators
	gw := gateway.NewStripe(gateway.Config{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		RefreshURL:    cfg.StripeRefreshURL,
		ReturnURL:     cfg.StripeReturnURL,
		APIBaseURL:    cfg.StripeAPIBase,
	}, log)
	publisher := queue.NewPublisher(cfg.AMQPURL, log)
	defer publisher.Close()

	// Services
	availability := service.NewAvailabilityService(hotels, log)
	booking := service.NewBookingService(hotels, publisher, service.RetryPolicy{
		MaxAttempts:     cfg.BookingMaxAttempts,
		InitialInterval: cfg.BookingRetryInitial,
	}, log)
	lifecycle := service.NewLifecycleService(reservations, publisher, log)
	provisioning := service.NewProvisioningService(users, gw, log)
	checkout := service.NewCheckoutService(booking, hotels, reservations, users, provisioning, gw,
		service.PaymentConfig{FeeRate: cfg.PlatformFeeRate, Currency: cfg.Currency}, log)
	reservationSvc := service.NewReservationService(lifecycle, hotels, gw, log)
	cards := service.NewCardService(users, provisioning, gw, log)

	// HTTP
	rdb := config.NewRedisClient(config.LoadRedisConfig(), log)
	if rdb != nil {
		defer rdb.Close()
	}
	limit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log)
	cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb, log)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestLogger(log))

	resHandler := handler.NewReservationHandler(checkout, reservationSvc, log)
	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, provisioning, log), cfg.JWTSecret, limit)
	router.RegisterPublic(e, handler.NewAvailabilityHandler(availability, log), cache)
	router.RegisterReservations(e, resHandler, cfg.JWTSecret, limit)
	router.RegisterHotelierReservations(e, resHandler, cfg.JWTSecret)
	router.RegisterCards(e, handler.NewCardHandler(cards, log), cfg.JWTSecret)
	router.RegisterConnect(e, handler.NewConnectHandler(provisioning, log), cfg.JWTSecret)
	router.RegisterPayments(e, handler.NewWebhookHandler(gw, lifecycle, log))

	// Background workers
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		scheduler.NewSweeper(lifecycle, cfg.SweepInterval, log).Start(ctx)
	}()
	if cfg.ConsumerEnabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := queue.NewConsumer(cfg.AMQPURL, cfg.AuditLogPath, log).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("reservation-consumer stopped")
			}
		}()
	}

	addr := ":" + cfg.Port
	go func() {
		log.WithField("addr", addr).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http shutdown failed")
	}
	wg.Wait()
}
