package main // Entry point package

import (
	"context"   // Root context for background workers
	"errors"    // Distinguish a clean server shutdown
	"net/http"  // http.ErrServerClosed
	"os"        // Signals
	"os/signal" // Signal-aware context
	"sync"      // Wait for the consumer on shutdown
	"syscall"   // SIGTERM
	"time"      // Shutdown timeouts

	"github.com/labstack/echo/v4"                      // Echo web framework
	echomw "github.com/labstack/echo/v4/middleware"    // Echo's stock recover middleware
	"github.com/sirupsen/logrus"                       // Structured logging

	"github.com/iliyamo/campus-marketplace/internal/config"     // Environment config
	"github.com/iliyamo/campus-marketplace/internal/database"   // MySQL connection and schema
	"github.com/iliyamo/campus-marketplace/internal/handler"    // HTTP handlers
	"github.com/iliyamo/campus-marketplace/internal/logger"     // Logger construction
	"github.com/iliyamo/campus-marketplace/internal/mailer"     // SMTP notifications
	"github.com/iliyamo/campus-marketplace/internal/metrics"    // Prometheus collectors
	"github.com/iliyamo/campus-marketplace/internal/middleware" // Auth, rate limit, cache, logging
	"github.com/iliyamo/campus-marketplace/internal/queue"      // Reservation event consumer
	"github.com/iliyamo/campus-marketplace/internal/repository" // Data access
	"github.com/iliyamo/campus-marketplace/internal/router"     // Route registration
	"github.com/iliyamo/campus-marketplace/internal/service"    // Reservation manager
)

func main() {
	cfg := config.Load()                          // Load environment config
	log := logger.New(cfg.LogLevel, cfg.LogFormat) // Structured logger for every component

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		log.WithError(err).Fatal("schema migration failed")
	}

	rdb := config.NewRedisClient(log) // nil when Redis is unreachable; limiter and cache then pass through
	if rdb != nil {
		defer rdb.Close()
	}
	mm := metrics.New("marketplace")

	// Repositories
	store := repository.NewBookingStore(db)
	users := repository.NewUserRepo(db)
	reviews := repository.NewReviewRepo(db)
	favorites := repository.NewFavoriteRepo(db)

	// Reservation manager, its event publisher and the periodic expiry sweep
	cacheCfg := config.LoadCacheConfig()
	publisher := service.NewQueuePublisher(cfg.AMQPURL, log)
	manager := service.NewReservationManager(store, publisher, mm, log, cfg.Booking,
		service.WithListingInvalidator(middleware.NewListingCacheInvalidator(cacheCfg, rdb, log)),
	)
	sweeper := service.NewExpirySweeper(manager, cfg.Booking.SweepSchedule, log)
	if err := sweeper.Start(); err != nil {
		log.WithError(err).Fatal("expiry sweeper failed to start")
	}

	// Notification consumer
	var sender queue.Sender = queue.LogSender{Log: log}
	if m := mailer.New(cfg.Mail); m != nil {
		sender = m
	} else {
		log.Warn("SMTP_HOST not set; notification emails are logged only")
	}
	var dedupe queue.Deduper
	if rdb != nil {
		dedupe = queue.NewRedisDeduper(rdb, 24*time.Hour)
	}
	consumer := queue.NewConsumer(cfg.AMQPURL, users, sender, dedupe, mm, log)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("reservation consumer stopped")
		}
	}()

	// HTTP
	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewRequestValidator()
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(log, mm))

	listingHandler := handler.NewListingHandler(store.Listings, log)
	router.RegisterRoutes(e, db, mm.Handler())
	router.RegisterPublic(e, listingHandler, middleware.NewRedisCache(cacheCfg, rdb, log))
	router.RegisterBookings(e,
		handler.NewReservationHandler(manager, store.Reservations, log),
		cfg.JWTSecret,
		middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log),
	)
	router.RegisterMarketplace(e,
		listingHandler,
		handler.NewReviewHandler(store.Listings, store.Reservations, reviews, log),
		handler.NewFavoriteHandler(store.Listings, favorites, log),
		cfg.JWTSecret,
	)

	addr := ":" + cfg.Port
	go func() {
		log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown incomplete")
	}
	sweeper.Stop()
	wg.Wait()
}
