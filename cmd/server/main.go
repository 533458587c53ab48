package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/hotel-reservation/internal/config"
	"github.com/iliyamo/hotel-reservation/internal/database"
	"github.com/iliyamo/hotel-reservation/internal/handler"
	"github.com/iliyamo/hotel-reservation/internal/payment"
	"github.com/iliyamo/hotel-reservation/internal/queue"
	"github.com/iliyamo/hotel-reservation/internal/repository"
	"github.com/iliyamo/hotel-reservation/internal/router"
	"github.com/iliyamo/hotel-reservation/internal/service"
	"github.com/iliyamo/hotel-reservation/internal/sweeper"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()
	cfg := config.Load()
	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.WithError(err).Fatal("database unavailable")
	}
	defer db.Close()
	if cfg.Migrate {
		if err := database.Migrate(ctx, db); err != nil {
			log.WithError(err).Fatal("schema migration failed")
		}
	}

	rdb := config.NewRedisClient(log)
	if rdb != nil {
		defer rdb.Close()
	}

	reservations := repository.NewReservationRepo(db)
	rooms := repository.NewRoomRepo(db)
	promotions := repository.NewPromotionRepo(db)

	var notifier service.Notifier = queue.LogNotifier{Log: log}
	var wg sync.WaitGroup
	if cfg.RabbitURL != "" {
		pub := queue.NewPublisher(cfg.RabbitURL, cfg.NotificationQueue, log)
		defer pub.Close()
		notifier = pub

		consumer := &queue.Consumer{URL: cfg.RabbitURL, Queue: cfg.NotificationQueue, Dir: cfg.NotificationDir, Log: log}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("notification consumer stopped")
			}
		}()
	} else {
		log.Warn("RABBITMQ_URL not set, notifications are only logged")
	}

	lifecycle := service.NewLifecycle(service.LifecycleDeps{
		Store:      reservations,
		Rooms:      rooms,
		Promotions: promotions,
		Pricer:     service.NewPricer(service.PercentTax(cfg.TaxPercent), nil),
		Notifier:   notifier,
		Logger:     log,
	})

	resHandler := handler.NewReservationHandler(lifecycle, nil, log)
	var payHandler *handler.PaymentHandler
	if cfg.StripeSecretKey != "" {
		gateway := payment.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
		deps := payment.Deps{
			Store:     reservations,
			Confirmer: lifecycle,
			Gateway:   gateway,
			Currency:  cfg.PaymentCurrency,
			Logger:    log,
		}
		if cfg.StripeWebhookSecret != "" {
			deps.Verifier = gateway
		}
		payments := payment.NewService(deps)
		resHandler = handler.NewReservationHandler(lifecycle, payments, log)
		payHandler = handler.NewPaymentHandler(resHandler, payments, log)
	} else {
		log.Warn("STRIPE_SECRET_KEY not set, payment endpoints disabled")
	}

	sw := sweeper.New(sweeper.Config{
		Store:     reservations,
		Lifecycle: lifecycle,
		Notifier:  notifier,
		Dedupe:    newDeduper(rdb),
		Interval:  cfg.SweepInterval,
		LockTTL:   cfg.SweepLockTTL,
		Logger:    log,
	})
	sw.Start(ctx)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(requestLogger(log))
	router.RegisterRoutes(e, router.Deps{
		Reservations: resHandler,
		Payments:     payHandler,
		DB:           db,
		JWTSecret:    cfg.JWTSecret,
		Redis:        rdb,
		Cache:        config.LoadCacheConfig(),
		RateLimit:    config.LoadRateLimitConfig(),
		Log:          log,
	})

	go func() {
		addr := ":" + cfg.Port
		log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	sw.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
	wg.Wait()
}

func newLogger(cfg config.Config) *logrus.Logger {
	log := logrus.New()
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}
	if cfg.Env == "prod" || cfg.Env == "production" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log
}

// newDeduper shares sweep locks and reminder keys through Redis when it
// is available, so several instances do not double-notify.
func newDeduper(rdb *redis.Client) sweeper.Deduper {
	if rdb == nil {
		return sweeper.NewMemoryDeduper(nil)
	}
	return sweeper.RedisDeduper{RDB: rdb, Prefix: "hotel:"}
}

func requestLogger(log *logrus.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			entry := log.WithFields(logrus.Fields{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"request_id": v.RequestID,
			})
			if v.Error != nil {
				entry.WithError(v.Error).Warn("request")
				return nil
			}
			entry.Info("request")
			return nil
		},
	})
}
