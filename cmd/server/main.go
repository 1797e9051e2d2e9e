package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/gareci/bus-reservation/internal/cache"
	"github.com/gareci/bus-reservation/internal/config"
	"github.com/gareci/bus-reservation/internal/database"
	"github.com/gareci/bus-reservation/internal/handler"
	"github.com/gareci/bus-reservation/internal/queue"
	"github.com/gareci/bus-reservation/internal/repository"
	"github.com/gareci/bus-reservation/internal/router"
	"github.com/gareci/bus-reservation/internal/service"
)

func main() {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}
	configureLogger(log, cfg.Log)

	db, err := database.Open(database.Options{
		User:            cfg.DB.User,
		Pass:            cfg.DB.Pass,
		Host:            cfg.DB.Host,
		Port:            cfg.DB.Port,
		Name:            cfg.DB.Name,
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	})
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer db.Close()
	log.Info("database connection established")

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb == nil {
		log.WithField("addr", cfg.Redis.Addr).Warn("redis unavailable: rate limiting, idempotency keys and reminder de-duplication disabled")
	} else {
		defer rdb.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	var notifier service.Notifier
	if cfg.RabbitMQ.Enabled {
		pub := queue.NewRabbitPublisher(cfg.RabbitMQ.URL, log)
		defer pub.Close()
		dispatcher := queue.NewDispatcher(pub, log, cfg.RabbitMQ.BufferSize)
		g.Go(func() error { return dispatcher.Run(ctx) })
		notifier = dispatcher
	} else {
		log.Warn("RABBITMQ_ENABLED=false: reservation notifications disabled")
	}

	opts := []service.Option{service.WithLocation(cfg.Location())}
	tx := database.NewTxManager(db)
	departures := repository.NewDepartureRepo(db)
	reservations := repository.NewReservationRepo(db)
	users := repository.NewUserRepo(db)
	paymentRepo := repository.NewPaymentRepo(db)

	policies := service.NewPolicyResolver(repository.NewPolicyRepo(db), tx, log, cfg.Workers.PolicyCacheTTL, opts...)
	availability := service.NewAvailabilityCalculator(departures, reservations, log)
	admission := service.NewAdmissionController(service.AdmissionDeps{
		Tx:           tx,
		Departures:   departures,
		Reservations: reservations,
		Policies:     policies,
		Availability: availability,
		Staff:        users,
		Notifier:     notifier,
		Log:          log,
	}, opts...)
	lifecycle := service.NewLifecycleMutator(service.LifecycleDeps{
		Tx:           tx,
		Departures:   departures,
		Reservations: reservations,
		Policies:     policies,
		Notifier:     notifier,
		Log:          log,
	}, opts...)
	payments := service.NewPaymentService(service.PaymentDeps{
		Tx:           tx,
		Reservations: reservations,
		Payments:     paymentRepo,
		Notifier:     notifier,
		Log:          log,
	}, opts...)
	queries := service.NewReservationQueries(reservations, paymentRepo)
	sweeper := service.NewExpirySweeper(reservations, lifecycle, log, cfg.Workers.SweepBatch, cfg.Workers.SweepInterval, opts...)

	var marker service.OnceMarker
	if rdb != nil {
		marker = cache.NewMarker(rdb, "gareci")
	}
	reminders := service.NewReminderService(reservations, departures, marker, notifier, log, cfg.Workers.ReminderInterval, opts...)

	e := router.New(router.Handlers{
		Health:       handler.Health(db),
		Auth:         handler.NewAuthHandler(cfg, users, log),
		Availability: handler.NewAvailabilityHandler(availability, log),
		Customer:     handler.NewCustomerHandler(admission, queries, lifecycle, payments, log),
		Staff:        handler.NewStaffHandler(lifecycle, queries, sweeper, policies, log),
	}, router.Deps{Cfg: cfg, Redis: rdb, Log: log})

	g.Go(func() error { return sweeper.Run(ctx) })
	g.Go(func() error { return reminders.Run(ctx) })
	g.Go(func() error {
		addr := ":" + cfg.Port
		log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
	log.Info("server stopped")
}

func configureLogger(log *logrus.Logger, c config.LogConfig) {
	if c.JSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		log.WithField("level", c.Level).Warn("invalid log level, using info")
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
}
