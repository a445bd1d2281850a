// Package app wires configuration, stores, services and the HTTP surface
// into one runnable process.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/cinema-booking-core/internal/availability"
	"github.com/iliyamo/cinema-booking-core/internal/booking"
	"github.com/iliyamo/cinema-booking-core/internal/catalog"
	"github.com/iliyamo/cinema-booking-core/internal/config"
	"github.com/iliyamo/cinema-booking-core/internal/database"
	"github.com/iliyamo/cinema-booking-core/internal/handler"
	"github.com/iliyamo/cinema-booking-core/internal/middleware"
	"github.com/iliyamo/cinema-booking-core/internal/model"
	"github.com/iliyamo/cinema-booking-core/internal/payment"
	"github.com/iliyamo/cinema-booking-core/internal/queue"
	"github.com/iliyamo/cinema-booking-core/internal/repository"
	"github.com/iliyamo/cinema-booking-core/internal/router"
)

const shutdownTimeout = 10 * time.Second

// App is the assembled booking service.
type App struct {
	cfg       config.Config
	log       *logrus.Entry
	db        *sqlx.DB
	rdb       *redis.Client
	publisher *queue.Publisher
	consumer  *queue.AuditConsumer

	Echo         *echo.Echo
	Locks        *availability.LockManager
	Sweeper      *availability.Sweeper
	Bookings     *booking.Service
	Confirmation *booking.ConfirmationHandler
	Conflicts    ConflictLister
}

// ConflictLister reads recorded reconciliation conflicts.
type ConflictLister interface {
	List(ctx context.Context, limit int) ([]model.ReconciliationConflict, error)
}

type conflictStore interface {
	booking.ConflictRecorder
	ConflictLister
}

// New connects to the configured backends and builds the object graph.
// Close releases everything New opened.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	a := &App{cfg: cfg, log: logrus.WithField("env", cfg.Env)}
	if err := a.connect(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.build(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) connect(ctx context.Context) error {
	cfg := a.cfg
	if cfg.UsesMySQL() {
		db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			return err
		}
		a.db = db
		if err := database.Migrate(ctx, db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	needRedis := cfg.StoreBackend == config.BackendRedis
	if needRedis || cfg.Cache.Enabled || cfg.RateLimit.Enabled {
		rdb, err := config.NewRedisClient(cfg.Redis)
		switch {
		case err == nil:
			a.rdb = rdb
		case needRedis:
			return err
		default:
			a.log.WithError(err).Warn("redis unavailable; rate limiting and response cache disabled")
		}
	}

	if cfg.RabbitMQURL != "" {
		a.publisher = queue.NewPublisher(cfg.RabbitMQURL)
		a.consumer = queue.NewAuditConsumer(cfg.RabbitMQURL, cfg.AuditLogDir)
	}
	return nil
}

func (a *App) store() availability.Store {
	switch a.cfg.StoreBackend {
	case config.BackendRedis:
		return availability.NewRedisStore(a.rdb)
	case config.BackendMySQL:
		return repository.NewSeatStateRepo(a.db)
	default:
		return availability.NewMemoryStore()
	}
}

func (a *App) catalog() (catalog.Provider, error) {
	if a.cfg.CatalogSource == config.CatalogMySQL {
		return repository.NewCatalogRepo(a.db), nil
	}
	static, err := catalog.LoadFile(a.cfg.CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return static, nil
}

func (a *App) build() error {
	cfg := a.cfg

	shows, err := a.catalog()
	if err != nil {
		return err
	}
	shows = catalog.NewCached(shows, cfg.CatalogCacheTTL, nil)

	gateway, err := payment.NewHostedCheckout(cfg.PaymentCheckoutURL, cfg.PaymentCallbackSecret)
	if err != nil {
		return err
	}

	var (
		bookings  booking.Repository
		conflicts conflictStore
	)
	if a.db != nil {
		bookings = repository.NewBookingRepo(a.db)
		conflicts = repository.NewConflictRepo(a.db)
	} else {
		bookings = repository.NewMemoryBookingRepo()
		conflicts = repository.NewMemoryConflictRepo()
	}
	var events booking.EventPublisher
	if a.publisher != nil {
		events = a.publisher
	}

	a.Locks = availability.NewLockManager(a.store(),
		availability.WithHoldTTL(cfg.HoldTTL),
		availability.WithMaxHoldTTL(cfg.HoldMaxTTL),
	)
	a.Bookings = booking.NewService(bookings, a.Locks, shows, gateway, booking.WithMaxSeats(cfg.BookingMaxSeats))
	a.Confirmation = booking.NewConfirmationHandler(bookings, a.Locks, conflicts, events)
	a.Sweeper = availability.NewSweeper(a.Locks, cfg.SweepInterval, a.Bookings.SweepHook)
	a.Conflicts = conflicts

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.Use(echomw.RequestID())
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(a.log))

	router.RegisterRoutes(e)
	router.RegisterPublic(e,
		handler.NewShowHandler(availability.NewSnapshotReader(shows, a.Locks), shows),
		middleware.NewRedisCache(cfg.Cache, a.rdb),
	)
	router.RegisterCustomer(e,
		handler.NewBookingHandler(a.Bookings),
		cfg.JWTSecret,
		middleware.NewTokenBucket(cfg.RateLimit, a.rdb),
	)
	router.RegisterPayments(e, handler.NewPaymentHandler(a.Confirmation), cfg.PaymentCallbackSecret)
	a.Echo = e
	return nil
}

// Run serves HTTP, runs the expiry sweeper and, when a broker is
// configured, the audit consumer.  It returns after ctx is cancelled and
// the server has shut down.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.Sweeper.Run(ctx)
	})

	if a.consumer != nil {
		g.Go(func() error {
			return a.consumer.Run(ctx)
		})
	}

	g.Go(func() error {
		addr := ":" + a.cfg.Port
		a.log.WithField("addr", addr).Info("server starting")
		err := a.Echo.Start(addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.Echo.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Close releases connections opened by New.
func (a *App) Close() {
	if a.publisher != nil {
		_ = a.publisher.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
