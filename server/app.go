package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"brewlink/config"
	"brewlink/internal/commands"
	"brewlink/internal/db"
	"brewlink/internal/devauth"
	"brewlink/internal/fixtures"
	"brewlink/internal/health"
	"brewlink/internal/inventory"
	"brewlink/internal/logs"
	"brewlink/internal/memstore"
	"brewlink/internal/middleware"
	"brewlink/internal/repo"
	"brewlink/internal/telemetry"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

var ErrNotInitialized = errors.New("server not initialized (call Initialize(cfg) first)")

// Stores is the persistence the device endpoints run on: gorm repos or one memstore.
type Stores struct {
	Devices   devauth.DeviceLookup
	Commands  commands.Store
	Telemetry telemetry.Store
	Inventory inventory.Store
}

type App struct {
	cfg        *config.Config
	Router     *mux.Router
	httpServer *http.Server

	db  *gorm.DB
	mem *memstore.Store
}

func (a *App) Initialize(cfg *config.Config) error {
	a.cfg = cfg

	// 1) Логи
	logs.Init(logs.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})

	// 2) БД (опционально; без драйвера работаем на памяти)
	stores, err := a.openStores(context.Background())
	if err != nil {
		return err
	}

	// 3) Роутер + middleware
	a.Router = mux.NewRouter()
	a.Router.Use(middleware.RequestID)
	a.Router.Use(middleware.Recoverer)
	a.Router.Use(middleware.LoggerMW)

	// 4) Health
	if a.db != nil {
		health.RegisterRoutesWithDB(a.Router, a.db)
	} else {
		health.RegisterRoutes(a.Router)
	}

	// 5) Устройства: одна проверка подписи на все ручки
	auth := devauth.NewAuthenticator(stores.Devices, cfg.Auth.MaxSkew)
	requireDevice := auth.RequireDevice(cfg.Server.MaxBodyBytes)

	queue := commands.NewQueue(stores.Commands, cfg.Commands.ClaimAttempts, cfg.Commands.AckStatuses)
	commands.NewHTTP(queue, requireDevice).RegisterRoutes(a.Router)

	recorder := telemetry.NewRecorder(stores.Telemetry, cfg.Telemetry.DefaultIntervalS)
	telemetry.NewHTTP(recorder, requireDevice).RegisterRoutes(a.Router)

	engine := inventory.NewEngine(stores.Inventory)
	inventory.NewHTTP(engine, requireDevice).RegisterRoutes(a.Router)

	_ = a.Router.Walk(func(rt *mux.Route, r *mux.Router, ancestors []*mux.Route) error {
		path, _ := rt.GetPathTemplate()
		methods, _ := rt.GetMethods()
		logs.Logger.Debugf("route: %-6v %s", methods, path)
		return nil
	})
	return nil
}

// Memory returns the in-memory store when no database is configured, else nil.
func (a *App) Memory() *memstore.Store { return a.mem }

func (a *App) openStores(ctx context.Context) (Stores, error) {
	var set *fixtures.Set
	if path := a.cfg.Database.Fixtures; path != "" {
		s, err := fixtures.Load(path)
		if err != nil {
			return Stores{}, err
		}
		set = s
	}

	if a.cfg.Database.Driver == "" {
		logs.Logger.Warn("database.driver is empty: using the in-memory store, data is lost on restart")
		a.mem = memstore.New()
		if set != nil {
			if err := a.mem.Seed(ctx, set); err != nil {
				return Stores{}, fmt.Errorf("seed fixtures: %w", err)
			}
		}
		return Stores{Devices: a.mem, Commands: a.mem, Telemetry: a.mem, Inventory: a.mem}, nil
	}

	d, err := db.Open(a.cfg.Database.Driver, a.cfg.Database.DSN)
	if err != nil {
		return Stores{}, fmt.Errorf("db open: %w", err)
	}
	a.db = d

	if a.cfg.Database.AutoMigrate {
		if err := db.Migrate(a.db); err != nil {
			return Stores{}, fmt.Errorf("db migrate: %w", err)
		}
	}
	if set != nil {
		if err := repo.Seed(ctx, a.db, set); err != nil {
			return Stores{}, fmt.Errorf("seed fixtures: %w", err)
		}
	}
	return Stores{
		Devices:   repo.NewDeviceStore(a.db),
		Commands:  repo.NewCommandStore(a.db),
		Telemetry: repo.NewTelemetryStore(a.db),
		Inventory: repo.NewInventoryStore(a.db),
	}, nil
}

// Run serves until SIGINT/SIGTERM or ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	if a.Router == nil || a.cfg == nil {
		return ErrNotInitialized
	}
	bind := net.JoinHostPort(a.cfg.Server.Address, a.cfg.Server.HTTPPort)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.httpServer = &http.Server{
		Addr:         bind,
		Handler:      a.Router,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  a.cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logs.Logger.Infof("HTTP listening on %s", bind)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logs.Logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if a.db != nil {
		if sqlDB, dbErr := a.db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
	}
	return err
}
