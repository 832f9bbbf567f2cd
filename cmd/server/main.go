package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/iyobo/jollof-data-arangodb/internal/config"
	"github.com/iyobo/jollof-data-arangodb/internal/handlers"
	"github.com/iyobo/jollof-data-arangodb/internal/middleware"
	"github.com/iyobo/jollof-data-arangodb/internal/records"
	"github.com/iyobo/jollof-data-arangodb/pkg/logger"
)

const (
	// Provisioning every declared schema can take a while on a cold cluster.
	provisionTimeout = 2 * time.Minute

	healthCheckInterval = 30 * time.Second
	shutdownTimeout     = 30 * time.Second
)

// App holds the wired components and their lifecycle.
type App struct {
	configPath string

	config  *config.Config
	logger  *zap.Logger
	factory *records.Factory
	adapter *records.Adapter
	server  *http.Server

	initOnce sync.Once
	initErr  error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	shutdownOnce sync.Once
}

func NewApp(configPath string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		configPath: configPath,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Initialize builds the application once.
func (a *App) Initialize() error {
	a.initOnce.Do(func() {
		a.initErr = a.doInitialize()
	})
	return a.initErr
}

// doInitialize wires logger, config, adapter, schemas and HTTP in that order.
func (a *App) doInitialize() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.config = cfg

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Development); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	a.logger = logger.Get()

	a.logger.Info("configuration loaded",
		zap.String("server_host", cfg.Server.Host),
		zap.Int("server_port", cfg.Server.Port),
		zap.Strings("arango_endpoints", cfg.Arango.Endpoints),
		zap.String("arango_database", cfg.Arango.Database),
		zap.Int("schemas", len(cfg.Schemas)),
	)

	a.factory = records.NewFactory(a.logger, nil)
	a.adapter, err = a.factory.Get(cfg.Arango, cfg.Adapter)
	if err != nil {
		return fmt.Errorf("init record adapter: %w", err)
	}

	if err := a.configureCollections(); err != nil {
		return err
	}

	a.initializeServer()

	a.logger.Info("application initialized")
	return nil
}

func (a *App) configureCollections() error {
	schemas := a.config.SchemaList()
	if len(schemas) == 0 {
		a.logger.Warn("no schemas declared, every record operation will be rejected")
		return nil
	}

	ctx, cancel := context.WithTimeout(a.ctx, provisionTimeout)
	defer cancel()

	n, err := a.adapter.ConfigureAll(ctx, schemas)
	if err != nil {
		return fmt.Errorf("configure collections: %w", err)
	}

	a.logger.Info("collections configured",
		zap.Int("configured", n),
		zap.Int("declared", len(schemas)),
		zap.Strings("collections", a.adapter.Collections()),
	)
	return nil
}

func (a *App) initializeServer() {
	h := handlers.NewRecordsHandler(a.adapter, a.logger)

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.LoggingMiddleware(a.logger))
		r.Use(middleware.RecoveryMiddleware(a.logger))
		r.Use(middleware.TimeoutMiddleware(a.config.Server.RequestTimeout))
		h.Routes(r)
	})

	addr := fmt.Sprintf("%s:%d", a.config.Server.Host, a.config.Server.Port)
	a.server = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: a.config.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// periodicHealthCheck logs the backend state so intermittent network problems
// show up in the logs.
func (a *App) periodicHealthCheck() {
	defer a.wg.Done()

	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(a.ctx, 5*time.Second)
			if err := a.adapter.CheckConnection(ctx); err != nil {
				a.logger.Warn("background health check failed", zap.Error(err))
			} else {
				a.logger.Debug("background health check ok")
			}
			cancel()
		}
	}
}

// Start runs the HTTP server in the background.
func (a *App) Start() error {
	if err := a.Initialize(); err != nil {
		return err
	}

	a.wg.Add(1)
	go a.periodicHealthCheck()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.logger.Info("starting HTTP server", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	return nil
}

// Shutdown drains in-flight requests and closes the backend.
func (a *App) Shutdown() error {
	var shutdownErr error

	a.shutdownOnce.Do(func() {
		a.logger.Info("shutting down")
		a.cancel()

		if a.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			if err := a.server.Shutdown(ctx); err != nil {
				a.logger.Error("failed to stop HTTP server", zap.Error(err))
				shutdownErr = err
			}
			cancel()
		}

		if a.factory != nil {
			if err := a.factory.Close(); err != nil {
				a.logger.Error("failed to close backends", zap.Error(err))
				if shutdownErr == nil {
					shutdownErr = err
				}
			}
		}

		done := make(chan struct{})
		go func() {
			a.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(shutdownTimeout):
			a.logger.Warn("timed out waiting for background jobs")
		}

		a.logger.Info("shutdown complete")
		_ = logger.Sync()
	})

	return shutdownErr
}

func main() {
	configPath := pflag.StringP("config", "c", os.Getenv("APP_CONFIG_PATH"), "path to the YAML config file")
	pflag.Parse()

	app := NewApp(*configPath)

	if err := app.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	if err := app.Shutdown(); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown failed: %v\n", err)
		os.Exit(1)
	}
}
