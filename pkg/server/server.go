// Package server exposes the console screens and actions over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"proxyconsole/pkg/config"
	"proxyconsole/pkg/history"
	"proxyconsole/pkg/log"
	"proxyconsole/pkg/state"
	"proxyconsole/pkg/status"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	shutdownTimeout = 10

	maxBodySize = "1M"
)

// Options wires the collaborators of a ConsoleServer.
type Options struct {
	// ConfigPath is where PUT /api/config saves. Empty disables saving.
	ConfigPath string
	Config     *config.Config
	State      *state.AppState
	Monitor    *status.Monitor
	// History is optional; without it runs are not journaled.
	History *history.Store
	Version string
}

// ConsoleServer serves the console API.
type ConsoleServer struct {
	echo       *echo.Echo
	version    string
	configPath string
	state      *state.AppState
	monitor    *status.Monitor
	history    *history.Store

	mu  sync.RWMutex
	cfg *config.Config

	// busy serialises diagnostics and quota refreshes so the loading flag
	// reflects a single operation.
	busy sync.Mutex
}

// NewConsoleServer creates the server and registers its routes.
func NewConsoleServer(opts Options) *ConsoleServer {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}

	cs := &ConsoleServer{
		echo:       echo.New(),
		version:    opts.Version,
		configPath: opts.ConfigPath,
		state:      opts.State,
		monitor:    opts.Monitor,
		history:    opts.History,
		cfg:        cfg.Clone(),
	}
	cs.setupRoutes()
	return cs
}

// Handler returns the HTTP handler, mainly for tests.
func (cs *ConsoleServer) Handler() http.Handler {
	return cs.echo
}

func (cs *ConsoleServer) config() *config.Config {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.cfg.Clone()
}

// Start serves on addr until SIGINT or SIGTERM, then shuts down.
func (cs *ConsoleServer) Start(addr string) error {
	if cs.monitor != nil {
		cs.monitor.Start()
	}

	go func() {
		log.Info().
			Str("addr", addr).
			Str("config", cs.configPath).
			Str("version", cs.version).
			Msg("Starting console server")

		if err := cs.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server startup failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	return cs.Shutdown()
}

// Shutdown stops the HTTP server, the status monitor and the journal.
func (cs *ConsoleServer) Shutdown() error {
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout*time.Second)
	defer cancel()

	if err := cs.echo.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
		return err
	}

	if cs.monitor != nil {
		cs.monitor.Stop()
	}

	if cs.history != nil {
		if err := cs.history.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close diagnostics journal")
		}
	}

	log.Info().Msg("Server gracefully stopped")
	return nil
}

func (cs *ConsoleServer) setupRoutes() {
	cs.echo.HideBanner = true
	cs.echo.HidePort = true

	if cs.config().Logging.EnableRequestLog {
		cs.echo.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
			Format: "${time_rfc3339} ${status} ${method} ${uri} (${latency_human})\n",
		}))
	}
	cs.echo.Use(middleware.Recover())
	cs.echo.Use(middleware.BodyLimit(maxBodySize))

	api := cs.echo.Group("/api")
	api.GET("/state", cs.getState)
	api.PUT("/state/serviceStatus", cs.applyServiceStatus)
	api.PUT("/state/quotaInfo", cs.applyQuotaInfo)
	api.POST("/state/testResults", cs.applyTestResult)
	api.GET("/routes", cs.getRoutes)
	api.GET("/config", cs.getConfig)
	api.PUT("/config", cs.putConfig)
	api.POST("/service/check", cs.checkService)
	api.POST("/quota/refresh", cs.refreshQuota)
	api.POST("/diagnostics", cs.runDiagnostics)
	api.DELETE("/diagnostics", cs.clearDiagnostics)
	api.GET("/diagnostics/history", cs.listHistory)
	api.GET("/diagnostics/history/:id", cs.getHistoryRun)
	api.POST("/shapes/:shape", cs.decodeShape)

	// Screens resolve through the route table, which owns case folding and
	// trailing slashes.
	cs.echo.GET("/", cs.serveScreen)
	cs.echo.GET("/*", cs.serveScreen)
}

func errorJSON(ctx echo.Context, code int, msg string) error {
	return ctx.JSON(code, map[string]string{"error": msg})
}
