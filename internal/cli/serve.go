package cli

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"github.com/nimbl/backend/internal/api"
	"github.com/nimbl/backend/internal/config"
	"github.com/nimbl/backend/internal/session"
	"github.com/nimbl/backend/internal/share"
	"github.com/nimbl/backend/internal/web"
)

// shutdownTimeout bounds draining requests and saving open sessions.
const shutdownTimeout = 15 * time.Second

func (c *CLI) serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := c.loadConfig()
			if err != nil {
				return err
			}
			return c.runServer(cmd.Context(), cfg, path)
		},
	}
}

func (c *CLI) runServer(ctx context.Context, cfg *config.AppConfig, configPath string) error {
	logger := c.Logger

	a, err := openApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("closing response database", "err", err)
		}
	}()

	sessionMgr := session.NewManager(a.forms, a.model, session.Options{
		MaxSessions:      cfg.Session.MaxSessions,
		AutosaveDebounce: cfg.AutosaveDebounce(),
		Interaction:      cfg.InteractionOptions(),
	}, logger)

	// Start background session cleanup
	if interval := cfg.CleanupInterval(); interval > 0 {
		go c.cleanupSessions(ctx, sessionMgr, interval, cfg.SessionTimeout())
	}

	linker := share.NewLinker(cfg.Share.PublicBaseURL, cfg.Server.Port, cfg.Share.QRSize)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	api.SetupErrorHandling(e, logger, logger.GetLevel() <= LogDebug)
	configureMiddleware(e, cfg)

	api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
		Forms:        a.forms,
		Responses:    a.answers,
		Templates:    a.templates,
		SessionMgr:   sessionMgr,
		Linker:       linker,
		Version:      version,
		MaxWSMessage: cfg.Advanced.WebSocketMaxMessageKB,
		Logger:       logger,
	}))

	if web.HasEmbeddedFiles() {
		if err := web.RegisterStaticRoutes(e); err != nil {
			logger.Warn("failed to register public form page", "err", err)
		}
	}

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	logger.Info("nimbl server starting",
		"version", version,
		"listen", "http://"+cfg.GetServerAddr(),
		"config", configPath,
		"data", cfg.Storage.DataDirectory,
		"public", linker.BaseURL())

	errCh := make(chan error, 1)
	go func() {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down", "sessions", sessionMgr.Count())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "err", err)
	}
	sessionMgr.CloseAll(shutdownCtx)
	return nil
}

// cleanupSessions sweeps idle sessions every interval until ctx ends.
func (c *CLI) cleanupSessions(ctx context.Context, mgr *session.Manager, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := mgr.CleanupOldSessions(maxAge); n > 0 {
				c.Logger.Debug("session cleanup", "removed", n, "open", mgr.Count())
			}
		}
	}
}

// isLiveEditPath matches the WebSocket endpoint, which must not be wrapped by
// the timeout or gzip writers.
func isLiveEditPath(path string) bool {
	return strings.HasSuffix(path, "/ws")
}

func configureMiddleware(e *echo.Echo, cfg *config.AppConfig) {
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			// Skip logging if disabled in config
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/keepalive") ||
				strings.HasSuffix(path, "/pointer/move") ||
				path == "/api/health"
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 * 1024,
	}))

	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		Skipper: func(c echo.Context) bool {
			return isLiveEditPath(c.Request().URL.Path)
		},
		ErrorMessage: "Request timeout",
	}))

	if cfg.Server.EnableCompression {
		e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
			Level: cfg.Server.CompressionLevel,
			Skipper: func(c echo.Context) bool {
				path := c.Request().URL.Path
				return isLiveEditPath(path) || strings.HasSuffix(path, "/qr")
			},
		}))
	}

	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		}))
	}
}
