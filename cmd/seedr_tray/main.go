package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/italolelis/seedr_tray/internal/config"
	"github.com/italolelis/seedr_tray/internal/desktop"
	"github.com/italolelis/seedr_tray/internal/http/rest"
	"github.com/italolelis/seedr_tray/internal/logctx"
	"github.com/italolelis/seedr_tray/internal/menu"
	"github.com/italolelis/seedr_tray/internal/notifier"
	"github.com/italolelis/seedr_tray/internal/seedr"
	"github.com/italolelis/seedr_tray/internal/storage"
	"github.com/italolelis/seedr_tray/internal/storage/sqlite"
	"github.com/italolelis/seedr_tray/internal/telemetry"
	"github.com/italolelis/seedr_tray/internal/tray"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

const readHeaderTimeout = 5 * time.Second

// version is set at build time with -ldflags "-X main.version=...".
var version = "1.0.0"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})
	logger := slog.New(logctx.NewTraceHandler(handler))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("seedr tray starting...", "version", version, "log_level", cfg.LogLevel)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.AppName,
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Telemetry.ShutdownTimeout)
		defer cancel()

		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start Database
	dbPath, err := cfg.DatabasePath()
	if err != nil {
		return err
	}

	database, err := sqlite.InitDB(dbPath)
	if err != nil {
		logger.Error("DB error", "err", err, "path", dbPath)

		return err
	}
	defer database.Close()

	settings := sqlite.NewInstrumentedSettingsRepository(database, tel)

	// =========================================================================
	// Start Seedr Client
	client, tokens := buildSeedrClient(ctx, cfg, settings, tel)

	// =========================================================================
	// Start Notification
	notif := buildNotifier(cfg)

	// =========================================================================
	// Start Tray
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var ctrl *tray.Controller

	renderer := tray.NewSystrayRenderer(func(action menu.Action) {
		ctrl.Dispatch(ctx, action)
	})

	ctrl = tray.NewController(tray.Options{
		Title:      fmt.Sprintf("%s v%s", cfg.AppName, version),
		DialogName: cfg.AppName,
		DevicesURL: cfg.Seedr.DevicesURL,
		Client:     client,
		Folders:    menu.NewSynchronizer(client),
		Settings:   settings,
		Tokens:     tokens,
		Notifier:   notif,
		Desktop:    desktop.System{},
		Renderer:   renderer,
		Telemetry:  tel,
		Quit:       tray.Quit,
	})

	var g *errgroup.Group

	onReady := func() {
		var gctx context.Context

		g, gctx = errgroup.WithContext(ctx)

		g.Go(func() error {
			return ctrl.Run(gctx)
		})

		if cfg.Telemetry.Enabled {
			server := setupServer(gctx, cfg, tel)

			g.Go(func() error {
				logger.Info("serving local metrics", "host", cfg.Telemetry.BindAddress)

				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server error: %w", err)
				}

				return nil
			})

			g.Go(func() error {
				<-gctx.Done()

				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Telemetry.ShutdownTimeout)
				defer cancel()

				return server.Shutdown(shutdownCtx)
			})
		}

		go func() {
			<-gctx.Done()
			tray.Quit()
		}()

		logger.Info("tray ready, loading folders")
		ctrl.Dispatch(gctx, menu.Action{Kind: menu.ActionRefresh})
	}

	onExit := func() {
		logger.Info("start shutdown")
		cancel()
	}

	tray.Run(cfg.AppName, onReady, onExit)

	cancel()

	waitCtx, waitCancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer waitCancel()

	if err := ctrl.WaitContext(waitCtx); err != nil {
		logger.Warn("menu actions still running at exit, abandoning them", "err", err)
	}

	if g == nil {
		return nil
	}

	return g.Wait()
}

// buildSeedrClient returns the instrumented client and, when access tokens
// are cached, the cache to reset after the device code changes.
func buildSeedrClient(
	ctx context.Context, cfg *config.Config, settings storage.SettingsReader, tel *telemetry.Telemetry,
) (seedr.API, tray.TokenCache) {
	httpClient := &http.Client{
		Timeout:   cfg.Seedr.RequestTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	device := seedr.NewDeviceTokenSource(
		ctx, httpClient, cfg.Seedr.BaseURL, cfg.Seedr.ClientID, settings, cfg.AccessTokenTTL,
	)

	var (
		tokens oauth2.TokenSource = device
		cache  tray.TokenCache
	)

	if cfg.CacheAccessToken {
		caching := seedr.NewCachingTokenSource(device)
		tokens, cache = caching, caching
	}

	client := seedr.NewClient(cfg.Seedr.BaseURL, cfg.Seedr.ClientID, tokens, seedr.WithHTTPClient(httpClient))

	return seedr.NewInstrumentedClient(client, tel), cache
}

func buildNotifier(cfg *config.Config) notifier.Notifier {
	notifiers := notifier.Multi{notifier.NewDesktopNotifier("")}

	if cfg.DiscordWebhookURL != "" {
		notifiers = append(notifiers, &notifier.DiscordNotifier{WebhookURL: cfg.DiscordWebhookURL})
	}

	return notifiers
}

// setupServer prepares the local metrics server.
func setupServer(ctx context.Context, cfg *config.Config, tel *telemetry.Telemetry) *http.Server {
	return &http.Server{
		Addr:              cfg.Telemetry.BindAddress,
		Handler:           rest.NewMetricsHandler(tel).Routes(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}
