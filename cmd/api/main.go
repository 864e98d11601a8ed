package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-intake/internal/api/http"
	"github.com/spec-kit/ticket-intake/internal/api/http/handlers"
	"github.com/spec-kit/ticket-intake/internal/codec"
	"github.com/spec-kit/ticket-intake/internal/config"
	"github.com/spec-kit/ticket-intake/internal/events"
	"github.com/spec-kit/ticket-intake/internal/observability"
	"github.com/spec-kit/ticket-intake/internal/persistence"
	"github.com/spec-kit/ticket-intake/internal/repository"
	"github.com/spec-kit/ticket-intake/internal/service"
	"github.com/spec-kit/ticket-intake/internal/validation"
	"github.com/spec-kit/ticket-intake/internal/worker"
)

// multipart bodies carry up to 3 MiB of attachments plus the form fields.
const bodyLimit = 4 * 1024 * 1024

func main() {
	flags := pflag.NewFlagSet("ticket-intake", pflag.ContinueOnError)
	envFiles := flags.StringSlice("env-file", nil, "dotenv files to load before reading the environment")
	addr := flags.String("addr", "", "listen address, overrides APP_HOST and APP_PORT")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Fatalf("invalid flags: %v", err)
	}

	cfg, err := config.Load(*envFiles...)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	storage, err := persistence.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open storage", zap.Error(err))
	}
	defer storage.Close()

	ticketCodec, err := codec.New(cfg.Codec.Name, codec.Options{
		Passphrase:    cfg.Codec.Passphrase,
		Salt:          cfg.Codec.Salt,
		KDFIterations: cfg.Codec.KDFIterations,
	})
	if err != nil {
		logger.Fatal("failed to build codec", zap.Error(err))
	}
	logger.Info("storage ready",
		zap.String("mode", cfg.Storage.Mode),
		zap.String("backend", storage.Backend.Name()),
		zap.String("codec", ticketCodec.Name()))

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)
	worker.StartAuditWorker(service.NewAuditService(dispatcher, logger))

	store := repository.NewTicketStore(storage.Backend, ticketCodec, logger, repository.StoreOptions{Metrics: metrics})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo: store,
		Validator:  validation.New(cfg.Tickets.MaxAttachments),
		Dispatcher: dispatcher,
		Logger:     logger,
	})

	app := fiber.New(fiber.Config{
		AppName:   cfg.App.Name,
		BodyLimit: bodyLimit,
	})
	mwCfg := httptransport.MiddlewareConfig{Timeout: cfg.App.RequestTimeout()}
	if cfg.Storage.Mode == config.StorageModeSession {
		mwCfg.Sessions = session.New(session.Config{
			Expiration:     cfg.Storage.SessionTTL(),
			CookieHTTPOnly: true,
			CookieSameSite: fiber.CookieSameSiteLaxMode,
		})
	}
	httptransport.RegisterMiddlewares(app, logger, metrics, mwCfg)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:  handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, storage.Backend, ticketCodec.Name(), metrics),
		Tickets: handlers.NewTicketsHandler(ticketService),
	})

	listenAddr := cfg.App.Addr()
	if *addr != "" {
		listenAddr = *addr
	}
	go func() {
		if err := app.Listen(listenAddr); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
