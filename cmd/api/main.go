package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"planora/internal/api"
	"planora/internal/booking"
	"planora/internal/config"
	"planora/internal/database"
	"planora/internal/domain"
	"planora/internal/events"
	"planora/internal/google"
	"planora/internal/logging"
	"planora/internal/metrics"
	"planora/internal/notify"
	"planora/internal/repository"
	"planora/internal/service"
	"planora/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const sheetsCacheRefresh = 10 * time.Minute

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	db, err := database.NewDB(cfg.Database.Path, logging.Component(logger, "database"))
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer repository.Close(redisClient)
	}
	cart := initCart(cfg, redisClient, logger)

	bus := events.NewEventBus()
	bus.OnError(func(e *events.Event, err error) {
		logger.Warn().Err(err).Str("event_type", e.Type).Msg("event handler failed")
	})

	var syncWorker domain.SyncWorker
	var ledger api.LedgerRetrier
	if lw := initLedger(ctx, cfg, db, redisClient, logger); lw != nil {
		go lw.Start(ctx)
		syncWorker = lw
		ledger = lw
	}

	if notifier := initTelegram(cfg, db, logger); notifier != nil {
		notifier.Register(bus)
		go notifier.Start(ctx)
	}

	go database.NewBackupService(db, cfg.Database.Path, cfg.Backup, logging.Component(logger, "backup")).Start(ctx)

	svcLogger := logging.Component(logger, "service")
	deps := api.Dependencies{
		Bookings: service.NewBookingService(db, db, bus, syncWorker, booking.NewMachine(), cfg.Booking.MaxTransitionAttempts, svcLogger),
		Vendors:  service.NewVendorService(db, svcLogger),
		Users:    service.NewUserService(db, svcLogger),
		Messages: service.NewMessageService(db, cart, bus, cfg.API.RateLimit.MessagesLimit,
			time.Duration(cfg.API.RateLimit.MessagesWindow)*time.Second, svcLogger),
		Cart:       service.NewCartService(cart, db, svcLogger),
		Ledger:     ledger,
		ExportsDir: cfg.Exports.Path,
	}

	httpServer := api.NewHTTPServer(cfg.API, deps, logger)

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(&cfg.API, logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
	}

	startMetrics(ctx, cfg, logger)

	return startServers(ctx, grpcServer, httpServer, cfg, logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = config.DefaultPath
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}

	return cfg, logging.Component(baseLogger, "api-main"), closer, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

// initCart prefers redis and falls back to process memory when it is down.
func initCart(cfg *config.Config, client *redis.Client, logger *zerolog.Logger) domain.CartRepository {
	memory := repository.NewMemoryCartRepository(cfg.Cart.TTL)
	if client == nil {
		return memory
	}
	return repository.NewFailoverCartRepository(
		repository.NewRedisCartRepository(client, cfg.Cart.TTL),
		memory,
		logging.Component(logger, "cart"),
	)
}

func initLedger(
	ctx context.Context,
	cfg *config.Config,
	db *database.DB,
	client *redis.Client,
	logger *zerolog.Logger,
) *worker.LedgerWorker {
	if !cfg.Google.Enabled() {
		return nil
	}

	sheetsLogger := logging.Component(logger, "sheets")
	sheets, err := google.NewSheetsService(ctx, cfg.Google.CredentialsFile, cfg.Google.BookingsSpreadsheetID,
		cfg.Google.BookingsSheetName, sheetsLogger)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without ledger")
		return nil
	}
	if err := sheets.TestConnection(ctx); err != nil {
		if email, emailErr := google.ServiceAccountEmail(cfg.Google.CredentialsFile); emailErr == nil {
			logger.Warn().Err(err).Str("service_account", email).Msg("spreadsheet not reachable; share it with the service account")
		} else {
			logger.Warn().Err(err).Msg("spreadsheet not reachable")
		}
		return nil
	}

	go sheets.StartCacheRefresh(ctx, sheetsCacheRefresh)
	logger.Info().Str("spreadsheet_id", cfg.Google.BookingsSpreadsheetID).Msg("google sheets ledger connected")

	return worker.NewLedgerWorker(db, sheets, client, worker.RetryPolicy{}, logging.Component(logger, "ledger"))
}

func initTelegram(cfg *config.Config, db *database.DB, logger *zerolog.Logger) *notify.TelegramNotifier {
	if cfg.Telegram.BotToken == "" {
		return nil
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, notifications disabled")
		return nil
	}
	bot.Debug = cfg.Telegram.Debug

	logger.Info().Str("bot", bot.Self.UserName).Msg("telegram notifications enabled")
	return notify.NewTelegramNotifier(bot, db, db, logging.Component(logger, "telegram"))
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	errCh := make(chan error, 2)

	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Bool("grpc", grpcServer != nil).Msg("API server started")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("server stopped unexpectedly")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.HTTP.ShutdownTimeout)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}

	logger.Info().Msg("API server stopped")
	return runErr
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
