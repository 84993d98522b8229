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

	"coachdesk/internal/api"
	"coachdesk/internal/config"
	"coachdesk/internal/database"
	"coachdesk/internal/domain"
	"coachdesk/internal/events"
	"coachdesk/internal/google"
	"coachdesk/internal/logging"
	"coachdesk/internal/metrics"
	"coachdesk/internal/models"
	"coachdesk/internal/notify"
	"coachdesk/internal/payments"
	"coachdesk/internal/repository"
	"coachdesk/internal/service"
	"coachdesk/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

// paymentSyncInterval drives the background reconciliation loop. Manual syncs
// through the API do not reset it; the checkpoint in redis does.
const paymentSyncInterval = 15 * time.Minute

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

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	if err := seedRates(cfg, db, &logger); err != nil {
		return err
	}

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}
	syncState := buildSyncState(redisClient, &logger)

	eventBus := events.NewEventBus()
	sheetsService := initGoogleSheets(cfg, &logger)

	var sheetsWorker *worker.SheetsWorker
	if sheetsService != nil {
		sheetsWorker = worker.NewSheetsWorker(db, sheetsService, redisClient, worker.RetryPolicy{}, nil)
	}

	provider := payments.NewStripeProvider(cfg.Stripe.SecretKey)
	reconciler := payments.NewReconciler(db, provider, cfg.Stripe.CallTimeout(), cfg.Stripe.MaxAttempts, &logger)

	bookingService := service.NewBookingService(db, eventBus, workerOrNil(sheetsWorker), &logger)
	payoutService := service.NewPayoutService(db, db, db, eventBus, workerOrNil(sheetsWorker), &logger)
	rateService := service.NewRateService(db, &logger)

	initTelegram(cfg, eventBus, &logger)

	httpServer := api.NewHTTPServer(cfg.API, bookingService, payoutService, rateService, reconciler)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if sheetsWorker != nil {
		go sheetsWorker.Start(ctx)
	}

	if cfg.Backup.Enabled {
		backup := database.NewBackupService(cfg.Database.Path, cfg.Backup, &logger)
		go backup.Start(ctx)
	}

	go paymentSyncLoop(ctx, reconciler, syncState, eventBus, &logger)

	startMetrics(ctx, cfg, &logger)

	return startServer(ctx, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

// seedRates loads the initial payout rate card the first time the service
// starts with an empty rates table. Later changes go through the API.
func seedRates(cfg *config.Config, db *database.DB, logger *zerolog.Logger) error {
	ratesPath := cfg.Payouts.RatesFile
	if ratesPath == "" {
		ratesPath = "configs/rates.yaml"
	}

	ctx := context.Background()
	existing, err := db.GetRates(ctx)
	if err != nil {
		return fmt.Errorf("check rates table: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	data, err := os.ReadFile(ratesPath)
	if err != nil {
		logger.Warn().Err(err).Str("rates_path", ratesPath).Msg("no rates file, starting with empty rate card")
		return nil
	}

	var rateCard struct {
		Rates []struct {
			DurationMinutes int    `yaml:"duration_minutes"`
			IsMember        bool   `yaml:"is_member"`
			RateCents       int64  `yaml:"rate_cents"`
			EffectiveFrom   string `yaml:"effective_from"`
		} `yaml:"rates"`
	}
	if err := yaml.Unmarshal(data, &rateCard); err != nil {
		return fmt.Errorf("parse rates file %s: %w", ratesPath, err)
	}

	for _, r := range rateCard.Rates {
		rate := &models.PayoutRate{
			DurationMinutes: r.DurationMinutes,
			IsMember:        r.IsMember,
			RateCents:       r.RateCents,
		}
		if r.EffectiveFrom != "" {
			from, err := time.Parse("2006-01-02", r.EffectiveFrom)
			if err != nil {
				return fmt.Errorf("rates file: invalid effective_from %q", r.EffectiveFrom)
			}
			rate.EffectiveFrom = from
		}
		if err := db.CreateRate(ctx, rate); err != nil {
			return fmt.Errorf("seed rate %dmin member=%t: %w", r.DurationMinutes, r.IsMember, err)
		}
	}

	logger.Info().Int("rates", len(rateCard.Rates)).Str("rates_path", ratesPath).Msg("seeded payout rates")
	return nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func buildSyncState(redisClient *redis.Client, logger *zerolog.Logger) domain.SyncStateRepository {
	memory := repository.NewMemorySyncStateRepository()
	if redisClient == nil {
		return memory
	}
	primary := repository.NewRedisSyncStateRepository(redisClient)
	return repository.NewFailoverSyncStateRepository(primary, memory, logger)
}

func initGoogleSheets(cfg *config.Config, logger *zerolog.Logger) *google.SheetsService {
	if !cfg.Google.Enabled {
		return nil
	}

	sheetsService, err := google.NewSheetsService(
		cfg.Google.GoogleCredentialsFile,
		cfg.Google.BookingSpreadSheetID,
		cfg.Google.PayoutSpreadSheetID,
	)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}

	logger.Info().Msg("google sheets connected")
	return sheetsService
}

// workerOrNil keeps a typed-nil *SheetsWorker from sneaking into the
// SyncWorker interface fields of the services.
func workerOrNil(w *worker.SheetsWorker) domain.SyncWorker {
	if w == nil {
		return nil
	}
	return w
}

func initTelegram(cfg *config.Config, bus *events.EventBus, logger *zerolog.Logger) {
	if !cfg.Telegram.Enabled {
		return
	}
	if len(cfg.Managers) == 0 {
		logger.Warn().Msg("telegram enabled but no manager chat ids configured")
		return
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, continuing without alerts")
		return
	}
	bot.Debug = cfg.Telegram.Debug

	notifier := notify.NewTelegramNotifier(bot, cfg.Managers, logger)
	notifier.SubscribeAll(bus)
	logger.Info().Int("managers", len(cfg.Managers)).Msg("telegram alerts enabled")
}

// paymentSyncLoop reconciles stripe checkout sessions on a fixed cadence. The
// checkpoint lives in the sync-state repository so restarts do not trigger an
// immediate re-sync.
func paymentSyncLoop(ctx context.Context, reconciler *payments.Reconciler,
	syncState domain.SyncStateRepository, bus *events.EventBus, logger *zerolog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		last, err := syncState.GetLastPaymentSync(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("read payment sync checkpoint")
			continue
		}
		if time.Since(last) < paymentSyncInterval {
			continue
		}

		result, err := reconciler.SyncBatch(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("scheduled payment sync failed")
			}
			continue
		}

		metrics.IncPaymentSync("scheduled")
		if err := syncState.SetLastPaymentSync(ctx, time.Now()); err != nil {
			logger.Warn().Err(err).Msg("store payment sync checkpoint")
		}

		_ = bus.PublishJSON(events.EventPaymentsSynced, events.PaymentsSyncedPayload{
			Updated: result.Updated,
			Skipped: result.Skipped,
			Failed:  len(result.Failures),
		})

		logger.Info().
			Int("updated", result.Updated).
			Int("skipped", result.Skipped).
			Int("failed", len(result.Failures)).
			Msg("scheduled payment sync completed")
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServer(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
