package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"backend_fleetwatch/api"
	"backend_fleetwatch/config"
	"backend_fleetwatch/database"
	"backend_fleetwatch/logger"
	"backend_fleetwatch/middleware"
	"backend_fleetwatch/services"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "fleetwatch",
		Short:         "Мониторинг автопарка Wialon: синхронизация юнитов, алерты и тикеты",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCommand(), newSyncUnitsCommand(), newMigrateCommand())
	return root
}

// bootstrap загружает конфигурацию и инициализирует логгер
func bootstrap() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "❌ Ошибка загрузки конфигурации:", err)
		return nil, err
	}
	if err := logger.Init(cfg.App.Env, cfg.Logging.Level, cfg.Logging.Format); err != nil {
		fmt.Fprintln(os.Stderr, "❌ Ошибка инициализации логгера:", err)
		return nil, err
	}
	cfg.LogConfig(logger.Logger)
	return cfg, nil
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Запустить HTTP сервер и планировщик синхронизации",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync()
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.Logger

	if err := database.CreateDatabaseIfNotExists(cfg, log); err != nil {
		log.Error("failed to create database", zap.Error(err))
		return err
	}
	db, err := database.Connect(cfg, log)
	if err != nil {
		log.Error("failed to connect database", zap.Error(err))
		return err
	}
	if err := database.AutoMigrate(db, log); err != nil {
		return err
	}
	database.CreatePerformanceIndexes(db, log)

	redisClient, err := database.InitRedis(ctx, cfg, log)
	if err != nil {
		// без Redis сервис работает на in-memory реализациях
		log.Warn("redis unavailable, continuing without it", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// синхронизация юнитов
	wialon := services.NewWialonClient(cfg.Wialon, logger.Named("wialon"))
	retry := services.NewRetryExecutor(cfg.Wialon.MaxRetries, cfg.Wialon.RetryDelay, logger.Named("retry"))
	syncService := services.NewFleetSyncService(db, wialon, retry, logger.Named("sync"))

	// алерты и уведомления
	var throttle services.ThrottleCache
	var broadcast services.BroadcastSink
	if redisClient != nil {
		throttle = services.NewRedisThrottle(redisClient, cfg.Alerts.ThrottleTTL, logger.Named("throttle"))
		broadcast = services.NewRedisBroadcastSink(redisClient, logger.Named("broadcast"))
	} else {
		throttle = services.NewMemoryThrottle(cfg.Alerts.ThrottleTTL)
	}

	var push services.PushSink = services.NewLogPushSink(logger.Named("push"))
	if cfg.Notifications.TelegramEnabled && cfg.Notifications.TelegramBotToken != "" {
		tg, err := services.NewTelegramClient(cfg.Notifications.TelegramBotToken, logger.Named("telegram"))
		if err != nil {
			log.Warn("telegram client init failed, push notifications go to log", zap.Error(err))
		} else {
			push = tg
		}
	}

	fanout := services.NewNotificationFanout(broadcast, push, db, cfg.Notifications, cfg.App.BaseURL, logger.Named("fanout"))
	escalator := services.NewTicketEscalator(db, logger.Named("escalator"))
	pipeline := services.NewAlertPipeline(escalator, fanout, logger.Named("pipeline"))
	ingestion := services.NewAlertIngestionService(db, throttle, pipeline, logger.Named("alerts"))

	export := services.NewExportService()
	router := api.NewRouter(api.RouterDeps{
		Config:  cfg,
		Logger:  logger.Named("http"),
		Redis:   redisClient,
		Auth:    middleware.NewAuthMiddleware(cfg.JWT.Secret, cfg.JWT.Issuer),
		Health:  api.NewHealthAPI(db, wialon, cfg.App.Version),
		Alerts:  api.NewWialonAlertsAPI(ingestion),
		Sync:    api.NewSyncAPI(syncService),
		Units:   api.NewUnitsAPI(services.NewUnitRepository(db), export),
		Tickets: api.NewTicketsAPI(services.NewTicketService(db), export),
	})

	var scheduler *services.SyncScheduler
	if cfg.Sync.Enabled {
		scheduler = services.NewSyncScheduler(syncService, cfg.Sync.Schedule, cfg.Sync.Timeout, logger.Named("scheduler"))
		if err := scheduler.Start(); err != nil {
			log.Error("failed to start sync scheduler", zap.Error(err))
			return err
		}
	}

	srv := &http.Server{
		Addr:              cfg.App.Host + ":" + cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Security.RequestTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("🚀 server started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error("server failed", zap.Error(err))
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", zap.Error(err))
	}
	if scheduler != nil {
		scheduler.Stop()
	}

	log.Info("server stopped")
	return nil
}

func newSyncUnitsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync-units",
		Short: "Однократно синхронизировать юниты из Wialon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync()

			db, err := database.Connect(cfg, logger.Logger)
			if err != nil {
				return err
			}

			wialon := services.NewWialonClient(cfg.Wialon, logger.Named("wialon"))
			retry := services.NewRetryExecutor(cfg.Wialon.MaxRetries, cfg.Wialon.RetryDelay, logger.Named("retry"))
			result := services.NewFleetSyncService(db, wialon, retry, logger.Named("sync")).Sync(cmd.Context())

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, result.Message)
			fmt.Fprintf(out, "created: %d\nupdated: %d\nunchanged: %d\nfailed: %d\ntotal: %d\nduration: %s\n",
				result.Created, result.Updated, result.Unchanged, result.Failed, result.Total(), result.Duration)

			if result.HasErrors() {
				return fmt.Errorf("sync finished with errors: %s", result.Message)
			}
			return nil
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Создать базу данных, таблицы и индексы",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync()

			log := logger.Logger
			if err := database.CreateDatabaseIfNotExists(cfg, log); err != nil {
				return err
			}
			db, err := database.Connect(cfg, log)
			if err != nil {
				return err
			}
			if err := database.AutoMigrate(db, log); err != nil {
				return err
			}
			created := database.CreatePerformanceIndexes(db, log)
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Миграции применены, индексов создано: %d\n", created)
			return nil
		},
	}
}
