package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"sleeplog-backend/internal/config"
	"sleeplog-backend/internal/database"
	"sleeplog-backend/internal/docstore"
	"sleeplog-backend/internal/handlers"
	"sleeplog-backend/internal/logging"
	"sleeplog-backend/internal/middleware"
	"sleeplog-backend/internal/notify"
	"sleeplog-backend/internal/push"
	"sleeplog-backend/internal/reminder"
	"sleeplog-backend/internal/repository"
	"sleeplog-backend/internal/router"
	"sleeplog-backend/internal/services"
	"sleeplog-backend/internal/websocket"
	"sleeplog-backend/internal/worker"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	logging.Setup(cfg.Env, cfg.LogLevel)
	log.Info().Msg("🚀 Starting Sleep Log Backend...")
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("✗ Invalid configuration")
	}
	log.Info().Msg("✓ Environment variables loaded")

	fallback, _ := time.LoadLocation(cfg.DefaultTimezone)

	// ──── Step 2: Initialize Entry Ledger ────
	var ledger repository.EntryLedger
	switch cfg.StorageType {
	case "postgres":
		pool, err := database.NewPostgresPool(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("✗ PostgreSQL connection failed")
		}
		defer pool.Close()
		if err := database.RunMigrations(pool); err != nil {
			log.Fatal().Err(err).Msg("✗ Database migration failed")
		}
		ledger = repository.NewPostgresLedger(pool)
		log.Info().Msg("✓ PostgreSQL ledger ready")
	default:
		ledger = repository.NewDocumentLedger(docstore.NewFileStore(cfg.SleepLogPath))
		log.Info().Str("path", cfg.SleepLogPath).Msg("✓ File ledger ready")
	}

	// ──── Step 3: Initialize Document Stores ────
	var (
		historyDoc   docstore.Store
		subsDoc      docstore.Store
		pubsubClient *redis.Client
		queueClient  *redis.Client
	)
	switch cfg.DocumentStore {
	case "redis":
		redisClients, err := database.NewRedisClients(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("✗ Redis connection failed")
		}
		defer redisClients.Close()
		historyDoc = docstore.NewRedisStore(redisClients.Docs, "sleeplog:notification-history")
		subsDoc = docstore.NewRedisStore(redisClients.Docs, "sleeplog:push-subscriptions")
		pubsubClient = redisClients.PubSub
		queueClient = redisClients.Docs
		log.Info().Msg("✓ Redis connected")
	default:
		historyDoc = docstore.NewFileStore(filepath.Join(cfg.DataDir, "notification-history.json"))
		subsDoc = docstore.NewFileStore(filepath.Join(cfg.DataDir, "push-subscriptions.json"))
		log.Info().Str("dir", cfg.DataDir).Msg("✓ File document store ready")
	}

	history := notify.NewHistory(historyDoc)
	subscriptions := push.NewStore(subsDoc, cfg.MaxSubscriptions)
	log.Info().Int("push_subscriptions", len(subscriptions.List(context.Background()))).Msg("✓ Notification history and subscriptions loaded")

	// ──── Step 4: Start WebSocket Hub ────
	auth := middleware.NewAuth(cfg.APIKey, cfg.JWTSecret)
	wsHub := websocket.NewHub(pubsubClient, auth.ParseToken)
	log.Info().Msg("✓ WebSocket hub started")

	// ──── Step 5: Initialize Delivery Transports ────
	transports := []services.Transport{wsHub}
	vapidPublicKey := ""
	if cfg.VAPIDPublicKey != "" && cfg.VAPIDPrivateKey != "" {
		keys, err := services.ParseVAPIDKeys(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey)
		if err != nil {
			log.Fatal().Err(err).Msg("✗ Invalid VAPID keys")
		}
		transports = append(transports, services.NewWebPushService(subscriptions, keys, cfg.VAPIDSubject))
		vapidPublicKey = keys.PublicKey
	}
	if cfg.PushbulletAPIKey != "" {
		transports = append(transports, services.NewPushbulletService(cfg.PushbulletAPIKey))
	}
	if cfg.NotifyEmail != "" {
		transports = append(transports, services.NewEmailService(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.NotifyEmail, cfg.FrontendURL))
	}
	dispatcher := services.NewDispatcher(transports...)
	log.Info().Strs("transports", dispatcher.Names()).Msg("✓ Notification transports configured")

	// ──── Step 6: Start Notification Workers ────
	workerPool := worker.NewPool(queueClient, dispatcher, 2)
	workerPool.Start()
	log.Info().Msg("✓ Worker pool started (2 goroutines)")

	// ──── Step 7: Initialize Services ────
	zones, err := services.NewTimezoneResolver()
	if err != nil {
		log.Fatal().Err(err).Msg("✗ Timezone finder initialization failed")
	}
	sleepService := services.NewSleepLogService(ledger, zones, workerPool, wsHub, fallback)
	reminderService := services.NewReminderService(ledger, reminder.NewWatchdog(cfg.ReminderAwakeThreshold, cfg.ReminderAsleepThreshold), dispatcher)

	var insightService *services.InsightService
	if cfg.AINotificationsEnabled {
		provider, err := services.NewGeminiProvider(cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Fatal().Err(err).Msg("✗ Gemini client initialization failed")
		}
		defer provider.Close()
		gate := notify.Gate{
			QuietStart: cfg.QuietHoursStart,
			QuietEnd:   cfg.QuietHoursEnd,
			MinSpacing: cfg.NotificationSpacing,
			DailyCap:   cfg.NotificationCap,
		}
		insightService = services.NewInsightService(ledger, gate, history, provider, dispatcher, fallback)
		log.Info().Str("model", cfg.GeminiModel).Msg("✓ Gemini client initialized")
	}

	// ──── Step 8: Start Notification Scheduler ────
	scheduler, err := services.NewNotificationScheduler(reminderService, cfg.ReminderCheckInterval, insightService, cfg.AICheckInterval)
	if err != nil {
		log.Fatal().Err(err).Msg("✗ Scheduler initialization failed")
	}
	scheduler.Start()
	log.Info().Dur("reminder_every", cfg.ReminderCheckInterval).Bool("insights", insightService != nil).Msg("✓ Notification scheduler started")

	// ──── Step 9: Start HTTP Server ────
	r := router.New(
		auth,
		handlers.NewAuthHandler(auth),
		handlers.NewSleepHandler(sleepService),
		handlers.NewPushHandler(subscriptions, vapidPublicKey),
		handlers.NewNotificationHandler(history),
		wsHub,
		cfg.FrontendURL,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("Shutting down...")
		scheduler.Stop()
		workerPool.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Info().Msgf("✓ Sleep Log Backend ready on http://localhost:%s", cfg.Port)
	log.Info().Msgf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Info().Msgf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("Server error")
	}
}
