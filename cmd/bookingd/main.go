package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/go-redis/redis/v8"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"

	"booking-engine/config"
	"booking-engine/internal/api"
	"booking-engine/internal/clock"
	"booking-engine/internal/db"
	"booking-engine/internal/engine"
	"booking-engine/internal/notification"
	"booking-engine/internal/store"
	"booking-engine/internal/sweeper"
)

func main() {
	// Setup logger
	logger := log.New(os.Stdout, "booking-engine ", log.LstdFlags)

	if err := godotenv.Load(); err != nil {
		logger.Println("no .env file found, using the process environment")
	}

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)

	// Notification channels
	channels := notification.Fanout{notification.LogNotifier{}}

	var webpushOptions *webpush.Options
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		channels = append(channels, notification.NewWebPushChannel(appStore, webpushOptions))
		logger.Println("web push channel enabled")
	} else {
		logger.Println("VAPID keys not configured; web push channel disabled")
	}

	if cfg.Telegram.BotToken != "" {
		bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
		if err != nil {
			logger.Printf("failed to start telegram bot, channel disabled: %v", err)
		} else {
			logger.Printf("telegram channel enabled as @%s", bot.Self.UserName)
			channels = append(channels, notification.NewTelegramChannel(appStore, bot))

			u := tgbotapi.NewUpdate(0)
			u.Timeout = 60
			go notification.NewChatLinker(appStore, bot).Run(ctx, bot.GetUpdatesChan(u))
			defer bot.StopReceivingUpdates()
		}
	}

	// Delivery de-duplication, shared through redis when configured
	var dedup notification.Deduper = notification.NewMemoryDeduper()
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
		if err := client.Ping(pingCtx).Err(); err != nil {
			logger.Printf("redis at %s unreachable, de-duplicating in memory: %v", cfg.Redis.Addr, err)
			client.Close()
		} else {
			dedup = notification.NewRedisDeduper(client)
			defer client.Close()
			logger.Printf("de-duplicating deliveries through redis at %s", cfg.Redis.Addr)
		}
		pingCancel()
	}

	workerPool := notification.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, channels, dedup)
	workerPool.Start(ctx)

	eng := engine.New(appStore, engine.Options{
		Hold:        cfg.Booking.Hold,
		ClaimWindow: cfg.Waitlist.ClaimWindow,
		Clock:       clock.Real{},
		Dispatcher:  workerPool,
	})
	logger.Printf("engine ready: hold %s, claim window %s", cfg.Booking.Hold, cfg.Waitlist.ClaimWindow)

	// Run the sweeper in the background
	sweeperSvc := sweeper.NewService(cfg.Sweeper, appStore, eng, clock.Real{})
	go sweeperSvc.Run(ctx)

	// Initialize router
	router := api.NewRouter(eng, appStore, webpushOptions, cfg.Server)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start the server in a goroutine
	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Block until a signal is received.
	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	// Create a deadline to wait for.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("HTTP server Shutdown: %v", err)
	}
	cancel()

	logger.Println("Server gracefully stopped")
}
