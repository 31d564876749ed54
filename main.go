package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ms-booking/internal/auth"
	"ms-booking/internal/booking"
	"ms-booking/internal/booking/booking_api"
	"ms-booking/internal/booking/db"
	bookingredis "ms-booking/internal/booking/redis"
	"ms-booking/internal/config"
	"ms-booking/internal/database/migrations"
	"ms-booking/internal/directory"
	"ms-booking/internal/kafka"
	"ms-booking/internal/logger"
	"ms-booking/internal/notify"
	"ms-booking/internal/payment"
	"ms-booking/internal/sweeper"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"golang.org/x/sync/errgroup"
)

const queueSize = 1024

func openPostgres(cfg config.DatabaseConfig, logger *logger.Logger) *sql.DB {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		logger.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.DSN)
		if err != nil {
			logger.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.Ping()
		if err == nil {
			break
		}

		logger.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		sqldb.Close()
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}

	if err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}
	return sqldb
}

func verifyConnections(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*bun.DB, *redis.Client) {
	sqldb := openPostgres(cfg.Database, logger)
	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)
	logger.Info("DATABASE", "✅ PostgreSQL connection successful")

	bunDB := bun.NewDB(sqldb, pgdialect.New())

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	logger.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s (DB: %d)", cfg.Redis.Addr, redisClient.Options().DB))
	return bunDB, redisClient
}

// migrate runs on its own connection; the migrate driver closes it when done.
func migrate(cfg config.DatabaseConfig, logger *logger.Logger) {
	sqldb := openPostgres(cfg, logger)
	runner := migrations.NewRunner(bun.NewDB(sqldb, pgdialect.New()), logger)
	defer func() {
		if err := runner.Close(); err != nil {
			logger.Warn("MIGRATE", fmt.Sprintf("Failed to close migrator: %v", err))
		}
	}()

	if err := runner.MigrateUp(); err != nil {
		logger.Fatal("MIGRATE", fmt.Sprintf("Migrations failed: %v", err))
	}
	logger.Info("MIGRATE", "✅ Schema is up to date")
}

func main() {
	logger := logger.NewLogger()
	defer logger.Close()

	logger.Info("APP", "Starting Booking Service initialization")

	if err := godotenv.Load(); err != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		logger.Info("CONFIG", "Loaded environment variables from .env file")
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Database.AutoMigrate {
		migrate(cfg.Database, logger)
	}

	logger.Info("APP", "Verifying database connections")
	bunDB, redisClient := verifyConnections(ctx, cfg, logger)
	defer bunDB.Close()
	defer redisClient.Close()

	store := &db.DB{Bun: bunDB}
	client := &http.Client{
		Timeout: time.Second * 10,
	}

	// --- Collaborators ---
	var tokens directory.TokenSource = directory.NoToken{}
	if cfg.Directory.TokenURL != "" {
		tokens = &directory.M2MTokenSource{
			TokenURL:     cfg.Directory.TokenURL,
			ClientID:     cfg.Directory.ClientID,
			ClientSecret: cfg.Directory.ClientSecret,
			HTTP:         client,
			Redis:        redisClient,
		}
	}
	dir := directory.NewClient(cfg.Directory.ListingURL, cfg.Directory.UserURL, client, tokens)
	spaces := bookingredis.NewSpaceCache(dir, redisClient, cfg.Directory.CacheTTL)

	processor, err := payment.NewStripeProcessor(cfg.Stripe.SecretKey, logger)
	if err != nil {
		logger.Fatal("STRIPE", fmt.Sprintf("Payment processor unavailable: %v", err))
	}

	verifier, err := auth.NewVerifier(ctx, cfg.Auth.OIDCIssuer, cfg.Auth.JWTSecret)
	if err != nil {
		logger.Fatal("AUTH", fmt.Sprintf("Failed to configure token verification: %v", err))
	}

	// --- Notifications ---
	var sender notify.EmailSender = &notify.LogSender{Log: logger}
	if cfg.Email.SendGridAPIKey != "" {
		sender = notify.NewSendGridSender(cfg.Email.SendGridAPIKey, cfg.Email.FromAddress, cfg.Email.FromName)
		logger.Info("EMAIL", "SendGrid email delivery enabled")
	} else {
		logger.Warn("EMAIL", "SENDGRID_API_KEY not set, emails are only logged")
	}
	dispatcher := &notify.Dispatcher{Store: store, Users: dir, Sender: sender, Log: logger}
	if cfg.Booking.PassSecret != "" {
		pass, err := notify.NewPassGenerator(cfg.Booking.PassSecret)
		if err != nil {
			logger.Fatal("CONFIG", fmt.Sprintf("Invalid parking pass secret: %v", err))
		}
		dispatcher.Pass = pass
	}

	g, gctx := errgroup.WithContext(ctx)

	var notifier notify.Notifier
	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, []string{cfg.Kafka.Topics.Notifications}, 3); err != nil {
			logger.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		producer := kafka.NewProducer(cfg.Kafka.Brokers)
		defer producer.Close()
		notifier = notify.NewKafkaNotifier(producer, cfg.Kafka.Topics.Notifications, logger)

		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.Notifications, cfg.Kafka.GroupID, logger)
		defer consumer.Close()
		g.Go(func() error { return consumer.Run(gctx, dispatcher.HandleRaw) })
		logger.Info("KAFKA", fmt.Sprintf("Notifications flow through topic %s", cfg.Kafka.Topics.Notifications))
	} else {
		queue := notify.NewQueueNotifier(queueSize, dispatcher, logger)
		notifier = queue
		g.Go(func() error { return queue.Run(gctx) })
		logger.Warn("KAFKA", "Kafka disabled, notifications use the in-process queue")
	}

	// --- Core ---
	bookingService := booking.NewBookingService(
		store,
		spaces,
		processor,
		notifier,
		bookingredis.NewRateLimiter(redisClient, cfg.Booking.RateLimit, cfg.Booking.RateLimitWindow),
		booking.Options{Currency: cfg.Stripe.Currency, DemandPricing: cfg.Booking.DemandPricing},
		logger,
	)
	reconciler := payment.NewReconciler(store, processor, notifier, cfg.Stripe.WebhookSecret, logger)
	sw := sweeper.NewSweeper(store, processor, notifier, cfg.Booking.PendingTimeout, logger)

	handler := booking_api.NewHandler(bookingService, reconciler, sw, store, logger, booking_api.Options{
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		WebhookTimeout:  cfg.Booking.WebhookTimeout,
		WebhookMaxBytes: cfg.Booking.WebhookMaxBytes,
		SweeperSecret:   cfg.Sweeper.Secret,
	})
	idempotency := bookingredis.Idempotency(redisClient, cfg.Booking.IdempotencyTTL, func(r *http.Request) string {
		return auth.UserID(r.Context())
	})

	logger.Info("HTTP", "Setting up router and middleware")
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      handler.Routes(verifier, idempotency),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g.Go(func() error {
		logger.Info("HTTP", fmt.Sprintf("🚀 Booking Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("APP", "Shutdown signal received, initiating graceful shutdown")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(ctxShutdown)
	})

	if err := g.Wait(); err != nil {
		logger.Error("APP", fmt.Sprintf("Service stopped with error: %v", err))
		os.Exit(1)
	}
	logger.Info("HTTP", "✅ Booking Service shutdown complete")
}
