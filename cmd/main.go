/**
 * @description
 * This is the main entry point for the wallet-service. It is responsible for
 * initializing all components of the service, including configuration, database
 * connection, the payment processor client, the message broker, repositories, the
 * core application service, the auto-release scheduler, and the HTTP server. It
 * wires everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/stripeclient: Client for the payment processor API.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/peerhaul/wallet-service/internal/api"
	"github.com/peerhaul/wallet-service/internal/app"
	"github.com/peerhaul/wallet-service/internal/config"
	"github.com/peerhaul/wallet-service/internal/metrics"
	"github.com/peerhaul/wallet-service/internal/store"
	"github.com/peerhaul/wallet-service/pkg/rabbitmq"
	"github.com/peerhaul/wallet-service/pkg/stripeclient"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.InternalAPIKey) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"internal api key must be configured\" env=INTERNAL_API_KEY")
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"jwt secret must be configured\" env=JWT_SECRET")
	}
	if strings.TrimSpace(cfg.ProcessorWebhookSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"processor webhook secret must be configured\" env=PROCESSOR_WEBHOOK_SECRET")
	}

	log.Printf("level=info component=bootstrap msg=\"starting wallet-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer to publish wallet lifecycle events.
	var producer rabbitmq.Publisher
	rabbitProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &rabbitmq.EventProducerFallback{}
	} else {
		producer = rabbitProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}
	defer producer.Close()

	// Redis backs the webhook dedup fast path. Missing Redis degrades to the
	// database boundary only.
	var redisClient *redis.Client
	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; webhook cache disabled\" env=REDIS_URL")
	} else {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; webhook cache disabled\" err=%v", parseErr)
		} else {
			redisClient = redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelPing()
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; webhook cache disabled\" err=%v", pingErr)
				redisClient.Close()
				redisClient = nil
			} else {
				defer redisClient.Close()
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	}

	// Initialize the client for the payment processor API.
	processorClient := stripeclient.NewClient(cfg.ProcessorAPIBaseURL, cfg.ProcessorAPIKey)

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Initialize the core application service with its dependencies.
	walletService := app.NewService(repository, processorClient, producer, app.Settings{
		ServiceFeePercent:  decimal.NewFromFloat(cfg.ServiceFeePercent),
		ServiceFeeCap:      cfg.ServiceFeeCapEUR,
		PlatformFeePercent: decimal.NewFromFloat(cfg.PlatformFeePercent),
		DepositFloorEUR:    cfg.DepositFloorEUR,
		FXRates: map[string]decimal.Decimal{
			"PLN": decimal.NewFromFloat(cfg.FXRateEURPLN),
		},
		MinWithdrawal:     cfg.MinWithdrawal,
		AutoReleaseAfter:  time.Duration(cfg.AutoReleaseDays) * 24 * time.Hour,
		PINMaxAttempts:    cfg.TransactionPINMaxAttempts,
		PINLockoutSeconds: cfg.TransactionPINLockoutSeconds,
	})

	// Start the auto-release scheduler.
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	scheduler := app.NewScheduler(app.NewJobs(walletService, logger), logger, cfg.AutoReleaseSchedule)
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	// Serve /metrics and /healthz on a side listener.
	metricsServer := metrics.StartServer(cfg.MetricsPort, func(ctx context.Context) error {
		return dbpool.Ping(ctx)
	})
	defer metricsServer.Shutdown(context.Background())

	// Initialize the API handlers.
	var eventCache *app.RedisEventCache
	if redisClient != nil {
		eventCache = app.NewRedisEventCache(redisClient, cfg.WebhookCachePrefix, 24*time.Hour)
	}
	walletHandlers := api.NewWalletHandlers(walletService)
	webhookHandler := api.NewWebhookHandler(walletService, eventCache, cfg.ProcessorWebhookSecret)

	router := api.WalletRoutes(walletHandlers, webhookHandler, cfg.JWTSecret, cfg.InternalAPIKey, cfg.Origins())

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server failed\" err=%v", err)
		}
	}()

	// Wait for an interrupt signal, then shut everything down gracefully.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=bootstrap msg=\"shutdown signal received\"")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("level=warn component=http msg=\"graceful shutdown failed\" err=%v", err)
	}
	log.Println("level=info component=bootstrap msg=\"wallet-service stopped\"")
}
