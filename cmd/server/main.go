package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace-payments/config"
	"marketplace-payments/internal/api"
	"marketplace-payments/internal/broker"
	"marketplace-payments/internal/gateway"
	"marketplace-payments/internal/notifier"
	"marketplace-payments/internal/ratelimit"
	"marketplace-payments/internal/redisclient"
	"marketplace-payments/internal/service"
	"marketplace-payments/internal/store"
	"marketplace-payments/internal/util"
	"marketplace-payments/internal/webhook"
	"marketplace-payments/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if cfg.Stripe.WebhookSecret == "" {
		log.Println("WARNING: STRIPE_WEBHOOK_SECRET is not set; webhook endpoint will reject all events")
	}

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting marketplace payments service")

	tp, err := util.InitTracer("marketplace-payments", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotifications)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	sweeperCtx, sweeperCancel := context.WithCancel(context.Background())
	defer sweeperCancel()

	var limiterStore ratelimit.Store
	if cfg.RateLimit.Backend == "redis" {
		limiterStore = ratelimit.NewRedisStore(redisClient)
	} else {
		memStore := ratelimit.NewMemoryStore()
		memStore.StartSweeper(sweeperCtx, cfg.RateLimit.SweepInterval, cfg.RateLimit.IdleRetention)
		limiterStore = memStore
	}
	limiter := ratelimit.NewLimiter(limiterStore)

	gatewayClient := gateway.NewHTTPClient(cfg.Stripe.APIBaseURL, cfg.Stripe.APIKey)
	notifySink := notifier.New(db, producer)

	paymentService := service.NewPaymentService(db, notifySink)
	payoutService := service.NewPayoutService(db, gatewayClient, redisClient, notifySink)
	subscriptionService := service.NewSubscriptionService(db, notifySink)
	refundService := service.NewRefundService(db, gatewayClient, redisClient, notifySink)

	verifier := webhook.NewVerifier(cfg.Stripe.WebhookSecret, cfg.Stripe.SignatureTolerance)
	dispatcher := webhook.NewDispatcher(db, paymentService, payoutService, subscriptionService)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	notificationConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotifications, cfg.Kafka.ConsumerGroup)
	notificationWorker := worker.NewNotificationWorker(notificationConsumer, worker.NewLogSender())
	go func() {
		if err := notificationWorker.Start(workerCtx); err != nil {
			log.Printf("Notification worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(cfg, verifier, dispatcher, refundService, payoutService, limiter)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	notificationWorker.Stop()

	log.Println("Server exited")
}
