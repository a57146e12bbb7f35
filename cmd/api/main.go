package main

import (
	"context"
	"log"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/go-crashcart-checkout/internal/accounts"
	"github.com/imrishuroy/go-crashcart-checkout/internal/aws"
	"github.com/imrishuroy/go-crashcart-checkout/internal/catalog"
	"github.com/imrishuroy/go-crashcart-checkout/internal/checkout"
	"github.com/imrishuroy/go-crashcart-checkout/internal/config"
	"github.com/imrishuroy/go-crashcart-checkout/internal/coupons"
	"github.com/imrishuroy/go-crashcart-checkout/internal/handlers"
	"github.com/imrishuroy/go-crashcart-checkout/internal/idempotency"
	"github.com/imrishuroy/go-crashcart-checkout/internal/locks"
	"github.com/imrishuroy/go-crashcart-checkout/internal/logging"
	"github.com/imrishuroy/go-crashcart-checkout/internal/metrics"
	"github.com/imrishuroy/go-crashcart-checkout/internal/notify"
	"github.com/imrishuroy/go-crashcart-checkout/internal/orders"
	"github.com/imrishuroy/go-crashcart-checkout/internal/rewards"
	"github.com/imrishuroy/go-crashcart-checkout/internal/settings"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func setupRouter(cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterOrdersRoutes(r, cfg)

	return r
}

func newNotifier(cfg *config.Config, clients *aws.AWSClients, logger *zap.Logger) notify.Notifier {
	switch cfg.NotifyTransport {
	case config.TransportSQS:
		if cfg.QueueURL != "" {
			return notify.NewSQSNotifier(aws.NewPublisher(clients.SQS, cfg.QueueURL))
		}
		logger.Warn("ORDERS_QUEUE_URL not set, order notifications disabled")
	case config.TransportKafka:
		return notify.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
	}
	return notify.Noop{Logger: logger}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.RunLocal)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		logger.Fatal("failed to init aws clients", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()

	provider := settings.NewCachedProvider(
		settings.NewDynamoSource(clients.DynamoDB, cfg.SettingsTable, cfg.CouponsTable),
		rdb, "crashcart:settings:", cfg.SettingsTTL, logger)

	var recorder *metrics.Recorder
	if cfg.MetricsEnabled {
		recorder = metrics.NewRecorder(clients.CloudWatch, cfg.MetricsNamespace, logger)
	}

	notifier := newNotifier(cfg, clients, logger)
	defer notifier.Close()

	svc := checkout.New(checkout.Deps{
		Catalog:     catalog.NewStore(clients.DynamoDB, cfg.ProductsTable, cfg.FlashSalesTable, logger),
		Orders:      orders.NewStore(clients.DynamoDB, cfg.OrdersTable, cfg.OrdersUserIndex),
		Idempotency: idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.IdempotencyTTL),
		Accounts:    accounts.NewStore(clients.DynamoDB, cfg.AddressesTable, cfg.CartsTable),
		Coupons:     coupons.NewStore(clients.DynamoDB, cfg.CouponUsageTable, cfg.CouponsTable),
		Rewards:     rewards.NewIssuer(rewards.NewStore(clients.DynamoDB, cfg.RewardsTable), cfg.RewardRate, cfg.RewardValidity, logger),
		Settings:    provider,
		Locker:      locks.NewRedisLocker(rdb, "crashcart:checkout:", cfg.CheckoutLockTTL, cfg.CheckoutLockWait),
		Notifier:    notifier,
		Metrics:     recorder,
	}, checkout.Options{
		DedupeWindow:         cfg.DedupeWindow,
		IdempotencyTTL:       cfg.IdempotencyTTL,
		TrustedCouponSources: cfg.TrustedCouponSources,
	}, logger)

	r := setupRouter(handlers.HandlerConfig{
		Checkout:   svc,
		Settings:   provider,
		AdminToken: cfg.AdminToken,
		Logger:     logger,
	})

	// RUN_LOCAL=true serves plain HTTP for development.
	if cfg.RunLocal {
		addr := ":" + cfg.Port
		logger.Info("running local server", zap.String("addr", addr))
		if err := r.Run(addr); err != nil {
			logger.Fatal("failed to run local server", zap.Error(err))
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (interface{}, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
