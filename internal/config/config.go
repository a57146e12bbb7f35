package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Notification transports.
const (
	TransportSQS   = "sqs"
	TransportKafka = "kafka"
	TransportNone  = "none"
)

// Config is the process configuration, read from the environment.
type Config struct {
	Port     string `envconfig:"PORT" default:"8080"`
	RunLocal bool   `envconfig:"RUN_LOCAL" default:"false"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Message body the worker processes once when RunLocal is set.
	LocalSQSBody string `envconfig:"LOCAL_SQS_BODY"`

	OrdersTable      string `envconfig:"ORDERS_TABLE" default:"orders"`
	OrdersUserIndex  string `envconfig:"ORDERS_USER_INDEX" default:"user_id-created_at-index"`
	IdempotencyTable string `envconfig:"IDEMPOTENCY_TABLE" default:"idempotency"`
	ProductsTable    string `envconfig:"PRODUCTS_TABLE" default:"products"`
	FlashSalesTable  string `envconfig:"FLASH_SALES_TABLE" default:"flash_sales"`
	SettingsTable    string `envconfig:"SETTINGS_TABLE" default:"settings"`
	CouponsTable     string `envconfig:"COUPONS_TABLE" default:"coupons"`
	CouponUsageTable string `envconfig:"COUPON_USAGE_TABLE" default:"coupon_usage"`
	RewardsTable     string `envconfig:"REWARDS_TABLE" default:"crashcash_rewards"`
	AddressesTable   string `envconfig:"ADDRESSES_TABLE" default:"addresses"`
	CartsTable       string `envconfig:"CARTS_TABLE" default:"carts"`

	IdempotencyTTL time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"48h"`
	DedupeWindow   time.Duration `envconfig:"DEDUPE_WINDOW" default:"24h"`

	NotifyTransport string   `envconfig:"NOTIFY_TRANSPORT" default:"sqs"`
	QueueURL        string   `envconfig:"ORDERS_QUEUE_URL"`
	KafkaBrokers    []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	KafkaTopic      string   `envconfig:"KAFKA_TOPIC" default:"order-events"`

	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	SettingsTTL   time.Duration `envconfig:"SETTINGS_CACHE_TTL" default:"5m"`

	// Per-user checkout lease serializing concurrent submissions.
	CheckoutLockTTL  time.Duration `envconfig:"CHECKOUT_LOCK_TTL" default:"30s"`
	CheckoutLockWait time.Duration `envconfig:"CHECKOUT_LOCK_WAIT" default:"5s"`

	RewardRate     float64       `envconfig:"REWARD_RATE" default:"0.10"`
	RewardValidity time.Duration `envconfig:"REWARD_VALIDITY" default:"720h"`

	MetricsNamespace string `envconfig:"METRICS_NAMESPACE" default:"CrashCart/Checkout"`
	MetricsEnabled   bool   `envconfig:"METRICS_ENABLED" default:"true"`

	// Coupon sources whose client-supplied discount is honored when no
	// server definition exists (scratch-card rewards).
	TrustedCouponSources []string `envconfig:"TRUSTED_COUPON_SOURCES" default:"scratch_card"`

	// Admin token guarding cache invalidation; empty disables the route.
	AdminToken string `envconfig:"ADMIN_TOKEN"`
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	// a missing .env is the normal case outside development
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	switch cfg.NotifyTransport {
	case TransportSQS, TransportKafka, TransportNone:
	default:
		return nil, fmt.Errorf("unknown NOTIFY_TRANSPORT %q", cfg.NotifyTransport)
	}
	return &cfg, nil
}
