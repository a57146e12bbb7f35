package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/imrishuroy/go-crashcart-checkout/internal/aws"
	"github.com/imrishuroy/go-crashcart-checkout/internal/config"
	"github.com/imrishuroy/go-crashcart-checkout/internal/idempotency"
	"github.com/imrishuroy/go-crashcart-checkout/internal/logging"
	"github.com/imrishuroy/go-crashcart-checkout/internal/orders"
	"github.com/imrishuroy/go-crashcart-checkout/internal/rewards"
	"go.uber.org/zap"
)

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

	p := NewProcessor(
		idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.IdempotencyTTL),
		orders.NewStore(clients.DynamoDB, cfg.OrdersTable, cfg.OrdersUserIndex),
		rewards.NewIssuer(rewards.NewStore(clients.DynamoDB, cfg.RewardsTable), cfg.RewardRate, cfg.RewardValidity, logger),
		LogMailer{Logger: logger},
		logger,
	)

	// RUN_LOCAL=true processes one simulated message from LOCAL_SQS_BODY.
	if cfg.RunLocal {
		body := cfg.LocalSQSBody
		if body == "" {
			body = `{"order_id":"local-order-1"}`
		}
		resp, err := p.Handle(context.Background(), events.SQSEvent{
			Records: []events.SQSMessage{{MessageId: "local-1", Body: body}},
		})
		if err != nil {
			logger.Fatal("local batch failed", zap.Error(err))
		}
		if len(resp.BatchItemFailures) > 0 {
			logger.Fatal("local message failed")
		}
		return
	}

	lambda.Start(p.Handle)
}
