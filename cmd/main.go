package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/returnlab/portal/internal/blob"
	"github.com/returnlab/portal/internal/config"
	"github.com/returnlab/portal/internal/db"
	"github.com/returnlab/portal/internal/kafka"
	"github.com/returnlab/portal/internal/logger"
	"github.com/returnlab/portal/internal/oauth"
	"github.com/returnlab/portal/internal/orders"
	"github.com/returnlab/portal/internal/repository/postgresql"
	"github.com/returnlab/portal/internal/returns"
	"github.com/returnlab/portal/internal/server"
	"github.com/returnlab/portal/internal/shopify"
	"github.com/returnlab/portal/internal/stores"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Debug)
	defer func() { _ = log.Sync() }()

	database, err := db.NewDb(ctx, cfg.DSN())
	if err != nil {
		log.Fatal("database init failed", zap.Error(err))
	}
	defer database.Close()

	storeRepo := postgresql.NewStoreRepo(database)
	requestRepo := postgresql.NewReturnRequestRepo(database)
	actionRepo := postgresql.NewAdminActionRepo(database)
	outboxRepo := postgresql.NewOutboxTaskRepo()

	shopifyClient := shopify.NewClient(cfg.StorefrontTimeout)

	aggregator := orders.NewAggregator(storeRepo, requestRepo, shopifyClient, log)
	returnSvc := returns.NewService(requestRepo, actionRepo, log)
	storeSvc := stores.NewService(storeRepo, requestRepo, shopifyClient, log)

	stateCodec := oauth.NewStateCodec(cfg.OAuthStateSecret)
	oauthSvc := oauth.NewService(stateCodec, shopifyClient, storeSvc, cfg.AppBaseURL, log)

	fileStore, err := blob.NewFileStore(cfg.UploadDir, cfg.AppBaseURL)
	if err != nil {
		log.Fatal("upload dir init failed", zap.Error(err))
	}

	auditSink := server.NewOutboxAuditSink(database, outboxRepo, cfg.AuditTopic)
	auditManager := server.NewAuditManager(2, 5, 500*time.Millisecond, auditSink, log)

	var producer kafka.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = kafka.NewKafkaProducer(cfg.KafkaBrokers)
	} else {
		producer = kafka.NewConsoleProducer(log)
	}
	publisher := kafka.NewPublisher(database, outboxRepo, producer, kafka.PublisherConfig{
		PollInterval: time.Second,
		BatchSize:    50,
		MaxAttempts:  5,
	}, log)
	go publisher.Run(ctx)

	srv := server.New(
		aggregator,
		returnSvc,
		storeSvc,
		oauthSvc,
		storeRepo,
		fileStore,
		auditManager,
		cfg.AdminTokenHash,
		log,
	)

	go func() {
		if err := srv.Run(ctx, cfg.HTTPPort); err != nil {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", zap.Error(err))
	}
	publisher.Shutdown()

	log.Info("server stopped")
}
