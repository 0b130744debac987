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

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	domain "github.com/studiobook/api/internal/domain"
	"github.com/studiobook/api/internal/handlers"
	"github.com/studiobook/api/internal/payments"
	"github.com/studiobook/api/internal/platform/auth"
	"github.com/studiobook/api/internal/platform/cache"
	"github.com/studiobook/api/internal/platform/commands"
	"github.com/studiobook/api/internal/platform/config"
	pfirestore "github.com/studiobook/api/internal/platform/firestore"
	"github.com/studiobook/api/internal/platform/jobs"
	"github.com/studiobook/api/internal/platform/observability"
	platformstorage "github.com/studiobook/api/internal/platform/storage"
	firestoreRepo "github.com/studiobook/api/internal/repositories/firestore"
	"github.com/studiobook/api/internal/services"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	serviceLogger := observability.ServiceLogger()

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	if _, err := firestoreProvider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		if err := firestoreProvider.Close(); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	storageClient, err := cloudstorage.NewClient(ctx)
	if err != nil {
		logger.Fatal("failed to initialise storage client", zap.Error(err))
	}
	defer func() {
		if err := storageClient.Close(); err != nil {
			logger.Warn("storage close error", zap.Error(err))
		}
	}()

	uploader, err := platformstorage.NewUploader(storageClient, cfg.Storage.DeliverablesBucket, cfg.Storage.PublicBaseURL)
	if err != nil {
		logger.Fatal("failed to initialise deliverable uploader", zap.Error(err))
	}

	accountProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey: cfg.Stripe.APIKey,
		Logger: serviceLogger,
	})
	if err != nil {
		logger.Fatal("failed to initialise stripe provider", zap.Error(err))
	}

	pubsubClient, err := pubsub.NewClient(ctx, cfg.Events.ProjectID)
	if err != nil {
		logger.Fatal("failed to initialise pubsub client", zap.Error(err))
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}()

	orderTopic := pubsubClient.Topic(cfg.Events.OrderTopic)
	defer orderTopic.Stop()

	eventPublisher, err := jobs.NewPubSubOrderPublisher(orderTopic)
	if err != nil {
		logger.Fatal("failed to initialise order event publisher", zap.Error(err))
	}

	commandClient, err := commands.NewClient(cfg.Commands)
	if err != nil {
		logger.Fatal("failed to initialise order command client", zap.Error(err))
	}

	verifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(verifier)
	webhookValidator := auth.NewHMACValidator([]byte(cfg.Webhooks.SigningSecret), auth.NewInMemoryNonceStore())

	orderRepo, err := firestoreRepo.NewOrderRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise order repository", zap.Error(err))
	}

	gate, err := services.NewPayoutEligibilityGate(services.PayoutGateDeps{
		Accounts: accountProvider,
		Logger:   serviceLogger,
	})
	if err != nil {
		logger.Fatal("failed to initialise payout gate", zap.Error(err))
	}

	orderCache := cache.New[domain.Order](cfg.Cache.OrderTTL)

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:   orderRepo,
		Gate:     gate,
		Commands: commandClient,
		Cache:    orderCache,
		Events:   eventPublisher,
		Logger:   serviceLogger,
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}

	finalizationService, err := services.NewFinalizationService(services.FinalizationServiceDeps{
		Orders:       orderService,
		Storage:      uploader,
		Commands:     commandClient,
		MaxFileBytes: cfg.Finalization.MaxFileBytes,
		Logger:       serviceLogger,
	})
	if err != nil {
		logger.Fatal("failed to initialise finalization service", zap.Error(err))
	}

	orderHandlers := handlers.NewOrderHandlers(authenticator, orderService, finalizationService)
	webhookHandlers := handlers.NewWebhookHandlers(orderService)

	health := handlers.NewHealthHandlers(handlers.ReadinessCheck{
		Name: "firestore",
		Check: func() error {
			checkCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_, err := firestoreProvider.Client(checkCtx)
			return err
		},
	})

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.RequestLoggerMiddleware(),
		),
		handlers.WithHealthHandlers(health),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
		handlers.WithWebhookMiddlewares(webhookValidator.RequireSignature()),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("studiobook api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
