package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"checkout-core/internal/config"
	"checkout-core/internal/database"
	"checkout-core/internal/gateway"
	"checkout-core/internal/repo"
	"checkout-core/internal/service"
	transport "checkout-core/internal/transport/http"
	"checkout-core/internal/webhook"
	"checkout-core/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.EnsureSchema(ctx, db); err != nil {
		log.Fatalf("schema: %v", err)
	}

	orderRepo := repo.NewOrderRepo(db)
	catalogRepo := repo.NewCatalogRepo(db)
	addressRepo := repo.NewAddressRepo(db)
	userRepo := repo.NewUserRepo(db)

	fastpay := gateway.NewClient(cfg.FastpayBaseURL, cfg.FastpayAPIKey, cfg.GatewayTimeout)

	checkoutService := service.NewCheckoutService(
		orderRepo, catalogRepo, addressRepo, userRepo,
		fastpay, cfg.Currency, cfg.FrontendURL, logger,
	)
	resolver := service.NewResolver(orderRepo, userRepo, fastpay, cfg.Currency, logger)

	authenticator := webhook.NewAuthenticator(cfg.FastpayWebhookSecret)
	tokens := transport.NewTokenVerifier(cfg.JWTSecret)

	sweeper := worker.NewReconciliationWorker(
		orderRepo, fastpay, resolver, cfg.SweepInterval, cfg.SweepMinAge, logger,
	)
	go sweeper.Run(ctx)

	server := transport.NewServer(db, checkoutService, resolver, authenticator, orderRepo, tokens, logger)

	logger.Info("listening", "port", cfg.Port)
	if err := server.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server: %v", err)
	}
}
