package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/fjod/go_shop/internal/cache"
	h "github.com/fjod/go_shop/internal/http"
	"github.com/fjod/go_shop/internal/pricing"
	"github.com/fjod/go_shop/internal/publisher"
	"github.com/fjod/go_shop/internal/repository"
	"github.com/fjod/go_shop/internal/service"
	"github.com/fjod/go_shop/pkg/config"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	pricingCfg, err := pricingConfig(cfg)
	if err != nil {
		log.Fatalf("Invalid pricing config: %v", err)
	}

	creds := &repository.Credentials{
		Host:              cfg.PostgresHost,
		Port:              cfg.PostgresPort,
		User:              cfg.PostgresUser,
		Password:          cfg.PostgresPassword,
		DBName:            cfg.PostgresDB,
		MigrationsDirPath: cfg.MigrationsDir,
	}

	repo, err := repository.NewRepository(creds)
	if err != nil {
		log.Fatalf("Failed to connect to postgres: %v", err)
	}
	defer repo.Close()

	if err := repo.RunMigrations(creds); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("connected to postgres", zap.String("host", cfg.PostgresHost))

	ctx := context.Background()
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("Redis connection failed: %v", err)
	}
	logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))

	cartCache := cache.NewRedisCache(redisClient, cfg.CartCacheTTL)
	cartService := service.NewCartService(repo, repo, cartCache, logger)
	orderService := service.NewOrderService(repo, repo, cartCache, pricing.NewEngine(pricingCfg), logger)

	pollerCtx, stopPoller := context.WithCancel(ctx)
	poller := publisher.NewOutboxPoller(repo, logger, cfg.KafkaBrokers...)
	go poller.Run(pollerCtx)

	cartHandler := h.NewCartHandler(cartService, cfg.RequestTimeout)
	orderHandler := h.NewOrderHandler(orderService, cfg.RequestTimeout)
	productHandler := h.NewProductHandler(repo, cfg.RequestTimeout)

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(h.RequestIDMiddleware)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))
	r.Use(h.MockAuthMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Get("/", productHandler.ListProducts)
			r.Get("/{product_id}", productHandler.GetProduct)
		})
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Post("/items", cartHandler.AddItem)
			r.Put("/items/{product_id}", cartHandler.UpdateQuantity)
			r.Delete("/items/{product_id}", cartHandler.RemoveItem)
			r.Delete("/", cartHandler.ClearCart)
		})
		r.Route("/orders", func(r chi.Router) {
			r.Post("/", orderHandler.CreateOrder)
			r.Get("/", orderHandler.ListOrders)
			r.Get("/{order_id}", orderHandler.GetOrder)
			r.Patch("/{order_id}/status", orderHandler.UpdateStatus)
			r.Patch("/{order_id}/payment-status", orderHandler.UpdatePaymentStatus)
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(r, "go_shop"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	stopPoller()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	logger.Info("server exited")
}

func pricingConfig(cfg *config.Config) (pricing.Config, error) {
	taxRate, err := decimal.NewFromString(cfg.TaxRate)
	if err != nil {
		return pricing.Config{}, err
	}
	threshold, err := decimal.NewFromString(cfg.FreeShippingThreshold)
	if err != nil {
		return pricing.Config{}, err
	}
	flat, err := decimal.NewFromString(cfg.FlatShippingCost)
	if err != nil {
		return pricing.Config{}, err
	}
	return pricing.Config{
		TaxRate:               taxRate,
		FreeShippingThreshold: threshold,
		FlatShippingCost:      flat,
	}, nil
}
