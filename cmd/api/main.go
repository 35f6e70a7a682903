package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront-backend/config"
	"storefront-backend/db"
	"storefront-backend/internal/delivery/http/middleware"
	v1 "storefront-backend/internal/delivery/http/v1"
	"storefront-backend/internal/domain"
	"storefront-backend/internal/infrastructure/cache"
	filerepo "storefront-backend/internal/repository/file"
	pgrepo "storefront-backend/internal/repository/postgres"
	"storefront-backend/internal/usecase"
	"storefront-backend/pkg/logger"
	"storefront-backend/pkg/storage"
	"storefront-backend/pkg/utils"

	"github.com/NYTimes/gziphandler"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

const serviceName = "storefront-shipping"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	utils.SetSecret(cfg.JWTSecret)

	logger.Init(serviceName, cfg.Env, cfg.LogLevel)
	log := logger.Get()

	ctx := context.Background()

	// --- Catalog source ---
	var (
		pgxPool   *pgxpool.Pool
		source    domain.CatalogSource
		repo      domain.ShippingRepository
		txManager domain.TransactionManager
	)
	switch cfg.CatalogSource {
	case config.CatalogSourcePostgres:
		if cfg.DBAutoMigrate {
			if err := db.Up(cfg.DBUrl); err != nil {
				log.Fatal().Err(err).Msg("Failed to apply database migrations")
			}
			log.Info().Msg("Database migrations applied")
		}

		pgxPool, err = pgrepo.NewPgxPool(ctx, cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer pgxPool.Close()
		log.Info().Msg("Successfully connected to PostgreSQL via pgx")

		repo = pgrepo.NewShippingRepository(pgxPool)
		source = repo
		txManager = pgrepo.NewTransactionManager(pgxPool)

	case config.CatalogSourceFile:
		source = filerepo.NewCatalogRepository(cfg.CatalogFile)
		log.Info().Str("file", cfg.CatalogFile).Msg("Serving read-only shipping catalog from file")
	}

	// --- Cache ---
	// Default expiration 30m, cleanup every 60m
	memCache := cache.NewMemoryCache(30*time.Minute, 60*time.Minute)

	var catalogCache domain.CatalogCache
	if cfg.CacheDriver == config.CacheDriverRedis {
		catalogCache = cache.NewRedisCatalogCache(ctx, &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, cfg.CatalogCacheTTL, memCache)
	} else {
		catalogCache = cache.NewMemoryCatalogCache(memCache, cfg.CatalogCacheTTL)
	}

	// --- Storage (R2 snapshot exports) ---
	var snapshots domain.SnapshotStorage
	if cfg.SnapshotExportEnabled() {
		r2Storage, err := storage.NewR2Storage(
			ctx,
			cfg.R2AccountID,
			cfg.R2AccessKeyID,
			cfg.R2AccessKeySecret,
			cfg.R2BucketName,
			cfg.R2PublicURL,
			cfg.R2UploadTimeout,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize R2 Storage")
		}
		snapshots = r2Storage
	} else {
		log.Warn().Msg("R2 credentials not set, catalog snapshot export disabled")
	}

	// --- Shipping Module ---
	shippingUC := usecase.NewShippingUsecase(source, repo, txManager, catalogCache, memCache, snapshots, cfg.PublicConfigTTL)
	shippingHandler := v1.NewShippingHandler(shippingUC)
	configHandler := v1.NewConfigHandler(shippingUC, cfg.PublicConfigTTL)
	adminShippingHandler := v1.NewAdminShippingHandler(shippingUC)

	mux := http.NewServeMux()

	// Checkout (Public)
	mux.HandleFunc("POST /api/v1/shipping/quote", shippingHandler.Quote)
	mux.HandleFunc("POST /api/v1/shipping/select", shippingHandler.SelectRate)
	mux.HandleFunc("GET /api/v1/config/shipping", configHandler.GetShippingConfig)

	// Admin (Protected)
	adminMiddleware := func(h http.HandlerFunc) http.Handler {
		return middleware.AuthMiddleware(middleware.AdminMiddleware(h))
	}

	mux.Handle("GET /api/v1/admin/shipping/zones", adminMiddleware(adminShippingHandler.ListZones))
	mux.Handle("POST /api/v1/admin/shipping/zones", adminMiddleware(adminShippingHandler.CreateZone))
	mux.Handle("GET /api/v1/admin/shipping/zones/{id}", adminMiddleware(adminShippingHandler.GetZone))
	mux.Handle("PUT /api/v1/admin/shipping/zones/{id}", adminMiddleware(adminShippingHandler.UpdateZone))
	mux.Handle("DELETE /api/v1/admin/shipping/zones/{id}", adminMiddleware(adminShippingHandler.DeleteZone))
	mux.Handle("POST /api/v1/admin/shipping/zones/{id}/rules", adminMiddleware(adminShippingHandler.AddRule))
	mux.Handle("DELETE /api/v1/admin/shipping/rules/{id}", adminMiddleware(adminShippingHandler.DeleteRule))
	mux.Handle("POST /api/v1/admin/shipping/zones/{id}/rates", adminMiddleware(adminShippingHandler.AddRate))
	mux.Handle("PUT /api/v1/admin/shipping/rates/{id}", adminMiddleware(adminShippingHandler.UpdateRate))
	mux.Handle("DELETE /api/v1/admin/shipping/rates/{id}", adminMiddleware(adminShippingHandler.DeleteRate))
	mux.Handle("GET /api/v1/admin/shipping/fallback", adminMiddleware(adminShippingHandler.GetFallback))
	mux.Handle("PUT /api/v1/admin/shipping/fallback", adminMiddleware(adminShippingHandler.UpdateFallback))
	mux.Handle("POST /api/v1/admin/shipping/export", adminMiddleware(adminShippingHandler.ExportSnapshot))

	// Health & Metrics
	healthHandler := func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "ok", "catalog": cfg.CatalogSource}
		if pgxPool != nil {
			pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := pgxPool.Ping(pingCtx); err != nil {
				status["status"] = "degraded"
				status["db"] = "unreachable"
				utils.WriteJSON(w, http.StatusServiceUnavailable, status)
				return
			}
			status["db"] = "connected"
		}
		utils.WriteJSON(w, http.StatusOK, status)
	}
	mux.HandleFunc("GET /api/v1/health", healthHandler)
	mux.HandleFunc("GET /health", healthHandler) // Support root health check for Load Balancers
	mux.Handle("GET /metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%s", cfg.Port)

	if err := middleware.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		log.Fatal().Err(err).Msg("Invalid TRUSTED_PROXIES")
	}

	rateLimiter := middleware.NewRateLimiter(
		ctx,
		rate.Limit(cfg.RateLimitRPS),
		cfg.RateLimitBurst,
		time.Minute,   // cleanup period
		3*time.Minute, // client TTL
	)

	// Apply CORS (with config injection), Request Logger, Rate Limit, and Gzip
	handler := middleware.NewCORSMiddleware(cfg)(mux)
	handler = rateLimiter.Middleware()(handler)
	handler = middleware.RequestLogger(handler)
	handler = gziphandler.GzipHandler(handler)

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful Shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	logger.ServiceStart("v1", cfg.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Server shutting down...")

	rateLimiter.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	logger.ServiceStop()
}
