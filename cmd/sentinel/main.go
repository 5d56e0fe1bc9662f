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

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/politrack/sentinel/internal/api"
	"github.com/politrack/sentinel/internal/archive"
	"github.com/politrack/sentinel/internal/campaign"
	"github.com/politrack/sentinel/internal/collector"
	"github.com/politrack/sentinel/internal/config"
	"github.com/politrack/sentinel/internal/dedup"
	"github.com/politrack/sentinel/internal/notifications"
	"github.com/politrack/sentinel/internal/ratelimit"
	"github.com/politrack/sentinel/internal/scheduler"
	"github.com/politrack/sentinel/internal/sentiment"
	"github.com/politrack/sentinel/internal/sources"
	"github.com/politrack/sentinel/internal/store"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.Info("Starting Sentinel")

	// Database
	pool, err := store.Connect(context.Background(), cfg.DatabaseURL)
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := store.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		logrus.Fatalf("Failed to run migrations: %v", err)
	}
	st := store.NewPostgresStore(pool)

	// Dedup cache and rate limiter share the Redis instance. Both degrade
	// to in-memory when Redis is not configured.
	var cache dedup.Cache
	var limiter ratelimit.Limiter
	if cfg.RedisURL != "" {
		redisCache, err := dedup.NewRedisCache(cfg.RedisURL)
		if err != nil {
			logrus.Fatalf("Failed to connect to Redis: %v", err)
		}
		cache = dedup.NewFailOpen(redisCache)

		redisLimiter, err := ratelimit.NewRedisLimiter(cfg.RedisURL, cfg.RateLimits, cfg.RateLimitEnforced)
		if err != nil {
			logrus.Fatalf("Failed to create rate limiter: %v", err)
		}
		limiter = redisLimiter
	} else {
		logrus.Warn("REDIS_URL not set, using in-memory dedup and rate limiting")
		cache = dedup.NewMemoryCache()
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimits, cfg.RateLimitEnforced)
	}

	// Sentiment engine, optionally backed by an external classifier
	var classifier sentiment.Classifier
	if cfg.ClassifierURL != "" {
		classifier = sentiment.NewHTTPClassifier(cfg.ClassifierURL, cfg.ClassifierAPIKey)
		logrus.Infof("Using external sentiment classifier at %s", cfg.ClassifierURL)
	}
	engine := sentiment.NewEngine(classifier)

	// Raw snapshot archive
	var archiver archive.Archiver
	if cfg.StorageAccount != "" {
		archiver, err = archive.NewAzureArchiver(cfg.StorageAccount, cfg.StorageContainer)
		if err != nil {
			logrus.Fatalf("Failed to initialize archive storage: %v", err)
		}
	} else {
		logrus.Info("AZURE_STORAGE_ACCOUNT not set, raw snapshots kept in memory only")
		archiver = archive.NewMemoryArchiver()
	}

	publisher := notifications.NewHub(cfg)

	platformSources := []sources.PlatformSource{
		sources.NewTwitterSource(cfg.TwitterBearerToken),
		sources.NewFacebookSource(cfg.FacebookAccessToken),
		sources.NewInstagramSource(cfg.InstagramAccessToken),
		sources.NewYouTubeSource(cfg.YouTubeAPIKey),
		sources.NewRedditSource(cfg.RedditClientID, cfg.RedditClientSecret),
	}

	col := collector.New(cfg, platformSources, engine, cache, limiter, st, publisher, archiver)
	detector := campaign.NewDetector(cfg, st, publisher)

	schedulerService := scheduler.NewService(cfg, col, detector)
	if err := schedulerService.Start(); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}
	defer schedulerService.Stop()

	apiServer := api.NewServer(cfg, schedulerService, detector, st, cache, archiver)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      apiServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited")
}
