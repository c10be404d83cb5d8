package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/formstream/backend/internal/api"
	"github.com/formstream/backend/internal/config"
	"github.com/formstream/backend/internal/contract"
	"github.com/formstream/backend/internal/ingest"
	"github.com/formstream/backend/internal/progress"
	"github.com/formstream/backend/internal/queue"
	"github.com/formstream/backend/internal/sink"
	"github.com/formstream/backend/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger := config.NewLogger(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		logger.Error("connecting to mongo", slog.Any("error", err))
		os.Exit(1)
	}
	if err := mongoClient.Ping(ctx, nil); err != nil {
		logger.Error("pinging mongo", slog.Any("error", err))
		os.Exit(1)
	}
	db := mongoClient.Database(cfg.Mongo.Database)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("pinging redis", slog.Any("error", err))
		os.Exit(1)
	}

	resolver := contract.NewMongoResolver(db)
	bulkSink := sink.NewMongoSink(db, logger)
	broadcaster := progress.NewBroadcaster(cfg.Ingest.ReplayLimit, logger)
	bridge := progress.NewRedisBridge(rdb, cfg.Ingest.ReplayLimit, logger)

	// worker-side events arrive over Redis and fan out to local subscribers
	go func() {
		if err := bridge.Relay(context.Background(), broadcaster); err != nil &&
			!strings.Contains(err.Error(), "context canceled") {
			logger.Error("progress relay stopped", slog.Any("error", err))
		}
	}()

	sessions := ingest.NewStore(resolver, bulkSink, broadcaster, cfg.Ingest.BatchSize, logger)

	// janitor: abandoned sessions and orphaned temp files
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			sessions.EvictIdle(cfg.Ingest.SessionIdleTimeout())
		}
	}()

	tempStore, err := storage.NewTempStore(cfg.Ingest.TempDir, logger)
	if err != nil {
		logger.Error("initializing temp store", slog.Any("error", err))
		os.Exit(1)
	}
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			tempStore.CleanupOld(cfg.Ingest.TempFileMaxAge())
		}
	}()

	queueClient := queue.NewClient(queue.ClientConfig{
		RedisAddr: cfg.Redis.Addr,
		RedisDB:   cfg.Redis.DB,
		MaxRetry:  cfg.Worker.MaxRetry,
	}, logger)
	defer queueClient.Close()

	h := api.NewHandler(api.HandlerConfig{
		Sessions:    sessions,
		Resolver:    resolver,
		Broadcaster: broadcaster,
		JobEvents:   bridge,
		History:     bridge,
		TempStore:   tempStore,
		Enqueuer:    queueClient,
		Logger:      logger,
	})

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = api.ErrorHandler

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return path == "/api/health" || strings.Contains(path, "/progress/")
		},
	}))
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 * 1024,
	}))
	e.Use(middleware.BodyLimit("16M"))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	api.RegisterRoutes(e, h)

	s := &http.Server{
		Addr:        cfg.Server.Addr(),
		ReadTimeout: 60 * time.Second,
		// no WriteTimeout: progress streams stay open for the whole upload
		IdleTimeout: 120 * time.Second,
	}

	logger.Info("ingestion API listening",
		slog.String("addr", cfg.Server.Addr()),
		slog.String("env", cfg.Env))
	e.Logger.Fatal(e.StartServer(s))
}
