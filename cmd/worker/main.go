package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/formstream/backend/internal/config"
	"github.com/formstream/backend/internal/contract"
	"github.com/formstream/backend/internal/progress"
	"github.com/formstream/backend/internal/queue"
	"github.com/formstream/backend/internal/sink"
	"github.com/formstream/backend/internal/storage"
	"github.com/formstream/backend/internal/worker"
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

	tempStore, err := storage.NewTempStore(cfg.Ingest.TempDir, logger)
	if err != nil {
		logger.Error("initializing temp store", slog.Any("error", err))
		os.Exit(1)
	}

	// progress goes out through Redis so the API process can relay it
	bridge := progress.NewRedisBridge(rdb, cfg.Ingest.ReplayLimit, logger)

	processor := worker.NewProcessor(worker.ProcessorConfig{
		Resolver:  contract.NewMongoResolver(db),
		Sink:      sink.NewMongoSink(db, logger),
		Events:    bridge,
		TempStore: tempStore,
		BatchSize: cfg.Ingest.BatchSize,
		ChunkSize: cfg.Ingest.WorkerChunkSize(),
		Logger:    logger,
	})

	srv := queue.NewServer(queue.ServerConfig{
		RedisAddr:   cfg.Redis.Addr,
		RedisDB:     cfg.Redis.DB,
		Concurrency: cfg.Worker.Concurrency,
	}, logger)

	mux := asynq.NewServeMux()
	processor.Register(mux)

	logger.Info("ingestion worker starting",
		slog.Int("concurrency", cfg.Worker.Concurrency),
		slog.String("env", cfg.Env))
	if err := srv.Run(mux); err != nil {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
