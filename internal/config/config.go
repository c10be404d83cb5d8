// Package config loads service configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type ServerConfig struct {
	Host string `mapstructure:"SERVER_HOST"`
	Port int    `mapstructure:"SERVER_PORT"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type MongoConfig struct {
	URI      string `mapstructure:"MONGO_URI"`
	Database string `mapstructure:"MONGO_DATABASE"`
}

type RedisConfig struct {
	Addr string `mapstructure:"REDIS_ADDR"`
	DB   int    `mapstructure:"REDIS_DB"`
}

type IngestConfig struct {
	BatchSize          int    `mapstructure:"INGEST_BATCH_SIZE"`
	ReplayLimit        int    `mapstructure:"INGEST_REPLAY_LIMIT"`
	TempDir            string `mapstructure:"INGEST_TEMP_DIR"`
	WorkerChunkSizeKB  int    `mapstructure:"INGEST_WORKER_CHUNK_KB"`
	SessionIdleMinutes int    `mapstructure:"INGEST_SESSION_IDLE_MINUTES"`
	TempFileMaxAgeHrs  int    `mapstructure:"INGEST_TEMP_MAX_AGE_HOURS"`
}

func (i IngestConfig) WorkerChunkSize() int {
	return i.WorkerChunkSizeKB * 1024
}

func (i IngestConfig) SessionIdleTimeout() time.Duration {
	return time.Duration(i.SessionIdleMinutes) * time.Minute
}

func (i IngestConfig) TempFileMaxAge() time.Duration {
	return time.Duration(i.TempFileMaxAgeHrs) * time.Hour
}

type WorkerConfig struct {
	Concurrency int `mapstructure:"WORKER_CONCURRENCY"`
	MaxRetry    int `mapstructure:"WORKER_MAX_RETRY"`
}

type Config struct {
	Env    string `mapstructure:"APP_ENV"`
	Server ServerConfig
	Mongo  MongoConfig
	Redis  RedisConfig
	Ingest IngestConfig
	Worker WorkerConfig
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Load reads configuration from the environment. A .env file, if present, is
// loaded first but never overrides real environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DATABASE", "formstream")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("INGEST_BATCH_SIZE", 1000)
	v.SetDefault("INGEST_REPLAY_LIMIT", 256)
	v.SetDefault("INGEST_TEMP_DIR", "/tmp/formstream-uploads")
	v.SetDefault("INGEST_WORKER_CHUNK_KB", 64)
	v.SetDefault("INGEST_SESSION_IDLE_MINUTES", 30)
	v.SetDefault("INGEST_TEMP_MAX_AGE_HOURS", 24)
	v.SetDefault("WORKER_CONCURRENCY", 4)
	v.SetDefault("WORKER_MAX_RETRY", 3)

	cfg := &Config{
		Env: v.GetString("APP_ENV"),
		Server: ServerConfig{
			Host: v.GetString("SERVER_HOST"),
			Port: v.GetInt("SERVER_PORT"),
		},
		Mongo: MongoConfig{
			URI:      v.GetString("MONGO_URI"),
			Database: v.GetString("MONGO_DATABASE"),
		},
		Redis: RedisConfig{
			Addr: v.GetString("REDIS_ADDR"),
			DB:   v.GetInt("REDIS_DB"),
		},
		Ingest: IngestConfig{
			BatchSize:          v.GetInt("INGEST_BATCH_SIZE"),
			ReplayLimit:        v.GetInt("INGEST_REPLAY_LIMIT"),
			TempDir:            v.GetString("INGEST_TEMP_DIR"),
			WorkerChunkSizeKB:  v.GetInt("INGEST_WORKER_CHUNK_KB"),
			SessionIdleMinutes: v.GetInt("INGEST_SESSION_IDLE_MINUTES"),
			TempFileMaxAgeHrs:  v.GetInt("INGEST_TEMP_MAX_AGE_HOURS"),
		},
		Worker: WorkerConfig{
			Concurrency: v.GetInt("WORKER_CONCURRENCY"),
			MaxRetry:    v.GetInt("WORKER_MAX_RETRY"),
		},
	}

	if cfg.Ingest.BatchSize <= 0 {
		return nil, fmt.Errorf("INGEST_BATCH_SIZE must be positive, got %d", cfg.Ingest.BatchSize)
	}
	return cfg, nil
}
