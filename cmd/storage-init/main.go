package main

import (
	"context"
	"os"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"studyboard/storage"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("storage init starting")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	pgURL := os.Getenv("POSTGRES_URL")
	if connStr == "" && pgURL == "" {
		log.Fatal("missing STORAGE_CONNECTION_STRING or POSTGRES_URL")
	}

	if connStr != "" {
		if err := storage.EnsureTables(ctx, connStr, os.Getenv("TASKS_TABLE")); err != nil {
			log.Fatalf("create tables: %v", err)
		}
		if err := storage.EnsureQueues(ctx, connStr, os.Getenv("EVENTS_QUEUE")); err != nil {
			log.Fatalf("create queues: %v", err)
		}
	}

	if pgURL != "" {
		pg, err := storage.NewPostgres(ctx, pgURL)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Fatalf("postgres schema: %v", err)
		}
	}

	log.Info("storage init complete")
}
