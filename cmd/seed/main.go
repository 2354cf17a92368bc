package main

import (
	"context"
	"flag"

	"go.uber.org/zap"

	"storecart/internal/config"
	"storecart/internal/db"
	"storecart/internal/logger"
	offeringrepo "storecart/internal/repository/offering"
	storerepo "storecart/internal/repository/store"
	"storecart/internal/seed"
)

func main() {
	perStore := flag.Int("per-store", 10, "offerings generated per store")
	seedValue := flag.Uint64("seed", 1, "random seed for generated catalog data")
	flag.Parse()

	cfg, err := config.FromEnv()
	if err != nil {
		zap.NewExample().Fatal("load config", zap.Error(err))
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}).Named("seed")
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		log.Fatal("connect db", zap.Error(err))
	}
	defer pool.Close()

	err = seed.Apply(ctx, storerepo.NewPostgres(pool), offeringrepo.NewPostgres(pool, log), seed.Options{
		PerStore: *perStore,
		Seed:     *seedValue,
		Logger:   log,
	})
	if err != nil {
		log.Fatal("seed apply", zap.Error(err))
	}

	log.Info("seed applied")
}
