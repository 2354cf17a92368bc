package main

import (
	"context"
	"flag"

	"go.uber.org/zap"

	"storecart/internal/config"
	"storecart/internal/logger"
	"storecart/internal/migrate"
)

func main() {
	down := flag.Int("down", 0, "roll back this many migrations instead of applying")
	flag.Parse()

	cfg, err := config.FromEnv()
	if err != nil {
		zap.NewExample().Fatal("load config", zap.Error(err))
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}).Named("migrate")
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	if *down > 0 {
		if err := migrate.Rollback(ctx, cfg.DBConnString, *down); err != nil {
			log.Fatal("roll back migrations", zap.Error(err))
		}
		log.Info("migrations rolled back", zap.Int("steps", *down))
		return
	}

	if err := migrate.Apply(ctx, cfg.DBConnString); err != nil {
		log.Fatal("apply migrations", zap.Error(err))
	}
	log.Info("migrations applied")
}
