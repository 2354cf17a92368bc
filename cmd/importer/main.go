package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"storecart/internal/config"
	"storecart/internal/db"
	"storecart/internal/domain"
	"storecart/internal/importer"
	"storecart/internal/logger"
	offeringrepo "storecart/internal/repository/offering"
	storerepo "storecart/internal/repository/store"
)

func main() {
	var (
		filePath string
		storeKey string
		currency string
	)
	flag.StringVar(&filePath, "file", "", "Path to offering CSV file")
	flag.StringVar(&storeKey, "store", "", "Store key to import into")
	flag.StringVar(&currency, "currency", "EUR", "Currency used when the store has to be created")
	flag.Parse()

	if filePath == "" || storeKey == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.FromEnv()
	if err != nil {
		zap.NewExample().Fatal("load config", zap.Error(err))
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}).Named("importer")
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		log.Fatal("connect db", zap.Error(err))
	}
	defer pool.Close()

	stores := storerepo.NewPostgres(pool)
	store, err := stores.GetByKey(ctx, storeKey)
	if errors.Is(err, domain.ErrNotFound) {
		store, err = stores.Upsert(ctx, domain.Store{Key: storeKey, Name: storeKey, Currency: strings.ToUpper(currency)})
	}
	if err != nil {
		log.Fatal("ensure store", zap.String("store", storeKey), zap.Error(err))
	}

	f, err := os.Open(filePath)
	if err != nil {
		log.Fatal("open file", zap.Error(err))
	}
	defer f.Close()

	imp := importer.NewCSVImporter(f, offeringrepo.NewPostgres(pool, log), *store, log)

	start := time.Now()
	count, err := imp.Run(ctx)
	if err != nil {
		log.Fatal("import failed", zap.Int("imported", count), zap.Error(err))
	}

	log.Info("import complete",
		zap.Int("offerings", count),
		zap.String("store", storeKey),
		zap.Duration("took", time.Since(start).Truncate(time.Millisecond)),
	)
}
