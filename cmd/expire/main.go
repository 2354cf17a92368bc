// Command expire marks anonymous carts past their expiry as expired. It is
// meant to run periodically from cron or a scheduler.
package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"

	"storecart/internal/config"
	"storecart/internal/db"
	"storecart/internal/event"
	"storecart/internal/logger"
	"storecart/internal/metrics"
	cartrepo "storecart/internal/repository/cart"
	offeringrepo "storecart/internal/repository/offering"
	cartsvc "storecart/internal/service/cart"
	offeringsvc "storecart/internal/service/offering"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		zap.NewExample().Fatal("load config", zap.Error(err))
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}).Named("expire")
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		log.Fatal("connect db", zap.Error(err))
	}
	defer pool.Close()

	var events event.Publisher = event.Noop{}
	if len(cfg.KafkaBrokers) > 0 {
		events = event.NewKafka(cfg.KafkaBrokers, cfg.KafkaCartTopic, log)
	}
	defer func() { _ = events.Close() }()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	svc := cartsvc.New(
		cartrepo.NewPostgres(pool, log),
		offeringsvc.New(offeringrepo.NewPostgres(pool, log)),
		cartsvc.Config{SessionTTL: cfg.AnonymousCartTTL, Events: events, Metrics: m, Logger: log},
	)

	n, err := svc.ExpireStale(ctx)
	if err != nil {
		log.Fatal("expire carts", zap.Error(err))
	}
	log.Info("expired stale carts", zap.Int64("carts", n))

	if cfg.PushgatewayURL != "" {
		if err := push.New(cfg.PushgatewayURL, "storecart_expire").Gatherer(reg).Push(); err != nil {
			log.Warn("push metrics", zap.Error(err))
		}
	}
}
