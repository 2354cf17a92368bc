package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"storecart/internal/auth"
	"storecart/internal/config"
	"storecart/internal/db"
	"storecart/internal/event"
	"storecart/internal/httpserver"
	"storecart/internal/logger"
	"storecart/internal/metrics"
	cartrepo "storecart/internal/repository/cart"
	offeringrepo "storecart/internal/repository/offering"
	storerepo "storecart/internal/repository/store"
	cartsvc "storecart/internal/service/cart"
	offeringsvc "storecart/internal/service/offering"
	"storecart/internal/service/session"
	"storecart/internal/tracing"
)

const serviceName = "storecart-api"

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		zap.NewExample().Fatal("load config", zap.Error(err))
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}).With(zap.String("service", serviceName))
	defer func() { _ = log.Sync() }()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	shutdownTracer, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:  serviceName,
		Environment:  cfg.Environment,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SampleRate:   cfg.TracingSampleRate,
		Enabled:      cfg.TracingEnabled,
	})
	if err != nil {
		log.Fatal("init tracing", zap.Error(err))
	}

	dbpool, err := db.Connect(ctx, cfg.DBConnString)
	if err != nil {
		log.Fatal("connect to db", zap.Error(err))
	}
	defer dbpool.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	liveOfferings := offeringrepo.NewPostgres(dbpool, log)
	offerings := liveOfferings
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.Warn("redis unreachable, offering reads fall through to postgres", zap.Error(err))
		}
		cancel()
		offerings = offeringrepo.NewCached(offerings, rdb, cfg.OfferingCacheTTL, log)
	}

	var events event.Publisher = event.Noop{}
	if len(cfg.KafkaBrokers) > 0 {
		events = event.NewKafka(cfg.KafkaBrokers, cfg.KafkaCartTopic, log)
	}
	defer func() {
		if err := events.Close(); err != nil {
			log.Warn("close event publisher", zap.Error(err))
		}
	}()

	offeringService := offeringsvc.New(offerings, offeringsvc.WithLiveRepo(liveOfferings))
	sessionService := session.New(cfg.AnonymousCartTTL)
	cartService := cartsvc.New(cartrepo.NewPostgres(dbpool, log), offeringService, cartsvc.Config{
		SessionTTL: sessionService.TTL(),
		Events:     events,
		Metrics:    m,
		Logger:     log,
	})

	srv, err := httpserver.New(cfg.HTTPAddr, log, dbpool, httpserver.Deps{
		Stores:           storerepo.NewPostgres(dbpool),
		Carts:            cartService,
		Offerings:        offeringService,
		Sessions:         sessionService,
		Tokens:           auth.NewManager(cfg.JWTSecret, cfg.JWTIssuer),
		Metrics:          m,
		Gatherer:         reg,
		ServiceName:      serviceName,
		CORSAllowOrigins: cfg.CORSAllowOrigins,
	})
	if err != nil {
		log.Fatal("init server", zap.Error(err))
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("starting http server", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stopCh:
		log.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	} else {
		log.Info("server stopped")
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Warn("flush traces", zap.Error(err))
	}
}
