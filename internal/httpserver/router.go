package httpserver

import (
	"errors"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"storecart/internal/logger"
	"storecart/internal/metrics"
)

// Deps carries the collaborators of the HTTP layer.
type Deps struct {
	Stores    storeLookup
	Carts     cartService
	Offerings offeringService
	Sessions  sessionIssuer
	Tokens    tokenVerifier

	// Metrics and Gatherer are optional; without a Gatherer /metrics is not served.
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer

	ServiceName      string
	CORSAllowOrigins []string
}

func (d Deps) validate() error {
	switch {
	case d.Stores == nil:
		return errors.New("httpserver: store lookup required")
	case d.Carts == nil:
		return errors.New("httpserver: cart service required")
	case d.Offerings == nil:
		return errors.New("httpserver: offering service required")
	case d.Sessions == nil:
		return errors.New("httpserver: session issuer required")
	}
	return nil
}

// buildRouter wires routes for the API.
func buildRouter(log *zap.Logger, db pinger, deps Deps) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	log = logger.OrNop(log)

	router := gin.New()
	router.Use(logger.Recovery(log), logger.GinMiddleware(log))
	if deps.ServiceName != "" {
		router.Use(otelgin.Middleware(deps.ServiceName))
	}
	if deps.Metrics != nil {
		router.Use(deps.Metrics.GinMiddleware())
	}
	router.Use(cors.New(corsConfig(deps.CORSAllowOrigins)))

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(db))
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	carts := cartHandlers{svc: deps.Carts}

	store := router.Group("/:storeKey", storeMiddleware(deps.Stores))
	store.POST("/sessions", issueSessionHandler(deps.Sessions))
	store.GET("/offerings", listOfferingsHandler(deps.Offerings))
	store.GET("/offerings/:offeringId", getOfferingHandler(deps.Offerings))

	cartGroup := store.Group("/carts", actorMiddleware(deps.Tokens))
	cartGroup.GET("/active", carts.getActive)
	cartGroup.POST("/active", carts.locate)
	cartGroup.DELETE("/active", carts.delete)
	cartGroup.POST("/active/line-items", carts.addLineItem)
	cartGroup.PATCH("/active/line-items/:lineItemId", carts.changeLineItem)
	cartGroup.DELETE("/active/line-items/:lineItemId", carts.removeLineItem)
	cartGroup.POST("/active/claim", carts.claim)
	cartGroup.GET("/:cartId", carts.get)

	return router, nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", sessionHeader},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}
