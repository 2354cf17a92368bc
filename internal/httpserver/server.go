package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	readHeaderTimeout = 5 * time.Second
	idleTimeout       = 60 * time.Second
	readinessTimeout  = time.Second
)

type pinger interface {
	Ping(ctx context.Context) error
}

// Server serves the storefront cart API.
type Server struct {
	srv *http.Server
}

// New wires every route onto a fresh router. A nil db makes /readyz report
// the service as unavailable.
func New(addr string, logger *zap.Logger, db pinger, deps Deps) (*Server, error) {
	handler, err := buildRouter(logger, db, deps)
	if err != nil {
		return nil, err
	}
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}}, nil
}

func (s *Server) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func readyHandler(db pinger) gin.HandlerFunc {
	notReady := func(c *gin.Context, reason string) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "reason": reason})
	}
	return func(c *gin.Context) {
		if db == nil {
			notReady(c, "database not configured")
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			notReady(c, "database unreachable")
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}
