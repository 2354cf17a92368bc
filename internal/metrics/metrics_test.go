package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGinMiddleware_RecordsRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m := New(reg)

	router := gin.New()
	router.Use(m.GinMiddleware())
	router.GET("/:storeKey/carts/active", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/berlin/carts/active", nil))
		require.Equal(t, http.StatusNoContent, rec.Code)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/:storeKey/carts/active", "204")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "unknown", "404")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.httpRequestsInFlight))
}

func TestNew_RegistersDomainCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.CartCreateConflicts.Inc()
	m.CartsCreated.WithLabelValues("session").Inc()

	n, err := testutil.GatherAndCount(reg, "storecart_cart_create_conflicts_total", "storecart_carts_created_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
