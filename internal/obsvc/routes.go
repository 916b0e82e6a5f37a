package obsvc

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRoutes registers the process's Prometheus exposition endpoint and
// an aggregated health check driven by healthFn (typically
// registry.Registry.AllHealthy).
func NewRoutes(rg *gin.RouterGroup, m *Metrics, healthFn func() bool) {
	handler := promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
	rg.GET("/metrics", gin.WrapH(handler))
	rg.GET("/healthz", func(c *gin.Context) {
		if healthFn() {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
	})
}
