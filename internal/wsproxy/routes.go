package wsproxy

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// NewRoutes registers the proxy's upgrade endpoint and its load-stats
// route onto rg. The process-wide /healthz and /metrics routes are
// registered separately by internal/obsvc, aggregated across every
// adapter instance rather than scoped to the proxy alone.
func NewRoutes(rg *gin.RouterGroup, p *Proxy) {
	rg.GET("/ws", p.handleUpgrade)
	rg.GET("/stats", p.handleStats)
}

// @Summary Upgrade to a market data WebSocket stream
// @Description Upgrades the connection and accepts subscribe/unsubscribe/ping frames
// @Router /ws [get]
func (p *Proxy) handleUpgrade(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		p.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	if err := p.Accept(conn); err != nil {
		p.log.Warn().Err(err).Msg("client rejected")
	}
}

// @Summary Proxy load statistics
// @Produce json
// @Success 200 {object} Stats
// @Router /stats [get]
func (p *Proxy) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, p.GetStats())
}
