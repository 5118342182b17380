package relay

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// dashboards are served from arbitrary local origins
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// DashboardHandler upgrades GET /ws/dashboard?type={main|sub}. The role is
// checked after the upgrade so the refusal reaches the peer as a close frame.
func DashboardHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.Query("type")

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade has already answered with an HTTP error
			s.logger.Warn("websocket_upgrade_failed",
				"remote_addr", c.Request.RemoteAddr,
				"error", err.Error(),
			)
			return
		}

		s.accept(conn, role)
	}
}

// StatusHandler serves GET /status.
func StatusHandler(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, s.Status())
	}
}

// HealthHandler serves GET /health.
func HealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// requestLogger logs plain HTTP requests; upgraded sockets are logged by the server.
func requestLogger(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if c.Writer.Status() == http.StatusSwitchingProtocols {
			return
		}
		s.logger.Debug("http_request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}
