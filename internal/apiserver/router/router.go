// Package router wires the HTTP routes and middleware.
package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/onboard/internal/apiserver/handler"
)

// New builds the gin engine with middleware and all routes registered.
func New(h *handler.Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(), cors())

	engine.GET("/", h.Info)
	engine.GET("/health", h.Health)
	engine.POST("/chat", h.Chat)

	v1 := engine.Group("/v1")
	{
		v1.POST("/kb/search", h.Search)
		v1.POST("/tools/:name", h.Tool)
	}

	return engine
}

// requestLogger logs one line per request through the structured logger.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Infow("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		)
	}
}

// cors allows cross-origin requests from any origin, matching the open
// posture of the frontend this API serves.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
