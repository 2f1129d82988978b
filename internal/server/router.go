package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter builds the gin router with all routes and middleware wired
func NewRouter(handler *Handler, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware(logger))
	router.Use(corsMiddleware())

	router.GET("/health", handler.Health)

	api := router.Group("/api/v1")
	{
		api.POST("/flows", handler.CreateFlow)
		api.GET("/flows", handler.ListFlows)
		api.GET("/flows/:id", handler.GetFlow)
		api.POST("/flows/:id/process", handler.ProcessFlow)
		api.POST("/flows/:id/retry", handler.RetryFlow)
		api.POST("/flows/:id/navigate", handler.NavigateFlow)
		api.PATCH("/flows/:id/draft", handler.UpdateDraft)
		api.POST("/flows/:id/save", handler.SaveFlow)
		api.POST("/flows/:id/cancel", handler.CancelFlow)

		api.GET("/receipts", handler.ListReceipts)
		api.GET("/receipts/export", handler.ExportReceipts)
		api.GET("/receipts/:id", handler.GetReceipt)
	}

	return router
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
