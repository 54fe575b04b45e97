package handlers

import (
	"log/slog"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter wires the bridge routes.
func NewRouter(logger *slog.Logger, system *SystemHandler, orders *OrderHandler) *gin.Engine {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AddAllowHeaders(IdempotencyKeyHeader, RequestIDHeader)
	corsConfig.AddExposeHeaders(RequestIDHeader)

	router := gin.New()
	router.Use(gin.Recovery(), RequestID(), RequestLogger(logger), cors.New(corsConfig))

	router.GET("/", system.Home)
	router.GET("/health", system.HealthCheck)
	router.GET("/debug", system.Debug)
	router.POST("/orders", orders.CreateOrder)

	return router
}
