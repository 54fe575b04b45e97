package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/hycst/lab3-order-service/internal/config"
)

type SystemHandler struct {
	cfg config.Config
}

func NewSystemHandler(cfg config.Config) *SystemHandler {
	return &SystemHandler{cfg: cfg}
}

// Home answers plain-text liveness probes.
func (h *SystemHandler) Home(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// HealthCheck returns server status
func (h *SystemHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Debug reports non-secret settings. The broker password is masked.
func (h *SystemHandler) Debug(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"port":                port(h.cfg.Port),
		"queue":               h.cfg.QueueName,
		"broker":              h.cfg.Broker,
		"rabbitmq_url_set":    h.cfg.RabbitMQURL != "",
		"rabbitmq_url_masked": h.cfg.MaskedRabbitMQURL(),
	})
}

// port reports numeric ports as JSON numbers.
func port(value string) any {
	if n, err := strconv.Atoi(value); err == nil {
		return n
	}
	return value
}
