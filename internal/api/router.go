package api

import (
	"github.com/gin-gonic/gin"

	"alert-service/internal/config"
	"alert-service/internal/logging"
)

func NewRouter(logger *logging.Logger, cfg config.Config, h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(logger))

	api := r.Group(cfg.API.BasePath)
	{
		// Alert processing
		api.POST("/process", h.Process)
		api.POST("/process_async", h.ProcessAsync)
		api.POST("/process_async/exec_status", h.ExecStatus)

		// Alerts
		api.POST("/search", h.Search)
		api.POST("/send", h.Send)

		// Dispatch stream
		api.GET("/ws", h.Stream)
	}

	r.GET("/health", h.Health)
	return r
}
