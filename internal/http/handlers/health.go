package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/PilotDataPlatform/dataset-sub000/internal/events"
	"github.com/PilotDataPlatform/dataset-sub000/internal/platform/logger"
)

type HealthHandler struct {
	log    *logger.Logger
	db     *gorm.DB
	events events.Publisher
}

func NewHealthHandler(log *logger.Logger, db *gorm.DB, pub events.Publisher) *HealthHandler {
	return &HealthHandler{log: log.With("handler", "HealthHandler"), db: db, events: pub}
}

func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if h.db != nil {
		sqlDB, err := h.db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			h.log.Error("Database health check failed", "error", err)
			c.Status(http.StatusServiceUnavailable)
			return
		}
	}
	if h.events != nil {
		if err := h.events.Ping(ctx); err != nil {
			h.log.Error("Broker health check failed", "error", err)
			c.Status(http.StatusServiceUnavailable)
			return
		}
	}
	c.Status(http.StatusNoContent)
}
