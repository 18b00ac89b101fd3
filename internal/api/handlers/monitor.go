package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/arbourd/ioengine/internal/api/models"
)

// Monitor godoc
// @Summary Worker watchdog status
// @Description Returns the I/O worker's cumulative stall count
// @Tags system
// @Produce json
// @Success 200 {object} models.MonitorResponse
// @Security ApiKeyAuth
// @Router /monitor [get]
func (h *Handler) Monitor(c *gin.Context) {
	var stalls uint64
	if h.engine != nil {
		stalls = h.engine.MonitorStalls()
	}
	c.JSON(http.StatusOK, models.MonitorResponse{Stalls: stalls})
}
