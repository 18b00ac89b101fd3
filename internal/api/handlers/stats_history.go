package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/arbourd/ioengine/internal/api/models"
)

// StatsHistory godoc
// @Summary Historical stats snapshots
// @Description Returns stats snapshots recorded since the given timestamp (RFC3339), or the last hour if omitted
// @Tags system
// @Produce json
// @Param since query string false "RFC3339 timestamp lower bound"
// @Success 200 {object} models.StatsHistoryResponse
// @Security ApiKeyAuth
// @Router /stats/history [get]
func (h *Handler) StatsHistory(c *gin.Context) {
	since := time.Now().Add(-time.Hour)
	if raw := c.Query("since"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			since = t
		} else {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "since must be RFC3339"})
			return
		}
	}

	resp := models.StatsHistoryResponse{}
	if h.db != nil {
		snapshots, err := h.db.SnapshotsSince(since)
		if err != nil {
			c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
			return
		}
		for _, s := range snapshots {
			resp.Points = append(resp.Points, models.StatsHistoryPoint{
				CapturedAt:    s.CapturedAt,
				SocketCount:   s.SocketCount,
				BytesRead:     s.BytesRead,
				BytesWritten:  s.BytesWritten,
				EventsEmitted: s.EventsEmitted,
				MonitorStalls: s.MonitorStalls,
			})
		}
	}
	c.JSON(http.StatusOK, resp)
}
