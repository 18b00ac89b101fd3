package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/arbourd/ioengine/internal/api/models"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Health godoc
// @Summary Health check
// @Description Returns server health status
// @Tags system
// @Produce json
// @Success 200 {object} models.StatusResponse
// @Router /healthz [get]
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, models.StatusResponse{Status: "ok"})
}

// Stats godoc
// @Summary Engine statistics
// @Description Returns runtime statistics including system CPU/memory usage and the live socket table
// @Tags system
// @Produce json
// @Success 200 {object} models.ServerStatsResponse
// @Security ApiKeyAuth
// @Router /stats [get]
func (h *Handler) Stats(c *gin.Context) {
	uptime := time.Since(h.startTime)

	memStats := models.MemoryStats{}
	if vmStat, err := mem.VirtualMemory(); err == nil {
		memStats.TotalMB = float64(vmStat.Total) / 1024 / 1024
		memStats.FreeMB = float64(vmStat.Available) / 1024 / 1024
		memStats.UsedMB = float64(vmStat.Used) / 1024 / 1024
		memStats.UsedPercent = vmStat.UsedPercent
	}

	cpuStats := models.CPUStats{NumCPU: runtime.NumCPU()}
	if cpuPercent, err := cpu.Percent(200*time.Millisecond, false); err == nil && len(cpuPercent) > 0 {
		cpuStats.UsedPercent = cpuPercent[0]
		cpuStats.IdlePercent = 100.0 - cpuPercent[0]
	}

	var sockets []models.SocketStat
	var bytesRead, bytesWritten uint64
	if h.engine != nil {
		for _, st := range h.engine.AllStats() {
			sockets = append(sockets, models.SocketStat{
				ID:          st.ID,
				Opaque:      st.Opaque,
				Type:        st.Type.String(),
				Protocol:    st.Protocol.String(),
				Read:        st.Read,
				Write:       st.Write,
				QueuedBytes: st.QueuedBytes,
			})
			bytesRead += st.Read
			bytesWritten += st.Write
		}
	}

	resp := models.ServerStatsResponse{
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: int64(uptime.Seconds()),
		StartTime:     h.startTime,
		CPU:           cpuStats,
		Memory:        memStats,
		SocketCount:   len(sockets),
		BytesRead:     bytesRead,
		BytesWritten:  bytesWritten,
		Sockets:       sockets,
	}
	if h.engine != nil {
		resp.EventsEmitted = h.engine.EventsEmitted()
		resp.MonitorStalls = h.engine.MonitorStalls()
	}

	c.JSON(http.StatusOK, resp)
}
