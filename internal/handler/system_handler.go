package handler

import (
	"runtime"
	"time"

	"github.com/y-cruce/postflow/internal/pkg/response"
	"github.com/y-cruce/postflow/internal/server/ws"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// Version is stamped by the build.
var Version = "dev"

// SystemHandler 运行环境信息接口
type SystemHandler struct {
	hub     *ws.Hub
	started time.Time
}

func NewSystemHandler(hub *ws.Hub) *SystemHandler {
	return &SystemHandler{hub: hub, started: time.Now()}
}

// Info returns host and process stats for the admin panel.
// GET /api/system/info
func (h *SystemHandler) Info(c *gin.Context) {
	info := gin.H{
		"version":        Version,
		"go_version":     runtime.Version(),
		"goroutines":     runtime.NumGoroutine(),
		"process_uptime": int64(time.Since(h.started).Seconds()),
		"ws_clients":     h.hub.ClientCount(),
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		info["cpu_percent"] = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info["mem_total"] = vm.Total
		info["mem_used"] = vm.Used
		info["mem_percent"] = vm.UsedPercent
	}
	if uptime, err := host.Uptime(); err == nil {
		info["host_uptime"] = uptime
	}

	response.Success(c, info)
}
