package api

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
)

// Version 应用版本，可通过构建参数注入
var Version = "0.1.0"

// Pinger 健康检查依赖
type Pinger func(ctx context.Context) error

// SystemInfo 健康检查返回的系统信息
type SystemInfo struct {
	Status       string            `json:"status"`
	Version      string            `json:"version"`
	Uptime       string            `json:"uptime"`
	StartTime    time.Time         `json:"start_time"`
	CurrentTime  time.Time         `json:"current_time"`
	GoVersion    string            `json:"go_version"`
	NumGoroutine int               `json:"num_goroutine"`
	Dependencies map[string]string `json:"dependencies"`
}

// HealthController 健康检查
type HealthController struct {
	startTime time.Time
	checks    map[string]Pinger
}

// NewHealthController 创建健康检查控制器，checks 的键为依赖名
func NewHealthController(checks map[string]Pinger) *HealthController {
	return &HealthController{startTime: time.Now(), checks: checks}
}

// HealthCheck 返回服务与各依赖的状态，任一依赖异常时返回503
// @Router /api/health [get]
func (h *HealthController) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for name, ping := range h.checks {
		if err := ping(ctx); err != nil {
			deps[name] = "error: " + err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	info := SystemInfo{
		Status:       "ok",
		Version:      Version,
		Uptime:       time.Since(h.startTime).String(),
		StartTime:    h.startTime,
		CurrentTime:  time.Now(),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		Dependencies: deps,
	}
	if status != http.StatusOK {
		info.Status = "degraded"
	}
	c.JSON(status, info)
}
