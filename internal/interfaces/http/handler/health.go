// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"contentforge-ai-api/internal/infrastructure/persistence/postgres"
	"contentforge-ai-api/internal/infrastructure/persistence/redis"
)

// HealthHandler 存活与就绪探针
type HealthHandler struct {
	pg    *postgres.Client
	redis *redis.Client
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(pg *postgres.Client, redisClient *redis.Client) *HealthHandler {
	return &HealthHandler{pg: pg, redis: redisClient}
}

type dependencyStatus struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
}

type readyResponse struct {
	Status       string                       `json:"status"`
	Dependencies map[string]*dependencyStatus `json:"dependencies"`
}

// Health 健康检查接口
// @Summary 健康检查
// @Tags System
// @Produce json
// @Success 200 {object} gin.H
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Live 存活检查接口
// @Summary 存活检查
// @Tags System
// @Produce json
// @Success 200 {object} gin.H
// @Router /live [get]
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready 就绪检查：逐个探测必需依赖，任一失败即 503
// @Summary 就绪检查
// @Tags System
// @Produce json
// @Success 200 {object} readyResponse
// @Failure 503 {object} readyResponse
// @Router /ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	probes := []struct {
		name  string
		check func(context.Context) error
	}{
		{"postgres", h.probePostgres},
		{"redis", h.probeRedis},
	}

	resp := readyResponse{
		Status:       "ok",
		Dependencies: make(map[string]*dependencyStatus, len(probes)),
	}
	for _, p := range probes {
		started := time.Now()
		status := &dependencyStatus{Status: "ok"}
		if err := p.check(ctx); err != nil {
			status.Status = "error"
			status.Error = err.Error()
			resp.Status = "not_ready"
		}
		status.LatencyMs = time.Since(started).Milliseconds()
		resp.Dependencies[p.name] = status
	}

	if resp.Status != "ok" {
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *HealthHandler) probePostgres(ctx context.Context) error {
	return h.pg.HealthCheck(ctx)
}

func (h *HealthHandler) probeRedis(ctx context.Context) error {
	return h.redis.HealthCheck(ctx)
}
