package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"kb-ext-api/internal/infrastructure/persistence/elasticsearch"
	"kb-ext-api/internal/infrastructure/persistence/redis"
)

// HealthHandler 健康检查与服务信息接口
type HealthHandler struct {
	es    *elasticsearch.Client
	redis *redis.Client
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(es *elasticsearch.Client, rdb *redis.Client) *HealthHandler {
	return &HealthHandler{es: es, redis: rdb}
}

// Health 进程存活即健康，不触达外部依赖
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "knowledge-database-api",
		"features": []string{
			"knowledge-management",
			"dify-external-knowledge-api",
		},
	})
}

// Ready 就绪检查，任一依赖不可用时返回 503
// GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx := c.Request.Context()
	status := "ready"
	httpStatus := http.StatusOK
	checks := gin.H{}

	if h.es != nil {
		if err := h.es.HealthCheck(ctx); err != nil {
			checks["elasticsearch"] = err.Error()
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["elasticsearch"] = "ok"
		}
	}
	if h.redis != nil {
		if err := h.redis.HealthCheck(ctx); err != nil {
			checks["redis"] = err.Error()
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["redis"] = "ok"
		}
	}

	c.JSON(httpStatus, gin.H{
		"status": status,
		"checks": checks,
	})
}

// Live 存活探针
// GET /live
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// Root API 服务信息
// GET /
func (h *HealthHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":     "Knowledge Database API",
		"version":     "1.0.0",
		"description": "Knowledge Database Management API with Dify External Knowledge API support",
		"endpoints": gin.H{
			"knowledge_management": gin.H{
				"update": "POST /knowledge/update",
				"delete": "POST /knowledge/delete",
				"bind":   "POST /knowledge/bind_batch",
				"unbind": "POST /knowledge/unbind_batch",
				"search": "POST /knowledge/search",
			},
			"dify_integration": gin.H{
				"retrieval": "POST /retrieval",
			},
			"documents": gin.H{
				"upload":  "POST /upload_documents",
				"analyze": "POST /analyzing_documents",
				"chunk":   "POST /chunk_text",
			},
			"system": gin.H{
				"health":  "GET /health",
				"ready":   "GET /ready",
				"live":    "GET /live",
				"info":    "GET /",
				"metrics": "GET /metrics",
			},
		},
	})
}
