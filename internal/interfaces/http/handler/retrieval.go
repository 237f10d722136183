package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"kb-ext-api/internal/application/knowledge"
	"kb-ext-api/internal/interfaces/http/dto"
	"kb-ext-api/pkg/logger"
)

// RetrievalHandler Dify External Knowledge API 检索接口
type RetrievalHandler struct {
	svc *knowledge.Service
}

// NewRetrievalHandler 创建检索处理器
func NewRetrievalHandler(svc *knowledge.Service) *RetrievalHandler {
	return &RetrievalHandler{svc: svc}
}

// Retrieve 从外部知识库检索数据
// POST /retrieval
func (h *RetrievalHandler) Retrieve(c *gin.Context) {
	var req dto.RetrievalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	ctx := logger.WithContext(c.Request.Context(), logger.LibraryIDKey, req.KnowledgeID)
	logger.Info(ctx, "knowledge retrieval request",
		"knowledge_id", req.KnowledgeID,
		"query", req.Query,
		"top_k", req.RetrievalSetting.TopK,
	)

	records, err := h.svc.Retrieve(ctx, req.ToInput())
	if err != nil {
		respondError(c, err)
		return
	}

	logger.Info(ctx, "knowledge retrieval response", "record_count", len(records))
	c.JSON(http.StatusOK, dto.RetrievalResponse{Records: records})
}
