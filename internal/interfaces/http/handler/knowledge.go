package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"kb-ext-api/internal/application/knowledge"
	"kb-ext-api/internal/interfaces/http/dto"
	apperrors "kb-ext-api/pkg/errors"
	"kb-ext-api/pkg/logger"
)

const defaultSearchLimit = 10

// KnowledgeHandler 知识条目管理接口
type KnowledgeHandler struct {
	svc *knowledge.Service
}

// NewKnowledgeHandler 创建知识管理处理器
func NewKnowledgeHandler(svc *knowledge.Service) *KnowledgeHandler {
	return &KnowledgeHandler{svc: svc}
}

// Update 新增或整条替换知识条目
// POST /knowledge/update
func (h *KnowledgeHandler) Update(c *gin.Context) {
	var req dto.KnowledgeUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	// FAQ 必须携带问题文本
	if req.KnowledgeType == "faq" && req.Question == "" {
		respondError(c, apperrors.New(apperrors.CodeInvalidParam, "question is required for faq knowledge"))
		return
	}

	ctx := logger.WithContext(c.Request.Context(), logger.SegmentIDKey, req.SegmentID)
	if err := h.svc.Upsert(ctx, req.ToEntity()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.OK(nil))
}

// Delete 删除知识条目
// POST /knowledge/delete
func (h *KnowledgeHandler) Delete(c *gin.Context) {
	var req dto.KnowledgeDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	if err := h.svc.Delete(c.Request.Context(), req.SegmentIDs); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.OK(nil))
}

// BindBatch 批量绑定类别到库
// POST /knowledge/bind_batch
func (h *KnowledgeHandler) BindBatch(c *gin.Context) {
	var req dto.BindBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	ctx := logger.WithContext(c.Request.Context(), logger.LibraryIDKey, req.LibraryID)
	result, err := h.svc.Bind(ctx, req.LibraryID, req.CategoryIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.OK(result))
}

// UnbindBatch 解除库的类别绑定
// POST /knowledge/unbind_batch
func (h *KnowledgeHandler) UnbindBatch(c *gin.Context) {
	var req dto.UnbindBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	if req.DeleteType == "part" && len(req.CategoryIDs) == 0 {
		respondError(c, apperrors.New(apperrors.CodeInvalidParam, "category_ids is required when delete_type is part"))
		return
	}

	ctx := logger.WithContext(c.Request.Context(), logger.LibraryIDKey, req.LibraryID)
	result, err := h.svc.Unbind(ctx, req.LibraryID, req.CategoryIDs, req.DeleteType)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.OK(result))
}

// Search 库内知识搜索
// POST /knowledge/search
func (h *KnowledgeHandler) Search(c *gin.Context) {
	var req dto.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	ctx := logger.WithContext(c.Request.Context(), logger.LibraryIDKey, req.LibraryID)
	segments, err := h.svc.Search(ctx, req.Query, req.LibraryID, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]dto.SegmentDTO, 0, len(segments))
	for _, seg := range segments {
		out = append(out, dto.FromEntity(seg))
	}
	c.JSON(http.StatusOK, dto.OK(dto.SearchResponseData{Segments: out}))
}
