package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"kb-ext-api/internal/application/ingestion"
	"kb-ext-api/internal/interfaces/http/dto"
)

// DocumentHandler 文档上传与分块接口
type DocumentHandler struct {
	svc *ingestion.Service
}

// NewDocumentHandler 创建文档处理器
func NewDocumentHandler(svc *ingestion.Service) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

// Upload 上传文档并触发后台解析
// POST /upload_documents
func (h *DocumentHandler) Upload(c *gin.Context) {
	var req dto.UploadDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	result, err := h.svc.Upload(c.Request.Context(), &ingestion.UploadInput{
		FilePath:   req.FilePath,
		ChunkToken: req.ChunkToken,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.UploadDocumentResponse{
		DatasetID:        result.DatasetID,
		DocumentID:       result.DocumentID,
		DocumentName:     result.DocumentName,
		PartDocumentID:   result.PartDocumentID,
		PartDocumentName: result.PartDocumentName,
		Sign:             result.Sign,
	})
}

// Analyze 读取已解析文档的分块结果
// POST /analyzing_documents
func (h *DocumentHandler) Analyze(c *gin.Context) {
	var req dto.AnalyzingDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	chunks, err := h.svc.Analyze(c.Request.Context(), &ingestion.AnalyzeInput{
		DocumentID:   req.DocumentID,
		DocumentName: req.DocumentName,
		ChunkToken:   req.ChunkTokenCount(),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		out = append(out, chunk.Content)
	}
	c.JSON(http.StatusOK, dto.AnalyzingDocumentResponse{Chunks: out, Sign: true})
}

// ChunkText 对文本同步执行分块
// POST /chunk_text
func (h *DocumentHandler) ChunkText(c *gin.Context) {
	var req dto.TextChunkingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	chunks, err := h.svc.ChunkText(c.Request.Context(), req.Text, req.ChunkTokenCount())
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		out = append(out, chunk.Content)
	}
	c.JSON(http.StatusOK, dto.AnalyzingDocumentResponse{Chunks: out, Sign: true})
}
