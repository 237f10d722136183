package dto

// UploadDocumentRequest 文档上传请求，file_path 可为本地路径或 URL
type UploadDocumentRequest struct {
	FilePath   string `json:"file_path" binding:"required,min=1"`
	ChunkToken int    `json:"chunk_token_count" binding:"omitempty,gt=0"`
}

// UploadDocumentResponse 文档上传响应
type UploadDocumentResponse struct {
	DatasetID        string `json:"dataset_id"`
	DocumentID       string `json:"document_id"`
	DocumentName     string `json:"document_name"`
	PartDocumentID   string `json:"part_document_id"`
	PartDocumentName string `json:"part_document_name"`
	Sign             bool   `json:"sign"`
}

// AnalyzingDocumentRequest 分块结果查询请求
type AnalyzingDocumentRequest struct {
	DatasetID    string         `json:"dataset_id"`
	DocumentID   string         `json:"document_id" binding:"required,min=1"`
	DocumentName string         `json:"document_name" binding:"required,min=1"`
	ChunkMethod  string         `json:"chunk_method" binding:"omitempty,oneof=naive manual qa table paper book laws presentation picture email"`
	ParserFlag   int            `json:"parser_flag"`
	ParserConfig map[string]any `json:"parser_config"`
}

// ChunkTokenCount 从 parser_config 中取分块 token 数，未设置返回 0
func (r *AnalyzingDocumentRequest) ChunkTokenCount() int {
	if r.ParserFlag != 1 || r.ParserConfig == nil {
		return 0
	}
	if v, ok := r.ParserConfig["chunk_token_count"].(float64); ok {
		return int(v)
	}
	return 0
}

// TextChunkingRequest 文本同步分块请求
type TextChunkingRequest struct {
	Text         string         `json:"text" binding:"required,min=1"`
	ParserFlag   int            `json:"parser_flag"`
	ParserConfig map[string]any `json:"parser_config"`
}

// ChunkTokenCount 从 parser_config 中取分块 token 数，未设置返回 0
func (r *TextChunkingRequest) ChunkTokenCount() int {
	if r.ParserFlag != 1 || r.ParserConfig == nil {
		return 0
	}
	if v, ok := r.ParserConfig["chunk_token_count"].(float64); ok {
		return int(v)
	}
	return 0
}

// AnalyzingDocumentResponse 分块结果响应
type AnalyzingDocumentResponse struct {
	Chunks []string `json:"chunks"`
	Sign   bool     `json:"sign"`
}
