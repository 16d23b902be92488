package handler

import (
	"net/http"

	"log/slog"

	"github.com/gin-gonic/gin"

	appKnowledge "github.com/agentloop/backend/internal/application/knowledge"
	"github.com/agentloop/backend/internal/infrastructure/log"
	"github.com/agentloop/backend/internal/infrastructure/watcher"
	"github.com/agentloop/backend/internal/interfaces/http/response"
)

// KnowledgeHandler 知识库处理器
type KnowledgeHandler struct {
	indexer *appKnowledge.IndexerService
	search  *appKnowledge.SearchService
	logger  *slog.Logger
}

// NewKnowledgeHandler 创建知识库处理器
func NewKnowledgeHandler(
	indexer *appKnowledge.IndexerService,
	search *appKnowledge.SearchService,
) *KnowledgeHandler {
	return &KnowledgeHandler{
		indexer: indexer,
		search:  search,
		logger:  log.NewModuleLogger("knowledge", "handler"),
	}
}

// SearchRequest 检索请求
type SearchRequest struct {
	Query string `json:"query" binding:"required"`
	// MatchThreshold 相似度下限（含），0 表示使用默认值
	MatchThreshold float32 `json:"match_threshold,omitempty"`
	// MatchCount 返回条数上限，0 表示使用默认值
	MatchCount int `json:"match_count,omitempty"`
	// IncludeDocuments 是否合并文档级命中
	IncludeDocuments bool `json:"include_documents,omitempty"`
}

// Search 处理检索请求
// POST /api/v1/knowledge/search
func (h *KnowledgeHandler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, 400, err.Error())
		return
	}

	results, err := h.search.Search(c.Request.Context(), &appKnowledge.SearchRequest{
		Query:            req.Query,
		MatchThreshold:   req.MatchThreshold,
		MatchCount:       req.MatchCount,
		IncludeDocuments: req.IncludeDocuments,
	})
	if err != nil {
		h.logger.Error("search failed",
			"error", err,
		)
		response.Error(c, http.StatusInternalServerError, 500, err.Error())
		return
	}

	response.Success(c, gin.H{
		"results": results,
		"count":   len(results),
	})
}

// IndexRequest 索引请求
type IndexRequest struct {
	Path string `json:"path" binding:"required"`
	// Shared 是否索引为共享文档（跨 Agent 可见）
	Shared bool `json:"shared,omitempty"`
}

// Index 手动索引单个文件
// POST /api/v1/knowledge/index
func (h *KnowledgeHandler) Index(c *gin.Context) {
	var req IndexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, 400, err.Error())
		return
	}

	if !watcher.IsSupportedFile(req.Path) {
		response.Error(c, http.StatusBadRequest, 400, "unsupported file type")
		return
	}

	if err := h.indexer.IndexFile(c.Request.Context(), req.Path, req.Shared); err != nil {
		h.logger.Error("index failed",
			"path", req.Path,
			"error", err,
		)
		response.Error(c, http.StatusInternalServerError, 500, err.Error())
		return
	}

	response.Success(c, gin.H{
		"path":   req.Path,
		"shared": req.Shared,
	})
}

// Stats 获取索引统计
// GET /api/v1/knowledge/stats
func (h *KnowledgeHandler) Stats(c *gin.Context) {
	stats, err := h.indexer.GetStats(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, 500, err.Error())
		return
	}

	response.Success(c, gin.H{
		"documents": stats.Documents,
		"fragments": stats.Fragments,
	})
}

// Clear 清空本 Agent 的所有索引数据
// DELETE /api/v1/knowledge/data
func (h *KnowledgeHandler) Clear(c *gin.Context) {
	if err := h.indexer.Clear(c.Request.Context()); err != nil {
		h.logger.Error("clear failed",
			"error", err,
		)
		response.Error(c, http.StatusInternalServerError, 500, err.Error())
		return
	}

	response.Success(c, gin.H{
		"message": "knowledge data cleared",
	})
}
