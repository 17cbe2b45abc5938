package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sambot/sambot-go/internal/model"
	"github.com/sambot/sambot-go/internal/service"
	"go.uber.org/zap"
)

// DocumentHandler 知识库文档接口
type DocumentHandler struct {
	knowledge  *service.KnowledgeService
	workspaces *Workspaces
	logger     *zap.Logger
}

// NewDocumentHandler 创建文档处理器
func NewDocumentHandler(knowledge *service.KnowledgeService, workspaces *Workspaces, logger *zap.Logger) *DocumentHandler {
	return &DocumentHandler{
		knowledge:  knowledge,
		workspaces: workspaces,
		logger:     logger,
	}
}

func (h *DocumentHandler) docs(c *gin.Context) (*service.DocumentService, bool) {
	kb, err := h.knowledge.Get(c.Request.Context(), c.Param("kbId"))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return h.workspaces.docs(kb), true
}

// List GET /api/admin/knowledge-bases/:kbId/documents
func (h *DocumentHandler) List(c *gin.Context) {
	docs, ok := h.docs(c)
	if !ok {
		return
	}
	list, err := docs.Refresh(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": list})
}

// Upload POST /api/admin/knowledge-bases/:kbId/documents（multipart，字段 file 可重复）
func (h *DocumentHandler) Upload(c *gin.Context) {
	docs, ok := h.docs(c)
	if !ok {
		return
	}

	files, err := fileInputs(c)
	if err != nil {
		respondError(c, err)
		return
	}

	batch, err := docs.Upload(c.Request.Context(), files)
	if err != nil {
		respondError(c, err)
		return
	}

	// 以服务端列表为准
	list, err := docs.Refresh(c.Request.Context())
	if err != nil {
		h.logger.Warn("上传后刷新文档列表失败", zap.String("kbId", c.Param("kbId")), zap.Error(err))
		list = docs.Documents()
	}

	c.JSON(http.StatusOK, gin.H{
		"summary":   batch.Summary(),
		"succeeded": batch.Succeeded,
		"failed":    batch.Failed,
		"results":   batch.Results,
		"documents": list,
	})
}

// Status GET /api/admin/knowledge-bases/:kbId/upload-status
func (h *DocumentHandler) Status(c *gin.Context) {
	docs, ok := h.docs(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, docs.Status())
}

// Delete DELETE /api/admin/knowledge-bases/:kbId/documents/:name?confirm=true
func (h *DocumentHandler) Delete(c *gin.Context) {
	docs, ok := h.docs(c)
	if !ok {
		return
	}

	result, err := docs.Delete(c.Request.Context(), c.Param("name"), confirmed(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Embed POST /api/admin/knowledge-bases/:kbId/documents/:name/embed，对已上传文档重新向量化
func (h *DocumentHandler) Embed(c *gin.Context) {
	docs, ok := h.docs(c)
	if !ok {
		return
	}

	result, err := docs.Embed(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"result":  result,
		"chunks":  result.Chunks,
		"message": fmt.Sprintf("Embedded successfully! Created %d chunks.", result.Chunks),
	})
}

// Download GET /api/admin/knowledge-bases/:kbId/documents/:name/download
func (h *DocumentHandler) Download(c *gin.Context) {
	docs, ok := h.docs(c)
	if !ok {
		return
	}

	name := c.Param("name")
	dl, err := docs.OpenDownload(c.Request.Context(), name)
	if err != nil {
		respondError(c, err)
		return
	}
	defer dl.Body.Close()

	contentType := dl.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, dl.ContentLength, contentType, dl.Body, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", name),
	})
}

// documentsPayload 会话和知识库共用的列表响应
func documentsPayload(docs []model.Document, status model.EmbeddingStatus) gin.H {
	return gin.H{"documents": docs, "status": status}
}
