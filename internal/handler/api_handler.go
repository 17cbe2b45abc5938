package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sambot/sambot-go/internal/service"
	"go.uber.org/zap"
)

// APIHandler 会话文档与健康检查
type APIHandler struct {
	sessionService *service.SessionService
	serviceName    string
	logger         *zap.Logger
}

// NewAPIHandler 创建 API 处理器
func NewAPIHandler(sessionService *service.SessionService, serviceName string, logger *zap.Logger) *APIHandler {
	return &APIHandler{
		sessionService: sessionService,
		serviceName:    serviceName,
		logger:         logger,
	}
}

// Health 健康检查
func (h *APIHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "UP",
		"service":         h.serviceName,
		"online_sessions": h.sessionService.GetOnlineCount(),
	})
}

func (h *APIHandler) page(c *gin.Context) (*service.PageSession, bool) {
	page, ok := h.sessionService.Get(c.Param("sessionId"))
	if !ok {
		respondError(c, service.ErrSessionNotFound)
		return nil, false
	}
	return page, true
}

// UploadSessionDocuments 会话范围上传，进度通过 WebSocket 推送
func (h *APIHandler) UploadSessionDocuments(c *gin.Context) {
	page, ok := h.page(c)
	if !ok {
		return
	}

	files, err := fileInputs(c)
	if err != nil {
		respondError(c, err)
		return
	}

	h.logger.Info("收到会话文档上传",
		zap.String("sessionId", page.ID()),
		zap.Int("files", len(files)))

	batch, err := page.Documents.Upload(c.Request.Context(), files)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"summary":   batch.Summary(),
		"succeeded": batch.Succeeded,
		"failed":    batch.Failed,
		"results":   batch.Results,
		"documents": page.Documents.Documents(),
	})
}

// ListSessionDocuments 会话内已上传的文档
func (h *APIHandler) ListSessionDocuments(c *gin.Context) {
	page, ok := h.page(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, documentsPayload(page.Documents.Documents(), page.Documents.Status()))
}
