package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sambot/sambot-go/internal/middleware"
	"github.com/sambot/sambot-go/internal/model"
	"github.com/sambot/sambot-go/internal/render"
	"github.com/sambot/sambot-go/internal/service"
	"go.uber.org/zap"
)

// KnowledgeHandler 管理端知识库接口
type KnowledgeHandler struct {
	knowledge  *service.KnowledgeService
	workspaces *Workspaces
	renderer   *render.Renderer
	logger     *zap.Logger
}

// NewKnowledgeHandler 创建知识库处理器
func NewKnowledgeHandler(knowledge *service.KnowledgeService, workspaces *Workspaces, renderer *render.Renderer, logger *zap.Logger) *KnowledgeHandler {
	return &KnowledgeHandler{
		knowledge:  knowledge,
		workspaces: workspaces,
		renderer:   renderer,
		logger:     logger,
	}
}

type knowledgeBaseRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

type chatRequest struct {
	Message string `json:"message"`
}

// renderedMessage 带渲染结果的消息
type renderedMessage struct {
	model.Message
	HTML        string   `json:"html,omitempty"`
	SourceLines []string `json:"sourceLines,omitempty"`
}

// List GET /api/admin/knowledge-bases?search=&sort=
func (h *KnowledgeHandler) List(c *gin.Context) {
	kbs, err := h.knowledge.Query(c.Request.Context(), c.Query("search"), service.ParseSortOrder(c.Query("sort")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"knowledgeBases": kbs})
}

// Get GET /api/admin/knowledge-bases/:kbId
func (h *KnowledgeHandler) Get(c *gin.Context) {
	kb, err := h.knowledge.Get(c.Request.Context(), c.Param("kbId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, kb)
}

// Create POST /api/admin/knowledge-bases
func (h *KnowledgeHandler) Create(c *gin.Context) {
	var req knowledgeBaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	description := ""
	if req.Description != nil {
		description = *req.Description
	}

	kb, err := h.knowledge.Create(c.Request.Context(), req.Name, description)
	if err != nil {
		respondError(c, err)
		return
	}

	h.logger.Info("管理员创建知识库",
		zap.String("adminId", c.GetString(middleware.ContextAdminID)),
		zap.String("kbId", kb.ID))
	c.JSON(http.StatusCreated, kb)
}

// Update PUT /api/admin/knowledge-bases/:kbId，description 缺省时保持不变
func (h *KnowledgeHandler) Update(c *gin.Context) {
	var req knowledgeBaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	kbID := c.Param("kbId")
	kb, err := h.knowledge.Update(c.Request.Context(), kbID, req.Name, req.Description)
	if err != nil {
		respondError(c, err)
		return
	}

	h.workspaces.rename(kbID, kb.Name)
	c.JSON(http.StatusOK, kb)
}

// Delete DELETE /api/admin/knowledge-bases/:kbId?confirm=true
func (h *KnowledgeHandler) Delete(c *gin.Context) {
	kbID := c.Param("kbId")
	if err := h.knowledge.Delete(c.Request.Context(), kbID, confirmed(c)); err != nil {
		respondError(c, err)
		return
	}

	h.workspaces.drop(kbID)
	h.logger.Info("管理员删除知识库",
		zap.String("adminId", c.GetString(middleware.ContextAdminID)),
		zap.String("kbId", kbID))
	c.JSON(http.StatusOK, gin.H{"deleted": kbID})
}

// ChatHistory GET /api/admin/knowledge-bases/:kbId/chat
func (h *KnowledgeHandler) ChatHistory(c *gin.Context) {
	kb, chat, ok := h.chat(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"knowledgeBase": kb,
		"awaiting":      chat.IsAwaiting(),
		"messages":      h.render(chat.Messages()),
	})
}

// Chat POST /api/admin/knowledge-bases/:kbId/chat，阻塞到回复生成完毕
func (h *KnowledgeHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	_, chat, ok := h.chat(c)
	if !ok {
		return
	}

	reply, err := chat.Send(c.Request.Context(), req.Message)
	if err != nil {
		respondError(c, err)
		return
	}
	resp := gin.H{
		"reply":        h.render([]model.Message{*reply})[0],
		"messages":     h.render(chat.Messages()),
		"historySaved": true,
	}
	// 回复已生成，保存失败随响应一起返回
	if saveErr := chat.HistoryError(); saveErr != nil {
		resp["historySaved"] = false
		resp["historyError"] = saveErr.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *KnowledgeHandler) chat(c *gin.Context) (*model.KnowledgeBase, *service.ChatService, bool) {
	kb, err := h.knowledge.Get(c.Request.Context(), c.Param("kbId"))
	if err != nil {
		respondError(c, err)
		return nil, nil, false
	}
	chat, err := h.workspaces.chat(c.Request.Context(), kb)
	if err != nil {
		respondError(c, err)
		return nil, nil, false
	}
	return kb, chat, true
}

func (h *KnowledgeHandler) render(msgs []model.Message) []renderedMessage {
	out := make([]renderedMessage, 0, len(msgs))
	for _, msg := range msgs {
		rm := renderedMessage{Message: msg}
		if !msg.IsUser() {
			if html, err := h.renderer.HTML(msg.Text); err == nil {
				rm.HTML = html
			}
			rm.SourceLines = render.SourceLines(msg)
		}
		out = append(out, rm)
	}
	return out
}

// confirmed 破坏性操作需要显式 ?confirm=true
func confirmed(c *gin.Context) service.Confirmer {
	ok, _ := strconv.ParseBool(c.Query("confirm"))
	return service.Confirmed(ok)
}
