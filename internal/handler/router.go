package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/sambot/sambot-go/internal/config"
	"github.com/sambot/sambot-go/internal/middleware"
	"github.com/sambot/sambot-go/internal/render"
	"github.com/sambot/sambot-go/internal/service"
	"go.uber.org/zap"
)

// Backend 网关用到的全部后端能力，由 client.BackendClient 实现
type Backend interface {
	service.Generator
	service.ChatStore
	service.DocumentBackend
	service.KnowledgeBackend
}

// Dependencies 路由依赖
type Dependencies struct {
	Config    *config.Config
	Backend   Backend
	Sessions  *service.SessionService
	Knowledge *service.KnowledgeService
	Logger    *zap.Logger
}

// NewRouter 组装网关路由
func NewRouter(deps Dependencies) *gin.Engine {
	cfg := deps.Config
	renderer := render.NewRenderer()
	history := service.NewHistoryService(deps.Backend, deps.Logger)
	workspaces := NewWorkspaces(deps.Backend, history, deps.Backend, cfg.Chat, cfg.Upload, deps.Logger)

	wsHandler := NewWebSocketHandler(deps.Sessions, deps.Backend, deps.Backend, cfg, renderer, deps.Logger)
	apiHandler := NewAPIHandler(deps.Sessions, cfg.Server.Name, deps.Logger)
	kbHandler := NewKnowledgeHandler(deps.Knowledge, workspaces, renderer, deps.Logger)
	docHandler := NewDocumentHandler(deps.Knowledge, workspaces, deps.Logger)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORS(cfg.CORS.AllowedOrigins))

	// 聊天组件：一条 WebSocket 即一次页面会话
	r.GET("/ws", wsHandler.HandleWebSocket)

	api := r.Group("/api")
	{
		api.GET("/health", apiHandler.Health)
		api.GET("/sessions/:sessionId/documents", apiHandler.ListSessionDocuments)
		api.POST("/sessions/:sessionId/documents", apiHandler.UploadSessionDocuments)
	}

	admin := api.Group("/admin", middleware.AdminAuth(cfg.Auth.JWTSecret, deps.Logger))
	{
		admin.GET("/knowledge-bases", kbHandler.List)
		admin.POST("/knowledge-bases", kbHandler.Create)
		admin.GET("/knowledge-bases/:kbId", kbHandler.Get)
		admin.PUT("/knowledge-bases/:kbId", kbHandler.Update)
		admin.DELETE("/knowledge-bases/:kbId", kbHandler.Delete)

		admin.GET("/knowledge-bases/:kbId/chat", kbHandler.ChatHistory)
		admin.POST("/knowledge-bases/:kbId/chat", kbHandler.Chat)

		admin.GET("/knowledge-bases/:kbId/documents", docHandler.List)
		admin.POST("/knowledge-bases/:kbId/documents", docHandler.Upload)
		admin.GET("/knowledge-bases/:kbId/upload-status", docHandler.Status)
		admin.DELETE("/knowledge-bases/:kbId/documents/:name", docHandler.Delete)
		admin.POST("/knowledge-bases/:kbId/documents/:name/embed", docHandler.Embed)
		admin.GET("/knowledge-bases/:kbId/documents/:name/download", docHandler.Download)
	}

	return r
}
