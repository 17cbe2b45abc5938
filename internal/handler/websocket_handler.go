package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sambot/sambot-go/internal/config"
	"github.com/sambot/sambot-go/internal/middleware"
	"github.com/sambot/sambot-go/internal/model"
	"github.com/sambot/sambot-go/internal/render"
	"github.com/sambot/sambot-go/internal/service"
	"go.uber.org/zap"
)

// WebSocketHandler WebSocket 处理器，一条连接对应一次页面加载
type WebSocketHandler struct {
	sessionService *service.SessionService
	generator      service.Generator
	documents      service.DocumentBackend
	chatCfg        config.ChatConfig
	uploadCfg      config.UploadConfig
	renderer       *render.Renderer
	upgrader       websocket.Upgrader
	logger         *zap.Logger
}

// NewWebSocketHandler 创建 WebSocket 处理器
func NewWebSocketHandler(sessionService *service.SessionService, generator service.Generator, documents service.DocumentBackend, cfg *config.Config, renderer *render.Renderer, logger *zap.Logger) *WebSocketHandler {
	origins := cfg.CORS.AllowedOrigins
	return &WebSocketHandler{
		sessionService: sessionService,
		generator:      generator,
		documents:      documents,
		chatCfg:        cfg.Chat,
		uploadCfg:      cfg.Upload,
		renderer:       renderer,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return middleware.OriginAllowed(origins, r.Header.Get("Origin"))
			},
		},
		logger: logger,
	}
}

// HandleWebSocket WebSocket 连接入口
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	// 升级为 WebSocket 连接
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket 升级失败", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// 注册会话
	sessionID := model.NewSessionID()
	page := h.newPageSession(model.NewWidgetSession(sessionID, conn, c.ClientIP()))
	h.sessionService.Register(page)
	defer h.sessionService.Remove(sessionID)

	h.logger.Info("WebSocket 连接建立", zap.String("sessionId", sessionID))

	if err := page.WriteMessage(model.OutboundFrame{
		Type:      model.FrameSession,
		SessionID: sessionID,
		Timestamp: time.Now().UnixMilli(),
	}); err != nil {
		return
	}
	for _, msg := range page.Chat.Messages() {
		h.pushMessage(page.WidgetSession, msg)
	}

	// 消息循环
	for {
		var frame model.InboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("WebSocket 读取错误", zap.String("sessionId", sessionID), zap.Error(err))
			}
			break
		}
		h.handleFrame(ctx, page, &frame)
	}

	h.logger.Info("WebSocket 连接断开", zap.String("sessionId", sessionID))
}

func (h *WebSocketHandler) newPageSession(ws *model.WidgetSession) *service.PageSession {
	scope := model.SessionScope(ws.ID())
	return &service.PageSession{
		WidgetSession: ws,
		Chat: service.NewChatService(h.generator, nil, service.ChatOptions{
			Scope:     scope,
			EnableRAG: h.chatCfg.RAGEnabled(),
			Greeting:  h.chatCfg.Greeting,
			OnMessage: func(msg model.Message) { h.pushMessage(ws, msg) },
		}, h.logger),
		Documents: service.NewDocumentService(scope, h.documents, h.uploadCfg, func(st model.EmbeddingStatus) {
			h.write(ws, model.OutboundFrame{Type: model.FrameStatus, Status: &st, Timestamp: time.Now().UnixMilli()})
		}, h.logger),
	}
}

// handleFrame 处理页面发来的帧
func (h *WebSocketHandler) handleFrame(ctx context.Context, page *service.PageSession, frame *model.InboundFrame) {
	switch frame.Type {
	case model.FrameChat:
		// 生成耗时很长，不阻塞读循环，心跳照常处理
		go func() {
			if _, err := page.Chat.Send(ctx, frame.Content); err != nil {
				h.write(page.WidgetSession, model.OutboundFrame{
					Type:      model.FrameRejected,
					Reason:    rejectReason(err),
					Timestamp: time.Now().UnixMilli(),
				})
			}
		}()

	case model.FrameHeartbeat:
		// 更新心跳时间
		h.sessionService.UpdateHeartbeat(page.ID())
		h.write(page.WidgetSession, model.OutboundFrame{Type: model.FrameHeartbeat, Timestamp: time.Now().UnixMilli()})

	default:
		h.logger.Warn("未知消息类型",
			zap.String("sessionId", page.ID()),
			zap.String("type", string(frame.Type)))
		h.write(page.WidgetSession, model.OutboundFrame{
			Type:      model.FrameError,
			Reason:    "unknown frame type",
			Timestamp: time.Now().UnixMilli(),
		})
	}
}

func (h *WebSocketHandler) pushMessage(ws *model.WidgetSession, msg model.Message) {
	frame := model.OutboundFrame{Type: model.FrameMessage, Message: &msg, Timestamp: time.Now().UnixMilli()}
	if msg.Sender == model.SenderAssistant && h.renderer != nil {
		if html, err := h.renderer.HTML(msg.Text); err == nil {
			frame.HTML = html
		}
	}
	h.write(ws, frame)
}

func (h *WebSocketHandler) write(ws *model.WidgetSession, frame model.OutboundFrame) {
	if err := ws.WriteMessage(frame); err != nil {
		h.logger.Debug("推送失败", zap.String("sessionId", ws.ID()), zap.Error(err))
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, service.ErrEmptyMessage):
		return "empty"
	case errors.Is(err, service.ErrBusy):
		return "busy"
	default:
		return err.Error()
	}
}
