package handler

import (
	"context"
	"sync"

	"github.com/sambot/sambot-go/internal/config"
	"github.com/sambot/sambot-go/internal/model"
	"github.com/sambot/sambot-go/internal/service"
	"go.uber.org/zap"
)

// kbWorkspace 单个知识库的聊天控制器和上传流水线，跨请求复用
type kbWorkspace struct {
	chat *service.ChatService
	docs *service.DocumentService

	mu     sync.Mutex
	loaded bool
}

// Workspaces 按知识库 id 懒创建控制器
type Workspaces struct {
	generator service.Generator
	history   *service.HistoryService
	documents service.DocumentBackend
	chatCfg   config.ChatConfig
	uploadCfg config.UploadConfig
	logger    *zap.Logger

	mu    sync.Mutex
	items map[string]*kbWorkspace
}

// NewWorkspaces 创建知识库工作区注册表
func NewWorkspaces(generator service.Generator, history *service.HistoryService, documents service.DocumentBackend, chatCfg config.ChatConfig, uploadCfg config.UploadConfig, logger *zap.Logger) *Workspaces {
	return &Workspaces{
		generator: generator,
		history:   history,
		documents: documents,
		chatCfg:   chatCfg,
		uploadCfg: uploadCfg,
		logger:    logger,
		items:     make(map[string]*kbWorkspace),
	}
}

func (w *Workspaces) get(kb *model.KnowledgeBase) *kbWorkspace {
	w.mu.Lock()
	defer w.mu.Unlock()

	if ws, ok := w.items[kb.ID]; ok {
		return ws
	}

	scope := model.KnowledgeBaseScope(kb.ID)
	ws := &kbWorkspace{
		chat: service.NewChatService(w.generator, w.history, service.ChatOptions{
			Scope:             scope,
			EnableRAG:         w.chatCfg.RAGEnabled(),
			KnowledgeBaseName: kb.Name,
		}, w.logger),
		docs: service.NewDocumentService(scope, w.documents, w.uploadCfg, nil, w.logger),
	}
	w.items[kb.ID] = ws
	return ws
}

// chat 首次访问时加载历史记录，失败时下次访问重试
// 只重试加载，工作区保留，进行中的上传不受影响
func (w *Workspaces) chat(ctx context.Context, kb *model.KnowledgeBase) (*service.ChatService, error) {
	ws := w.get(kb)

	ws.mu.Lock()
	defer ws.mu.Unlock()
	if !ws.loaded {
		if err := ws.chat.LoadHistory(ctx); err != nil {
			w.logger.Warn("加载知识库聊天记录失败", zap.String("kbId", kb.ID), zap.Error(err))
			return nil, err
		}
		ws.loaded = true
	}
	return ws.chat, nil
}

func (w *Workspaces) docs(kb *model.KnowledgeBase) *service.DocumentService {
	return w.get(kb).docs
}

// rename 同步聊天记录标题
func (w *Workspaces) rename(kbID, name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if ws, ok := w.items[kbID]; ok {
		ws.chat.SetKnowledgeBaseName(name)
	}
}

// drop 知识库删除后释放
func (w *Workspaces) drop(kbID string) {
	w.mu.Lock()
	ws, ok := w.items[kbID]
	delete(w.items, kbID)
	w.mu.Unlock()
	if ok {
		ws.docs.Close()
	}
}
