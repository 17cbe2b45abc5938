package service

import (
	"context"
	"errors"
	"io"

	"github.com/sambot/sambot-go/internal/client"
	"github.com/sambot/sambot-go/internal/model"
)

var (
	ErrEmptyMessage          = errors.New("message is empty")
	ErrBusy                  = errors.New("a response is still pending")
	ErrNoFiles               = errors.New("no files selected")
	ErrUploadInProgress      = errors.New("an upload batch is already running")
	ErrKnowledgeBaseNotFound = errors.New("knowledge base not found")
	ErrSessionNotFound       = errors.New("session not found")
	ErrNotConfirmed          = errors.New("action not confirmed")
	ErrInvalidName           = errors.New("name must not be empty")
)

// Generator 生成接口
type Generator interface {
	Generate(ctx context.Context, req client.GenerateRequest) (*client.GenerateResponse, error)
}

// ChatStore 知识库聊天记录存储
type ChatStore interface {
	GetChatHistory(ctx context.Context, kbID string) (*client.ChatRecord, error)
	UpdateChat(ctx context.Context, record client.ChatRecord) error
	CreateChat(ctx context.Context, record client.ChatRecord) error
}

// DocumentBackend 文档与向量接口
type DocumentBackend interface {
	UploadDocument(ctx context.Context, scope model.Scope, fileName string, content io.Reader) (string, error)
	Embed(ctx context.Context, scope model.Scope, serverFileName string) (int, error)
	DeleteDocument(ctx context.Context, scope model.Scope, name string) error
	DeleteEmbeddings(ctx context.Context, scope model.Scope, name string) error
	DownloadDocument(ctx context.Context, scope model.Scope, name string) (*client.Download, error)
	ListDocuments(ctx context.Context, scope model.Scope) ([]client.DocumentRecord, error)
}

// KnowledgeBackend 知识库接口
type KnowledgeBackend interface {
	ListKnowledgeBases(ctx context.Context) ([]client.KnowledgeBaseRecord, error)
	CreateKnowledgeBase(ctx context.Context, in client.KnowledgeBaseInput) (*client.KnowledgeBaseRecord, error)
	UpdateKnowledgeBase(ctx context.Context, id string, in client.KnowledgeBaseInput) (*client.KnowledgeBaseRecord, error)
	DeleteKnowledgeBase(ctx context.Context, id string) error
}

// SessionCleaner 会话清理通知
type SessionCleaner interface {
	CleanupSession(ctx context.Context, sessionID string) error
}

// Confirmer 破坏性操作前的确认
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

// ConfirmFunc 函数形式的 Confirmer
type ConfirmFunc func(ctx context.Context, prompt string) bool

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) bool {
	return f(ctx, prompt)
}

// Confirmed 已在调用方确认过（例如请求里带了 confirm=true）
func Confirmed(ok bool) Confirmer {
	return ConfirmFunc(func(context.Context, string) bool { return ok })
}

var _ Generator = (*client.BackendClient)(nil)
var _ ChatStore = (*client.BackendClient)(nil)
var _ DocumentBackend = (*client.BackendClient)(nil)
var _ KnowledgeBackend = (*client.BackendClient)(nil)
var _ SessionCleaner = (*client.BackendClient)(nil)
