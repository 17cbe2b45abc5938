package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sambot/sambot-go/internal/client"
	"github.com/sambot/sambot-go/internal/model"
	"go.uber.org/zap"
)

const (
	noResponseText  = "No response received"
	historySaveWait = 30 * time.Second
)

// ChatOptions 会话参数
type ChatOptions struct {
	Scope             model.Scope
	EnableRAG         bool
	Greeting          string
	KnowledgeBaseName string
	// OnMessage 每追加一条消息回调一次，调用顺序即追加顺序
	OnMessage func(model.Message)
}

// ChatService 单个会话的聊天控制器
// 两个状态：空闲 / 等待回复；同一时刻最多一个未完成的生成请求
type ChatService struct {
	scope     model.Scope
	enableRAG bool
	generator Generator
	history   *HistoryService
	onMessage func(model.Message)
	logger    *zap.Logger

	mu       sync.Mutex
	messages []model.Message
	awaiting bool
	kbName   string
	saveErr  error
}

// NewChatService 创建聊天控制器，history 只在知识库范围下使用
func NewChatService(generator Generator, history *HistoryService, opts ChatOptions, logger *zap.Logger) *ChatService {
	s := &ChatService{
		scope:     opts.Scope,
		enableRAG: opts.EnableRAG,
		generator: generator,
		onMessage: opts.OnMessage,
		kbName:    opts.KnowledgeBaseName,
		logger:    logger,
	}
	if opts.Scope.IsKnowledgeBase() {
		s.history = history
	}

	if opts.Greeting != "" && !opts.Scope.IsKnowledgeBase() {
		s.messages = append(s.messages, newMessage(model.SenderAssistant, opts.Greeting))
	}
	return s
}

// Scope 会话范围
func (s *ChatService) Scope() model.Scope {
	return s.scope
}

// SetKnowledgeBaseName 知识库改名后同步到聊天记录标题
func (s *ChatService) SetKnowledgeBaseName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kbName = name
}

// Messages 当前消息的副本，按追加顺序
func (s *ChatService) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.CloneMessages(s.messages)
}

// IsAwaiting 是否在等待回复
func (s *ChatService) IsAwaiting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.awaiting
}

// HistoryError 最近一次聊天记录保存的错误，保存成功后清空
func (s *ChatService) HistoryError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveErr
}

// LoadHistory 用后端记录替换当前消息，仅知识库范围有效
func (s *ChatService) LoadHistory(ctx context.Context) error {
	if s.history == nil {
		return nil
	}

	msgs, err := s.history.Load(ctx, s.scope.ID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.awaiting {
		return ErrBusy
	}
	s.messages = msgs
	return nil
}

// Send 发送一条用户消息并等待回复
// 空白输入返回 ErrEmptyMessage，已有请求未完成时返回 ErrBusy，两者都不改变消息列表
// 其余情况下总是追加一条用户消息和一条助手消息，后端错误以助手消息文本呈现
func (s *ChatService) Send(ctx context.Context, text string) (*model.Message, error) {
	prompt := strings.TrimSpace(text)
	if prompt == "" {
		return nil, ErrEmptyMessage
	}

	s.mu.Lock()
	if s.awaiting {
		s.mu.Unlock()
		s.logger.Debug("上一条消息仍在等待回复，忽略本次发送", zap.String("scopeId", s.scope.ID))
		return nil, ErrBusy
	}
	s.awaiting = true
	userMsg := newMessage(model.SenderUser, prompt)
	s.messages = append(s.messages, userMsg)
	s.mu.Unlock()
	s.notify(userMsg)

	defer func() {
		s.mu.Lock()
		s.awaiting = false
		s.mu.Unlock()
	}()

	resp, err := s.generator.Generate(ctx, client.GenerateRequest{
		Prompt:    prompt,
		Scope:     s.scope,
		EnableRAG: s.enableRAG,
	})

	var reply model.Message
	if err != nil {
		s.logger.Error("生成回复失败",
			zap.String("scope", string(s.scope.Kind)),
			zap.String("scopeId", s.scope.ID),
			zap.Error(err))
		reply = newMessage(model.SenderAssistant, s.errorText(err))
	} else {
		body := resp.Response
		if body == "" {
			body = noResponseText
		}
		reply = newMessage(model.SenderAssistant, body)
		reply.Sources = resp.Sources
		reply.SummaryType = resp.SummaryType
	}

	s.mu.Lock()
	s.messages = append(s.messages, reply)
	snapshot := model.CloneMessages(s.messages)
	kbName := s.kbName
	s.mu.Unlock()
	s.notify(reply)

	// 保存完成前保持等待状态，保证多次保存按顺序到达
	if s.history != nil {
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historySaveWait)
		err := s.history.Save(saveCtx, s.scope.ID, kbName, snapshot)
		cancel()
		if err != nil {
			s.logger.Warn("聊天记录保存失败", zap.String("kbId", s.scope.ID), zap.Error(err))
		}
		s.mu.Lock()
		s.saveErr = err
		s.mu.Unlock()
	}

	return &reply, nil
}

func (s *ChatService) notify(msg model.Message) {
	if s.onMessage != nil {
		s.onMessage(msg)
	}
}

// errorText 把错误转换成可读的会话文本
func (s *ChatService) errorText(err error) string {
	desc := describeError(err)
	if s.scope.IsKnowledgeBase() {
		return "Error: " + desc
	}
	return fmt.Sprintf("Sorry, I encountered an error: %s. Please try again.", desc)
}

func describeError(err error) string {
	var apiErr *client.APIError
	var urlErr *url.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "the request timed out"
	case errors.Is(err, context.Canceled):
		return "the request was cancelled"
	case errors.As(err, &apiErr):
		return apiErr.Error()
	case errors.As(err, &urlErr):
		return "could not reach the server (" + urlErr.Err.Error() + ")"
	default:
		return err.Error()
	}
}

func newMessage(sender model.Sender, text string) model.Message {
	return model.Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
}
