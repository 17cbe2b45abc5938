package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sambot/sambot-go/internal/client"
	"github.com/sambot/sambot-go/internal/model"
	"go.uber.org/zap"
)

// HistoryService 知识库聊天记录的读取与保存
type HistoryService struct {
	store  ChatStore
	logger *zap.Logger
}

// NewHistoryService 创建聊天记录服务
func NewHistoryService(store ChatStore, logger *zap.Logger) *HistoryService {
	return &HistoryService{
		store:  store,
		logger: logger,
	}
}

// Load 读取历史消息，记录不存在时返回空会话
func (h *HistoryService) Load(ctx context.Context, kbID string) ([]model.Message, error) {
	record, err := h.store.GetChatHistory(ctx, kbID)
	if client.IsNotFound(err) {
		return []model.Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取聊天记录失败: %w", err)
	}

	messages := make([]model.Message, 0, len(record.Messages))
	for i, m := range record.Messages {
		sender := model.SenderAssistant
		if m.Role == string(model.SenderUser) {
			sender = model.SenderUser
		}
		text := m.Content
		if text == "" {
			text = m.Text
		}
		ts, _ := time.Parse(time.RFC3339Nano, m.Timestamp)

		messages = append(messages, model.Message{
			ID:          fmt.Sprintf("msg-%d", i),
			Sender:      sender,
			Text:        text,
			Sources:     m.Sources,
			SummaryType: m.SummaryType,
			Timestamp:   ts,
		})
	}

	h.logger.Info("聊天记录已加载",
		zap.String("kbId", kbID),
		zap.Int("messages", len(messages)))
	return messages, nil
}

// Save 先更新，404 时再创建；同样的消息序列重复保存结果不变
func (h *HistoryService) Save(ctx context.Context, kbID, kbName string, messages []model.Message) error {
	record := BuildChatRecord(kbID, kbName, messages)

	err := h.store.UpdateChat(ctx, record)
	if client.IsNotFound(err) {
		h.logger.Info("聊天记录不存在，创建新记录", zap.String("chatId", record.ID))
		err = h.store.CreateChat(ctx, record)
	}
	if err != nil {
		return fmt.Errorf("保存聊天记录失败: %w", err)
	}

	h.logger.Debug("聊天记录已保存",
		zap.String("chatId", record.ID),
		zap.Int("messages", len(record.Messages)))
	return nil
}

// BuildChatRecord 时间字段全部取自消息本身，保证结果只由消息序列决定
func BuildChatRecord(kbID, kbName string, messages []model.Message) client.ChatRecord {
	record := client.ChatRecord{
		ID:                model.KnowledgeBaseScope(kbID).ChatID(),
		Title:             kbName + " Chat",
		KnowledgeBaseID:   kbID,
		KnowledgeBaseName: kbName,
		Messages:          make([]client.ChatRecordMessage, 0, len(messages)),
	}

	for _, m := range messages {
		record.Messages = append(record.Messages, client.ChatRecordMessage{
			Role:        string(m.Sender),
			Content:     m.Text,
			Timestamp:   formatTimestamp(m.Timestamp),
			Sources:     m.Sources,
			SummaryType: m.SummaryType,
		})
	}

	if n := len(messages); n > 0 {
		record.CreatedAt = formatTimestamp(messages[0].Timestamp)
		record.LastModified = formatTimestamp(messages[n-1].Timestamp)
	}
	return record
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
