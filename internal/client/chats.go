package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/sambot/sambot-go/internal/model"
)

// ChatRecord 后端保存的知识库聊天记录，id 固定为 kb-<知识库id>
type ChatRecord struct {
	ID                string              `json:"id"`
	Title             string              `json:"title"`
	KnowledgeBaseID   string              `json:"knowledgeBaseId"`
	KnowledgeBaseName string              `json:"knowledgeBaseName"`
	CreatedAt         string              `json:"created_at"`
	LastModified      string              `json:"last_modified"`
	Messages          []ChatRecordMessage `json:"messages"`
}

// ChatRecordMessage 持久化的单条消息，旧数据可能只有 text 字段
type ChatRecordMessage struct {
	Role        string         `json:"role"`
	Content     string         `json:"content"`
	Text        string         `json:"text,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
	Sources     []model.Source `json:"sources,omitempty"`
	SummaryType string         `json:"summaryType,omitempty"`
}

// GetChatHistory 获取知识库聊天记录
func (c *BackendClient) GetChatHistory(ctx context.Context, kbID string) (*ChatRecord, error) {
	endpoint := c.docProcURL + "/api/chats?" + url.Values{"kb_id": {kbID}}.Encode()
	var record ChatRecord
	if err := c.doJSON(ctx, "get chat history", http.MethodGet, endpoint, nil, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// UpdateChat 覆盖已有记录，不存在时后端返回 404
func (c *BackendClient) UpdateChat(ctx context.Context, record ChatRecord) error {
	endpoint := c.docProcURL + "/api/chats/" + url.PathEscape(record.ID)
	return c.doJSON(ctx, "update chat", http.MethodPut, endpoint, record, nil)
}

// CreateChat 新建记录
func (c *BackendClient) CreateChat(ctx context.Context, record ChatRecord) error {
	return c.doJSON(ctx, "create chat", http.MethodPost, c.docProcURL+"/api/chats", record, nil)
}
