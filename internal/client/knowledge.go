package client

import (
	"context"
	"net/http"
	"net/url"
)

// KnowledgeBaseRecord 后端返回的知识库，CreatedAt 为 ISO 时间
type KnowledgeBaseRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedAt   string `json:"createdAt"`
	Documents   int    `json:"documents"`
}

// KnowledgeBaseInput 创建/更新请求体，重命名时 Description 为 nil
type KnowledgeBaseInput struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

// ListKnowledgeBases 获取全部知识库
func (c *BackendClient) ListKnowledgeBases(ctx context.Context) ([]KnowledgeBaseRecord, error) {
	var records []KnowledgeBaseRecord
	if err := c.doJSON(ctx, "list knowledge bases", http.MethodGet, c.docProcURL+"/api/knowledge-bases", nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// CreateKnowledgeBase 创建知识库
func (c *BackendClient) CreateKnowledgeBase(ctx context.Context, in KnowledgeBaseInput) (*KnowledgeBaseRecord, error) {
	var record KnowledgeBaseRecord
	if err := c.doJSON(ctx, "create knowledge base", http.MethodPost, c.docProcURL+"/api/knowledge-bases", in, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// UpdateKnowledgeBase 更新知识库
func (c *BackendClient) UpdateKnowledgeBase(ctx context.Context, id string, in KnowledgeBaseInput) (*KnowledgeBaseRecord, error) {
	var record KnowledgeBaseRecord
	endpoint := c.docProcURL + "/api/knowledge-bases/" + url.PathEscape(id)
	if err := c.doJSON(ctx, "update knowledge base", http.MethodPut, endpoint, in, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// DeleteKnowledgeBase 删除知识库
func (c *BackendClient) DeleteKnowledgeBase(ctx context.Context, id string) error {
	endpoint := c.docProcURL + "/api/knowledge-bases/" + url.PathEscape(id)
	return c.doJSON(ctx, "delete knowledge base", http.MethodDelete, endpoint, nil, nil)
}
