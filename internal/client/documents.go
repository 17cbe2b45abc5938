package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/sambot/sambot-go/internal/model"
	"go.uber.org/zap"
)

// DocumentRecord 后端文档列表项
type DocumentRecord struct {
	FileName   string `json:"fileName"`
	SizeBytes  int64  `json:"sizeBytes"`
	UploadedAt string `json:"uploadedAt"`
}

type uploadResponse struct {
	FileName string `json:"fileName"`
	Filename string `json:"filename"`
}

type embedBody struct {
	FileName        string `json:"fileName"`
	SessionID       string `json:"sessionId,omitempty"`
	KnowledgeBaseID string `json:"knowledgeBaseId,omitempty"`
	DocumentType    string `json:"documentType,omitempty"`
}

type embedResponse struct {
	EmbeddedChunks int `json:"embeddedChunks"`
	Chunks         int `json:"chunks"`
}

// Download 原始文件流，调用方负责关闭 Body
type Download struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

// UploadDocument 上传原始文件，返回服务端分配的文件名（可能因重名被改写）
func (c *BackendClient) UploadDocument(ctx context.Context, scope model.Scope, fileName string, content io.Reader) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return "", fmt.Errorf("创建表单失败: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return "", fmt.Errorf("读取文件失败: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("创建表单失败: %w", err)
	}

	endpoint := scopedURL(c.docProcURL, "/api/documents/upload", scope)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return "", fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var resp uploadResponse
	if err := c.do(req, "upload", &resp); err != nil {
		return "", err
	}

	serverName := resp.FileName
	if serverName == "" {
		serverName = resp.Filename
	}
	if serverName == "" {
		serverName = fileName
	}

	c.logger.Info("文档上传成功",
		zap.String("fileName", fileName),
		zap.String("serverFileName", serverName))
	return serverName, nil
}

// Embed 触发向量化，返回生成的分块数
func (c *BackendClient) Embed(ctx context.Context, scope model.Scope, serverFileName string) (int, error) {
	body := embedBody{FileName: serverFileName}
	if scope.IsKnowledgeBase() {
		body.KnowledgeBaseID = scope.ID
	} else {
		body.SessionID = scope.ID
		body.DocumentType = "temporary"
	}

	var resp embedResponse
	if err := c.doJSON(ctx, "embed", http.MethodPost, c.embeddingURL+"/api/embed", body, &resp); err != nil {
		return 0, err
	}

	chunks := resp.EmbeddedChunks
	if chunks == 0 {
		chunks = resp.Chunks
	}
	c.logger.Info("文档向量化完成",
		zap.String("fileName", serverFileName),
		zap.Int("chunks", chunks))
	return chunks, nil
}

// DeleteDocument 删除存储中的文档
func (c *BackendClient) DeleteDocument(ctx context.Context, scope model.Scope, name string) error {
	endpoint := scopedURL(c.docProcURL, "/api/documents/"+url.PathEscape(name), scope)
	return c.doJSON(ctx, "delete document", http.MethodDelete, endpoint, nil, nil)
}

// DeleteEmbeddings 删除文档对应的向量
func (c *BackendClient) DeleteEmbeddings(ctx context.Context, scope model.Scope, name string) error {
	endpoint := scopedURL(c.embeddingURL, "/api/embed/"+url.PathEscape(name), scope)
	return c.doJSON(ctx, "delete embeddings", http.MethodDelete, endpoint, nil, nil)
}

// DownloadDocument 打开原始文件流，内容不做任何转换
func (c *BackendClient) DownloadDocument(ctx context.Context, scope model.Scope, name string) (*Download, error) {
	endpoint := scopedURL(c.docProcURL, "/api/documents/"+url.PathEscape(name)+"/download", scope)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, newAPIError("download", resp.StatusCode, body)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &Download{
		Body:          resp.Body,
		ContentType:   contentType,
		ContentLength: resp.ContentLength,
	}, nil
}

// ListDocuments 获取知识库文档列表
func (c *BackendClient) ListDocuments(ctx context.Context, scope model.Scope) ([]DocumentRecord, error) {
	endpoint := scopedURL(c.docProcURL, "/api/documents", scope)
	var records []DocumentRecord
	if err := c.doJSON(ctx, "list documents", http.MethodGet, endpoint, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}
