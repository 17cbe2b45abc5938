package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sambot/sambot-go/internal/config"
	"github.com/sambot/sambot-go/internal/model"
	"go.uber.org/zap"
)

// BackendClient 外部 RAG 后端客户端，按子服务区分 base URL
type BackendClient struct {
	functionsURL    string
	docProcURL      string
	embeddingURL    string
	model           string
	searchType      string
	generateTimeout time.Duration
	beaconTimeout   time.Duration
	httpClient      *http.Client
	logger          *zap.Logger
}

// NewBackendClient 创建后端客户端
func NewBackendClient(cfg config.BackendConfig, logger *zap.Logger) *BackendClient {
	return &BackendClient{
		functionsURL:    strings.TrimRight(cfg.FunctionsURL, "/"),
		docProcURL:      strings.TrimRight(cfg.DocProcURL, "/"),
		embeddingURL:    strings.TrimRight(cfg.EmbeddingURL, "/"),
		model:           cfg.Model,
		searchType:      cfg.SearchType,
		generateTimeout: cfg.GenerateTimeout,
		beaconTimeout:   cfg.BeaconTimeout,
		httpClient:      &http.Client{},
		logger:          logger,
	}
}

// GenerateRequest 生成请求
type GenerateRequest struct {
	Prompt    string
	Scope     model.Scope
	EnableRAG bool
}

type generateBody struct {
	Prompt          string `json:"prompt"`
	EnableRag       bool   `json:"enableRag"`
	SessionID       string `json:"sessionId,omitempty"`
	KnowledgeBaseID string `json:"knowledgeBaseId,omitempty"`
	ChatID          string `json:"chatId,omitempty"`
	Model           string `json:"model,omitempty"`
	SearchType      string `json:"searchType,omitempty"`
}

// GenerateResponse 生成响应
type GenerateResponse struct {
	Response    string         `json:"response"`
	Sources     []model.Source `json:"sources,omitempty"`
	SummaryType string         `json:"summaryType,omitempty"`
}

// Generate 调用生成接口，超时时间由 generateTimeout 控制，这是唯一带超时的调用
func (c *BackendClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	body := generateBody{
		Prompt:    req.Prompt,
		EnableRag: req.EnableRAG,
	}
	if req.Scope.IsKnowledgeBase() {
		body.KnowledgeBaseID = req.Scope.ID
		body.ChatID = req.Scope.ChatID()
		body.Model = c.model
		body.SearchType = c.searchType
	} else {
		body.SessionID = req.Scope.ID
	}

	if c.generateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.generateTimeout)
		defer cancel()
	}

	c.logger.Info("调用生成接口",
		zap.String("scope", string(req.Scope.Kind)),
		zap.String("scopeId", req.Scope.ID),
		zap.Int("promptLength", len(req.Prompt)))

	var resp GenerateResponse
	if err := c.doJSON(ctx, "generate", http.MethodPost, c.functionsURL+"/api/generate", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GenerateTimeout 生成接口的超时时间
func (c *BackendClient) GenerateTimeout() time.Duration {
	return c.generateTimeout
}

// doJSON 发送 JSON 请求并解析 JSON 响应，in/out 为 nil 时跳过对应步骤
func (c *BackendClient) doJSON(ctx context.Context, op, method, endpoint string, in, out interface{}) error {
	var reqBody io.Reader
	if in != nil {
		jsonData, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("序列化请求失败: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	return c.do(req, op, out)
}

// do 执行请求，非 2xx 返回 *APIError
func (c *BackendClient) do(req *http.Request, op string, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("后端请求失败",
			zap.String("op", op),
			zap.String("url", req.URL.String()),
			zap.Error(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: 读取响应失败: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := newAPIError(op, resp.StatusCode, body)
		c.logger.Warn("后端返回错误",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
			zap.String("message", apiErr.Message))
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: 解析响应失败: %w", op, err)
	}
	return nil
}

// scopedURL 知识库范围时追加 kb_id
func scopedURL(base, path string, scope model.Scope) string {
	endpoint := base + path
	if scope.IsKnowledgeBase() && scope.ID != "" {
		endpoint += "?" + url.Values{"kb_id": {scope.ID}}.Encode()
	}
	return endpoint
}
