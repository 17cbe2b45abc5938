package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sambot/sambot-go/internal/client"
	"github.com/sambot/sambot-go/internal/config"
	"github.com/sambot/sambot-go/internal/model"
	"go.uber.org/zap"
)

// FileInput 待上传的文件，Open 在轮到该文件时才被调用
type FileInput struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

// UploadResult 单个文件的处理结果
type UploadResult struct {
	FileName       string `json:"fileName"`
	ServerFileName string `json:"serverFileName,omitempty"`
	Uploaded       bool   `json:"uploaded"`
	Embedded       bool   `json:"embedded"`
	Chunks         int    `json:"chunks"`
	Error          string `json:"error,omitempty"`
}

// Succeeded 上传和向量化都成功才算成功
func (r UploadResult) Succeeded() bool {
	return r.Uploaded && r.Embedded
}

// BatchResult 一批文件的汇总
type BatchResult struct {
	Results   []UploadResult `json:"results"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
}

// Summary 形如 "1 succeeded, 1 failed"
func (b BatchResult) Summary() string {
	return fmt.Sprintf("%d succeeded, %d failed", b.Succeeded, b.Failed)
}

// DeleteResult 删除结果；向量删除失败不影响文档删除的结论
type DeleteResult struct {
	Name              string `json:"name"`
	DocumentDeleted   bool   `json:"documentDeleted"`
	EmbeddingsDeleted bool   `json:"embeddingsDeleted"`
	EmbeddingsError   string `json:"embeddingsError,omitempty"`
}

// DeletePrompt 删除确认提示
func DeletePrompt(name string) string {
	return fmt.Sprintf("Delete %q?\n\nThis will permanently remove the document and all its embeddings.\n\nThis action cannot be undone.", name)
}

// DocumentService 文档上传与向量化流水线，文件严格逐个处理
type DocumentService struct {
	scope    model.Scope
	backend  DocumentBackend
	pacing   config.UploadConfig
	onStatus func(model.EmbeddingStatus)
	logger   *zap.Logger

	mu         sync.Mutex
	docs       []model.Document
	status     model.EmbeddingStatus
	running    bool
	clearTimer *time.Timer
}

// NewDocumentService 创建流水线，onStatus 可为 nil
func NewDocumentService(scope model.Scope, backend DocumentBackend, pacing config.UploadConfig, onStatus func(model.EmbeddingStatus), logger *zap.Logger) *DocumentService {
	return &DocumentService{
		scope:    scope,
		backend:  backend,
		pacing:   pacing,
		onStatus: onStatus,
		logger:   logger,
	}
}

// Documents 当前文档列表副本
func (s *DocumentService) Documents() []model.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Document(nil), s.docs...)
}

// Status 当前状态
func (s *DocumentService) Status() model.EmbeddingStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Refresh 从后端重新拉取知识库文档列表；会话范围没有服务端列表，直接返回本地列表
func (s *DocumentService) Refresh(ctx context.Context) ([]model.Document, error) {
	if !s.scope.IsKnowledgeBase() {
		return s.Documents(), nil
	}

	records, err := s.backend.ListDocuments(ctx, s.scope)
	if err != nil {
		return nil, fmt.Errorf("获取文档列表失败: %w", err)
	}

	docs := make([]model.Document, 0, len(records))
	for _, r := range records {
		uploadedAt, _ := time.Parse(time.RFC3339Nano, r.UploadedAt)
		docs = append(docs, model.NewDocument(r.FileName, r.SizeBytes, uploadedAt))
	}

	s.mu.Lock()
	s.docs = docs
	s.mu.Unlock()
	return append([]model.Document(nil), docs...), nil
}

// Upload 逐个上传并向量化；单个文件失败不会中断整批
func (s *DocumentService) Upload(ctx context.Context, files []FileInput) (*BatchResult, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, ErrUploadInProgress
	}
	s.running = true
	if s.clearTimer != nil {
		s.clearTimer.Stop()
		s.clearTimer = nil
	}
	s.mu.Unlock()

	total := len(files)
	batch := &BatchResult{Results: make([]UploadResult, 0, total)}

	s.logger.Info("开始上传文档",
		zap.String("scope", string(s.scope.Kind)),
		zap.String("scopeId", s.scope.ID),
		zap.Int("files", total))

	for i, f := range files {
		result := s.processFile(ctx, f, i+1, total)
		batch.Results = append(batch.Results, result)
		if result.Succeeded() {
			batch.Succeeded++
		} else {
			batch.Failed++
		}
	}

	s.finish(model.EmbeddingStatus{
		IsProcessing: false,
		Message:      fmt.Sprintf("Upload complete! %s.", batch.Summary()),
		Phase:        model.PhaseSummary,
	})

	s.logger.Info("文档上传结束",
		zap.String("scopeId", s.scope.ID),
		zap.Int("succeeded", batch.Succeeded),
		zap.Int("failed", batch.Failed))
	return batch, nil
}

func (s *DocumentService) processFile(ctx context.Context, f FileInput, n, total int) UploadResult {
	result := UploadResult{FileName: f.Name}

	s.publish(model.EmbeddingStatus{
		IsProcessing: true,
		FileName:     f.Name,
		Message:      fmt.Sprintf("Uploading document... (%d of %d)", n, total),
		Progress:     "Step 1 of 2",
		Phase:        model.PhaseUploading,
	})

	serverName, err := s.upload(ctx, f)
	if err != nil {
		s.logger.Error("文档上传失败", zap.String("fileName", f.Name), zap.Error(err))
		result.Error = err.Error()
		s.fail(ctx, f.Name)
		return result
	}
	result.Uploaded = true
	result.ServerFileName = serverName

	// 上传成功即进入列表，向量化结果不影响列表成员
	s.mu.Lock()
	s.docs = append(s.docs, model.NewDocument(serverName, f.Size, time.Now()))
	s.mu.Unlock()

	s.publish(model.EmbeddingStatus{
		IsProcessing: true,
		FileName:     serverName,
		Message:      fmt.Sprintf("Embedding document... (%d of %d)", n, total),
		Progress:     "Step 2 of 2",
		Phase:        model.PhaseEmbedding,
	})

	chunks, err := s.backend.Embed(ctx, s.scope, serverName)
	if err != nil {
		s.logger.Error("文档向量化失败", zap.String("fileName", serverName), zap.Error(err))
		result.Error = err.Error()
		s.fail(ctx, serverName)
		return result
	}
	result.Embedded = true
	result.Chunks = chunks

	s.publish(model.EmbeddingStatus{
		IsProcessing: true,
		FileName:     serverName,
		Message:      fmt.Sprintf("✅ %s completed (%d sections)", serverName, chunks),
		Phase:        model.PhaseSucceeded,
	})
	s.pause(ctx, s.pacing.SuccessPause)
	return result
}

func (s *DocumentService) upload(ctx context.Context, f FileInput) (string, error) {
	if f.Open == nil {
		return "", fmt.Errorf("文件 %s 无法读取", f.Name)
	}
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("打开文件失败: %w", err)
	}
	defer rc.Close()
	return s.backend.UploadDocument(ctx, s.scope, f.Name, rc)
}

// Embed 对已上传的文档重新向量化，只由用户触发，失败不自动重试
func (s *DocumentService) Embed(ctx context.Context, name string) (*UploadResult, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, ErrUploadInProgress
	}
	s.running = true
	if s.clearTimer != nil {
		s.clearTimer.Stop()
		s.clearTimer = nil
	}
	s.mu.Unlock()

	result := &UploadResult{FileName: name, ServerFileName: name, Uploaded: true}

	s.publish(model.EmbeddingStatus{
		IsProcessing: true,
		FileName:     name,
		Message:      "Embedding document...",
		Progress:     "Step 2 of 2",
		Phase:        model.PhaseEmbedding,
	})

	chunks, err := s.backend.Embed(ctx, s.scope, name)
	if err != nil {
		s.logger.Error("文档重新向量化失败", zap.String("fileName", name), zap.Error(err))
		result.Error = err.Error()
		s.finish(model.EmbeddingStatus{
			FileName: name,
			Message:  fmt.Sprintf("❌ Failed: %s", name),
			Phase:    model.PhaseFailed,
		})
		return result, fmt.Errorf("向量化失败: %w", err)
	}
	result.Embedded = true
	result.Chunks = chunks

	s.finish(model.EmbeddingStatus{
		FileName: name,
		Message:  fmt.Sprintf("✅ %s completed (%d sections)", name, chunks),
		Phase:    model.PhaseSucceeded,
	})
	s.logger.Info("文档重新向量化完成", zap.String("fileName", name), zap.Int("chunks", chunks))
	return result, nil
}

func (s *DocumentService) fail(ctx context.Context, name string) {
	s.publish(model.EmbeddingStatus{
		IsProcessing: true,
		FileName:     name,
		Message:      fmt.Sprintf("❌ Failed: %s", name),
		Phase:        model.PhaseFailed,
	})
	s.pause(ctx, s.pacing.FailurePause)
}

// Delete 确认后先删文档再删向量；文档删除失败时列表保持不变
func (s *DocumentService) Delete(ctx context.Context, name string, confirmer Confirmer) (*DeleteResult, error) {
	if confirmer == nil || !confirmer.Confirm(ctx, DeletePrompt(name)) {
		return nil, ErrNotConfirmed
	}

	if err := s.backend.DeleteDocument(ctx, s.scope, name); err != nil {
		s.logger.Error("删除文档失败", zap.String("name", name), zap.Error(err))
		return nil, fmt.Errorf("删除文档失败: %w", err)
	}

	s.mu.Lock()
	kept := s.docs[:0]
	for _, d := range s.docs {
		if d.ID != name {
			kept = append(kept, d)
		}
	}
	s.docs = kept
	s.mu.Unlock()

	result := &DeleteResult{Name: name, DocumentDeleted: true}
	if err := s.backend.DeleteEmbeddings(ctx, s.scope, name); err != nil {
		// 文档已删除，残留向量只记录不回滚
		s.logger.Warn("删除向量失败", zap.String("name", name), zap.Error(err))
		result.EmbeddingsError = err.Error()
		return result, nil
	}
	result.EmbeddingsDeleted = true
	return result, nil
}

// OpenDownload 打开原始文件流，调用方负责关闭
func (s *DocumentService) OpenDownload(ctx context.Context, name string) (*client.Download, error) {
	dl, err := s.backend.DownloadDocument(ctx, s.scope, name)
	if err != nil {
		return nil, fmt.Errorf("下载文档失败: %w", err)
	}
	return dl, nil
}

// Download 原样写入 w
func (s *DocumentService) Download(ctx context.Context, name string, w io.Writer) (int64, error) {
	dl, err := s.OpenDownload(ctx, name)
	if err != nil {
		return 0, err
	}
	defer dl.Body.Close()

	n, err := io.Copy(w, dl.Body)
	if err != nil {
		return n, fmt.Errorf("写入文件失败: %w", err)
	}
	return n, nil
}

// Close 停止未触发的清除定时器
func (s *DocumentService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clearTimer != nil {
		s.clearTimer.Stop()
		s.clearTimer = nil
	}
}

func (s *DocumentService) publish(st model.EmbeddingStatus) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
	if s.onStatus != nil {
		s.onStatus(st)
	}
}

// finish 发布最终状态并结束运行，延迟后清除该状态
// 新的一批开始时会停掉定时器，回调只需确认状态未被替换
func (s *DocumentService) finish(st model.EmbeddingStatus) {
	s.mu.Lock()
	s.running = false
	s.status = st
	s.mu.Unlock()
	if s.onStatus != nil {
		s.onStatus(st)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || s.status != st {
		return
	}
	s.clearTimer = time.AfterFunc(s.pacing.SummaryClearDelay, func() {
		s.mu.Lock()
		if s.status != st {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		s.publish(model.EmbeddingStatus{Phase: model.PhaseCleared})
	})
}

func (s *DocumentService) pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
