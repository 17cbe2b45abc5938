package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sambot/sambot-go/internal/client"
	"github.com/sambot/sambot-go/internal/config"
	"github.com/sambot/sambot-go/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type statusRecorder struct {
	mu       sync.Mutex
	statuses []model.EmbeddingStatus
}

func (r *statusRecorder) record(st model.EmbeddingStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, st)
}

func (r *statusRecorder) all() []model.EmbeddingStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.EmbeddingStatus(nil), r.statuses...)
}

func (r *statusRecorder) count(phases ...model.StatusPhase) int {
	n := 0
	for _, st := range r.all() {
		for _, p := range phases {
			if st.Phase == p {
				n++
			}
		}
	}
	return n
}

func fileInput(name, content string) FileInput {
	return FileInput{
		Name: name,
		Size: int64(len(content)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(content)), nil
		},
	}
}

func noPause() config.UploadConfig {
	return config.UploadConfig{SummaryClearDelay: time.Hour}
}

func TestUploadResumeAndCoverWithEmbedFailure(t *testing.T) {
	backend := &mockDocumentBackend{
		embedFn: func(name string) (int, error) {
			if name == "cover.docx" {
				return 0, errors.New("embedding service down")
			}
			return 12, nil
		},
	}
	rec := &statusRecorder{}
	docs := NewDocumentService(model.KnowledgeBaseScope("kb1"), backend, noPause(), rec.record, zap.NewNop())
	defer docs.Close()

	batch, err := docs.Upload(context.Background(), []FileInput{
		fileInput("resume.pdf", "pdf"),
		fileInput("cover.docx", "docx"),
	})
	require.NoError(t, err)

	assert.Equal(t, "1 succeeded, 1 failed", batch.Summary())
	assert.True(t, batch.Results[0].Uploaded)
	assert.True(t, batch.Results[0].Embedded)
	assert.Equal(t, 12, batch.Results[0].Chunks)
	assert.True(t, batch.Results[1].Uploaded)
	assert.False(t, batch.Results[1].Embedded)

	names := []string{}
	for _, d := range docs.Documents() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"resume.pdf", "cover.docx"}, names)

	assert.Equal(t, []string{
		"upload resume.pdf", "embed resume.pdf",
		"upload cover.docx", "embed cover.docx",
	}, backend.Calls())

	assert.Equal(t, 2, rec.count(model.PhaseSucceeded, model.PhaseFailed))
	assert.Equal(t, 1, rec.count(model.PhaseSummary))

	statuses := rec.all()
	assert.Equal(t, "Uploading document... (1 of 2)", statuses[0].Message)
	assert.Equal(t, "Step 1 of 2", statuses[0].Progress)
	assert.Equal(t, "Embedding document... (1 of 2)", statuses[1].Message)
	assert.Equal(t, "✅ resume.pdf completed (12 sections)", statuses[2].Message)
	assert.Equal(t, "❌ Failed: cover.docx", statuses[5].Message)
	last := statuses[len(statuses)-1]
	assert.Equal(t, "Upload complete! 1 succeeded, 1 failed.", last.Message)
	assert.False(t, last.IsProcessing)
}

func TestUploadFailureDoesNotAbortBatch(t *testing.T) {
	backend := &mockDocumentBackend{
		uploadFn: func(name string) (string, error) {
			if name == "a.pdf" {
				return "", errors.New("413 too large")
			}
			return "srv-" + name, nil
		},
	}
	rec := &statusRecorder{}
	docs := NewDocumentService(model.SessionScope("s1"), backend, noPause(), rec.record, zap.NewNop())
	defer docs.Close()

	files := []FileInput{fileInput("a.pdf", "a"), fileInput("b.pdf", "b"), fileInput("c.pdf", "c")}
	batch, err := docs.Upload(context.Background(), files)
	require.NoError(t, err)

	assert.Equal(t, 2, batch.Succeeded)
	assert.Equal(t, 1, batch.Failed)
	assert.Equal(t, len(files), batch.Succeeded+batch.Failed)
	assert.Equal(t, len(files), rec.count(model.PhaseSucceeded, model.PhaseFailed))
	assert.Equal(t, []string{
		"upload a.pdf",
		"upload b.pdf", "embed srv-b.pdf",
		"upload c.pdf", "embed srv-c.pdf",
	}, backend.Calls())
	assert.Len(t, docs.Documents(), 2)
}

func TestUploadGuards(t *testing.T) {
	docs := NewDocumentService(model.SessionScope("s1"), &mockDocumentBackend{}, noPause(), nil, zap.NewNop())
	defer docs.Close()

	_, err := docs.Upload(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoFiles)

	release := make(chan struct{})
	started := make(chan struct{})
	blocking := FileInput{Name: "slow.pdf", Open: func() (io.ReadCloser, error) {
		close(started)
		<-release
		return io.NopCloser(strings.NewReader("x")), nil
	}}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := docs.Upload(context.Background(), []FileInput{blocking})
		assert.NoError(t, err)
	}()

	<-started
	_, err = docs.Upload(context.Background(), []FileInput{fileInput("b.pdf", "b")})
	assert.ErrorIs(t, err, ErrUploadInProgress)

	close(release)
	<-done
}

func TestSummaryIsClearedAfterDelay(t *testing.T) {
	rec := &statusRecorder{}
	docs := NewDocumentService(model.SessionScope("s1"), &mockDocumentBackend{},
		config.UploadConfig{SummaryClearDelay: 20 * time.Millisecond}, rec.record, zap.NewNop())
	defer docs.Close()

	_, err := docs.Upload(context.Background(), []FileInput{fileInput("a.pdf", "a")})
	require.NoError(t, err)
	assert.Equal(t, model.PhaseSummary, docs.Status().Phase)

	assert.Eventually(t, func() bool {
		return docs.Status().Phase == model.PhaseCleared
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, docs.Status().Message)
}

func TestSummaryIsClearedWithoutDelay(t *testing.T) {
	rec := &statusRecorder{}
	docs := NewDocumentService(model.SessionScope("s1"), &mockDocumentBackend{},
		config.UploadConfig{}, rec.record, zap.NewNop())
	defer docs.Close()

	_, err := docs.Upload(context.Background(), []FileInput{fileInput("a.pdf", "a")})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return docs.Status().Phase == model.PhaseCleared
	}, time.Second, 5*time.Millisecond)

	// 汇总先于清除发布
	all := rec.all()
	require.GreaterOrEqual(t, len(all), 2)
	assert.Equal(t, model.PhaseSummary, all[len(all)-2].Phase)
	assert.Equal(t, model.PhaseCleared, all[len(all)-1].Phase)
}

func TestEmbedExistingDocument(t *testing.T) {
	backend := &mockDocumentBackend{embedFn: func(string) (int, error) { return 7, nil }}
	rec := &statusRecorder{}
	docs := NewDocumentService(model.KnowledgeBaseScope("kb1"), backend, noPause(), rec.record, zap.NewNop())
	defer docs.Close()

	result, err := docs.Embed(context.Background(), "resume.pdf")
	require.NoError(t, err)
	assert.True(t, result.Succeeded())
	assert.Equal(t, 7, result.Chunks)
	assert.Equal(t, []string{"embed resume.pdf"}, backend.Calls())

	var phases []model.StatusPhase
	for _, st := range rec.all() {
		phases = append(phases, st.Phase)
	}
	assert.Equal(t, []model.StatusPhase{model.PhaseEmbedding, model.PhaseSucceeded}, phases)
	assert.Equal(t, "✅ resume.pdf completed (7 sections)", docs.Status().Message)
	assert.False(t, docs.Status().IsProcessing)
}

func TestEmbedFailureIsNotRetried(t *testing.T) {
	backend := &mockDocumentBackend{embedFn: func(string) (int, error) {
		return 0, &client.APIError{Op: "embed", StatusCode: 500}
	}}
	rec := &statusRecorder{}
	docs := NewDocumentService(model.KnowledgeBaseScope("kb1"), backend, noPause(), rec.record, zap.NewNop())
	defer docs.Close()

	result, err := docs.Embed(context.Background(), "resume.pdf")
	require.Error(t, err)
	var apiErr *client.APIError
	assert.ErrorAs(t, err, &apiErr)
	require.NotNil(t, result)
	assert.True(t, result.Uploaded)
	assert.False(t, result.Embedded)
	assert.NotEmpty(t, result.Error)

	assert.Equal(t, []string{"embed resume.pdf"}, backend.Calls())
	assert.Equal(t, 1, rec.count(model.PhaseFailed))
	assert.Equal(t, "❌ Failed: resume.pdf", docs.Status().Message)

	// 失败后可以再次手动触发
	backend.embedFn = nil
	result, err = docs.Embed(context.Background(), "resume.pdf")
	require.NoError(t, err)
	assert.Equal(t, 3, result.Chunks)
}

func TestEmbedRejectedDuringUpload(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	backend := &mockDocumentBackend{uploadFn: func(name string) (string, error) {
		close(started)
		<-release
		return name, nil
	}}
	docs := NewDocumentService(model.KnowledgeBaseScope("kb1"), backend, noPause(), nil, zap.NewNop())
	defer docs.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := docs.Upload(context.Background(), []FileInput{fileInput("a.pdf", "a")})
		assert.NoError(t, err)
	}()

	<-started
	_, err := docs.Embed(context.Background(), "resume.pdf")
	assert.ErrorIs(t, err, ErrUploadInProgress)

	close(release)
	<-done
	assert.NotContains(t, backend.Calls(), "embed resume.pdf")
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	backend := &mockDocumentBackend{}
	docs := NewDocumentService(model.KnowledgeBaseScope("kb1"), backend, noPause(), nil, zap.NewNop())
	defer docs.Close()

	var prompt string
	_, err := docs.Delete(context.Background(), "resume.pdf", ConfirmFunc(func(_ context.Context, p string) bool {
		prompt = p
		return false
	}))
	assert.ErrorIs(t, err, ErrNotConfirmed)
	assert.Contains(t, prompt, `"resume.pdf"`)
	assert.Empty(t, backend.Calls())

	_, err = docs.Delete(context.Background(), "resume.pdf", nil)
	assert.ErrorIs(t, err, ErrNotConfirmed)
}

func TestDeleteKeepsItemOnFailure(t *testing.T) {
	backend := &mockDocumentBackend{}
	docs := NewDocumentService(model.KnowledgeBaseScope("kb1"), backend, noPause(), nil, zap.NewNop())
	defer docs.Close()

	_, err := docs.Upload(context.Background(), []FileInput{fileInput("resume.pdf", "x")})
	require.NoError(t, err)

	backend.deleteErr = &client.APIError{Op: "delete document", StatusCode: 500}
	_, err = docs.Delete(context.Background(), "resume.pdf", Confirmed(true))
	require.Error(t, err)
	assert.Len(t, docs.Documents(), 1)
	assert.NotContains(t, backend.Calls(), "delete-embeddings resume.pdf")

	backend.deleteErr = nil
	res, err := docs.Delete(context.Background(), "resume.pdf", Confirmed(true))
	require.NoError(t, err)
	assert.True(t, res.DocumentDeleted)
	assert.True(t, res.EmbeddingsDeleted)
	assert.Empty(t, docs.Documents())
}

func TestDeleteEmbeddingsFailureIsWeak(t *testing.T) {
	backend := &mockDocumentBackend{deleteEmbeddingErr: errors.New("embedding service down")}
	docs := NewDocumentService(model.KnowledgeBaseScope("kb1"), backend, noPause(), nil, zap.NewNop())
	defer docs.Close()

	_, err := docs.Upload(context.Background(), []FileInput{fileInput("resume.pdf", "x")})
	require.NoError(t, err)

	res, err := docs.Delete(context.Background(), "resume.pdf", Confirmed(true))
	require.NoError(t, err)
	assert.True(t, res.DocumentDeleted)
	assert.False(t, res.EmbeddingsDeleted)
	assert.NotEmpty(t, res.EmbeddingsError)
	assert.Empty(t, docs.Documents())
}

func TestDownloadPassthrough(t *testing.T) {
	backend := &mockDocumentBackend{content: "%PDF-1.7 raw bytes"}
	docs := NewDocumentService(model.KnowledgeBaseScope("kb1"), backend, noPause(), nil, zap.NewNop())

	var buf bytes.Buffer
	n, err := docs.Download(context.Background(), "resume.pdf", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len("%PDF-1.7 raw bytes")), n)
	assert.Equal(t, "%PDF-1.7 raw bytes", buf.String())
}

func TestRefreshKnowledgeBaseDocuments(t *testing.T) {
	backend := &mockDocumentBackend{listFn: func() ([]client.DocumentRecord, error) {
		return []client.DocumentRecord{{FileName: "resume.pdf", SizeBytes: 1536, UploadedAt: "2024-01-15T08:30:00Z"}}, nil
	}}
	docs := NewDocumentService(model.KnowledgeBaseScope("kb1"), backend, noPause(), nil, zap.NewNop())

	list, err := docs.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "1.50 KB", list[0].Size)
	assert.Equal(t, "15/01/2024", list[0].Timestamp)

	session := NewDocumentService(model.SessionScope("s1"), backend, noPause(), nil, zap.NewNop())
	list, err = session.Refresh(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, []string{"list"}, backend.Calls())
}
