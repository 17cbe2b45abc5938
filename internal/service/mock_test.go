package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/sambot/sambot-go/internal/client"
	"github.com/sambot/sambot-go/internal/model"
)

func notFound(op string) error {
	return &client.APIError{Op: op, StatusCode: http.StatusNotFound, Message: "Not Found"}
}

// mockGenerator implements Generator for testing
type mockGenerator struct {
	mu         sync.Mutex
	calls      []client.GenerateRequest
	generateFn func(ctx context.Context, req client.GenerateRequest) (*client.GenerateResponse, error)
}

func (m *mockGenerator) Generate(ctx context.Context, req client.GenerateRequest) (*client.GenerateResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()
	if m.generateFn != nil {
		return m.generateFn(ctx, req)
	}
	return &client.GenerateResponse{Response: "ok"}, nil
}

func (m *mockGenerator) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// mockChatStore implements ChatStore; update returns 404 until a record is created
type mockChatStore struct {
	mu      sync.Mutex
	records map[string]client.ChatRecord
	ops     []string
	getErr  error
	saveErr error
}

func newMockChatStore() *mockChatStore {
	return &mockChatStore{records: make(map[string]client.ChatRecord)}
}

func (m *mockChatStore) GetChatHistory(ctx context.Context, kbID string) (*client.ChatRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "get")
	if m.getErr != nil {
		return nil, m.getErr
	}
	rec, ok := m.records["kb-"+kbID]
	if !ok {
		return nil, notFound("get chat history")
	}
	return &rec, nil
}

func (m *mockChatStore) UpdateChat(ctx context.Context, record client.ChatRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "update")
	if m.saveErr != nil {
		return m.saveErr
	}
	if _, ok := m.records[record.ID]; !ok {
		return notFound("update chat")
	}
	m.records[record.ID] = record
	return nil
}

func (m *mockChatStore) CreateChat(ctx context.Context, record client.ChatRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, "create")
	m.records[record.ID] = record
	return nil
}

// mockDocumentBackend implements DocumentBackend for testing
type mockDocumentBackend struct {
	mu                 sync.Mutex
	calls              []string
	uploadFn           func(fileName string) (string, error)
	embedFn            func(serverFileName string) (int, error)
	deleteErr          error
	deleteEmbeddingErr error
	listFn             func() ([]client.DocumentRecord, error)
	content            string
}

func (m *mockDocumentBackend) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *mockDocumentBackend) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockDocumentBackend) UploadDocument(ctx context.Context, scope model.Scope, fileName string, content io.Reader) (string, error) {
	m.record("upload " + fileName)
	_, _ = io.ReadAll(content)
	if m.uploadFn != nil {
		return m.uploadFn(fileName)
	}
	return fileName, nil
}

func (m *mockDocumentBackend) Embed(ctx context.Context, scope model.Scope, serverFileName string) (int, error) {
	m.record("embed " + serverFileName)
	if m.embedFn != nil {
		return m.embedFn(serverFileName)
	}
	return 3, nil
}

func (m *mockDocumentBackend) DeleteDocument(ctx context.Context, scope model.Scope, name string) error {
	m.record("delete " + name)
	return m.deleteErr
}

func (m *mockDocumentBackend) DeleteEmbeddings(ctx context.Context, scope model.Scope, name string) error {
	m.record("delete-embeddings " + name)
	return m.deleteEmbeddingErr
}

func (m *mockDocumentBackend) DownloadDocument(ctx context.Context, scope model.Scope, name string) (*client.Download, error) {
	m.record("download " + name)
	return &client.Download{
		Body:        io.NopCloser(strings.NewReader(m.content)),
		ContentType: "application/pdf",
	}, nil
}

func (m *mockDocumentBackend) ListDocuments(ctx context.Context, scope model.Scope) ([]client.DocumentRecord, error) {
	m.record("list")
	if m.listFn != nil {
		return m.listFn()
	}
	return nil, nil
}

// mockKnowledgeBackend implements KnowledgeBackend with an in-memory collection
type mockKnowledgeBackend struct {
	mu        sync.Mutex
	kbs       []client.KnowledgeBaseRecord
	listCalls int
	nextID    int
	deleteErr error
}

func (m *mockKnowledgeBackend) ListKnowledgeBases(ctx context.Context) ([]client.KnowledgeBaseRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	return append([]client.KnowledgeBaseRecord(nil), m.kbs...), nil
}

func (m *mockKnowledgeBackend) CreateKnowledgeBase(ctx context.Context, in client.KnowledgeBaseInput) (*client.KnowledgeBaseRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	rec := client.KnowledgeBaseRecord{
		ID:        fmt.Sprintf("new-%d", m.nextID),
		Name:      in.Name,
		CreatedAt: "2024-03-01T09:00:00Z",
	}
	if in.Description != nil {
		rec.Description = *in.Description
	}
	m.kbs = append(m.kbs, rec)
	return &rec, nil
}

func (m *mockKnowledgeBackend) UpdateKnowledgeBase(ctx context.Context, id string, in client.KnowledgeBaseInput) (*client.KnowledgeBaseRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.kbs {
		if m.kbs[i].ID == id {
			m.kbs[i].Name = in.Name
			if in.Description != nil {
				m.kbs[i].Description = *in.Description
			}
			rec := m.kbs[i]
			return &rec, nil
		}
	}
	return nil, notFound("update knowledge base")
}

func (m *mockKnowledgeBackend) DeleteKnowledgeBase(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	for i := range m.kbs {
		if m.kbs[i].ID == id {
			m.kbs = append(m.kbs[:i], m.kbs[i+1:]...)
			return nil
		}
	}
	return notFound("delete knowledge base")
}

// mockCleaner implements SessionCleaner and records every notification
type mockCleaner struct {
	mu    sync.Mutex
	ids   []string
	calls chan string
}

func newMockCleaner() *mockCleaner {
	return &mockCleaner{calls: make(chan string, 16)}
}

func (m *mockCleaner) CleanupSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	m.ids = append(m.ids, sessionID)
	m.mu.Unlock()
	m.calls <- sessionID
	return nil
}

func (m *mockCleaner) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ids...)
}
