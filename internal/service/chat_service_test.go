package service

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
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

func TestSendAppendsUserAndAssistantTurns(t *testing.T) {
	gen := &mockGenerator{generateFn: func(ctx context.Context, req client.GenerateRequest) (*client.GenerateResponse, error) {
		return &client.GenerateResponse{
			Response: "Sam has eight years of experience.",
			Sources:  []model.Source{{ID: 1, FileName: "resume.pdf", Score: 0.8}},
		}, nil
	}}
	chat := NewChatService(gen, nil, ChatOptions{Scope: model.SessionScope("s1"), EnableRAG: true}, zap.NewNop())

	reply, err := chat.Send(context.Background(), "Tell me about experience")
	require.NoError(t, err)

	msgs := chat.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, model.SenderUser, msgs[0].Sender)
	assert.Equal(t, "Tell me about experience", msgs[0].Text)
	assert.Equal(t, model.SenderAssistant, msgs[1].Sender)
	assert.Equal(t, "Sam has eight years of experience.", msgs[1].Text)
	assert.Len(t, msgs[1].Sources, 1)
	assert.Equal(t, msgs[1].ID, reply.ID)
	assert.False(t, chat.IsAwaiting())

	require.Len(t, gen.calls, 1)
	assert.True(t, gen.calls[0].EnableRAG)
	assert.Equal(t, model.SessionScope("s1"), gen.calls[0].Scope)
}

func TestSendBackendUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	backend := client.NewBackendClient(config.BackendConfig{
		FunctionsURL:    srv.URL,
		GenerateTimeout: time.Second,
	}, zap.NewNop())
	chat := NewChatService(backend, nil, ChatOptions{Scope: model.SessionScope("s1"), EnableRAG: true}, zap.NewNop())

	reply, err := chat.Send(context.Background(), "Tell me about experience")
	require.NoError(t, err)

	msgs := chat.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "Tell me about experience", msgs[0].Text)
	assert.Contains(t, reply.Text, "Sorry, I encountered an error: could not reach the server")
	assert.Empty(t, reply.Sources)
}

func TestSendErrorText(t *testing.T) {
	tests := []struct {
		name  string
		scope model.Scope
		err   error
		want  string
	}{
		{
			name:  "knowledge base timeout",
			scope: model.KnowledgeBaseScope("kb1"),
			err:   fmt.Errorf("generate: %w", context.DeadlineExceeded),
			want:  "Error: the request timed out",
		},
		{
			name:  "knowledge base api error",
			scope: model.KnowledgeBaseScope("kb1"),
			err:   &client.APIError{Op: "generate", StatusCode: 500, Message: "Internal Server Error"},
			want:  "Error: API error: 500 Internal Server Error",
		},
		{
			name:  "session api error",
			scope: model.SessionScope("s1"),
			err:   &client.APIError{Op: "generate", StatusCode: 502},
			want:  "Sorry, I encountered an error: API error: 502. Please try again.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &mockGenerator{generateFn: func(ctx context.Context, req client.GenerateRequest) (*client.GenerateResponse, error) {
				return nil, tt.err
			}}
			chat := NewChatService(gen, NewHistoryService(newMockChatStore(), zap.NewNop()), ChatOptions{Scope: tt.scope}, zap.NewNop())

			reply, err := chat.Send(context.Background(), "hello")
			require.NoError(t, err)
			assert.Equal(t, tt.want, reply.Text)
			assert.Len(t, chat.Messages(), 2)
		})
	}
}

func TestSendEmptyResponse(t *testing.T) {
	gen := &mockGenerator{generateFn: func(ctx context.Context, req client.GenerateRequest) (*client.GenerateResponse, error) {
		return &client.GenerateResponse{}, nil
	}}
	chat := NewChatService(gen, nil, ChatOptions{Scope: model.SessionScope("s1")}, zap.NewNop())

	reply, err := chat.Send(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "No response received", reply.Text)
}

func TestSendBlankInputIsNoop(t *testing.T) {
	gen := &mockGenerator{}
	chat := NewChatService(gen, nil, ChatOptions{Scope: model.SessionScope("s1")}, zap.NewNop())

	for _, input := range []string{"", "   ", "\n\t"} {
		_, err := chat.Send(context.Background(), input)
		assert.ErrorIs(t, err, ErrEmptyMessage)
	}
	assert.Empty(t, chat.Messages())
	assert.Equal(t, 0, gen.callCount())
}

func TestSendWhileAwaitingIsRejected(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	gen := &mockGenerator{generateFn: func(ctx context.Context, req client.GenerateRequest) (*client.GenerateResponse, error) {
		close(started)
		<-release
		return &client.GenerateResponse{Response: "done"}, nil
	}}
	chat := NewChatService(gen, nil, ChatOptions{Scope: model.SessionScope("s1")}, zap.NewNop())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := chat.Send(context.Background(), "first")
		assert.NoError(t, err)
	}()

	<-started
	assert.True(t, chat.IsAwaiting())

	_, err := chat.Send(context.Background(), "second")
	assert.ErrorIs(t, err, ErrBusy)
	assert.Len(t, chat.Messages(), 1)
	assert.Equal(t, 1, gen.callCount())

	close(release)
	wg.Wait()

	msgs := chat.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Text)
	assert.Equal(t, "done", msgs[1].Text)
	assert.False(t, chat.IsAwaiting())
}

func TestMessageCallbackOrder(t *testing.T) {
	var seen []model.Sender
	chat := NewChatService(&mockGenerator{}, nil, ChatOptions{
		Scope:     model.SessionScope("s1"),
		OnMessage: func(m model.Message) { seen = append(seen, m.Sender) },
	}, zap.NewNop())

	for i := 0; i < 3; i++ {
		_, err := chat.Send(context.Background(), fmt.Sprintf("q%d", i))
		require.NoError(t, err)
	}

	assert.Len(t, chat.Messages(), 6)
	assert.Equal(t, []model.Sender{
		model.SenderUser, model.SenderAssistant,
		model.SenderUser, model.SenderAssistant,
		model.SenderUser, model.SenderAssistant,
	}, seen)
}

func TestKnowledgeBaseSendPersistsHistory(t *testing.T) {
	store := newMockChatStore()
	history := NewHistoryService(store, zap.NewNop())
	gen := &mockGenerator{generateFn: func(ctx context.Context, req client.GenerateRequest) (*client.GenerateResponse, error) {
		return nil, fmt.Errorf("boom")
	}}
	chat := NewChatService(gen, history, ChatOptions{
		Scope:             model.KnowledgeBaseScope("kb1"),
		KnowledgeBaseName: "Resume",
	}, zap.NewNop())

	_, err := chat.Send(context.Background(), "first")
	require.NoError(t, err)
	_, err = chat.Send(context.Background(), "second")
	require.NoError(t, err)

	assert.Equal(t, []string{"update", "create", "update"}, store.ops)

	rec := store.records["kb-kb1"]
	assert.Equal(t, "Resume Chat", rec.Title)
	assert.Equal(t, "kb1", rec.KnowledgeBaseID)
	require.Len(t, rec.Messages, 4)
	assert.Equal(t, "user", rec.Messages[0].Role)
	assert.Equal(t, "Error: boom", rec.Messages[1].Content)
}

func TestKnowledgeBaseSaveFailureIsReported(t *testing.T) {
	store := newMockChatStore()
	store.saveErr = &client.APIError{Op: "update chat", StatusCode: 500}
	chat := NewChatService(&mockGenerator{}, NewHistoryService(store, zap.NewNop()), ChatOptions{
		Scope:             model.KnowledgeBaseScope("kb1"),
		KnowledgeBaseName: "Resume",
	}, zap.NewNop())

	reply, err := chat.Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "ok", reply.Text)
	assert.Len(t, chat.Messages(), 2)
	assert.Error(t, chat.HistoryError())
	assert.False(t, chat.IsAwaiting())

	store.mu.Lock()
	store.saveErr = nil
	store.mu.Unlock()
	_, err = chat.Send(context.Background(), "again")
	require.NoError(t, err)
	assert.NoError(t, chat.HistoryError())
}

func TestGreetingAndHistoryLoad(t *testing.T) {
	session := NewChatService(&mockGenerator{}, nil, ChatOptions{
		Scope:    model.SessionScope("s1"),
		Greeting: "Hi, I'm SamBot!",
	}, zap.NewNop())
	msgs := session.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, model.SenderAssistant, msgs[0].Sender)

	store := newMockChatStore()
	store.records["kb-kb1"] = client.ChatRecord{ID: "kb-kb1", Messages: []client.ChatRecordMessage{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Text: "legacy text", SummaryType: model.SummaryTypeFull},
	}}
	kb := NewChatService(&mockGenerator{}, NewHistoryService(store, zap.NewNop()), ChatOptions{
		Scope:    model.KnowledgeBaseScope("kb1"),
		Greeting: "ignored for knowledge bases",
	}, zap.NewNop())
	assert.Empty(t, kb.Messages())

	require.NoError(t, kb.LoadHistory(context.Background()))
	msgs = kb.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[0].Text)
	assert.Equal(t, "legacy text", msgs[1].Text)
	assert.Equal(t, model.SummaryTypeFull, msgs[1].SummaryType)
}
