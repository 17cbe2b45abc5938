package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sambot/sambot-go/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBuildChatRecordIsDeterministic(t *testing.T) {
	t0 := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	msgs := []model.Message{
		{ID: "1", Sender: model.SenderUser, Text: "hi", Timestamp: t0},
		{ID: "2", Sender: model.SenderAssistant, Text: "hello", Timestamp: t0.Add(time.Minute),
			Sources: []model.Source{{ID: 1, FileName: "a.pdf"}}, SummaryType: model.SummaryTypeFull},
	}

	first := BuildChatRecord("kb1", "Docs", msgs)
	second := BuildChatRecord("kb1", "Docs", msgs)
	assert.Equal(t, first, second)

	assert.Equal(t, "kb-kb1", first.ID)
	assert.Equal(t, "Docs Chat", first.Title)
	assert.Equal(t, "2024-01-15T10:00:00Z", first.CreatedAt)
	assert.Equal(t, "2024-01-15T10:01:00Z", first.LastModified)
	require.Len(t, first.Messages, 2)
	assert.Equal(t, "assistant", first.Messages[1].Role)
	assert.Equal(t, model.SummaryTypeFull, first.Messages[1].SummaryType)
}

func TestHistorySaveRepeatedly(t *testing.T) {
	store := newMockChatStore()
	h := NewHistoryService(store, zap.NewNop())
	msgs := []model.Message{{Sender: model.SenderUser, Text: "hi", Timestamp: time.Unix(0, 0)}}

	require.NoError(t, h.Save(context.Background(), "kb1", "Docs", msgs))
	saved := store.records["kb-kb1"]
	require.NoError(t, h.Save(context.Background(), "kb1", "Docs", msgs))

	assert.Equal(t, saved, store.records["kb-kb1"])
	assert.Len(t, store.records, 1)
	assert.Equal(t, []string{"update", "create", "update"}, store.ops)
}

func TestHistoryLoad(t *testing.T) {
	store := newMockChatStore()
	h := NewHistoryService(store, zap.NewNop())

	msgs, err := h.Load(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	store.getErr = errors.New("connection refused")
	_, err = h.Load(context.Background(), "kb1")
	assert.Error(t, err)
}
