package model

import "time"

// Sender 消息发送方
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// SummaryTypeFull 全文摘要模式，引用按文件分组展示
const SummaryTypeFull = "full_summary"

// Source 引用来源（后端检索到的分块）
type Source struct {
	ID          int     `json:"id"`
	FileName    string  `json:"fileName"`
	ChunkIndex  int     `json:"chunkIndex"`
	TextPreview string  `json:"textPreview"`
	FullText    string  `json:"fullText"`
	Score       float64 `json:"score"`
}

// Message 会话中的一条消息，创建后不再修改
type Message struct {
	ID          string    `json:"id"`
	Sender      Sender    `json:"sender"`
	Text        string    `json:"text"`
	Sources     []Source  `json:"sources,omitempty"`
	SummaryType string    `json:"summaryType,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// IsUser 是否用户消息
func (m Message) IsUser() bool {
	return m.Sender == SenderUser
}

// SourceGroup 按文件名分组的引用
type SourceGroup struct {
	FileName string   `json:"fileName"`
	Sources  []Source `json:"sources"`
}

// GroupedSources 按文件首次出现的顺序分组，只在 full_summary 模式下有意义
func (m Message) GroupedSources() []SourceGroup {
	if m.SummaryType != SummaryTypeFull || len(m.Sources) == 0 {
		return nil
	}

	index := make(map[string]int)
	var groups []SourceGroup
	for _, src := range m.Sources {
		i, ok := index[src.FileName]
		if !ok {
			i = len(groups)
			index[src.FileName] = i
			groups = append(groups, SourceGroup{FileName: src.FileName})
		}
		groups[i].Sources = append(groups[i].Sources, src)
	}
	return groups
}

// CloneMessages 复制消息切片，调用方拿到的副本不会影响会话内部状态
func CloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		if m.Sources != nil {
			m.Sources = append([]Source(nil), m.Sources...)
		}
		out[i] = m
	}
	return out
}
