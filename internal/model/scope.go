package model

// ScopeKind 文档与检索的归属范围
type ScopeKind string

const (
	// ScopeSession 临时文档，随页面会话清理
	ScopeSession ScopeKind = "session"
	// ScopeKnowledgeBase 知识库文档，持久保存并带聊天记录
	ScopeKnowledgeBase ScopeKind = "knowledge_base"
)

// Scope 决定请求里带 sessionId 还是 knowledgeBaseId / kb_id
type Scope struct {
	Kind ScopeKind
	ID   string
}

// SessionScope 会话范围
func SessionScope(sessionID string) Scope {
	return Scope{Kind: ScopeSession, ID: sessionID}
}

// KnowledgeBaseScope 知识库范围
func KnowledgeBaseScope(kbID string) Scope {
	return Scope{Kind: ScopeKnowledgeBase, ID: kbID}
}

// IsKnowledgeBase 是否知识库范围
func (s Scope) IsKnowledgeBase() bool {
	return s.Kind == ScopeKnowledgeBase
}

// ChatID 知识库聊天记录的固定 id
func (s Scope) ChatID() string {
	if !s.IsKnowledgeBase() {
		return ""
	}
	return "kb-" + s.ID
}
