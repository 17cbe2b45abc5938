package model

// KnowledgeBase 知识库，CreatedAt 为 DD/MM/YYYY 展示格式
type KnowledgeBase struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedAt   string `json:"createdAt"`
	Documents   int    `json:"documents"`
}
