package model

// StatusPhase 上传流水线的阶段
type StatusPhase string

const (
	PhaseUploading StatusPhase = "uploading"
	PhaseEmbedding StatusPhase = "embedding"
	PhaseSucceeded StatusPhase = "succeeded"
	PhaseFailed    StatusPhase = "failed"
	PhaseSummary   StatusPhase = "summary"
	PhaseCleared   StatusPhase = "cleared"
)

// EmbeddingStatus 当前唯一的进度状态，每次阶段切换都会被覆盖
type EmbeddingStatus struct {
	IsProcessing bool        `json:"isProcessing"`
	FileName     string      `json:"fileName"`
	Message      string      `json:"message"`
	Progress     string      `json:"progress,omitempty"`
	Phase        StatusPhase `json:"phase"`
}

// IsTerminal 单个文件的终态（成功或失败）
func (s EmbeddingStatus) IsTerminal() bool {
	return s.Phase == PhaseSucceeded || s.Phase == PhaseFailed
}
