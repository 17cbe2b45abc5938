package model

// FrameType WebSocket 帧类型
type FrameType string

const (
	FrameSession   FrameType = "SESSION"
	FrameChat      FrameType = "CHAT"
	FrameMessage   FrameType = "MESSAGE"
	FrameRejected  FrameType = "REJECTED"
	FrameHeartbeat FrameType = "HEARTBEAT"
	FrameStatus    FrameType = "STATUS"
	FrameError     FrameType = "ERROR"
)

// InboundFrame 页面发往网关的帧
type InboundFrame struct {
	Type    FrameType `json:"type"`
	Content string    `json:"content,omitempty"`
}

// OutboundFrame 网关推送给页面的帧
type OutboundFrame struct {
	Type      FrameType        `json:"type"`
	SessionID string           `json:"sessionId,omitempty"`
	Message   *Message         `json:"message,omitempty"`
	HTML      string           `json:"html,omitempty"`
	Status    *EmbeddingStatus `json:"status,omitempty"`
	Reason    string           `json:"reason,omitempty"`
	Timestamp int64            `json:"timestamp"`
}
