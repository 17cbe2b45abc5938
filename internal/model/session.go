package model

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// NewSessionID 生成页面级会话标识（UUIDv4，基于 crypto/rand）
func NewSessionID() string {
	return uuid.NewString()
}

// WidgetSession 一次页面加载对应的组件会话，连接断开即视为页面卸载
type WidgetSession struct {
	id            string
	Conn          *websocket.Conn
	ClientIP      string
	CreatedAt     time.Time
	LastHeartbeat time.Time
	MissedBeats   int
	mu            sync.RWMutex // 保护心跳字段
	writeMu       sync.Mutex   // WebSocket 只允许一个写者
	closeOnce     sync.Once
}

// NewWidgetSession 创建会话，id 在整个生命周期内不可变
func NewWidgetSession(id string, conn *websocket.Conn, clientIP string) *WidgetSession {
	now := time.Now()
	return &WidgetSession{
		id:            id,
		Conn:          conn,
		ClientIP:      clientIP,
		CreatedAt:     now,
		LastHeartbeat: now,
	}
}

// ID 只读的会话标识
func (s *WidgetSession) ID() string {
	return s.id
}

// UpdateHeartbeat 更新心跳时间
func (s *WidgetSession) UpdateHeartbeat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastHeartbeat = time.Now()
	s.MissedBeats = 0
}

// SinceHeartbeat 距上次心跳的时长
func (s *WidgetSession) SinceHeartbeat(now time.Time) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return now.Sub(s.LastHeartbeat)
}

// IncrementMissedBeats 增加丢失心跳次数，返回最新值
func (s *WidgetSession) IncrementMissedBeats() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.MissedBeats++
	return s.MissedBeats
}

// ShouldBeCleaned 判断是否应该清理
func (s *WidgetSession) ShouldBeCleaned() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.MissedBeats >= 3
}

// WriteMessage 向 WebSocket 写入消息（线程安全）
func (s *WidgetSession) WriteMessage(message interface{}) error {
	if s.Conn == nil {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.Conn.WriteJSON(message)
}

// Close 关闭连接并执行 onClose，无论调用多少次只生效一次
func (s *WidgetSession) Close(onClose func()) bool {
	closed := false
	s.closeOnce.Do(func() {
		closed = true
		if s.Conn != nil {
			s.Conn.Close()
		}
		if onClose != nil {
			onClose()
		}
	})
	return closed
}
