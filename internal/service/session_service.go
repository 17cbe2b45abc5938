package service

import (
	"context"
	"sync"
	"time"

	"github.com/sambot/sambot-go/internal/model"
	"go.uber.org/zap"
)

const (
	heartbeatInterval = 30 * time.Second
	heartbeatStale    = 60 * time.Second
)

// PageSession 一次页面加载：身份 + 聊天控制器 + 上传流水线
type PageSession struct {
	*model.WidgetSession
	Chat      *ChatService
	Documents *DocumentService
}

// SessionService 会话管理服务
type SessionService struct {
	sessions map[string]*PageSession // sessionId -> session
	mu       sync.RWMutex            // 读写锁保护
	cleaner  SessionCleaner
	beacons  sync.WaitGroup
	interval time.Duration
	stale    time.Duration
	stop     chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger
}

// NewSessionService 创建会话管理服务
func NewSessionService(cleaner SessionCleaner, logger *zap.Logger) *SessionService {
	s := newSessionService(cleaner, heartbeatInterval, heartbeatStale, logger)

	// 启动心跳检测
	go s.heartbeatChecker()

	return s
}

func newSessionService(cleaner SessionCleaner, interval, stale time.Duration, logger *zap.Logger) *SessionService {
	return &SessionService{
		sessions: make(map[string]*PageSession),
		cleaner:  cleaner,
		interval: interval,
		stale:    stale,
		stop:     make(chan struct{}),
		logger:   logger,
	}
}

// Register 注册会话
func (s *SessionService) Register(sess *PageSession) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sess.ID()] = sess
	s.logger.Info("会话注册成功",
		zap.String("sessionId", sess.ID()),
		zap.String("clientIp", sess.ClientIP))
}

// Get 查找会话
func (s *SessionService) Get(sessionID string) (*PageSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	return sess, ok
}

// SendToSession 向指定会话推送消息
func (s *SessionService) SendToSession(sessionID string, message interface{}) error {
	sess, ok := s.Get(sessionID)
	if !ok {
		s.logger.Warn("会话不存在，消息发送失败", zap.String("sessionId", sessionID))
		return ErrSessionNotFound
	}

	if err := sess.WriteMessage(message); err != nil {
		s.logger.Error("消息发送失败",
			zap.String("sessionId", sessionID),
			zap.Error(err))
		// 异步清理无效连接
		go s.Remove(sessionID)
		return err
	}
	return nil
}

// UpdateHeartbeat 更新心跳时间
func (s *SessionService) UpdateHeartbeat(sessionID string) bool {
	sess, ok := s.Get(sessionID)
	if !ok {
		return false
	}
	sess.UpdateHeartbeat()
	s.logger.Debug("心跳已更新", zap.String("sessionId", sessionID))
	return true
}

// Remove 移除会话并发送清理通知；同一会话无论从哪条路径移除都只通知一次
func (s *SessionService) Remove(sessionID string) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	if !ok {
		return
	}
	s.release(sess)
	s.logger.Info("会话已移除", zap.String("sessionId", sessionID))
}

// GetOnlineCount 获取在线会话数
func (s *SessionService) GetOnlineCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Shutdown 停止心跳检测，关闭所有会话，并等待清理通知发出
func (s *SessionService) Shutdown(ctx context.Context) {
	s.stopOnce.Do(func() { close(s.stop) })

	s.mu.Lock()
	all := make([]*PageSession, 0, len(s.sessions))
	for id, sess := range s.sessions {
		all = append(all, sess)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	for _, sess := range all {
		s.release(sess)
	}

	done := make(chan struct{})
	go func() {
		s.beacons.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("等待清理通知超时")
	}
}

func (s *SessionService) release(sess *PageSession) {
	sess.Close(func() {
		if sess.Documents != nil {
			sess.Documents.Close()
		}
		s.beacons.Add(1)
		go func() {
			defer s.beacons.Done()
			SendCleanupBeacon(context.Background(), s.cleaner, sess.ID(), s.logger)
		}()
	})
}

// SendCleanupBeacon 尽力发送一次清理通知，失败只记录日志，不重试
func SendCleanupBeacon(ctx context.Context, cleaner SessionCleaner, sessionID string, logger *zap.Logger) {
	if cleaner == nil {
		return
	}
	if err := cleaner.CleanupSession(ctx, sessionID); err != nil {
		logger.Debug("会话清理通知失败", zap.String("sessionId", sessionID), zap.Error(err))
		return
	}
	logger.Debug("会话清理通知已发送", zap.String("sessionId", sessionID))
}

// heartbeatChecker 心跳检测器
func (s *SessionService) heartbeatChecker() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep(time.Now())
		}
	}
}

// sweep 超过 stale 未收到心跳记一次丢失，累计 3 次清理
func (s *SessionService) sweep(now time.Time) {
	var expired []string

	s.mu.RLock()
	for id, sess := range s.sessions {
		if sess.SinceHeartbeat(now) <= s.stale {
			continue
		}
		missed := sess.IncrementMissedBeats()
		if sess.ShouldBeCleaned() {
			s.logger.Info("清理无效会话",
				zap.String("sessionId", id),
				zap.Int("missedBeats", missed))
			expired = append(expired, id)
		} else {
			s.logger.Warn("会话心跳丢失",
				zap.String("sessionId", id),
				zap.Int("missedBeats", missed))
		}
	}
	s.mu.RUnlock()

	for _, id := range expired {
		s.Remove(id)
	}
}
