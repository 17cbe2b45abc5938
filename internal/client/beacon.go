package client

import (
	"context"
	"net/http"
)

type cleanupBody struct {
	SessionID string `json:"sessionId"`
}

// CleanupSession 尽力通知后端清理会话临时文档
// 与普通请求不同：不继承调用方的取消，只受 beaconTimeout 约束，不重试
func (c *BackendClient) CleanupSession(ctx context.Context, sessionID string) error {
	ctx = context.WithoutCancel(ctx)
	if c.beaconTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.beaconTimeout)
		defer cancel()
	}
	return c.doJSON(ctx, "cleanup session", http.MethodPost, c.docProcURL+"/api/cleanup/session", cleanupBody{SessionID: sessionID}, nil)
}
