package model

import (
	"fmt"
	"time"
)

// DisplayDateLayout 展示用日期格式 DD/MM/YYYY
const DisplayDateLayout = "02/01/2006"

// Document 已上传文档，Name 是服务端分配的文件名，也是后续 embed/delete/download 的键
type Document struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Size      string `json:"size"`
	SizeBytes int64  `json:"sizeBytes"`
	Timestamp string `json:"timestamp"`
}

// NewDocument 构建展示用文档记录
func NewDocument(name string, sizeBytes int64, uploadedAt time.Time) Document {
	return Document{
		ID:        name,
		Name:      name,
		Size:      FormatSize(sizeBytes),
		SizeBytes: sizeBytes,
		Timestamp: FormatDisplayDate(uploadedAt),
	}
}

// FormatSize 以 KB 展示，保留两位小数
func FormatSize(sizeBytes int64) string {
	return fmt.Sprintf("%.2f KB", float64(sizeBytes)/1024)
}

// FormatDisplayDate 统一按 UTC 输出 DD/MM/YYYY
func FormatDisplayDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(DisplayDateLayout)
}

// ParseDisplayDate 精确解析 DD/MM/YYYY，不依赖任何区域设置
func ParseDisplayDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DisplayDateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid display date %q: %w", s, err)
	}
	return t, nil
}
