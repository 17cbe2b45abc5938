// Package render 把助手回复转换成富文本，并格式化引用来源
package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/sambot/sambot-go/internal/model"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Renderer Markdown 渲染器，原始 HTML 不输出
type Renderer struct {
	md goldmark.Markdown
}

// NewRenderer 创建渲染器，支持加粗、有序列表等常见格式
func NewRenderer() *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
	}
}

// HTML 渲染为 HTML 片段
func (r *Renderer) HTML(text string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("渲染 markdown 失败: %w", err)
	}
	return buf.String(), nil
}

// Relevance 相关度百分比，保留一位小数
func Relevance(score float64) string {
	return fmt.Sprintf("%.1f%%", score*100)
}

// SourceLines 引用列表，full_summary 模式只列出文件
func SourceLines(msg model.Message) []string {
	if groups := msg.GroupedSources(); groups != nil {
		lines := make([]string, 0, len(groups))
		for i, g := range groups {
			lines = append(lines, fmt.Sprintf("[%d] %s (Full Document)", i+1, g.FileName))
		}
		return lines
	}

	lines := make([]string, 0, len(msg.Sources))
	for _, src := range msg.Sources {
		lines = append(lines, fmt.Sprintf("[%d] %s (section %d, relevance %s)",
			src.ID, src.FileName, src.ChunkIndex+1, Relevance(src.Score)))
	}
	return lines
}

// Plain 纯文本形式，终端客户端使用
func Plain(msg model.Message) string {
	lines := SourceLines(msg)
	if len(lines) == 0 {
		return msg.Text
	}

	var b strings.Builder
	b.WriteString(msg.Text)
	b.WriteString("\n\nSources:\n")
	b.WriteString(strings.Join(lines, "\n"))
	return b.String()
}
