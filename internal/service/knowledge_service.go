package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sambot/sambot-go/internal/cache"
	"github.com/sambot/sambot-go/internal/client"
	"github.com/sambot/sambot-go/internal/model"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

const knowledgeBasesKey = "knowledge-bases"

// SortOrder 知识库列表排序方式
type SortOrder string

const (
	SortRecent    SortOrder = "recent"
	SortOldest    SortOrder = "oldest"
	SortName      SortOrder = "name"
	SortDocuments SortOrder = "documents"
)

// ParseSortOrder 未知值按 recent 处理
func ParseSortOrder(s string) SortOrder {
	switch SortOrder(strings.ToLower(strings.TrimSpace(s))) {
	case SortOldest:
		return SortOldest
	case SortName:
		return SortName
	case SortDocuments:
		return SortDocuments
	default:
		return SortRecent
	}
}

// KnowledgeService 知识库注册表：后端为准，本地缓存只是副本
type KnowledgeService struct {
	backend KnowledgeBackend
	cache   *cache.TypedCache[[]model.KnowledgeBase]
	group   singleflight.Group
	logger  *zap.Logger
}

// NewKnowledgeService 创建知识库服务
func NewKnowledgeService(backend KnowledgeBackend, store cache.Store, ttl time.Duration, logger *zap.Logger) *KnowledgeService {
	return &KnowledgeService{
		backend: backend,
		cache:   cache.NewTypedCache[[]model.KnowledgeBase](store, ttl),
		logger:  logger,
	}
}

// List 优先读缓存
func (s *KnowledgeService) List(ctx context.Context) ([]model.KnowledgeBase, error) {
	kbs, ok, err := s.cache.Get(ctx, knowledgeBasesKey)
	if err != nil {
		s.logger.Warn("读取知识库缓存失败", zap.Error(err))
	}
	if ok {
		return kbs, nil
	}
	return s.Refresh(ctx)
}

// Refresh 重新拉取并写入缓存，并发调用合并为一次请求
func (s *KnowledgeService) Refresh(ctx context.Context) ([]model.KnowledgeBase, error) {
	v, err, _ := s.group.Do(knowledgeBasesKey, func() (interface{}, error) {
		records, err := s.backend.ListKnowledgeBases(ctx)
		if err != nil {
			return nil, fmt.Errorf("获取知识库列表失败: %w", err)
		}

		kbs := make([]model.KnowledgeBase, 0, len(records))
		for _, r := range records {
			kbs = append(kbs, toKnowledgeBase(r))
		}
		if err := s.cache.Set(ctx, knowledgeBasesKey, kbs); err != nil {
			s.logger.Warn("写入知识库缓存失败", zap.Error(err))
		}

		s.logger.Info("知识库列表已刷新", zap.Int("count", len(kbs)))
		return kbs, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]model.KnowledgeBase(nil), v.([]model.KnowledgeBase)...), nil
}

// Get 按 id 查找
func (s *KnowledgeService) Get(ctx context.Context, id string) (*model.KnowledgeBase, error) {
	kbs, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range kbs {
		if kbs[i].ID == id {
			return &kbs[i], nil
		}
	}
	return nil, ErrKnowledgeBaseNotFound
}

// Query 过滤并排序
func (s *KnowledgeService) Query(ctx context.Context, search string, order SortOrder) ([]model.KnowledgeBase, error) {
	kbs, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return FilterAndSort(kbs, search, order), nil
}

// Create 创建后整体重新拉取列表
func (s *KnowledgeService) Create(ctx context.Context, name, description string) (*model.KnowledgeBase, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}

	record, err := s.backend.CreateKnowledgeBase(ctx, client.KnowledgeBaseInput{Name: name, Description: &description})
	if err != nil {
		return nil, fmt.Errorf("创建知识库失败: %w", err)
	}
	created := toKnowledgeBase(*record)

	if _, err := s.Refresh(ctx); err != nil {
		// 列表刷新失败时丢掉缓存，下次读取重新拉取
		s.logger.Warn("创建后刷新知识库列表失败", zap.Error(err))
		_ = s.cache.Delete(ctx, knowledgeBasesKey)
	}

	s.logger.Info("知识库已创建", zap.String("kbId", created.ID), zap.String("name", created.Name))
	return &created, nil
}

// Update 修改名称和描述，description 为 nil 时只改名
func (s *KnowledgeService) Update(ctx context.Context, id, name string, description *string) (*model.KnowledgeBase, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}

	record, err := s.backend.UpdateKnowledgeBase(ctx, id, client.KnowledgeBaseInput{Name: name, Description: description})
	if client.IsNotFound(err) {
		return nil, ErrKnowledgeBaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("更新知识库失败: %w", err)
	}

	var updated *model.KnowledgeBase
	s.patch(ctx, func(kbs []model.KnowledgeBase) []model.KnowledgeBase {
		for i := range kbs {
			if kbs[i].ID != id {
				continue
			}
			kbs[i].Name = record.Name
			if description != nil || record.Description != "" {
				kbs[i].Description = record.Description
			}
			kb := kbs[i]
			updated = &kb
		}
		return kbs
	})

	if updated == nil {
		kb := toKnowledgeBase(*record)
		updated = &kb
	}
	return updated, nil
}

// Rename 只改名，描述保持不变
func (s *KnowledgeService) Rename(ctx context.Context, id, name string) (*model.KnowledgeBase, error) {
	return s.Update(ctx, id, name, nil)
}

// Delete 需要确认；成功后从缓存中移除
func (s *KnowledgeService) Delete(ctx context.Context, id string, confirmer Confirmer) error {
	if confirmer == nil {
		return ErrNotConfirmed
	}
	// 提示里用知识库名称，列表中找不到时退回 id
	name := id
	if kb, err := s.Get(ctx, id); err == nil {
		name = kb.Name
	}
	if !confirmer.Confirm(ctx, fmt.Sprintf("Delete knowledge base %q? This action cannot be undone.", name)) {
		return ErrNotConfirmed
	}

	if err := s.backend.DeleteKnowledgeBase(ctx, id); err != nil {
		if client.IsNotFound(err) {
			return ErrKnowledgeBaseNotFound
		}
		return fmt.Errorf("删除知识库失败: %w", err)
	}

	s.patch(ctx, func(kbs []model.KnowledgeBase) []model.KnowledgeBase {
		kept := kbs[:0]
		for _, kb := range kbs {
			if kb.ID != id {
				kept = append(kept, kb)
			}
		}
		return kept
	})

	s.logger.Info("知识库已删除", zap.String("kbId", id))
	return nil
}

// patch 在缓存副本上就地修改，缓存未命中时不做任何事
func (s *KnowledgeService) patch(ctx context.Context, fn func([]model.KnowledgeBase) []model.KnowledgeBase) {
	kbs, ok, err := s.cache.Get(ctx, knowledgeBasesKey)
	if err != nil || !ok {
		return
	}
	if err := s.cache.Set(ctx, knowledgeBasesKey, fn(kbs)); err != nil {
		s.logger.Warn("更新知识库缓存失败", zap.Error(err))
	}
}

// FilterAndSort 名称或描述包含关键字（不区分大小写），再按 order 稳定排序
func FilterAndSort(kbs []model.KnowledgeBase, search string, order SortOrder) []model.KnowledgeBase {
	needle := strings.ToLower(search)
	out := make([]model.KnowledgeBase, 0, len(kbs))
	for _, kb := range kbs {
		if needle == "" ||
			strings.Contains(strings.ToLower(kb.Name), needle) ||
			strings.Contains(strings.ToLower(kb.Description), needle) {
			out = append(out, kb)
		}
	}

	switch order {
	case SortOldest:
		sort.SliceStable(out, func(i, j int) bool {
			return createdAt(out[i]).Before(createdAt(out[j]))
		})
	case SortName:
		col := collate.New(language.English)
		sort.SliceStable(out, func(i, j int) bool {
			return col.CompareString(out[i].Name, out[j].Name) < 0
		})
	case SortDocuments:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Documents > out[j].Documents
		})
	default:
		sort.SliceStable(out, func(i, j int) bool {
			return createdAt(out[i]).After(createdAt(out[j]))
		})
	}
	return out
}

// createdAt 无法解析的日期视为零值
func createdAt(kb model.KnowledgeBase) time.Time {
	t, err := model.ParseDisplayDate(kb.CreatedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

func toKnowledgeBase(r client.KnowledgeBaseRecord) model.KnowledgeBase {
	return model.KnowledgeBase{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		CreatedAt:   displayDate(r.CreatedAt),
		Documents:   r.Documents,
	}
}

// displayDate 后端给的是 ISO 时间，统一转成 DD/MM/YYYY（UTC）
func displayDate(raw string) string {
	if raw == "" {
		return ""
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return model.FormatDisplayDate(t)
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return model.FormatDisplayDate(t)
	}
	if _, err := model.ParseDisplayDate(raw); err == nil {
		return raw
	}
	return ""
}
