package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/threadlog/internal/db"
	"github.com/threadlog/internal/logging"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrTopicNotFound     = errors.New("topic not found")
	ErrTopicNameRequired = errors.New("topic name is required")
	ErrTopicNotDeleted   = errors.New("topic is not deleted")
	ErrSameTopic         = errors.New("source and target topics are identical")
)

// TopicNotEmptyError 表示主题仍有已发布文章或存活子主题，不能软删除。
type TopicNotEmptyError struct {
	PublishedArticles int64
	ChildTopics       int64
}

func (e *TopicNotEmptyError) Error() string {
	return fmt.Sprintf("topic still has %d published articles and %d child topics",
		e.PublishedArticles, e.ChildTopics)
}

// TopicService wraps topic taxonomy operations.
type TopicService struct {
	db *gorm.DB
}

// NewTopicService creates a TopicService instance.
func NewTopicService(gdb *gorm.DB) *TopicService {
	return &TopicService{db: gdb}
}

// TopicInput represents fields accepted when creating a topic.
type TopicInput struct {
	Name        string
	Description string
	ParentID    *uint
}

// TopicUpdateInput 描述主题的编辑；ParentSet 区分"未提供"与"显式置空"。
type TopicUpdateInput struct {
	Name        *string
	Description *string
	ParentID    *uint
	ParentSet   bool
}

// MergeStats 描述一次主题合并将影响的范围。
type MergeStats struct {
	Articles int64 `json:"articles"`
	Topics   int64 `json:"topics"`
}

// Create inserts a new topic under the given parent.
func (s *TopicService) Create(caller Caller, input TopicInput) (*db.Topic, error) {
	if !caller.IsActive() {
		return nil, ErrForbidden
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, ErrTopicNameRequired
	}

	topic := db.Topic{
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		CreatedBy:   caller.ID,
	}

	if err := s.db.Transaction(func(tx *gorm.DB) error {
		ancestors, err := resolveTopicAncestors(tx, input.ParentID, 0)
		if err != nil {
			return err
		}
		topic.ParentID = input.ParentID
		topic.Ancestors = ancestors
		return tx.Create(&topic).Error
	}); err != nil {
		return nil, err
	}

	return &topic, nil
}

// Get fetches a topic by id.
func (s *TopicService) Get(id uint) (*db.Topic, error) {
	var topic db.Topic
	if err := s.db.First(&topic, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTopicNotFound
		}
		return nil, err
	}
	return &topic, nil
}

// List returns topics ordered by name; includeDeleted 为真时包含已软删主题。
func (s *TopicService) List(includeDeleted bool) ([]db.Topic, error) {
	query := s.db.Model(&db.Topic{}).Order("name asc").Order("id asc")
	if !includeDeleted {
		query = query.Where("deleted = ?", false)
	}

	var topics []db.Topic
	if err := query.Find(&topics).Error; err != nil {
		return nil, err
	}
	return topics, nil
}

// Update 修改名称、描述或移动主题；移动时做环检测并重写后代路径。
func (s *TopicService) Update(caller Caller, id uint, input TopicUpdateInput) (*db.Topic, error) {
	if !caller.IsActive() {
		return nil, ErrForbidden
	}

	if err := s.db.Transaction(func(tx *gorm.DB) error {
		var existing db.Topic
		if err := tx.First(&existing, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTopicNotFound
			}
			return err
		}
		if existing.Deleted {
			return ErrTopicNotFound
		}
		if !canManageTopic(caller, &existing) {
			return ErrForbidden
		}

		updates := map[string]interface{}{}
		if input.Name != nil {
			name := strings.TrimSpace(*input.Name)
			if name == "" {
				return ErrTopicNameRequired
			}
			updates["name"] = name
		}
		if input.Description != nil {
			updates["description"] = strings.TrimSpace(*input.Description)
		}

		if input.ParentSet && !equalID(input.ParentID, existing.ParentID) {
			ancestors, err := resolveTopicAncestors(tx, input.ParentID, existing.ID)
			if err != nil {
				return err
			}
			updates["parent_id"] = input.ParentID
			updates["ancestors"] = ancestors
			if err := s.rewriteDescendantPaths(tx, existing.ID, ancestors); err != nil {
				return err
			}
		}

		if len(updates) == 0 {
			return nil
		}
		return tx.Model(&db.Topic{}).Where("id = ?", existing.ID).Updates(updates).Error
	}); err != nil {
		return nil, err
	}

	return s.Get(id)
}

// rewriteDescendantPaths 与文章树同款的移动后路径重写。
func (s *TopicService) rewriteDescendantPaths(tx *gorm.DB, nodeID uint, newAncestors datatypes.JSONSlice[uint]) error {
	var descendants []db.Topic
	if err := tx.Where(datatypes.JSONArrayQuery("ancestors").Contains(nodeID)).
		Find(&descendants).Error; err != nil {
		return err
	}

	replacement := appendPath(newAncestors, nodeID)
	for i := range descendants {
		rewritten, ok := spliceAncestors(descendants[i].Ancestors, nodeID, replacement)
		if !ok {
			continue
		}
		if err := tx.Model(&db.Topic{}).
			Where("id = ?", descendants[i].ID).
			Update("ancestors", rewritten).Error; err != nil {
			return err
		}
	}
	return nil
}

// Delete 软删除主题。仍有已发布文章或存活子主题时拒绝并返回数量；
// 引用该主题的未发布草稿先还给父主题（或置空）再执行删除。
func (s *TopicService) Delete(caller Caller, id uint) error {
	if !caller.IsActive() {
		return ErrForbidden
	}

	var topic db.Topic
	if err := s.db.First(&topic, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTopicNotFound
		}
		return err
	}
	if !canManageTopic(caller, &topic) {
		return ErrForbidden
	}
	if topic.Deleted {
		// 重复删除幂等收敛
		return nil
	}

	var published int64
	if err := s.db.Model(&db.Article{}).
		Where("topic_id = ? AND published = ? AND deleted = ?", id, true, false).
		Count(&published).Error; err != nil {
		return err
	}
	var children int64
	if err := s.db.Model(&db.Topic{}).
		Where("parent_id = ? AND deleted = ?", id, false).
		Count(&children).Error; err != nil {
		return err
	}
	if published > 0 || children > 0 {
		return &TopicNotEmptyError{PublishedArticles: published, ChildTopics: children}
	}

	now := time.Now()
	if err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&db.Article{}).
			Where("topic_id = ? AND published = ?", id, false).
			Update("topic_id", topic.ParentID).Error; err != nil {
			return err
		}

		// 前置校验保证存活子主题已清空，这里的级联只是对已删后代的幂等重标记
		return tx.Model(&db.Topic{}).
			Where("id = ?", topic.ID).
			Or(datatypes.JSONArrayQuery("ancestors").Contains(topic.ID)).
			Updates(map[string]interface{}{
				"deleted":    true,
				"deleted_at": now,
				"deleted_by": caller.ID,
			}).Error
	}); err != nil {
		logging.L().Errorw("topic cascade delete failed",
			"topic_id", topic.ID, "error", err)
		return err
	}
	return nil
}

// Restore 恢复被软删除的主题：自身与全部祖先链一次性恢复，
// restoreChildren 为真时通过工作队列逐层恢复后代。
func (s *TopicService) Restore(caller Caller, id uint, restoreChildren bool) (*db.Topic, error) {
	if !caller.IsActive() {
		return nil, ErrForbidden
	}

	var topic db.Topic
	if err := s.db.First(&topic, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTopicNotFound
		}
		return nil, err
	}
	if !canManageTopic(caller, &topic) {
		return nil, ErrForbidden
	}
	if !topic.Deleted {
		return nil, ErrTopicNotDeleted
	}

	restoreFields := map[string]interface{}{
		"deleted":    false,
		"deleted_at": nil,
		"deleted_by": nil,
	}

	if err := s.db.Transaction(func(tx *gorm.DB) error {
		chain := append([]uint{topic.ID}, topic.Ancestors...)
		if err := tx.Model(&db.Topic{}).
			Where("id IN ?", chain).
			Updates(restoreFields).Error; err != nil {
			return err
		}

		if !restoreChildren {
			return nil
		}

		queue := []uint{topic.ID}
		for len(queue) > 0 {
			current := queue[0]
			queue = queue[1:]

			var children []uint
			if err := tx.Model(&db.Topic{}).
				Where("parent_id = ? AND deleted = ?", current, true).
				Pluck("id", &children).Error; err != nil {
				return err
			}
			if len(children) == 0 {
				continue
			}
			if err := tx.Model(&db.Topic{}).
				Where("id IN ?", children).
				Updates(restoreFields).Error; err != nil {
				return err
			}
			queue = append(queue, children...)
		}
		return nil
	}); err != nil {
		logging.L().Errorw("topic restore failed",
			"topic_id", topic.ID, "error", err)
		return nil, err
	}

	return s.Get(id)
}

// Merge 把 source 主题的全部文章与子树并入 target。
// dryRun 只统计不落库；deleteSource 在迁移完成后软删除源主题。
// 重定位逐行进行，中断后重试同一合并即可收敛。
func (s *TopicService) Merge(caller Caller, sourceID, targetID uint, dryRun, deleteSource bool) (*MergeStats, error) {
	if !caller.IsAdmin() {
		return nil, ErrForbidden
	}
	if sourceID == targetID {
		return nil, ErrSameTopic
	}

	source, err := s.liveTopic(sourceID)
	if err != nil {
		return nil, err
	}
	target, err := s.liveTopic(targetID)
	if err != nil {
		return nil, err
	}

	// 合并到自己的后代会把子树挂回自身
	if containsID(target.Ancestors, source.ID) {
		return nil, ErrCycleDetected
	}

	stats := &MergeStats{}
	if err := s.db.Model(&db.Article{}).
		Where("topic_id = ? AND deleted = ?", source.ID, false).
		Count(&stats.Articles).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&db.Topic{}).
		Where(datatypes.JSONArrayQuery("ancestors").Contains(source.ID)).
		Count(&stats.Topics).Error; err != nil {
		return nil, err
	}

	if dryRun {
		return stats, nil
	}

	if err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&db.Article{}).
			Where("topic_id = ?", source.ID).
			Update("topic_id", target.ID).Error; err != nil {
			return err
		}

		replacement := appendPath(target.Ancestors, target.ID)
		var descendants []db.Topic
		if err := tx.Where(datatypes.JSONArrayQuery("ancestors").Contains(source.ID)).
			Find(&descendants).Error; err != nil {
			return err
		}
		for i := range descendants {
			rewritten, ok := spliceAncestors(descendants[i].Ancestors, source.ID, replacement)
			if !ok {
				continue
			}
			updates := map[string]interface{}{"ancestors": rewritten}
			if descendants[i].ParentID != nil && *descendants[i].ParentID == source.ID {
				updates["parent_id"] = target.ID
			}
			if err := tx.Model(&db.Topic{}).
				Where("id = ?", descendants[i].ID).
				Updates(updates).Error; err != nil {
				return err
			}
		}

		if deleteSource {
			// 内容已迁走，空主题校验不再阻塞
			now := time.Now()
			if err := tx.Model(&db.Topic{}).
				Where("id = ?", source.ID).
				Updates(map[string]interface{}{
					"deleted":    true,
					"deleted_at": now,
					"deleted_by": caller.ID,
				}).Error; err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		logging.L().Errorw("topic merge failed",
			"source_id", source.ID, "target_id", target.ID, "error", err)
		return nil, err
	}

	return stats, nil
}

// requireLiveTopic 校验主题存在且未被软删除。
func requireLiveTopic(tx *gorm.DB, id uint) error {
	var topic db.Topic
	if err := tx.First(&topic, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTopicNotFound
		}
		return err
	}
	if topic.Deleted {
		return ErrTopicNotFound
	}
	return nil
}

func (s *TopicService) liveTopic(id uint) (*db.Topic, error) {
	var topic db.Topic
	if err := s.db.First(&topic, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTopicNotFound
		}
		return nil, err
	}
	if topic.Deleted {
		return nil, ErrTopicNotFound
	}
	return &topic, nil
}

func canManageTopic(caller Caller, topic *db.Topic) bool {
	return caller.IsAdmin() || caller.ID == topic.CreatedBy
}
