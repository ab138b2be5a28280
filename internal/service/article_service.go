package service

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/threadlog/internal/db"
	"github.com/threadlog/internal/logging"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrArticleNotFound   = errors.New("article not found")
	ErrTitleRequired     = errors.New("article title is required")
	ErrContentRequired   = errors.New("article content is required")
	ErrTopicRequired     = errors.New("root article requires a topic")
	ErrTopicOnReply      = errors.New("replies inherit the root article's topic")
	ErrVersionConflict   = errors.New("article version conflict")
	ErrArticleNotDeleted = errors.New("article is not deleted")
	ErrNotPublished      = errors.New("article is not published")
	ErrUnpublishWindow   = errors.New("unpublish window has passed")
	ErrHasReplies        = errors.New("article has replies")
)

// unpublishWindow 是发布后允许撤回的时间窗口。
const unpublishWindow = 24 * time.Hour

// contentPolicy 在入库前清洗富文本，防止存储型脚本注入。
var contentPolicy = bluemonday.UGCPolicy()

// ArticleService wraps article related database operations.
type ArticleService struct {
	db *gorm.DB
}

// NewArticleService creates an ArticleService instance.
func NewArticleService(gdb *gorm.DB) *ArticleService {
	return &ArticleService{db: gdb}
}

// ArticleInput represents fields accepted when creating an article.
type ArticleInput struct {
	Title    string
	Content  string
	ParentID *uint
	TopicID  *uint
}

// ArticleUpdateInput 描述一次受版本守卫保护的编辑。
// ParentSet/TopicSet 区分字段"未提供"与"显式置空"。
type ArticleUpdateInput struct {
	Title     *string
	Content   *string
	ParentID  *uint
	ParentSet bool
	TopicID   *uint
	TopicSet  bool
	Version   int
}

// ArticleFilter describes filters for listing articles.
type ArticleFilter struct {
	Status   string
	TopicID  *uint
	ParentID *uint
	Page     int
	PerPage  int
}

// ArticleListResult aggregates paginated list data and counters.
type ArticleListResult struct {
	Articles       []db.Article
	Total          int64
	PublishedCount int64
	DraftCount     int64
	TotalPages     int
	Page           int
	PerPage        int
}

// Create persists a new root article or reply.
// 根文章必须归属一个存活主题并以草稿入库；回复继承根文章主题且立即可见。
func (s *ArticleService) Create(caller Caller, input ArticleInput) (*db.Article, error) {
	if !caller.IsActive() {
		return nil, ErrForbidden
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	content := contentPolicy.Sanitize(input.Content)
	if strings.TrimSpace(content) == "" {
		return nil, ErrContentRequired
	}

	article := db.Article{
		Title:   title,
		Content: content,
		Version: 1,
		UserID:  caller.ID,
	}

	if err := s.db.Transaction(func(tx *gorm.DB) error {
		ancestors, err := resolveArticleAncestors(tx, input.ParentID, 0)
		if err != nil {
			return err
		}
		article.ParentID = input.ParentID
		article.Ancestors = ancestors

		if input.ParentID == nil {
			if input.TopicID == nil {
				return ErrTopicRequired
			}
			if err := requireLiveTopic(tx, *input.TopicID); err != nil {
				return err
			}
			article.TopicID = input.TopicID
		} else {
			if input.TopicID != nil {
				return ErrTopicOnReply
			}
			now := time.Now()
			article.Published = true
			article.PublishedAt = &now
		}

		return tx.Create(&article).Error
	}); err != nil {
		return nil, err
	}

	return s.Get(article.ID)
}

// Get fetches an article by id with its author preloaded.
func (s *ArticleService) Get(id uint) (*db.Article, error) {
	var article db.Article
	if err := s.db.Preload("User").First(&article, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrArticleNotFound
		}
		return nil, err
	}
	return &article, nil
}

// EffectiveTopicID 返回文章实际归属的主题：根文章取自身，回复取根祖先。
// 根祖先已被物理删除时返回空，调用方按悬挂引用处理。
func (s *ArticleService) EffectiveTopicID(article *db.Article) (*uint, error) {
	if article.IsRoot() {
		return article.TopicID, nil
	}

	var root db.Article
	if err := s.db.Select("id", "topic_id").First(&root, article.RootID()).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return root.TopicID, nil
}

// Update applies a guarded edit: the caller supplied version must match the
// stored one, a pre-edit revision snapshot is appended, and the version is
// incremented by exactly one atomically with the write.
func (s *ArticleService) Update(caller Caller, id uint, input ArticleUpdateInput) (*db.Article, error) {
	if !caller.IsActive() {
		return nil, ErrForbidden
	}

	if err := s.db.Transaction(func(tx *gorm.DB) error {
		var existing db.Article
		if err := tx.First(&existing, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrArticleNotFound
			}
			return err
		}
		if existing.Deleted {
			return ErrArticleNotFound
		}
		if caller.ID != existing.UserID && !caller.IsAdmin() {
			return ErrForbidden
		}
		if input.Version != existing.Version {
			return ErrVersionConflict
		}

		updates := map[string]interface{}{
			"version": existing.Version + 1,
		}

		if input.Title != nil {
			title := strings.TrimSpace(*input.Title)
			if title == "" {
				return ErrTitleRequired
			}
			updates["title"] = title
		}
		if input.Content != nil {
			content := contentPolicy.Sanitize(*input.Content)
			if strings.TrimSpace(content) == "" {
				return ErrContentRequired
			}
			updates["content"] = content
		}

		parentID := existing.ParentID
		moving := input.ParentSet && !equalID(input.ParentID, existing.ParentID)
		if moving {
			parentID = input.ParentID
			ancestors, err := resolveArticleAncestors(tx, input.ParentID, existing.ID)
			if err != nil {
				return err
			}
			updates["parent_id"] = input.ParentID
			updates["ancestors"] = ancestors
			if err := s.rewriteDescendantPaths(tx, existing.ID, ancestors); err != nil {
				return err
			}
		}

		if parentID == nil {
			// 根文章必须保有存活主题
			topicID := existing.TopicID
			if input.TopicSet {
				topicID = input.TopicID
			}
			if topicID == nil {
				return ErrTopicRequired
			}
			if input.TopicSet || moving {
				if err := requireLiveTopic(tx, *topicID); err != nil {
					return err
				}
				updates["topic_id"] = topicID
			}
		} else {
			if input.TopicSet && input.TopicID != nil {
				return ErrTopicOnReply
			}
			if moving {
				// 降级为回复后不再落地主题
				updates["topic_id"] = nil
			}
		}

		// 版本守卫通过后，先追加修订快照再应用更新
		revision := db.ArticleRevision{
			ArticleID:   existing.ID,
			Version:     existing.Version,
			Title:       existing.Title,
			Content:     existing.Content,
			ContentHash: hashContent(existing.Content),
			UserID:      caller.ID,
		}
		if err := tx.Create(&revision).Error; err != nil {
			return err
		}

		result := tx.Model(&db.Article{}).
			Where("id = ? AND version = ?", existing.ID, existing.Version).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// 同一守卫下的并发编辑竞争失败
			return ErrVersionConflict
		}
		return nil
	}); err != nil {
		return nil, err
	}

	return s.Get(id)
}

// rewriteDescendantPaths 在节点移动后重写其所有后代的物化路径，
// 保证移动后整棵子树的路径立即一致。
func (s *ArticleService) rewriteDescendantPaths(tx *gorm.DB, nodeID uint, newAncestors datatypes.JSONSlice[uint]) error {
	var descendants []db.Article
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
		if err := tx.Model(&db.Article{}).
			Where("id = ?", descendants[i].ID).
			Update("ancestors", rewritten).Error; err != nil {
			return err
		}
	}
	return nil
}

// ListRevisions 返回文章的修订历史，按版本号倒序，并解析编辑者信息。
// 文章被软删除后修订依旧可读。
func (s *ArticleService) ListRevisions(id uint) ([]db.ArticleRevision, error) {
	var article db.Article
	if err := s.db.Select("id").First(&article, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrArticleNotFound
		}
		return nil, err
	}

	var revisions []db.ArticleRevision
	if err := s.db.Preload("User").
		Where("article_id = ?", id).
		Order("version desc").
		Find(&revisions).Error; err != nil {
		return nil, err
	}
	return revisions, nil
}

// Publish 将草稿置为已发布状态。
func (s *ArticleService) Publish(caller Caller, id uint) (*db.Article, error) {
	if !caller.IsActive() {
		return nil, ErrForbidden
	}

	article, err := s.liveArticle(id)
	if err != nil {
		return nil, err
	}
	if caller.ID != article.UserID && !caller.IsAdmin() {
		return nil, ErrForbidden
	}

	now := time.Now()
	if err := s.db.Model(&db.Article{}).
		Where("id = ?", article.ID).
		Updates(map[string]interface{}{
			"published":    true,
			"published_at": now,
		}).Error; err != nil {
		return nil, err
	}

	return s.Get(id)
}

// Unpublish 在发布后的时间窗口内撤回发布；已有存活回复的文章不可撤回。
func (s *ArticleService) Unpublish(caller Caller, id uint) (*db.Article, error) {
	if !caller.IsActive() {
		return nil, ErrForbidden
	}

	article, err := s.liveArticle(id)
	if err != nil {
		return nil, err
	}
	if caller.ID != article.UserID && !caller.IsAdmin() {
		return nil, ErrForbidden
	}
	if !article.Published {
		return nil, ErrNotPublished
	}
	if article.PublishedAt == nil || time.Since(*article.PublishedAt) > unpublishWindow {
		return nil, ErrUnpublishWindow
	}

	var replies int64
	if err := s.db.Model(&db.Article{}).
		Where("parent_id = ? AND deleted = ?", article.ID, false).
		Count(&replies).Error; err != nil {
		return nil, err
	}
	if replies > 0 {
		return nil, ErrHasReplies
	}

	if err := s.db.Model(&db.Article{}).
		Where("id = ?", article.ID).
		Updates(map[string]interface{}{
			"published":    false,
			"published_at": nil,
		}).Error; err != nil {
		return nil, err
	}

	return s.Get(id)
}

// Delete removes an article. 作者可直接物理删除自己未发布、无回复的草稿；
// 其余情况仅管理员可操作，并向整个后代闭包级联软删除。
// 级联是一条幂等的多行过滤更新，中断后重试同一操作即可收敛。
func (s *ArticleService) Delete(caller Caller, id uint) (int64, error) {
	if !caller.IsActive() {
		return 0, ErrForbidden
	}

	var article db.Article
	if err := s.db.First(&article, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrArticleNotFound
		}
		return 0, err
	}

	if !caller.IsAdmin() {
		if caller.ID != article.UserID || article.Published || article.Deleted {
			return 0, ErrForbidden
		}
		var replies int64
		if err := s.db.Model(&db.Article{}).
			Where(datatypes.JSONArrayQuery("ancestors").Contains(article.ID)).
			Count(&replies).Error; err != nil {
			return 0, err
		}
		if replies > 0 {
			return 0, ErrForbidden
		}

		// 作者收回自己的草稿：物理删除，修订随文档一并移除
		if err := s.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("article_id = ?", article.ID).Delete(&db.ArticleRevision{}).Error; err != nil {
				return err
			}
			return tx.Delete(&db.Article{}, article.ID).Error
		}); err != nil {
			return 0, err
		}
		return 1, nil
	}

	now := time.Now()
	result := s.db.Model(&db.Article{}).
		Where("id = ?", article.ID).
		Or(datatypes.JSONArrayQuery("ancestors").Contains(article.ID)).
		Updates(map[string]interface{}{
			"deleted":      true,
			"deleted_at":   now,
			"deleted_by":   caller.ID,
			"published":    false,
			"published_at": nil,
		})
	if result.Error != nil {
		logging.L().Errorw("article cascade delete failed",
			"article_id", article.ID, "error", result.Error)
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// Restore 恢复被软删除的文章：节点自身与全部祖先链一次性恢复并重新发布，
// 保证恢复后的节点从根可达；restoreChildren 为真时通过显式工作队列
// 逐层恢复后代，避免对深树做栈递归。
func (s *ArticleService) Restore(caller Caller, id uint, restoreChildren bool) (*db.Article, error) {
	if !caller.IsAdmin() {
		return nil, ErrForbidden
	}

	var article db.Article
	if err := s.db.First(&article, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrArticleNotFound
		}
		return nil, err
	}
	if !article.Deleted {
		return nil, ErrArticleNotDeleted
	}

	now := time.Now()
	restoreFields := map[string]interface{}{
		"deleted":      false,
		"deleted_at":   nil,
		"deleted_by":   nil,
		"published":    true,
		"published_at": now,
	}

	if err := s.db.Transaction(func(tx *gorm.DB) error {
		chain := append([]uint{article.ID}, article.Ancestors...)
		if err := tx.Model(&db.Article{}).
			Where("id IN ?", chain).
			Updates(restoreFields).Error; err != nil {
			return err
		}

		if !restoreChildren {
			return nil
		}

		queue := []uint{article.ID}
		for len(queue) > 0 {
			current := queue[0]
			queue = queue[1:]

			var children []uint
			if err := tx.Model(&db.Article{}).
				Where("parent_id = ? AND deleted = ?", current, true).
				Pluck("id", &children).Error; err != nil {
				return err
			}
			if len(children) == 0 {
				continue
			}
			if err := tx.Model(&db.Article{}).
				Where("id IN ?", children).
				Updates(restoreFields).Error; err != nil {
				return err
			}
			queue = append(queue, children...)
		}
		return nil
	}); err != nil {
		logging.L().Errorw("article restore failed",
			"article_id", article.ID, "error", err)
		return nil, err
	}

	return s.Get(id)
}

// PermanentDelete 物理删除一篇已被软删除的文章。
// 不级联后代：已软删的后代保留原状，其路径中会留下悬挂 ID。
func (s *ArticleService) PermanentDelete(caller Caller, id uint) error {
	if !caller.IsAdmin() {
		return ErrForbidden
	}

	var article db.Article
	if err := s.db.First(&article, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrArticleNotFound
		}
		return err
	}
	if !article.Deleted {
		return ErrArticleNotDeleted
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("article_id = ?", article.ID).Delete(&db.ArticleRevision{}).Error; err != nil {
			return err
		}
		return tx.Delete(&db.Article{}, article.ID).Error
	})
}

// List provides paginated articles with aggregated counters based on filters.
func (s *ArticleService) List(filter ArticleFilter) (*ArticleListResult, error) {
	result := &ArticleListResult{Page: filter.Page, PerPage: filter.PerPage}
	if result.Page <= 0 {
		result.Page = 1
	}
	if result.PerPage <= 0 {
		result.PerPage = 10
	}

	modelQuery := s.applyFilters(s.db.Model(&db.Article{}), filter, true)
	if err := modelQuery.Count(&result.Total).Error; err != nil {
		return nil, err
	}

	offset := (result.Page - 1) * result.PerPage

	var articles []db.Article
	dataQuery := s.applyFilters(s.db.Model(&db.Article{}).Preload("User"), filter, true)
	if err := dataQuery.Order("articles.created_at desc").
		Limit(result.PerPage).Offset(offset).
		Find(&articles).Error; err != nil {
		return nil, err
	}

	counterFilter := ArticleFilter{TopicID: filter.TopicID, ParentID: filter.ParentID}
	if err := s.applyFilters(s.db.Model(&db.Article{}), counterFilter, false).
		Where("articles.published = ? AND articles.deleted = ?", true, false).
		Count(&result.PublishedCount).Error; err != nil {
		return nil, err
	}
	if err := s.applyFilters(s.db.Model(&db.Article{}), counterFilter, false).
		Where("articles.published = ? AND articles.deleted = ?", false, false).
		Count(&result.DraftCount).Error; err != nil {
		return nil, err
	}

	if result.Total == 0 {
		result.TotalPages = 1
	} else {
		result.TotalPages = int((result.Total + int64(result.PerPage) - 1) / int64(result.PerPage))
	}

	result.Articles = articles
	return result, nil
}

func (s *ArticleService) applyFilters(query *gorm.DB, filter ArticleFilter, withStatus bool) *gorm.DB {
	if filter.TopicID != nil {
		query = query.Where("articles.topic_id = ?", *filter.TopicID)
	}
	if filter.ParentID != nil {
		query = query.Where("articles.parent_id = ?", *filter.ParentID)
	}
	if !withStatus {
		return query
	}
	switch strings.ToLower(strings.TrimSpace(filter.Status)) {
	case "published":
		query = query.Where("articles.published = ? AND articles.deleted = ?", true, false)
	case "draft":
		query = query.Where("articles.published = ? AND articles.deleted = ?", false, false)
	case "deleted":
		query = query.Where("articles.deleted = ?", true)
	default:
		query = query.Where("articles.deleted = ?", false)
	}
	return query
}

func (s *ArticleService) liveArticle(id uint) (*db.Article, error) {
	var article db.Article
	if err := s.db.First(&article, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrArticleNotFound
		}
		return nil, err
	}
	if article.Deleted {
		return nil, ErrArticleNotFound
	}
	return &article, nil
}

func hashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
