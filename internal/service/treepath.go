package service

import (
	"errors"

	"github.com/threadlog/internal/db"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	// ErrParentNotFound 表示引用的父节点不存在。
	ErrParentNotFound = errors.New("parent not found")
	// ErrParentDeleted 表示父节点已被软删除，不能在其下挂载新节点。
	ErrParentDeleted = errors.New("parent is deleted")
	// ErrCycleDetected 表示操作会让节点成为自己的后代。
	ErrCycleDetected = errors.New("node cannot become its own descendant")
)

// resolveArticleAncestors 计算文章挂到 parentID 下时的物化祖先路径。
// selfID 非零表示移动场景，需要拒绝把节点挂到自身或自身后代之下。
// 只做查询和计算，不产生任何写入。
func resolveArticleAncestors(tx *gorm.DB, parentID *uint, selfID uint) (datatypes.JSONSlice[uint], error) {
	if parentID == nil {
		return datatypes.JSONSlice[uint]{}, nil
	}
	if selfID != 0 && *parentID == selfID {
		return nil, ErrCycleDetected
	}

	var parent db.Article
	if err := tx.First(&parent, *parentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrParentNotFound
		}
		return nil, err
	}
	if parent.Deleted {
		return nil, ErrParentDeleted
	}
	if selfID != 0 && containsID(parent.Ancestors, selfID) {
		return nil, ErrCycleDetected
	}

	return appendPath(parent.Ancestors, parent.ID), nil
}

// resolveTopicAncestors 是主题树上的同款路径计算。
func resolveTopicAncestors(tx *gorm.DB, parentID *uint, selfID uint) (datatypes.JSONSlice[uint], error) {
	if parentID == nil {
		return datatypes.JSONSlice[uint]{}, nil
	}
	if selfID != 0 && *parentID == selfID {
		return nil, ErrCycleDetected
	}

	var parent db.Topic
	if err := tx.First(&parent, *parentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrParentNotFound
		}
		return nil, err
	}
	if parent.Deleted {
		return nil, ErrParentDeleted
	}
	if selfID != 0 && containsID(parent.Ancestors, selfID) {
		return nil, ErrCycleDetected
	}

	return appendPath(parent.Ancestors, parent.ID), nil
}

// appendPath 在父节点路径末尾追加父节点自身，返回新切片避免共享底层数组。
func appendPath(parentAncestors []uint, parentID uint) datatypes.JSONSlice[uint] {
	path := make(datatypes.JSONSlice[uint], 0, len(parentAncestors)+1)
	path = append(path, parentAncestors...)
	return append(path, parentID)
}

func containsID(ids []uint, id uint) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

// spliceAncestors 重写一条后代路径：把 pivot 及其之前的前缀整体替换为 replacement
//（replacement 需要已包含 pivot 的新位置）。pivot 不在路径中时返回 false。
func spliceAncestors(old []uint, pivot uint, replacement []uint) (datatypes.JSONSlice[uint], bool) {
	idx := -1
	for i, id := range old {
		if id == pivot {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, false
	}

	rewritten := make(datatypes.JSONSlice[uint], 0, len(replacement)+len(old)-idx-1)
	rewritten = append(rewritten, replacement...)
	rewritten = append(rewritten, old[idx+1:]...)
	return rewritten, true
}

func equalID(a, b *uint) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
