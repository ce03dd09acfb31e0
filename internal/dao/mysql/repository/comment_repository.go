// Package repository 提供数据访问层的具体实现
// 本文件实现 CommentRepository 接口，处理评论记录相关的数据库操作
package repository

import (
	"gorm.io/gorm"

	"collab_review_server/internal/model"
)

// commentRepository CommentRepository 接口的实现
type commentRepository struct {
	db *gorm.DB
}

// NewCommentRepository 创建 CommentRepository 实例
func NewCommentRepository(db *gorm.DB) CommentRepository {
	return &commentRepository{db: db}
}

// Create 追加评论记录
func (r *commentRepository) Create(record *model.CommentRecord) error {
	if err := r.db.Create(record).Error; err != nil {
		return wrapDBError(err, "创建评论记录")
	}
	return nil
}

// FindBySessionUuid 按到达顺序查找会话的全部评论
func (r *commentRepository) FindBySessionUuid(sessionUuid string) ([]model.CommentRecord, error) {
	var records []model.CommentRecord
	if err := r.db.Where("session_uuid = ?", sessionUuid).Order("created_at ASC").Find(&records).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询评论列表 session_uuid=%s", sessionUuid)
	}
	return records, nil
}

// CountBySessionUuid 统计会话的评论数量
func (r *commentRepository) CountBySessionUuid(sessionUuid string) (int64, error) {
	var count int64
	if err := r.db.Model(&model.CommentRecord{}).Where("session_uuid = ?", sessionUuid).Count(&count).Error; err != nil {
		return 0, wrapDBErrorf(err, "统计评论数量 session_uuid=%s", sessionUuid)
	}
	return count, nil
}
