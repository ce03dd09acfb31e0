// Package repository 提供数据访问层的具体实现
// 本文件实现 SessionRepository 接口，处理会话记录相关的数据库操作
package repository

import (
	"gorm.io/gorm"

	"collab_review_server/internal/model"
)

// sessionRepository SessionRepository 接口的实现
type sessionRepository struct {
	db *gorm.DB // GORM 数据库实例
}

// NewSessionRepository 创建 SessionRepository 实例
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

// FindByUuid 根据 UUID 查找会话记录
func (r *sessionRepository) FindByUuid(uuid string) (*model.SessionRecord, error) {
	var record model.SessionRecord
	if err := r.db.Where("uuid = ?", uuid).First(&record).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询会话记录 uuid=%s", uuid)
	}
	return &record, nil
}

// FindByOwnerId 根据创建人查找所有会话记录
// 用于获取用户的会话列表，按创建时间倒序
func (r *sessionRepository) FindByOwnerId(ownerId string) ([]model.SessionRecord, error) {
	var records []model.SessionRecord
	if err := r.db.Where("owner_id = ?", ownerId).Order("created_at DESC").Find(&records).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询会话列表 owner_id=%s", ownerId)
	}
	return records, nil
}

// Create 创建会话记录
func (r *sessionRepository) Create(record *model.SessionRecord) error {
	if err := r.db.Create(record).Error; err != nil {
		return wrapDBError(err, "创建会话记录")
	}
	return nil
}

// UpdateCode 更新代码快照
// 只有显式保存操作才会走到这里，实时缓冲区不触发持久化
func (r *sessionRepository) UpdateCode(uuid string, code string) error {
	res := r.db.Model(&model.SessionRecord{}).Where("uuid = ?", uuid).Update("code", code)
	if res.Error != nil {
		return wrapDBErrorf(res.Error, "更新代码快照 uuid=%s", uuid)
	}
	if res.RowsAffected == 0 {
		return wrapDBErrorf(gorm.ErrRecordNotFound, "更新代码快照 uuid=%s", uuid)
	}
	return nil
}
