// Package repository 定义数据访问层接口和聚合结构
// 采用 Repository 模式将数据访问逻辑与业务逻辑分离
// 所有 Repository 接口在此文件定义，具体实现在各自的文件中
package repository

import (
	"gorm.io/gorm"

	"collab_review_server/internal/model"
)

// SessionRepository 会话记录数据访问接口
type SessionRepository interface {
	// FindByUuid 根据 UUID 查找会话记录
	FindByUuid(uuid string) (*model.SessionRecord, error)
	// FindByOwnerId 根据创建人查找所有会话记录
	FindByOwnerId(ownerId string) ([]model.SessionRecord, error)
	// Create 创建会话记录
	Create(record *model.SessionRecord) error
	// UpdateCode 更新代码快照
	UpdateCode(uuid string, code string) error
}

// CommentRepository 评论记录数据访问接口
// 评论只增不删，不提供更新和删除操作
type CommentRepository interface {
	// Create 追加评论记录
	Create(record *model.CommentRecord) error
	// FindBySessionUuid 按到达顺序查找会话的全部评论
	FindBySessionUuid(sessionUuid string) ([]model.CommentRecord, error)
	// CountBySessionUuid 统计会话的评论数量
	CountBySessionUuid(sessionUuid string) (int64, error)
}

// Repositories 聚合所有 Repository 实例
// 作为依赖注入的入口，Gateway 层通过此结构访问各个 Repository
type Repositories struct {
	Session SessionRepository
	Comment CommentRepository
}

// NewRepositories 创建并注入所有 Repository 实例
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Session: NewSessionRepository(db),
		Comment: NewCommentRepository(db),
	}
}
