// Package model 定义数据库实体模型
// 本文件定义会话持久化记录，用于审查会话的元数据和代码快照
package model

import (
	"gorm.io/gorm"
)

// SessionRecord 会话持久化记录
// 对应数据库 session_record 表
// 内存中的实时代码缓冲区与此快照是两份独立副本，仅在显式保存时同步
type SessionRecord struct {
	gorm.Model // 内嵌 GORM 模型，包含 ID、CreatedAt、UpdatedAt、DeletedAt

	// Uuid 会话唯一标识
	// 格式：S + 日期前缀随机字符串
	Uuid string `gorm:"column:uuid;uniqueIndex;type:char(20);comment:会话uuid"`

	// Title 会话标题
	Title string `gorm:"column:title;type:varchar(100);not null;comment:会话标题"`

	// OwnerId 创建会话的用户标识
	// 身份由外部系统负责，这里仅作为不透明字符串存储
	OwnerId string `gorm:"column:owner_id;index;type:varchar(64);not null;comment:创建人id"`

	// OwnerName 创建人昵称
	// 冗余存储，用于会话列表显示
	OwnerName string `gorm:"column:owner_name;type:varchar(50);comment:创建人昵称"`

	// Code 代码缓冲区快照
	// 仅在显式保存操作时更新，与实时缓冲区可能任意偏离
	Code string `gorm:"column:code;type:TEXT;comment:代码快照"`

	// Language 语言标签
	Language string `gorm:"column:language;type:varchar(20);default:javascript;comment:语言"`
}

// TableName 指定表名
func (SessionRecord) TableName() string {
	return "session_record"
}
