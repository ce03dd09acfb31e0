// Package model 定义数据库实体模型
// 本文件定义评论持久化记录
package model

import (
	"gorm.io/gorm"
)

// CommentRecord 行锚定评论记录
// 对应数据库 comment_record 表
// 评论创建后不可变，只增不删
type CommentRecord struct {
	gorm.Model

	// Uuid 评论唯一标识（雪花 ID 字符串）
	Uuid string `gorm:"column:uuid;uniqueIndex;type:varchar(32);not null;comment:评论uuid"`

	// SessionUuid 所属会话
	SessionUuid string `gorm:"column:session_uuid;index;type:char(20);not null;comment:会话uuid"`

	// Content 评论内容，必填
	Content string `gorm:"column:content;type:TEXT;not null;comment:评论内容"`

	// LineNumber 锚定行号，正整数
	// 不校验是否超过当前缓冲区行数，客户端可能引用已过期的行号
	LineNumber int `gorm:"column:line_number;not null;comment:锚定行号"`

	// AuthorId 作者标识（不透明字符串）
	AuthorId string `gorm:"column:author_id;type:varchar(64);not null;comment:作者id"`

	// AuthorName 作者昵称
	AuthorName string `gorm:"column:author_name;type:varchar(50);comment:作者昵称"`

	// AuthorColor 作者显示颜色
	AuthorColor string `gorm:"column:author_color;type:char(9);comment:作者颜色"`
}

// TableName 指定表名
func (CommentRecord) TableName() string {
	return "comment_record"
}
