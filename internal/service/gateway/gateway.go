// Package gateway 实现会话与评论的持久化网关
// 网关是引擎和 HTTP 层访问存储的唯一入口：
// MySQL 为权威存储，Redis 为读缓存，缓存回写与失效均走异步任务队列。
// 缓存故障一律降级查库，不阻断业务。
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"collab_review_server/internal/dao/mysql/repository"
	myredis "collab_review_server/internal/dao/redis"
	"collab_review_server/internal/dto/request"
	"collab_review_server/internal/dto/respond"
	"collab_review_server/internal/model"
	"collab_review_server/pkg/constants"
	"collab_review_server/pkg/errorx"
	"collab_review_server/pkg/util/random"
	"collab_review_server/pkg/util/snowflake"
)

// SessionGateway 持久化网关接口
// 所有方法返回的 error 携带 errorx 错误码；未找到返回 CodeNotFound
type SessionGateway interface {
	// Load 加载会话记录
	Load(sessionId string) (*model.SessionRecord, error)
	// Create 创建会话记录，空缺字段填默认值
	Create(req request.CreateSessionRequest) (*model.SessionRecord, error)
	// SaveCode 持久化代码快照
	SaveCode(sessionId string, code string) error
	// AppendComment 追加评论并返回写入后的完整评论
	AppendComment(sessionId string, req request.AddCommentRequest) (*respond.CommentRespond, error)
	// Comments 按到达顺序返回会话的全部评论
	Comments(sessionId string) ([]respond.CommentRespond, error)
	// CountComments 统计会话评论数
	CountComments(sessionId string) (int64, error)
	// ListByOwner 按创建者返回会话记录
	ListByOwner(ownerId string) ([]model.SessionRecord, error)
}

// sessionGateway 网关实现
// 通过构造函数注入 Repository 和 Cache 依赖
type sessionGateway struct {
	repos *repository.Repositories
	cache myredis.AsyncCacheService
}

// NewSessionGateway 构造函数，注入所有依赖
func NewSessionGateway(repos *repository.Repositories, cacheService myredis.AsyncCacheService) SessionGateway {
	return &sessionGateway{
		repos: repos,
		cache: cacheService,
	}
}

// Load 加载会话记录：先查缓存，未命中降级查库并异步回写
func (g *sessionGateway) Load(sessionId string) (*model.SessionRecord, error) {
	cacheKey := "session_info_" + sessionId

	// 1. 查缓存
	rspString, err := g.cache.Get(context.Background(), cacheKey)
	if err == nil && rspString != "" {
		var record model.SessionRecord
		if err := json.Unmarshal([]byte(rspString), &record); err == nil {
			return &record, nil
		}
		// 反序列化失败，记录日志并降级查库
		zap.L().Error("Unmarshal session cache failed", zap.Error(err))
	}

	// 2. 查库（缓存未命中或缓存故障）
	record, err := g.repos.Session.FindByUuid(sessionId)
	if err != nil {
		if errorx.GetCode(err) == errorx.CodeNotFound {
			return nil, err
		}
		zap.L().Error("查询会话记录失败",
			zap.String("session_id", sessionId),
			zap.Error(err),
		)
		return nil, errorx.ErrServerBusy
	}

	// 3. 缓存回写
	g.cache.SubmitTask(func() {
		if data, err := json.Marshal(record); err == nil {
			_ = g.cache.Set(context.Background(), cacheKey, string(data), time.Minute*constants.REDIS_TIMEOUT)
		}
	})

	return record, nil
}

// Create 创建会话记录
func (g *sessionGateway) Create(req request.CreateSessionRequest) (*model.SessionRecord, error) {
	record := model.SessionRecord{
		Uuid:      fmt.Sprintf("S%s", random.GetNowAndLenRandomString(11)),
		Title:     req.Title,
		OwnerId:   req.OwnerId,
		OwnerName: req.OwnerName,
		Code:      constants.DEFAULT_CODE,
		Language:  req.Language,
	}
	if record.OwnerName == "" {
		record.OwnerName = constants.DEFAULT_AUTHOR_NAME
	}
	if record.Language == "" {
		record.Language = constants.DEFAULT_LANGUAGE
	}

	if err := g.repos.Session.Create(&record); err != nil {
		zap.L().Error("创建会话记录失败",
			zap.String("owner_id", req.OwnerId),
			zap.Error(err),
		)
		return nil, errorx.ErrServerBusy
	}

	// 异步清理创建者的会话列表缓存
	g.cache.SubmitTask(func() {
		if err := g.cache.Delete(context.Background(), "session_list_"+req.OwnerId); err != nil {
			zap.L().Error("清除会话列表缓存失败", zap.Error(err))
		}
	})

	zap.L().Info("会话创建成功",
		zap.String("session_id", record.Uuid),
		zap.String("owner_id", record.OwnerId),
	)

	return &record, nil
}

// SaveCode 持久化代码快照
func (g *sessionGateway) SaveCode(sessionId string, code string) error {
	if err := g.repos.Session.UpdateCode(sessionId, code); err != nil {
		if errorx.GetCode(err) == errorx.CodeNotFound {
			return err
		}
		zap.L().Error("保存代码快照失败",
			zap.String("session_id", sessionId),
			zap.Error(err),
		)
		return errorx.ErrServerBusy
	}

	// 异步失效会话缓存；列表缓存内嵌代码快照，一并失效
	g.cache.SubmitTask(func() {
		if err := g.cache.Delete(context.Background(), "session_info_"+sessionId); err != nil {
			zap.L().Error("清除会话缓存失败", zap.Error(err))
		}
		if err := g.cache.DeleteByPattern(context.Background(), "session_list_*"); err != nil {
			zap.L().Error("清除会话列表缓存失败", zap.Error(err))
		}
	})

	return nil
}

// AppendComment 追加评论
// 评论 ID 由雪花算法生成，保证单调且全局唯一
func (g *sessionGateway) AppendComment(sessionId string, req request.AddCommentRequest) (*respond.CommentRespond, error) {
	// 会话必须存在
	if _, err := g.Load(sessionId); err != nil {
		return nil, err
	}

	record := model.CommentRecord{
		Uuid:        fmt.Sprintf("C%s", snowflake.GenerateIDString()),
		SessionUuid: sessionId,
		Content:     req.Content,
		LineNumber:  req.LineNumber,
		AuthorId:    req.AuthorId,
		AuthorName:  req.AuthorName,
		AuthorColor: req.Color,
	}
	if record.AuthorName == "" {
		record.AuthorName = constants.DEFAULT_AUTHOR_NAME
	}
	if record.AuthorColor == "" {
		record.AuthorColor = constants.DEFAULT_USER_COLOR
	}

	if err := g.repos.Comment.Create(&record); err != nil {
		zap.L().Error("追加评论失败",
			zap.String("session_id", sessionId),
			zap.Error(err),
		)
		return nil, errorx.ErrServerBusy
	}

	// 异步失效评论列表缓存
	g.cache.SubmitTask(func() {
		if err := g.cache.Delete(context.Background(), "comment_list_"+sessionId); err != nil {
			zap.L().Error("清除评论列表缓存失败", zap.Error(err))
		}
	})

	rsp := commentToRespond(&record)
	return &rsp, nil
}

// Comments 按到达顺序返回会话的全部评论
func (g *sessionGateway) Comments(sessionId string) ([]respond.CommentRespond, error) {
	cacheKey := "comment_list_" + sessionId

	// 1. 查缓存
	rspString, err := g.cache.Get(context.Background(), cacheKey)
	if err == nil && rspString != "" {
		var rsp []respond.CommentRespond
		if err := json.Unmarshal([]byte(rspString), &rsp); err == nil {
			return rsp, nil
		}
		zap.L().Error("Unmarshal comment cache failed", zap.Error(err))
	}

	// 2. 查库
	records, err := g.repos.Comment.FindBySessionUuid(sessionId)
	if err != nil {
		zap.L().Error("查询评论列表失败",
			zap.String("session_id", sessionId),
			zap.Error(err),
		)
		return nil, errorx.ErrServerBusy
	}
	rsp := make([]respond.CommentRespond, 0, len(records))
	for i := range records {
		rsp = append(rsp, commentToRespond(&records[i]))
	}

	// 3. 缓存回写
	g.cache.SubmitTask(func() {
		if data, err := json.Marshal(rsp); err == nil {
			_ = g.cache.Set(context.Background(), cacheKey, string(data), time.Minute*constants.REDIS_TIMEOUT)
		}
	})

	return rsp, nil
}

// CountComments 统计会话评论数
func (g *sessionGateway) CountComments(sessionId string) (int64, error) {
	count, err := g.repos.Comment.CountBySessionUuid(sessionId)
	if err != nil {
		zap.L().Error("统计评论数失败",
			zap.String("session_id", sessionId),
			zap.Error(err),
		)
		return 0, errorx.ErrServerBusy
	}
	return count, nil
}

// ListByOwner 按创建者返回会话记录
func (g *sessionGateway) ListByOwner(ownerId string) ([]model.SessionRecord, error) {
	cacheKey := "session_list_" + ownerId

	rspString, err := g.cache.Get(context.Background(), cacheKey)
	if err == nil && rspString != "" {
		var records []model.SessionRecord
		if err := json.Unmarshal([]byte(rspString), &records); err == nil {
			return records, nil
		}
		zap.L().Error("Unmarshal session list cache failed", zap.Error(err))
	}

	records, err := g.repos.Session.FindByOwnerId(ownerId)
	if err != nil {
		zap.L().Error("查询会话列表失败",
			zap.String("owner_id", ownerId),
			zap.Error(err),
		)
		return nil, errorx.ErrServerBusy
	}

	g.cache.SubmitTask(func() {
		if data, err := json.Marshal(records); err == nil {
			_ = g.cache.Set(context.Background(), cacheKey, string(data), time.Minute*constants.REDIS_TIMEOUT)
		}
	})

	return records, nil
}

// commentToRespond 评论记录转响应
func commentToRespond(record *model.CommentRecord) respond.CommentRespond {
	return respond.CommentRespond{
		Id:         record.Uuid,
		Content:    record.Content,
		LineNumber: record.LineNumber,
		AuthorId:   record.AuthorId,
		AuthorName: record.AuthorName,
		Color:      record.AuthorColor,
		CreatedAt:  record.CreatedAt.Format(time.RFC3339),
	}
}
