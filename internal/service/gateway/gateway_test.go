package gateway

import (
	"context"
	"strings"
	"testing"
	"time"

	"collab_review_server/internal/dao/mysql/repository"
	"collab_review_server/internal/dto/request"
	"collab_review_server/internal/model"
	"collab_review_server/pkg/constants"
	"collab_review_server/pkg/errorx"
)

// stubSessionRepo 内存会话仓库，统计查库次数以验证缓存命中
type stubSessionRepo struct {
	records map[string]*model.SessionRecord
	finds   int
}

func newStubSessionRepo() *stubSessionRepo {
	return &stubSessionRepo{records: make(map[string]*model.SessionRecord)}
}

func (s *stubSessionRepo) FindByUuid(uuid string) (*model.SessionRecord, error) {
	s.finds++
	if record, ok := s.records[uuid]; ok {
		copied := *record
		return &copied, nil
	}
	return nil, errorx.New(errorx.CodeNotFound, "会话记录不存在")
}

func (s *stubSessionRepo) FindByOwnerId(ownerId string) ([]model.SessionRecord, error) {
	var out []model.SessionRecord
	for _, record := range s.records {
		if record.OwnerId == ownerId {
			out = append(out, *record)
		}
	}
	return out, nil
}

func (s *stubSessionRepo) Create(record *model.SessionRecord) error {
	record.CreatedAt = time.Now()
	copied := *record
	s.records[record.Uuid] = &copied
	return nil
}

func (s *stubSessionRepo) UpdateCode(uuid string, code string) error {
	record, ok := s.records[uuid]
	if !ok {
		return errorx.New(errorx.CodeNotFound, "会话记录不存在")
	}
	record.Code = code
	return nil
}

// stubCommentRepo 内存评论仓库，保持到达顺序
type stubCommentRepo struct {
	records []model.CommentRecord
}

func (s *stubCommentRepo) Create(record *model.CommentRecord) error {
	record.CreatedAt = time.Now()
	s.records = append(s.records, *record)
	return nil
}

func (s *stubCommentRepo) FindBySessionUuid(sessionUuid string) ([]model.CommentRecord, error) {
	var out []model.CommentRecord
	for _, record := range s.records {
		if record.SessionUuid == sessionUuid {
			out = append(out, record)
		}
	}
	return out, nil
}

func (s *stubCommentRepo) CountBySessionUuid(sessionUuid string) (int64, error) {
	list, _ := s.FindBySessionUuid(sessionUuid)
	return int64(len(list)), nil
}

// stubCache 内存缓存，异步任务同步执行以便断言
type stubCache struct {
	data map[string]string
}

func newStubCache() *stubCache {
	return &stubCache{data: make(map[string]string)}
}

func (c *stubCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	c.data[key] = value
	return nil
}

func (c *stubCache) Get(_ context.Context, key string) (string, error) {
	return c.data[key], nil
}

func (c *stubCache) Delete(_ context.Context, key string) error {
	delete(c.data, key)
	return nil
}

func (c *stubCache) DeleteByPattern(_ context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range c.data {
		if strings.HasPrefix(key, prefix) {
			delete(c.data, key)
		}
	}
	return nil
}

func (c *stubCache) SubmitTask(action func()) {
	action()
}

func newTestGateway() (SessionGateway, *stubSessionRepo, *stubCommentRepo, *stubCache) {
	sessions := newStubSessionRepo()
	comments := &stubCommentRepo{}
	cache := newStubCache()
	g := NewSessionGateway(&repository.Repositories{Session: sessions, Comment: comments}, cache)
	return g, sessions, comments, cache
}

// 创建会话时空缺字段填默认值
func TestCreateAppliesDefaults(t *testing.T) {
	g, _, _, _ := newTestGateway()
	record, err := g.Create(request.CreateSessionRequest{OwnerId: "U1"})
	if err != nil {
		t.Fatalf("创建会话失败: %v", err)
	}
	if !strings.HasPrefix(record.Uuid, "S") {
		t.Errorf("会话 uuid 前缀不符: %s", record.Uuid)
	}
	if record.Code != constants.DEFAULT_CODE {
		t.Errorf("默认代码缓冲区不符: %q", record.Code)
	}
	if record.OwnerName != constants.DEFAULT_AUTHOR_NAME {
		t.Errorf("默认创建人昵称不符: %q", record.OwnerName)
	}
	if record.Language != constants.DEFAULT_LANGUAGE {
		t.Errorf("默认语言不符: %q", record.Language)
	}
}

// Load 第二次走缓存，不再查库
func TestLoadReadThroughCache(t *testing.T) {
	g, sessions, _, _ := newTestGateway()
	record, err := g.Create(request.CreateSessionRequest{OwnerId: "U1", Title: "review"})
	if err != nil {
		t.Fatalf("创建会话失败: %v", err)
	}

	if _, err := g.Load(record.Uuid); err != nil {
		t.Fatalf("首次加载失败: %v", err)
	}
	before := sessions.finds
	loaded, err := g.Load(record.Uuid)
	if err != nil {
		t.Fatalf("二次加载失败: %v", err)
	}
	if sessions.finds != before {
		t.Errorf("期望二次加载命中缓存，实际查库次数 %d -> %d", before, sessions.finds)
	}
	if loaded.Title != "review" {
		t.Errorf("缓存返回的标题不符: %q", loaded.Title)
	}
}

// 未知会话返回 NotFound
func TestLoadNotFound(t *testing.T) {
	g, _, _, _ := newTestGateway()
	_, err := g.Load("S_missing")
	if !errorx.IsNotFound(err) {
		t.Fatalf("期望 NotFound，实际: %v", err)
	}
}

// 保存代码后缓存失效，下一次加载读到新快照
func TestSaveCodeInvalidatesCache(t *testing.T) {
	g, _, _, cache := newTestGateway()
	record, _ := g.Create(request.CreateSessionRequest{OwnerId: "U1"})
	if _, err := g.Load(record.Uuid); err != nil {
		t.Fatalf("加载失败: %v", err)
	}

	if err := g.SaveCode(record.Uuid, "const x = 1;"); err != nil {
		t.Fatalf("保存代码失败: %v", err)
	}
	if _, ok := cache.data["session_info_"+record.Uuid]; ok {
		t.Error("保存后会话缓存未失效")
	}
	loaded, err := g.Load(record.Uuid)
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if loaded.Code != "const x = 1;" {
		t.Errorf("期望读到新快照，实际: %q", loaded.Code)
	}
}

// 向不存在的会话保存代码返回 NotFound
func TestSaveCodeNotFound(t *testing.T) {
	g, _, _, _ := newTestGateway()
	err := g.SaveCode("S_missing", "x")
	if !errorx.IsNotFound(err) {
		t.Fatalf("期望 NotFound，实际: %v", err)
	}
}

// 评论追加填默认值、保持到达顺序，且会话必须存在
func TestAppendCommentDefaultsAndOrder(t *testing.T) {
	g, _, _, _ := newTestGateway()
	record, _ := g.Create(request.CreateSessionRequest{OwnerId: "U1"})

	first, err := g.AppendComment(record.Uuid, request.AddCommentRequest{Content: "先修这里", LineNumber: 3})
	if err != nil {
		t.Fatalf("追加评论失败: %v", err)
	}
	if first.AuthorName != constants.DEFAULT_AUTHOR_NAME || first.Color != constants.DEFAULT_USER_COLOR {
		t.Errorf("评论默认值不符: %+v", first)
	}
	if !strings.HasPrefix(first.Id, "C") {
		t.Errorf("评论 ID 前缀不符: %s", first.Id)
	}

	if _, err := g.AppendComment(record.Uuid, request.AddCommentRequest{Content: "再看这里", LineNumber: 7, AuthorName: "bob"}); err != nil {
		t.Fatalf("追加评论失败: %v", err)
	}
	list, err := g.Comments(record.Uuid)
	if err != nil {
		t.Fatalf("查询评论失败: %v", err)
	}
	if len(list) != 2 || list[0].Content != "先修这里" || list[1].Content != "再看这里" {
		t.Errorf("评论顺序不符: %+v", list)
	}

	count, err := g.CountComments(record.Uuid)
	if err != nil || count != 2 {
		t.Errorf("评论计数不符: %d, err=%v", count, err)
	}

	if _, err := g.AppendComment("S_missing", request.AddCommentRequest{Content: "x", LineNumber: 1}); !errorx.IsNotFound(err) {
		t.Errorf("期望 NotFound，实际: %v", err)
	}
}

// 保存代码快照后会话列表缓存一并失效，列表读到新快照
func TestSaveCodeInvalidatesOwnerListCache(t *testing.T) {
	g, _, _, cache := newTestGateway()
	record, err := g.Create(request.CreateSessionRequest{OwnerId: "u1"})
	if err != nil {
		t.Fatalf("创建会话失败: %v", err)
	}

	// 预热列表缓存
	if _, err := g.ListByOwner("u1"); err != nil {
		t.Fatalf("查询会话列表失败: %v", err)
	}
	if _, ok := cache.data["session_list_u1"]; !ok {
		t.Fatal("列表缓存未写入")
	}

	if err := g.SaveCode(record.Uuid, "const x = 1;"); err != nil {
		t.Fatalf("保存代码失败: %v", err)
	}
	list, err := g.ListByOwner("u1")
	if err != nil {
		t.Fatalf("查询会话列表失败: %v", err)
	}
	if len(list) != 1 || list[0].Code != "const x = 1;" {
		t.Errorf("列表未读到新快照: %+v", list)
	}
}
