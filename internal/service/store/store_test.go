package store

import (
	"fmt"
	"testing"
	"time"

	"collab_review_server/pkg/constants"
)

func seedDefault() string { return constants.DEFAULT_CODE }

func TestGetOrCreateSeedOnce(t *testing.T) {
	s := NewStore()
	calls := 0
	seed := func() string {
		calls++
		return fmt.Sprintf("seed-%d", calls)
	}

	first := s.GetOrCreate("S1", seed)
	second := s.GetOrCreate("S1", seed)

	if first != second {
		t.Fatal("GetOrCreate 对同一 id 应返回同一会话实例")
	}
	if calls != 1 {
		t.Fatalf("seed 应只被调用一次，实际 %d 次", calls)
	}
	if first.Code != "seed-1" {
		t.Fatalf("缓冲区应保留首次 seed 的结果，实际为 %q", first.Code)
	}
}

func TestRosterInvariant(t *testing.T) {
	s := NewStore()
	s.GetOrCreate("S1", seedDefault)

	// N 次加入
	for i := 0; i < 5; i++ {
		s.AddUser("S1", fmt.Sprintf("conn-%d", i), fmt.Sprintf("user-%d", i), "#fff")
	}
	if got := len(s.ListUsers("S1")); got != 5 {
		t.Fatalf("加入 5 人后名册应为 5，实际 %d", got)
	}

	// M 次离开
	for i := 0; i < 4; i++ {
		if !s.RemoveUser("S1", fmt.Sprintf("conn-%d", i)) {
			t.Fatalf("移除 conn-%d 失败", i)
		}
	}
	if got := len(s.ListUsers("S1")); got != 1 {
		t.Fatalf("5 加 4 减后名册应为 1，实际 %d", got)
	}

	// 最后一人离开后，会话应从注册表整体消失
	s.RemoveUser("S1", "conn-4")
	if ids := s.AllSessionIds(); len(ids) != 0 {
		t.Fatalf("名册清空后会话应被淘汰，实际仍有 %v", ids)
	}
}

func TestListUsersJoinOrder(t *testing.T) {
	s := NewStore()
	s.GetOrCreate("S1", seedDefault)
	s.AddUser("S1", "c1", "alice", "#f00")
	s.AddUser("S1", "c2", "bob", "#0f0")
	s.AddUser("S1", "c3", "carol", "#00f")
	s.RemoveUser("S1", "c2")
	s.AddUser("S1", "c4", "dave", "#ff0")

	list := s.ListUsers("S1")
	want := []string{"c1", "c3", "c4"}
	if len(list) != len(want) {
		t.Fatalf("名册长度应为 %d，实际 %d", len(want), len(list))
	}
	for i, id := range want {
		if list[i].Id != id {
			t.Fatalf("名册第 %d 位应为 %s，实际 %s", i, id, list[i].Id)
		}
	}
}

func TestUpdateCodeLastWriterWins(t *testing.T) {
	s := NewStore()
	if s.UpdateCode("missing", "x") {
		t.Fatal("缺失会话的 UpdateCode 应返回 false")
	}

	s.GetOrCreate("S1", seedDefault)
	s.UpdateCode("S1", "first version")
	s.UpdateCode("S1", "second version")

	sess, _ := s.Get("S1")
	if sess.Code != "second version" {
		t.Fatalf("缓冲区应为最后一次写入的内容，实际 %q", sess.Code)
	}
}

func TestCursorTypingAndMissingUser(t *testing.T) {
	s := NewStore()
	s.GetOrCreate("S1", seedDefault)
	s.AddUser("S1", "c1", "alice", "#f00")

	pos := 42
	user, ok := s.SetCursor("S1", "c1", &pos)
	if !ok || user.Cursor == nil || *user.Cursor != 42 {
		t.Fatal("SetCursor 应更新光标位置并返回快照")
	}

	user, ok = s.SetTyping("S1", "c1", true)
	if !ok || !user.IsTyping {
		t.Fatal("SetTyping 应更新输入状态")
	}

	// 缺失用户一律空操作
	if _, ok := s.SetCursor("S1", "ghost", &pos); ok {
		t.Fatal("缺失用户的 SetCursor 应返回 ok=false")
	}
	if _, ok := s.SetTyping("missing", "c1", true); ok {
		t.Fatal("缺失会话的 SetTyping 应返回 ok=false")
	}
	s.TouchActivity("missing", "ghost") // 不应 panic
}

func TestCommentsAppendOnly(t *testing.T) {
	s := NewStore()
	if s.AppendComment("missing", Comment{Id: "x"}) {
		t.Fatal("缺失会话的 AppendComment 应返回 false")
	}

	s.GetOrCreate("S1", seedDefault)
	prev := 0
	for i := 0; i < 3; i++ {
		s.AppendComment("S1", Comment{
			Id:         fmt.Sprintf("comment-%d", i),
			Content:    "looks good",
			LineNumber: i + 1,
			CreatedAt:  time.Now(),
		})
		got := len(s.Comments("S1"))
		if got <= prev {
			t.Fatalf("评论日志长度应单调递增，上次 %d 本次 %d", prev, got)
		}
		prev = got
	}

	list := s.Comments("S1")
	if list[0].Id != "comment-0" || list[2].Id != "comment-2" {
		t.Fatal("评论应保持到达顺序")
	}
}

func TestEvictInactive(t *testing.T) {
	s := NewStore()
	sess := s.GetOrCreate("S1", seedDefault)
	s.AddUser("S1", "stale", "old", "#aaa")
	s.AddUser("S1", "fresh", "new", "#bbb")

	// 人为做旧一个用户的活跃时间
	sess.users["stale"].LastActive = time.Now().Add(-time.Hour)

	removed := s.EvictInactive("S1", 30*time.Minute)
	if len(removed) != 1 || removed[0] != "stale" {
		t.Fatalf("应只移除超过阈值的用户，实际 %v", removed)
	}

	list := s.ListUsers("S1")
	if len(list) != 1 || list[0].Id != "fresh" {
		t.Fatalf("阈值内的用户应保留，实际 %v", list)
	}

	// EvictInactive 不级联淘汰会话
	if _, ok := s.Get("S1"); !ok {
		t.Fatal("清理后非空会话不应被淘汰")
	}

	sess.users["fresh"].LastActive = time.Now().Add(-time.Hour)
	s.EvictInactive("S1", 30*time.Minute)
	if _, ok := s.Get("S1"); !ok {
		t.Fatal("EvictInactive 本身不应淘汰清空的会话")
	}
	if !s.EvictIfEmpty("S1") {
		t.Fatal("EvictIfEmpty 应淘汰名册已空的会话")
	}
	if ids := s.AllSessionIds(); len(ids) != 0 {
		t.Fatalf("淘汰后不应残留会话，实际 %v", ids)
	}
}
