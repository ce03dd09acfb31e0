package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"collab_review_server/internal/dto/request"
	"collab_review_server/internal/dto/respond"
	"collab_review_server/internal/handler"
	"collab_review_server/internal/https_server"
	"collab_review_server/internal/model"
	"collab_review_server/internal/service/presence"
	"collab_review_server/internal/service/sandbox"
	"collab_review_server/internal/service/store"
	"collab_review_server/pkg/constants"
	"collab_review_server/pkg/errorx"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// memGateway 内存版会话网关，替代 MySQL/Redis 依赖
type memGateway struct {
	records  map[string]*model.SessionRecord
	comments map[string][]respond.CommentRespond
	seq      int
}

func newMemGateway() *memGateway {
	return &memGateway{
		records:  make(map[string]*model.SessionRecord),
		comments: make(map[string][]respond.CommentRespond),
	}
}

func (g *memGateway) Load(sessionId string) (*model.SessionRecord, error) {
	if record, ok := g.records[sessionId]; ok {
		return record, nil
	}
	return nil, errorx.New(errorx.CodeNotFound, "会话记录不存在")
}

func (g *memGateway) Create(req request.CreateSessionRequest) (*model.SessionRecord, error) {
	g.seq++
	record := &model.SessionRecord{
		Uuid:      fmt.Sprintf("S_smoke_%d", g.seq),
		Title:     req.Title,
		OwnerId:   req.OwnerId,
		OwnerName: req.OwnerName,
		Code:      constants.DEFAULT_CODE,
		Language:  constants.DEFAULT_LANGUAGE,
	}
	g.records[record.Uuid] = record
	return record, nil
}

func (g *memGateway) SaveCode(sessionId string, code string) error {
	record, ok := g.records[sessionId]
	if !ok {
		return errorx.New(errorx.CodeNotFound, "会话记录不存在")
	}
	record.Code = code
	return nil
}

func (g *memGateway) AppendComment(sessionId string, req request.AddCommentRequest) (*respond.CommentRespond, error) {
	if _, ok := g.records[sessionId]; !ok {
		return nil, errorx.New(errorx.CodeNotFound, "会话记录不存在")
	}
	g.seq++
	comment := respond.CommentRespond{
		Id:         fmt.Sprintf("C_smoke_%d", g.seq),
		Content:    req.Content,
		LineNumber: req.LineNumber,
		AuthorId:   req.AuthorId,
		AuthorName: req.AuthorName,
		Color:      req.Color,
		CreatedAt:  time.Now().Format(time.RFC3339),
	}
	g.comments[sessionId] = append(g.comments[sessionId], comment)
	return &comment, nil
}

func (g *memGateway) Comments(sessionId string) ([]respond.CommentRespond, error) {
	return g.comments[sessionId], nil
}

func (g *memGateway) CountComments(sessionId string) (int64, error) {
	return int64(len(g.comments[sessionId])), nil
}

func (g *memGateway) ListByOwner(ownerId string) ([]model.SessionRecord, error) {
	var list []model.SessionRecord
	for _, record := range g.records {
		if record.OwnerId == ownerId {
			list = append(list, *record)
		}
	}
	return list, nil
}

func mustJSON(t *testing.T, v any) io.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("json marshal: %v", err)
	}
	return bytes.NewReader(b)
}

func doReq(t *testing.T, client *http.Client, method, url string, body io.Reader) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request %s %s: %v", method, url, err)
	}
	return resp
}

// decodeResponse 解析统一响应结构并校验业务状态码
func decodeResponse(t *testing.T, path string, resp *http.Response, wantCode int) json.RawMessage {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("%s http status=%d", path, resp.StatusCode)
	}
	var body struct {
		Code int             `json:"code"`
		Msg  any             `json:"msg"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("%s decode response: %v", path, err)
	}
	if body.Code != wantCode {
		t.Fatalf("%s code=%d msg=%v, want %d", path, body.Code, body.Msg, wantCode)
	}
	return body.Data
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s payload: %v", event, err)
	}
	if err := conn.WriteJSON(presence.Event{Event: event, Data: raw}); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

// awaitEvent 读取连接直到出现目标事件，期间跳过其他广播
func awaitEvent(t *testing.T, conn *websocket.Conn, event string) json.RawMessage {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	_ = conn.SetReadDeadline(deadline)
	for time.Now().Before(deadline) {
		var envelope presence.Event
		if err := conn.ReadJSON(&envelope); err != nil {
			t.Fatalf("awaiting %s: %v", event, err)
		}
		if envelope.Event == event {
			return envelope.Data
		}
	}
	t.Fatalf("event %s not received", event)
	return nil
}

func TestHTTPAndWebSocketEndpoints_Smoke(t *testing.T) {
	gin.SetMode(gin.TestMode)
	if err := handler.InitTrans("zh"); err != nil {
		t.Fatalf("init trans: %v", err)
	}

	gw := newMemGateway()
	executor := sandbox.NewExecutor(constants.EXEC_TIMEOUT)
	engine := presence.NewEngine(presence.EngineConfig{
		Store:   store.NewStore(),
		Gateway: gw,
		Sandbox: executor,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Start(ctx)

	server := httptest.NewServer(https_server.Init(handler.NewHandlers(gw, engine, executor)))
	defer server.Close()

	client := &http.Client{Timeout: 5 * time.Second}

	// ===== HTTP 接口 =====
	resp := doReq(t, client, http.MethodPost, server.URL+"/api/session", mustJSON(t, map[string]any{
		"ownerId":   "U_TEST",
		"ownerName": "tester",
		"title":     "smoke review",
	}))
	var created respond.SessionSummaryRespond
	if err := json.Unmarshal(decodeResponse(t, "/api/session", resp, errorx.CodeSuccess), &created); err != nil {
		t.Fatalf("decode created session: %v", err)
	}
	if created.Id == "" || created.Language != constants.DEFAULT_LANGUAGE {
		t.Fatalf("unexpected created session: %+v", created)
	}
	sessionId := created.Id

	resp = doReq(t, client, http.MethodGet, server.URL+"/api/session/list?ownerId=U_TEST", nil)
	var wrapper respond.SessionListWrapper
	if err := json.Unmarshal(decodeResponse(t, "/api/session/list", resp, errorx.CodeSuccess), &wrapper); err != nil {
		t.Fatalf("decode session list: %v", err)
	}
	if wrapper.Total != 1 {
		t.Fatalf("session list total=%d, want 1", wrapper.Total)
	}

	resp = doReq(t, client, http.MethodGet, server.URL+"/api/session/S_missing", nil)
	decodeResponse(t, "/api/session/S_missing", resp, errorx.CodeNotFound)

	resp = doReq(t, client, http.MethodPost, server.URL+"/api/session/"+sessionId+"/comments", mustJSON(t, map[string]any{
		"content":    "rename this",
		"lineNumber": 2,
		"authorId":   "U_TEST",
		"authorName": "tester",
	}))
	decodeResponse(t, "/api/session/:id/comments", resp, errorx.CodeSuccess)

	resp = doReq(t, client, http.MethodGet, server.URL+"/api/session/"+sessionId+"/comments", nil)
	var comments []respond.CommentRespond
	if err := json.Unmarshal(decodeResponse(t, "/api/session/:id/comments", resp, errorx.CodeSuccess), &comments); err != nil {
		t.Fatalf("decode comments: %v", err)
	}
	if len(comments) != 1 || comments[0].Content != "rename this" {
		t.Fatalf("unexpected comments: %+v", comments)
	}

	resp = doReq(t, client, http.MethodPost, server.URL+"/api/session/"+sessionId+"/save", mustJSON(t, map[string]any{
		"code": "const a = 1;",
	}))
	decodeResponse(t, "/api/session/:id/save", resp, errorx.CodeSuccess)
	if gw.records[sessionId].Code != "const a = 1;" {
		t.Fatalf("saved code = %q", gw.records[sessionId].Code)
	}

	resp = doReq(t, client, http.MethodPost, server.URL+"/api/session/"+sessionId+"/run", mustJSON(t, map[string]any{
		"code": "console.log('from http')",
	}))
	var runResult respond.RunResultRespond
	if err := json.Unmarshal(decodeResponse(t, "/api/session/:id/run", resp, errorx.CodeSuccess), &runResult); err != nil {
		t.Fatalf("decode run result: %v", err)
	}
	if runResult.Output != "from http" || runResult.Error != nil {
		t.Fatalf("unexpected run result: %+v", runResult)
	}

	// ===== WebSocket 接口 =====
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/wss"

	connA, _, err := websocket.DefaultDialer.Dial(wsURL+"?client_id=conn_a", nil)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	defer func() { _ = connA.Close() }()

	// 加入不存在的会话只收到错误，不会建立在线状态
	sendEvent(t, connA, presence.EventJoinSession, presence.JoinSessionData{
		SessionId: "S_missing", UserName: "alice",
	})
	errData := awaitEvent(t, connA, presence.EventError)
	var errPayload presence.ErrorData
	if err := json.Unmarshal(errData, &errPayload); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if errPayload.Message != "Session not found" {
		t.Fatalf("error message = %q", errPayload.Message)
	}

	// 加入已创建的会话，收到评论初始化和持久化快照
	sendEvent(t, connA, presence.EventJoinSession, presence.JoinSessionData{
		SessionId: sessionId, UserName: "alice",
	})
	awaitEvent(t, connA, presence.EventCommentsInit)
	var joinedCode string
	if err := json.Unmarshal(awaitEvent(t, connA, presence.EventCodeUpdate), &joinedCode); err != nil {
		t.Fatalf("decode code-update: %v", err)
	}
	if joinedCode != "const a = 1;" {
		t.Fatalf("joined code = %q", joinedCode)
	}
	awaitEvent(t, connA, presence.EventUsersUpdate)

	connB, _, err := websocket.DefaultDialer.Dial(wsURL+"?client_id=conn_b", nil)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	defer func() { _ = connB.Close() }()
	sendEvent(t, connB, presence.EventJoinSession, presence.JoinSessionData{
		SessionId: sessionId, UserName: "bob",
	})
	awaitEvent(t, connB, presence.EventCodeUpdate)

	// 编辑广播给同会话其他连接，不回发给发起者
	sendEvent(t, connA, presence.EventCodeChange, presence.CodeChangeData{
		SessionId: sessionId, Code: "const a = 2;",
	})
	var broadcastCode string
	if err := json.Unmarshal(awaitEvent(t, connB, presence.EventCodeUpdate), &broadcastCode); err != nil {
		t.Fatalf("decode broadcast code-update: %v", err)
	}
	if broadcastCode != "const a = 2;" {
		t.Fatalf("broadcast code = %q", broadcastCode)
	}

	// HTTP 追加评论会推送 comment-added 给在线连接
	resp = doReq(t, client, http.MethodPost, server.URL+"/api/session/"+sessionId+"/comments", mustJSON(t, map[string]any{
		"content":    "pushed via http",
		"lineNumber": 1,
		"authorId":   "U_TEST",
	}))
	decodeResponse(t, "/api/session/:id/comments", resp, errorx.CodeSuccess)
	var pushed respond.CommentRespond
	if err := json.Unmarshal(awaitEvent(t, connB, presence.EventCommentAdded), &pushed); err != nil {
		t.Fatalf("decode comment-added: %v", err)
	}
	if pushed.Content != "pushed via http" {
		t.Fatalf("pushed comment = %+v", pushed)
	}

	// 评论并入在线日志，后加入者的初始化日志包含它
	connC, _, err := websocket.DefaultDialer.Dial(wsURL+"?client_id=conn_c", nil)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	defer func() { _ = connC.Close() }()
	sendEvent(t, connC, presence.EventJoinSession, presence.JoinSessionData{
		SessionId: sessionId, UserName: "carol",
	})
	var liveComments []store.Comment
	if err := json.Unmarshal(awaitEvent(t, connC, presence.EventCommentsInit), &liveComments); err != nil {
		t.Fatalf("decode comments-init: %v", err)
	}
	if len(liveComments) != 2 || liveComments[1].Content != "pushed via http" {
		t.Fatalf("late joiner comments = %+v", liveComments)
	}
}
