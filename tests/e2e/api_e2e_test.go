package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/threadlog/internal/db"
	"github.com/threadlog/internal/router"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type e2eSuite struct {
	handler http.Handler
	admin   *localClient
	author  *localClient
	guest   *localClient
	baseURL string
}

// localClient 复用 cookiejar 在进程内直连路由，模拟带会话的浏览器。
type localClient struct {
	handler http.Handler
	jar     http.CookieJar
}

func newLocalClient(handler http.Handler, withJar bool) *localClient {
	var jar http.CookieJar
	if withJar {
		if j, err := cookiejar.New(nil); err == nil {
			jar = j
		}
	}
	return &localClient{handler: handler, jar: jar}
}

func (c *localClient) Do(req *http.Request) (*http.Response, error) {
	if c.jar != nil {
		for _, cookie := range c.jar.Cookies(req.URL) {
			req.AddCookie(cookie)
		}
	}
	w := httptest.NewRecorder()
	c.handler.ServeHTTP(w, req)
	resp := w.Result()
	if c.jar != nil {
		c.jar.SetCookies(req.URL, resp.Cookies())
	}
	return resp, nil
}

func newE2ESuite(t *testing.T) *e2eSuite {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:e2e-%d?mode=memory&cache=shared", time.Now().UnixNano())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := gdb.AutoMigrate(
		&db.User{},
		&db.Topic{},
		&db.Article{},
		&db.ArticleRevision{},
		&db.SystemSetting{},
	); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	db.DB = gdb
	t.Cleanup(func() {
		sqlDB, err := gdb.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	for _, seed := range []struct {
		username, password, role string
	}{
		{"admin", "admin-pass", db.RoleAdmin},
		{"author", "author-pass", db.RoleUser},
	} {
		hashed, err := bcrypt.GenerateFromPassword([]byte(seed.password), bcrypt.DefaultCost)
		if err != nil {
			t.Fatalf("failed to hash password: %v", err)
		}
		user := db.User{
			Username:    seed.username,
			Password:    string(hashed),
			DisplayName: seed.username,
			Role:        seed.role,
			Status:      db.StatusActive,
		}
		if err := gdb.Create(&user).Error; err != nil {
			t.Fatalf("failed to seed %s: %v", seed.username, err)
		}
	}

	handler := router.SetupRouter("e2e-secret")
	return &e2eSuite{
		handler: handler,
		admin:   newLocalClient(handler, true),
		author:  newLocalClient(handler, true),
		guest:   newLocalClient(handler, false),
		baseURL: "https://threadlog.test",
	}
}

func (s *e2eSuite) request(t *testing.T, client *localClient, method, path string, payload any) (int, map[string]any) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.baseURL+path, body)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	decoded := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("failed to decode %s %s response %q: %v", method, path, raw, err)
		}
	}
	return resp.StatusCode, decoded
}

func (s *e2eSuite) login(t *testing.T, client *localClient, username, password string) {
	t.Helper()
	status, _ := s.request(t, client, http.MethodPost, "/api/login", map[string]any{
		"username": username,
		"password": password,
	})
	if status != http.StatusOK {
		t.Fatalf("login as %s failed with status %d", username, status)
	}
}

func asID(t *testing.T, body map[string]any, keys ...string) uint {
	t.Helper()
	var current any = body
	for _, key := range keys {
		m, ok := current.(map[string]any)
		if !ok {
			t.Fatalf("expected object at %v, got %T", keys, current)
		}
		current = m[key]
	}
	number, ok := current.(float64)
	if !ok {
		t.Fatalf("expected numeric id at %v, got %T (%v)", keys, current, current)
	}
	return uint(number)
}

func TestE2EThreadLifecycle(t *testing.T) {
	s := newE2ESuite(t)
	s.login(t, s.admin, "admin", "admin-pass")
	s.login(t, s.author, "author", "author-pass")

	// 作者建主题、发根文章并回复成一棵三层树
	status, body := s.request(t, s.author, http.MethodPost, "/api/topics", map[string]any{
		"name": "架构讨论",
	})
	if status != http.StatusCreated {
		t.Fatalf("create topic failed with status %d", status)
	}
	topicID := asID(t, body, "topic", "ID")

	status, body = s.request(t, s.author, http.MethodPost, "/api/articles", map[string]any{
		"title":   "根文章",
		"content": "# 根文章\n这是正文。",
		"topicId": topicID,
	})
	if status != http.StatusCreated {
		t.Fatalf("create root article failed with status %d", status)
	}
	rootID := asID(t, body, "article", "ID")

	status, _ = s.request(t, s.author, http.MethodPost, fmt.Sprintf("/api/articles/%d/publish", rootID), nil)
	if status != http.StatusOK {
		t.Fatalf("publish root failed with status %d", status)
	}

	status, body = s.request(t, s.author, http.MethodPost, "/api/articles", map[string]any{
		"title":    "一级回复",
		"content":  "回复正文",
		"parentId": rootID,
	})
	if status != http.StatusCreated {
		t.Fatalf("create reply failed with status %d", status)
	}
	replyID := asID(t, body, "article", "ID")
	if got := asID(t, body, "effectiveTopicId"); got != topicID {
		t.Fatalf("reply should inherit topic %d, got %d", topicID, got)
	}

	status, body = s.request(t, s.author, http.MethodPost, "/api/articles", map[string]any{
		"title":    "二级回复",
		"content":  "孙回复正文",
		"parentId": replyID,
	})
	if status != http.StatusCreated {
		t.Fatalf("create grand reply failed with status %d", status)
	}
	grandID := asID(t, body, "article", "ID")

	// 访客能读到已发布的根文章，且正文被渲染成 HTML
	status, body = s.request(t, s.guest, http.MethodGet, fmt.Sprintf("/api/public/articles/%d", rootID), nil)
	if status != http.StatusOK {
		t.Fatalf("guest read failed with status %d", status)
	}
	if html, _ := body["html"].(string); !strings.Contains(html, "<h1") {
		t.Fatalf("expected rendered markdown, got %q", body["html"])
	}

	// 过期版本的编辑被 409 拒绝，正确版本成功并留下快照
	status, _ = s.request(t, s.author, http.MethodPatch, fmt.Sprintf("/api/articles/%d", rootID), map[string]any{
		"title":   "过期编辑",
		"version": 99,
	})
	if status != http.StatusConflict {
		t.Fatalf("stale edit should 409, got %d", status)
	}
	status, _ = s.request(t, s.author, http.MethodPatch, fmt.Sprintf("/api/articles/%d", rootID), map[string]any{
		"title":   "根文章（修订）",
		"version": 1,
	})
	if status != http.StatusOK {
		t.Fatalf("edit failed with status %d", status)
	}
	status, body = s.request(t, s.author, http.MethodGet, fmt.Sprintf("/api/articles/%d/revisions", rootID), nil)
	if status != http.StatusOK {
		t.Fatalf("list revisions failed with status %d", status)
	}
	if revisions, _ := body["revisions"].([]any); len(revisions) != 1 {
		t.Fatalf("expected 1 revision, got %v", body["revisions"])
	}

	// 管理员级联软删除整棵树
	status, body = s.request(t, s.admin, http.MethodDelete, fmt.Sprintf("/api/articles/%d", rootID), nil)
	if status != http.StatusOK {
		t.Fatalf("cascade delete failed with status %d", status)
	}
	if count, _ := body["deletedCount"].(float64); count != 3 {
		t.Fatalf("expected deletedCount 3, got %v", body["deletedCount"])
	}
	status, _ = s.request(t, s.guest, http.MethodGet, fmt.Sprintf("/api/public/articles/%d", rootID), nil)
	if status != http.StatusNotFound {
		t.Fatalf("deleted article should be invisible to guests, got %d", status)
	}

	// 恢复一级回复：祖先链复活，孙回复保持删除
	status, _ = s.request(t, s.admin, http.MethodPost, fmt.Sprintf("/api/articles/%d/undelete", replyID), nil)
	if status != http.StatusOK {
		t.Fatalf("undelete failed with status %d", status)
	}
	status, _ = s.request(t, s.guest, http.MethodGet, fmt.Sprintf("/api/public/articles/%d", rootID), nil)
	if status != http.StatusOK {
		t.Fatalf("restored root should be public again, got %d", status)
	}
	status, _ = s.request(t, s.guest, http.MethodGet, fmt.Sprintf("/api/public/articles/%d", grandID), nil)
	if status != http.StatusNotFound {
		t.Fatalf("grand reply should stay deleted, got %d", status)
	}
}

func TestE2ETopicMergeAndSettings(t *testing.T) {
	s := newE2ESuite(t)
	s.login(t, s.admin, "admin", "admin-pass")
	s.login(t, s.author, "author", "author-pass")

	// 两个主题，来源下挂一篇已发布文章和一个子主题
	status, body := s.request(t, s.admin, http.MethodPost, "/api/topics", map[string]any{"name": "目标"})
	if status != http.StatusCreated {
		t.Fatalf("create target failed with status %d", status)
	}
	targetID := asID(t, body, "topic", "ID")

	status, body = s.request(t, s.admin, http.MethodPost, "/api/topics", map[string]any{"name": "来源"})
	if status != http.StatusCreated {
		t.Fatalf("create source failed with status %d", status)
	}
	sourceID := asID(t, body, "topic", "ID")

	status, _ = s.request(t, s.admin, http.MethodPost, "/api/topics", map[string]any{
		"name":     "来源子主题",
		"parentId": sourceID,
	})
	if status != http.StatusCreated {
		t.Fatalf("create source child failed with status %d", status)
	}

	status, body = s.request(t, s.author, http.MethodPost, "/api/articles", map[string]any{
		"title":   "来源文章",
		"content": "正文",
		"topicId": sourceID,
	})
	if status != http.StatusCreated {
		t.Fatalf("create source article failed with status %d", status)
	}
	articleID := asID(t, body, "article", "ID")
	status, _ = s.request(t, s.author, http.MethodPost, fmt.Sprintf("/api/articles/%d/publish", articleID), nil)
	if status != http.StatusOK {
		t.Fatalf("publish source article failed with status %d", status)
	}

	// 普通用户无权合并
	status, _ = s.request(t, s.author, http.MethodPost, "/api/topics/merge", map[string]any{
		"sourceId": sourceID,
		"targetId": targetID,
	})
	if status != http.StatusForbidden {
		t.Fatalf("merge by non-admin should 403, got %d", status)
	}

	// dry-run 统计，然后真正合并并删除来源
	status, body = s.request(t, s.admin, http.MethodPost, "/api/topics/merge", map[string]any{
		"sourceId": sourceID,
		"targetId": targetID,
		"dryRun":   true,
	})
	if status != http.StatusOK {
		t.Fatalf("dry-run merge failed with status %d", status)
	}
	stats, _ := body["stats"].(map[string]any)
	if stats["articles"].(float64) != 1 || stats["topics"].(float64) != 1 {
		t.Fatalf("unexpected dry-run stats: %v", body["stats"])
	}

	status, _ = s.request(t, s.admin, http.MethodPost, "/api/topics/merge", map[string]any{
		"sourceId":     sourceID,
		"targetId":     targetID,
		"deleteSource": true,
	})
	if status != http.StatusOK {
		t.Fatalf("merge failed with status %d", status)
	}

	// 文章归属目标主题；来源已被软删
	status, body = s.request(t, s.author, http.MethodGet, fmt.Sprintf("/api/articles/%d", articleID), nil)
	if status != http.StatusOK {
		t.Fatalf("read merged article failed with status %d", status)
	}
	if got := asID(t, body, "article", "TopicID"); got != targetID {
		t.Fatalf("article should belong to target %d, got %d", targetID, got)
	}
	status, body = s.request(t, s.admin, http.MethodGet, fmt.Sprintf("/api/topics/%d", sourceID), nil)
	if status != http.StatusOK {
		t.Fatalf("read source topic failed with status %d", status)
	}
	if deleted, _ := body["topic"].(map[string]any)["Deleted"].(bool); !deleted {
		t.Fatal("source topic should be soft deleted after merge")
	}

	// 关闭访客浏览后公共入口 403，重新打开恢复
	status, _ = s.request(t, s.admin, http.MethodPut, "/api/settings", map[string]any{
		"siteName":        "ThreadLog",
		"guestReadAccess": false,
	})
	if status != http.StatusOK {
		t.Fatalf("update settings failed with status %d", status)
	}
	status, _ = s.request(t, s.guest, http.MethodGet, "/api/public/articles", nil)
	if status != http.StatusForbidden {
		t.Fatalf("guests should be locked out, got %d", status)
	}
	status, _ = s.request(t, s.admin, http.MethodPut, "/api/settings", map[string]any{
		"siteName":        "ThreadLog",
		"guestReadAccess": true,
	})
	if status != http.StatusOK {
		t.Fatalf("re-enable settings failed with status %d", status)
	}
	status, _ = s.request(t, s.guest, http.MethodGet, "/api/public/articles", nil)
	if status != http.StatusOK {
		t.Fatalf("guests should read again, got %d", status)
	}
}
