package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"mobipay/internal/config"
	"mobipay/internal/infrastructure/idempotency"
	"mobipay/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRouter 组装一套走真实 Store 的 HTTP 测试环境
func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	st, err := store.NewStore(filepath.Join(t.TempDir(), "accounts.json"), 2*time.Second)
	require.NoError(t, err)
	cfg := &config.Config{Business: config.DefaultBusiness()}
	return SetupRouter(st, cfg, idempotency.NewMemoryCache(time.Hour))
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

// TestSignupEndpoint 注册：201、重名 409、缺字段 400，响应里不带密码散列
func TestSignupEndpoint(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/signup", gin.H{"username": "alice", "password": "pw"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	user, ok := body["user"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "alice", user["username"])
	assert.NotContains(t, user, "passwordHash", "对外视图绝不携带密码散列")
	assert.EqualValues(t, 5000, user["balance"])

	w = doJSON(t, r, http.MethodPost, "/api/signup", gin.H{"username": "alice", "password": "pw2"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/signup", gin.H{"username": "bob"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestLoginEndpoint 登录：200 带用户、凭证错误 401
func TestLoginEndpoint(t *testing.T) {
	r := newTestRouter(t)
	doJSON(t, r, http.MethodPost, "/api/signup", gin.H{"username": "alice", "password": "pw"})

	w := doJSON(t, r, http.MethodPost, "/api/login", gin.H{"username": "alice", "password": "pw"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.NotNil(t, body["user"])

	w = doJSON(t, r, http.MethodPost, "/api/login", gin.H{"username": "alice", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/login", gin.H{"username": "alice"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestGetUserEndpoint 用户查询：200 / 404
func TestGetUserEndpoint(t *testing.T) {
	r := newTestRouter(t)
	doJSON(t, r, http.MethodPost, "/api/signup", gin.H{"username": "alice", "password": "pw"})

	w := doJSON(t, r, http.MethodGet, "/api/user/alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "alice", body["username"])
	assert.NotContains(t, body, "passwordHash")

	w = doJSON(t, r, http.MethodGet, "/api/user/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestTransferEndpoint 转账的成功与各类失败状态码
func TestTransferEndpoint(t *testing.T) {
	r := newTestRouter(t)
	doJSON(t, r, http.MethodPost, "/api/signup", gin.H{"username": "alice", "password": "pw"})
	doJSON(t, r, http.MethodPost, "/api/signup", gin.H{"username": "bob", "password": "pw"})

	// 取 bob 的账号
	w := doJSON(t, r, http.MethodGet, "/api/user/bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	bobNo := decode(t, w)["accountNumber"].(string)

	// 成功：返回转出方最新余额
	w = doJSON(t, r, http.MethodPost, "/api/transfer", gin.H{
		"fromUsername": "alice", "toAccountNumber": bobNo, "amount": 1000,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 4000, decode(t, w)["newBalance"])

	// 收款账号不存在
	w = doJSON(t, r, http.MethodPost, "/api/transfer", gin.H{
		"fromUsername": "alice", "toAccountNumber": "0000000000", "amount": 10,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	// 转出用户不存在
	w = doJSON(t, r, http.MethodPost, "/api/transfer", gin.H{
		"fromUsername": "ghost", "toAccountNumber": bobNo, "amount": 10,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	// 自转账
	w = doJSON(t, r, http.MethodGet, "/api/user/alice", nil)
	aliceNo := decode(t, w)["accountNumber"].(string)
	w = doJSON(t, r, http.MethodPost, "/api/transfer", gin.H{
		"fromUsername": "alice", "toAccountNumber": aliceNo, "amount": 10,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 余额不足
	w = doJSON(t, r, http.MethodPost, "/api/transfer", gin.H{
		"fromUsername": "alice", "toAccountNumber": bobNo, "amount": 999999,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 缺字段
	w = doJSON(t, r, http.MethodPost, "/api/transfer", gin.H{"fromUsername": "alice"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestHealth 健康检查
func TestHealth(t *testing.T) {
	r := newTestRouter(t)
	w := doJSON(t, r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
