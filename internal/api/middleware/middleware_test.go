package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/d60-Lab/followgraph/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func whoami(c *gin.Context) {
	uid, ok := UserID(c)
	c.JSON(http.StatusOK, gin.H{"uid": uid, "ok": ok})
}

func do(r http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth_Required(t *testing.T) {
	auth := NewAuth("secret", "followgraph")
	r := gin.New()
	r.GET("/", auth.Required(), whoami)

	token, err := auth.Sign(42, time.Minute)
	require.NoError(t, err)

	w := do(r, token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"uid":42,"ok":true}`, w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, do(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "garbage").Code)

	other, err := NewAuth("other", "followgraph").Sign(42, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(r, other).Code)

	expired, err := auth.Sign(42, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(r, expired).Code)

	wrongIssuer, err := NewAuth("secret", "someone-else").Sign(42, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(r, wrongIssuer).Code)
}

func TestAuth_ParseRejectsNonNumericSubject(t *testing.T) {
	auth := NewAuth("secret", "")
	token, err := auth.Sign(0, time.Minute)
	require.NoError(t, err)
	_, err = auth.Parse(token)
	assert.ErrorIs(t, err, errBadSubject)
}

func TestAuth_Host(t *testing.T) {
	auth := NewAuth("secret", "followgraph")
	r := gin.New()
	r.GET("/", auth.Host(), func(c *gin.Context) { c.Status(http.StatusOK) })

	host, err := auth.SignHost("cms", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, do(r, host).Code)

	user, err := auth.Sign(42, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, do(r, user).Code)

	assert.Equal(t, http.StatusUnauthorized, do(r, "").Code)

	forged, err := NewAuth("other", "followgraph").SignHost("cms", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(r, forged).Code)

	// host token 的 subject 不是用户 id，不能冒充用户
	_, err = auth.Parse(host)
	assert.ErrorIs(t, err, errBadSubject)
}

func TestAuth_Optional(t *testing.T) {
	auth := NewAuth("secret", "")
	r := gin.New()
	r.GET("/", auth.Optional(), whoami)

	w := do(r, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"uid":0,"ok":false}`, w.Body.String())

	w = do(r, "garbage")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"uid":0,"ok":false}`, w.Body.String())

	token, err := auth.Sign(7, time.Minute)
	require.NoError(t, err)
	assert.JSONEq(t, `{"uid":7,"ok":true}`, do(r, token).Body.String())
}

func TestRequestIDAndAccessLog(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	prev := logger.L()
	logger.Set(zap.New(core))
	t.Cleanup(func() { logger.Set(prev) })

	r := gin.New()
	r.Use(RequestID(), AccessLog())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := do(r, "")
	id := w.Header().Get(RequestIDHeader)
	assert.Len(t, id, 36)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get(RequestIDHeader))

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "abc", entries[1].ContextMap()[RequestIDKey])
	assert.EqualValues(t, http.StatusNoContent, entries[1].ContextMap()["status"])
}

func TestRateLimiter(t *testing.T) {
	l := NewRateLimiter(1, 2)
	r := gin.New()
	r.Use(l.Middleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, do(r, "").Code)
	assert.Equal(t, http.StatusOK, do(r, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, "").Code)

	// 不同 IP 各自计数
	assert.True(t, l.Allow("10.0.0.2"))

	off := NewRateLimiter(0, 0)
	r = gin.New()
	r.Use(off.Middleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, do(r, "").Code)
	}
}
