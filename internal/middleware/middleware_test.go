package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cryptoswap/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func get(r *gin.Engine, path, ip string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = ip + ":1234"
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitPerIP(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(config.RateLimitConfig{Requests: 2, WindowSeconds: 60}))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	assert.Equal(t, http.StatusOK, get(r, "/ping", "10.0.0.1", nil).Code)
	assert.Equal(t, http.StatusOK, get(r, "/ping", "10.0.0.1", nil).Code)
	rec := get(r, "/ping", "10.0.0.1", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"too many requests"}`, rec.Body.String())

	assert.Equal(t, http.StatusOK, get(r, "/ping", "10.0.0.2", nil).Code, "limits are per IP")
}

func TestRateLimitDisabled(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(config.RateLimitConfig{}))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, get(r, "/ping", "10.0.0.1", nil).Code)
	}
}

func TestRequestIDAndLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := gin.New()
	r.Use(RequestID(), Logger(zap.New(core)), Metrics())
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	rec := get(r, "/ok", "10.0.0.1", http.Header{RequestIDHeader: {"abc"}})
	assert.Equal(t, "abc", rec.Header().Get(RequestIDHeader))

	rec = get(r, "/boom", "10.0.0.1", nil)
	assert.Len(t, rec.Header().Get(RequestIDHeader), 16)

	entries := logs.All()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, zap.InfoLevel, entries[0].Level)
		assert.Equal(t, "abc", entries[0].ContextMap()["request_id"])
		assert.Equal(t, zap.ErrorLevel, entries[1].Level)
	}
}

func preflight(r *gin.Engine, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", APIKeyHeader)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCorsPreflight(t *testing.T) {
	r := gin.New()
	r.Use(Cors(config.CORSConfig{AllowedOrigins: []string{"*"}}))
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := preflight(r, "https://app.example.org")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, strings.ToLower(rec.Header().Get("Access-Control-Allow-Headers")), "x-api-key")
	assert.Contains(t, strings.ToLower(rec.Header().Get("Access-Control-Allow-Headers")), "x-request-id")
}

func TestCorsRestrictsOrigins(t *testing.T) {
	r := gin.New()
	r.Use(Cors(config.CORSConfig{AllowedOrigins: []string{"https://app.example.org"}}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := get(r, "/x", "10.0.0.1", http.Header{"Origin": {"https://evil.test"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = get(r, "/x", "10.0.0.1", http.Header{"Origin": {"https://app.example.org"}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://app.example.org", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, strings.EqualFold(RequestIDHeader, rec.Header().Get("Access-Control-Expose-Headers")))

	assert.Equal(t, http.StatusNoContent, preflight(r, "https://app.example.org").Code)
}
