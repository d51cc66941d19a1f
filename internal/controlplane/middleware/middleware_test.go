package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	r.GET("/v1/status", func(c *gin.Context) { c.String(http.StatusOK, strings.Repeat("s", 2048)) })
	r.GET("/v1/events", func(c *gin.Context) { c.String(http.StatusOK, strings.Repeat("e", 2048)) })
	return r
}

func serve(r http.Handler, target string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestTokenAuth(t *testing.T) {
	r := newRouter(TokenAuth("secret"))

	assert.Equal(t, http.StatusUnauthorized, serve(r, "/v1/status", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "/v1/status", map[string]string{"Authorization": "Bearer nope"}).Code)
	assert.Equal(t, http.StatusOK, serve(r, "/v1/status", map[string]string{"Authorization": "Bearer secret"}).Code)
	assert.Equal(t, http.StatusOK, serve(r, "/v1/events?token=secret", nil).Code)
}

func TestTokenAuth_Disabled(t *testing.T) {
	r := newRouter(TokenAuth(""))
	assert.Equal(t, http.StatusOK, serve(r, "/v1/status", nil).Code)
}

func TestGzip_SkipsEventStream(t *testing.T) {
	r := newRouter(Gzip())
	gz := map[string]string{"Accept-Encoding": "gzip"}

	assert.Equal(t, "gzip", serve(r, "/v1/status", gz).Header().Get("Content-Encoding"))
	assert.Empty(t, serve(r, "/v1/events", gz).Header().Get("Content-Encoding"))
}

func TestSecure_SetsHeaders(t *testing.T) {
	r := newRouter(Secure())
	w := serve(r, "/v1/status", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestCORS_AllowsAnyOrigin(t *testing.T) {
	r := newRouter(CORS())
	w := serve(r, "/v1/status", map[string]string{"Origin": "http://localhost:3000"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	_, err := RateLimit("lots")
	assert.Error(t, err)

	mw, err := RateLimit("2-M")
	require.NoError(t, err)
	r := newRouter(mw)

	assert.Equal(t, http.StatusOK, serve(r, "/v1/status", nil).Code)
	assert.Equal(t, http.StatusOK, serve(r, "/v1/status", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(r, "/v1/status", nil).Code)
}
