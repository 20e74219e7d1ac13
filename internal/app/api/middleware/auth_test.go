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

	"github.com/bayarinter/billing/pkg/config"
)

const testReseller = "0190a000-0000-7000-8000-00000000000a"

func newRouter(cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := zap.NewNop().Sugar()
	r := gin.New()
	r.Use(TraceMiddleware(), RequestLoggerMiddleware(log), AccessLogMiddleware(log))
	r.GET("/me", ResellerAuth(cfg, log), func(c *gin.Context) {
		c.String(http.StatusOK, Scope(c).ResellerID)
	})
	r.GET("/admin", AdminAuth(cfg), func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestResellerAuth_JWT(t *testing.T) {
	cfg := &config.Config{Auth: config.AuthConfig{UseJWT: true, JWTSecret: "s3cret"}}
	r := newRouter(cfg)

	token, err := IssueResellerToken("s3cret", testReseller, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := do(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, testReseller, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))

	forged, err := IssueResellerToken("other", testReseller, time.Hour)
	require.NoError(t, err)
	expired, err := IssueResellerToken("s3cret", testReseller, -time.Minute)
	require.NoError(t, err)
	for name, header := range map[string]string{
		"missing": "",
		"forged":  "Bearer " + forged,
		"expired": "Bearer " + expired,
		"basic":   "Basic Zm9vOmJhcg==",
	} {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		assert.Equal(t, http.StatusUnauthorized, do(r, req).Code, name)
	}
}

func TestResellerAuth_DefaultReseller(t *testing.T) {
	r := newRouter(&config.Config{Auth: config.AuthConfig{DefaultResellerID: testReseller}})
	w := do(r, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, testReseller, w.Body.String())

	r = newRouter(&config.Config{})
	assert.Equal(t, http.StatusUnauthorized, do(r, httptest.NewRequest(http.MethodGet, "/me", nil)).Code)
}

func TestAdminAuth(t *testing.T) {
	r := newRouter(&config.Config{Auth: config.AuthConfig{AdminUser: "admin", AdminPass: "pw"}})

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.SetBasicAuth("admin", "pw")
	assert.Equal(t, http.StatusOK, do(r, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.SetBasicAuth("admin", "wrong")
	assert.Equal(t, http.StatusUnauthorized, do(r, req).Code)

	r = newRouter(&config.Config{})
	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.SetBasicAuth("", "")
	assert.Equal(t, http.StatusUnauthorized, do(r, req).Code)
}

func TestTraceMiddleware_EchoesRequestID(t *testing.T) {
	r := newRouter(&config.Config{Auth: config.AuthConfig{DefaultResellerID: testReseller}})
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(HeaderRequestID, "req-42")
	assert.Equal(t, "req-42", do(r, req).Header().Get(HeaderRequestID))
}
