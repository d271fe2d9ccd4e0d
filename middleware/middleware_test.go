package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/egor/dealercrm/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newAuth(t *testing.T) *Auth {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	return NewAuth("test-key", "Admin@Automotora.cl", string(hash))
}

func protectedRouter(a *Auth) *gin.Engine {
	r := gin.New()
	r.GET("/private", a.Middleware(), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("email"))
	})
	return r
}

func TestAuthenticate(t *testing.T) {
	a := newAuth(t)

	token, err := a.Authenticate("admin@automotora.cl", "s3cret")
	require.NoError(t, err)
	claims, err := a.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin@automotora.cl", claims.Email)
	assert.Equal(t, "admin", claims.Role)

	_, err = a.Authenticate("admin@automotora.cl", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = a.Authenticate("other@automotora.cl", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestMiddleware_RequiresValidToken(t *testing.T) {
	a := newAuth(t)
	r := protectedRouter(a)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/private", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := a.GenerateToken("admin@automotora.cl")
	require.NoError(t, err)
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin@automotora.cl", rec.Body.String())
}

func TestMiddleware_RejectsExpiredAndForeignTokens(t *testing.T) {
	a := newAuth(t)
	a.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	expired, err := a.GenerateToken("admin@automotora.cl")
	require.NoError(t, err)
	_, err = a.ValidateToken(expired)
	assert.Error(t, err)

	other := NewAuth("another-key", "admin@automotora.cl", "")
	foreign, err := other.GenerateToken("admin@automotora.cl")
	require.NoError(t, err)
	_, err = newAuth(t).ValidateToken(foreign)
	assert.Error(t, err)
}

func TestMiddleware_DisabledWithoutSecret(t *testing.T) {
	a := NewAuth("", "", "")
	assert.False(t, a.Enabled())

	rec := httptest.NewRecorder()
	protectedRouter(a).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/private", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDAndLogger(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	r := gin.New()
	r.Use(RequestID(), Logger(log))
	r.GET("/clients/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/clients/7", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	r.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "req-123", entry["request_id"])
	assert.Equal(t, "/clients/7", entry["path"])
	assert.EqualValues(t, 404, entry["status"])
}

func TestRequestID_Generated(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, GetRequestID(c)) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, rec.Body.String(), 36)
	assert.Equal(t, rec.Body.String(), rec.Header().Get(RequestIDHeader))
}

func TestMetricsMiddleware(t *testing.T) {
	m := metrics.New()
	r := gin.New()
	r.Use(Metrics(m))
	r.GET("/clients/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/clients/1", nil))
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/clients/:id", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404")))
}
