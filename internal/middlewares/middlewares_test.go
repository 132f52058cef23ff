package middlewares

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/StudyGroup/internal/utils"
	"github.com/Gopher0727/StudyGroup/middleware/jwt"
	logger "github.com/Gopher0727/StudyGroup/middleware/log"
	"github.com/Gopher0727/StudyGroup/utils/ratelimit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func whoami(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"user_id":   c.GetUint(ContextUserID),
		"user_name": c.GetString(ContextUserName),
		"log_user":  logger.GetUserID(c.Request.Context()),
	})
}

func TestAuthMiddleware(t *testing.T) {
	tm := jwt.NewTokenManager("secret", 1)
	r := gin.New()
	r.GET("/me", AuthMiddleware(tm), whoami)

	token, err := tm.GenerateToken(7, "kim")
	require.NoError(t, err)
	other, err := jwt.NewTokenManager("other", 1).GenerateToken(7, "kim")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid", "Bearer " + token, http.StatusOK},
		{"lowercase scheme", "bearer " + token, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"wrong secret", "Bearer " + other, http.StatusUnauthorized},
		{"garbage", "Bearer abc.def", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.JSONEq(t, `{"user_id":7,"user_name":"kim","log_user":7}`, w.Body.String())
			} else {
				assert.Contains(t, w.Body.String(), "UNAUTHORIZED")
			}
		})
	}
}

func TestAsyncMiddleware(t *testing.T) {
	pool := utils.NewWorkerPool(2, 4, nil)
	pool.Start()

	r := gin.New()
	r.GET("/ping", AsyncMiddleware(pool, nil), func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())

	pool.Stop()
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAsyncMiddlewareWithoutPool(t *testing.T) {
	r := gin.New()
	r.GET("/ping", AsyncMiddleware(nil, nil), func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAsyncMiddlewareRecoversPanic(t *testing.T) {
	pool := utils.NewWorkerPool(1, 4, nil)
	pool.Start()
	defer pool.Stop()

	r := gin.New()
	r.Use(gin.Recovery(), AsyncMiddleware(pool, logger.NewNop()))
	r.GET("/boom", func(c *gin.Context) {
		var m map[string]int
		m["x"] = 1
		c.String(http.StatusOK, "unreachable")
	})
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"服务器内部错误","code":"INTERNAL"}`, w.Body.String())

	// 唯一的 worker 仍然可用
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
}

func TestAsyncMiddlewarePanicAfterWrite(t *testing.T) {
	pool := utils.NewWorkerPool(1, 4, nil)
	pool.Start()
	defer pool.Stop()

	r := gin.New()
	r.GET("/partial", AsyncMiddleware(pool, nil), func(c *gin.Context) {
		c.String(http.StatusAccepted, "partial")
		panic("after write")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/partial", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "partial", w.Body.String())
}

func TestRateLimitMiddleware(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter := ratelimit.NewWindowLimiter(client, nil, false)

	r := gin.New()
	r.POST("/join/:user",
		func(c *gin.Context) {
			if c.Param("user") == "1" {
				c.Set(ContextUserID, uint(1))
			} else {
				c.Set(ContextUserID, uint(2))
			}
		},
		RateLimitMiddleware(limiter, "join_request", ratelimit.Rule{Limit: 2, Window: time.Minute}),
		func(c *gin.Context) { c.Status(http.StatusCreated) },
	)

	send := func(user string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/join/"+user, nil))
		return w
	}

	assert.Equal(t, http.StatusCreated, send("1").Code)
	w := send("1")
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = send("1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusCreated, send("2").Code)
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string, ratelimit.Rule) (ratelimit.Result, error) {
	return ratelimit.Result{}, assert.AnError
}

func TestRateLimitMiddlewareLimiterDown(t *testing.T) {
	r := gin.New()
	r.POST("/join", RateLimitMiddleware(brokenLimiter{}, "join_request", ratelimit.Rule{Limit: 1, Window: time.Minute}),
		func(c *gin.Context) { c.Status(http.StatusCreated) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/join", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestTimeoutMiddleware(t *testing.T) {
	deadline := func(c *gin.Context) {
		_, ok := c.Request.Context().Deadline()
		c.JSON(http.StatusOK, gin.H{"has_deadline": ok})
	}

	t.Run("sets deadline", func(t *testing.T) {
		r := gin.New()
		r.GET("/", TimeoutMiddleware(time.Second), deadline)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.JSONEq(t, `{"has_deadline":true}`, w.Body.String())
	})

	t.Run("disabled", func(t *testing.T) {
		r := gin.New()
		r.GET("/", TimeoutMiddleware(0), deadline)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.JSONEq(t, `{"has_deadline":false}`, w.Body.String())
	})

	t.Run("expires", func(t *testing.T) {
		r := gin.New()
		r.GET("/", TimeoutMiddleware(10*time.Millisecond), func(c *gin.Context) {
			<-c.Request.Context().Done()
			c.String(http.StatusGatewayTimeout, c.Request.Context().Err().Error())
		})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusGatewayTimeout, w.Code)
		assert.Equal(t, context.DeadlineExceeded.Error(), w.Body.String())
	})
}
