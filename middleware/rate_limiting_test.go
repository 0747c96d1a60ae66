package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errRedisOffline = errors.New("redis offline")

// captureHook запоминает команды пайплайна и не пускает их в сеть
type captureHook struct {
	mu   sync.Mutex
	cmds [][]interface{}
}

func (h *captureHook) BeforeProcess(ctx context.Context, cmd redis.Cmder) (context.Context, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cmds = append(h.cmds, cmd.Args())
	return ctx, errRedisOffline
}

func (h *captureHook) AfterProcess(ctx context.Context, cmd redis.Cmder) error {
	return nil
}

func (h *captureHook) BeforeProcessPipeline(ctx context.Context, cmds []redis.Cmder) (context.Context, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, cmd := range cmds {
		h.cmds = append(h.cmds, cmd.Args())
	}
	return ctx, errRedisOffline
}

func (h *captureHook) AfterProcessPipeline(ctx context.Context, cmds []redis.Cmder) error {
	return nil
}

func newCapturedRedis(t *testing.T) (*redis.Client, *captureHook) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	hook := &captureHook{}
	client.AddHook(hook)
	return client, hook
}

func TestHitWindowSetsTTLAtomically(t *testing.T) {
	client, hook := newCapturedRedis(t)

	_, err := hitWindow(context.Background(), client, "rate_limit:test:1.2.3.4", time.Minute)
	require.ErrorIs(t, err, errRedisOffline)

	require.Len(t, hook.cmds, 4)
	assert.Equal(t, "multi", hook.cmds[0][0])
	assert.Equal(t, []interface{}{"set", "rate_limit:test:1.2.3.4", 0, "ex", int64(60), "nx"}, hook.cmds[1])
	assert.Equal(t, []interface{}{"incr", "rate_limit:test:1.2.3.4"}, hook.cmds[2])
	assert.Equal(t, "exec", hook.cmds[3][0])
}

func TestRateLimitFailsOpenOnRedisError(t *testing.T) {
	client, _ := newCapturedRedis(t)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(WebhookRateLimit(client, 1, time.Minute, nil))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
	}
}
