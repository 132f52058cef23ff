package consumer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Gopher0727/StudyGroup/internal/cache"
	"github.com/Gopher0727/StudyGroup/internal/events"
	logger "github.com/Gopher0727/StudyGroup/middleware/log"
)

func newTestConsumer(t *testing.T) (*EnrollmentConsumer, *cache.GroupCache, *observer.ObservedLogs) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	core, logs := observer.New(zap.InfoLevel)
	c := cache.NewGroupCache(client, time.Minute)
	return NewEnrollmentConsumer(c, logger.FromZap(zap.New(core))), c, logs
}

func TestHandleInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	ec, c, logs := newTestConsumer(t)
	require.NoError(t, c.Store(ctx, "g-1", 0, map[string]string{"title": "old"}))

	e := events.New(events.RequestApproved, "g-1", 1)
	e.TraceID = "trace-9"
	require.NoError(t, ec.Handle(ctx, e))

	var dst map[string]string
	_, hit, err := c.Load(ctx, "g-1", &dst)
	require.NoError(t, err)
	assert.False(t, hit)

	// 重复投递
	require.NoError(t, ec.Handle(ctx, e))

	entries := logs.FilterMessage("enrollment event").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "trace-9", entries[0].ContextMap()["trace_id"])
	assert.Equal(t, "request.approved", entries[0].ContextMap()["event_type"])
}

func TestKafkaHandler(t *testing.T) {
	ctx := context.Background()
	ec, c, _ := newTestConsumer(t)
	require.NoError(t, c.Store(ctx, "g-2", 0, "cached"))

	payload, err := events.Encode(events.New(events.MemberRemoved, "g-2", 1))
	require.NoError(t, err)
	handle := ec.KafkaHandler()
	require.NoError(t, handle(ctx, &sarama.ConsumerMessage{Value: payload}))

	var dst string
	_, hit, err := c.Load(ctx, "g-2", &dst)
	require.NoError(t, err)
	assert.False(t, hit)

	assert.Error(t, handle(ctx, &sarama.ConsumerMessage{Value: []byte("not json")}))
	assert.Error(t, handle(ctx, &sarama.ConsumerMessage{Value: []byte(`{"type":"group.updated"}`)}))
}

type brokenCache struct{}

func (brokenCache) Invalidate(context.Context, string) error { return errors.New("redis down") }

func TestHandleReportsCacheFailure(t *testing.T) {
	ec := NewEnrollmentConsumer(brokenCache{}, nil)
	err := ec.Handle(context.Background(), events.New(events.GroupUpdated, "g-3", 1))
	assert.ErrorContains(t, err, "redis down")

	assert.NoError(t, ec.Handle(context.Background(), events.New(events.GroupCreated, "g-3", 1)))
}
