package consumer

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/Gopher0727/StudyGroup/internal/events"
	logger "github.com/Gopher0727/StudyGroup/middleware/log"
	"github.com/Gopher0727/StudyGroup/pkg/mq"
)

// Invalidator 删除小组详情缓存
type Invalidator interface {
	Invalidate(ctx context.Context, groupUUID string) error
}

// EnrollmentConsumer 处理招募事件: 使小组缓存失效并记录审计日志
// Kafka 至少投递一次，重复处理同一事件没有副作用
type EnrollmentConsumer struct {
	cache Invalidator
	log   *logger.Logger
}

func NewEnrollmentConsumer(cache Invalidator, log *logger.Logger) *EnrollmentConsumer {
	if log == nil {
		log = logger.NewNop()
	}
	return &EnrollmentConsumer{cache: cache, log: log.Named("audit")}
}

// Handle 可直接作为 events.Handler 使用
func (c *EnrollmentConsumer) Handle(ctx context.Context, e events.Event) error {
	if e.TraceID != "" && logger.GetTraceID(ctx) == "" {
		ctx = logger.WithTraceID(ctx, e.TraceID)
	}

	if e.Type != events.GroupCreated {
		if err := c.cache.Invalidate(ctx, e.GroupUUID); err != nil {
			return fmt.Errorf("invalidate group %s: %w", e.GroupUUID, err)
		}
	}

	c.log.InfoContext(ctx, "enrollment event",
		zap.String("event_id", e.ID),
		zap.String("event_type", string(e.Type)),
		zap.String("group_uuid", e.GroupUUID),
		zap.Uint("actor_id", e.ActorID),
		zap.Uint("applicant_id", e.UserID),
		zap.Int64("request_id", e.RequestID),
		zap.Time("occurred_at", e.OccurredAt),
	)
	return nil
}

// KafkaHandler 解码消息后交给 Handle，解码失败的消息最终进入死信队列
func (c *EnrollmentConsumer) KafkaHandler() mq.MessageHandler {
	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		e, err := events.Decode(message.Value)
		if err != nil {
			return err
		}
		return c.Handle(ctx, e)
	}
}
