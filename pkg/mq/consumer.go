package mq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/Gopher0727/StudyGroup/config"
	logger "github.com/Gopher0727/StudyGroup/middleware/log"
)

// DLQ 消息附带的头
const (
	HeaderError         = "x-error"
	HeaderOriginalTopic = "x-original-topic"
)

// MessageHandler 处理一条消息，返回错误会触发重试，重试耗尽后转入 DLQ
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

// Consumer 消费组，失败消息按配置重试后写入 DLQ
type Consumer struct {
	consumerGroup sarama.ConsumerGroup
	config        *config.KafkaConfig
	handler       MessageHandler
	dlq           *Producer
	topics        []string
	log           *logger.Logger

	ready     chan struct{}
	readyOnce sync.Once
	wg        sync.WaitGroup
	cancel    context.CancelFunc
}

// NewConsumer 加入 cfg.ConsumerGroup，并创建 DLQ 生产者
func NewConsumer(cfg *config.KafkaConfig, topics []string, handler MessageHandler, log *logger.Logger) (*Consumer, error) {
	sc := sarama.NewConfig()
	sc.Version = sarama.V2_6_0_0
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	sc.Consumer.Return.Errors = true
	sc.Net.DialTimeout = 10 * time.Second
	sc.Net.ReadTimeout = 10 * time.Second
	sc.Net.WriteTimeout = 10 * time.Second
	sc.Metadata.Retry.Max = 3
	sc.Metadata.Retry.Backoff = 250 * time.Millisecond
	sc.Metadata.Timeout = 10 * time.Second

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer group: %w", err)
	}

	dlq, err := NewProducer(cfg)
	if err != nil {
		_ = group.Close()
		return nil, fmt.Errorf("failed to create DLQ producer: %w", err)
	}
	return newConsumer(group, dlq, cfg, topics, handler, log), nil
}

func newConsumer(group sarama.ConsumerGroup, dlq *Producer, cfg *config.KafkaConfig, topics []string, handler MessageHandler, log *logger.Logger) *Consumer {
	if log == nil {
		log = logger.NewNop()
	}
	return &Consumer{
		consumerGroup: group,
		config:        cfg,
		handler:       handler,
		dlq:           dlq,
		topics:        topics,
		log:           log.Named("mq"),
		ready:         make(chan struct{}),
	}
}

// Start 在后台消费，直到 ctx 结束或调用 Stop；首次加入消费组后返回
func (c *Consumer) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		handler := &groupHandler{consumer: c}
		for ctx.Err() == nil {
			if err := c.consumerGroup.Consume(ctx, c.topics, handler); err != nil {
				c.log.Error("consume session ended", zap.Error(err))
				select {
				case <-ctx.Done():
				case <-time.After(time.Second):
				}
			}
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				c.log.Warn("consumer group error", zap.Error(err))
			case <-ctx.Done():
				return
			}
		}
	}()

	select {
	case <-c.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop 停止消费并关闭消费组和 DLQ 生产者
func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	if err := c.consumerGroup.Close(); err != nil {
		return fmt.Errorf("failed to close kafka consumer group: %w", err)
	}
	if c.dlq != nil {
		return c.dlq.Close()
	}
	return nil
}

// Ready 首次加入消费组后关闭
func (c *Consumer) Ready() <-chan struct{} {
	return c.ready
}

// process 执行 handler 并重试，耗尽后写 DLQ；返回 false 表示消息未能安全落地，不应提交位移
func (c *Consumer) process(ctx context.Context, message *sarama.ConsumerMessage) bool {
	err := c.handleWithRetry(ctx, message)
	if err == nil {
		return true
	}
	if ctx.Err() != nil {
		return false
	}

	c.log.Warn("message moved to DLQ",
		zap.String("topic", message.Topic),
		zap.Int32("partition", message.Partition),
		zap.Int64("offset", message.Offset),
		zap.Error(err),
	)
	if c.dlq == nil {
		return true
	}
	_, _, dlqErr := c.dlq.Produce(ctx, c.config.Topics.DLQ, message.Key, message.Value,
		Header{Key: HeaderError, Value: err.Error()},
		Header{Key: HeaderOriginalTopic, Value: message.Topic},
	)
	if dlqErr != nil {
		c.log.Error("failed to send message to DLQ", zap.Error(dlqErr))
		return false
	}
	return true
}

func (c *Consumer) handleWithRetry(ctx context.Context, message *sarama.ConsumerMessage) error {
	maxRetries := c.config.Consumer.MaxRetries
	backoff := time.Duration(c.config.Consumer.RetryBackoffMs) * time.Millisecond

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := c.handler(ctx, message)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", maxRetries+1, lastErr)
}

// groupHandler 实现 sarama.ConsumerGroupHandler
type groupHandler struct {
	consumer *Consumer
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error {
	h.consumer.readyOnce.Do(func() { close(h.consumer.ready) })
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if !h.consumer.process(session.Context(), message) {
				// 位移不提交，重平衡后从该消息重新消费
				return nil
			}
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}
