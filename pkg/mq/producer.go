package mq

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/Gopher0727/StudyGroup/config"
)

// Header 消息头
type Header struct {
	Key   string
	Value string
}

// Producer 同步生产者，发送成功表示已被全部 ISR 确认
type Producer struct {
	producer sarama.SyncProducer
	config   *config.KafkaConfig
}

// newSaramaConfig 生产者与 DLQ 共用的连接参数
func newSaramaConfig(cfg *config.KafkaConfig) *sarama.Config {
	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = cfg.Producer.MaxRetries
	sc.Producer.Retry.Backoff = time.Duration(cfg.Producer.RetryBackoffMs) * time.Millisecond
	sc.Producer.Compression = sarama.CompressionSnappy
	sc.Producer.Idempotent = true
	sc.Net.MaxOpenRequests = 1

	sc.Net.DialTimeout = 10 * time.Second
	sc.Net.ReadTimeout = 10 * time.Second
	sc.Net.WriteTimeout = 10 * time.Second
	sc.Metadata.Retry.Max = 3
	sc.Metadata.Retry.Backoff = 250 * time.Millisecond
	sc.Metadata.Timeout = 10 * time.Second
	return sc
}

// NewProducer 连接 cfg.Brokers 创建生产者
func NewProducer(cfg *config.KafkaConfig) (*Producer, error) {
	sp, err := sarama.NewSyncProducer(cfg.Brokers, newSaramaConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return NewProducerFrom(sp, cfg), nil
}

// NewProducerFrom 包装已有的 SyncProducer，测试中传入 sarama/mocks
func NewProducerFrom(sp sarama.SyncProducer, cfg *config.KafkaConfig) *Producer {
	return &Producer{producer: sp, config: cfg}
}

// Produce 发送一条消息，key 为空时由 sarama 随机分区
func (p *Producer) Produce(ctx context.Context, topic string, key, value []byte, headers ...Header) (partition int32, offset int64, err error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(value),
	}
	if key != nil {
		msg.Key = sarama.ByteEncoder(key)
	}
	for _, h := range headers {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(h.Key), Value: []byte(h.Value)})
	}

	partition, offset, err = p.producer.SendMessage(msg)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to send message to topic %s: %w", topic, err)
	}
	return partition, offset, nil
}

// ProduceWithRetry 在 sarama 内部重试之外再做指数退避重试，等待期间响应 ctx 取消
func (p *Producer) ProduceWithRetry(ctx context.Context, topic string, key, value []byte, maxRetries int, headers ...Header) (partition int32, offset int64, err error) {
	backoff := time.Duration(p.config.Producer.RetryBackoffMs) * time.Millisecond

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		partition, offset, err = p.Produce(ctx, topic, key, value, headers...)
		if err == nil {
			return partition, offset, nil
		}
		lastErr = err

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return 0, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}
	return 0, 0, fmt.Errorf("failed to send message after %d attempts: %w", maxRetries+1, lastErr)
}

func (p *Producer) Close() error {
	if p.producer == nil {
		return nil
	}
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka producer: %w", err)
	}
	return nil
}
