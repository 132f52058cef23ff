package mq

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
)

func TestConsumer_ProcessSuccess(t *testing.T) {
	calls := 0
	c := newConsumer(nil, nil, testKafkaConfig(), nil, func(ctx context.Context, m *sarama.ConsumerMessage) error {
		calls++
		return nil
	}, nil)

	ok := c.process(context.Background(), &sarama.ConsumerMessage{Topic: "t", Value: []byte("v")})
	assert.True(t, ok)
	assert.Equal(t, 1, calls)
}

func TestConsumer_ProcessRetriesThenSucceeds(t *testing.T) {
	calls := 0
	c := newConsumer(nil, nil, testKafkaConfig(), nil, func(ctx context.Context, m *sarama.ConsumerMessage) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, nil)

	assert.True(t, c.process(context.Background(), &sarama.ConsumerMessage{Topic: "t"}))
	assert.Equal(t, 3, calls)
}

func TestConsumer_ProcessMovesToDLQ(t *testing.T) {
	sp := newMockSyncProducer(t)
	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "studygroup.enrollment.test.dlq" {
			return errors.New("wrong topic " + msg.Topic)
		}
		headers := map[string]string{}
		for _, h := range msg.Headers {
			headers[string(h.Key)] = string(h.Value)
		}
		if headers[HeaderOriginalTopic] != "studygroup.enrollment.test" {
			return errors.New("missing original topic header")
		}
		if headers[HeaderError] == "" {
			return errors.New("missing error header")
		}
		return nil
	})
	dlq := NewProducerFrom(sp, testKafkaConfig())
	defer dlq.Close()

	calls := 0
	c := newConsumer(nil, dlq, testKafkaConfig(), nil, func(ctx context.Context, m *sarama.ConsumerMessage) error {
		calls++
		return errors.New("poison message")
	}, nil)

	ok := c.process(context.Background(), &sarama.ConsumerMessage{Topic: "studygroup.enrollment.test", Value: []byte("bad")})
	assert.True(t, ok)
	assert.Equal(t, testKafkaConfig().Consumer.MaxRetries+1, calls)
}

func TestConsumer_ProcessCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := newConsumer(nil, nil, testKafkaConfig(), nil, func(ctx context.Context, m *sarama.ConsumerMessage) error {
		cancel()
		return errors.New("shutting down")
	}, nil)

	assert.False(t, c.process(ctx, &sarama.ConsumerMessage{Topic: "t"}))
}

// TestConsumer_StartStop 需要本地 Kafka，不可用时跳过
func TestConsumer_StartStop(t *testing.T) {
	cfg := testKafkaConfig()
	c, err := NewConsumer(cfg, []string{cfg.Topics.Enrollment}, func(ctx context.Context, m *sarama.ConsumerMessage) error {
		return nil
	}, nil)
	if err != nil {
		t.Skipf("Skipping test: Kafka not available: %v", err)
	}
	assert.NoError(t, c.Stop())
}
