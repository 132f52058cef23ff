package mq

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/StudyGroup/config"
)

func testKafkaConfig() *config.KafkaConfig {
	return &config.KafkaConfig{
		Brokers:       []string{"127.0.0.1:9092"},
		ConsumerGroup: "studygroup-test",
		Topics: config.TopicsConfig{
			Enrollment: "studygroup.enrollment.test",
			DLQ:        "studygroup.enrollment.test.dlq",
		},
		Producer: config.ProducerConfig{MaxRetries: 2, RetryBackoffMs: 1},
		Consumer: config.ConsumerConfig{MaxRetries: 2, RetryBackoffMs: 1},
	}
}

func newMockSyncProducer(t *testing.T) *mocks.SyncProducer {
	sc := mocks.NewTestConfig()
	sc.Producer.Return.Successes = true
	return mocks.NewSyncProducer(t, sc)
}

func TestProducer_Produce(t *testing.T) {
	sp := newMockSyncProducer(t)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"type":"request.approved"}` {
			return errors.New("unexpected payload " + string(val))
		}
		return nil
	})

	p := NewProducerFrom(sp, testKafkaConfig())
	defer p.Close()

	_, _, err := p.Produce(context.Background(), "studygroup.enrollment.test", []byte("g-1"), []byte(`{"type":"request.approved"}`))
	require.NoError(t, err)
}

func TestProducer_ProduceWithRetry(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		sp := newMockSyncProducer(t)
		sp.ExpectSendMessageAndFail(sarama.ErrNotLeaderForPartition)
		sp.ExpectSendMessageAndFail(sarama.ErrNotLeaderForPartition)
		sp.ExpectSendMessageAndSucceed()

		p := NewProducerFrom(sp, testKafkaConfig())
		defer p.Close()

		_, _, err := p.ProduceWithRetry(context.Background(), "t", nil, []byte("v"), 2)
		assert.NoError(t, err)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		sp := newMockSyncProducer(t)
		sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
		sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

		p := NewProducerFrom(sp, testKafkaConfig())
		defer p.Close()

		_, _, err := p.ProduceWithRetry(context.Background(), "t", nil, []byte("v"), 1)
		require.Error(t, err)
		assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	})

	t.Run("canceled context", func(t *testing.T) {
		sp := newMockSyncProducer(t)
		p := NewProducerFrom(sp, testKafkaConfig())
		defer p.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, _, err := p.ProduceWithRetry(ctx, "t", nil, []byte("v"), 3)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

// TestNewProducer_Integration 需要本地 Kafka，不可用时跳过
func TestNewProducer_Integration(t *testing.T) {
	p, err := NewProducer(testKafkaConfig())
	if err != nil {
		t.Skipf("Skipping test: Kafka not available: %v", err)
	}
	defer p.Close()

	_, _, err = p.Produce(context.Background(), testKafkaConfig().Topics.Enrollment, []byte("k"), []byte("v"))
	assert.NoError(t, err)
}
