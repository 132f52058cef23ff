package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/Gopher0727/StudyGroup/pkg/mq"
)

// DirectPublisher 进程内直接交给 handler 处理
// 未启用 Kafka 时使用，缓存在响应返回前失效
type DirectPublisher struct {
	handler Handler
}

func NewDirectPublisher(h Handler) *DirectPublisher {
	return &DirectPublisher{handler: h}
}

func (p *DirectPublisher) Publish(ctx context.Context, e Event) error {
	if p.handler == nil {
		return nil
	}
	return p.handler(ctx, e)
}

// KafkaPublisher 以小组 UUID 作为消息 key，同一小组的事件按提交顺序落在同一分区
type KafkaPublisher struct {
	producer   *mq.Producer
	topic      string
	maxRetries int
}

func NewKafkaPublisher(producer *mq.Producer, topic string, maxRetries int) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic, maxRetries: maxRetries}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	payload, err := Encode(e)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", e.Type, err)
	}
	_, _, err = p.producer.ProduceWithRetry(ctx, p.topic, []byte(e.GroupUUID), payload, p.maxRetries,
		mq.Header{Key: "event-type", Value: string(e.Type)},
	)
	return err
}

// Recorder 在内存中记录已发布的事件，测试使用
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

// Events 返回已发布事件的副本
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types 按发布顺序列出事件类型
func (r *Recorder) Types() []Type {
	events := r.Events()
	types := make([]Type, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	return types
}
