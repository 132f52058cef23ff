// Package events 招募事件及其发布方式，事件只在事务提交后产生
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	GroupCreated     Type = "group.created"
	GroupUpdated     Type = "group.updated"
	GroupDeleted     Type = "group.deleted"
	JoinRequested    Type = "request.submitted"
	RequestApproved  Type = "request.approved"
	RequestRejected  Type = "request.rejected"
	MemberRemoved    Type = "member.removed"
	GroupCapacityMet Type = "group.filled"
)

// Event 在产生它的事务提交后发布
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	GroupUUID  string    `json:"group_uuid"`
	ActorID    uint      `json:"actor_id"`
	UserID     uint      `json:"user_id,omitempty"`
	RequestID  int64     `json:"request_id,omitempty,string"`
	MemberID   uint      `json:"member_id,omitempty"`
	TraceID    string    `json:"trace_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// New 填充 ID 和 OccurredAt
func New(t Type, groupUUID string, actorID uint) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		GroupUUID:  groupUUID,
		ActorID:    actorID,
		OccurredAt: time.Now().UTC(),
	}
}

func Encode(e Event) ([]byte, error) {
	return json.Marshal(e)
}

func Decode(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("decode enrollment event: %w", err)
	}
	if e.Type == "" || e.GroupUUID == "" {
		return Event{}, fmt.Errorf("decode enrollment event: missing type or group_uuid")
	}
	return e, nil
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Handler 处理单个事件，Kafka 至少投递一次，实现必须幂等
type Handler func(ctx context.Context, e Event) error
