package event

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/d60-Lab/followgraph/internal/model"
)

// Kind 关注生命周期事件类型
type Kind string

const (
	FollowStarted Kind = "follow_started"
	FollowStopped Kind = "follow_stopped"
	EntityRemoved Kind = "entity_removed"
)

// Event is published after the underlying store change has committed.
type Event struct {
	Kind       Kind             `json:"kind"`
	FollowType model.FollowType `json:"follow_type"`
	// Edge 对 started/stopped 有效
	Edge *model.Follow `json:"edge,omitempty"`
	// EntityID/Role/Removed 对 entity_removed 有效
	EntityID   int64      `json:"entity_id,omitempty"`
	Role       model.Role `json:"role,omitempty"`
	Removed    int        `json:"removed,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// Topic 用户类型为 kind，其他类型为 kind.type
func (e Event) Topic() string {
	if e.FollowType == model.TypeUsers {
		return string(e.Kind)
	}
	return string(e.Kind) + "." + string(e.FollowType)
}

// Key is the partition key: the leader for edge events, the entity otherwise.
func (e Event) Key() int64 {
	if e.Edge != nil {
		return e.Edge.LeaderID
	}
	return e.EntityID
}

type Handler func(ctx context.Context, e Event) error

type subscription struct {
	kind Kind
	ft   model.FollowType
	all  bool
	h    Handler
}

// Bus 同步事件总线，按订阅顺序调用
type Bus struct {
	mu   sync.RWMutex
	subs []subscription
}

func NewBus() *Bus { return &Bus{} }

// Subscribe registers h for kind events of one follow type.
func (b *Bus) Subscribe(kind Kind, ft model.FollowType, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{kind: kind, ft: ft, h: h})
}

// SubscribeAll registers h for kind events of every follow type.
func (b *Bus) SubscribeAll(kind Kind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{kind: kind, all: true, h: h})
}

// Publish 调用所有匹配的处理器；单个处理器失败不影响后续处理器，错误合并返回
func (b *Bus) Publish(ctx context.Context, e Event) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	b.mu.RLock()
	matched := make([]Handler, 0, len(b.subs))
	for _, s := range b.subs {
		if s.kind != e.Kind {
			continue
		}
		if s.all || s.ft == e.FollowType {
			matched = append(matched, s.h)
		}
	}
	b.mu.RUnlock()

	var errs []error
	for _, h := range matched {
		if err := h(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
