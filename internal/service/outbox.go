package service

import (
	"context"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/d60-Lab/followgraph/internal/event"
	"github.com/d60-Lab/followgraph/internal/model"
	"github.com/d60-Lab/followgraph/internal/repository"
)

// NewOutboxEvent 把生命周期事件编码成 outbox 行，由 RelayWorker 投递给通知等下游
func NewOutboxEvent(e event.Event) (*model.OutboxEvent, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, "encode event")
	}
	return &model.OutboxEvent{
		ID:         uuid.NewString(),
		Kind:       string(e.Kind),
		FollowType: e.FollowType,
		Topic:      e.Topic(),
		Key:        strconv.FormatInt(e.Key(), 10),
		Payload:    payload,
		CreatedAt:  e.OccurredAt,
	}, nil
}

// commit 执行一次写操作。开启 DurableEvents 时，op 的写入和它产生的事件在同一事务里
// 落库，outbox 写失败则整个操作回滚；否则直接在 s.repo 上执行
func (s *followService) commit(ctx context.Context, op func(repository.FollowRepository) (event.Event, error)) (event.Event, error) {
	if !s.cfg.DurableEvents {
		return op(s.repo)
	}
	var e event.Event
	err := s.repo.WithinTx(ctx, func(follows repository.FollowRepository, outbox repository.OutboxRepository) error {
		var err error
		if e, err = op(follows); err != nil {
			return err
		}
		e.OccurredAt = time.Now().UTC()
		row, err := NewOutboxEvent(e)
		if err != nil {
			return err
		}
		return outbox.Append(ctx, row)
	})
	if err != nil {
		return event.Event{}, err
	}
	return e, nil
}
