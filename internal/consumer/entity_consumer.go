package consumer

import (
	"context"
	"strings"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/d60-Lab/followgraph/internal/followtype"
	"github.com/d60-Lab/followgraph/pkg/logger"
)

// EntityMessage 宿主系统的实体删除通知
type EntityMessage struct {
	Entity string `json:"entity"`
	ID     int64  `json:"id"`
}

// EntityHandler is satisfied by followtype.Hooks. The handler must finish the
// cascade before returning: the offset is committed right after it.
type EntityHandler interface {
	EntityRemoved(ctx context.Context, kind string, id int64) (int, error)
}

// EntityConsumer 消费实体删除 topic 并触发级联删除
type EntityConsumer struct {
	handler EntityHandler
}

var _ sarama.ConsumerGroupHandler = (*EntityConsumer)(nil)

func NewEntityConsumer(handler EntityHandler) *EntityConsumer {
	return &EntityConsumer{handler: handler}
}

func (c *EntityConsumer) Setup(sarama.ConsumerGroupSession) error {
	logger.Info("entity consumer setup")
	return nil
}

func (c *EntityConsumer) Cleanup(sarama.ConsumerGroupSession) error {
	logger.Info("entity consumer cleanup")
	return nil
}

func (c *EntityConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := c.handleMessage(session.Context(), msg); err != nil {
				// 基础设施错误不提交 offset，等待重新投递
				logger.Error("entity removal failed",
					zap.String("topic", msg.Topic),
					zap.Int64("offset", msg.Offset),
					zap.Error(err))
				return err
			}
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// handleMessage 格式错误的消息直接跳过；只有级联删除失败才返回错误
func (c *EntityConsumer) handleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var m EntityMessage
	if err := json.Unmarshal(msg.Value, &m); err != nil {
		logger.Warn("skip malformed entity message", zap.ByteString("value", msg.Value), zap.Error(err))
		return nil
	}
	m.Entity = strings.ToLower(strings.TrimSpace(m.Entity))
	if m.Entity == "" || m.ID <= 0 {
		logger.Warn("skip invalid entity message", zap.String("entity", m.Entity), zap.Int64("id", m.ID))
		return nil
	}
	n, err := c.handler.EntityRemoved(ctx, m.Entity, m.ID)
	if err != nil {
		if errors.Is(err, followtype.ErrUnknownKind) {
			logger.Debug("ignore entity kind", zap.String("entity", m.Entity))
			return nil
		}
		return errors.Wrapf(err, "remove %s %d", m.Entity, m.ID)
	}
	logger.Info("entity removed",
		zap.String("entity", m.Entity),
		zap.Int64("id", m.ID),
		zap.Int("edges", n))
	return nil
}

// Run 阻塞消费直到 ctx 结束；每次 rebalance 后重新进入 Consume
func Run(ctx context.Context, group sarama.ConsumerGroup, topics []string, handler sarama.ConsumerGroupHandler) {
	go func() {
		for err := range group.Errors() {
			logger.Error("kafka consumer error", zap.Error(err))
		}
	}()
	for {
		if err := group.Consume(ctx, topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}
			logger.Error("error from consumer", zap.Error(err))
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// NewConsumerConfig returns the sarama config used for the entity topic.
func NewConsumerConfig() *sarama.Config {
	c := sarama.NewConfig()
	c.Consumer.Return.Errors = true
	c.Consumer.Offsets.Initial = sarama.OffsetOldest
	c.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRange()}
	return c
}
