package sink

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisSink 通过 PUBLISH 广播事件，适合单机或轻量部署
type RedisSink struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisSink(client redis.UniversalClient, prefix string) *RedisSink {
	return &RedisSink{client: client, prefix: prefix}
}

func (s *RedisSink) Channel(topic string) string {
	if s.prefix == "" {
		return topic
	}
	return s.prefix + ":" + topic
}

// Publish ignores key; pubsub has no partitioning.
func (s *RedisSink) Publish(ctx context.Context, topic, _ string, payload []byte) error {
	if err := s.client.Publish(ctx, s.Channel(topic), payload).Err(); err != nil {
		return errors.Wrapf(err, "redis publish %s", s.Channel(topic))
	}
	return nil
}
