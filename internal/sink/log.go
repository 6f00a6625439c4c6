package sink

import (
	"context"

	"go.uber.org/zap"

	"github.com/d60-Lab/followgraph/pkg/logger"
)

// LogSink 只记录日志，没有下游时使用
type LogSink struct{}

func (LogSink) Publish(_ context.Context, topic, key string, payload []byte) error {
	logger.Info("follow event",
		zap.String("topic", topic),
		zap.String("key", key),
		zap.ByteString("payload", payload))
	return nil
}
