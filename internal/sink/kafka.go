package sink

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"github.com/pkg/errors"
)

// NewProducerConfig 同步投递：等待所有副本确认
func NewProducerConfig() *sarama.Config {
	c := sarama.NewConfig()
	c.Producer.Return.Successes = true
	c.Producer.Return.Errors = true
	c.Producer.RequiredAcks = sarama.WaitForAll
	c.Producer.Retry.Max = 3
	c.Producer.Retry.Backoff = 200 * time.Millisecond
	c.Producer.Partitioner = sarama.NewHashPartitioner
	return c
}

// KafkaSink publishes outbox events to <prefix>.<topic>, keyed by leader id.
type KafkaSink struct {
	producer sarama.SyncProducer
	prefix   string
}

func NewKafkaSink(producer sarama.SyncProducer, prefix string) *KafkaSink {
	return &KafkaSink{producer: producer, prefix: prefix}
}

// DialKafkaSink connects a SyncProducer to brokers.
func DialKafkaSink(brokers []string, prefix string) (*KafkaSink, error) {
	p, err := sarama.NewSyncProducer(brokers, NewProducerConfig())
	if err != nil {
		return nil, errors.Wrap(err, "kafka producer")
	}
	return NewKafkaSink(p, prefix), nil
}

func (s *KafkaSink) Topic(topic string) string {
	if s.prefix == "" {
		return topic
	}
	return s.prefix + "." + topic
}

func (s *KafkaSink) Publish(ctx context.Context, topic, key string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: s.Topic(topic),
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(payload),
	}
	if _, _, err := s.producer.SendMessage(msg); err != nil {
		return errors.Wrapf(err, "kafka send %s", msg.Topic)
	}
	return nil
}

func (s *KafkaSink) Close() error { return s.producer.Close() }
