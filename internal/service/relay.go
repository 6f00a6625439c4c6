package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/followgraph/internal/repository"
	"github.com/d60-Lab/followgraph/pkg/logger"
)

// EventSink 外部投递目标（kafka、redis pubsub、日志）
type EventSink interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
}

// RelayWorker 轮询 outbox 并投递到 sink
type RelayWorker struct {
	repo         repository.OutboxRepository
	sink         EventSink
	workers      int
	claimLimit   int
	maxAttempts  int
	pollInterval time.Duration
	metricsCh    chan time.Duration // outbox -> delivered latency
}

func NewRelayWorker(repo repository.OutboxRepository, sink EventSink, workers, claimLimit, maxAttempts int, pollInterval time.Duration) *RelayWorker {
	if workers <= 0 {
		workers = 1
	}
	if claimLimit <= 0 {
		claimLimit = 128
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if pollInterval <= 0 {
		pollInterval = 200 * time.Millisecond
	}
	return &RelayWorker{
		repo:         repo,
		sink:         sink,
		workers:      workers,
		claimLimit:   claimLimit,
		maxAttempts:  maxAttempts,
		pollInterval: pollInterval,
		metricsCh:    make(chan time.Duration, 4096),
	}
}

func (w *RelayWorker) Metrics() <-chan time.Duration { return w.metricsCh }

// Start 启动若干 worker 轮询处理 outbox；返回停止函数。
func (w *RelayWorker) Start() func(context.Context) error {
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < w.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(stop)
		}()
	}
	return func(ctx context.Context) error {
		close(stop)
		done := make(chan struct{})
		go func() { wg.Wait(); close(done) }()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *RelayWorker) loop(stop <-chan struct{}) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, err := w.ProcessOnce(context.Background()); err != nil {
				logger.Error("outbox relay failed", zap.Error(err))
			}
		}
	}
}

// ProcessOnce claims one batch and delivers it, returning how many were delivered.
func (w *RelayWorker) ProcessOnce(ctx context.Context) (int, error) {
	batch, err := w.repo.Claim(ctx, w.claimLimit)
	if err != nil {
		return 0, err
	}
	delivered := 0
	for _, ev := range batch {
		if err := w.sink.Publish(ctx, ev.Topic, ev.Key, ev.Payload); err != nil {
			logger.Warn("outbox delivery failed",
				zap.String("id", ev.ID),
				zap.String("topic", ev.Topic),
				zap.Int("attempts", ev.Attempts+1),
				zap.Error(err))
			if mErr := w.repo.MarkFailed(ctx, ev.ID, err, w.maxAttempts); mErr != nil {
				return delivered, mErr
			}
			continue
		}
		if err := w.repo.MarkDone(ctx, ev.ID); err != nil {
			return delivered, err
		}
		delivered++
		if !ev.CreatedAt.IsZero() {
			select {
			case w.metricsCh <- time.Since(ev.CreatedAt):
			default:
			}
		}
	}
	return delivered, nil
}
