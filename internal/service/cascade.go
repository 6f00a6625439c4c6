package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/d60-Lab/followgraph/internal/model"
	"github.com/d60-Lab/followgraph/pkg/logger"
)

// EntityRemover 级联删除入口，同步服务或异步队列
type EntityRemover interface {
	RemoveEntity(ctx context.Context, id int64, ft model.FollowType, role model.Role) (int, error)
}

type cascadeJob struct {
	id    int64
	ft    model.FollowType
	role  model.Role
	enqAt time.Time
}

// CascadeQueue 异步级联删除：大 V 删除时不阻塞请求
type CascadeQueue struct {
	remover  EntityRemover
	ch       chan cascadeJob
	timeout  time.Duration
	attempts int
	backoff  time.Duration

	mu        sync.RWMutex
	stopped   bool
	wg        sync.WaitGroup
	processed atomic.Int64
	failed    atomic.Int64
	metricsCh chan time.Duration
}

var _ EntityRemover = (*CascadeQueue)(nil)

func NewCascadeQueue(remover EntityRemover, queueSize int, jobTimeout time.Duration) *CascadeQueue {
	if queueSize <= 0 {
		queueSize = 10000
	}
	if jobTimeout <= 0 {
		jobTimeout = 30 * time.Second
	}
	return &CascadeQueue{
		remover:   remover,
		ch:        make(chan cascadeJob, queueSize),
		timeout:   jobTimeout,
		attempts:  1,
		metricsCh: make(chan time.Duration, 1024),
	}
}

// WithRetry 失败的任务最多执行 attempts 次，第 n 次重试前等待 n*backoff
func (q *CascadeQueue) WithRetry(attempts int, backoff time.Duration) *CascadeQueue {
	if attempts < 1 {
		attempts = 1
	}
	q.attempts = attempts
	q.backoff = backoff
	return q
}

// Start 启动 worker；返回的停止函数会排空队列，最多等待到 ctx 结束
func (q *CascadeQueue) Start(workers int) func(context.Context) error {
	if workers <= 0 {
		workers = 4
	}
	stopCh := make(chan struct{})
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for {
				select {
				case job := <-q.ch:
					q.run(job)
				case <-stopCh:
					for {
						select {
						case job := <-q.ch:
							q.run(job)
						default:
							return
						}
					}
				}
			}
		}()
	}
	return func(ctx context.Context) error {
		q.mu.Lock()
		q.stopped = true
		q.mu.Unlock()
		close(stopCh)

		done := make(chan struct{})
		go func() { q.wg.Wait(); close(done) }()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (q *CascadeQueue) run(job cascadeJob) {
	var (
		n   int
		err error
	)
	for attempt := 1; ; attempt++ {
		n, err = q.once(job)
		if err == nil || attempt >= q.attempts {
			break
		}
		logger.Warn("async cascade failed, retrying",
			zap.Int64("entity_id", job.id),
			zap.String("follow_type", job.ft.String()),
			zap.Int("attempt", attempt),
			zap.Error(err))
		time.Sleep(q.backoff * time.Duration(attempt))
	}
	q.processed.Add(1)
	if err != nil {
		q.failed.Add(1)
		logger.Error("async cascade failed",
			zap.Int64("entity_id", job.id),
			zap.String("follow_type", job.ft.String()),
			zap.String("role", string(job.role)),
			zap.Int("attempts", q.attempts),
			zap.Error(err))
		return
	}
	logger.Debug("async cascade done",
		zap.Int64("entity_id", job.id),
		zap.String("follow_type", job.ft.String()),
		zap.Int("removed", n))
	select {
	case q.metricsCh <- time.Since(job.enqAt):
	default:
	}
}

func (q *CascadeQueue) once(job cascadeJob) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	return q.remover.RemoveEntity(ctx, job.id, job.ft, job.role)
}

// RemoveEntity 入队后立即返回 0；队列满或已停止时同步执行，不丢任务
func (q *CascadeQueue) RemoveEntity(ctx context.Context, id int64, ft model.FollowType, role model.Role) (int, error) {
	if id <= 0 || !role.Valid() {
		return 0, errors.WithMessagef(ErrInvalidArgument, "id=%d role=%q", id, role)
	}
	q.mu.RLock()
	if !q.stopped {
		select {
		case q.ch <- cascadeJob{id: id, ft: ft, role: role, enqAt: time.Now()}:
			q.mu.RUnlock()
			return 0, nil
		default:
		}
	}
	q.mu.RUnlock()
	logger.Warn("cascade queue unavailable, running inline",
		zap.Int64("entity_id", id), zap.String("follow_type", ft.String()))
	return q.remover.RemoveEntity(ctx, id, ft, role)
}

// Metrics 入队到完成的耗时
func (q *CascadeQueue) Metrics() <-chan time.Duration { return q.metricsCh }

// Processed 已执行的任务数（含失败）
func (q *CascadeQueue) Processed() int64 { return q.processed.Load() }

// Failed 重试耗尽仍失败的任务数
func (q *CascadeQueue) Failed() int64 { return q.failed.Load() }

// QueueLen 返回当前队列长度（采样值）。
func (q *CascadeQueue) QueueLen() int { return len(q.ch) }
