package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/followgraph/internal/model"
)

// OutboxRepository 事件外发盒
type OutboxRepository interface {
	Append(ctx context.Context, ev *model.OutboxEvent) error
	// Claim 领取一批 pending 事件并置为 processing；postgres 下多个 relay 互不阻塞。
	// processing 超过租约仍未完成的事件（relay 崩溃或标记失败）会被重新领取

	Claim(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkDone(ctx context.Context, id string) error
	// MarkFailed 记录失败；达到 maxAttempts 后进入 dead，否则回到 pending 等待重试
	MarkFailed(ctx context.Context, id string, cause error, maxAttempts int) error
	CountByStatus(ctx context.Context, status string) (int64, error)
}

// DefaultOutboxLease processing 状态的租约
const DefaultOutboxLease = 5 * time.Minute

type outboxRepository struct {
	db    *gorm.DB
	lease time.Duration
	now   func() time.Time
}

func NewOutboxRepository(db *gorm.DB) OutboxRepository {
	return NewOutboxRepositoryWithLease(db, DefaultOutboxLease, time.Now)
}

// NewOutboxRepositoryWithLease sets how long a claimed event may stay in
// processing before another relay takes it over.
func NewOutboxRepositoryWithLease(db *gorm.DB, lease time.Duration, clock func() time.Time) OutboxRepository {
	if lease <= 0 {
		lease = DefaultOutboxLease
	}
	if clock == nil {
		clock = time.Now
	}
	return &outboxRepository{db: db, lease: lease, now: clock}
}

func (r *outboxRepository) Append(ctx context.Context, ev *model.OutboxEvent) error {
	if ev.Status == "" {
		ev.Status = model.OutboxPending
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = r.now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(ev).Error; err != nil {
		return storeErr("outbox append", err)
	}
	return nil
}

func (r *outboxRepository) Claim(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	if limit <= 0 {
		limit = 128
	}
	now := r.now().UTC()
	var batch []model.OutboxEvent
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// SELECT ... FOR UPDATE SKIP LOCKED（sqlite 驱动会忽略锁子句）
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? OR (status = ? AND claimed_at < ?)",
				model.OutboxPending, model.OutboxProcessing, now.Add(-r.lease)).
			Order("created_at").
			Limit(limit).
			Find(&batch).Error; err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		ids := make([]string, len(batch))
		for i, b := range batch {
			ids[i] = b.ID
		}
		return tx.Model(&model.OutboxEvent{}).
			Where("id IN ?", ids).
			Updates(map[string]any{"status": model.OutboxProcessing, "claimed_at": now}).Error
	})
	if err != nil {
		return nil, storeErr("outbox claim", err)
	}
	for i := range batch {
		batch[i].Status = model.OutboxProcessing
		batch[i].ClaimedAt = &now
	}
	return batch, nil
}

func (r *outboxRepository) MarkDone(ctx context.Context, id string) error {
	now := r.now().UTC()
	err := r.db.WithContext(ctx).Model(&model.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": model.OutboxDone, "processed_at": now}).Error
	return storeErr("outbox done", err)
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id string, cause error, maxAttempts int) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ev model.OutboxEvent
		if err := tx.Where("id = ?", id).First(&ev).Error; err != nil {
			return err
		}
		attempts := ev.Attempts + 1
		updates := map[string]any{"attempts": attempts, "last_error": msg, "status": model.OutboxPending}
		if maxAttempts > 0 && attempts >= maxAttempts {
			updates["status"] = model.OutboxDead
			updates["processed_at"] = r.now().UTC()
		}
		return tx.Model(&model.OutboxEvent{}).Where("id = ?", id).Updates(updates).Error
	})
	return storeErr("outbox failed", err)
}

func (r *outboxRepository) CountByStatus(ctx context.Context, status string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.OutboxEvent{}).Where("status = ?", status).Count(&n).Error
	if err != nil {
		return 0, storeErr("outbox count", err)
	}
	return n, nil
}
