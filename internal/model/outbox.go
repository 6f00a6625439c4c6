package model

import "time"

const (
	OutboxPending    = "pending"
	OutboxProcessing = "processing"
	OutboxDone       = "done"
	OutboxDead       = "dead"
)

// OutboxEvent 关注生命周期事件外发盒，由 relay worker 投递给通知等下游
type OutboxEvent struct {
	ID          string     `gorm:"primaryKey;type:varchar(36)"`
	Kind        string     `gorm:"type:varchar(32);not null"`
	FollowType  FollowType `gorm:"type:varchar(75);not null"`
	Topic       string     `gorm:"type:varchar(128);not null"`
	Key         string     `gorm:"type:varchar(64)"`
	Payload     []byte     `gorm:"not null"`
	Status      string     `gorm:"type:varchar(16);index:idx_outbox_status_created,priority:1"` // pending, processing, done, dead
	Attempts    int        `gorm:"not null;default:0"`
	LastError   string     `gorm:"type:text"`
	CreatedAt   time.Time  `gorm:"index:idx_outbox_status_created,priority:2"`
	ClaimedAt   *time.Time // 最近一次被领取的时间，processing 租约从这里算
	ProcessedAt *time.Time
}

func (OutboxEvent) TableName() string { return "follow_outbox" }
