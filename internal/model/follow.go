package model

import (
	"time"
)

// FollowType 关注类型，区分 leader_id 的命名空间；空串表示关注用户
type FollowType string

const (
	TypeUsers    FollowType = ""
	TypeBlogs    FollowType = "blogs"
	TypeActivity FollowType = "activity"
	TypePosts    FollowType = "posts"
)

// String 返回可读名称，空类型显示为 users
func (t FollowType) String() string {
	if t == TypeUsers {
		return "users"
	}
	return string(t)
}

// Follow 关注关系（follower 关注 leader）
type Follow struct {
	ID uint64 `json:"id" gorm:"primaryKey;autoIncrement"`
	// ux_follow_edge = (leader_id, follower_id, follow_type)，避免重复关注
	LeaderID   int64      `json:"leader_id" gorm:"not null;uniqueIndex:ux_follow_edge,priority:1"`
	FollowerID int64      `json:"follower_id" gorm:"not null;uniqueIndex:ux_follow_edge,priority:2;index:idx_follow_follower"`
	FollowType FollowType `json:"follow_type" gorm:"type:varchar(75);not null;uniqueIndex:ux_follow_edge,priority:3;index:idx_follow_type"`
	// 历史数据可能是零值日期
	DateRecorded time.Time `json:"date_recorded" gorm:"not null;index:idx_follow_date"`
}

func (Follow) TableName() string { return "follows" }

// HasRecordedDate reports whether DateRecorded carries a real timestamp.
func (f *Follow) HasRecordedDate() bool {
	return f.DateRecorded.Year() > 1
}

// Role 实体在关注关系中的角色，用于级联删除
type Role string

const (
	RoleLeader   Role = "leader"
	RoleFollower Role = "follower"
	RoleBoth     Role = "both"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleLeader, RoleFollower, RoleBoth:
		return true
	}
	return false
}

// Counts 关注数与粉丝数
type Counts struct {
	Followers int64 `json:"followers"`
	Following int64 `json:"following"`
}
