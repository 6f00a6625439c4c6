package followtype

import (
	"context"

	"github.com/d60-Lab/followgraph/internal/model"
)

// Module 一种关注类型的配置：类型标签、所属实体、按钮文案
type Module struct {
	Type model.FollowType
	Name string
	// LeaderKind 是 leader_id 所指的宿主实体，实体删除时据此级联
	LeaderKind    string
	FollowLabel   string
	UnfollowLabel string
}

func Users() Module {
	return Module{Type: model.TypeUsers, Name: "users", LeaderKind: "user", FollowLabel: "Follow", UnfollowLabel: "Unfollow"}
}

func Blogs() Module {
	return Module{Type: model.TypeBlogs, Name: "blogs", LeaderKind: "site", FollowLabel: "Follow Site", UnfollowLabel: "Unfollow Site"}
}

func Activity() Module {
	return Module{Type: model.TypeActivity, Name: "activity", LeaderKind: "activity", FollowLabel: "Follow", UnfollowLabel: "Unfollow"}
}

func Posts() Module {
	return Module{Type: model.TypePosts, Name: "posts", LeaderKind: "post", FollowLabel: "Follow Post", UnfollowLabel: "Unfollow Post"}
}

// Defaults returns the built-in modules, users first.
func Defaults() []Module {
	return []Module{Users(), Blogs(), Activity(), Posts()}
}

// Custom 第三方类型，使用通用按钮文案
func Custom(ft model.FollowType, name, leaderKind string) Module {
	if name == "" {
		name = string(ft)
	}
	return Module{Type: ft, Name: name, LeaderKind: leaderKind, FollowLabel: "Follow", UnfollowLabel: "Unfollow"}
}

// StatusChecker 按钮渲染需要的查询
type StatusChecker interface {
	IsFollowing(ctx context.Context, leaderID, followerID int64, ft model.FollowType) (bool, error)
	BulkCheckFollowStatus(ctx context.Context, leaderIDs []int64, followerID int64, ft model.FollowType) (map[int64]uint64, error)
}

// Button 渲染一个关注按钮所需的全部状态
type Button struct {
	LeaderID   int64            `json:"leader_id"`
	FollowType model.FollowType `json:"follow_type"`
	Following  bool             `json:"following"`
	// Hidden 未登录或用户看自己时不显示按钮
	Hidden bool   `json:"hidden"`
	Action string `json:"action,omitempty"`
	Label  string `json:"label,omitempty"`
}

const (
	ActionFollow   = "follow"
	ActionUnfollow = "unfollow"
)

func (m Module) hidden(leaderID, viewerID int64) bool {
	return viewerID <= 0 || (m.Type == model.TypeUsers && leaderID == viewerID)
}

func (m Module) render(leaderID int64, following bool) Button {
	b := Button{LeaderID: leaderID, FollowType: m.Type, Following: following}
	if following {
		b.Action, b.Label = ActionUnfollow, m.UnfollowLabel
	} else {
		b.Action, b.Label = ActionFollow, m.FollowLabel
	}
	return b
}

// Button 单个按钮，一次 IsFollowing
func (m Module) Button(ctx context.Context, svc StatusChecker, leaderID, viewerID int64) (Button, error) {
	if m.hidden(leaderID, viewerID) {
		return Button{LeaderID: leaderID, FollowType: m.Type, Hidden: true}, nil
	}
	following, err := svc.IsFollowing(ctx, leaderID, viewerID, m.Type)
	if err != nil {
		return Button{}, err
	}
	return m.render(leaderID, following), nil
}

// Buttons renders N buttons with a single bulk status query.
func (m Module) Buttons(ctx context.Context, svc StatusChecker, leaderIDs []int64, viewerID int64) ([]Button, error) {
	out := make([]Button, len(leaderIDs))
	if viewerID <= 0 {
		for i, id := range leaderIDs {
			out[i] = Button{LeaderID: id, FollowType: m.Type, Hidden: true}
		}
		return out, nil
	}
	status, err := svc.BulkCheckFollowStatus(ctx, leaderIDs, viewerID, m.Type)
	if err != nil {
		return nil, err
	}
	for i, id := range leaderIDs {
		if m.hidden(id, viewerID) {
			out[i] = Button{LeaderID: id, FollowType: m.Type, Hidden: true}
			continue
		}
		_, following := status[id]
		out[i] = m.render(id, following)
	}
	return out, nil
}
