package cache

import (
	"context"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/d60-Lab/followgraph/internal/model"
)

// Purpose 缓存用途，每个 (用途, 关注类型) 是一个独立分组
type Purpose string

const (
	FollowersCount Purpose = "followers_count"
	FollowingCount Purpose = "following_count"
	FollowersQuery Purpose = "followers_query"
	FollowingQuery Purpose = "following_query"
	EdgeStatus     Purpose = "edge"
)

var purposes = []Purpose{FollowersCount, FollowingCount, FollowersQuery, FollowingQuery, EdgeStatus}

// Group returns follow_<purpose> for users and follow_<type>_<purpose> otherwise.
func Group(ft model.FollowType, p Purpose) string {
	if ft == model.TypeUsers {
		return "follow_" + string(p)
	}
	return "follow_" + string(ft) + "_" + string(p)
}

// Groups lists every group a follow type owns.
func Groups(ft model.FollowType) []string {
	out := make([]string, len(purposes))
	for i, p := range purposes {
		out[i] = Group(ft, p)
	}
	return out
}

const invalidateChunk = 500

// FollowCache 关注数据的缓存视图：计数、默认列表、单条关系状态
type FollowCache struct {
	backend Backend
}

func NewFollowCache(backend Backend) *FollowCache {
	if backend == nil {
		backend = NopBackend{}
	}
	return &FollowCache{backend: backend}
}

func (c *FollowCache) Backend() Backend { return c.backend }

// RegisterType 把该类型的分组声明为全局分组
func (c *FollowCache) RegisterType(ft model.FollowType) {
	c.backend.AddGlobalGroups(Groups(ft)...)
}

func idKey(id int64) string { return strconv.FormatInt(id, 10) }

func edgeKey(leaderID, followerID int64) string {
	return strconv.FormatInt(leaderID, 10) + ":" + strconv.FormatInt(followerID, 10)
}

func (c *FollowCache) Count(ctx context.Context, p Purpose, ft model.FollowType, id int64) (int64, bool, error) {
	raw, ok, err := c.backend.Get(ctx, Group(ft, p), idKey(id))
	if err != nil || !ok {
		return 0, false, err
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, false, errors.Wrapf(err, "decode %s", Group(ft, p))
	}
	return n, true, nil
}

func (c *FollowCache) SetCount(ctx context.Context, p Purpose, ft model.FollowType, id, n int64) error {
	return c.backend.Set(ctx, Group(ft, p), idKey(id), []byte(strconv.FormatInt(n, 10)))
}

func (c *FollowCache) IDs(ctx context.Context, p Purpose, ft model.FollowType, id int64) ([]int64, bool, error) {
	raw, ok, err := c.backend.Get(ctx, Group(ft, p), idKey(id))
	if err != nil || !ok {
		return nil, false, err
	}
	ids := make([]int64, 0)
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, false, errors.Wrapf(err, "decode %s", Group(ft, p))
	}
	return ids, true, nil
}

func (c *FollowCache) SetIDs(ctx context.Context, p Purpose, ft model.FollowType, id int64, ids []int64) error {
	if ids == nil {
		ids = []int64{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return errors.WithStack(err)
	}
	return c.backend.Set(ctx, Group(ft, p), idKey(id), raw)
}

// Edge 返回缓存的关系 id，0 表示已确认未关注
func (c *FollowCache) Edge(ctx context.Context, ft model.FollowType, leaderID, followerID int64) (uint64, bool, error) {
	raw, ok, err := c.backend.Get(ctx, Group(ft, EdgeStatus), edgeKey(leaderID, followerID))
	if err != nil || !ok {
		return 0, false, err
	}
	id, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, false, errors.Wrapf(err, "decode %s", Group(ft, EdgeStatus))
	}
	return id, true, nil
}

func (c *FollowCache) SetEdge(ctx context.Context, ft model.FollowType, leaderID, followerID int64, edgeID uint64) error {
	return c.backend.Set(ctx, Group(ft, EdgeStatus), edgeKey(leaderID, followerID), []byte(strconv.FormatUint(edgeID, 10)))
}

// PrimeEdges writes bulk status results, including misses as 0.
func (c *FollowCache) PrimeEdges(ctx context.Context, ft model.FollowType, followerID int64, leaderIDs []int64, status map[int64]uint64) error {
	for _, l := range leaderIDs {
		if err := c.SetEdge(ctx, ft, l, followerID, status[l]); err != nil {
			return err
		}
	}
	return nil
}

// InvalidateEdge 单条关系变化：两端计数、两端列表、关系状态
func (c *FollowCache) InvalidateEdge(ctx context.Context, leaderID, followerID int64, ft model.FollowType) error {
	return c.backend.Delete(ctx, edgeEntries(leaderID, followerID, ft)...)
}

func edgeEntries(leaderID, followerID int64, ft model.FollowType) []Entry {
	return []Entry{
		{Group: Group(ft, FollowersCount), Key: idKey(leaderID)},
		{Group: Group(ft, FollowersQuery), Key: idKey(leaderID)},
		{Group: Group(ft, FollowingCount), Key: idKey(followerID)},
		{Group: Group(ft, FollowingQuery), Key: idKey(followerID)},
		{Group: Group(ft, EdgeStatus), Key: edgeKey(leaderID, followerID)},
	}
}

// InvalidateEntity 级联删除后的失效：实体自身按角色失效，
// 每条被删除关系的对端计数、列表和关系状态同样失效
func (c *FollowCache) InvalidateEntity(ctx context.Context, id int64, ft model.FollowType, role model.Role, edges []model.Follow) error {
	seen := make(map[Entry]struct{})
	entries := make([]Entry, 0, 4+len(edges)*5)
	add := func(es ...Entry) {
		for _, e := range es {
			if _, ok := seen[e]; ok {
				continue
			}
			seen[e] = struct{}{}
			entries = append(entries, e)
		}
	}

	if role == model.RoleLeader || role == model.RoleBoth {
		add(Entry{Group(ft, FollowersCount), idKey(id)}, Entry{Group(ft, FollowersQuery), idKey(id)})
	}
	if role == model.RoleFollower || role == model.RoleBoth {
		add(Entry{Group(ft, FollowingCount), idKey(id)}, Entry{Group(ft, FollowingQuery), idKey(id)})
	}
	for _, e := range edges {
		add(edgeEntries(e.LeaderID, e.FollowerID, ft)...)
	}

	for start := 0; start < len(entries); start += invalidateChunk {
		end := min(start+invalidateChunk, len(entries))
		if err := c.backend.Delete(ctx, entries[start:end]...); err != nil {
			return err
		}
	}
	return nil
}

// FlushType drops every cached value of a follow type.
func (c *FollowCache) FlushType(ctx context.Context, ft model.FollowType) error {
	for _, g := range Groups(ft) {
		if err := c.backend.FlushGroup(ctx, g); err != nil {
			return err
		}
	}
	return nil
}
