package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/d60-Lab/followgraph/internal/cache"
	"github.com/d60-Lab/followgraph/internal/event"
	"github.com/d60-Lab/followgraph/internal/model"
	"github.com/d60-Lab/followgraph/internal/repository"
	"github.com/d60-Lab/followgraph/pkg/logger"
)

var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrSelfFollow       = errors.Wrap(ErrInvalidArgument, "cannot follow self")
	ErrAlreadyFollowing = errors.New("you are already following")
	ErrNotFollowing     = errors.New("you are not following")
)

// Config 关注服务策略
type Config struct {
	// AllowSelfFollow 为 false 时 leader == follower 返回 ErrSelfFollow（仅对用户类型生效）
	AllowSelfFollow bool
	// DurableEvents 为 true 时事件与关系写入同事务进入 follow_outbox
	DurableEvents bool
}

// FollowService 关注关系服务
type FollowService interface {
	StartFollowing(ctx context.Context, leaderID, followerID int64, ft model.FollowType) (*model.Follow, error)
	StartFollowingAt(ctx context.Context, leaderID, followerID int64, ft model.FollowType, recordedAt time.Time) (*model.Follow, error)
	StopFollowing(ctx context.Context, leaderID, followerID int64, ft model.FollowType) error
	IsFollowing(ctx context.Context, leaderID, followerID int64, ft model.FollowType) (bool, error)
	GetFollowing(ctx context.Context, followerID int64, ft model.FollowType, opts model.QueryOptions) ([]int64, error)
	GetFollowers(ctx context.Context, leaderID int64, ft model.FollowType, opts model.QueryOptions) ([]int64, error)
	// GetCounts 非用户类型的 followers 恒为 0
	GetCounts(ctx context.Context, id int64, ft model.FollowType) (model.Counts, error)
	// BulkCheckFollowStatus 一次查询，返回 leader_id -> 关系 id（只含已关注的）
	BulkCheckFollowStatus(ctx context.Context, leaderIDs []int64, followerID int64, ft model.FollowType) (map[int64]uint64, error)
	// RemoveEntity 级联删除实体的关系并失效缓存，返回删除条数
	RemoveEntity(ctx context.Context, id int64, ft model.FollowType, role model.Role) (int, error)
}

type followService struct {
	repo  repository.FollowRepository
	cache *cache.FollowCache
	bus   *event.Bus
	cfg   Config
	sf    singleflight.Group
}

func NewFollowService(repo repository.FollowRepository, fc *cache.FollowCache, bus *event.Bus, cfg Config) FollowService {
	if fc == nil {
		fc = cache.NewFollowCache(nil)
	}
	if bus == nil {
		bus = event.NewBus()
	}
	return &followService{repo: repo, cache: fc, bus: bus, cfg: cfg}
}

func (s *followService) checkPair(leaderID, followerID int64, ft model.FollowType) error {
	if leaderID <= 0 || followerID <= 0 {
		return errors.WithMessagef(ErrInvalidArgument, "leader_id=%d follower_id=%d", leaderID, followerID)
	}
	if !s.cfg.AllowSelfFollow && ft == model.TypeUsers && leaderID == followerID {
		return ErrSelfFollow
	}
	return nil
}

func (s *followService) StartFollowing(ctx context.Context, leaderID, followerID int64, ft model.FollowType) (*model.Follow, error) {
	return s.StartFollowingAt(ctx, leaderID, followerID, ft, time.Time{})
}

func (s *followService) StartFollowingAt(ctx context.Context, leaderID, followerID int64, ft model.FollowType, recordedAt time.Time) (*model.Follow, error) {
	if err := s.checkPair(leaderID, followerID, ft); err != nil {
		return nil, err
	}
	existing, err := s.repo.Find(ctx, leaderID, followerID, ft)
	if err != nil {
		return nil, err
	}
	if existing != 0 {
		return nil, ErrAlreadyFollowing
	}

	f := &model.Follow{LeaderID: leaderID, FollowerID: followerID, FollowType: ft, DateRecorded: recordedAt}
	e, err := s.commit(ctx, func(repo repository.FollowRepository) (event.Event, error) {
		if err := repo.Create(ctx, f); err != nil {
			return event.Event{}, err
		}
		return event.Event{Kind: event.FollowStarted, FollowType: ft, Edge: f}, nil
	})
	if err != nil {
		// 并发请求在唯一索引上落败
		if errors.Is(err, repository.ErrDuplicateEdge) {
			return nil, ErrAlreadyFollowing
		}
		return nil, err
	}

	s.invalidateEdge(ctx, leaderID, followerID, ft)
	s.publish(ctx, e)
	return f, nil
}

func (s *followService) StopFollowing(ctx context.Context, leaderID, followerID int64, ft model.FollowType) error {
	if leaderID <= 0 || followerID <= 0 {
		return errors.WithMessagef(ErrInvalidArgument, "leader_id=%d follower_id=%d", leaderID, followerID)
	}
	id, err := s.repo.Find(ctx, leaderID, followerID, ft)
	if err != nil {
		return err
	}
	if id == 0 {
		return ErrNotFollowing
	}
	edge, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if edge == nil {
		edge = &model.Follow{ID: id, LeaderID: leaderID, FollowerID: followerID, FollowType: ft}
	}
	e, err := s.commit(ctx, func(repo repository.FollowRepository) (event.Event, error) {
		deleted, err := repo.Delete(ctx, id)
		if err != nil {
			return event.Event{}, err
		}
		if !deleted {
			// 另一个请求已经删除
			return event.Event{}, ErrNotFollowing
		}
		return event.Event{Kind: event.FollowStopped, FollowType: ft, Edge: edge}, nil
	})
	if err != nil {
		return err
	}

	s.invalidateEdge(ctx, leaderID, followerID, ft)
	s.publish(ctx, e)
	return nil
}

func (s *followService) IsFollowing(ctx context.Context, leaderID, followerID int64, ft model.FollowType) (bool, error) {
	if leaderID <= 0 || followerID <= 0 {
		return false, errors.WithMessagef(ErrInvalidArgument, "leader_id=%d follower_id=%d", leaderID, followerID)
	}
	if id, ok, err := s.cache.Edge(ctx, ft, leaderID, followerID); err != nil {
		cacheReadFailed(err, "edge", ft)
	} else if ok {
		return id != 0, nil
	}

	key := fmt.Sprintf("edge:%s:%d:%d", ft, leaderID, followerID)
	v, err, _ := s.sf.Do(key, func() (any, error) {
		// 结果被同 key 的调用方共享，不能随第一个调用方取消
		sctx := context.WithoutCancel(ctx)
		id, err := s.repo.Find(sctx, leaderID, followerID, ft)
		if err != nil {
			return uint64(0), err
		}
		if err := s.cache.SetEdge(sctx, ft, leaderID, followerID, id); err != nil {
			cacheWriteFailed(err, "edge", ft)
		}
		return id, nil
	})
	if err != nil {
		return false, err
	}
	return v.(uint64) != 0, nil
}

func (s *followService) GetFollowing(ctx context.Context, followerID int64, ft model.FollowType, opts model.QueryOptions) ([]int64, error) {
	return s.list(ctx, cache.FollowingQuery, followerID, ft, opts, func(ctx context.Context) ([]int64, error) {
		return s.repo.ListFollowing(ctx, followerID, ft, opts)
	})
}

func (s *followService) GetFollowers(ctx context.Context, leaderID int64, ft model.FollowType, opts model.QueryOptions) ([]int64, error) {
	return s.list(ctx, cache.FollowersQuery, leaderID, ft, opts, func(ctx context.Context) ([]int64, error) {
		return s.repo.ListFollowers(ctx, []int64{leaderID}, ft, opts)
	})
}

// list 只有默认参数的结果走缓存
func (s *followService) list(ctx context.Context, p cache.Purpose, id int64, ft model.FollowType, opts model.QueryOptions, load func(context.Context) ([]int64, error)) ([]int64, error) {
	if id <= 0 {
		return nil, errors.WithMessagef(ErrInvalidArgument, "id=%d", id)
	}
	if err := opts.Validate(); err != nil {
		return nil, errors.WithMessage(ErrInvalidArgument, err.Error())
	}
	if !opts.IsDefault() {
		ids, err := load(ctx)
		return ids, mapQueryErr(err)
	}

	if ids, ok, err := s.cache.IDs(ctx, p, ft, id); err != nil {
		cacheReadFailed(err, string(p), ft)
	} else if ok {
		return ids, nil
	}

	key := fmt.Sprintf("%s:%s:%d", p, ft, id)
	v, err, _ := s.sf.Do(key, func() (any, error) {
		sctx := context.WithoutCancel(ctx)
		ids, err := load(sctx)
		if err != nil {
			return nil, err
		}
		if err := s.cache.SetIDs(sctx, p, ft, id, ids); err != nil {
			cacheWriteFailed(err, string(p), ft)
		}
		return ids, nil
	})
	if err != nil {
		return nil, mapQueryErr(err)
	}
	// singleflight 的结果被多个调用方共享
	return slices.Clone(v.([]int64)), nil
}

func (s *followService) GetCounts(ctx context.Context, id int64, ft model.FollowType) (model.Counts, error) {
	if id <= 0 {
		return model.Counts{}, errors.WithMessagef(ErrInvalidArgument, "id=%d", id)
	}
	var counts model.Counts
	if ft == model.TypeUsers {
		n, err := s.count(ctx, cache.FollowersCount, id, ft, s.repo.CountFollowers)
		if err != nil {
			return model.Counts{}, err
		}
		counts.Followers = n
	}
	n, err := s.count(ctx, cache.FollowingCount, id, ft, s.repo.CountFollowing)
	if err != nil {
		return model.Counts{}, err
	}
	counts.Following = n
	return counts, nil
}

func (s *followService) count(ctx context.Context, p cache.Purpose, id int64, ft model.FollowType, load func(context.Context, int64, model.FollowType) (int64, error)) (int64, error) {
	if n, ok, err := s.cache.Count(ctx, p, ft, id); err != nil {
		cacheReadFailed(err, string(p), ft)
	} else if ok {
		return n, nil
	}

	key := fmt.Sprintf("%s:%s:%d", p, ft, id)
	v, err, _ := s.sf.Do(key, func() (any, error) {
		sctx := context.WithoutCancel(ctx)
		n, err := load(sctx, id, ft)
		if err != nil {
			return int64(0), err
		}
		if err := s.cache.SetCount(sctx, p, ft, id, n); err != nil {
			cacheWriteFailed(err, string(p), ft)
		}
		return n, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func (s *followService) BulkCheckFollowStatus(ctx context.Context, leaderIDs []int64, followerID int64, ft model.FollowType) (map[int64]uint64, error) {
	if followerID <= 0 {
		return nil, errors.WithMessagef(ErrInvalidArgument, "follower_id=%d", followerID)
	}
	ids := repository.SanitizeIDs(leaderIDs)
	status, err := s.repo.BulkCheckStatus(ctx, ids, followerID, ft)
	if err != nil {
		return nil, err
	}
	if err := s.cache.PrimeEdges(ctx, ft, followerID, ids, status); err != nil {
		cacheWriteFailed(err, "edge", ft)
	}
	return status, nil
}

func (s *followService) RemoveEntity(ctx context.Context, id int64, ft model.FollowType, role model.Role) (int, error) {
	if id <= 0 || !role.Valid() {
		return 0, errors.WithMessagef(ErrInvalidArgument, "id=%d role=%q", id, role)
	}
	// 先删除再失效，避免读者用即将删除的行回填缓存
	var removed []model.Follow
	e, err := s.commit(ctx, func(repo repository.FollowRepository) (event.Event, error) {
		var err error
		if removed, err = repo.DeleteAllForEntity(ctx, id, ft, role); err != nil {
			return event.Event{}, err
		}
		return event.Event{Kind: event.EntityRemoved, FollowType: ft, EntityID: id, Role: role, Removed: len(removed)}, nil
	})
	if err != nil {
		return 0, err
	}
	if err := s.cache.InvalidateEntity(ctx, id, ft, role, removed); err != nil {
		logger.Error("cascade invalidation failed",
			zap.Int64("entity_id", id),
			zap.String("follow_type", ft.String()),
			zap.String("role", string(role)),
			zap.Int("edges", len(removed)),
			zap.Error(err))
	}
	s.publish(ctx, e)
	return len(removed), nil
}

func (s *followService) invalidateEdge(ctx context.Context, leaderID, followerID int64, ft model.FollowType) {
	if err := s.cache.InvalidateEdge(ctx, leaderID, followerID, ft); err != nil {
		logger.Error("cache invalidation failed",
			zap.Int64("leader_id", leaderID),
			zap.Int64("follower_id", followerID),
			zap.String("follow_type", ft.String()),
			zap.Error(err))
	}
}

// publish 写入已提交，订阅方失败只记录日志
func (s *followService) publish(ctx context.Context, e event.Event) {
	if err := s.bus.Publish(ctx, e); err != nil {
		logger.Error("event handler failed", zap.String("topic", e.Topic()), zap.Error(err))
	}
}

func cacheReadFailed(err error, purpose string, ft model.FollowType) {
	logger.Warn("cache read failed, falling back to store",
		zap.String("purpose", purpose), zap.String("follow_type", ft.String()), zap.Error(err))
}

func cacheWriteFailed(err error, purpose string, ft model.FollowType) {
	logger.Warn("cache populate failed",
		zap.String("purpose", purpose), zap.String("follow_type", ft.String()), zap.Error(err))
}

func mapQueryErr(err error) error {
	if err != nil && errors.Is(err, repository.ErrInvalidQuery) {
		return errors.WithMessage(ErrInvalidArgument, err.Error())
	}
	return err
}
