package service

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/d60-Lab/followgraph/internal/cache"
	"github.com/d60-Lab/followgraph/internal/event"
	"github.com/d60-Lab/followgraph/internal/model"
	"github.com/d60-Lab/followgraph/internal/repository"
)

type fixture struct {
	db    *gorm.DB
	mr    *miniredis.Miniredis
	repo  repository.FollowRepository
	cache *cache.FollowCache
	bus   *event.Bus
	svc   FollowService
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, repository.AutoMigrate(db))
	return db
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	db := setupTestDB(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	fc := cache.NewFollowCache(cache.NewRedisBackend(client, "test", "", 0))
	for _, ft := range []model.FollowType{model.TypeUsers, model.TypeBlogs, model.TypeActivity, model.TypePosts} {
		fc.RegisterType(ft)
	}
	repo := repository.NewFollowRepository(db)
	bus := event.NewBus()
	return &fixture{
		db:    db,
		mr:    mr,
		repo:  repo,
		cache: fc,
		bus:   bus,
		svc:   NewFollowService(repo, fc, bus, cfg),
	}
}

func TestFollowService_Scenario(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	edge, err := f.svc.StartFollowing(ctx, 1, 2, model.TypeUsers)
	require.NoError(t, err)
	assert.NotZero(t, edge.ID)
	assert.True(t, edge.HasRecordedDate())

	ok, err := f.svc.IsFollowing(ctx, 1, 2, model.TypeUsers)
	require.NoError(t, err)
	assert.True(t, ok)

	counts, err := f.svc.GetCounts(ctx, 1, model.TypeUsers)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Followers)

	_, err = f.svc.StartFollowing(ctx, 1, 2, model.TypeUsers)
	assert.ErrorIs(t, err, ErrAlreadyFollowing)

	require.NoError(t, f.svc.StopFollowing(ctx, 1, 2, model.TypeUsers))

	counts, err = f.svc.GetCounts(ctx, 1, model.TypeUsers)
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts.Followers)

	err = f.svc.StopFollowing(ctx, 1, 2, model.TypeUsers)
	assert.ErrorIs(t, err, ErrNotFollowing)
}

func TestFollowService_StartFollowingAt(t *testing.T) {
	f := newFixture(t, Config{})
	at := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)

	edge, err := f.svc.StartFollowingAt(context.Background(), 3, 4, model.TypeBlogs, at)
	require.NoError(t, err)
	assert.True(t, edge.DateRecorded.Equal(at))
}

func TestFollowService_TypeIsolation(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	_, err := f.svc.StartFollowing(ctx, 5, 2, model.TypeUsers)
	require.NoError(t, err)
	_, err = f.svc.StartFollowing(ctx, 5, 2, model.TypeBlogs)
	require.NoError(t, err)

	require.NoError(t, f.svc.StopFollowing(ctx, 5, 2, model.TypeBlogs))

	ok, err := f.svc.IsFollowing(ctx, 5, 2, model.TypeUsers)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.IsFollowing(ctx, 5, 2, model.TypeBlogs)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.svc.IsFollowing(ctx, 5, 2, model.TypePosts)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFollowService_InvalidArguments(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	_, err := f.svc.StartFollowing(ctx, 0, 2, model.TypeUsers)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.ErrorIs(t, f.svc.StopFollowing(ctx, 1, -1, model.TypeUsers), ErrInvalidArgument)
	_, err = f.svc.IsFollowing(ctx, 0, 0, model.TypeUsers)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = f.svc.GetFollowers(ctx, 0, model.TypeUsers, model.QueryOptions{})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = f.svc.GetCounts(ctx, -3, model.TypeUsers)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = f.svc.BulkCheckFollowStatus(ctx, []int64{1}, 0, model.TypeUsers)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = f.svc.RemoveEntity(ctx, 1, model.TypeUsers, model.Role("owner"))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = f.svc.GetFollowers(ctx, 1, model.TypeUsers, model.QueryOptions{OrderBy: "password"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = f.svc.GetFollowing(ctx, 1, model.TypeUsers, model.QueryOptions{Date: &model.DateQuery{After: "whenever"}})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	// 参数错误不触达存储
	var n int64
	require.NoError(t, f.db.Model(&model.Follow{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestFollowService_SelfFollowPolicy(t *testing.T) {
	ctx := context.Background()

	strict := newFixture(t, Config{})
	_, err := strict.svc.StartFollowing(ctx, 7, 7, model.TypeUsers)
	assert.ErrorIs(t, err, ErrSelfFollow)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	// 站点 7 与用户 7 不是同一实体
	_, err = strict.svc.StartFollowing(ctx, 7, 7, model.TypeBlogs)
	require.NoError(t, err)

	lax := newFixture(t, Config{AllowSelfFollow: true})
	_, err = lax.svc.StartFollowing(ctx, 7, 7, model.TypeUsers)
	require.NoError(t, err)
}

func TestFollowService_CacheInvalidatedOnWrite(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	// 先把"未关注"和计数读进缓存
	ok, err := f.svc.IsFollowing(ctx, 1, 2, model.TypeUsers)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = f.svc.GetCounts(ctx, 1, model.TypeUsers)
	require.NoError(t, err)
	followers, err := f.svc.GetFollowers(ctx, 1, model.TypeUsers, model.QueryOptions{})
	require.NoError(t, err)
	assert.Empty(t, followers)
	assert.True(t, f.mr.Exists("test:follow_edge:1:2"))
	assert.True(t, f.mr.Exists("test:follow_followers_query:1"))

	_, err = f.svc.StartFollowing(ctx, 1, 2, model.TypeUsers)
	require.NoError(t, err)
	assert.False(t, f.mr.Exists("test:follow_edge:1:2"))
	assert.False(t, f.mr.Exists("test:follow_followers_count:1"))

	ok, err = f.svc.IsFollowing(ctx, 1, 2, model.TypeUsers)
	require.NoError(t, err)
	assert.True(t, ok)

	followers, err = f.svc.GetFollowers(ctx, 1, model.TypeUsers, model.QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, followers)

	following, err := f.svc.GetFollowing(ctx, 2, model.TypeUsers, model.QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, following)
	assert.True(t, f.mr.Exists("test:follow_following_query:2"))
}

func TestFollowService_NonDefaultListsBypassCache(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	for i := int64(2); i <= 4; i++ {
		_, err := f.svc.StartFollowing(ctx, 1, i, model.TypeUsers)
		require.NoError(t, err)
	}

	page, err := f.svc.GetFollowers(ctx, 1, model.TypeUsers, model.QueryOptions{Page: 1, PerPage: 2, Order: "DESC"})
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 3}, page)
	assert.False(t, f.mr.Exists("test:follow_followers_query:1"))
}

func TestFollowService_NonUserFollowersAlwaysZero(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	_, err := f.svc.StartFollowing(ctx, 42, 1, model.TypePosts)
	require.NoError(t, err)
	_, err = f.svc.StartFollowing(ctx, 1, 42, model.TypePosts)
	require.NoError(t, err)

	counts, err := f.svc.GetCounts(ctx, 42, model.TypePosts)
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts.Followers)
	assert.Equal(t, int64(1), counts.Following)

	followers, err := f.svc.GetFollowers(ctx, 42, model.TypePosts, model.QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, followers)
}

func TestFollowService_BulkCheckFollowStatus(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	const follower = 9
	a, err := f.svc.StartFollowing(ctx, 1, follower, model.TypeUsers)
	require.NoError(t, err)
	c, err := f.svc.StartFollowing(ctx, 3, follower, model.TypeUsers)
	require.NoError(t, err)

	status, err := f.svc.BulkCheckFollowStatus(ctx, []int64{1, 2, 3, 4}, follower, model.TypeUsers)
	require.NoError(t, err)
	assert.Equal(t, map[int64]uint64{1: a.ID, 3: c.ID}, status)

	// 结果预热了关系缓存，包括未关注的
	id, ok, err := f.cache.Edge(ctx, model.TypeUsers, 2, follower)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, id)
	id, ok, err = f.cache.Edge(ctx, model.TypeUsers, 3, follower)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, c.ID, id)
}

func TestFollowService_RemoveEntityCascade(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	const u = 100
	leaders := []int64{1, 2, 3}
	for _, l := range leaders {
		_, err := f.svc.StartFollowing(ctx, l, u, model.TypeUsers)
		require.NoError(t, err)
	}
	_, err := f.svc.StartFollowing(ctx, 5, u, model.TypeBlogs)
	require.NoError(t, err)

	// 预热缓存
	for _, l := range leaders {
		counts, err := f.svc.GetCounts(ctx, l, model.TypeUsers)
		require.NoError(t, err)
		assert.Equal(t, int64(1), counts.Followers)
	}
	counts, err := f.svc.GetCounts(ctx, u, model.TypeUsers)
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts.Following)

	var removed []event.Event
	f.bus.SubscribeAll(event.EntityRemoved, func(_ context.Context, e event.Event) error {
		removed = append(removed, e)
		return nil
	})

	n, err := f.svc.RemoveEntity(ctx, u, model.TypeUsers, model.RoleBoth)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.False(t, f.mr.Exists("test:follow_following_count:100"))
	for _, l := range leaders {
		assert.False(t, f.mr.Exists("test:follow_followers_count:"+strconv.FormatInt(l, 10)))
		counts, err := f.svc.GetCounts(ctx, l, model.TypeUsers)
		require.NoError(t, err)
		assert.Zero(t, counts.Followers)
	}
	counts, err = f.svc.GetCounts(ctx, u, model.TypeUsers)
	require.NoError(t, err)
	assert.Zero(t, counts.Following)

	// blogs 类型的关系不受影响
	ok, err := f.svc.IsFollowing(ctx, 5, u, model.TypeBlogs)
	require.NoError(t, err)
	assert.True(t, ok)

	require.Len(t, removed, 1)
	assert.Equal(t, int64(u), removed[0].EntityID)
	assert.Equal(t, 3, removed[0].Removed)

	// 没有可删除的也不报错
	n, err = f.svc.RemoveEntity(ctx, u, model.TypeUsers, model.RoleBoth)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFollowService_EventsScopedByType(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	var posts, users []event.Event
	f.bus.Subscribe(event.FollowStarted, model.TypePosts, func(_ context.Context, e event.Event) error {
		posts = append(posts, e)
		return nil
	})
	f.bus.Subscribe(event.FollowStopped, model.TypeUsers, func(_ context.Context, e event.Event) error {
		users = append(users, e)
		return nil
	})

	_, err := f.svc.StartFollowing(ctx, 10, 1, model.TypePosts)
	require.NoError(t, err)
	_, err = f.svc.StartFollowing(ctx, 10, 1, model.TypeUsers)
	require.NoError(t, err)
	require.NoError(t, f.svc.StopFollowing(ctx, 10, 1, model.TypeUsers))

	require.Len(t, posts, 1)
	assert.Equal(t, int64(10), posts[0].Edge.LeaderID)
	require.Len(t, users, 1)
	assert.Equal(t, event.FollowStopped, users[0].Kind)
	assert.NotZero(t, users[0].Edge.ID)
}

func TestFollowService_ConcurrentStartCreatesOneEdge(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.StartFollowing(ctx, 1, 2, model.TypeUsers)
		}(i)
	}
	wg.Wait()

	success := 0
	for _, err := range errs {
		if err == nil {
			success++
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadyFollowing)
	}
	assert.Equal(t, 1, success)

	cnt, err := f.repo.CountFollowers(ctx, 1, model.TypeUsers)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cnt)
}

func TestFollowService_CacheDownFallsBackToStore(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	f.mr.SetError("LOADING server is loading")

	_, err := f.svc.StartFollowing(ctx, 1, 2, model.TypeUsers)
	require.NoError(t, err)

	ok, err := f.svc.IsFollowing(ctx, 1, 2, model.TypeUsers)
	require.NoError(t, err)
	assert.True(t, ok)

	counts, err := f.svc.GetCounts(ctx, 2, model.TypeUsers)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Following)
}

func TestFollowService_ReadsSurviveCanceledCaller(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.svc.StartFollowing(context.Background(), 1, 2, model.TypeUsers)
	require.NoError(t, err)

	// 回源在 singleflight 内执行，不受发起方取消影响
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err := f.svc.IsFollowing(ctx, 1, 2, model.TypeUsers)
	require.NoError(t, err)
	assert.True(t, ok)

	ids, err := f.svc.GetFollowers(ctx, 1, model.TypeUsers, model.QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids)

	counts, err := f.svc.GetCounts(ctx, 2, model.TypeUsers)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Following)
}
