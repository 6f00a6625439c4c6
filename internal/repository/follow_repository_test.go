package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/d60-Lab/followgraph/internal/model"
)

func setupTestDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 每个连接都是独立的内存库
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, AutoMigrate(db))
	return db
}

var refTime = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, repo FollowRepository, leader, follower int64, ft model.FollowType, at time.Time) uint64 {
	t.Helper()
	f := &model.Follow{LeaderID: leader, FollowerID: follower, FollowType: ft, DateRecorded: at}
	require.NoError(t, repo.Create(context.Background(), f))
	require.NotZero(t, f.ID)
	return f.ID
}

func TestFollowRepository_CreateFindGetDelete(t *testing.T) {
	repo := NewFollowRepository(setupTestDB(t))
	ctx := context.Background()

	id := seed(t, repo, 1, 2, model.TypeUsers, refTime)

	got, err := repo.Find(ctx, 1, 2, model.TypeUsers)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	// 类型是独立命名空间
	got, err = repo.Find(ctx, 1, 2, model.TypeBlogs)
	require.NoError(t, err)
	assert.Zero(t, got)

	f, err := repo.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, int64(1), f.LeaderID)
	assert.Equal(t, int64(2), f.FollowerID)
	assert.True(t, f.DateRecorded.Equal(refTime))

	missing, err := repo.Get(ctx, id+100)
	require.NoError(t, err)
	assert.Nil(t, missing)

	ok, err := repo.Delete(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Delete(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFollowRepository_CreateDefaultsDate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewFollowRepositoryWithClock(db, func() time.Time { return refTime })

	f := &model.Follow{LeaderID: 5, FollowerID: 6}
	require.NoError(t, repo.Create(context.Background(), f))
	assert.True(t, f.DateRecorded.Equal(refTime))
}

func TestFollowRepository_DuplicateEdge(t *testing.T) {
	repo := NewFollowRepository(setupTestDB(t))
	ctx := context.Background()
	seed(t, repo, 1, 2, model.TypePosts, refTime)

	err := repo.Create(ctx, &model.Follow{LeaderID: 1, FollowerID: 2, FollowType: model.TypePosts})
	assert.ErrorIs(t, err, ErrDuplicateEdge)

	var se *StoreError
	assert.False(t, errors.As(err, &se))

	// 不同类型不冲突
	require.NoError(t, repo.Create(ctx, &model.Follow{LeaderID: 1, FollowerID: 2, FollowType: model.TypeBlogs}))
}

func TestFollowRepository_Update(t *testing.T) {
	repo := NewFollowRepository(setupTestDB(t))
	ctx := context.Background()
	id := seed(t, repo, 1, 2, model.TypeUsers, refTime)

	later := refTime.Add(time.Hour)
	require.NoError(t, repo.Update(ctx, &model.Follow{ID: id, LeaderID: 1, FollowerID: 3, DateRecorded: later}))

	f, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(3), f.FollowerID)
	assert.True(t, f.DateRecorded.Equal(later))
}

func TestFollowRepository_ListsAndCounts(t *testing.T) {
	repo := NewFollowRepository(setupTestDB(t))
	ctx := context.Background()

	seed(t, repo, 1, 10, model.TypeUsers, refTime)
	seed(t, repo, 1, 11, model.TypeUsers, refTime)
	seed(t, repo, 2, 10, model.TypeUsers, refTime)
	seed(t, repo, 1, 12, model.TypeBlogs, refTime)

	followers, err := repo.ListFollowers(ctx, []int64{1}, model.TypeUsers, model.QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 11}, followers)

	// 多个 leader 合并查询
	followers, err = repo.ListFollowers(ctx, []int64{1, 2, 2, -1}, model.TypeUsers, model.QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 11, 10}, followers)

	empty, err := repo.ListFollowers(ctx, []int64{0, -5}, model.TypeUsers, model.QueryOptions{})
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	following, err := repo.ListFollowing(ctx, 10, model.TypeUsers, model.QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, following)

	following, err = repo.ListFollowing(ctx, 12, model.TypeBlogs, model.QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, following)

	n, err := repo.CountFollowers(ctx, 1, model.TypeUsers)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = repo.CountFollowing(ctx, 10, model.TypeUsers)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = repo.CountFollowing(ctx, 99, model.TypeUsers)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFollowRepository_PaginationAndOrder(t *testing.T) {
	repo := NewFollowRepository(setupTestDB(t))
	ctx := context.Background()
	for i := int64(1); i <= 5; i++ {
		seed(t, repo, 100, i, model.TypeUsers, refTime.Add(-time.Duration(i)*time.Hour))
	}

	page2, err := repo.ListFollowers(ctx, []int64{100}, model.TypeUsers, model.QueryOptions{Page: 2, PerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 4}, page2)

	desc, err := repo.ListFollowers(ctx, []int64{100}, model.TypeUsers, model.QueryOptions{Order: "desc"})
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 4, 3, 2, 1}, desc)

	byDate, err := repo.ListFollowers(ctx, []int64{100}, model.TypeUsers, model.QueryOptions{OrderBy: "date_recorded"})
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 4, 3, 2, 1}, byDate)

	// 非白名单字段回落到 id
	bogus, err := repo.ListFollowers(ctx, []int64{100}, model.TypeUsers, model.QueryOptions{OrderBy: "1; DROP TABLE follows"})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, bogus)
}

func TestFollowRepository_DateFilter(t *testing.T) {
	db := setupTestDB(t)
	repo := NewFollowRepositoryWithClock(db, func() time.Time { return refTime })
	ctx := context.Background()

	seed(t, repo, 1, 1, model.TypeUsers, time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))
	seed(t, repo, 1, 2, model.TypeUsers, time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC))
	seed(t, repo, 1, 3, model.TypeUsers, time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC))

	ids, err := repo.ListFollowers(ctx, []int64{1}, model.TypeUsers, model.QueryOptions{
		Date: &model.DateQuery{After: "2024-03-02"},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, ids)

	ids, err = repo.ListFollowers(ctx, []int64{1}, model.TypeUsers, model.QueryOptions{
		Date: &model.DateQuery{After: "2024-03-01", Before: "2024-03-05", Inclusive: true},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids)

	ids, err = repo.ListFollowers(ctx, []int64{1}, model.TypeUsers, model.QueryOptions{
		Date: &model.DateQuery{After: "1 day ago"},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, ids)

	_, err = repo.ListFollowers(ctx, []int64{1}, model.TypeUsers, model.QueryOptions{
		Date: &model.DateQuery{Before: "not a date"},
	})
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestFollowRepository_BulkCheckStatus(t *testing.T) {
	repo := NewFollowRepository(setupTestDB(t))
	ctx := context.Background()

	a := seed(t, repo, 10, 1, model.TypePosts, refTime)
	b := seed(t, repo, 30, 1, model.TypePosts, refTime)
	seed(t, repo, 20, 1, model.TypeUsers, refTime)

	status, err := repo.BulkCheckStatus(ctx, []int64{10, 20, 30, 40}, 1, model.TypePosts)
	require.NoError(t, err)
	assert.Equal(t, map[int64]uint64{10: a, 30: b}, status)

	status, err = repo.BulkCheckStatus(ctx, nil, 1, model.TypePosts)
	require.NoError(t, err)
	assert.Empty(t, status)
}

func TestFollowRepository_DeleteAllForEntity(t *testing.T) {
	repo := NewFollowRepository(setupTestDB(t))
	ctx := context.Background()

	seed(t, repo, 7, 1, model.TypeUsers, refTime)
	seed(t, repo, 7, 2, model.TypeUsers, refTime)
	seed(t, repo, 3, 7, model.TypeUsers, refTime)
	seed(t, repo, 9, 7, model.TypeBlogs, refTime)

	removed, err := repo.DeleteAllForEntity(ctx, 7, model.TypeUsers, model.RoleLeader)
	require.NoError(t, err)
	assert.Len(t, removed, 2)

	n, err := repo.CountFollowing(ctx, 7, model.TypeUsers)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	removed, err = repo.DeleteAllForEntity(ctx, 7, model.TypeUsers, model.RoleBoth)
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, int64(3), removed[0].LeaderID)

	// 其他类型不受影响
	n, err = repo.CountFollowing(ctx, 7, model.TypeBlogs)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	removed, err = repo.DeleteAllForEntity(ctx, 7, model.TypeUsers, model.RoleFollower)
	require.NoError(t, err)
	assert.Empty(t, removed)

	_, err = repo.DeleteAllForEntity(ctx, 7, model.TypeUsers, model.Role("owner"))
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestFollowRepository_StoreError(t *testing.T) {
	db := setupTestDB(t)
	repo := NewFollowRepository(db)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = repo.CountFollowers(context.Background(), 1, model.TypeUsers)
	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "count followers", se.Op)
}

func TestSanitizeIDs(t *testing.T) {
	assert.Equal(t, []int64{3, 1, 2}, SanitizeIDs([]int64{3, 0, 1, -4, 3, 2, 1}))
	assert.Empty(t, SanitizeIDs(nil))
}
