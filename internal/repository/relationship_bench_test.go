package repository

import (
	"context"
	"math/rand"
	"testing"

	"github.com/d60-Lab/followgraph/internal/model"
)

func BenchmarkFollowWrite(b *testing.B) {
	repo := NewFollowRepository(setupTestDB(b))
	ctx := context.Background()
	r := rand.New(rand.NewSource(1))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		leader := r.Int63n(1000) + 1
		follower := r.Int63n(1000) + 1
		if leader == follower {
			continue
		}
		_ = repo.Create(ctx, &model.Follow{LeaderID: leader, FollowerID: follower})
	}
}

func BenchmarkFollowQueries(b *testing.B) {
	repo := NewFollowRepository(setupTestDB(b))
	ctx := context.Background()

	// 用户 1 有 N 个粉丝，同时关注 N 个用户
	const N = 5000
	leaders := make([]int64, 0, 100)
	for i := int64(2); i <= N+1; i++ {
		_ = repo.Create(ctx, &model.Follow{LeaderID: 1, FollowerID: i})
		_ = repo.Create(ctx, &model.Follow{LeaderID: i, FollowerID: 1})
		if len(leaders) < cap(leaders) {
			leaders = append(leaders, i)
		}
	}
	page := model.QueryOptions{Page: 1, PerPage: 50}

	b.ResetTimer()
	b.Run("ListFollowers", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_, _ = repo.ListFollowers(ctx, []int64{1}, model.TypeUsers, page)
		}
	})

	b.Run("ListFollowing", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_, _ = repo.ListFollowing(ctx, 1, model.TypeUsers, page)
		}
	})

	b.Run("CountFollowers", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_, _ = repo.CountFollowers(ctx, 1, model.TypeUsers)
		}
	})

	b.Run("Find_x100", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			for _, l := range leaders {
				_, _ = repo.Find(ctx, l, 1, model.TypeUsers)
			}
		}
	})

	b.Run("BulkCheckStatus_100", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_, _ = repo.BulkCheckStatus(ctx, leaders, 1, model.TypeUsers)
		}
	})
}
