package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/d60-Lab/followgraph/config"
	"github.com/d60-Lab/followgraph/internal/model"
	"github.com/d60-Lab/followgraph/internal/repository"
	"github.com/d60-Lab/followgraph/internal/service"
	"github.com/d60-Lab/followgraph/pkg/database"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func envInt(name string, def int) int {
	if s := os.Getenv(name); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			return v
		}
	}
	return def
}

// relbench 关注写入延迟 + 大 V 删除时同步级联和异步队列的对比
func main() {
	cfg := must(config.Load())
	db := must(database.InitDB(cfg))
	// 默认不删表，BENCH_RESET=1 时才清空已有关系
	if must(database.ResetIfRequested(db, "follows")) {
		fmt.Println("Dropped existing follows table")
	}
	if err := repository.AutoMigrate(db); err != nil {
		panic(err)
	}

	N := envInt("N", 10000)
	CONC := envInt("CONC", 8)
	PAGE := envInt("PAGE", 50)
	LEADERS := envInt("LEADERS", 10)
	FANS := envInt("FANS", 5000)

	ctx := context.Background()
	repo := repository.NewFollowRepository(db)
	svc := service.NewFollowService(repo, nil, nil, service.Config{})

	// leader 1 是明星用户，N 个用户并发关注
	const celeb int64 = 1
	feed := make(chan int64, N)
	for i := 0; i < N; i++ {
		feed <- int64(i) + 1_000_000
	}
	close(feed)
	followCh := make(chan time.Duration, N)
	t0 := time.Now()
	var wg sync.WaitGroup
	for w := 0; w < min(CONC, N); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for follower := range feed {
				st := time.Now()
				if _, err := svc.StartFollowing(ctx, celeb, follower, model.TypeUsers); err != nil {
					panic(err)
				}
				followCh <- time.Since(st)
			}
		}()
	}
	wg.Wait()
	close(followCh)
	followDur := time.Since(t0)
	followRecs := make([]time.Duration, 0, N)
	for d := range followCh {
		followRecs = append(followRecs, d)
	}

	q0 := time.Now()
	_ = must(svc.GetFollowers(ctx, celeb, model.TypeUsers, model.QueryOptions{Page: 1, PerPage: PAGE, Order: "DESC"}))
	pageDur := time.Since(q0)
	q1 := time.Now()
	counts := must(svc.GetCounts(ctx, celeb, model.TypeUsers))
	countDur := time.Since(q1)

	// 2*LEADERS 个 leader，每个 FANS 个粉丝；一半同步删，一半走异步队列
	rows := make([]model.Follow, 0, 2*LEADERS*FANS)
	now := time.Now()
	for l := 0; l < 2*LEADERS; l++ {
		for f := 0; f < FANS; f++ {
			rows = append(rows, model.Follow{LeaderID: int64(100 + l), FollowerID: int64(2_000_000 + f), DateRecorded: now})
		}
	}
	if err := db.CreateInBatches(&rows, 1000).Error; err != nil {
		panic(err)
	}

	t1 := time.Now()
	syncRemoved := 0
	for l := 0; l < LEADERS; l++ {
		syncRemoved += must(svc.RemoveEntity(ctx, int64(100+l), model.TypeUsers, model.RoleLeader))
	}
	syncDur := time.Since(t1)

	queue := service.NewCascadeQueue(svc, LEADERS*2, 5*time.Minute)
	stop := queue.Start(4)
	landing := make([]time.Duration, 0, LEADERS)
	doneMetrics := make(chan struct{})
	go func() {
		defer close(doneMetrics)
		for len(landing) < LEADERS {
			select {
			case d := <-queue.Metrics():
				landing = append(landing, d)
			case <-time.After(time.Minute):
				return
			}
		}
	}()
	maxQ := 0
	enqueue := make([]time.Duration, 0, LEADERS)
	for l := LEADERS; l < 2*LEADERS; l++ {
		st := time.Now()
		_ = must(queue.RemoveEntity(ctx, int64(100+l), model.TypeUsers, model.RoleLeader))
		enqueue = append(enqueue, time.Since(st))
		maxQ = max(maxQ, queue.QueueLen())
	}
	drainStart := time.Now()
	if err := stop(context.Background()); err != nil {
		panic(err)
	}
	drainDur := time.Since(drainStart)
	<-doneMetrics

	fmt.Printf("N=%d, CONC=%d, PAGE=%d, LEADERS=%d, FANS=%d\n", N, CONC, PAGE, LEADERS, FANS)
	fmt.Printf("Follow latency total: %v, per op: %v, p50: %v, p95: %v, p99: %v\n",
		followDur, followDur/time.Duration(N), pct(followRecs, 0.50), pct(followRecs, 0.95), pct(followRecs, 0.99))
	fmt.Printf("Followers page(%d): %v, counts(%d): %v\n", PAGE, pageDur, counts.Followers, countDur)
	fmt.Printf("Sync cascade: removed=%d total=%v per leader=%v\n",
		syncRemoved, syncDur, syncDur/time.Duration(LEADERS))
	fmt.Printf("Async cascade: enqueue p50=%v p99=%v, landing p50=%v p95=%v, maxQueue=%d, processed=%d, drain=%v\n",
		pct(enqueue, 0.50), pct(enqueue, 0.99), pct(landing, 0.50), pct(landing, 0.95),
		maxQ, queue.Processed(), drainDur)
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	xs := append([]time.Duration(nil), vs...)
	sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
	k := int(math.Ceil(p*float64(len(xs)))) - 1
	if k < 0 {
		k = 0
	}
	if k >= len(xs) {
		k = len(xs) - 1
	}
	return xs[k]
}
