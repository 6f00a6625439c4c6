package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/d60-Lab/followgraph/config"
	"github.com/d60-Lab/followgraph/internal/cache"
	"github.com/d60-Lab/followgraph/internal/model"
	"github.com/d60-Lab/followgraph/internal/repository"
	"github.com/d60-Lab/followgraph/internal/service"
	"github.com/d60-Lab/followgraph/pkg/database"
)

const (
	leaderCount   = 3
	followerCount = 20000
	requestCount  = 9000
	buttonPage    = 50
)

type request struct {
	leaderID int64
	counts   bool
}

// cachebench 对比无缓存、冷缓存、热缓存下的读路径延迟，以及逐个查询和批量查询关注状态。
// 使用 config 里的数据库和 redis（建议 postgres）。
func main() {
	ctx := context.Background()

	cfg := must(config.Load())
	db := must(database.InitDB(cfg))
	// 默认不删表，BENCH_RESET=1 时才清空已有关系
	if must(database.ResetIfRequested(db, "follows")) {
		fmt.Println("Dropped existing follows table")
	}
	mustDo(repository.AutoMigrate(db))

	fmt.Println("Setting up test data...")
	seed(db)
	fmt.Printf("Test data ready: %d leaders, %d followers, overlapping\n", leaderCount, followerCount)

	client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		panic(fmt.Sprintf("Failed to connect to Redis at %s: %v", cfg.Redis.Addr, err))
	}

	repo := repository.NewFollowRepository(db)
	redisCache := cache.NewFollowCache(cache.NewRedisBackend(client, "bench", "", 10*time.Minute))
	redisCache.RegisterType(model.TypeUsers)

	noCacheSvc := service.NewFollowService(repo, cache.NewFollowCache(nil), nil, service.Config{})
	cachedSvc := service.NewFollowService(repo, redisCache, nil, service.Config{})

	reqs := makeRequests(requestCount)
	read := func(svc service.FollowService) func(context.Context, request) error {
		return func(ctx context.Context, r request) error {
			if r.counts {
				_, err := svc.GetCounts(ctx, r.leaderID, model.TypeUsers)
				return err
			}
			_, err := svc.GetFollowers(ctx, r.leaderID, model.TypeUsers, model.QueryOptions{})
			return err
		}
	}

	noCache := runScenario(ctx, client, reqs, false, read(noCacheSvc))
	cold := runScenario(ctx, client, reqs, false, read(cachedSvc))
	warm := runScenario(ctx, client, reqs, true, read(cachedSvc))

	fmt.Printf("\nFollower reads (%d req across %d leaders, %d followers, %s + Redis)\n",
		requestCount, leaderCount, followerCount, db.Dialector.Name())
	report("No cache", noCache)
	report("Cold cache", cold)
	report("Warm cache", warm)

	// 关注按钮：一页 50 个 leader，逐个查询 vs 一次批量查询
	viewers := makeViewers(500)
	leaders := make([]int64, buttonPage)
	for i := range leaders {
		leaders[i] = int64(i + 1)
	}
	perItem := runStatus(ctx, client, viewers, func(ctx context.Context, viewer int64) error {
		for _, l := range leaders {
			if _, err := cachedSvc.IsFollowing(ctx, l, viewer, model.TypeUsers); err != nil {
				return err
			}
		}
		return nil
	})
	bulk := runStatus(ctx, client, viewers, func(ctx context.Context, viewer int64) error {
		_, err := noCacheSvc.BulkCheckFollowStatus(ctx, leaders, viewer, model.TypeUsers)
		return err
	})

	fmt.Printf("\nFollow button page (%d leaders x %d viewers)\n", buttonPage, len(viewers))
	report("Per-item cached", perItem)
	report("Bulk query", bulk)
}

type scenarioResult struct {
	durations   []time.Duration
	cacheKeys   int
	memoryBytes int64
}

func report(name string, r scenarioResult) {
	fmt.Printf("%-18s avg=%v p95=%v p99=%v cache_keys=%d mem=%s\n",
		name, avg(r.durations), pct(r.durations, 0.95), pct(r.durations, 0.99),
		r.cacheKeys, formatBytes(r.memoryBytes))
}

func seed(db *gorm.DB) {
	base := time.Now()
	rows := make([]model.Follow, 0, followerCount*3/2)
	// leader i 的粉丝区间彼此重叠一半
	for l := int64(1); l <= leaderCount; l++ {
		start := (l - 1) * followerCount / 4
		for i := int64(0); i < followerCount/2; i++ {
			follower := leaderCount + 1 + (start+i)%followerCount
			rows = append(rows, model.Follow{
				LeaderID:     l,
				FollowerID:   follower,
				DateRecorded: base.Add(-time.Duration(i) * time.Second),
			})
		}
	}
	mustDo(db.CreateInBatches(&rows, 1000).Error)
}

func runScenario(ctx context.Context, client *redis.Client, reqs []request, warm bool, call func(context.Context, request) error) scenarioResult {
	client.FlushDB(ctx)

	if warm {
		fmt.Print("  Warming cache...")
		for _, r := range reqs {
			mustDo(call(ctx, r))
		}
		fmt.Println(" done")
	}

	fmt.Print("  Running benchmark...")
	out := make([]time.Duration, 0, len(reqs))
	for _, r := range reqs {
		start := time.Now()
		mustDo(call(ctx, r))
		out = append(out, time.Since(start))
	}
	fmt.Println(" done")
	return measure(ctx, client, out)
}

func runStatus(ctx context.Context, client *redis.Client, viewers []int64, call func(context.Context, int64) error) scenarioResult {
	client.FlushDB(ctx)
	out := make([]time.Duration, 0, len(viewers))
	for _, v := range viewers {
		start := time.Now()
		mustDo(call(ctx, v))
		out = append(out, time.Since(start))
	}
	return measure(ctx, client, out)
}

func measure(ctx context.Context, client *redis.Client, durations []time.Duration) scenarioResult {
	keys, _ := client.DBSize(ctx).Result()
	var memBytes int64
	if info, err := client.Info(ctx, "memory").Result(); err == nil {
		memBytes = parseRedisMemory(info)
	}
	return scenarioResult{durations: durations, cacheKeys: int(keys), memoryBytes: memBytes}
}

// parseRedisMemory extracts used_memory from Redis INFO
func parseRedisMemory(info string) int64 {
	for _, line := range strings.Split(info, "\n") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(line), "used_memory:"); ok {
			n, _ := strconv.ParseInt(v, 10, 64)
			return n
		}
	}
	return 0
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func makeRequests(n int) []request {
	out := make([]request, n)
	rnd := rand.New(rand.NewSource(42))
	for i := 0; i < n; i++ {
		out[i] = request{
			leaderID: 1 + rnd.Int63n(leaderCount),
			// 计数请求比列表请求多
			counts: rnd.Float64() < 0.7,
		}
	}
	return out
}

func makeViewers(n int) []int64 {
	out := make([]int64, n)
	rnd := rand.New(rand.NewSource(7))
	for i := range out {
		out[i] = leaderCount + 1 + rnd.Int63n(followerCount)
	}
	return out
}

func avg(vs []time.Duration) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	var sum time.Duration
	for _, v := range vs {
		sum += v
	}
	return sum / time.Duration(len(vs))
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), vs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func mustDo(err error) {
	if err != nil {
		panic(err)
	}
}
