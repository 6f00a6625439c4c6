package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/getsentry/sentry-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/followgraph/config"
	"github.com/d60-Lab/followgraph/internal/api"
	"github.com/d60-Lab/followgraph/internal/api/handler"
	"github.com/d60-Lab/followgraph/internal/cache"
	"github.com/d60-Lab/followgraph/internal/consumer"
	"github.com/d60-Lab/followgraph/internal/event"
	"github.com/d60-Lab/followgraph/internal/followtype"
	"github.com/d60-Lab/followgraph/internal/model"
	"github.com/d60-Lab/followgraph/internal/repository"
	"github.com/d60-Lab/followgraph/internal/service"
	"github.com/d60-Lab/followgraph/internal/sink"
	"github.com/d60-Lab/followgraph/pkg/database"
	"github.com/d60-Lab/followgraph/pkg/logger"
	"github.com/d60-Lab/followgraph/pkg/tracing"
)

// @title followgraph API
// @version 1.0
// @description 关注关系服务：用户、站点、活动、文章多类型关注
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			Environment:      cfg.Sentry.Environment,
			AttachStacktrace: true,
		}); err != nil {
			logger.Warn("sentry init failed", zap.Error(err))
		}
		defer sentry.Flush(2 * time.Second)
	}

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		logger.Fatal("init tracing", zap.Error(err))
	}

	db, err := database.InitDB(cfg)
	if err != nil {
		logger.Fatal("init database", zap.Error(err))
	}
	if err := repository.AutoMigrate(db); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	defer rdb.Close()

	var backend cache.Backend
	if cfg.Cache.Enabled {
		if err := rdb.Ping(ctx).Err(); err != nil {
			// 缓存不可用时读路径回落到数据库
			logger.Warn("redis unavailable, reads fall back to the store", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		backend = cache.NewRedisBackend(rdb, cfg.Cache.Prefix, cfg.Cache.Scope, cfg.Cache.TTL)
	}
	fc := cache.NewFollowCache(backend)
	bus := event.NewBus()

	svc := service.NewFollowService(repository.NewFollowRepository(db), fc, bus, service.Config{
		AllowSelfFollow: cfg.Follow.AllowSelfFollow,
		DurableEvents:   cfg.Outbox.Enabled,
	})

	var remover service.EntityRemover = svc
	var stopCascade func(context.Context) error
	if cfg.Cascade.Async {
		queue := service.NewCascadeQueue(svc, cfg.Cascade.QueueSize, cfg.Cascade.JobTimeout).
			WithRetry(cfg.Cascade.MaxAttempts, cfg.Cascade.RetryBackoff)
		stopCascade = queue.Start(cfg.Cascade.Workers)
		remover = queue
	}

	registry := followtype.NewRegistry(fc, bus, remover)
	for _, m := range followtype.Defaults() {
		if err := registry.Register(m); err != nil {
			logger.Fatal("register follow type", zap.Error(err))
		}
	}
	for _, et := range cfg.Follow.ExtraTypes {
		if err := registry.Register(followtype.Custom(model.FollowType(et.Type), et.Name, et.LeaderKind)); err != nil {
			logger.Fatal("register extra follow type", zap.String("type", et.Type), zap.Error(err))
		}
	}

	var stopRelay func(context.Context) error
	var closeSink func() error
	if cfg.Outbox.Enabled {
		// 事件由 FollowService 在写事务内落表，这里只负责投递
		outbox := repository.NewOutboxRepositoryWithLease(db, cfg.Outbox.Lease, time.Now)

		es, closer, err := newSink(cfg, rdb)
		if err != nil {
			logger.Fatal("init event sink", zap.String("sink", cfg.Outbox.Sink), zap.Error(err))
		}
		closeSink = closer
		relay := service.NewRelayWorker(outbox, es, cfg.Outbox.Workers, cfg.Outbox.ClaimLimit,
			cfg.Outbox.MaxAttempts, cfg.Outbox.PollInterval)
		stopRelay = relay.Start()
		logger.Info("outbox relay started", zap.String("sink", cfg.Outbox.Sink))
	}

	var group sarama.ConsumerGroup
	consumerDone := make(chan struct{})
	if cfg.Kafka.EntityTopic != "" && len(cfg.Kafka.Brokers) > 0 {
		group, err = sarama.NewConsumerGroup(cfg.Kafka.Brokers, cfg.Kafka.GroupID, consumer.NewConsumerConfig())
		if err != nil {
			logger.Fatal("init kafka consumer", zap.Error(err))
		}
		go func() {
			defer close(consumerDone)
			consumer.Run(ctx, group, []string{cfg.Kafka.EntityTopic}, consumer.NewEntityConsumer(registry.HooksWith(svc)))
		}()
		logger.Info("entity consumer started", zap.String("topic", cfg.Kafka.EntityTopic))
	} else {
		close(consumerDone)
	}

	router := api.SetupRouter(handler.NewHandler(svc, registry), cfg)
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	if group != nil {
		if err := group.Close(); err != nil {
			logger.Error("close kafka consumer", zap.Error(err))
		}
	}
	<-consumerDone
	// 先停级联队列，它产生的事件还要进 outbox
	if stopCascade != nil {
		if err := stopCascade(shutdownCtx); err != nil {
			logger.Error("drain cascade queue", zap.Error(err))
		}
	}
	if stopRelay != nil {
		if err := stopRelay(shutdownCtx); err != nil {
			logger.Error("stop outbox relay", zap.Error(err))
		}
	}
	if closeSink != nil {
		if err := closeSink(); err != nil {
			logger.Error("close event sink", zap.Error(err))
		}
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("shutdown tracing", zap.Error(err))
	}
}

// newSink 按配置选择投递目标
func newSink(cfg *config.Config, rdb redis.UniversalClient) (service.EventSink, func() error, error) {
	switch cfg.Outbox.Sink {
	case "kafka":
		ks, err := sink.DialKafkaSink(cfg.Kafka.Brokers, cfg.Outbox.TopicPrefix)
		if err != nil {
			return nil, nil, err
		}
		return ks, ks.Close, nil
	case "redis":
		return sink.NewRedisSink(rdb, cfg.Outbox.TopicPrefix), func() error { return nil }, nil
	case "log", "":
		return sink.LogSink{}, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown sink %q", cfg.Outbox.Sink)
	}
}
