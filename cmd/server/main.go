package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/asmb123/voting-workshop-bhu/api"
	"github.com/asmb123/voting-workshop-bhu/cache"
	"github.com/asmb123/voting-workshop-bhu/config"
	"github.com/asmb123/voting-workshop-bhu/database"
	"github.com/asmb123/voting-workshop-bhu/identity"
	"github.com/asmb123/voting-workshop-bhu/ledger"
	"github.com/asmb123/voting-workshop-bhu/mq"
	"github.com/asmb123/voting-workshop-bhu/repository"
	"github.com/asmb123/voting-workshop-bhu/routes"
	"github.com/asmb123/voting-workshop-bhu/service"
	"github.com/asmb123/voting-workshop-bhu/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := newLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.Database, logger)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer func() { _ = database.Close(db) }()

	checks := map[string]api.Pinger{
		"database": func(context.Context) error { return database.Ping(db) },
	}

	// 默认使用进程内的锁和限流，Redis可用时切换为分布式实现
	var locker cache.Locker = cache.NewLocalLockService()
	var voteLimiter cache.RateLimiter = cache.NewLocalRateLimiter(cfg.RateLimit.VotesPerSecond, cfg.RateLimit.Burst)

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Warn("redis unavailable, using in-process locks and no read cache", zap.Error(err))
		redisClient = nil
	} else {
		defer func() { _ = redisClient.Close() }()
		locker = cache.NewDistributedLockService(redisClient, cfg.Voting.LockExpiry, logger.Named("lock"))
		voteLimiter = cache.NewTokenBucketRateLimiter(redisClient, "votes", cfg.RateLimit.VotesPerSecond, cfg.RateLimit.Burst)
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	rt := ledger.NewRuntime(db, locker, ledger.SystemClock{}, logger.Named("ledger"))

	// 缓存失效排在其他发布者之前
	var publishers mq.Fanout
	var accounts repository.AccountRepository = repository.NewLedgerRepository(rt)
	if redisClient != nil {
		accounts, publishers = withRedis(redisClient, accounts, locker, cfg, logger)
	}

	if len(cfg.RocketMQ.NameServers) > 0 {
		rocket, err := mq.NewRocketPublisher(cfg.RocketMQ, logger.Named("rocketmq"))
		if err != nil {
			logger.Warn("rocketmq unavailable, events will not be sent to it", zap.Error(err))
		} else {
			defer func() { _ = rocket.Close() }()
			publishers = append(publishers, rocket)
		}
	}

	hub := websocket.NewHub(logger.Named("ws"))
	go hub.Run(ctx)
	publishers = append(publishers, hub)

	votingService := service.NewVotingService(rt, accounts, publishers, cfg.Voting.WindowPolicy, logger.Named("voting"))

	router := routes.SetupRouter(routes.Dependencies{
		Server:        cfg.Server,
		Logger:        logger.Named("http"),
		VotingService: votingService,
		Authenticator: identity.NewAuthenticator(cfg.Voting.TokenLeeway, cfg.Voting.TokenMaxTTL),
		VoteLimiter:   voteLimiter,
		Hub:           hub,
		HealthChecks:  checks,
	})
	srv := routes.StartServer(router, cfg.Server, logger)

	logger.Info("voting service started",
		zap.String("port", cfg.Server.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Bool("redis", redisClient != nil),
		zap.String("window_policy", string(cfg.Voting.WindowPolicy)))

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

// withRedis 在账户仓库外包一层Redis缓存，并返回缓存失效和事件队列两个发布者
func withRedis(client *redis.Client, accounts repository.AccountRepository, locker cache.Locker, cfg *config.Config, logger *zap.Logger) (repository.AccountRepository, mq.Fanout) {
	cached := repository.NewCachedAccountRepository(
		accounts,
		cache.NewHotCache(client, locker, cfg.Redis.CacheTTL, logger.Named("cache")),
		cache.NewBloomFilter(client, "poll_addresses", 5),
		logger.Named("repository"),
	)
	return cached, mq.Fanout{cached, mq.NewRedisPublisher(client, 0)}
}

func newLogger(level string) *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		config.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := config.Build()
	if err != nil {
		return zap.NewExample()
	}
	return logger
}
