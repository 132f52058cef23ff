package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Gopher0727/StudyGroup/config"
	"github.com/Gopher0727/StudyGroup/internal/cache"
	"github.com/Gopher0727/StudyGroup/internal/clock"
	"github.com/Gopher0727/StudyGroup/internal/consumer"
	"github.com/Gopher0727/StudyGroup/internal/events"
	"github.com/Gopher0727/StudyGroup/internal/handlers"
	"github.com/Gopher0727/StudyGroup/internal/metrics"
	"github.com/Gopher0727/StudyGroup/internal/repositories"
	"github.com/Gopher0727/StudyGroup/internal/routers"
	"github.com/Gopher0727/StudyGroup/internal/services"
	"github.com/Gopher0727/StudyGroup/internal/storage"
	"github.com/Gopher0727/StudyGroup/internal/utils"
	"github.com/Gopher0727/StudyGroup/middleware/jwt"
	logger "github.com/Gopher0727/StudyGroup/middleware/log"
	"github.com/Gopher0727/StudyGroup/pkg/mq"
	"github.com/Gopher0727/StudyGroup/utils/ratelimit"
	"github.com/Gopher0727/StudyGroup/utils/snowflake"
)

func main() {
	// .env 不存在时忽略，环境变量仍然生效
	_ = godotenv.Load()

	path := os.Getenv("STUDYGROUP_CONFIG")
	if path == "" {
		path = "./config.toml"
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		log.Fatalf("配置初始化失败: %v", err)
	}

	zlog, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		log.Fatalf("日志初始化失败: %v", err)
	}
	defer zlog.Close()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clk, err := clock.NewSystemFromName(cfg.Enrollment.Timezone)
	if err != nil {
		zlog.Fatal("时区配置错误", zap.Error(err))
	}

	// 初始化存储
	var store repositories.Store
	switch cfg.Storage.Driver {
	case "memory":
		zlog.Warn("使用内存存储，数据不会持久化")
		store = repositories.NewMemoryStore()
	default:
		db, err := storage.InitPostgres(&cfg.Postgres)
		if err != nil {
			zlog.Fatal("postgres 初始化失败", zap.Error(err))
		}
		store = repositories.NewGormStore(db)
	}
	if err := store.EnsureCategories(rootCtx, cfg.Enrollment.Categories); err != nil {
		zlog.Fatal("初始化分类失败", zap.Error(err))
	}

	// Redis 用于详情缓存和限流，关闭时两者都退化
	var (
		groupCache services.GroupCache = cache.Noop{}
		invalidate consumer.Invalidator = cache.Noop{}
		limiter    *ratelimit.WindowLimiter
	)
	if cfg.Redis.Enabled {
		redisClient, err := storage.InitRedis(&cfg.Redis)
		if err != nil {
			zlog.Fatal("redis 初始化失败", zap.Error(err))
		}
		defer redisClient.Close()

		gc := cache.NewGroupCache(redisClient, cfg.Enrollment.CacheTTL)
		groupCache, invalidate = gc, gc
		limiter = ratelimit.NewWindowLimiter(redisClient, zlog.Logger, cfg.RateLimit.FailOpen)
	}

	ids, err := snowflake.NewGenerator(cfg.Snowflake.DatacenterID, cfg.Snowflake.WorkerID)
	if err != nil {
		zlog.Fatal("snowflake 初始化失败", zap.Error(err))
	}

	// 事件: Kafka 可用时异步投递，否则进程内直接处理
	enrollmentConsumer := consumer.NewEnrollmentConsumer(invalidate, zlog)
	var publisher events.Publisher = events.NewDirectPublisher(enrollmentConsumer.Handle)
	var (
		producer      *mq.Producer
		kafkaConsumer *mq.Consumer
	)
	if cfg.Kafka.Enabled {
		producer, err = mq.NewProducer(&cfg.Kafka)
		if err != nil {
			zlog.Fatal("Kafka 生产者初始化失败", zap.Error(err))
		}
		publisher = events.NewKafkaPublisher(producer, cfg.Kafka.Topics.Enrollment, cfg.Kafka.Producer.MaxRetries)

		kafkaConsumer, err = mq.NewConsumer(&cfg.Kafka, []string{cfg.Kafka.Topics.Enrollment}, enrollmentConsumer.KafkaHandler(), zlog)
		if err != nil {
			zlog.Fatal("Kafka 消费者初始化失败", zap.Error(err))
		}
		if err := kafkaConsumer.Start(rootCtx); err != nil {
			zlog.Fatal("Kafka 消费者启动失败", zap.Error(err))
		}
	}

	m := metrics.New()

	// 协程池限制同时访问存储的请求数
	pool := utils.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, zlog)
	pool.Start()

	// 初始化服务层
	guard := services.NewMemberGuard()
	enrollment := services.NewEnrollmentService(store, clk, guard, services.NewLedger(ids, clk), publisher, m, zlog)
	query := services.NewGroupQueryService(store, clk, guard, groupCache, zlog)

	deps := routers.Deps{
		Log:      zlog,
		Metrics:  m,
		Tokens:   jwt.NewTokenManager(cfg.JWT.Secret, cfg.JWT.ExpireHours),
		Rules:    ratelimit.RulesFromConfig(&cfg.RateLimit),
		Pool:     pool,
		Timeout:  cfg.Server.RequestTimeout,
		Study:    handlers.NewStudyHandler(enrollment, query, zlog),
		Request:  handlers.NewRequestHandler(enrollment, zlog),
		Member:   handlers.NewMemberHandler(enrollment, query, zlog),
		Category: handlers.NewCategoryHandler(query, zlog),
	}
	if limiter != nil {
		deps.Limiter = limiter
	}

	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	routers.SetupRoutes(r, deps)

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		zlog.Info("正在启动服务器", zap.String("addr", srv.Addr), zap.String("storage", cfg.Storage.Driver),
			zap.Bool("redis", cfg.Redis.Enabled), zap.Bool("kafka", cfg.Kafka.Enabled))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Error("启动服务器失败", zap.Error(err))
			stop()
		}
	}()

	<-rootCtx.Done()
	zlog.Info("正在关闭服务器")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("关闭服务器失败", zap.Error(err))
	}

	// 先停协程池，排队中的请求处理完后再关闭事件通道
	pool.Stop()
	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			zlog.Warn("关闭 Kafka 消费者失败", zap.Error(err))
		}
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			zlog.Warn("关闭 Kafka 生产者失败", zap.Error(err))
		}
	}
}
