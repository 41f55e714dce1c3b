// Package main 是应用程序的入口点。
package main

import (
	"ai-chat-go/internal/config"
	"ai-chat-go/internal/generation"
	"ai-chat-go/internal/handler"
	"ai-chat-go/internal/middleware"
	"ai-chat-go/internal/model"
	"ai-chat-go/internal/repository"
	"ai-chat-go/internal/service"
	"ai-chat-go/internal/stream"
	"ai-chat-go/pkg/database"
	"ai-chat-go/pkg/es"
	"ai-chat-go/pkg/kafka"
	"ai-chat-go/pkg/llm"
	"ai-chat-go/pkg/log"
	"ai-chat-go/pkg/storage"
	"ai-chat-go/pkg/tasks"
	"ai-chat-go/pkg/token"
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. 初始化数据库；Redis、Elasticsearch、Kafka、MinIO 都是可选依赖
	database.InitMySQL(cfg.Database.MySQL.DSN, model.All()...)
	rdb := connectRedis(ctx, cfg.Database.Redis)
	indexer := newIndexer(ctx, cfg.Elasticsearch)
	store := newObjectStore(ctx, cfg.MinIO)

	// 4. 初始化 Repository
	userRepo := repository.NewUserRepository(database.DB)
	chatRepo := repository.NewChatRepository(database.DB)
	messageRepo := repository.NewMessageRepository(database.DB)
	voteRepo := repository.NewVoteRepository(database.DB)
	streamRepo := repository.NewStreamRepository(database.DB)

	// 5. 模型调用引擎与工具
	tools := llm.NewToolRegistry()
	tools.Register(llm.NewWeatherTool(&http.Client{Timeout: 10 * time.Second}, ""))
	engine := llm.NewClient(cfg.LLM, tools)

	// 6. 可恢复流
	manager := stream.NewManager(newStreamProvider(cfg.Stream, rdb), cfg.Chat.MaxDuration)
	streams := service.NewStreamRegistry(streamRepo, nil)

	// 7. 标题任务：配置了 Kafka 时走消息队列，否则在进程内执行
	var attempts *tasks.Attempts
	if rdb != nil {
		attempts = tasks.NewAttempts(rdb)
	} else {
		attempts = tasks.NewAttempts(nil)
	}
	titleService := service.NewTitleService(chatRepo, engine, titleModel(cfg.LLM), cfg.LLM.Prompt.Title)
	var titles service.TitleDispatcher
	if cfg.Kafka.Brokers != "" {
		producer := kafka.NewProducer(cfg.Kafka)
		defer producer.Close()
		titles = producer
		go kafka.StartConsumer(ctx, cfg.Kafka, titleService, attempts)
	} else {
		log.Info("未配置 Kafka，标题任务将在进程内执行")
		titles = service.NewInlineTitleDispatcher(titleService, attempts)
	}

	// 8. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)
	services := handler.Services{
		Users: service.NewUserService(userRepo, jwtManager),
		Chats: service.NewChatService(service.ChatDeps{
			Chats:    chatRepo,
			Messages: messageRepo,
			Streams:  streams,
			Manager:  manager,
			Engine:   engine,
			Generation: generation.Options{
				SystemPrompt: cfg.LLM.Prompt.System,
				Tools:        tools.Names(),
				MaxSteps:     cfg.Chat.MaxSteps,
			},
			Models:  cfg.LLM.Models,
			Policy:  cfg.Chat,
			Titles:  titles,
			Indexer: indexer,
		}),
		Resume:        service.NewResumeService(chatRepo, messageRepo, streams, manager, cfg.Chat.ResumeWindow),
		Conversations: service.NewConversationService(chatRepo, messageRepo, indexer),
		Votes:         service.NewVoteService(chatRepo, voteRepo),
		Uploads:       service.NewUploadService(store),
	}

	// 9. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())
	handler.RegisterRoutes(r, services, jwtManager)

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	<-ctx.Done()
	log.Info("接收到停机信号，正在关闭服务...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	log.Info("服务已优雅关闭")
}

func connectRedis(ctx context.Context, cfg config.RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	rdb, err := database.NewRedis(ctx, cfg.Addr, cfg.Password, cfg.DB)
	if err != nil {
		log.Warnw("Redis 不可用，相关功能将降级", "error", err)
		return nil
	}
	log.Info("Redis connected successfully")
	return rdb
}

// newStreamProvider 根据 stream.backend 选择通道后端。Redis 不可用时的失败会被 Provider 记住。
func newStreamProvider(cfg config.StreamConfig, rdb *redis.Client) *stream.Provider {
	switch cfg.Backend {
	case "memory":
		return stream.Static(stream.NewMemoryBackend(cfg.ReclaimTTL))
	case "redis":
		return stream.NewProvider(func(ctx context.Context) (stream.Backend, error) {
			if rdb == nil {
				return nil, fmt.Errorf("stream backend redis requested but redis is not connected")
			}
			return stream.NewRedisBackend(rdb, stream.RedisOptions{
				KeyPrefix:    cfg.KeyPrefix,
				ActiveTTL:    cfg.ActiveTTL,
				ReclaimTTL:   cfg.ReclaimTTL,
				BlockTimeout: cfg.BlockTimeout,
			}), nil
		})
	default:
		return stream.Static(nil)
	}
}

func newIndexer(ctx context.Context, cfg config.ElasticsearchConfig) service.MessageIndexer {
	if cfg.Addresses == "" {
		return service.NopIndexer{}
	}
	client, err := es.NewClient(cfg)
	if err == nil {
		err = client.EnsureIndex(ctx)
	}
	if err != nil {
		log.Warnw("Elasticsearch 不可用，历史搜索已禁用", "error", err)
		return service.NopIndexer{}
	}
	return service.NewESIndexer(client)
}

func newObjectStore(ctx context.Context, cfg config.MinIOConfig) service.ObjectStore {
	if cfg.Endpoint == "" {
		return nil
	}
	client, err := storage.NewClient(ctx, cfg)
	if err != nil {
		log.Warnw("MinIO 不可用，附件上传已禁用", "error", err)
		return nil
	}
	return client
}

// titleModel 把配置的标题模型 ID 解析为供应商模型名。
func titleModel(cfg config.LLMConfig) string {
	if m, ok := cfg.Models[cfg.TitleModel]; ok {
		return m.Name
	}
	return cfg.TitleModel
}
