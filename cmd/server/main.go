// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"layla-insight-go/internal/config"
	"layla-insight-go/internal/handler"
	"layla-insight-go/internal/middleware"
	"layla-insight-go/internal/pipeline"
	"layla-insight-go/internal/repository"
	"layla-insight-go/internal/service"
	"layla-insight-go/pkg/database"
	"layla-insight-go/pkg/es"
	"layla-insight-go/pkg/kafka"
	"layla-insight-go/pkg/llm"
	"layla-insight-go/pkg/log"
	"layla-insight-go/pkg/storage"
	"layla-insight-go/pkg/token"
	"layla-insight-go/pkg/translate"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库和基础设施客户端
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	if err := es.InitES(cfg.Elasticsearch); err != nil {
		log.Errorf("es 初始化失败 %s", err)
		return
	}
	kafka.InitProducer(cfg.Kafka)

	// 4. 初始化 Repository
	userRepo := repository.NewUserRepository(database.DB)
	datasetRepo := repository.NewDatasetRepository(database.DB)
	eventRepo := repository.NewEventRepository(database.DB)
	conversationRepo := repository.NewConversationRepository(database.RDB)
	translationRepo := repository.NewTranslationRepository(database.RDB, cfg.Translate.CacheTTLHrs)

	// 5. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	llmClient := llm.NewClient(cfg.LLM)
	translateClient := translate.NewClient(cfg.Translate)

	latencyEngine := service.NewLatencyService(cfg.Analysis.LatencyCapHours)
	userService := service.NewUserService(userRepo, jwtManager)
	datasetService := service.NewDatasetService(datasetRepo, eventRepo)
	reportService := service.NewReportService(eventRepo, latencyEngine)
	analyticsService := service.NewAnalyticsService(eventRepo)
	explorerService := service.NewExplorerService(eventRepo)
	searchService := service.NewSearchService(cfg.Elasticsearch, cfg.Analysis.MaxSearchResults)
	intelligenceService := service.NewIntelligenceService(eventRepo, latencyEngine, llmClient, conversationRepo)
	translateService := service.NewTranslateService(translateClient, translationRepo, cfg.Translate.Target)

	// 6. 初始化导入管道 (Processor) 并启动后台 Kafka 消费者
	processor := pipeline.NewProcessor(cfg.Elasticsearch, cfg.MinIO, datasetRepo, eventRepo)
	go kafka.StartConsumer(cfg.Kafka, processor)

	// 6.1 初始化导入 seeddata 目录下的 CSV（幂等：内容 MD5 去重）
	seedCtx, cancelSeed := context.WithCancel(context.Background())
	defer cancelSeed()
	go importSeedDatasets(seedCtx, "seeddata", userRepo, datasetService)

	// 7. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	// 添加我们自定义的日志中间件和 Gin 的 Recovery 中间件
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 8. 注册路由
	authRequired := middleware.AuthMiddleware(jwtManager, userService)
	apiV1 := r.Group("/api/v1")
	{
		// Auth 路由组
		auth := apiV1.Group("/auth")
		{
			auth.POST("/refreshToken", handler.NewAuthHandler(userService).RefreshToken)
		}

		users := apiV1.Group("/users")
		{
			// 无需认证的路由 (公开访问)
			userHandler := handler.NewUserHandler(userService)
			users.POST("/register", userHandler.Register)
			users.POST("/login", userHandler.Login)

			// 需要认证的路由 (仅限登录用户访问)
			authed := users.Group("/")
			authed.Use(authRequired)
			{
				authed.GET("/me", userHandler.Profile)
				authed.POST("/logout", userHandler.Logout)
			}
		}

		// Dataset 路由组，需要认证
		datasets := apiV1.Group("/datasets")
		datasets.Use(authRequired)
		{
			datasetHandler := handler.NewDatasetHandler(datasetService)
			datasets.POST("/upload", datasetHandler.Upload)
			datasets.GET("", datasetHandler.List)
			datasets.GET("/:id", datasetHandler.Get)
			datasets.GET("/:id/regions", datasetHandler.Regions)
			datasets.GET("/:id/progress", datasetHandler.Progress)
			datasets.GET("/:id/download", datasetHandler.Download)
		}

		// Latency 面板路由组
		latency := apiV1.Group("/latency")
		latency.Use(authRequired)
		{
			latencyHandler := handler.NewLatencyHandler(reportService, datasetService)
			latency.GET("/summary", latencyHandler.Summary)
			latency.GET("/slow", latencyHandler.SlowReplies)
			latency.GET("/histogram", latencyHandler.Histogram)
			latency.GET("/daily", latencyHandler.DailyTrend)
			latency.GET("/correlation", latencyHandler.Correlation)
			latency.GET("/export", latencyHandler.ExportCSV)
		}

		// Analytics 面板路由组
		analytics := apiV1.Group("/analytics")
		analytics.Use(authRequired)
		{
			analyticsHandler := handler.NewAnalyticsHandler(analyticsService, datasetService)
			analytics.GET("/metrics", analyticsHandler.KeyMetrics)
			analytics.GET("/daily-conversations", analyticsHandler.DailyConversations)
			analytics.GET("/daily-messages", analyticsHandler.DailyMessages)
			analytics.GET("/regions", analyticsHandler.RegionDistribution)
			analytics.GET("/longest", analyticsHandler.LongestConversations)
		}

		// Explorer 路由组
		explorer := apiV1.Group("/explorer")
		explorer.Use(authRequired)
		{
			explorerHandler := handler.NewExplorerHandler(explorerService, datasetService)
			explorer.GET("/threads", explorerHandler.Threads)
			explorer.GET("/threads/:threadId", explorerHandler.Messages)
		}

		// Search 路由组
		search := apiV1.Group("/search")
		search.Use(authRequired)
		{
			searchHandler := handler.NewSearchHandler(searchService, datasetService)
			search.GET("", searchHandler.Search)
			search.GET("/export", searchHandler.ExportCSV)
		}

		// Translate 路由
		translateGroup := apiV1.Group("/translate")
		translateGroup.Use(authRequired)
		{
			translateGroup.POST("", handler.NewTranslateHandler(translateService).Translate)
		}

		// Intelligence 路由 (WebSocket)
		intelligenceHandler := handler.NewIntelligenceHandler(intelligenceService, userService, jwtManager)
		intelligence := apiV1.Group("/intelligence")
		{
			intelligence.GET("/websocket-token", intelligenceHandler.GetStopToken)
			reset := intelligence.Group("/")
			reset.Use(authRequired)
			{
				reset.POST("/reset", intelligenceHandler.ResetConversation)
			}
		}
		r.GET("/intelligence/:token/:datasetId", intelligenceHandler.Handle)

		admin := apiV1.Group("/admin")
		// 管理员路由组，需要同时通过认证和管理员授权两个中间件
		admin.Use(authRequired, middleware.AdminAuthMiddleware())
		{
			admin.GET("/users/list", handler.NewUserHandler(userService).ListUsers)
			admin.DELETE("/datasets/:id", handler.NewDatasetHandler(datasetService).Delete)
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	// Kafka 消费者是一个阻塞循环，会随进程退出自然结束。
	log.Info("服务已优雅关闭")
}

// importSeedDatasets 扫描目录下的 CSV 并通过标准上传流程导入（幂等）。
func importSeedDatasets(ctx context.Context, dir string, userRepo repository.UserRepository, datasetSvc service.DatasetService) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		log.Infof("importSeedDatasets: 目录 '%s' 不存在或不可用，跳过初始化导入", dir)
		return
	}

	// 选择归属用户：优先 admin
	var ownerUserID uint
	if admin, err := userRepo.FindByUsername("admin"); err == nil && admin != nil {
		ownerUserID = admin.ID
	} else {
		log.Warnf("importSeedDatasets: 未找到 admin 用户，跳过初始化导入")
		return
	}

	walkErr := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ".csv") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			log.Warnf("importSeedDatasets: 读取文件失败: %s, err=%v", path, err)
			return nil
		}

		dataset, existed, err := datasetSvc.Upload(ctx, info.Name(), data, ownerUserID)
		if err != nil {
			log.Warnf("importSeedDatasets: 导入失败: %s, err=%v", path, err)
			return nil
		}
		if existed {
			log.Infof("importSeedDatasets: 已存在，跳过: %s (id=%d)", info.Name(), dataset.ID)
		} else {
			log.Infof("importSeedDatasets: 已登记并触发导入: %s (id=%d)", info.Name(), dataset.ID)
		}
		return nil
	})
	if walkErr != nil {
		log.Warnf("importSeedDatasets: 遍历目录发生错误: %v", walkErr)
	}
}
