// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"s3shift-go/internal/config"
	"s3shift-go/internal/handler"
	"s3shift-go/internal/middleware"
	"s3shift-go/internal/repository"
	"s3shift-go/internal/service"
	"s3shift-go/pkg/backup"
	"s3shift-go/pkg/database"
	"s3shift-go/pkg/kafka"
	"s3shift-go/pkg/log"
	"s3shift-go/pkg/storage"
	"s3shift-go/pkg/token"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis 与对象存储客户端
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	store, err := storage.NewMinioStore(cfg.MinIO)
	if err != nil {
		log.Fatal("初始化对象存储客户端失败", err)
	}
	kafka.InitProducer(cfg.Kafka)

	// 4. 初始化 Repository
	catalogRepo := repository.NewCatalogRepository(database.DB)
	runStateRepo := repository.NewRunStateRepository(database.RDB)

	// 5. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.TokenExpireHours)
	preflightService := service.NewPreflightService(catalogRepo, store, cfg.Migration, cfg.MinIO.BucketName)

	var backupper backup.Backupper
	if cfg.Migration.BackupDir != "" {
		backupper = backup.NewDirBackupper(cfg.Migration.DataRoot, cfg.Migration.BackupDir)
	}
	maintStore := service.NewFileMaintenanceStore(cfg.Migration.MaintenanceFile)

	progressHub := handler.NewProgressHub()
	sinks := []service.ProgressSink{
		service.LogSink{},
		service.NewRedisSink(runStateRepo),
		progressHub,
	}

	migrationService := service.NewMigrationService(
		catalogRepo,
		store,
		runStateRepo,
		preflightService,
		backupper,
		maintStore,
		cfg.Migration,
		cfg.MinIO.BucketName,
		sinks,
		service.KafkaEventPublisher{},
	)
	cleanupService := service.NewCleanupService(catalogRepo, store, cfg.Migration.DataRoot, cfg.Migration.DryRun != "" && cfg.Migration.DryRun != "off")

	// 6. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 7. 注册路由
	apiV1 := r.Group("/api/v1")
	{
		auth := apiV1.Group("/auth")
		{
			auth.POST("/login", handler.NewAuthHandler(cfg.Admin, jwtManager).Login)
		}

		// 迁移运维路由组，需要管理员认证
		migration := apiV1.Group("/migration")
		migration.Use(middleware.AuthMiddleware(jwtManager))
		{
			migrationHandler := handler.NewMigrationHandler(migrationService, preflightService)
			migration.GET("/preflight", migrationHandler.Preflight)
			migration.POST("/start", migrationHandler.Start)
			migration.POST("/stop", migrationHandler.Stop)
			migration.GET("/status", migrationHandler.Status)
			migration.GET("/progress", progressHub.Handle)
		}

		cleanup := apiV1.Group("/cleanup")
		cleanup.Use(middleware.AuthMiddleware(jwtManager))
		{
			cleanup.POST("/previews", handler.NewCleanupHandler(cleanupService).CleanupPreviews)
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

	// 进行中的迁移走同一条协作式停止路径，已提交的工作保留
	if migrationService.Stop() {
		log.Info("已向运行中的迁移发送停止信号")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	log.Info("服务已优雅关闭")
}
