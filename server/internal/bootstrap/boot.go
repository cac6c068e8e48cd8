package bootstrap

import (
	"context"
	"log"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"GreenLedger/server/internal/conf"
	"GreenLedger/server/internal/connector"
	"GreenLedger/server/internal/core"
	"GreenLedger/server/internal/data"
	"GreenLedger/server/internal/handler"
	"GreenLedger/server/internal/middleware"
	"GreenLedger/server/internal/service"
	"GreenLedger/server/internal/worker"
)

// Run 启动服务器
func Run() {
	// 1. 加载配置
	cfg := conf.LoadConfig()

	// 2. 初始化数据层
	d, cleanup, err := data.NewData(cfg)
	if err != nil {
		log.Fatalf("❌ 数据层初始化失败: %v", err)
	}
	defer cleanup()

	// 3. 注册公式处理器和八种源适配器
	service.RegisterFormulas()
	connector.RegisterAll(d.Minio, d.MinioBucket, core.EnvSecretResolver{}, cfg.Sync.HTTPTimeout)

	// 4. 初始化服务层
	auditSvc := service.NewAuditService(d)
	syncSvc := service.NewSyncService(d, auditSvc, core.NewKeywordTransferPolicy())
	inferSvc := service.NewInferenceService(d, auditSvc)
	execSvc := service.NewExecutionService(d, auditSvc)
	kpiSvc := service.NewKPIService(d, auditSvc)
	orgSvc := service.NewOrgService(d)

	// 5. 启动同步 Worker 和调度器
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	syncWorker := worker.NewSyncWorker(d, syncSvc)
	syncWorker.Start(ctx, cfg.Sync.Workers)
	syncWorker.StartScheduler(ctx, cfg.Sync.SchedulerInterval)

	// 6. 初始化 Handler
	orgH := handler.NewOrgHandler(orgSvc)
	connH := handler.NewConnectorHandler(syncSvc, syncWorker)
	mapH := handler.NewMappingHandler(inferSvc, execSvc)
	kpiH := handler.NewKPIHandler(kpiSvc)
	auditH := handler.NewAuditHandler(auditSvc)

	// 7. 初始化 Gin Server
	r := gin.Default()
	r.Use(middleware.TraceMiddleware())

	// CORS 配置
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Accept-Encoding", "X-CSRF-Token", "Authorization", "X-API-Key"},
		ExposeHeaders:    []string{"Content-Length", "X-Trace-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// 8. 注册路由
	api := r.Group("/api/v1")
	{
		// 公开接口：建组织（返回 API Key）+ 连接器配置预检
		api.POST("/orgs", orgH.Create)
		api.POST("/connectors/validate", connH.Validate)

		// 鉴权接口：X-API-Key → 组织上下文
		protected := api.Group("/")
		protected.Use(middleware.OrgAuth(orgSvc.ResolveAPIKey))
		{
			// 连接器与同步
			protected.POST("/connectors", connH.Create)
			protected.GET("/connectors", connH.List)
			protected.POST("/connectors/:id/sync", connH.Sync)
			protected.GET("/connectors/:id/logs", connH.ListSyncLogs)

			// 映射推断与执行
			protected.POST("/mappings/suggest", mapH.Suggest)
			protected.GET("/mappings", mapH.List)
			protected.POST("/mappings/:id/activate", mapH.Activate)
			protected.POST("/mappings/:id/run", mapH.Run)

			// KPI 规则与求值
			protected.POST("/kpi/rules", kpiH.CreateRule)
			protected.GET("/kpi/rules", kpiH.ListRules)
			protected.POST("/kpi/evaluate", kpiH.Evaluate)
			protected.GET("/kpi/results", kpiH.ListResults)

			// 审计链
			protected.GET("/audit/logs", auditH.List)
			protected.GET("/audit/verify", auditH.Verify)
		}
	}

	log.Printf("🚀 GreenLedger 后端已启动，监听端口 :%s", cfg.App.Port)
	if err := r.Run(":" + cfg.App.Port); err != nil {
		log.Fatalf("❌ Server 启动失败: %v", err)
	}
}
