package combat

import (
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"time"

	custommiddleware "wander-self/internal/middleware"
	"wander-self/internal/modules/combat/handler"
	"wander-self/internal/modules/combat/service"
	"wander-self/internal/modules/combat/tasks"
	"wander-self/internal/pkg/config"
	"wander-self/internal/pkg/i18n"
	"wander-self/internal/pkg/log"
	"wander-self/internal/pkg/metrics"
	redisClient "wander-self/internal/pkg/redis"
	"wander-self/internal/pkg/response"
	"wander-self/internal/pkg/sessionindex"
	"wander-self/internal/pkg/trace"
	"wander-self/internal/pkg/validation"
	"wander-self/internal/pkg/validator"

	_ "wander-self/docs/combat" // Swagger 生成的文档

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/liangdas/mqant/conf"
	"github.com/liangdas/mqant/module"
	basemodule "github.com/liangdas/mqant/module/base"
	"github.com/liangdas/mqant/server"
	_ "github.com/lib/pq"
	echoSwagger "github.com/swaggo/echo-swagger"
)

// CombatModule 战斗服模块
type CombatModule struct {
	basemodule.BaseModule
	db                  *sql.DB
	redis               *redisClient.Client
	httpServer          *echo.Echo
	serviceContainer    *service.ServiceContainer
	combatHandler       *handler.CombatHandler
	sessionExpireTask   *tasks.SessionExpireTask
	settlementRetryTask *tasks.SettlementRetryTask
	respWriter          response.Writer
}

// GetType returns module type
func (m *CombatModule) GetType() string {
	return "combat"
}

// Version returns module version
func (m *CombatModule) Version() string {
	return "1.0.0"
}

// OnAppConfigurationLoaded 当App初始化时调用
func (m *CombatModule) OnAppConfigurationLoaded(app module.App) {
	m.BaseModule.OnAppConfigurationLoaded(app)
}

// OnInit module initialization
func (m *CombatModule) OnInit(app module.App, settings *conf.ModuleSettings) {
	metrics.SetServiceName("combat")
	// TTL 必须大于心跳间隔
	m.BaseModule.OnInit(m, app, settings,
		server.RegisterInterval(15*time.Second),
		server.RegisterTTL(30*time.Second),
	)

	if err := m.initDatabase(settings); err != nil {
		panic(fmt.Sprintf("Failed to initialize database: %v", err))
	}

	if err := m.initRedis(settings); err != nil {
		// Redis 只承载活跃会话索引缓存，连不上时回源数据库
		fmt.Printf("[Combat Module] Redis unavailable, session index disabled: %v\n", err)
	}

	m.initResponseWriter()
	m.initHTTPServer()
	m.initServicesAndHandlers()
	m.setupRoutes()
	m.startCronTasks()

	go m.startHTTPServer(settings)

	m.GetServer().Options()
}

// initDatabase initializes database connection
func (m *CombatModule) initDatabase(settings *conf.ModuleSettings) error {
	var configValue string
	if settings != nil && settings.Settings != nil {
		if dbURLInterface, ok := settings.Settings["database_url"]; ok {
			configValue, _ = dbURLInterface.(string)
		}
	}

	// 优先级：环境变量 > 配置文件
	dbURL := config.GetDatabaseURL("WANDER_COMBAT_DATABASE_URL", configValue)
	if dbURL == "" {
		return fmt.Errorf("WANDER_COMBAT_DATABASE_URL not set")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	m.db = db
	fmt.Println("[Combat Module] Database initialized successfully")

	go m.startDBPoolMonitoring(db)

	return nil
}

// initRedis initializes Redis client for the active-session index
func (m *CombatModule) initRedis(settings *conf.ModuleSettings) error {
	host := config.GetEnvOrDefault("REDIS_HOST", "localhost")

	port := 6379
	if portStr := os.Getenv("REDIS_PORT"); portStr != "" {
		if p, err := strconv.Atoi(portStr); err == nil {
			port = p
		}
	}

	password := os.Getenv("REDIS_PASSWORD")

	dbIndex := 0
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		if d, err := strconv.Atoi(dbStr); err == nil {
			dbIndex = d
		}
	}

	client, err := redisClient.NewClient(redisClient.Config{
		Host:     host,
		Port:     port,
		Password: password,
		DB:       dbIndex,
	}, metrics.GetServiceName())
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	m.redis = client
	fmt.Printf("[Combat Module] Redis connected successfully (Host: %s:%d, DB: %d)\n", host, port, dbIndex)
	return nil
}

// initResponseWriter initializes response writer
func (m *CombatModule) initResponseWriter() {
	environment := config.GetEnvOrDefault("ENVIRONMENT", "development")

	logger := log.GetLogger()
	m.respWriter = response.NewResponseHandler(logger, environment)
	fmt.Println("[Combat Module] Response writer initialized")
}

// initHTTPServer initializes HTTP server
func (m *CombatModule) initHTTPServer() {
	m.httpServer = echo.New()

	m.httpServer.HideBanner = true
	m.httpServer.HidePort = true

	m.httpServer.Validator = validator.New()

	logger := log.GetLogger()

	environment := config.GetEnvOrDefault("ENVIRONMENT", "development")

	// ========== 中间件配置（顺序很重要！） ==========

	// 1. TraceID 中间件 - 最先执行，生成或提取 TraceID
	m.httpServer.Use(trace.Middleware())

	// 2. Metrics 中间件 - 记录 HTTP 方法到 context（用于 Prometheus）
	m.httpServer.Use(metrics.Middleware())

	// 3. i18n 中间件 - 语言检测和设置
	m.httpServer.Use(i18n.Middleware())

	// 4. Logging 中间件 - 记录请求日志（依赖 TraceID）
	loggingConfig := custommiddleware.DefaultLoggingConfig()
	if environment == "development" {
		loggingConfig.DetailedLog = true
		loggingConfig.LogRequestBody = true
	}
	m.httpServer.Use(custommiddleware.LoggingMiddlewareWithConfig(logger, loggingConfig))

	// 5. Recovery 中间件 - 捕获 panic
	m.httpServer.Use(custommiddleware.RecoveryMiddleware(m.respWriter, logger))

	// 6. Error 中间件 - 统一错误处理
	m.httpServer.Use(custommiddleware.ErrorMiddleware(m.respWriter, logger))

	// 7. CORS 中间件
	m.httpServer.Use(middleware.CORS())

	fmt.Println("[Combat Module] HTTP middlewares configured")
}

// initServicesAndHandlers initializes services and HTTP handlers
func (m *CombatModule) initServicesAndHandlers() {
	logger := log.GetLogger()

	var sessionIndex *sessionindex.Index
	if m.redis != nil {
		sessionIndex = sessionindex.New(m.redis, metrics.GetServiceName(), nil, logger)
	}

	m.serviceContainer = service.NewServiceContainer(
		m.db,
		sessionIndex,
		metrics.DefaultCombatMetrics,
		logger,
		metrics.GetServiceName(),
	)

	m.combatHandler = handler.NewCombatHandler(m.serviceContainer, m.respWriter)

	fmt.Println("[Combat Module] Handlers initialized successfully")
}

// startCronTasks starts cron scheduled tasks
func (m *CombatModule) startCronTasks() {
	logger := log.GetLogger()

	m.sessionExpireTask = tasks.NewSessionExpireTask(m.serviceContainer.GetCombatService(), logger)
	m.sessionExpireTask.Start()

	m.settlementRetryTask = tasks.NewSettlementRetryTask(m.serviceContainer.GetSettlementService(), logger)
	m.settlementRetryTask.Start()

	fmt.Println("[Combat Module] Cron tasks started successfully:")
	fmt.Println("  ✓ Session Expire Task (每分钟)")
	fmt.Println("  ✓ Settlement Retry Task (每五分钟)")
}

// setupRoutes sets up HTTP routes
func (m *CombatModule) setupRoutes() {
	logger := log.GetLogger()

	v1 := m.httpServer.Group("/api/v1")

	// Combat routes (需要认证，身份由网关注入)
	combat := v1.Group("/combat")
	combat.Use(custommiddleware.AuthMiddleware(m.respWriter, logger))
	{
		sessions := combat.Group("/sessions")
		// 路径参数中的会话 ID 必须是 UUID
		sessions.Use(validation.UUIDValidationMiddleware(m.respWriter))
		{
			sessions.POST("", m.combatHandler.InitiateCombat)                    // 发起战斗
			sessions.GET("/active", m.combatHandler.GetActiveSession)            // 查询活跃会话
			sessions.GET("/:session_id", m.combatHandler.FetchSession)           // 查询会话详情
			sessions.POST("/:session_id/attack", m.combatHandler.PerformAttack)  // 玩家回合攻击
			sessions.POST("/:session_id/defend", m.combatHandler.PerformDefense) // 敌人回合防御
			sessions.POST("/:session_id/retreat", m.combatHandler.RetreatCombat) // 撤退
			sessions.POST("/:session_id/abandon", m.combatHandler.AbandonCombat) // 放弃战斗
		}

		combat.GET("/preview/stats", m.combatHandler.PreviewStats) // 属性预览
	}

	// Swagger UI
	m.httpServer.GET("/swagger/*", echoSwagger.WrapHandler)

	// Health check
	m.httpServer.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]interface{}{
			"status": "ok",
			"module": "combat",
		})
	})

	// Prometheus metrics endpoint
	m.httpServer.GET("/metrics", metrics.EchoHandler())

	fmt.Println("[Combat Module] Routes configured successfully")
	fmt.Println("[Combat Module] Combat API routes: /api/v1/combat/sessions/*")
	fmt.Println("[Combat Module] Swagger UI available at http://localhost:8074/swagger/index.html")
	fmt.Println("[Combat Module] Prometheus metrics available at http://localhost:8074/metrics")
}

// startHTTPServer starts HTTP server
func (m *CombatModule) startHTTPServer(settings *conf.ModuleSettings) {
	port := os.Getenv("COMBAT_HTTP_PORT")
	if port == "" {
		if settings != nil && settings.Settings != nil {
			portInterface, ok := settings.Settings["http_port"]
			if ok {
				port, _ = portInterface.(string)
			}
		}
	}

	if port == "" {
		port = "8074" // Default port
	}

	fmt.Printf("[Combat Module] Starting HTTP server on port %s\n", port)

	if err := m.httpServer.Start(":" + port); err != nil {
		fmt.Printf("[Combat Module] HTTP server error: %v\n", err)
	}
}

// Run module run
func (m *CombatModule) Run(closeSig chan bool) {
	fmt.Println("[Combat Module] Started successfully")
	<-closeSig
}

// OnDestroy module destroy
func (m *CombatModule) OnDestroy() {
	if m.sessionExpireTask != nil {
		m.sessionExpireTask.Stop()
	}
	if m.settlementRetryTask != nil {
		m.settlementRetryTask.Stop()
	}

	if m.httpServer != nil {
		if err := m.httpServer.Close(); err != nil {
			fmt.Printf("[Combat Module] Failed to close HTTP server: %v\n", err)
		} else {
			fmt.Println("[Combat Module] HTTP server closed")
		}
	}

	if m.db != nil {
		if err := m.db.Close(); err != nil {
			fmt.Printf("[Combat Module] Failed to close database: %v\n", err)
		} else {
			fmt.Println("[Combat Module] Database connection closed")
		}
	}

	m.BaseModule.OnDestroy()
	fmt.Println("[Combat Module] Destroyed")
}

// Module creates Combat module instance
func Module() module.Module {
	return new(CombatModule)
}

// startDBPoolMonitoring 启动数据库连接池监控
// 每 30 秒报告一次连接池统计信息到 Prometheus
func (m *CombatModule) startDBPoolMonitoring(db *sql.DB) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		stats := db.Stats()

		metrics.DefaultResourceMetrics.RecordDBPoolStats(
			metrics.GetServiceName(),
			"postgres",
			stats.OpenConnections,
			stats.InUse,
			stats.Idle,
			25, // 与 SetMaxOpenConns 保持一致
			stats.WaitCount,
			stats.WaitDuration,
		)
	}
}
