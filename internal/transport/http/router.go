package httptransport

import (
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/config"
	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/health"
	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/middleware"
	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/monitoring"
	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/pool"
	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/service"
	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/storage"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config        *config.Config
	Store         storage.Store
	Tracker       *service.TrackerService
	Scheduler     *service.SchedulerService
	Sender        *service.SenderService
	Workers       *pool.WorkerPool
	Metrics       *monitoring.Metrics
	HealthChecker *health.HealthChecker
	Logger        *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RecoveryHandler(deps.Logger))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RateLimitByIP(50, 100))

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-API-Key"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	// 监控与健康检查端点不走 API 鉴权
	router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	router.GET("/healthz/live", gin.WrapF(deps.HealthChecker.LiveHandler()))
	router.GET("/healthz/ready", gin.WrapF(deps.HealthChecker.ReadyHandler()))

	handler := NewWarmupHandler(
		deps.Config,
		deps.Store,
		deps.Tracker,
		deps.Scheduler,
		deps.Sender,
		deps.Workers,
	)

	api := router.Group("/api/v1")
	api.Use(middleware.APIKeyAuth(deps.Config.Server.APIKey))
	{
		warmup := api.Group("/warmup")
		{
			warmup.GET("/schedule", handler.GetSchedule)
			warmup.POST("/schedule-all", handler.ScheduleAll)
			warmup.POST("/send-tick", handler.SendTick)

			warmup.POST("/mailboxes", handler.RegisterMailbox)
			warmup.GET("/mailboxes", handler.ListMailboxes)
			warmup.GET("/mailboxes/:id", handler.GetMailboxStatus)
			warmup.POST("/mailboxes/:id/start", handler.StartWarmup)
			warmup.POST("/mailboxes/:id/stop", handler.StopWarmup)
			warmup.POST("/mailboxes/:id/schedule", handler.ScheduleDay)
			warmup.GET("/mailboxes/:id/queue", handler.ListQueue)
			warmup.GET("/mailboxes/:id/history", handler.ListHistory)
		}
	}

	return router
}
