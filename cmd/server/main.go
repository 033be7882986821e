package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/config"
	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/health"
	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/logger"
	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/monitoring"
	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/orchestrator"
	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/pool"
	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/service"
	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/storage"
	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/storage/memory"
	redislease "github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/storage/redis"
	sqlstore "github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/storage/sql"
	httptransport "github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/transport/http"
	smtptransport "github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/transport/smtp"
)

// main 启动预热引擎：管理 API、定时作业与发送循环。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 初始化日志系统
	log, err := logger.NewLogger(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		LogFile:     "",
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	log.Info("starting warmup engine",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
		zap.String("timezone", cfg.Warmup.Location.String()),
	)

	// 初始化存储层
	var store storage.Store
	if cfg.Database.Type != "" && cfg.Database.DSN != "" {
		store, err = sqlstore.NewStore(
			cfg.Database.Type,
			cfg.Database.DSN,
			cfg.Database.MaxOpenConns,
			cfg.Database.MaxIdleConns,
			cfg.Database.ConnMaxLifetime,
		)
		if err != nil {
			panic(fmt.Sprintf("failed to initialize database storage: %v", err))
		}
		log.Info("using database storage", zap.String("type", cfg.Database.Type))
	} else {
		store = memory.NewStore()
		log.Info("using memory storage (development mode)")
	}
	defer store.Close()

	// 初始化监控与健康检查
	metrics := monitoring.NewMetrics()
	healthChecker := health.NewHealthChecker(store, log)

	// 任务租约：配置了 Redis 时用分布式租约，否则进程内
	var lease orchestrator.Lease
	if cfg.Redis.Address != "" {
		redisLease, err := redislease.NewLease(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, log)
		if err != nil {
			panic(fmt.Sprintf("failed to connect to redis: %v", err))
		}
		defer redisLease.Close()
		lease = redisLease
		log.Info("using redis job lease", zap.String("address", cfg.Redis.Address))
	} else {
		lease = orchestrator.NewLocalLease()
		log.Info("using in-process job lease")
	}

	// 初始化服务层
	transport := smtptransport.NewClient(cfg.SMTP, log)
	tracker := service.NewTrackerService(store, cfg, log, metrics)
	scheduler := service.NewSchedulerService(store, cfg, log, metrics)
	sender := service.NewSenderService(store, cfg, log, metrics, transport)
	mailboxHealth := service.NewMailboxHealthService(store, cfg, log)
	tracker.SetScheduler(scheduler)

	// 排程扇出协程池
	workers := pool.NewWorkerPool(4, 64)

	// 定时作业：时刻均为配置时区
	sched := orchestrator.New(log, lease, cfg.Warmup.Location)
	sched.AddDaily("daily-counter-reset", 0, 0, 10*time.Minute, func(context.Context) error {
		_, err := tracker.ResetDailyCounters()
		return err
	})
	sched.AddDaily("daily-schedule", 0, 30, 30*time.Minute, func(context.Context) error {
		_, _, err := scheduler.ScheduleAllWarming(workers, time.Now().In(cfg.Warmup.Location))
		return err
	})
	sched.AddDaily("day-advance", 1, 0, 10*time.Minute, func(context.Context) error {
		_, _, err := tracker.AdvanceDays()
		return err
	})
	sched.AddDaily("queue-cleanup", 2, 0, 10*time.Minute, func(context.Context) error {
		_, err := tracker.CleanupQueue()
		return err
	})
	// 每个 tick 最多外发一封，发送节奏由槽位间隔与 tick 间隔共同约束
	sched.AddEvery("send-tick", cfg.Warmup.SendInterval, func(ctx context.Context) error {
		_, err := sender.SendNextDue(ctx)
		return err
	})
	sched.AddEvery("health-refresh", time.Hour, func(context.Context) error {
		if err := tracker.RefreshWarmingGauge(); err != nil {
			return err
		}
		_, err := mailboxHealth.RefreshAll()
		return err
	})

	// 创建 HTTP 服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:        cfg,
		Store:         store,
		Tracker:       tracker,
		Scheduler:     scheduler,
		Sender:        sender,
		Workers:       workers,
		Metrics:       metrics,
		HealthChecker: healthChecker,
		Logger:        log,
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	workers.Start(groupCtx)
	sched.Start(groupCtx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}

		sched.Stop()
		workers.Stop()

		log.Info("server stopped")
		return nil
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}
