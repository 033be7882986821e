package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Lease 是命名作业租约。多实例部署时同名作业同一时刻只有
// 一个持有者能运行，单实例用进程内实现即可。
type Lease interface {
	TryAcquire(ctx context.Context, name string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name string) error
}

// LocalLease 进程内租约实现，适用于单实例部署。
type LocalLease struct {
	mu   sync.Mutex
	held map[string]time.Time // 作业名 -> 到期时间
}

// NewLocalLease 创建进程内租约。
func NewLocalLease() *LocalLease {
	return &LocalLease{held: make(map[string]time.Time)}
}

// TryAcquire 尝试获取租约，已被持有且未过期时返回 false。
func (l *LocalLease) TryAcquire(_ context.Context, name string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if expiry, ok := l.held[name]; ok && now.Before(expiry) {
		return false, nil
	}
	l.held[name] = now.Add(ttl)
	return true, nil
}

// Release 释放租约。
func (l *LocalLease) Release(_ context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, name)
	return nil
}

// job 一个定时作业的定义
type job struct {
	name     string
	fn       func(context.Context) error
	leaseTTL time.Duration

	// 二选一：daily 在 loc 时区每天 hour:minute 触发，否则按 interval 周期触发
	daily    bool
	hour     int
	minute   int
	interval time.Duration
}

// Orchestrator 薄调度层：只负责按时间触发业务服务的操作，
// 本身不含任何预热逻辑。每次触发前先取作业租约，
// 上一轮还没跑完或其他实例持有时本轮直接跳过。
type Orchestrator struct {
	log   *zap.Logger
	lease Lease
	loc   *time.Location
	jobs  []*job

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New 创建调度器。
func New(log *zap.Logger, lease Lease, loc *time.Location) *Orchestrator {
	return &Orchestrator{
		log:   log,
		lease: lease,
		loc:   loc,
	}
}

// AddDaily 注册每天固定时刻运行的作业（loc 时区）。
func (o *Orchestrator) AddDaily(name string, hour, minute int, leaseTTL time.Duration, fn func(context.Context) error) {
	o.jobs = append(o.jobs, &job{
		name:     name,
		fn:       fn,
		leaseTTL: leaseTTL,
		daily:    true,
		hour:     hour,
		minute:   minute,
	})
}

// AddEvery 注册固定间隔运行的作业。
func (o *Orchestrator) AddEvery(name string, interval time.Duration, fn func(context.Context) error) {
	o.jobs = append(o.jobs, &job{
		name:     name,
		fn:       fn,
		leaseTTL: interval,
		interval: interval,
	})
}

// Start 启动全部作业协程。
func (o *Orchestrator) Start(ctx context.Context) {
	ctx, o.cancel = context.WithCancel(ctx)
	for _, j := range o.jobs {
		o.wg.Add(1)
		go o.runLoop(ctx, j)
	}
	o.log.Info("orchestrator started", zap.Int("jobs", len(o.jobs)))
}

// Stop 停止调度并等待在跑的作业结束。
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()
	o.log.Info("orchestrator stopped")
}

// runLoop 单个作业的触发循环
func (o *Orchestrator) runLoop(ctx context.Context, j *job) {
	defer o.wg.Done()

	if j.daily {
		for {
			wait := time.Until(o.nextDaily(j))
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
				o.runOnce(ctx, j)
			}
		}
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.runOnce(ctx, j)
		}
	}
}

// nextDaily 计算作业在 loc 时区的下一次触发时刻
func (o *Orchestrator) nextDaily(j *job) time.Time {
	now := time.Now().In(o.loc)
	next := time.Date(now.Year(), now.Month(), now.Day(), j.hour, j.minute, 0, 0, o.loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// runOnce 在租约保护下运行一次作业
func (o *Orchestrator) runOnce(ctx context.Context, j *job) {
	acquired, err := o.lease.TryAcquire(ctx, j.name, j.leaseTTL)
	if err != nil {
		o.log.Error("lease acquire failed", zap.String("job", j.name), zap.Error(err))
		return
	}
	if !acquired {
		o.log.Debug("job skipped, lease held elsewhere", zap.String("job", j.name))
		return
	}
	defer func() {
		if err := o.lease.Release(ctx, j.name); err != nil {
			o.log.Warn("lease release failed", zap.String("job", j.name), zap.Error(err))
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			o.log.Error("job panicked", zap.String("job", j.name), zap.Any("panic", r))
		}
	}()

	start := time.Now()
	if err := j.fn(ctx); err != nil {
		o.log.Error("job failed",
			zap.String("job", j.name),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return
	}
	o.log.Debug("job finished",
		zap.String("job", j.name),
		zap.Duration("duration", time.Since(start)),
	)
}
