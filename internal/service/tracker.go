package service

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/config"
	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/domain"
	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/monitoring"
	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/storage"
)

var (
	ErrAlreadyWarming = errors.New("mailbox is already warming")
	ErrNotWarming     = errors.New("mailbox is not warming")
	ErrMailboxFrozen  = errors.New("mailbox is not active")
	ErrAddressTaken   = errors.New("mailbox address already registered")
)

// TrackerService 负责预热生命周期：启动、停止、每日推进与计数清零。
//
// 天数推进不做逐次自增，而是每次用开始日期重算，停机或漏触发后
// 下一次运行会直接对齐到正确天数。
type TrackerService struct {
	store     storage.Store
	cfg       *config.Config
	log       *zap.Logger
	metrics   *monitoring.Metrics
	scheduler *SchedulerService
	now       func() time.Time
}

// NewTrackerService 创建生命周期服务。
func NewTrackerService(store storage.Store, cfg *config.Config, log *zap.Logger, metrics *monitoring.Metrics) *TrackerService {
	return &TrackerService{
		store:   store,
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		now: func() time.Time {
			return time.Now().In(cfg.Warmup.Location)
		},
	}
}

// SetScheduler 设置排程服务，启动预热时立即为当天排程（避免循环依赖）
func (s *TrackerService) SetScheduler(scheduler *SchedulerService) {
	s.scheduler = scheduler
}

// SetNowFunc 覆盖时钟（测试用）
func (s *TrackerService) SetNowFunc(now func() time.Time) {
	s.now = now
}

// RegisterMailbox 登记一个新的发信邮箱，初始状态为活跃、未预热。
// 地址已存在时返回 ErrAddressTaken。
func (s *TrackerService) RegisterMailbox(address, displayName string) (*domain.Mailbox, error) {
	if _, err := s.store.GetMailboxByAddress(address); err == nil {
		return nil, ErrAddressTaken
	} else if !errors.Is(err, storage.ErrMailboxNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	mailbox := &domain.Mailbox{
		ID:           uuid.NewString(),
		Address:      address,
		DisplayName:  displayName,
		IsActive:     true,
		WarmupStatus: domain.WarmupStatusInactive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.SaveMailbox(mailbox); err != nil {
		return nil, err
	}

	s.log.Info("mailbox registered",
		zap.String("mailbox_id", mailbox.ID),
		zap.String("address", mailbox.Address),
	)
	return mailbox, nil
}

// StartWarmup 将邮箱从头开始预热：第 1 天，计数清零，问题标记清除。
func (s *TrackerService) StartWarmup(mailboxID string) (*domain.Mailbox, error) {
	mailbox, err := s.store.GetMailbox(mailboxID)
	if err != nil {
		return nil, err
	}
	if !mailbox.IsActive {
		return nil, ErrMailboxFrozen
	}
	if mailbox.IsWarming() {
		return nil, ErrAlreadyWarming
	}

	rate, _ := s.cfg.Warmup.Schedule.Lookup(1)
	now := s.now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	mailbox.WarmupStatus = domain.WarmupStatusWarming
	mailbox.WarmupDay = 1
	mailbox.WarmupDailyLimit = rate.DailyLimit
	mailbox.WarmupTodaySent = 0
	mailbox.WarmupStartDate = &start
	mailbox.WarmupCompletedAt = nil
	mailbox.WarmupIssues = ""

	if err := s.store.SaveMailbox(mailbox); err != nil {
		return nil, err
	}

	s.metrics.WarmupsStarted.Inc()
	s.log.Info("warmup started",
		zap.String("mailbox_id", mailbox.ID),
		zap.String("address", mailbox.Address),
		zap.Int("daily_limit", rate.DailyLimit),
	)

	// 当天剩余窗口立即排程，不等次日凌晨任务
	if s.scheduler != nil {
		if _, err := s.scheduler.ScheduleDay(mailbox.ID, now); err != nil {
			s.log.Warn("initial schedule failed",
				zap.String("mailbox_id", mailbox.ID),
				zap.Error(err),
			)
		}
	}

	return mailbox, nil
}

// StopWarmup 停止预热并取消全部待发条目。
func (s *TrackerService) StopWarmup(mailboxID string) (*domain.Mailbox, error) {
	mailbox, err := s.store.GetMailbox(mailboxID)
	if err != nil {
		return nil, err
	}
	if !mailbox.IsWarming() {
		return nil, ErrNotWarming
	}

	mailbox.WarmupStatus = domain.WarmupStatusInactive
	if err := s.store.SaveMailbox(mailbox); err != nil {
		return nil, err
	}

	cancelled, err := s.store.CancelPendingQueueItems(mailboxID, "warmup stopped")
	if err != nil {
		return nil, err
	}
	s.metrics.ItemsCancelledTotal.WithLabelValues("warmup_stopped").Add(float64(cancelled))

	s.log.Info("warmup stopped",
		zap.String("mailbox_id", mailbox.ID),
		zap.String("address", mailbox.Address),
		zap.Int("cancelled", cancelled),
	)
	return mailbox, nil
}

// ResetDailyCounters 每日零点将全部活跃邮箱的当日计数清零。
// 幂等：重复运行只是再次写零。
func (s *TrackerService) ResetDailyCounters() (int, error) {
	count, err := s.store.ResetWarmupCounters()
	if err != nil {
		return 0, err
	}
	s.metrics.CounterResetsTotal.Inc()
	s.log.Info("daily counters reset", zap.Int("mailboxes", count))
	return count, nil
}

// AdvanceDays 为全部预热中的邮箱推进天数。
//
// 以开始日期重算当前天数，跨越多个自然日也能一次到位；
// 越过第 30 天的邮箱转为 ready 并套用毕业后的日上限。
// 返回推进数与完成数。
func (s *TrackerService) AdvanceDays() (advanced, completed int, err error) {
	mailboxes, err := s.store.ListWarmingMailboxes()
	if err != nil {
		return 0, 0, err
	}

	now := s.now()
	for i := range mailboxes {
		mailbox := &mailboxes[i]
		if mailbox.WarmupStartDate == nil {
			s.log.Warn("warming mailbox has no start date",
				zap.String("mailbox_id", mailbox.ID),
			)
			continue
		}

		correct := domain.CorrectDay(mailbox.WarmupStartDate.In(now.Location()), now)
		if correct <= mailbox.WarmupDay {
			continue
		}

		if correct > domain.WarmupHorizonDays {
			mailbox.WarmupStatus = domain.WarmupStatusReady
			mailbox.WarmupDay = domain.WarmupHorizonDays
			mailbox.WarmupDailyLimit = s.cfg.Warmup.PostWarmupLimit
			completedAt := now
			mailbox.WarmupCompletedAt = &completedAt
			if err := s.store.SaveMailbox(mailbox); err != nil {
				return advanced, completed, err
			}
			completed++
			s.metrics.WarmupsCompleted.Inc()
			s.log.Info("warmup completed",
				zap.String("mailbox_id", mailbox.ID),
				zap.String("address", mailbox.Address),
			)
			continue
		}

		rate, ok := s.cfg.Warmup.Schedule.Lookup(correct)
		if !ok {
			continue
		}
		mailbox.WarmupDay = correct
		mailbox.WarmupDailyLimit = rate.DailyLimit
		if err := s.store.SaveMailbox(mailbox); err != nil {
			return advanced, completed, err
		}
		advanced++
		s.metrics.DayAdvancesTotal.Inc()
		s.log.Info("warmup day advanced",
			zap.String("mailbox_id", mailbox.ID),
			zap.Int("day", correct),
			zap.Int("daily_limit", rate.DailyLimit),
		)
	}
	return advanced, completed, nil
}

// CleanupQueue 按保留期清理历史队列条目，返回删除数量。
func (s *TrackerService) CleanupQueue() (int, error) {
	cutoff := s.now().AddDate(0, 0, -s.cfg.Warmup.RetentionDays)
	purged, err := s.store.DeleteQueueItemsBefore(cutoff)
	if err != nil {
		return 0, err
	}
	s.metrics.QueueItemsPurged.Add(float64(purged))
	if purged > 0 {
		s.log.Info("queue cleanup", zap.Int("purged", purged), zap.Time("cutoff", cutoff))
	}
	return purged, nil
}

// RefreshWarmingGauge 刷新预热中邮箱数量指标。
func (s *TrackerService) RefreshWarmingGauge() error {
	mailboxes, err := s.store.ListWarmingMailboxes()
	if err != nil {
		return err
	}
	s.metrics.MailboxesWarming.Set(float64(len(mailboxes)))
	return nil
}
