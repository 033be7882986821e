package service

import (
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/config"
	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/domain"
	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/monitoring"
	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/pool"
	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/storage"
)

var (
	ErrNoRecipients = errors.New("no sibling mailboxes available as recipients")
)

// SchedulerService 负责日内排程：把某邮箱某天的发送配额物化为
// 发送窗口内随机分布的队列条目。
//
// 重排程是替换语义：先删除当天残留的 pending 条目再整批重建，
// 同一天重复排程不会产生重复槽位；已终态的条目不受影响。
type SchedulerService struct {
	store     storage.Store
	cfg       *config.Config
	log       *zap.Logger
	metrics   *monitoring.Metrics
	templates []domain.Template

	randMu sync.Mutex
	random *rand.Rand
}

// NewSchedulerService 创建排程服务。
func NewSchedulerService(store storage.Store, cfg *config.Config, log *zap.Logger, metrics *monitoring.Metrics) *SchedulerService {
	return &SchedulerService{
		store:     store,
		cfg:       cfg,
		log:       log,
		metrics:   metrics,
		templates: domain.DefaultTemplates(),
		random:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetRandSource 固定随机源（测试用）
func (s *SchedulerService) SetRandSource(src rand.Source) {
	s.randMu.Lock()
	defer s.randMu.Unlock()
	s.random = rand.New(src)
}

// ScheduleDay 为单个邮箱在指定日期生成发送计划，返回生成的槽位数。
//
// 非预热状态的邮箱返回 ErrNotWarming；排程表覆盖不到当前天数时
// 视为当日无活动，返回 0。
func (s *SchedulerService) ScheduleDay(mailboxID string, date time.Time) (int, error) {
	mailbox, err := s.store.GetMailbox(mailboxID)
	if err != nil {
		return 0, err
	}
	if !mailbox.IsWarming() {
		return 0, ErrNotWarming
	}

	rate, ok := s.cfg.Warmup.Schedule.Lookup(mailbox.WarmupDay)
	if !ok {
		return 0, nil
	}

	date = date.In(s.cfg.Warmup.Location)
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	// 替换当天残留计划，排程因此天然幂等
	replaced, err := s.store.DeletePendingQueueItems(mailboxID, dayStart, dayEnd)
	if err != nil {
		return 0, err
	}

	peers, err := s.listPeers(mailbox)
	if err != nil {
		return 0, err
	}
	if len(peers) == 0 {
		return 0, ErrNoRecipients
	}

	items := s.buildItems(mailbox, peers, rate, date)
	if len(items) == 0 {
		return 0, nil
	}

	if err := s.store.CreateQueueItems(items); err != nil {
		return 0, err
	}

	first := items[0].ScheduledAt
	mailbox.NextWarmupAt = &first
	if err := s.store.SaveMailbox(mailbox); err != nil {
		return 0, err
	}

	s.metrics.ScheduleRunsTotal.Inc()
	s.metrics.SlotsScheduledTotal.Add(float64(len(items)))
	s.log.Info("day scheduled",
		zap.String("mailbox_id", mailbox.ID),
		zap.String("address", mailbox.Address),
		zap.Int("day", mailbox.WarmupDay),
		zap.Int("slots", len(items)),
		zap.Int("replaced", replaced),
		zap.Time("first_slot", first),
	)
	return len(items), nil
}

// ScheduleAllWarming 为全部预热中的邮箱排程指定日期，通过协程池扇出。
// 单个邮箱失败不会中断其他邮箱，返回总槽位数与失败数。
func (s *SchedulerService) ScheduleAllWarming(workers *pool.WorkerPool, date time.Time) (slots int, failed int, err error) {
	mailboxes, err := s.store.ListWarmingMailboxes()
	if err != nil {
		return 0, 0, err
	}

	var totalSlots, totalFailed int64
	var wg sync.WaitGroup
	for i := range mailboxes {
		mailbox := mailboxes[i]
		wg.Add(1)
		workers.Submit(func() {
			defer wg.Done()
			n, err := s.ScheduleDay(mailbox.ID, date)
			// 没有同伴收件人属于配置缺位：当天无事可做，不计入失败
			if errors.Is(err, ErrNoRecipients) {
				s.log.Warn("no peer recipients, nothing to schedule",
					zap.String("mailbox_id", mailbox.ID),
				)
				return
			}
			if err != nil {
				atomic.AddInt64(&totalFailed, 1)
				s.log.Error("schedule failed",
					zap.String("mailbox_id", mailbox.ID),
					zap.Error(err),
				)
				return
			}
			atomic.AddInt64(&totalSlots, int64(n))
		})
	}
	wg.Wait()

	return int(atomic.LoadInt64(&totalSlots)), int(atomic.LoadInt64(&totalFailed)), nil
}

// listPeers 返回可作为收件人的其他活跃邮箱。
// 预热邮件只在系统内部邮箱之间流转，自己不给自己发信。
func (s *SchedulerService) listPeers(self *domain.Mailbox) ([]domain.Mailbox, error) {
	active, err := s.store.ListActiveMailboxes()
	if err != nil {
		return nil, err
	}
	peers := make([]domain.Mailbox, 0, len(active))
	for _, m := range active {
		if m.ID != self.ID {
			peers = append(peers, m)
		}
	}
	return peers, nil
}

// buildItems 生成当日全部队列条目：随机槽位、随机收件人、随机模板。
func (s *SchedulerService) buildItems(mailbox *domain.Mailbox, peers []domain.Mailbox, rate domain.RateConfig, date time.Time) []*domain.QueueItem {
	s.randMu.Lock()
	defer s.randMu.Unlock()

	slots := s.cfg.Warmup.Window.GenerateSlotTimes(s.random, date, rate.DailyLimit)
	now := time.Now().UTC()

	items := make([]*domain.QueueItem, 0, len(slots))
	for _, slot := range slots {
		peer := peers[s.random.Intn(len(peers))]
		tpl := s.templates[s.random.Intn(len(s.templates))]
		subject, body := tpl.Render(mailbox.SenderName(), slot)

		items = append(items, &domain.QueueItem{
			ID:          uuid.NewString(),
			MailboxID:   mailbox.ID,
			ScheduledAt: slot,
			Status:      domain.QueueStatusPending,
			ToAddress:   peer.Address,
			Subject:     subject,
			Body:        body,
			WarmupDay:   mailbox.WarmupDay,
			CreatedAt:   now,
		})
	}
	return items
}
