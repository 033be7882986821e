package service

import (
	"time"

	"go.uber.org/zap"

	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/config"
	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/domain"
	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/storage"
)

// MailboxHealthService 周期性刷新邮箱健康指标：失败率与送达能力评分。
//
// 评分以 100 为基准，综合历史失败率、预热进度与发送量做增减，
// 结果截断到 [0, 100]。真实退信回执不在本系统范围内，
// 以传输失败率近似退信率。
type MailboxHealthService struct {
	store storage.Store
	cfg   *config.Config
	log   *zap.Logger
	now   func() time.Time
}

// NewMailboxHealthService 创建健康指标服务。
func NewMailboxHealthService(store storage.Store, cfg *config.Config, log *zap.Logger) *MailboxHealthService {
	return &MailboxHealthService{
		store: store,
		cfg:   cfg,
		log:   log,
		now: func() time.Time {
			return time.Now().In(cfg.Warmup.Location)
		},
	}
}

// RefreshAll 重算全部活跃邮箱的健康指标，返回刷新数量。
func (s *MailboxHealthService) RefreshAll() (int, error) {
	mailboxes, err := s.store.ListActiveMailboxes()
	if err != nil {
		return 0, err
	}

	refreshed := 0
	for i := range mailboxes {
		mailbox := &mailboxes[i]
		if err := s.Refresh(mailbox); err != nil {
			s.log.Warn("health refresh failed",
				zap.String("mailbox_id", mailbox.ID),
				zap.Error(err),
			)
			continue
		}
		refreshed++
	}
	return refreshed, nil
}

// Refresh 重算单个邮箱的健康指标并保存。
func (s *MailboxHealthService) Refresh(mailbox *domain.Mailbox) error {
	sent, failed, err := s.store.CountHistoryByOutcome(mailbox.ID)
	if err != nil {
		return err
	}

	total := sent + failed
	failureRate := 0.0
	if total > 0 {
		failureRate = float64(failed) / float64(total) * 100
	}

	// 评分先用上一轮的退信率，再以本轮失败率近似覆盖
	mailbox.DeliverabilityScore = deliverabilityScore(mailbox, sent, failed, failureRate)
	mailbox.BounceRate = failureRate
	mailbox.WarmupIssues = detectIssues(mailbox, failureRate)

	return s.store.SaveMailbox(mailbox)
}

// deliverabilityScore 计算送达能力评分（0-100）。
func deliverabilityScore(mailbox *domain.Mailbox, sent, failed int64, failureRate float64) int {
	score := 100.0

	// 退信重罚
	score -= mailbox.BounceRate * 3

	// 预热进度加分，封顶 20
	if mailbox.WarmupStatus == domain.WarmupStatusWarming || mailbox.WarmupStatus == domain.WarmupStatusReady {
		bonus := float64(mailbox.WarmupDay) * 0.7
		if bonus > 20 {
			bonus = 20
		}
		score += bonus
	}

	// 传输失败扣分
	score -= failureRate * 2

	// 样本太少时评分不可信，压低
	total := sent + failed
	switch {
	case total < 10:
		score -= 20
	case total < 50:
		score -= 10
	}

	// 有一定发送量且零失败，加信任分
	if total > 20 && failed == 0 {
		score += 15
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return int(score)
}

// detectIssues 标记需要人工关注的问题，正常时返回空串。
func detectIssues(mailbox *domain.Mailbox, failureRate float64) string {
	if failureRate > 20 {
		return "high failure rate"
	}
	if mailbox.IsWarming() && mailbox.WarmupStartDate == nil {
		return "warming without start date"
	}
	return ""
}
