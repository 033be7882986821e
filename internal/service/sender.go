package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/config"
	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/domain"
	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/monitoring"
	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/storage"
)

// OutgoingEmail 是交给传输层的一封待发邮件。
type OutgoingEmail struct {
	From     string
	FromName string
	To       string
	Subject  string
	Body     string
}

// MailTransport 抽象外发邮件传输。实现方负责投递并返回 Message-ID。
type MailTransport interface {
	Send(ctx context.Context, email OutgoingEmail) (messageID string, err error)
}

// SendOutcome 表示一次发送 tick 对单个条目的处理结果。
type SendOutcome string

const (
	OutcomeIdle          SendOutcome = "idle"           // 没有到期条目
	OutcomeOutsideWindow SendOutcome = "outside_window" // 当前时刻在发送窗口外
	OutcomeSent          SendOutcome = "sent"
	OutcomeCancelled     SendOutcome = "cancelled"
	OutcomeFailed        SendOutcome = "failed"
)

// SendResult 描述单次发送尝试。
type SendResult struct {
	Outcome   SendOutcome
	Item      *domain.QueueItem
	MessageID string
	Reason    string // cancelled/failed 时的原因
}

// TickStats 汇总一次发送 tick 的处理数量。
type TickStats struct {
	Sent      int
	Failed    int
	Cancelled int
}

// SenderService 消费到期队列条目并通过传输层发送。
//
// 条目先条件占用（pending → sending，单条原子操作），占用成功的
// 消费者才预约当日配额（条件自增），两个并发消费者取到同一条目时
// 只有一个会投递、只扣一次配额。预约被拒即当日上限已满，条目取消
// 而不是延后。传输失败不退还预约——失败的尝试同样消耗当天一个
// 槽位，上限语义因此保持严格。
type SenderService struct {
	store     storage.Store
	cfg       *config.Config
	log       *zap.Logger
	metrics   *monitoring.Metrics
	transport MailTransport
	now       func() time.Time
}

// NewSenderService 创建发送服务。
func NewSenderService(store storage.Store, cfg *config.Config, log *zap.Logger, metrics *monitoring.Metrics, transport MailTransport) *SenderService {
	return &SenderService{
		store:     store,
		cfg:       cfg,
		log:       log,
		metrics:   metrics,
		transport: transport,
		now: func() time.Time {
			return time.Now().In(cfg.Warmup.Location)
		},
	}
}

// SetNowFunc 覆盖时钟（测试用）
func (s *SenderService) SetNowFunc(now func() time.Time) {
	s.now = now
}

// RunTick 处理当前全部到期条目，直到队列空或窗口关闭。
func (s *SenderService) RunTick(ctx context.Context) (TickStats, error) {
	var stats TickStats
	for {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		result, err := s.SendNextDue(ctx)
		if err != nil {
			return stats, err
		}
		switch result.Outcome {
		case OutcomeIdle, OutcomeOutsideWindow:
			return stats, nil
		case OutcomeSent:
			stats.Sent++
		case OutcomeFailed:
			stats.Failed++
		case OutcomeCancelled:
			stats.Cancelled++
		}
	}
}

// SendNextDue 取最早到期的 pending 条目并尝试发送一次。
//
// 到期判定放宽 tolerance 分钟：tick 间隔内即将到点的槽位由当前
// tick 顺带发出，不会整体向后漂移。
func (s *SenderService) SendNextDue(ctx context.Context) (*SendResult, error) {
	now := s.now()
	if !s.cfg.Warmup.Window.Contains(now) {
		return &SendResult{Outcome: OutcomeOutsideWindow}, nil
	}

	due := now.Add(s.cfg.Warmup.Tolerance())
	var item *domain.QueueItem
	for {
		next, err := s.store.NextDueQueueItem(due)
		if err == storage.ErrNoDueItem {
			return &SendResult{Outcome: OutcomeIdle}, nil
		}
		if err != nil {
			return nil, err
		}

		// 占用失败说明另一个消费者抢到了同一条目，换下一条
		claimed, err := s.store.ClaimQueueItem(next.ID)
		if err != nil {
			return nil, err
		}
		if claimed {
			item = next
			break
		}
	}

	mailbox, err := s.store.GetMailbox(item.MailboxID)
	if err == storage.ErrMailboxNotFound {
		return s.cancel(item, "mailbox no longer exists", "mailbox_missing")
	}
	if err != nil {
		return nil, err
	}

	// 条目创建后邮箱可能已停止预热
	if !mailbox.IsWarming() {
		return s.cancel(item, "mailbox is not warming", "not_warming")
	}

	// 并发安全锚点：占用成功后预约当日配额，预约只由占用者发起
	reserved, err := s.store.ReserveWarmupSlot(mailbox.ID)
	if err != nil {
		return nil, err
	}
	if !reserved {
		s.metrics.ReservationsRejectedTotal.Inc()
		return s.cancel(item, "daily limit reached", "daily_limit")
	}
	s.metrics.ReservationsTotal.Inc()

	email := OutgoingEmail{
		From:     mailbox.Address,
		FromName: mailbox.SenderName(),
		To:       item.ToAddress,
		Subject:  item.Subject,
		Body:     item.Body,
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SMTP.SendTimeout)
	defer cancel()

	start := time.Now()
	messageID, sendErr := s.transport.Send(sendCtx, email)
	s.metrics.SendDuration.Observe(time.Since(start).Seconds())

	if sendErr != nil {
		if err := s.store.FailSend(item, sendErr.Error()); err != nil {
			return nil, err
		}
		s.metrics.EmailsFailedTotal.Inc()
		s.log.Warn("warmup send failed",
			zap.String("mailbox_id", mailbox.ID),
			zap.String("to", item.ToAddress),
			zap.Error(sendErr),
		)
		return &SendResult{Outcome: OutcomeFailed, Item: item, Reason: sendErr.Error()}, nil
	}

	sentAt := time.Now().UTC()
	if err := s.store.CompleteSend(item, sentAt, messageID); err != nil {
		return nil, err
	}
	s.metrics.EmailsSentTotal.Inc()
	s.log.Info("warmup email sent",
		zap.String("mailbox_id", mailbox.ID),
		zap.String("to", item.ToAddress),
		zap.String("message_id", messageID),
		zap.Int("day", item.WarmupDay),
	)
	return &SendResult{Outcome: OutcomeSent, Item: item, MessageID: messageID}, nil
}

// cancel 取消条目并记录原因。
func (s *SenderService) cancel(item *domain.QueueItem, reason, metricLabel string) (*SendResult, error) {
	if err := s.store.UpdateQueueItemStatus(item.ID, domain.QueueStatusCancelled, reason); err != nil {
		return nil, err
	}
	s.metrics.ItemsCancelledTotal.WithLabelValues(metricLabel).Inc()
	s.log.Info("queue item cancelled",
		zap.String("item_id", item.ID),
		zap.String("mailbox_id", item.MailboxID),
		zap.String("reason", reason),
	)
	return &SendResult{Outcome: OutcomeCancelled, Item: item, Reason: reason}, nil
}
