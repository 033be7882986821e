package storage

import (
	"errors"
	"time"

	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/domain"
)

var (
	// ErrMailboxNotFound 邮箱未找到错误
	ErrMailboxNotFound = errors.New("mailbox not found")
	// ErrQueueItemNotFound 队列条目未找到错误
	ErrQueueItemNotFound = errors.New("queue item not found")
	// ErrNoDueItem 当前没有到期的待发条目
	ErrNoDueItem = errors.New("no due queue item")
)

// MailboxRepository 定义邮箱数据存取操作。
type MailboxRepository interface {
	SaveMailbox(mailbox *domain.Mailbox) error
	GetMailbox(id string) (*domain.Mailbox, error)
	GetMailboxByAddress(address string) (*domain.Mailbox, error)
	ListActiveMailboxes() ([]domain.Mailbox, error)
	ListWarmingMailboxes() ([]domain.Mailbox, error)

	// ResetWarmupCounters 将全部预热中邮箱的当日计数清零，返回影响行数。
	// 幂等：同一天重复调用是无害的空操作。
	ResetWarmupCounters() (int, error)

	// ReserveWarmupSlot 原子条件自增：仅当 warmupTodaySent < warmupDailyLimit
	// 时加一，作为单条不可分割操作执行。返回是否预约成功。
	//
	// 这是整个子系统的并发安全锚点——比较与自增必须在持久层一次完成，
	// 接口上不拆成“读取再条件写入”两步，避免调用方重新引入竞态。
	ReserveWarmupSlot(mailboxID string) (bool, error)
}

// QueueRepository 定义预热队列数据存取操作。
type QueueRepository interface {
	CreateQueueItems(items []*domain.QueueItem) error

	// NextDueQueueItem 返回 scheduledAt 不晚于 due 的最早 pending 条目，
	// 没有时返回 ErrNoDueItem。
	NextDueQueueItem(due time.Time) (*domain.QueueItem, error)

	// ClaimQueueItem 条件占用：仅当条目仍为 pending 时置为 sending，
	// 检查与流转作为单条不可分割操作执行。返回 false 表示条目已被
	// 其他消费者占用或已离开 pending 态，调用方应放弃这条而不消耗配额。
	ClaimQueueItem(id string) (bool, error)

	UpdateQueueItemStatus(id string, status domain.QueueStatus, errText string) error
	ListQueueItems(mailboxID string, limit int) ([]domain.QueueItem, error)
	CountPendingQueueItems(mailboxID string, from, to time.Time) (int, error)

	// DeletePendingQueueItems 删除指定邮箱在 [from, to) 内的 pending 条目，
	// 用于重排程的幂等替换。
	DeletePendingQueueItems(mailboxID string, from, to time.Time) (int, error)

	// CancelPendingQueueItems 取消指定邮箱全部 pending 条目（停止预热时）。
	CancelPendingQueueItems(mailboxID string, reason string) (int, error)

	// DeleteQueueItemsBefore 清理早于 cutoff 创建的条目（保留期管理）。
	DeleteQueueItemsBefore(cutoff time.Time) (int, error)
}

// HistoryRepository 定义发送历史数据存取操作，历史只追加不修改。
type HistoryRepository interface {
	SaveHistoryRecord(record *domain.HistoryRecord) error
	ListHistory(mailboxID string, limit int) ([]domain.HistoryRecord, error)
	CountHistoryByOutcome(mailboxID string) (sent int64, failed int64, err error)
}

// Store 定义完整的存储接口。
type Store interface {
	MailboxRepository
	QueueRepository
	HistoryRepository

	// CompleteSend 成功路径的原子落账：队列条目置 sent、邮箱生命周期计数
	// 与时间戳更新、历史记录写入，三者一次提交，历史与邮箱状态不会分叉。
	CompleteSend(item *domain.QueueItem, sentAt time.Time, messageID string) error

	// FailSend 失败路径落账：队列条目置 failed 并写入失败历史。
	// 不回滚当日计数预约——失败的尝试仍然消耗当天一个槽位。
	FailSend(item *domain.QueueItem, sendErr string) error

	// 工具方法
	Close() error
	Health() error
}
