package domain

import "time"

// QueueStatus 表示队列条目状态，只允许单向流转：
// pending → sending → sent/failed/cancelled，或 pending → cancelled。
type QueueStatus string

const (
	QueueStatusPending   QueueStatus = "pending"
	QueueStatusSending   QueueStatus = "sending"
	QueueStatusSent      QueueStatus = "sent"
	QueueStatusFailed    QueueStatus = "failed"
	QueueStatusCancelled QueueStatus = "cancelled"
)

// QueueItem 表示一次已排程的预热发送机会（槽位）。
//
// 由 Scheduler 按天批量创建，Sender 恰好消费一次。
// 内容在创建时物化，不做惰性生成。
type QueueItem struct {
	ID          string      `json:"id" gorm:"primaryKey;type:varchar(36)"`
	MailboxID   string      `json:"mailboxId" gorm:"type:varchar(36);index;not null"`
	ScheduledAt time.Time   `json:"scheduledAt" gorm:"index:idx_queue_status_scheduled,priority:2"`
	Status      QueueStatus `json:"status" gorm:"type:varchar(16);index:idx_queue_status_scheduled,priority:1"`

	ToAddress string `json:"toAddress" gorm:"type:varchar(255)"`
	Subject   string `json:"subject" gorm:"type:varchar(500)"`
	Body      string `json:"body" gorm:"type:text"`

	// 创建时的预热天数，留作审计，即使邮箱随后推进也不改写
	WarmupDay int `json:"warmupDay"`

	SentAt    *time.Time `json:"sentAt,omitempty"`
	MessageID string     `json:"messageId,omitempty" gorm:"type:varchar(255)"`
	Error     string     `json:"error,omitempty" gorm:"type:text"`

	CreatedAt time.Time `json:"createdAt"`
}
