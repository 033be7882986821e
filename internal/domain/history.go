package domain

import "time"

// HistoryOutcome 表示历史记录的发送结果。
type HistoryOutcome string

const (
	HistoryOutcomeSent   HistoryOutcome = "sent"
	HistoryOutcomeFailed HistoryOutcome = "failed"
)

// HistoryRecord 是只追加的发送历史，每个队列条目结果写入一条，创建后不再修改。
type HistoryRecord struct {
	ID        string         `json:"id" gorm:"primaryKey;type:varchar(36)"`
	MailboxID string         `json:"mailboxId" gorm:"type:varchar(36);index;not null"`
	ToAddress string         `json:"toAddress" gorm:"type:varchar(255)"`
	Subject   string         `json:"subject" gorm:"type:varchar(500)"`
	Body      string         `json:"body" gorm:"type:text"`
	Outcome   HistoryOutcome `json:"outcome" gorm:"type:varchar(16);index"`
	Error     string         `json:"error,omitempty" gorm:"type:text"`
	MessageID string         `json:"messageId,omitempty" gorm:"type:varchar(255)"`
	SentAt    *time.Time     `json:"sentAt,omitempty"`
	WarmupDay int            `json:"warmupDay"`
	CreatedAt time.Time      `json:"createdAt"`
}
