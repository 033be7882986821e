package domain

import (
	"strings"
	"time"
)

// WarmupStatus 表示邮箱预热生命周期状态。
type WarmupStatus string

const (
	// WarmupStatusInactive 未进入预热
	WarmupStatusInactive WarmupStatus = "inactive"
	// WarmupStatusWarming 预热进行中（第 1..30 天）
	WarmupStatusWarming WarmupStatus = "warming"
	// WarmupStatusReady 预热完成，可全量发信
	WarmupStatusReady WarmupStatus = "ready"
)

// Mailbox 表示参与预热的发信邮箱实体。
//
// WarmupTodaySent 在任何时刻都不得超过 WarmupDailyLimit，
// 该计数器只能通过存储层的条件自增（预约）来增加。
type Mailbox struct {
	ID          string `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Address     string `json:"address" gorm:"type:varchar(255);uniqueIndex"`
	DisplayName string `json:"displayName" gorm:"type:varchar(255)"`
	IsActive    bool   `json:"isActive" gorm:"default:true;index"`

	WarmupStatus      WarmupStatus `json:"warmupStatus" gorm:"type:varchar(16);index;default:'inactive'"`
	WarmupDay         int          `json:"warmupDay"`        // 1..30，仅在 warming 状态有意义
	WarmupDailyLimit  int          `json:"warmupDailyLimit"` // 当日发送上限（镜像排程表）
	WarmupTodaySent   int          `json:"warmupTodaySent"`  // 当日已发送计数，每日清零
	WarmupStartDate   *time.Time   `json:"warmupStartDate,omitempty"`
	WarmupCompletedAt *time.Time   `json:"warmupCompletedAt,omitempty"`
	WarmupIssues      string       `json:"warmupIssues,omitempty" gorm:"type:text"`

	// 健康指标（由 MailboxHealthService 周期性刷新）
	DeliverabilityScore int     `json:"deliverabilityScore"`
	BounceRate          float64 `json:"bounceRate"`

	// 生命周期累计
	TotalSent    int64      `json:"totalSent"`
	LastWarmupAt *time.Time `json:"lastWarmupAt,omitempty"`
	NextWarmupAt *time.Time `json:"nextWarmupAt,omitempty"`
	LastUsedAt   *time.Time `json:"lastUsedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SenderName 返回发件人署名，没有显示名时退回地址本地部分。
func (m *Mailbox) SenderName() string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	if idx := strings.Index(m.Address, "@"); idx > 0 {
		return m.Address[:idx]
	}
	return m.Address
}

// IsWarming 判断邮箱是否处于预热中。
func (m *Mailbox) IsWarming() bool {
	return m.WarmupStatus == WarmupStatusWarming
}
