package domain

import (
	"errors"
	"fmt"
)

// WarmupHorizonDays 预热周期总天数。
const WarmupHorizonDays = 30

var (
	// ErrScheduleLength 排程表长度不为 30 天
	ErrScheduleLength = errors.New("warmup schedule must have exactly 30 entries")
)

// RateConfig 定义预热排程表中单日的速率配置。
type RateConfig struct {
	Day           int `json:"day"`
	DailyLimit    int `json:"dailyLimit"`    // 当日预热邮件上限
	CampaignLimit int `json:"campaignLimit"` // 当日营销邮件上限（预留给外部发送方）
}

// Schedule 是 30 天预热排程表，按天查询速率配置。纯数据，无状态。
type Schedule struct {
	entries [WarmupHorizonDays]RateConfig
}

// DefaultSchedule 返回内置的 30 天排程表。
//
// 阶段划分：
//   - 第 1-2 天：起步（15 封，营销 5）
//   - 第 3-7 天：缓增（20-25 封，营销 10）
//   - 第 8-14 天：爬升（25-35 封，营销 15）
//   - 第 15-30 天：稳定（30 封，营销 20）
func DefaultSchedule() *Schedule {
	s := &Schedule{}
	for day := 1; day <= WarmupHorizonDays; day++ {
		var limit, campaign int
		switch {
		case day <= 2:
			limit, campaign = 15, 5
		case day <= 5:
			limit, campaign = 20, 10
		case day <= 7:
			limit, campaign = 25, 10
		case day <= 9:
			limit, campaign = 25, 15
		case day <= 12:
			limit, campaign = 30, 15
		case day <= 14:
			limit, campaign = 35, 15
		default:
			limit, campaign = 30, 20
		}
		s.entries[day-1] = RateConfig{Day: day, DailyLimit: limit, CampaignLimit: campaign}
	}
	return s
}

// NewSchedule 从外部配置构造排程表，必须提供完整 30 天条目。
func NewSchedule(entries []RateConfig) (*Schedule, error) {
	if len(entries) != WarmupHorizonDays {
		return nil, ErrScheduleLength
	}
	s := &Schedule{}
	for i, e := range entries {
		if e.Day != i+1 {
			return nil, fmt.Errorf("schedule entry %d has day %d, want %d", i, e.Day, i+1)
		}
		if e.DailyLimit <= 0 {
			return nil, fmt.Errorf("schedule day %d has non-positive daily limit %d", e.Day, e.DailyLimit)
		}
		s.entries[i] = e
	}
	return s, nil
}

// Lookup 返回指定预热天数的速率配置。
//
// day 超出 [1,30] 时返回 ok=false，调用方应视为“今日无预热活动”而非错误。
func (s *Schedule) Lookup(day int) (RateConfig, bool) {
	if day < 1 || day > WarmupHorizonDays {
		return RateConfig{}, false
	}
	return s.entries[day-1], true
}

// Entries 返回全部条目的快照。
func (s *Schedule) Entries() []RateConfig {
	out := make([]RateConfig, WarmupHorizonDays)
	copy(out, s.entries[:])
	return out
}
