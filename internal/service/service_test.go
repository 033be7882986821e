package service

import (
	"time"

	"go.uber.org/zap"

	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/config"
	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/domain"
	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/monitoring"
	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/storage/memory"
)

// 指标注册在全局 registry，整个测试包只创建一次
var testMetrics = monitoring.NewMetrics()

func testConfig() *config.Config {
	return &config.Config{
		Warmup: config.WarmupConfig{
			Schedule: domain.DefaultSchedule(),
			Window: domain.SendWindow{
				StartHour:        6,
				EndHour:          22,
				MinGapMinutes:    10,
				MaxGapMinutes:    30,
				FirstSlotJitterM: 30,
			},
			ToleranceMinutes: 10,
			SendInterval:     5 * time.Minute,
			PostWarmupLimit:  100,
			RetentionDays:    30,
			Location:         time.UTC,
		},
		SMTP: config.SMTPConfig{
			SendTimeout: time.Second,
		},
	}
}

func seedMailbox(store *memory.Store, id, address string, status domain.WarmupStatus, day, limit int, start time.Time) *domain.Mailbox {
	mailbox := &domain.Mailbox{
		ID:               id,
		Address:          address,
		IsActive:         true,
		WarmupStatus:     status,
		WarmupDay:        day,
		WarmupDailyLimit: limit,
		CreatedAt:        start,
	}
	if status == domain.WarmupStatusWarming {
		startDay := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
		mailbox.WarmupStartDate = &startDay
	}
	_ = store.SaveMailbox(mailbox)
	return mailbox
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var testLogger = zap.NewNop()
