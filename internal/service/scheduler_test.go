package service

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/domain"
	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/pool"
	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/storage/memory"
)

func newScheduler(store *memory.Store, seed int64) *SchedulerService {
	scheduler := NewSchedulerService(store, testConfig(), testLogger, testMetrics)
	scheduler.SetRandSource(rand.NewSource(seed))
	return scheduler
}

func TestSchedulerService_ScheduleDay(t *testing.T) {
	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	t.Run("第一天生成十五个槽位", func(t *testing.T) {
		store := memory.NewStore()
		seedMailbox(store, "mb-1", "anna@example.com", domain.WarmupStatusWarming, 1, 15, date)
		seedMailbox(store, "mb-2", "jan@example.com", domain.WarmupStatusInactive, 0, 0, date)
		scheduler := newScheduler(store, 42)

		slots, err := scheduler.ScheduleDay("mb-1", date)
		require.NoError(t, err)
		assert.Equal(t, 15, slots)

		items, err := store.ListQueueItems("mb-1", 0)
		require.NoError(t, err)
		require.Len(t, items, 15)
		window := testConfig().Warmup.Window
		for _, item := range items {
			assert.Equal(t, domain.QueueStatusPending, item.Status)
			assert.Equal(t, "jan@example.com", item.ToAddress) // 唯一的同伴邮箱
			assert.Equal(t, 1, item.WarmupDay)
			assert.NotEmpty(t, item.Subject)
			assert.Contains(t, item.Body, "Pozdrawiam")
			assert.True(t, window.Contains(item.ScheduledAt))
		}

		m, err := store.GetMailbox("mb-1")
		require.NoError(t, err)
		require.NotNil(t, m.NextWarmupAt)
		assert.True(t, m.NextWarmupAt.Equal(items[0].ScheduledAt))
	})

	t.Run("重复排程替换而不累积", func(t *testing.T) {
		store := memory.NewStore()
		seedMailbox(store, "mb-1", "anna@example.com", domain.WarmupStatusWarming, 1, 15, date)
		seedMailbox(store, "mb-2", "jan@example.com", domain.WarmupStatusInactive, 0, 0, date)
		scheduler := newScheduler(store, 42)

		_, err := scheduler.ScheduleDay("mb-1", date)
		require.NoError(t, err)
		_, err = scheduler.ScheduleDay("mb-1", date)
		require.NoError(t, err)

		items, err := store.ListQueueItems("mb-1", 0)
		require.NoError(t, err)
		assert.Len(t, items, 15)
	})

	t.Run("已终态条目不被重排影响", func(t *testing.T) {
		store := memory.NewStore()
		seedMailbox(store, "mb-1", "anna@example.com", domain.WarmupStatusWarming, 1, 15, date)
		seedMailbox(store, "mb-2", "jan@example.com", domain.WarmupStatusInactive, 0, 0, date)
		require.NoError(t, store.CreateQueueItems([]*domain.QueueItem{
			{ID: "q-sent", MailboxID: "mb-1", Status: domain.QueueStatusSent, ScheduledAt: date.Add(8 * time.Hour), CreatedAt: date},
		}))
		scheduler := newScheduler(store, 42)

		slots, err := scheduler.ScheduleDay("mb-1", date)
		require.NoError(t, err)
		assert.Equal(t, 15, slots)

		items, err := store.ListQueueItems("mb-1", 0)
		require.NoError(t, err)
		assert.Len(t, items, 16) // 15 个新 pending + 1 个历史 sent
	})

	t.Run("没有同伴邮箱时中止", func(t *testing.T) {
		store := memory.NewStore()
		seedMailbox(store, "mb-1", "anna@example.com", domain.WarmupStatusWarming, 1, 15, date)
		scheduler := newScheduler(store, 42)

		_, err := scheduler.ScheduleDay("mb-1", date)
		assert.ErrorIs(t, err, ErrNoRecipients)

		items, err := store.ListQueueItems("mb-1", 0)
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("非预热状态被拒绝", func(t *testing.T) {
		store := memory.NewStore()
		seedMailbox(store, "mb-1", "anna@example.com", domain.WarmupStatusReady, 30, 100, date)
		scheduler := newScheduler(store, 42)

		_, err := scheduler.ScheduleDay("mb-1", date)
		assert.ErrorIs(t, err, ErrNotWarming)
	})

	t.Run("收件人从不包含自己", func(t *testing.T) {
		store := memory.NewStore()
		seedMailbox(store, "mb-1", "anna@example.com", domain.WarmupStatusWarming, 14, 35, date)
		seedMailbox(store, "mb-2", "jan@example.com", domain.WarmupStatusInactive, 0, 0, date)
		seedMailbox(store, "mb-3", "ewa@example.com", domain.WarmupStatusInactive, 0, 0, date)
		scheduler := newScheduler(store, 7)

		_, err := scheduler.ScheduleDay("mb-1", date)
		require.NoError(t, err)

		items, err := store.ListQueueItems("mb-1", 0)
		require.NoError(t, err)
		for _, item := range items {
			assert.NotEqual(t, "anna@example.com", item.ToAddress)
		}
	})
}

func TestSchedulerService_ScheduleAllWarming(t *testing.T) {
	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	t.Run("为全部预热邮箱扇出排程", func(t *testing.T) {
		store := memory.NewStore()
		seedMailbox(store, "mb-1", "anna@example.com", domain.WarmupStatusWarming, 1, 15, date)
		seedMailbox(store, "mb-2", "jan@example.com", domain.WarmupStatusWarming, 3, 20, date)
		seedMailbox(store, "mb-3", "ewa@example.com", domain.WarmupStatusInactive, 0, 0, date)
		scheduler := newScheduler(store, 42)

		workers := pool.NewWorkerPool(2, 8)
		workers.Start(t.Context())
		defer workers.Stop()

		slots, failed, err := scheduler.ScheduleAllWarming(workers, date)
		require.NoError(t, err)
		assert.Equal(t, 0, failed)
		assert.Equal(t, 15+20, slots)
	})

	t.Run("没有同伴的邮箱按无事可做跳过", func(t *testing.T) {
		store := memory.NewStore()
		// 唯一的预热邮箱没有同伴收件人：配置缺位，不算排程失败
		seedMailbox(store, "mb-1", "anna@example.com", domain.WarmupStatusWarming, 1, 15, date)
		scheduler := newScheduler(store, 42)

		workers := pool.NewWorkerPool(2, 8)
		workers.Start(t.Context())
		defer workers.Stop()

		slots, failed, err := scheduler.ScheduleAllWarming(workers, date)
		require.NoError(t, err)
		assert.Equal(t, 0, slots)
		assert.Equal(t, 0, failed)
	})
}
