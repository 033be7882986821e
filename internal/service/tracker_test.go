package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/domain"
	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/storage/memory"
)

func newTracker(store *memory.Store, now time.Time) *TrackerService {
	tracker := NewTrackerService(store, testConfig(), testLogger, testMetrics)
	tracker.SetNowFunc(fixedClock(now))
	return tracker
}

func TestTrackerService_StartWarmup(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	t.Run("从第一天开始", func(t *testing.T) {
		store := memory.NewStore()
		seedMailbox(store, "mb-1", "a@example.com", domain.WarmupStatusInactive, 0, 0, now)
		tracker := newTracker(store, now)

		mailbox, err := tracker.StartWarmup("mb-1")
		require.NoError(t, err)

		assert.Equal(t, domain.WarmupStatusWarming, mailbox.WarmupStatus)
		assert.Equal(t, 1, mailbox.WarmupDay)
		assert.Equal(t, 15, mailbox.WarmupDailyLimit)
		assert.Equal(t, 0, mailbox.WarmupTodaySent)
		require.NotNil(t, mailbox.WarmupStartDate)
		assert.Equal(t, now.Day(), mailbox.WarmupStartDate.Day())
		assert.Nil(t, mailbox.WarmupCompletedAt)
		assert.Empty(t, mailbox.WarmupIssues)
	})

	t.Run("重复启动被拒绝", func(t *testing.T) {
		store := memory.NewStore()
		seedMailbox(store, "mb-1", "a@example.com", domain.WarmupStatusWarming, 5, 20, now)
		tracker := newTracker(store, now)

		_, err := tracker.StartWarmup("mb-1")
		assert.ErrorIs(t, err, ErrAlreadyWarming)
	})

	t.Run("非活跃邮箱被拒绝", func(t *testing.T) {
		store := memory.NewStore()
		m := seedMailbox(store, "mb-1", "a@example.com", domain.WarmupStatusInactive, 0, 0, now)
		m.IsActive = false
		require.NoError(t, store.SaveMailbox(m))
		tracker := newTracker(store, now)

		_, err := tracker.StartWarmup("mb-1")
		assert.ErrorIs(t, err, ErrMailboxFrozen)
	})

	t.Run("重新启动清除上一轮痕迹", func(t *testing.T) {
		store := memory.NewStore()
		m := seedMailbox(store, "mb-1", "a@example.com", domain.WarmupStatusReady, 30, 100, now)
		completed := now.AddDate(0, 0, -10)
		m.WarmupCompletedAt = &completed
		m.WarmupIssues = "high failure rate"
		m.WarmupTodaySent = 7
		require.NoError(t, store.SaveMailbox(m))
		tracker := newTracker(store, now)

		mailbox, err := tracker.StartWarmup("mb-1")
		require.NoError(t, err)
		assert.Equal(t, 1, mailbox.WarmupDay)
		assert.Equal(t, 0, mailbox.WarmupTodaySent)
		assert.Nil(t, mailbox.WarmupCompletedAt)
		assert.Empty(t, mailbox.WarmupIssues)
	})
}

func TestTrackerService_StopWarmup(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	t.Run("停止并取消待发条目", func(t *testing.T) {
		store := memory.NewStore()
		seedMailbox(store, "mb-1", "a@example.com", domain.WarmupStatusWarming, 3, 20, now)
		require.NoError(t, store.CreateQueueItems([]*domain.QueueItem{
			{ID: "q-1", MailboxID: "mb-1", Status: domain.QueueStatusPending, ScheduledAt: now.Add(time.Hour), CreatedAt: now},
			{ID: "q-2", MailboxID: "mb-1", Status: domain.QueueStatusSent, ScheduledAt: now.Add(-time.Hour), CreatedAt: now},
		}))
		tracker := newTracker(store, now)

		mailbox, err := tracker.StopWarmup("mb-1")
		require.NoError(t, err)
		assert.Equal(t, domain.WarmupStatusInactive, mailbox.WarmupStatus)

		items, err := store.ListQueueItems("mb-1", 0)
		require.NoError(t, err)
		statuses := map[string]domain.QueueStatus{}
		for _, it := range items {
			statuses[it.ID] = it.Status
		}
		assert.Equal(t, domain.QueueStatusCancelled, statuses["q-1"])
		assert.Equal(t, domain.QueueStatusSent, statuses["q-2"]) // 已发送的不动
	})

	t.Run("未预热的邮箱被拒绝", func(t *testing.T) {
		store := memory.NewStore()
		seedMailbox(store, "mb-1", "a@example.com", domain.WarmupStatusInactive, 0, 0, now)
		tracker := newTracker(store, now)

		_, err := tracker.StopWarmup("mb-1")
		assert.ErrorIs(t, err, ErrNotWarming)
	})
}

func TestTrackerService_AdvanceDays(t *testing.T) {
	t.Run("按自然日推进并套用新上限", func(t *testing.T) {
		start := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
		now := start.AddDate(0, 0, 2).Add(time.Hour) // 第 3 天凌晨
		store := memory.NewStore()
		seedMailbox(store, "mb-1", "a@example.com", domain.WarmupStatusWarming, 2, 15, start)
		tracker := newTracker(store, now)

		advanced, completed, err := tracker.AdvanceDays()
		require.NoError(t, err)
		assert.Equal(t, 1, advanced)
		assert.Equal(t, 0, completed)

		m, err := store.GetMailbox("mb-1")
		require.NoError(t, err)
		assert.Equal(t, 3, m.WarmupDay)
		assert.Equal(t, 20, m.WarmupDailyLimit)
	})

	t.Run("停机多天后一次对齐", func(t *testing.T) {
		start := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
		now := start.AddDate(0, 0, 12).Add(time.Hour) // 实际已是第 13 天
		store := memory.NewStore()
		seedMailbox(store, "mb-1", "a@example.com", domain.WarmupStatusWarming, 4, 20, start)
		tracker := newTracker(store, now)

		_, _, err := tracker.AdvanceDays()
		require.NoError(t, err)

		m, err := store.GetMailbox("mb-1")
		require.NoError(t, err)
		assert.Equal(t, 13, m.WarmupDay)
		assert.Equal(t, 35, m.WarmupDailyLimit)
	})

	t.Run("同一天重复运行无变化", func(t *testing.T) {
		start := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
		now := start.AddDate(0, 0, 1).Add(time.Hour)
		store := memory.NewStore()
		seedMailbox(store, "mb-1", "a@example.com", domain.WarmupStatusWarming, 2, 15, start)
		tracker := newTracker(store, now)

		advanced, _, err := tracker.AdvanceDays()
		require.NoError(t, err)
		assert.Equal(t, 0, advanced)
	})

	t.Run("越过第三十天转为毕业", func(t *testing.T) {
		start := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
		now := start.AddDate(0, 0, 30).Add(time.Hour) // 第 31 天
		store := memory.NewStore()
		seedMailbox(store, "mb-1", "a@example.com", domain.WarmupStatusWarming, 30, 30, start)
		tracker := newTracker(store, now)

		advanced, completed, err := tracker.AdvanceDays()
		require.NoError(t, err)
		assert.Equal(t, 0, advanced)
		assert.Equal(t, 1, completed)

		m, err := store.GetMailbox("mb-1")
		require.NoError(t, err)
		assert.Equal(t, domain.WarmupStatusReady, m.WarmupStatus)
		assert.Equal(t, 30, m.WarmupDay)
		assert.Equal(t, 100, m.WarmupDailyLimit)
		require.NotNil(t, m.WarmupCompletedAt)
	})
}

func TestTrackerService_ResetDailyCounters(t *testing.T) {
	now := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	store := memory.NewStore()
	m := seedMailbox(store, "mb-1", "a@example.com", domain.WarmupStatusWarming, 3, 20, now)
	m.WarmupTodaySent = 17
	require.NoError(t, store.SaveMailbox(m))
	ready := seedMailbox(store, "mb-2", "b@example.com", domain.WarmupStatusReady, 30, 100, now)
	ready.WarmupTodaySent = 9
	require.NoError(t, store.SaveMailbox(ready))
	tracker := newTracker(store, now)

	count, err := tracker.ResetDailyCounters()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := store.GetMailbox("mb-1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.WarmupTodaySent)

	// 清零只作用于预热中的邮箱，毕业后的计数不受影响
	gotReady, err := store.GetMailbox("mb-2")
	require.NoError(t, err)
	assert.Equal(t, 9, gotReady.WarmupTodaySent)

	// 幂等
	_, err = tracker.ResetDailyCounters()
	require.NoError(t, err)
}

func TestTrackerService_CleanupQueue(t *testing.T) {
	now := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	store := memory.NewStore()
	require.NoError(t, store.CreateQueueItems([]*domain.QueueItem{
		{ID: "q-old", MailboxID: "mb-1", Status: domain.QueueStatusSent, ScheduledAt: now.AddDate(0, 0, -40), CreatedAt: now.AddDate(0, 0, -40)},
		{ID: "q-fresh", MailboxID: "mb-1", Status: domain.QueueStatusSent, ScheduledAt: now.AddDate(0, 0, -5), CreatedAt: now.AddDate(0, 0, -5)},
	}))
	tracker := newTracker(store, now)

	purged, err := tracker.CleanupQueue()
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	items, err := store.ListQueueItems("mb-1", 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "q-fresh", items[0].ID)
}

func TestTrackerService_RegisterMailbox(t *testing.T) {
	now := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	t.Run("登记新邮箱", func(t *testing.T) {
		store := memory.NewStore()
		tracker := newTracker(store, now)

		mailbox, err := tracker.RegisterMailbox("anna@example.com", "Anna")
		require.NoError(t, err)
		assert.NotEmpty(t, mailbox.ID)
		assert.True(t, mailbox.IsActive)
		assert.Equal(t, domain.WarmupStatusInactive, mailbox.WarmupStatus)
	})

	t.Run("地址重复被拒绝", func(t *testing.T) {
		store := memory.NewStore()
		tracker := newTracker(store, now)

		_, err := tracker.RegisterMailbox("anna@example.com", "Anna")
		require.NoError(t, err)
		_, err = tracker.RegisterMailbox("anna@example.com", "Anna II")
		assert.ErrorIs(t, err, ErrAddressTaken)
	})
}
