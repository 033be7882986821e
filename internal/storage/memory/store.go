package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/domain"
	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/storage"
)

// Store 使用内存保存邮箱、队列与历史数据，主要用于开发验证与测试。
//
// 预约（条件自增）在写锁内完成，与 SQL 实现的单条 UPDATE 等价：
// 比较与自增对外表现为一个不可分割的操作。
type Store struct {
	mu        sync.RWMutex
	mailboxes map[string]*domain.Mailbox
	byAddress map[string]string
	queue     map[string]*domain.QueueItem
	history   map[string][]*domain.HistoryRecord // mailboxID -> records
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		mailboxes: make(map[string]*domain.Mailbox),
		byAddress: make(map[string]string),
		queue:     make(map[string]*domain.QueueItem),
		history:   make(map[string][]*domain.HistoryRecord),
	}
}

// SaveMailbox 保存（或覆盖）邮箱信息。
func (s *Store) SaveMailbox(mailbox *domain.Mailbox) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *mailbox
	s.mailboxes[cp.ID] = &cp
	s.byAddress[cp.Address] = cp.ID
	return nil
}

// GetMailbox 根据 ID 获取邮箱。
func (s *Store) GetMailbox(id string) (*domain.Mailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mailbox, ok := s.mailboxes[id]
	if !ok {
		return nil, storage.ErrMailboxNotFound
	}
	cp := *mailbox
	return &cp, nil
}

// GetMailboxByAddress 根据地址获取邮箱。
func (s *Store) GetMailboxByAddress(address string) (*domain.Mailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byAddress[address]
	if !ok {
		return nil, storage.ErrMailboxNotFound
	}
	cp := *s.mailboxes[id]
	return &cp, nil
}

// ListActiveMailboxes 返回全部活跃邮箱。
func (s *Store) ListActiveMailboxes() ([]domain.Mailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Mailbox, 0, len(s.mailboxes))
	for _, m := range s.mailboxes {
		if m.IsActive {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

// ListWarmingMailboxes 返回全部预热中的邮箱。
func (s *Store) ListWarmingMailboxes() ([]domain.Mailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Mailbox, 0)
	for _, m := range s.mailboxes {
		if m.WarmupStatus == domain.WarmupStatusWarming {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

// ResetWarmupCounters 将全部预热中邮箱当日计数清零。
func (s *Store) ResetWarmupCounters() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, m := range s.mailboxes {
		if m.WarmupStatus == domain.WarmupStatusWarming {
			m.WarmupTodaySent = 0
			count++
		}
	}
	return count, nil
}

// ReserveWarmupSlot 原子条件自增当日计数。
func (s *Store) ReserveWarmupSlot(mailboxID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.mailboxes[mailboxID]
	if !ok {
		return false, storage.ErrMailboxNotFound
	}
	if m.WarmupTodaySent >= m.WarmupDailyLimit {
		return false, nil
	}
	m.WarmupTodaySent++
	return true, nil
}

// CreateQueueItems 批量写入队列条目。
func (s *Store) CreateQueueItems(items []*domain.QueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range items {
		cp := *item
		s.queue[cp.ID] = &cp
	}
	return nil
}

// NextDueQueueItem 返回最早到期的 pending 条目。
func (s *Store) NextDueQueueItem(due time.Time) (*domain.QueueItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var next *domain.QueueItem
	for _, item := range s.queue {
		if item.Status != domain.QueueStatusPending || item.ScheduledAt.After(due) {
			continue
		}
		if next == nil || item.ScheduledAt.Before(next.ScheduledAt) {
			next = item
		}
	}
	if next == nil {
		return nil, storage.ErrNoDueItem
	}
	cp := *next
	return &cp, nil
}

// ClaimQueueItem 条件占用：仅当条目仍为 pending 时置为 sending。
func (s *Store) ClaimQueueItem(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.queue[id]
	if !ok || item.Status != domain.QueueStatusPending {
		return false, nil
	}
	item.Status = domain.QueueStatusSending
	return true, nil
}

// UpdateQueueItemStatus 更新队列条目状态及错误文本。
func (s *Store) UpdateQueueItemStatus(id string, status domain.QueueStatus, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.queue[id]
	if !ok {
		return storage.ErrQueueItemNotFound
	}
	item.Status = status
	if errText != "" {
		item.Error = errText
	}
	return nil
}

// ListQueueItems 返回指定邮箱的队列条目，按计划时间升序。
func (s *Store) ListQueueItems(mailboxID string, limit int) ([]domain.QueueItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.QueueItem, 0)
	for _, item := range s.queue {
		if item.MailboxID == mailboxID {
			out = append(out, *item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CountPendingQueueItems 统计指定邮箱在 [from, to) 内的 pending 条目数。
func (s *Store) CountPendingQueueItems(mailboxID string, from, to time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, item := range s.queue {
		if item.MailboxID == mailboxID &&
			item.Status == domain.QueueStatusPending &&
			!item.ScheduledAt.Before(from) && item.ScheduledAt.Before(to) {
			count++
		}
	}
	return count, nil
}

// DeletePendingQueueItems 删除指定邮箱在 [from, to) 内的 pending 条目。
func (s *Store) DeletePendingQueueItems(mailboxID string, from, to time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, item := range s.queue {
		if item.MailboxID == mailboxID &&
			item.Status == domain.QueueStatusPending &&
			!item.ScheduledAt.Before(from) && item.ScheduledAt.Before(to) {
			delete(s.queue, id)
			count++
		}
	}
	return count, nil
}

// CancelPendingQueueItems 取消指定邮箱全部 pending 条目。
func (s *Store) CancelPendingQueueItems(mailboxID string, reason string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, item := range s.queue {
		if item.MailboxID == mailboxID && item.Status == domain.QueueStatusPending {
			item.Status = domain.QueueStatusCancelled
			item.Error = reason
			count++
		}
	}
	return count, nil
}

// DeleteQueueItemsBefore 清理早于 cutoff 创建的队列条目。
func (s *Store) DeleteQueueItemsBefore(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, item := range s.queue {
		if item.CreatedAt.Before(cutoff) {
			delete(s.queue, id)
			count++
		}
	}
	return count, nil
}

// SaveHistoryRecord 追加历史记录。
func (s *Store) SaveHistoryRecord(record *domain.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *record
	s.history[cp.MailboxID] = append(s.history[cp.MailboxID], &cp)
	return nil
}

// ListHistory 返回指定邮箱的历史记录，按创建时间倒序。
func (s *Store) ListHistory(mailboxID string, limit int) ([]domain.HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.history[mailboxID]
	out := make([]domain.HistoryRecord, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		out = append(out, *records[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// CountHistoryByOutcome 统计指定邮箱历史中 sent 与 failed 的条数。
func (s *Store) CountHistoryByOutcome(mailboxID string) (int64, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sent, failed int64
	for _, rec := range s.history[mailboxID] {
		switch rec.Outcome {
		case domain.HistoryOutcomeSent:
			sent++
		case domain.HistoryOutcomeFailed:
			failed++
		}
	}
	return sent, failed, nil
}

// CompleteSend 成功路径原子落账：条目、邮箱计数、历史一次更新。
func (s *Store) CompleteSend(item *domain.QueueItem, sentAt time.Time, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.queue[item.ID]
	if !ok {
		return storage.ErrQueueItemNotFound
	}
	stored.Status = domain.QueueStatusSent
	stored.SentAt = &sentAt
	stored.MessageID = messageID

	if m, ok := s.mailboxes[item.MailboxID]; ok {
		m.TotalSent++
		m.LastWarmupAt = &sentAt
		m.LastUsedAt = &sentAt
	}

	rec := &domain.HistoryRecord{
		ID:        uuid.NewString(),
		MailboxID: item.MailboxID,
		ToAddress: item.ToAddress,
		Subject:   item.Subject,
		Body:      item.Body,
		Outcome:   domain.HistoryOutcomeSent,
		MessageID: messageID,
		SentAt:    &sentAt,
		WarmupDay: item.WarmupDay,
		CreatedAt: sentAt,
	}
	s.history[rec.MailboxID] = append(s.history[rec.MailboxID], rec)
	return nil
}

// FailSend 失败路径落账：条目置 failed 并写入失败历史，不动当日计数。
func (s *Store) FailSend(item *domain.QueueItem, sendErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.queue[item.ID]
	if !ok {
		return storage.ErrQueueItemNotFound
	}
	stored.Status = domain.QueueStatusFailed
	stored.Error = sendErr

	now := time.Now().UTC()
	rec := &domain.HistoryRecord{
		ID:        uuid.NewString(),
		MailboxID: item.MailboxID,
		ToAddress: item.ToAddress,
		Subject:   item.Subject,
		Body:      item.Body,
		Outcome:   domain.HistoryOutcomeFailed,
		Error:     sendErr,
		WarmupDay: item.WarmupDay,
		CreatedAt: now,
	}
	s.history[rec.MailboxID] = append(s.history[rec.MailboxID], rec)
	return nil
}

// Close 关闭存储（内存实现为空操作）。
func (s *Store) Close() error { return nil }

// Health 检查存储健康状态（内存实现恒为健康）。
func (s *Store) Health() error { return nil }
