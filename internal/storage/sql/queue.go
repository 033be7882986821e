package sql

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/domain"
	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/storage"
)

// ========== Queue Repository ==========

const queueColumns = `
	id, mailbox_id, scheduled_at, status,
	to_address, subject, body, warmup_day,
	sent_at, message_id, error, created_at
`

// CreateQueueItems 批量写入队列条目（单条多值 INSERT）
func (s *Store) CreateQueueItems(items []*domain.QueueItem) error {
	if len(items) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString(`INSERT INTO queue_items (` + queueColumns + `) VALUES `)
	args := make([]interface{}, 0, len(items)*12)
	now := time.Now().UTC()
	for i, item := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		if item.CreatedAt.IsZero() {
			item.CreatedAt = now
		}
		args = append(args,
			item.ID,
			item.MailboxID,
			item.ScheduledAt,
			item.Status,
			item.ToAddress,
			item.Subject,
			item.Body,
			item.WarmupDay,
			item.SentAt,
			item.MessageID,
			item.Error,
			item.CreatedAt,
		)
	}

	_, err := s.db.Exec(s.rebind(b.String()), args...)
	return err
}

// NextDueQueueItem 返回最早到期的 pending 条目
func (s *Store) NextDueQueueItem(due time.Time) (*domain.QueueItem, error) {
	query := `
		SELECT ` + queueColumns + `
		FROM queue_items
		WHERE status = 'pending' AND scheduled_at <= ?
		ORDER BY scheduled_at
		LIMIT 1
	`
	item, err := s.scanQueueItem(s.db.QueryRow(s.rebind(query), due))
	if errors.Is(err, storage.ErrQueueItemNotFound) {
		return nil, storage.ErrNoDueItem
	}
	return item, err
}

// ClaimQueueItem 条件占用：仅当条目仍为 pending 时置为 sending
//
// 状态检查与流转在一条 UPDATE 内完成，两个消费者同时取到同一条目时
// 只有一个能占用成功。
func (s *Store) ClaimQueueItem(id string) (bool, error) {
	query := `UPDATE queue_items SET status = 'sending' WHERE id = ? AND status = 'pending'`
	result, err := s.db.Exec(s.rebind(query), id)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// UpdateQueueItemStatus 更新队列条目状态及错误文本
func (s *Store) UpdateQueueItemStatus(id string, status domain.QueueStatus, errText string) error {
	var result sql.Result
	var err error
	if errText != "" {
		query := `UPDATE queue_items SET status = ?, error = ? WHERE id = ?`
		result, err = s.db.Exec(s.rebind(query), status, errText, id)
	} else {
		query := `UPDATE queue_items SET status = ? WHERE id = ?`
		result, err = s.db.Exec(s.rebind(query), status, id)
	}
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrQueueItemNotFound
	}
	return nil
}

// ListQueueItems 返回指定邮箱的队列条目，按计划时间升序
func (s *Store) ListQueueItems(mailboxID string, limit int) ([]domain.QueueItem, error) {
	query := `
		SELECT ` + queueColumns + `
		FROM queue_items
		WHERE mailbox_id = ?
		ORDER BY scheduled_at
	`
	args := []interface{}{mailboxID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.QueueItem
	for rows.Next() {
		var item domain.QueueItem
		var sentAt sql.NullTime
		var messageID, errText sql.NullString

		err := rows.Scan(
			&item.ID,
			&item.MailboxID,
			&item.ScheduledAt,
			&item.Status,
			&item.ToAddress,
			&item.Subject,
			&item.Body,
			&item.WarmupDay,
			&sentAt,
			&messageID,
			&errText,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		if sentAt.Valid {
			item.SentAt = &sentAt.Time
		}
		item.MessageID = messageID.String
		item.Error = errText.String
		items = append(items, item)
	}
	return items, rows.Err()
}

// CountPendingQueueItems 统计指定邮箱在 [from, to) 内的 pending 条目数
func (s *Store) CountPendingQueueItems(mailboxID string, from, to time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM queue_items
		WHERE mailbox_id = ? AND status = 'pending' AND scheduled_at >= ? AND scheduled_at < ?
	`
	var count int
	err := s.db.QueryRow(s.rebind(query), mailboxID, from, to).Scan(&count)
	return count, err
}

// DeletePendingQueueItems 删除指定邮箱在 [from, to) 内的 pending 条目
func (s *Store) DeletePendingQueueItems(mailboxID string, from, to time.Time) (int, error) {
	query := `
		DELETE FROM queue_items
		WHERE mailbox_id = ? AND status = 'pending' AND scheduled_at >= ? AND scheduled_at < ?
	`
	result, err := s.db.Exec(s.rebind(query), mailboxID, from, to)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	return int(affected), err
}

// CancelPendingQueueItems 取消指定邮箱全部 pending 条目
func (s *Store) CancelPendingQueueItems(mailboxID string, reason string) (int, error) {
	query := `
		UPDATE queue_items
		SET status = 'cancelled', error = ?
		WHERE mailbox_id = ? AND status = 'pending'
	`
	result, err := s.db.Exec(s.rebind(query), reason, mailboxID)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	return int(affected), err
}

// DeleteQueueItemsBefore 清理早于 cutoff 创建的队列条目
func (s *Store) DeleteQueueItemsBefore(cutoff time.Time) (int, error) {
	query := `DELETE FROM queue_items WHERE created_at < ?`
	result, err := s.db.Exec(s.rebind(query), cutoff)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	return int(affected), err
}

// scanQueueItem 从单行结果扫描队列条目
func (s *Store) scanQueueItem(row *sql.Row) (*domain.QueueItem, error) {
	var item domain.QueueItem
	var sentAt sql.NullTime
	var messageID, errText sql.NullString

	err := row.Scan(
		&item.ID,
		&item.MailboxID,
		&item.ScheduledAt,
		&item.Status,
		&item.ToAddress,
		&item.Subject,
		&item.Body,
		&item.WarmupDay,
		&sentAt,
		&messageID,
		&errText,
		&item.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrQueueItemNotFound
	}
	if err != nil {
		return nil, err
	}

	if sentAt.Valid {
		item.SentAt = &sentAt.Time
	}
	item.MessageID = messageID.String
	item.Error = errText.String
	return &item, nil
}
