package sql

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/domain"
	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/storage"
)

// ========== History Repository ==========

const historyColumns = `
	id, mailbox_id, to_address, subject, body,
	outcome, error, message_id, sent_at, warmup_day, created_at
`

const insertHistoryQuery = `
	INSERT INTO history_records (` + historyColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// SaveHistoryRecord 追加历史记录
func (s *Store) SaveHistoryRecord(record *domain.HistoryRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(s.rebind(insertHistoryQuery), historyArgs(record)...)
	return err
}

// ListHistory 返回指定邮箱的历史记录，按创建时间倒序
func (s *Store) ListHistory(mailboxID string, limit int) ([]domain.HistoryRecord, error) {
	query := `
		SELECT ` + historyColumns + `
		FROM history_records
		WHERE mailbox_id = ?
		ORDER BY created_at DESC
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

	var records []domain.HistoryRecord
	for rows.Next() {
		var rec domain.HistoryRecord
		var sentAt sql.NullTime
		var errText, messageID sql.NullString

		err := rows.Scan(
			&rec.ID,
			&rec.MailboxID,
			&rec.ToAddress,
			&rec.Subject,
			&rec.Body,
			&rec.Outcome,
			&errText,
			&messageID,
			&sentAt,
			&rec.WarmupDay,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		rec.Error = errText.String
		rec.MessageID = messageID.String
		if sentAt.Valid {
			rec.SentAt = &sentAt.Time
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountHistoryByOutcome 统计指定邮箱历史中 sent 与 failed 的条数
func (s *Store) CountHistoryByOutcome(mailboxID string) (int64, int64, error) {
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN outcome = 'sent' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN outcome = 'failed' THEN 1 ELSE 0 END), 0)
		FROM history_records
		WHERE mailbox_id = ?
	`
	var sent, failed int64
	err := s.db.QueryRow(s.rebind(query), mailboxID).Scan(&sent, &failed)
	return sent, failed, err
}

// CompleteSend 成功路径原子落账：条目置 sent、邮箱计数与时间戳、历史记录
// 在同一事务内提交。
func (s *Store) CompleteSend(item *domain.QueueItem, sentAt time.Time, messageID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.Exec(s.rebind(`
		UPDATE queue_items
		SET status = 'sent', sent_at = ?, message_id = ?
		WHERE id = ?
	`), sentAt, messageID, item.ID)
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

	_, err = tx.Exec(s.rebind(`
		UPDATE mailboxes
		SET total_sent = total_sent + 1,
			last_warmup_at = ?, last_used_at = ?, updated_at = ?
		WHERE id = ?
	`), sentAt, sentAt, sentAt, item.MailboxID)
	if err != nil {
		return err
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
	if _, err := tx.Exec(s.rebind(insertHistoryQuery), historyArgs(rec)...); err != nil {
		return err
	}

	return tx.Commit()
}

// FailSend 失败路径落账：条目置 failed 并写入失败历史，不回滚当日计数。
func (s *Store) FailSend(item *domain.QueueItem, sendErr string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.Exec(s.rebind(`
		UPDATE queue_items SET status = 'failed', error = ? WHERE id = ?
	`), sendErr, item.ID)
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

	rec := &domain.HistoryRecord{
		ID:        uuid.NewString(),
		MailboxID: item.MailboxID,
		ToAddress: item.ToAddress,
		Subject:   item.Subject,
		Body:      item.Body,
		Outcome:   domain.HistoryOutcomeFailed,
		Error:     sendErr,
		WarmupDay: item.WarmupDay,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := tx.Exec(s.rebind(insertHistoryQuery), historyArgs(rec)...); err != nil {
		return err
	}

	return tx.Commit()
}

func historyArgs(rec *domain.HistoryRecord) []interface{} {
	return []interface{}{
		rec.ID,
		rec.MailboxID,
		rec.ToAddress,
		rec.Subject,
		rec.Body,
		rec.Outcome,
		rec.Error,
		rec.MessageID,
		rec.SentAt,
		rec.WarmupDay,
		rec.CreatedAt,
	}
}
