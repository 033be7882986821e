package sql

import (
	"database/sql"
	"errors"
	"time"

	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/domain"
	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/storage"
)

// ========== Mailbox Repository ==========

const mailboxColumns = `
	id, address, display_name, is_active,
	warmup_status, warmup_day, warmup_daily_limit, warmup_today_sent,
	warmup_start_date, warmup_completed_at, warmup_issues,
	deliverability_score, bounce_rate,
	total_sent, last_warmup_at, next_warmup_at, last_used_at,
	created_at, updated_at
`

// SaveMailbox 保存（或覆盖）邮箱信息
func (s *Store) SaveMailbox(mailbox *domain.Mailbox) error {
	mailbox.UpdatedAt = time.Now().UTC()
	if mailbox.CreatedAt.IsZero() {
		mailbox.CreatedAt = mailbox.UpdatedAt
	}

	var query string
	if s.driverName == "postgres" {
		query = `
			INSERT INTO mailboxes (` + mailboxColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				address = EXCLUDED.address,
				display_name = EXCLUDED.display_name,
				is_active = EXCLUDED.is_active,
				warmup_status = EXCLUDED.warmup_status,
				warmup_day = EXCLUDED.warmup_day,
				warmup_daily_limit = EXCLUDED.warmup_daily_limit,
				warmup_today_sent = EXCLUDED.warmup_today_sent,
				warmup_start_date = EXCLUDED.warmup_start_date,
				warmup_completed_at = EXCLUDED.warmup_completed_at,
				warmup_issues = EXCLUDED.warmup_issues,
				deliverability_score = EXCLUDED.deliverability_score,
				bounce_rate = EXCLUDED.bounce_rate,
				total_sent = EXCLUDED.total_sent,
				last_warmup_at = EXCLUDED.last_warmup_at,
				next_warmup_at = EXCLUDED.next_warmup_at,
				last_used_at = EXCLUDED.last_used_at,
				updated_at = EXCLUDED.updated_at
		`
	} else {
		query = `
			INSERT INTO mailboxes (` + mailboxColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE
				address = VALUES(address),
				display_name = VALUES(display_name),
				is_active = VALUES(is_active),
				warmup_status = VALUES(warmup_status),
				warmup_day = VALUES(warmup_day),
				warmup_daily_limit = VALUES(warmup_daily_limit),
				warmup_today_sent = VALUES(warmup_today_sent),
				warmup_start_date = VALUES(warmup_start_date),
				warmup_completed_at = VALUES(warmup_completed_at),
				warmup_issues = VALUES(warmup_issues),
				deliverability_score = VALUES(deliverability_score),
				bounce_rate = VALUES(bounce_rate),
				total_sent = VALUES(total_sent),
				last_warmup_at = VALUES(last_warmup_at),
				next_warmup_at = VALUES(next_warmup_at),
				last_used_at = VALUES(last_used_at),
				updated_at = VALUES(updated_at)
		`
	}

	_, err := s.db.Exec(s.rebind(query),
		mailbox.ID,
		mailbox.Address,
		mailbox.DisplayName,
		mailbox.IsActive,
		mailbox.WarmupStatus,
		mailbox.WarmupDay,
		mailbox.WarmupDailyLimit,
		mailbox.WarmupTodaySent,
		mailbox.WarmupStartDate,
		mailbox.WarmupCompletedAt,
		mailbox.WarmupIssues,
		mailbox.DeliverabilityScore,
		mailbox.BounceRate,
		mailbox.TotalSent,
		mailbox.LastWarmupAt,
		mailbox.NextWarmupAt,
		mailbox.LastUsedAt,
		mailbox.CreatedAt,
		mailbox.UpdatedAt,
	)
	return err
}

// GetMailbox 根据ID获取邮箱
func (s *Store) GetMailbox(id string) (*domain.Mailbox, error) {
	query := `SELECT ` + mailboxColumns + ` FROM mailboxes WHERE id = ?`
	return s.scanMailbox(s.db.QueryRow(s.rebind(query), id))
}

// GetMailboxByAddress 根据地址获取邮箱
func (s *Store) GetMailboxByAddress(address string) (*domain.Mailbox, error) {
	query := `SELECT ` + mailboxColumns + ` FROM mailboxes WHERE address = ?`
	return s.scanMailbox(s.db.QueryRow(s.rebind(query), address))
}

// ListActiveMailboxes 返回全部活跃邮箱
func (s *Store) ListActiveMailboxes() ([]domain.Mailbox, error) {
	query := `SELECT ` + mailboxColumns + ` FROM mailboxes WHERE is_active = true ORDER BY address`
	return s.queryMailboxes(query)
}

// ListWarmingMailboxes 返回全部预热中的邮箱
func (s *Store) ListWarmingMailboxes() ([]domain.Mailbox, error) {
	query := `SELECT ` + mailboxColumns + ` FROM mailboxes WHERE warmup_status = 'warming' ORDER BY address`
	return s.queryMailboxes(query)
}

// ResetWarmupCounters 将全部预热中邮箱的当日计数清零
func (s *Store) ResetWarmupCounters() (int, error) {
	query := `UPDATE mailboxes SET warmup_today_sent = 0, updated_at = ? WHERE warmup_status = 'warming'`
	result, err := s.db.Exec(s.rebind(query), time.Now().UTC())
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	return int(affected), err
}

// ReserveWarmupSlot 原子条件自增当日计数
//
// 比较与自增在一条 UPDATE 内完成，数据库行锁保证并发预约不会越过上限；
// 受影响行数为 0 即当日配额已耗尽。
func (s *Store) ReserveWarmupSlot(mailboxID string) (bool, error) {
	query := `
		UPDATE mailboxes
		SET warmup_today_sent = warmup_today_sent + 1, updated_at = ?
		WHERE id = ? AND warmup_today_sent < warmup_daily_limit
	`
	result, err := s.db.Exec(s.rebind(query), time.Now().UTC(), mailboxID)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected > 0 {
		return true, nil
	}

	// 区分“配额耗尽”与“邮箱不存在”
	var exists int
	err = s.db.QueryRow(s.rebind(`SELECT 1 FROM mailboxes WHERE id = ?`), mailboxID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, storage.ErrMailboxNotFound
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

// scanMailbox 从单行结果扫描邮箱
func (s *Store) scanMailbox(row *sql.Row) (*domain.Mailbox, error) {
	var m domain.Mailbox
	var startDate, completedAt, lastWarmupAt, nextWarmupAt, lastUsedAt sql.NullTime
	var issues sql.NullString

	err := row.Scan(
		&m.ID,
		&m.Address,
		&m.DisplayName,
		&m.IsActive,
		&m.WarmupStatus,
		&m.WarmupDay,
		&m.WarmupDailyLimit,
		&m.WarmupTodaySent,
		&startDate,
		&completedAt,
		&issues,
		&m.DeliverabilityScore,
		&m.BounceRate,
		&m.TotalSent,
		&lastWarmupAt,
		&nextWarmupAt,
		&lastUsedAt,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrMailboxNotFound
	}
	if err != nil {
		return nil, err
	}

	applyNullTimes(&m, startDate, completedAt, lastWarmupAt, nextWarmupAt, lastUsedAt)
	m.WarmupIssues = issues.String
	return &m, nil
}

// queryMailboxes 执行多行邮箱查询
func (s *Store) queryMailboxes(query string, args ...interface{}) ([]domain.Mailbox, error) {
	rows, err := s.db.Query(s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mailboxes []domain.Mailbox
	for rows.Next() {
		var m domain.Mailbox
		var startDate, completedAt, lastWarmupAt, nextWarmupAt, lastUsedAt sql.NullTime
		var issues sql.NullString

		err := rows.Scan(
			&m.ID,
			&m.Address,
			&m.DisplayName,
			&m.IsActive,
			&m.WarmupStatus,
			&m.WarmupDay,
			&m.WarmupDailyLimit,
			&m.WarmupTodaySent,
			&startDate,
			&completedAt,
			&issues,
			&m.DeliverabilityScore,
			&m.BounceRate,
			&m.TotalSent,
			&lastWarmupAt,
			&nextWarmupAt,
			&lastUsedAt,
			&m.CreatedAt,
			&m.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}

		applyNullTimes(&m, startDate, completedAt, lastWarmupAt, nextWarmupAt, lastUsedAt)
		m.WarmupIssues = issues.String
		mailboxes = append(mailboxes, m)
	}
	return mailboxes, rows.Err()
}

func applyNullTimes(m *domain.Mailbox, startDate, completedAt, lastWarmupAt, nextWarmupAt, lastUsedAt sql.NullTime) {
	if startDate.Valid {
		m.WarmupStartDate = &startDate.Time
	}
	if completedAt.Valid {
		m.WarmupCompletedAt = &completedAt.Time
	}
	if lastWarmupAt.Valid {
		m.LastWarmupAt = &lastWarmupAt.Time
	}
	if nextWarmupAt.Valid {
		m.NextWarmupAt = &nextWarmupAt.Time
	}
	if lastUsedAt.Valid {
		m.LastUsedAt = &lastUsedAt.Time
	}
}
