package domain

import (
	"math"
	"time"
)

// CorrectDay 根据开始日期与当前时间推导“正确”的预热天数。
//
// 采用自然日差值而不是逐次自增，停机或漏触发后下一次调用会自动对齐，
// 不会产生天数漂移。第一天返回 1。
// 四舍五入吸收夏令时造成的 23/25 小时日。
func CorrectDay(startDate, now time.Time) int {
	start := startOfDay(startDate)
	today := startOfDay(now)
	days := int(math.Round(today.Sub(start).Hours() / 24))
	return days + 1
}

// startOfDay 取所在时区的当日零点。
func startOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}
