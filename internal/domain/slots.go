package domain

import (
	"math/rand"
	"time"
)

// SendWindow 定义单日发送窗口与槽位间隔参数。
// 窗口区间为 [StartHour, EndHour)，晚上不发信。
type SendWindow struct {
	StartHour        int // 窗口起点（小时，0-23）
	EndHour          int // 窗口终点（小时，不含）
	MinGapMinutes    int // 相邻槽位最小间隔
	MaxGapMinutes    int // 相邻槽位最大间隔
	FirstSlotJitterM int // 首个槽位在窗口起点后的随机分钟数上限
}

// GenerateSlotTimes 在目标日期的发送窗口内生成至多 count 个伪随机时间槽。
//
// 规则：
//   - 首个槽位 = StartHour + U(0, FirstSlotJitterM) 分钟
//   - 后续槽位 = 前一槽位 + U(MinGapMinutes, MaxGapMinutes) 分钟
//   - 追加前检查窗口：下一槽位达到或越过 EndHour 则提前停止，
//     宁可当日少发也绝不排到窗口之外
//
// rng 由调用方注入，便于测试时固定种子得到确定性结果。
func (w SendWindow) GenerateSlotTimes(rng *rand.Rand, targetDate time.Time, count int) []time.Time {
	year, month, day := targetDate.Date()
	loc := targetDate.Location()

	jitter := 0
	if w.FirstSlotJitterM > 0 {
		jitter = rng.Intn(w.FirstSlotJitterM)
	}
	current := time.Date(year, month, day, w.StartHour, jitter, 0, 0, loc)
	end := time.Date(year, month, day, w.EndHour, 0, 0, 0, loc)

	times := make([]time.Time, 0, count)
	for i := 0; i < count; i++ {
		if !current.Before(end) {
			break
		}
		times = append(times, current)

		gap := w.MinGapMinutes
		if span := w.MaxGapMinutes - w.MinGapMinutes; span > 0 {
			gap += rng.Intn(span + 1)
		}
		current = current.Add(time.Duration(gap) * time.Minute)
	}
	return times
}

// Contains 判断某一时刻的时分是否落在发送窗口内。
func (w SendWindow) Contains(t time.Time) bool {
	hour := t.Hour()
	return hour >= w.StartHour && hour < w.EndHour
}
