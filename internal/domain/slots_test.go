package domain

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWindow() SendWindow {
	return SendWindow{
		StartHour:        6,
		EndHour:          22,
		MinGapMinutes:    10,
		MaxGapMinutes:    30,
		FirstSlotJitterM: 30,
	}
}

func TestGenerateSlotTimes(t *testing.T) {
	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	t.Run("槽位全部落在窗口内", func(t *testing.T) {
		window := testWindow()
		for seed := int64(0); seed < 20; seed++ {
			rng := rand.New(rand.NewSource(seed))
			slots := window.GenerateSlotTimes(rng, date, 35)
			for _, slot := range slots {
				assert.GreaterOrEqual(t, slot.Hour(), window.StartHour, "seed %d", seed)
				assert.Less(t, slot.Hour(), window.EndHour, "seed %d", seed)
				assert.Equal(t, date.Day(), slot.Day())
			}
		}
	})

	t.Run("首个槽位在窗口起点的抖动范围内", func(t *testing.T) {
		window := testWindow()
		for seed := int64(0); seed < 20; seed++ {
			rng := rand.New(rand.NewSource(seed))
			slots := window.GenerateSlotTimes(rng, date, 5)
			require.NotEmpty(t, slots)
			first := slots[0]
			assert.Equal(t, window.StartHour, first.Hour())
			assert.Less(t, first.Minute(), window.FirstSlotJitterM)
		}
	})

	t.Run("相邻槽位间隔在配置范围内", func(t *testing.T) {
		window := testWindow()
		rng := rand.New(rand.NewSource(42))
		slots := window.GenerateSlotTimes(rng, date, 30)
		require.Greater(t, len(slots), 1)
		for i := 1; i < len(slots); i++ {
			gap := slots[i].Sub(slots[i-1])
			assert.GreaterOrEqual(t, gap, time.Duration(window.MinGapMinutes)*time.Minute)
			assert.LessOrEqual(t, gap, time.Duration(window.MaxGapMinutes)*time.Minute)
		}
	})

	t.Run("窗口装不下时提前停止而不越界", func(t *testing.T) {
		window := SendWindow{
			StartHour:        20,
			EndHour:          22,
			MinGapMinutes:    25,
			MaxGapMinutes:    30,
			FirstSlotJitterM: 30,
		}
		rng := rand.New(rand.NewSource(7))
		slots := window.GenerateSlotTimes(rng, date, 100)
		assert.NotEmpty(t, slots)
		assert.Less(t, len(slots), 100)
		for _, slot := range slots {
			assert.Less(t, slot.Hour(), window.EndHour)
		}
	})

	t.Run("固定种子结果可复现", func(t *testing.T) {
		window := testWindow()
		a := window.GenerateSlotTimes(rand.New(rand.NewSource(99)), date, 15)
		b := window.GenerateSlotTimes(rand.New(rand.NewSource(99)), date, 15)
		assert.Equal(t, a, b)
	})

	t.Run("保留目标日期时区", func(t *testing.T) {
		warsaw, err := time.LoadLocation("Europe/Warsaw")
		require.NoError(t, err)
		localDate := time.Date(2025, 3, 10, 0, 0, 0, 0, warsaw)

		window := testWindow()
		slots := window.GenerateSlotTimes(rand.New(rand.NewSource(1)), localDate, 5)
		require.NotEmpty(t, slots)
		for _, slot := range slots {
			assert.Equal(t, warsaw, slot.Location())
		}
	})
}

func TestSendWindow_Contains(t *testing.T) {
	window := testWindow()
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	assert.False(t, window.Contains(day.Add(5*time.Hour+59*time.Minute)))
	assert.True(t, window.Contains(day.Add(6*time.Hour)))
	assert.True(t, window.Contains(day.Add(12*time.Hour)))
	assert.True(t, window.Contains(day.Add(21*time.Hour+59*time.Minute)))
	assert.False(t, window.Contains(day.Add(22*time.Hour)))
	assert.False(t, window.Contains(day.Add(23*time.Hour)))
}
