package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrectDay(t *testing.T) {
	start := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	t.Run("开始当天为第一天", func(t *testing.T) {
		assert.Equal(t, 1, CorrectDay(start, start))
		assert.Equal(t, 1, CorrectDay(start, start.Add(23*time.Hour)))
	})

	t.Run("自然日推进", func(t *testing.T) {
		assert.Equal(t, 2, CorrectDay(start, start.AddDate(0, 0, 1)))
		assert.Equal(t, 8, CorrectDay(start, start.AddDate(0, 0, 7)))
		assert.Equal(t, 31, CorrectDay(start, start.AddDate(0, 0, 30)))
	})

	t.Run("开始时间不在零点也按自然日计算", func(t *testing.T) {
		lateStart := start.Add(21 * time.Hour)
		assert.Equal(t, 2, CorrectDay(lateStart, start.AddDate(0, 0, 1).Add(2*time.Hour)))
	})

	t.Run("停机多天后一次对齐", func(t *testing.T) {
		// 推进作业漏掉 5 天后，下一次调用直接得到正确天数
		assert.Equal(t, 6, CorrectDay(start, start.AddDate(0, 0, 5)))
	})

	t.Run("夏令时切换日不漂移", func(t *testing.T) {
		warsaw, err := time.LoadLocation("Europe/Warsaw")
		require.NoError(t, err)

		// 2025-03-30 华沙进入夏令时，当天只有 23 小时
		dstStart := time.Date(2025, 3, 28, 0, 0, 0, 0, warsaw)
		for offset := 1; offset <= 5; offset++ {
			now := dstStart.AddDate(0, 0, offset).Add(8 * time.Hour)
			assert.Equal(t, offset+1, CorrectDay(dstStart, now), "offset %d", offset)
		}
	})
}

func TestMailbox_SenderName(t *testing.T) {
	t.Run("优先显示名", func(t *testing.T) {
		m := Mailbox{Address: "anna.kowalska@example.com", DisplayName: "Anna Kowalska"}
		assert.Equal(t, "Anna Kowalska", m.SenderName())
	})

	t.Run("没有显示名退回本地部分", func(t *testing.T) {
		m := Mailbox{Address: "anna.kowalska@example.com"}
		assert.Equal(t, "anna.kowalska", m.SenderName())
	})

	t.Run("畸形地址原样返回", func(t *testing.T) {
		m := Mailbox{Address: "not-an-address"}
		assert.Equal(t, "not-an-address", m.SenderName())
	})
}

func TestTemplate_Render(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

	t.Run("替换日期与署名", func(t *testing.T) {
		tpl := Template{
			Subject: "Sprawdzenie poczty - {{date}}",
			Body:    "Dzień dobry,\n\nPozdrawiam,\n{{senderName}}",
		}
		subject, body := tpl.Render("Anna", now)
		assert.Equal(t, "Sprawdzenie poczty - 10.03.2025", subject)
		assert.Contains(t, body, "Pozdrawiam,\nAnna")
		assert.NotContains(t, body, "{{")
	})

	t.Run("内置模板全部可渲染", func(t *testing.T) {
		for i, tpl := range DefaultTemplates() {
			subject, body := tpl.Render("Jan", now)
			assert.NotContains(t, subject, "{{", "template %d", i)
			assert.NotContains(t, body, "{{", "template %d", i)
			assert.Contains(t, subject, "10.03.2025")
		}
	})
}
