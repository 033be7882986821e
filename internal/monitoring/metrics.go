package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 预热引擎监控指标
type Metrics struct {
	// 发送指标
	EmailsSentTotal     prometheus.Counter
	EmailsFailedTotal   prometheus.Counter
	ItemsCancelledTotal *prometheus.CounterVec
	SendDuration        prometheus.Histogram

	// 排程指标
	SlotsScheduledTotal prometheus.Counter
	ScheduleRunsTotal   prometheus.Counter

	// 预约指标：条件自增被拒即配额耗尽
	ReservationsTotal         prometheus.Counter
	ReservationsRejectedTotal prometheus.Counter

	// 生命周期指标
	MailboxesWarming   prometheus.Gauge
	WarmupsStarted     prometheus.Counter
	WarmupsCompleted   prometheus.Counter
	QueueItemsPurged   prometheus.Counter
	DayAdvancesTotal   prometheus.Counter
	CounterResetsTotal prometheus.Counter
}

// NewMetrics 创建监控指标
func NewMetrics() *Metrics {
	return &Metrics{
		EmailsSentTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "warmup_emails_sent_total",
				Help: "Total number of warmup emails sent successfully",
			},
		),
		EmailsFailedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "warmup_emails_failed_total",
				Help: "Total number of warmup emails that failed in transport",
			},
		),
		ItemsCancelledTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warmup_queue_items_cancelled_total",
				Help: "Total number of queue items cancelled, by reason",
			},
			[]string{"reason"},
		),
		SendDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "warmup_send_duration_seconds",
				Help:    "Duration of transport send calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		SlotsScheduledTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "warmup_slots_scheduled_total",
				Help: "Total number of send slots materialized into the queue",
			},
		),
		ScheduleRunsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "warmup_schedule_runs_total",
				Help: "Total number of per-mailbox schedule runs",
			},
		),
		ReservationsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "warmup_reservations_total",
				Help: "Total number of successful daily-counter reservations",
			},
		),
		ReservationsRejectedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "warmup_reservations_rejected_total",
				Help: "Total number of reservations rejected because the daily cap was reached",
			},
		),
		MailboxesWarming: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "warmup_mailboxes_warming",
				Help: "Number of mailboxes currently in warming state",
			},
		),
		WarmupsStarted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "warmup_started_total",
				Help: "Total number of warmup lifecycles started",
			},
		),
		WarmupsCompleted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "warmup_completed_total",
				Help: "Total number of mailboxes that completed the 30-day horizon",
			},
		),
		QueueItemsPurged: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "warmup_queue_items_purged_total",
				Help: "Total number of old queue items purged by cleanup",
			},
		),
		DayAdvancesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "warmup_day_advances_total",
				Help: "Total number of warmup day advancements",
			},
		),
		CounterResetsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "warmup_counter_resets_total",
				Help: "Total number of daily counter reset runs",
			},
		),
	}
}

// HTTPHandler 返回 Prometheus 指标端点处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.Handler()
}
