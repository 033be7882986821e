package httptransport

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/config"
	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/domain"
	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/pool"
	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/service"
	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/storage"
)

// WarmupHandler 处理预热管理 API
type WarmupHandler struct {
	cfg       *config.Config
	store     storage.Store
	tracker   *service.TrackerService
	scheduler *service.SchedulerService
	sender    *service.SenderService
	workers   *pool.WorkerPool
}

// NewWarmupHandler 创建预热管理处理器
func NewWarmupHandler(
	cfg *config.Config,
	store storage.Store,
	tracker *service.TrackerService,
	scheduler *service.SchedulerService,
	sender *service.SenderService,
	workers *pool.WorkerPool,
) *WarmupHandler {
	return &WarmupHandler{
		cfg:       cfg,
		store:     store,
		tracker:   tracker,
		scheduler: scheduler,
		sender:    sender,
		workers:   workers,
	}
}

// registerMailboxRequest 登记邮箱请求体
type registerMailboxRequest struct {
	Address     string `json:"address" binding:"required,email"`
	DisplayName string `json:"displayName"`
}

// RegisterMailbox POST /api/v1/warmup/mailboxes
func (h *WarmupHandler) RegisterMailbox(c *gin.Context) {
	var req registerMailboxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	mailbox, err := h.tracker.RegisterMailbox(req.Address, req.DisplayName)
	if err != nil {
		if errors.Is(err, service.ErrAddressTaken) {
			Conflict(c, "address already registered")
			return
		}
		InternalError(c, err.Error())
		return
	}
	Created(c, mailbox)
}

// ListMailboxes GET /api/v1/warmup/mailboxes
func (h *WarmupHandler) ListMailboxes(c *gin.Context) {
	mailboxes, err := h.store.ListActiveMailboxes()
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, gin.H{
		"mailboxes": mailboxes,
		"count":     len(mailboxes),
	})
}

// mailboxStatusResponse 邮箱预热状态详情
type mailboxStatusResponse struct {
	Mailbox      *domain.Mailbox `json:"mailbox"`
	PendingToday int             `json:"pendingToday"`
	HistorySent  int64           `json:"historySent"`
	HistoryFail  int64           `json:"historyFailed"`
}

// GetMailboxStatus GET /api/v1/warmup/mailboxes/:id
func (h *WarmupHandler) GetMailboxStatus(c *gin.Context) {
	mailbox, ok := h.getMailbox(c)
	if !ok {
		return
	}

	now := time.Now().In(h.cfg.Warmup.Location)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	pending, err := h.store.CountPendingQueueItems(mailbox.ID, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		InternalError(c, err.Error())
		return
	}

	sent, failed, err := h.store.CountHistoryByOutcome(mailbox.ID)
	if err != nil {
		InternalError(c, err.Error())
		return
	}

	Success(c, mailboxStatusResponse{
		Mailbox:      mailbox,
		PendingToday: pending,
		HistorySent:  sent,
		HistoryFail:  failed,
	})
}

// StartWarmup POST /api/v1/warmup/mailboxes/:id/start
func (h *WarmupHandler) StartWarmup(c *gin.Context) {
	mailbox, err := h.tracker.StartWarmup(c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrMailboxNotFound):
			NotFound(c, "mailbox not found")
		case errors.Is(err, service.ErrAlreadyWarming):
			Conflict(c, "mailbox is already warming")
		case errors.Is(err, service.ErrMailboxFrozen):
			Conflict(c, "mailbox is not active")
		default:
			InternalError(c, err.Error())
		}
		return
	}
	Success(c, mailbox)
}

// StopWarmup POST /api/v1/warmup/mailboxes/:id/stop
func (h *WarmupHandler) StopWarmup(c *gin.Context) {
	mailbox, err := h.tracker.StopWarmup(c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrMailboxNotFound):
			NotFound(c, "mailbox not found")
		case errors.Is(err, service.ErrNotWarming):
			Conflict(c, "mailbox is not warming")
		default:
			InternalError(c, err.Error())
		}
		return
	}
	Success(c, mailbox)
}

// ScheduleDay POST /api/v1/warmup/mailboxes/:id/schedule
// 为指定邮箱重排当天计划（替换语义，可安全重复调用）
func (h *WarmupHandler) ScheduleDay(c *gin.Context) {
	slots, err := h.scheduler.ScheduleDay(c.Param("id"), time.Now().In(h.cfg.Warmup.Location))
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrMailboxNotFound):
			NotFound(c, "mailbox not found")
		case errors.Is(err, service.ErrNotWarming):
			Conflict(c, "mailbox is not warming")
		case errors.Is(err, service.ErrNoRecipients):
			Conflict(c, "no sibling mailboxes available as recipients")
		default:
			InternalError(c, err.Error())
		}
		return
	}
	Success(c, gin.H{"slots": slots})
}

// ScheduleAll POST /api/v1/warmup/schedule-all
func (h *WarmupHandler) ScheduleAll(c *gin.Context) {
	slots, failed, err := h.scheduler.ScheduleAllWarming(h.workers, time.Now().In(h.cfg.Warmup.Location))
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, gin.H{"slots": slots, "failed": failed})
}

// SendTick POST /api/v1/warmup/send-tick
// 手动触发一轮发送（运维用）
func (h *WarmupHandler) SendTick(c *gin.Context) {
	stats, err := h.sender.RunTick(c.Request.Context())
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, gin.H{
		"sent":      stats.Sent,
		"failed":    stats.Failed,
		"cancelled": stats.Cancelled,
	})
}

// ListQueue GET /api/v1/warmup/mailboxes/:id/queue
func (h *WarmupHandler) ListQueue(c *gin.Context) {
	mailbox, ok := h.getMailbox(c)
	if !ok {
		return
	}

	items, err := h.store.ListQueueItems(mailbox.ID, h.limitParam(c, 100))
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, gin.H{"items": items, "count": len(items)})
}

// ListHistory GET /api/v1/warmup/mailboxes/:id/history
func (h *WarmupHandler) ListHistory(c *gin.Context) {
	mailbox, ok := h.getMailbox(c)
	if !ok {
		return
	}

	records, err := h.store.ListHistory(mailbox.ID, h.limitParam(c, 100))
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, gin.H{"records": records, "count": len(records)})
}

// GetSchedule GET /api/v1/warmup/schedule
// 返回生效中的 30 天排程表
func (h *WarmupHandler) GetSchedule(c *gin.Context) {
	Success(c, gin.H{"entries": h.cfg.Warmup.Schedule.Entries()})
}

// getMailbox 解析 :id 并读取邮箱，失败时已写入响应
func (h *WarmupHandler) getMailbox(c *gin.Context) (*domain.Mailbox, bool) {
	mailbox, err := h.store.GetMailbox(c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrMailboxNotFound) {
			NotFound(c, "mailbox not found")
		} else {
			InternalError(c, err.Error())
		}
		return nil, false
	}
	return mailbox, true
}

// limitParam 解析 limit 查询参数
func (h *WarmupHandler) limitParam(c *gin.Context, def int) int {
	raw := c.Query("limit")
	if raw == "" {
		return def
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return def
	}
	return limit
}
