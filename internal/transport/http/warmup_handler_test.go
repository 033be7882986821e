package httptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/config"
	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/domain"
	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/health"
	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/monitoring"
	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/pool"
	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/service"
	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/storage/memory"
)

var testMetrics = monitoring.NewMetrics()

type nopTransport struct{}

func (nopTransport) Send(context.Context, service.OutgoingEmail) (string, error) {
	return "<nop@example.com>", nil
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{APIKey: "secret"},
		Warmup: config.WarmupConfig{
			Schedule: domain.DefaultSchedule(),
			Window: domain.SendWindow{
				StartHour:        6,
				EndHour:          22,
				MinGapMinutes:    10,
				MaxGapMinutes:    30,
				FirstSlotJitterM: 30,
			},
			ToleranceMinutes: 10,
			SendInterval:     5 * time.Minute,
			PostWarmupLimit:  100,
			RetentionDays:    30,
			Location:         time.UTC,
		},
		SMTP: config.SMTPConfig{SendTimeout: time.Second},
		CORS: config.CORSConfig{AllowedOrigins: []string{"*"}},
	}
}

func newTestRouter(t *testing.T, store *memory.Store) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := testConfig()
	log := zap.NewNop()
	tracker := service.NewTrackerService(store, cfg, log, testMetrics)
	scheduler := service.NewSchedulerService(store, cfg, log, testMetrics)
	sender := service.NewSenderService(store, cfg, log, testMetrics, nopTransport{})
	tracker.SetScheduler(scheduler)

	workers := pool.NewWorkerPool(2, 8)
	workers.Start(t.Context())
	t.Cleanup(workers.Stop)

	return NewRouter(RouterDependencies{
		Config:        cfg,
		Store:         store,
		Tracker:       tracker,
		Scheduler:     scheduler,
		Sender:        sender,
		Workers:       workers,
		Metrics:       testMetrics,
		HealthChecker: health.NewHealthChecker(store, log),
		Logger:        log,
	})
}

func doRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", "secret")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestWarmupAPI_Auth(t *testing.T) {
	router := newTestRouter(t, memory.NewStore())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/warmup/mailboxes", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/warmup/mailboxes", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWarmupAPI_RegisterMailbox(t *testing.T) {
	t.Run("登记成功", func(t *testing.T) {
		router := newTestRouter(t, memory.NewStore())
		w := doRequest(router, http.MethodPost, "/api/v1/warmup/mailboxes",
			`{"address":"anna@example.com","displayName":"Anna"}`)
		require.Equal(t, http.StatusCreated, w.Code)

		var resp Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, CodeCreated, resp.Code)
	})

	t.Run("地址非法被拒绝", func(t *testing.T) {
		router := newTestRouter(t, memory.NewStore())
		w := doRequest(router, http.MethodPost, "/api/v1/warmup/mailboxes",
			`{"address":"not-an-email"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("重复地址返回冲突", func(t *testing.T) {
		router := newTestRouter(t, memory.NewStore())
		body := `{"address":"anna@example.com"}`
		w := doRequest(router, http.MethodPost, "/api/v1/warmup/mailboxes", body)
		require.Equal(t, http.StatusCreated, w.Code)
		w = doRequest(router, http.MethodPost, "/api/v1/warmup/mailboxes", body)
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestWarmupAPI_Lifecycle(t *testing.T) {
	store := memory.NewStore()
	now := time.Now().UTC()
	for _, m := range []*domain.Mailbox{
		{ID: "mb-1", Address: "anna@example.com", IsActive: true, WarmupStatus: domain.WarmupStatusInactive, CreatedAt: now},
		{ID: "mb-2", Address: "jan@example.com", IsActive: true, WarmupStatus: domain.WarmupStatusInactive, CreatedAt: now},
	} {
		require.NoError(t, store.SaveMailbox(m))
	}
	router := newTestRouter(t, store)

	// 启动预热
	w := doRequest(router, http.MethodPost, "/api/v1/warmup/mailboxes/mb-1/start", "")
	require.Equal(t, http.StatusOK, w.Code)

	m, err := store.GetMailbox("mb-1")
	require.NoError(t, err)
	assert.Equal(t, domain.WarmupStatusWarming, m.WarmupStatus)
	assert.Equal(t, 1, m.WarmupDay)

	// 重复启动冲突
	w = doRequest(router, http.MethodPost, "/api/v1/warmup/mailboxes/mb-1/start", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	// 状态详情
	w = doRequest(router, http.MethodGet, "/api/v1/warmup/mailboxes/mb-1", "")
	require.Equal(t, http.StatusOK, w.Code)

	// 停止
	w = doRequest(router, http.MethodPost, "/api/v1/warmup/mailboxes/mb-1/stop", "")
	require.Equal(t, http.StatusOK, w.Code)

	m, err = store.GetMailbox("mb-1")
	require.NoError(t, err)
	assert.Equal(t, domain.WarmupStatusInactive, m.WarmupStatus)

	// 不存在的邮箱
	w = doRequest(router, http.MethodPost, "/api/v1/warmup/mailboxes/missing/start", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWarmupAPI_GetSchedule(t *testing.T) {
	router := newTestRouter(t, memory.NewStore())
	w := doRequest(router, http.MethodGet, "/api/v1/warmup/schedule", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"dailyLimit":15`)
}
