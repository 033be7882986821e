package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/bartoszkosiba-cpu/kreativia-mailing-2-sub002/internal/domain"
)

// ServerConfig 定义管理 API 服务器的监听配置
type ServerConfig struct {
	Host   string // 监听地址，默认 "0.0.0.0"
	Port   int    // 监听端口，默认 8080
	APIKey string // 管理 API 访问密钥，X-API-Key 头
}

// WarmupConfig 定义预热引擎的核心业务配置
type WarmupConfig struct {
	Schedule         *domain.Schedule  // 30 天排程表（内置或文件覆盖）
	Window           domain.SendWindow // 发送窗口与槽位间隔
	ToleranceMinutes int               // 到期容忍窗口：未来 N 分钟内的槽位视为已到期
	SendInterval     time.Duration     // 发送 tick 间隔，默认 5 分钟
	PostWarmupLimit  int               // 预热完成后的日发送上限，默认 100
	RetentionDays    int               // 队列保留天数，超过后清理
	Location         *time.Location    // 日界与发送窗口所用时区
}

// SMTPConfig 定义外发邮件传输配置
type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	StartTLS    bool          // 连接后升级 STARTTLS
	SendTimeout time.Duration // 单次发送的总超时，挂死的传输不能拖垮后续 tick
	HeloDomain  string        // EHLO 域名
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 彩色输出与详细堆栈
}

// DatabaseConfig 定义数据库连接配置（支持 MySQL 和 PostgreSQL）
type DatabaseConfig struct {
	Type            string // "mysql" 或 "postgres"，为空使用内存存储
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig 定义 Redis 配置，用于多实例部署下的任务租约。
// Address 为空时退回进程内租约。
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// Config 是系统核心配置的根结构体
type Config struct {
	Server   ServerConfig
	Warmup   WarmupConfig
	SMTP     SMTPConfig
	CORS     CORSConfig
	Log      LogConfig
	Database DatabaseConfig
	Redis    RedisConfig
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 加载优先级（从高到低）：
//  1. 系统环境变量（前缀 WARMUP_，如 WARMUP_SERVER_PORT）
//  2. .env 文件（如果存在）
//  3. 默认值
func Load() (*Config, error) {
	loadEnvFile()

	viper.SetEnvPrefix("warmup")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.api_key", "")
	viper.SetDefault("engine.start_hour", 6)
	viper.SetDefault("engine.end_hour", 22)
	viper.SetDefault("engine.min_gap_minutes", 10)
	viper.SetDefault("engine.max_gap_minutes", 30)
	viper.SetDefault("engine.first_slot_jitter_minutes", 30)
	viper.SetDefault("engine.tolerance_minutes", 10)
	viper.SetDefault("engine.send_interval", "5m")
	viper.SetDefault("engine.post_warmup_limit", 100)
	viper.SetDefault("engine.retention_days", 30)
	viper.SetDefault("engine.timezone", "Europe/Warsaw")
	viper.SetDefault("engine.schedule_file", "")
	viper.SetDefault("smtp.host", "")
	viper.SetDefault("smtp.port", 587)
	viper.SetDefault("smtp.username", "")
	viper.SetDefault("smtp.password", "")
	viper.SetDefault("smtp.starttls", true)
	viper.SetDefault("smtp.send_timeout", "30s")
	viper.SetDefault("smtp.helo_domain", "localhost")
	viper.SetDefault("cors.allowed_origins", "*")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("database.type", "") // 默认为空，使用内存存储
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("redis.address", "")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	window := domain.SendWindow{
		StartHour:        viper.GetInt("engine.start_hour"),
		EndHour:          viper.GetInt("engine.end_hour"),
		MinGapMinutes:    viper.GetInt("engine.min_gap_minutes"),
		MaxGapMinutes:    viper.GetInt("engine.max_gap_minutes"),
		FirstSlotJitterM: viper.GetInt("engine.first_slot_jitter_minutes"),
	}
	if err := validateWindow(window); err != nil {
		return nil, err
	}

	toleranceMinutes := viper.GetInt("engine.tolerance_minutes")
	if toleranceMinutes < 0 {
		return nil, fmt.Errorf("engine.tolerance_minutes must not be negative")
	}

	sendInterval, err := time.ParseDuration(viper.GetString("engine.send_interval"))
	if err != nil {
		return nil, fmt.Errorf("invalid engine.send_interval: %w", err)
	}

	loc, err := time.LoadLocation(viper.GetString("engine.timezone"))
	if err != nil {
		return nil, fmt.Errorf("invalid engine.timezone: %w", err)
	}

	schedule, err := loadSchedule(viper.GetString("engine.schedule_file"))
	if err != nil {
		return nil, err
	}

	sendTimeout, err := time.ParseDuration(viper.GetString("smtp.send_timeout"))
	if err != nil {
		sendTimeout = 30 * time.Second
	}

	connMaxLifetime, err := time.ParseDuration(viper.GetString("database.conn_max_lifetime"))
	if err != nil {
		connMaxLifetime = 5 * time.Minute
	}

	corsOrigins := parseList(viper.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:   viper.GetString("server.host"),
			Port:   viper.GetInt("server.port"),
			APIKey: viper.GetString("server.api_key"),
		},
		Warmup: WarmupConfig{
			Schedule:         schedule,
			Window:           window,
			ToleranceMinutes: toleranceMinutes,
			SendInterval:     sendInterval,
			PostWarmupLimit:  viper.GetInt("engine.post_warmup_limit"),
			RetentionDays:    viper.GetInt("engine.retention_days"),
			Location:         loc,
		},
		SMTP: SMTPConfig{
			Host:        viper.GetString("smtp.host"),
			Port:        viper.GetInt("smtp.port"),
			Username:    viper.GetString("smtp.username"),
			Password:    viper.GetString("smtp.password"),
			StartTLS:    viper.GetBool("smtp.starttls"),
			SendTimeout: sendTimeout,
			HeloDomain:  viper.GetString("smtp.helo_domain"),
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
		},
		Database: DatabaseConfig{
			Type:            viper.GetString("database.type"),
			DSN:             viper.GetString("database.dsn"),
			MaxOpenConns:    viper.GetInt("database.max_open_conns"),
			MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: connMaxLifetime,
		},
		Redis: RedisConfig{
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
	}

	return cfg, nil
}

// Tolerance 返回迟到容忍窗口时长。
func (w WarmupConfig) Tolerance() time.Duration {
	return time.Duration(w.ToleranceMinutes) * time.Minute
}

// validateWindow 校验发送窗口参数。
func validateWindow(w domain.SendWindow) error {
	if w.StartHour < 0 || w.StartHour > 23 {
		return fmt.Errorf("engine.start_hour out of range: %d", w.StartHour)
	}
	if w.EndHour < 1 || w.EndHour > 24 {
		return fmt.Errorf("engine.end_hour out of range: %d", w.EndHour)
	}
	if w.StartHour >= w.EndHour {
		return fmt.Errorf("engine.start_hour (%d) must be before engine.end_hour (%d)", w.StartHour, w.EndHour)
	}
	if w.MinGapMinutes <= 0 || w.MaxGapMinutes < w.MinGapMinutes {
		return fmt.Errorf("invalid slot gap range: min=%d max=%d", w.MinGapMinutes, w.MaxGapMinutes)
	}
	return nil
}

// loadSchedule 加载排程表：未指定文件时使用内置 30 天表。
// 文件须包含完整 30 条 JSON 条目，否则拒绝启动。
func loadSchedule(path string) (*domain.Schedule, error) {
	if path == "" {
		return domain.DefaultSchedule(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schedule file: %w", err)
	}
	var entries []domain.RateConfig
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse schedule file: %w", err)
	}
	schedule, err := domain.NewSchedule(entries)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule file %s: %w", path, err)
	}
	return schedule, nil
}

// parseList 将逗号分隔的字符串解析为字符串切片
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件（可选，静默失败）
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}
	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
