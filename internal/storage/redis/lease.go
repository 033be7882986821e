package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// releaseScript 仅当持有者匹配时删除租约，避免释放掉他人续取的锁
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`

// Lease 基于 Redis SET NX 的作业租约，用于多实例部署时
// 保证同名定时作业同一时刻只有一个实例在跑。
type Lease struct {
	client *goredis.Client
	holder string
	log    *zap.Logger
}

// NewLease 创建 Redis 租约客户端
func NewLease(addr, password string, db int, log *zap.Logger) (*Lease, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: 10,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Lease{
		client: client,
		holder: uuid.NewString(),
		log:    log,
	}, nil
}

// NewLeaseWithClient 使用现有客户端创建租约（测试用）
func NewLeaseWithClient(client *goredis.Client, log *zap.Logger) *Lease {
	return &Lease{
		client: client,
		holder: uuid.NewString(),
		log:    log,
	}
}

// TryAcquire 尝试获取名为 name 的租约，ttl 过期自动释放
func (l *Lease) TryAcquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key(name), l.holder, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease %s: %w", name, err)
	}
	return ok, nil
}

// Release 释放租约，仅当当前实例仍是持有者时生效
func (l *Lease) Release(ctx context.Context, name string) error {
	err := l.client.Eval(ctx, releaseScript, []string{l.key(name)}, l.holder).Err()
	if err != nil {
		return fmt.Errorf("failed to release lease %s: %w", name, err)
	}
	return nil
}

// Close 关闭 Redis 连接
func (l *Lease) Close() error {
	return l.client.Close()
}

func (l *Lease) key(name string) string {
	return fmt.Sprintf("warmup:lease:%s", name)
}
