package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "storybook:quota:"

// RedisLimiter хранит счетчики в Redis, общие для всех инстансов сервиса.
type RedisLimiter struct {
	client *redis.Client
	limits Limits
	logger *zap.Logger
	now    func() time.Time
}

var _ Limiter = (*RedisLimiter)(nil)

func NewRedisLimiter(client *redis.Client, limits Limits, logger *zap.Logger) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limits: limits,
		logger: logger.Named("RedisQuota"),
		now:    time.Now,
	}
}

// Reserve увеличивает оба счетчика одним пайплайном. Резерв засчитывается,
// даже если лимит превышен: повторные попытки сверх лимита не продлевают окно.
func (l *RedisLimiter) Reserve(ctx context.Context, key string) error {
	now := l.now()
	mKey := fmt.Sprintf("%s%s:m:%s", keyPrefix, key, minuteKey(now))
	dKey := fmt.Sprintf("%s%s:d:%s", keyPrefix, key, dayKey(now))

	pipe := l.client.TxPipeline()
	minuteCount := pipe.Incr(ctx, mKey)
	pipe.ExpireNX(ctx, mKey, 2*time.Minute)
	dayCount := pipe.Incr(ctx, dKey)
	pipe.ExpireNX(ctx, dKey, 25*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Error("Failed to reserve quota", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("ошибка резервирования квоты: %w", err)
	}

	if l.limits.PerDay > 0 && dayCount.Val() > int64(l.limits.PerDay) {
		return exceeded("day", l.limits.PerDay)
	}
	if l.limits.PerMinute > 0 && minuteCount.Val() > int64(l.limits.PerMinute) {
		return exceeded("minute", l.limits.PerMinute)
	}
	return nil
}
