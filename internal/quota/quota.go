// Package quota ограничивает число генераций на ребенка в минуту и в сутки.
package quota

import (
	"context"
	"fmt"
	"time"

	"storybook-server/internal/models"
)

// Limiter резервирует одну генерацию для ключа (обычно ID ребенка).
// При превышении лимита возвращает ошибку, оборачивающую models.ErrQuotaExceeded.
type Limiter interface {
	Reserve(ctx context.Context, key string) error
}

// Limits - лимиты квоты. Ноль или меньше отключает соответствующий лимит.
type Limits struct {
	PerMinute int
	PerDay    int
}

func minuteKey(now time.Time) string { return now.UTC().Format("200601021504") }
func dayKey(now time.Time) string    { return now.UTC().Format("20060102") }

func exceeded(window string, limit int) error {
	return fmt.Errorf("%w: %d per %s", models.ErrQuotaExceeded, limit, window)
}

// Unlimited - лимитер без ограничений.
type Unlimited struct{}

func (Unlimited) Reserve(context.Context, string) error { return nil }
