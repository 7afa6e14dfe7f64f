package quota

import (
	"context"
	"sync"
	"time"
)

type memoryCounter struct {
	minute      string
	minuteCount int
	day         string
	dayCount    int
}

// MemoryLimiter хранит счетчики в памяти процесса и сбрасывается при перезапуске.
type MemoryLimiter struct {
	mu       sync.Mutex
	limits   Limits
	counters map[string]*memoryCounter
	now      func() time.Time
}

var _ Limiter = (*MemoryLimiter)(nil)

func NewMemoryLimiter(limits Limits) *MemoryLimiter {
	return &MemoryLimiter{
		limits:   limits,
		counters: make(map[string]*memoryCounter),
		now:      time.Now,
	}
}

func (l *MemoryLimiter) Reserve(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.counters[key]
	if !ok {
		c = &memoryCounter{}
		l.counters[key] = c
	}
	if m := minuteKey(now); c.minute != m {
		c.minute, c.minuteCount = m, 0
	}
	if d := dayKey(now); c.day != d {
		c.day, c.dayCount = d, 0
	}

	if l.limits.PerDay > 0 && c.dayCount >= l.limits.PerDay {
		return exceeded("day", l.limits.PerDay)
	}
	if l.limits.PerMinute > 0 && c.minuteCount >= l.limits.PerMinute {
		return exceeded("minute", l.limits.PerMinute)
	}
	c.minuteCount++
	c.dayCount++
	return nil
}
