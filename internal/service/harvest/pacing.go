package harvest

import (
	"context"
	"math/rand/v2"
	"time"
)

// Pacer 两次页面操作之间的停顿
type Pacer interface {
	Pause(ctx context.Context, lo, hi time.Duration) error
}

// RandomPacer 在 [lo, hi] 内均匀取值后等待, ctx 取消时提前返回
type RandomPacer struct{}

func (RandomPacer) Pause(ctx context.Context, lo, hi time.Duration) error {
	d := lo
	if hi > lo {
		d += rand.N(hi - lo + 1)
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
