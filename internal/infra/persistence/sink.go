package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LouYuanbo1/authorharvest/internal/infra/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrUnauthorized 输出端拒绝凭据 (HTTP 401/403 或凭据无法解析)
var ErrUnauthorized = errors.New("sink unauthorized")

// Sink 表格型输出端. Publish 先清空已有内容, 再写入表头和全部行,
// 重复发布不会累积旧数据.
type Sink interface {
	Name() string
	Publish(ctx context.Context, header []string, rows [][]string) error
}

// Fanout 把同一份结果并发发布到多个输出端, 任一失败即取消其余发布
type Fanout struct {
	sinks   []Sink
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewFanout(logger *zap.Logger, m *metrics.Metrics, sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks, metrics: m, logger: logger}
}

func (f *Fanout) Name() string {
	return "fanout"
}

func (f *Fanout) Publish(ctx context.Context, header []string, rows [][]string) error {
	if len(f.sinks) == 0 {
		return errors.New("没有配置输出端")
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, s := range f.sinks {
		g.Go(func() error {
			start := time.Now()
			err := s.Publish(ctx, header, rows)
			f.metrics.ObservePublish(s.Name(), time.Since(start), err)
			if err != nil {
				f.logger.Error("发布失败", zap.String("sink", s.Name()), zap.Error(err))
				return fmt.Errorf("%s: %w", s.Name(), err)
			}
			f.logger.Info("发布完成", zap.String("sink", s.Name()), zap.Int("rows", len(rows)))
			return nil
		})
	}
	return g.Wait()
}
