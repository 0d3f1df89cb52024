package crawler

import (
	"context"
	"fmt"
	"time"

	"github.com/LouYuanbo1/authorharvest/internal/config"
	"github.com/LouYuanbo1/authorharvest/internal/infra/crawler/chrome"
	"github.com/LouYuanbo1/authorharvest/internal/infra/crawler/collector"
	"github.com/LouYuanbo1/authorharvest/internal/infra/crawler/types"
	"go.uber.org/zap"
)

// Browser 一个浏览器会话, 可同时持有多个浏览上下文 (标签页).
// 除 Open 外, 页面操作都作用于当前活动上下文.
type Browser interface {
	// Active 当前活动上下文, 关闭活动上下文后为空
	Active() types.Handle
	// Handles 按打开顺序返回所有存活的上下文
	Handles() []types.Handle
	Navigate(ctx context.Context, url string) error
	ScrollToBottom(ctx context.Context) error
	// WaitFor 等待选择器出现, 超时返回 *types.TimeoutError
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error
	Snapshot(ctx context.Context) (*types.Page, error)
	// Open 在新上下文中打开 url 并返回其句柄, 不切换活动上下文
	Open(ctx context.Context, url string) (types.Handle, error)
	Activate(ctx context.Context, h types.Handle) error
	// CloseContext 关闭一个上下文, 不允许关闭第一个上下文
	CloseContext(ctx context.Context, h types.Handle) error
	Close() error
}

var (
	_ Browser = (*chrome.ChromedpBrowser)(nil)
	_ Browser = (*chrome.RodBrowser)(nil)
	_ Browser = (*collector.CollyBrowser)(nil)
)

// Open 按配置中的驱动启动浏览器
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Browser, error) {
	logger = logger.With(zap.String("driver", cfg.Browser.Driver))
	switch cfg.Browser.Driver {
	case config.DriverChromedp:
		b, err := chrome.InitChromedpBrowser(ctx, cfg.Chromedp, logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.DriverRod:
		b, err := chrome.InitRodBrowser(ctx, cfg.Rod, logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.DriverColly:
		b, err := collector.InitCollyBrowser(cfg.Colly, logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("未知的浏览器驱动: %q", cfg.Browser.Driver)
	}
}
