package chrome

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/LouYuanbo1/authorharvest/internal/config"
	"github.com/LouYuanbo1/authorharvest/internal/infra/crawler/types"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

type chromedpTab struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// ChromedpBrowser 一个 Chrome 进程, 每个浏览上下文对应一个标签页
type ChromedpBrowser struct {
	mu            sync.Mutex
	allocCtxFuc   context.CancelFunc
	timeoutCtxFuc context.CancelFunc
	root          types.Handle
	tabs          map[types.Handle]*chromedpTab
	order         []types.Handle
	active        types.Handle
	closed        bool
	logger        *zap.Logger
}

// InitChromedpBrowser 启动浏览器并打开第一个标签页, 该标签页作为列表页上下文
func InitChromedpBrowser(ctx context.Context, cfg config.ChromedpConfig, logger *zap.Logger) (*ChromedpBrowser, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("incognito", cfg.Incognito),
		chromedp.Flag("disable-dev-shm-usage", cfg.DisableDevShmUsage),
		chromedp.Flag("no-sandbox", cfg.NoSandbox),
	)
	if cfg.DisableBlinkFeatures != "" {
		opts = append(opts, chromedp.Flag("disable-blink-features", cfg.DisableBlinkFeatures))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	lifeCtx, cancelLife := context.WithCancel(ctx)
	if cfg.LifeTime > 0 {
		lifeCtx, cancelLife = context.WithTimeout(ctx, cfg.LifeTime)
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(lifeCtx, opts...)

	sugar := logger.Sugar()
	rootCtx, cancelRoot := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		// CDP 事件反序列化失败的报错很常见, 降到 debug
		chromedp.WithErrorf(sugar.Debugf),
	)
	// 首次 Run 启动浏览器, 不要带超时, 否则超时会连带杀掉进程
	if err := chromedp.Run(rootCtx, network.Enable()); err != nil {
		cancelRoot()
		cancelAlloc()
		cancelLife()
		return nil, fmt.Errorf("启动浏览器失败: %w", err)
	}

	root := handleOf(rootCtx)
	logger.Info("chromedp 浏览器已启动", zap.String("context", string(root)), zap.Bool("headless", cfg.Headless))
	return &ChromedpBrowser{
		allocCtxFuc:   cancelAlloc,
		timeoutCtxFuc: cancelLife,
		root:          root,
		tabs:          map[types.Handle]*chromedpTab{root: {ctx: rootCtx, cancel: cancelRoot}},
		order:         []types.Handle{root},
		active:        root,
		logger:        logger,
	}, nil
}

func handleOf(ctx context.Context) types.Handle {
	c := chromedp.FromContext(ctx)
	if c == nil || c.Target == nil {
		return ""
	}
	return types.Handle(c.Target.TargetID)
}

func (cb *ChromedpBrowser) Active() types.Handle {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.active
}

func (cb *ChromedpBrowser) Handles() []types.Handle {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return append([]types.Handle(nil), cb.order...)
}

func (cb *ChromedpBrowser) tab(h types.Handle) (*chromedpTab, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.closed {
		return nil, types.ErrClosed
	}
	t, ok := cb.tabs[h]
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownContext, h)
	}
	return t, nil
}

// run 在当前活动标签页中执行动作, ctx 只提供截止时间与取消信号
func (cb *ChromedpBrowser) run(ctx context.Context, actions ...chromedp.Action) error {
	t, err := cb.tab(cb.Active())
	if err != nil {
		return err
	}
	runCtx, cancel := CombineContext(t.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

func (cb *ChromedpBrowser) Navigate(ctx context.Context, url string) error {
	if err := cb.run(ctx, chromedp.Navigate(url)); err != nil {
		return &types.NavigationError{URL: url, Err: err}
	}
	return nil
}

func (cb *ChromedpBrowser) ScrollToBottom(ctx context.Context) error {
	if err := cb.run(ctx, chromedp.Evaluate(scrollToBottomJS, nil)); err != nil {
		return fmt.Errorf("滑动到底部失败: %w", err)
	}
	return nil
}

func (cb *ChromedpBrowser) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := cb.run(waitCtx, chromedp.WaitReady(selector, chromedp.ByQuery))
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
		return &types.TimeoutError{Selector: selector, Timeout: timeout, Err: context.DeadlineExceeded}
	}
	return fmt.Errorf("等待元素 %q 失败: %w", selector, err)
}

func (cb *ChromedpBrowser) Snapshot(ctx context.Context) (*types.Page, error) {
	var location, html string
	err := cb.run(ctx,
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("读取页面失败: %w", err)
	}
	return types.NewPage(location, html)
}

// Open 在新标签页中打开 url, 不改变当前活动上下文; 导航失败时标签页会被关闭
func (cb *ChromedpBrowser) Open(ctx context.Context, url string) (types.Handle, error) {
	root, err := cb.tab(cb.root)
	if err != nil {
		return "", err
	}
	tabCtx, cancelTab := chromedp.NewContext(root.ctx)
	// 先创建标签页, 再在组合上下文中导航
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		return "", fmt.Errorf("创建标签页失败: %w", err)
	}
	h := handleOf(tabCtx)

	runCtx, cancelRun := CombineContext(tabCtx, ctx)
	defer cancelRun()
	if err := chromedp.Run(runCtx, network.Enable(), chromedp.Navigate(url)); err != nil {
		if cerr := chromedp.Cancel(tabCtx); cerr != nil && !errors.Is(cerr, context.Canceled) {
			cb.logger.Warn("关闭失败的标签页出错", zap.String("context", string(h)), zap.Error(cerr))
		}
		cancelTab()
		return "", &types.NavigationError{URL: url, Err: err}
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.tabs[h] = &chromedpTab{ctx: tabCtx, cancel: cancelTab}
	cb.order = append(cb.order, h)
	cb.logger.Debug("打开标签页", zap.String("context", string(h)), zap.String("url", url))
	return h, nil
}

func (cb *ChromedpBrowser) Activate(ctx context.Context, h types.Handle) error {
	t, err := cb.tab(h)
	if err != nil {
		return err
	}
	runCtx, cancel := CombineContext(t.ctx, ctx)
	defer cancel()
	if err := chromedp.Run(runCtx, page.BringToFront()); err != nil {
		return fmt.Errorf("切换标签页失败: %w", err)
	}
	cb.mu.Lock()
	cb.active = h
	cb.mu.Unlock()
	return nil
}

// CloseContext 关闭标签页; 根标签页与浏览器同生命周期, 只能通过 Close 关闭
func (cb *ChromedpBrowser) CloseContext(_ context.Context, h types.Handle) error {
	if h == cb.root {
		return fmt.Errorf("不能关闭列表页上下文 %q", h)
	}
	t, err := cb.tab(h)
	if err != nil {
		return err
	}
	cerr := chromedp.Cancel(t.ctx)
	t.cancel()

	cb.mu.Lock()
	delete(cb.tabs, h)
	cb.order = removeHandle(cb.order, h)
	if cb.active == h {
		cb.active = ""
	}
	cb.mu.Unlock()

	if cerr != nil && !errors.Is(cerr, context.Canceled) {
		return fmt.Errorf("关闭标签页失败: %w", cerr)
	}
	return nil
}

func (cb *ChromedpBrowser) Close() error {
	cb.mu.Lock()
	if cb.closed {
		cb.mu.Unlock()
		return nil
	}
	cb.closed = true
	tabs := cb.tabs
	cb.tabs = map[types.Handle]*chromedpTab{}
	cb.order = nil
	cb.active = ""
	cb.mu.Unlock()

	var errs []error
	for h, t := range tabs {
		if h == cb.root {
			continue
		}
		if err := chromedp.Cancel(t.ctx); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, err)
		}
		t.cancel()
	}
	if root, ok := tabs[cb.root]; ok {
		if err := chromedp.Cancel(root.ctx); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, err)
		}
		root.cancel()
	}
	cb.allocCtxFuc()
	cb.timeoutCtxFuc()
	cb.logger.Info("chromedp 浏览器已关闭")
	return errors.Join(errs...)
}
