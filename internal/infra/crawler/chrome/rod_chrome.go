package chrome

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/LouYuanbo1/authorharvest/internal/config"
	"github.com/LouYuanbo1/authorharvest/internal/infra/crawler/types"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"go.uber.org/zap"
)

// RodBrowser 基于 rod 的多标签页浏览器, 可选使用 stealth 页面
type RodBrowser struct {
	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
	cfg      config.RodConfig
	root     types.Handle
	pages    map[types.Handle]*rod.Page
	order    []types.Handle
	active   types.Handle
	closed   bool
	logger   *zap.Logger
}

func createLauncher(cfg config.RodConfig) *launcher.Launcher {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox).
		Leakless(cfg.Leakless)
	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}
	if cfg.UserDataDir != "" {
		l = l.UserDataDir(cfg.UserDataDir)
	}
	if cfg.DisableBlinkFeatures != "" {
		l = l.Set(flags.Flag("disable-blink-features"), cfg.DisableBlinkFeatures)
	}
	if cfg.Incognito {
		l = l.Set(flags.Flag("incognito"))
	}
	if cfg.DisableDevShmUsage {
		l = l.Set(flags.Flag("disable-dev-shm-usage"))
	}
	return l
}

// InitRodBrowser 启动并连接浏览器, 打开的第一个页面作为列表页上下文
func InitRodBrowser(ctx context.Context, cfg config.RodConfig, logger *zap.Logger) (*RodBrowser, error) {
	l := createLauncher(cfg).Context(ctx)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("启动浏览器失败: %w", err)
	}
	logger.Debug("浏览器可以连接的URL", zap.String("control_url", controlURL))

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("连接浏览器失败: %w", err)
	}

	rb := &RodBrowser{
		launcher: l,
		browser:  browser,
		cfg:      cfg,
		pages:    map[types.Handle]*rod.Page{},
		logger:   logger,
	}
	p, err := rb.newPage()
	if err != nil {
		_ = browser.Close()
		l.Kill()
		return nil, err
	}
	rb.root = types.Handle(p.TargetID)
	rb.pages[rb.root] = p
	rb.order = []types.Handle{rb.root}
	rb.active = rb.root
	logger.Info("rod 浏览器已启动", zap.String("context", string(rb.root)), zap.Bool("stealth", cfg.Stealth))
	return rb, nil
}

func (rb *RodBrowser) newPage() (*rod.Page, error) {
	var (
		p   *rod.Page
		err error
	)
	if rb.cfg.Stealth {
		p, err = stealth.Page(rb.browser)
	} else {
		p, err = rb.browser.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return nil, fmt.Errorf("获取页面失败: %w", err)
	}
	if rb.cfg.UserAgent != "" {
		if err := p.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: rb.cfg.UserAgent}); err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("设置 UserAgent 失败: %w", err)
		}
	}
	return p, nil
}

func (rb *RodBrowser) Active() types.Handle {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.active
}

func (rb *RodBrowser) Handles() []types.Handle {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return append([]types.Handle(nil), rb.order...)
}

func (rb *RodBrowser) page(h types.Handle) (*rod.Page, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.closed {
		return nil, types.ErrClosed
	}
	p, ok := rb.pages[h]
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownContext, h)
	}
	return p, nil
}

func (rb *RodBrowser) activePage(ctx context.Context) (*rod.Page, error) {
	p, err := rb.page(rb.Active())
	if err != nil {
		return nil, err
	}
	return p.Context(ctx), nil
}

func navigate(p *rod.Page, url string) error {
	if err := p.Navigate(url); err != nil {
		return &types.NavigationError{URL: url, Err: err}
	}
	if err := p.WaitLoad(); err != nil {
		return &types.NavigationError{URL: url, Err: err}
	}
	return nil
}

func (rb *RodBrowser) Navigate(ctx context.Context, url string) error {
	p, err := rb.activePage(ctx)
	if err != nil {
		return err
	}
	return navigate(p, url)
}

func (rb *RodBrowser) ScrollToBottom(ctx context.Context) error {
	p, err := rb.activePage(ctx)
	if err != nil {
		return err
	}
	if _, err := p.Eval(`() => ` + scrollToBottomJS); err != nil {
		return fmt.Errorf("滑动到底部失败: %w", err)
	}
	return nil
}

func (rb *RodBrowser) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	p, err := rb.activePage(ctx)
	if err != nil {
		return err
	}
	if _, err := p.Timeout(timeout).Element(selector); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &types.TimeoutError{Selector: selector, Timeout: timeout, Err: context.DeadlineExceeded}
		}
		return fmt.Errorf("等待元素 %q 失败: %w", selector, err)
	}
	return nil
}

func (rb *RodBrowser) Snapshot(ctx context.Context) (*types.Page, error) {
	p, err := rb.activePage(ctx)
	if err != nil {
		return nil, err
	}
	info, err := p.Info()
	if err != nil {
		return nil, fmt.Errorf("读取页面信息失败: %w", err)
	}
	html, err := p.HTML()
	if err != nil {
		return nil, fmt.Errorf("读取页面失败: %w", err)
	}
	return types.NewPage(info.URL, html)
}

func (rb *RodBrowser) Open(ctx context.Context, url string) (types.Handle, error) {
	if _, err := rb.page(rb.root); err != nil {
		return "", err
	}
	p, err := rb.newPage()
	if err != nil {
		return "", err
	}
	h := types.Handle(p.TargetID)
	if err := navigate(p.Context(ctx), url); err != nil {
		if cerr := p.Close(); cerr != nil {
			rb.logger.Warn("关闭失败的页面出错", zap.String("context", string(h)), zap.Error(cerr))
		}
		return "", err
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.pages[h] = p
	rb.order = append(rb.order, h)
	rb.logger.Debug("打开页面", zap.String("context", string(h)), zap.String("url", url))
	return h, nil
}

func (rb *RodBrowser) Activate(ctx context.Context, h types.Handle) error {
	p, err := rb.page(h)
	if err != nil {
		return err
	}
	if _, err := p.Context(ctx).Activate(); err != nil {
		return fmt.Errorf("切换页面失败: %w", err)
	}
	rb.mu.Lock()
	rb.active = h
	rb.mu.Unlock()
	return nil
}

func (rb *RodBrowser) CloseContext(_ context.Context, h types.Handle) error {
	if h == rb.root {
		return fmt.Errorf("不能关闭列表页上下文 %q", h)
	}
	p, err := rb.page(h)
	if err != nil {
		return err
	}
	cerr := p.Close()

	rb.mu.Lock()
	delete(rb.pages, h)
	rb.order = removeHandle(rb.order, h)
	if rb.active == h {
		rb.active = ""
	}
	rb.mu.Unlock()

	if cerr != nil {
		return fmt.Errorf("关闭页面失败: %w", cerr)
	}
	return nil
}

func (rb *RodBrowser) Close() error {
	rb.mu.Lock()
	if rb.closed {
		rb.mu.Unlock()
		return nil
	}
	rb.closed = true
	rb.pages = map[types.Handle]*rod.Page{}
	rb.order = nil
	rb.active = ""
	rb.mu.Unlock()

	err := rb.browser.Close()
	rb.launcher.Kill()
	rb.logger.Info("rod 浏览器已关闭")
	return err
}
