package collector

import (
	"context"
	"fmt"
	"net/http/cookiejar"
	"sync"
	"time"

	"github.com/LouYuanbo1/authorharvest/internal/config"
	"github.com/LouYuanbo1/authorharvest/internal/infra/crawler/types"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

const blankURL = "about:blank"

type document struct {
	url  string
	body []byte
}

// CollyBrowser 不执行 JavaScript 的静态浏览器, 每个上下文保存最近一次抓取的页面
type CollyBrowser struct {
	mu        sync.Mutex
	collector *colly.Collector
	poll      time.Duration
	root      types.Handle
	docs      map[types.Handle]*document
	order     []types.Handle
	active    types.Handle
	seq       int
	closed    bool
	logger    *zap.Logger
}

func InitCollyBrowser(cfg config.CollyConfig, logger *zap.Logger) (*CollyBrowser, error) {
	opts := []colly.CollectorOption{
		colly.AllowURLRevisit(),
		colly.AllowedDomains(cfg.AllowedDomains...),
	}
	if cfg.UserAgent != "" {
		opts = append(opts, colly.UserAgent(cfg.UserAgent))
	}
	if cfg.IgnoreRobotsTxt {
		opts = append(opts, colly.IgnoreRobotsTxt())
	}
	c := colly.NewCollector(opts...)
	if cfg.RequestTimeout > 0 {
		c.SetRequestTimeout(cfg.RequestTimeout)
	}
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Delay:       cfg.Delay,
		RandomDelay: cfg.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("设置限速规则失败: %w", err)
	}
	if cfg.EnableCookieJar {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("创建 cookie jar 失败: %w", err)
		}
		c.SetCookieJar(jar)
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = time.Second
	}
	logger.Info("colly 浏览器已初始化",
		zap.Strings("allowed_domains", cfg.AllowedDomains),
		zap.Duration("delay", cfg.Delay),
		zap.Duration("random_delay", cfg.RandomDelay),
	)

	cb := &CollyBrowser{
		collector: c,
		poll:      poll,
		docs:      map[types.Handle]*document{},
		logger:    logger,
	}
	cb.root = cb.nextHandle()
	cb.docs[cb.root] = &document{url: blankURL}
	cb.order = []types.Handle{cb.root}
	cb.active = cb.root
	return cb, nil
}

func (cb *CollyBrowser) nextHandle() types.Handle {
	cb.seq++
	return types.Handle(fmt.Sprintf("colly-%d", cb.seq))
}

// fetch 同步抓取 url, 每次使用克隆的 collector 以便单独注册回调
func (cb *CollyBrowser) fetch(ctx context.Context, url string) (*document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := cb.collector.Clone()
	var (
		doc      *document
		fetchErr error
	)
	c.OnResponse(func(r *colly.Response) {
		doc = &document{url: r.Request.URL.String(), body: r.Body}
	})
	c.OnError(func(r *colly.Response, err error) {
		fetchErr = fmt.Errorf("状态码 %d: %w", r.StatusCode, err)
	})
	if err := c.Visit(url); err != nil && fetchErr == nil {
		fetchErr = err
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	if doc == nil {
		return nil, fmt.Errorf("没有收到响应")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return doc, nil
}

func (cb *CollyBrowser) Active() types.Handle {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.active
}

func (cb *CollyBrowser) Handles() []types.Handle {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return append([]types.Handle(nil), cb.order...)
}

func (cb *CollyBrowser) document(h types.Handle) (*document, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.closed {
		return nil, types.ErrClosed
	}
	d, ok := cb.docs[h]
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownContext, h)
	}
	return d, nil
}

func (cb *CollyBrowser) store(h types.Handle, d *document) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if _, ok := cb.docs[h]; ok {
		cb.docs[h] = d
	}
}

func (cb *CollyBrowser) Navigate(ctx context.Context, url string) error {
	h := cb.Active()
	if _, err := cb.document(h); err != nil {
		return err
	}
	d, err := cb.fetch(ctx, url)
	if err != nil {
		return &types.NavigationError{URL: url, Err: err}
	}
	cb.store(h, d)
	return nil
}

// ScrollToBottom 静态页面没有懒加载
func (cb *CollyBrowser) ScrollToBottom(context.Context) error {
	_, err := cb.document(cb.Active())
	return err
}

// WaitFor 选择器未出现时按 PollInterval 重新抓取当前页面, 直到超时
func (cb *CollyBrowser) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	h := cb.Active()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		d, err := cb.document(h)
		if err != nil {
			return err
		}
		page, err := types.NewPage(d.url, string(d.body))
		if err != nil {
			return err
		}
		if page.Find(selector).Length() > 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return &types.TimeoutError{Selector: selector, Timeout: timeout, Err: context.DeadlineExceeded}
		case <-time.After(cb.poll):
		}
		if d.url == blankURL {
			continue
		}
		if nd, err := cb.fetch(ctx, d.url); err == nil {
			cb.store(h, nd)
		} else {
			cb.logger.Debug("重新抓取页面失败", zap.String("url", d.url), zap.Error(err))
		}
	}
}

func (cb *CollyBrowser) Snapshot(context.Context) (*types.Page, error) {
	d, err := cb.document(cb.Active())
	if err != nil {
		return nil, err
	}
	return types.NewPage(d.url, string(d.body))
}

func (cb *CollyBrowser) Open(ctx context.Context, url string) (types.Handle, error) {
	if _, err := cb.document(cb.root); err != nil {
		return "", err
	}
	d, err := cb.fetch(ctx, url)
	if err != nil {
		return "", &types.NavigationError{URL: url, Err: err}
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	h := cb.nextHandle()
	cb.docs[h] = d
	cb.order = append(cb.order, h)
	return h, nil
}

func (cb *CollyBrowser) Activate(_ context.Context, h types.Handle) error {
	if _, err := cb.document(h); err != nil {
		return err
	}
	cb.mu.Lock()
	cb.active = h
	cb.mu.Unlock()
	return nil
}

func (cb *CollyBrowser) CloseContext(_ context.Context, h types.Handle) error {
	if h == cb.root {
		return fmt.Errorf("不能关闭列表页上下文 %q", h)
	}
	if _, err := cb.document(h); err != nil {
		return err
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	delete(cb.docs, h)
	for i, x := range cb.order {
		if x == h {
			cb.order = append(cb.order[:i], cb.order[i+1:]...)
			break
		}
	}
	if cb.active == h {
		cb.active = ""
	}
	return nil
}

func (cb *CollyBrowser) Close() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.closed = true
	cb.docs = map[types.Handle]*document{}
	cb.order = nil
	cb.active = ""
	return nil
}
