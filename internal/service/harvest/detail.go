package harvest

import (
	"context"
	"errors"
	"time"

	"github.com/LouYuanbo1/authorharvest/internal/domain/entity"
	"github.com/LouYuanbo1/authorharvest/internal/domain/model"
	"github.com/LouYuanbo1/authorharvest/internal/infra/crawler"
	"github.com/LouYuanbo1/authorharvest/internal/service/harvest/param"
	"go.uber.org/zap"
)

// 清理在运行被取消后仍要完成, 但不能无限等待
const cleanupTimeout = 10 * time.Second

// Navigator 在独立的上下文中访问作者详情页
type Navigator struct {
	browser   crawler.Browser
	extractor *Extractor
	pacer     Pacer
	pacing    param.Pacing
	navTime   time.Duration
	logger    *zap.Logger
	// onExtract 开始提取字段前调用, 可为 nil
	onExtract func()
}

func NewNavigator(browser crawler.Browser, extractor *Extractor, pacer Pacer, pacing param.Pacing, navTimeout time.Duration, logger *zap.Logger) *Navigator {
	return &Navigator{
		browser:   browser,
		extractor: extractor,
		pacer:     pacer,
		pacing:    pacing,
		navTime:   navTimeout,
		logger:    logger,
	}
}

// Visit 返回的 error 非空表示该条目失败. 返回前详情页上下文总是已关闭,
// 列表页上下文重新处于活动状态.
func (n *Navigator) Visit(ctx context.Context, entry entity.ListingEntry) (model.AuthorFields, error) {
	var fields model.AuthorFields
	err, cleanupErr := n.within(ctx, entry.AuthorLink, func(ctx context.Context) error {
		if n.onExtract != nil {
			n.onExtract()
		}
		var err error
		fields, err = n.extractor.Extract(ctx, n.browser)
		return err
	})
	if cleanupErr == nil {
		if perr := n.pacer.Pause(ctx, n.pacing.CooldownMin, n.pacing.CooldownMax); perr != nil && err == nil {
			err = perr
		}
	}
	if err = errors.Join(err, cleanupErr); err != nil {
		return model.AuthorFields{}, err
	}
	return fields, nil
}

// Within 在新上下文中打开 url 并执行 fn, 之后关闭该上下文并切回调用时的活动上下文
func (n *Navigator) Within(ctx context.Context, url string, fn func(ctx context.Context) error) error {
	err, cleanupErr := n.within(ctx, url, fn)
	return errors.Join(err, cleanupErr)
}

func (n *Navigator) within(ctx context.Context, url string, fn func(ctx context.Context) error) (err, cleanupErr error) {
	origin := n.browser.Active()

	openCtx := ctx
	if n.navTime > 0 {
		var cancel context.CancelFunc
		openCtx, cancel = context.WithTimeout(ctx, n.navTime)
		defer cancel()
	}
	h, err := n.browser.Open(openCtx, url)
	if err != nil {
		// Open 失败时不会留下新上下文
		return err, nil
	}
	n.logger.Debug("打开详情页", zap.String("url", url), zap.String("context", string(h)))

	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
		var errs []error
		if cerr := n.browser.CloseContext(cctx, h); cerr != nil {
			errs = append(errs, cerr)
		}
		if aerr := n.browser.Activate(cctx, origin); aerr != nil {
			errs = append(errs, aerr)
		}
		if len(errs) > 0 {
			cleanupErr = &CleanupError{Handle: h, Err: errors.Join(errs...)}
			n.logger.Error("清理详情页上下文失败", zap.String("context", string(h)), zap.Error(cleanupErr))
		}
	}()

	if err := n.browser.Activate(ctx, h); err != nil {
		return err, nil
	}
	if err := n.pacer.Pause(ctx, n.pacing.SettleMin, n.pacing.SettleMax); err != nil {
		return err, nil
	}
	return fn(ctx), nil
}
