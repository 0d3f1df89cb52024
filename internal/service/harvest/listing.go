package harvest

import (
	"context"
	"fmt"
	"strings"

	"github.com/LouYuanbo1/authorharvest/internal/domain/entity"
	"github.com/LouYuanbo1/authorharvest/internal/infra/crawler"
	"github.com/LouYuanbo1/authorharvest/internal/infra/crawler/types"
	"github.com/LouYuanbo1/authorharvest/internal/service/harvest/param"
	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// RowError 无法解析的列表行
type RowError struct {
	// Index 行在页面中的位置, 从 0 开始
	Index int
	Err   error
}

// Listing 列表页的解析结果
type Listing struct {
	// Found 页面上匹配的行数, 可能大于 limit
	Found   int
	Entries []entity.ListingEntry
	Skipped []RowError
}

// Attempted 参与处理的行数
func (l *Listing) Attempted() int {
	return len(l.Entries) + len(l.Skipped)
}

type Harvester struct {
	browser crawler.Browser
	params  param.Listing
	logger  *zap.Logger
}

func NewHarvester(browser crawler.Browser, params param.Listing, logger *zap.Logger) *Harvester {
	return &Harvester{browser: browser, params: params, logger: logger}
}

// Harvest 在当前活动上下文中加载列表页并取前 limit 行.
// 列表页加载失败或超时没有行出现时返回错误, 单行解析失败只记入 Skipped.
func (h *Harvester) Harvest(ctx context.Context, limit int) (*Listing, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	if err := h.load(ctx); err != nil {
		return nil, err
	}
	page, err := h.browser.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("读取列表页失败: %w", err)
	}

	rows := page.Find(h.params.RowSelector)
	listing := &Listing{Found: rows.Length()}
	h.logger.Info("列表页行数", zap.Int("found", listing.Found), zap.Int("limit", limit))

	rows.Slice(0, min(limit, listing.Found)).Each(func(i int, row *goquery.Selection) {
		entry, err := h.parseRow(page, row)
		if err != nil {
			h.logger.Warn("跳过无效行", zap.Int("row", i), zap.Error(err))
			listing.Skipped = append(listing.Skipped, RowError{Index: i, Err: err})
			return
		}
		listing.Entries = append(listing.Entries, entry)
	})
	return listing, nil
}

func (h *Harvester) load(ctx context.Context) error {
	navCtx := ctx
	if h.params.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, h.params.NavigationTimeout)
		defer cancel()
	}
	if err := h.browser.Navigate(navCtx, h.params.URL); err != nil {
		return fmt.Errorf("加载列表页失败: %w", err)
	}
	// 触发懒加载后再等待行出现
	if err := h.browser.ScrollToBottom(ctx); err != nil {
		return err
	}
	if err := h.browser.WaitFor(ctx, h.params.RowSelector, h.params.WaitTimeout); err != nil {
		return fmt.Errorf("列表页没有出现数据行: %w", err)
	}
	return nil
}

func (h *Harvester) parseRow(page *types.Page, row *goquery.Selection) (entity.ListingEntry, error) {
	title, bookLink, err := link(page, row, h.params.TitleSelector)
	if err != nil {
		return entity.ListingEntry{}, err
	}
	author, authorLink, err := link(page, row, h.params.AuthorSelector)
	if err != nil {
		return entity.ListingEntry{}, err
	}
	return entity.ListingEntry{
		BookID:     entity.ExtractBookID(bookLink, h.params.BookPathMarker),
		BookTitle:  title,
		BookLink:   bookLink,
		AuthorName: author,
		AuthorLink: authorLink,
	}, nil
}

func link(page *types.Page, row *goquery.Selection, selector string) (text, href string, err error) {
	a := row.Find(selector).First()
	if a.Length() == 0 {
		return "", "", fmt.Errorf("%w: no element matches %q", ErrRow, selector)
	}
	href, ok := page.Href(a)
	if !ok {
		return "", "", fmt.Errorf("%w: %q has no href", ErrRow, selector)
	}
	return strings.TrimSpace(a.Text()), href, nil
}
