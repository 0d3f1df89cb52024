package harvest

import (
	"context"
	"fmt"
	"strings"

	"github.com/LouYuanbo1/authorharvest/internal/domain/model"
	"github.com/LouYuanbo1/authorharvest/internal/infra/crawler/types"
	"github.com/LouYuanbo1/authorharvest/internal/service/harvest/param"
	"go.uber.org/zap"
)

// PageSource 提供当前活动上下文的页面快照
type PageSource interface {
	Snapshot(ctx context.Context) (*types.Page, error)
}

// Extractor 从作者详情页读取网站与社交平台链接
type Extractor struct {
	params param.Detail
	logger *zap.Logger
}

func NewExtractor(params param.Detail, logger *zap.Logger) *Extractor {
	return &Extractor{params: params, logger: logger}
}

// Extract 字段缺失不算错误, 只有读取页面失败才返回 ErrExtract
func (e *Extractor) Extract(ctx context.Context, src PageSource) (model.AuthorFields, error) {
	page, err := src.Snapshot(ctx)
	if err != nil {
		return model.AuthorFields{}, fmt.Errorf("%w: %w", ErrExtract, err)
	}
	links := page.Links()

	website, ok := e.websiteLink(links)
	if !ok {
		website = e.params.WebsiteMissing
	}
	fields := model.NewAuthorFields(website)
	for p, href := range platformLinks(links) {
		fields.Platforms[p] = href
	}
	e.logger.Debug("提取作者字段",
		zap.String("url", page.URL.String()),
		zap.Int("links", len(links)),
		zap.Bool("website", ok),
	)
	return fields, nil
}

// websiteLink 第一个文本恰好为 "Website" 的链接, 没有 href 视同缺失
func (e *Extractor) websiteLink(links []types.Link) (string, bool) {
	for _, l := range links {
		if strings.TrimSpace(l.Text) == e.params.WebsiteLinkText {
			return l.Href, l.HasHref
		}
	}
	return "", false
}

// platformLinks 只扫描一遍, 同名平台后出现的覆盖先出现的
func platformLinks(links []types.Link) map[model.Platform]string {
	found := make(map[model.Platform]string)
	for _, l := range links {
		p, ok := model.LookupPlatform(strings.TrimSpace(l.Text))
		if !ok {
			continue
		}
		found[p] = l.Href
	}
	return found
}
