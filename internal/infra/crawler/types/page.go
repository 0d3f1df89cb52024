package types

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Page 某个浏览上下文在某一时刻的 DOM 快照
type Page struct {
	URL *url.URL
	Doc *goquery.Document
}

// Link 页面中的一个 <a> 元素
type Link struct {
	Text string
	Href string
	// HasHref 元素是否带 href 属性
	HasHref bool
}

// NewPage 解析 HTML, pageURL 用于把相对链接解析为绝对地址
func NewPage(pageURL, html string) (*Page, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("解析页面地址失败: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("解析 HTML 失败: %w", err)
	}
	return &Page{URL: u, Doc: doc}, nil
}

// Find 在整个文档中查询
func (p *Page) Find(selector string) *goquery.Selection {
	return p.Doc.Find(selector)
}

// Links 按文档顺序返回所有 <a>
func (p *Page) Links() []Link {
	sel := p.Doc.Find("a")
	links := make([]Link, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		href, ok := p.Href(s)
		links = append(links, Link{Text: s.Text(), Href: href, HasHref: ok})
	})
	return links
}

// Href 读取元素的 href 并解析为绝对地址, 与浏览器的 element.href 一致
func (p *Page) Href(s *goquery.Selection) (string, bool) {
	raw, ok := s.Attr("href")
	if !ok {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	ref, err := url.Parse(raw)
	if err != nil || p.URL == nil {
		return raw, true
	}
	return p.URL.ResolveReference(ref).String(), true
}
