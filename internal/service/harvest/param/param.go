package param

import (
	"time"

	"github.com/LouYuanbo1/authorharvest/internal/config"
)

// Listing 列表页的地址与结构选择器
type Listing struct {
	URL               string
	Limit             int
	RowSelector       string
	TitleSelector     string
	AuthorSelector    string
	BookPathMarker    string
	WaitTimeout       time.Duration
	NavigationTimeout time.Duration
}

// Detail 作者详情页的查找规则
type Detail struct {
	WebsiteLinkText   string
	WebsiteMissing    string
	NavigationTimeout time.Duration
}

// Pacing 区间均为闭区间 [Min, Max]
type Pacing struct {
	SettleMin   time.Duration
	SettleMax   time.Duration
	CooldownMin time.Duration
	CooldownMax time.Duration
}

func ListingFromConfig(cfg config.ListingConfig) Listing {
	return Listing{
		URL:               cfg.URL,
		Limit:             cfg.Limit,
		RowSelector:       cfg.RowSelector,
		TitleSelector:     cfg.TitleSelector,
		AuthorSelector:    cfg.AuthorSelector,
		BookPathMarker:    cfg.BookPathMarker,
		WaitTimeout:       cfg.WaitTimeout,
		NavigationTimeout: cfg.NavigationTimeout,
	}
}

func DetailFromConfig(cfg config.ListingConfig) Detail {
	return Detail{
		WebsiteLinkText:   cfg.WebsiteLinkText,
		WebsiteMissing:    cfg.WebsiteMissing,
		NavigationTimeout: cfg.NavigationTimeout,
	}
}

func PacingFromConfig(cfg config.PacingConfig) Pacing {
	return Pacing{
		SettleMin:   cfg.SettleMin,
		SettleMax:   cfg.SettleMax,
		CooldownMin: cfg.CooldownMin,
		CooldownMax: cfg.CooldownMax,
	}
}
