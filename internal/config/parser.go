package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// EnvPrefix 环境变量前缀, 例如 HARVEST_LISTING_LIMIT=10
	EnvPrefix = "HARVEST"
	// EnvConfigFile 指定额外配置文件的路径, 覆盖内嵌配置
	EnvConfigFile = "HARVEST_CONFIG"
	// EnvSheetsCredentials 服务账号凭据 JSON
	EnvSheetsCredentials = "GOOGLE_CREDS_JSON"
)

const (
	DriverChromedp = "chromedp"
	DriverRod      = "rod"
	DriverColly    = "colly"

	SinkSheets  = "sheets"
	SinkElastic = "elasticsearch"
	SinkXlsx    = "xlsx"
)

// ParseConfig 依次合并默认值、内嵌 JSON、HARVEST_CONFIG 指向的文件以及环境变量
func ParseConfig(byteConfig []byte) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("json")
	if len(byteConfig) > 0 {
		if err := v.ReadConfig(bytes.NewReader(byteConfig)); err != nil {
			return nil, fmt.Errorf("读取内嵌配置失败: %w", err)
		}
	}
	if path := os.Getenv(EnvConfigFile); path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("sheets.credentials_json", EnvSheetsCredentials); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	for _, dir := range []*string{&cfg.Chromedp.UserDataDir, &cfg.Rod.UserDataDir} {
		if *dir == "" {
			continue
		}
		absPath, err := filepath.Abs(*dir)
		if err != nil {
			return nil, err
		}
		*dir = absPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults 所有键都需要默认值, 否则 AutomaticEnv 在 Unmarshal 时不会生效
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "authorharvest")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	v.SetDefault("listing.url", "https://allauthor.com/books/")
	v.SetDefault("listing.limit", 5)
	v.SetDefault("listing.row_selector", "tr.odd, tr.even")
	v.SetDefault("listing.title_selector", ".bookname a")
	v.SetDefault("listing.author_selector", ".book-author-name a")
	v.SetDefault("listing.book_path_marker", "/book/")
	v.SetDefault("listing.wait_timeout", 20*time.Second)
	v.SetDefault("listing.navigation_timeout", 60*time.Second)
	v.SetDefault("listing.website_link_text", "Website")
	v.SetDefault("listing.website_missing", "N/A")

	v.SetDefault("pacing.settle_min", 1500*time.Millisecond)
	v.SetDefault("pacing.settle_max", 3500*time.Millisecond)
	v.SetDefault("pacing.cooldown_min", 1000*time.Millisecond)
	v.SetDefault("pacing.cooldown_max", 2500*time.Millisecond)

	v.SetDefault("browser.driver", DriverChromedp)

	v.SetDefault("chromedp.life_time", 0)
	v.SetDefault("chromedp.user_data_dir", "")
	v.SetDefault("chromedp.headless", true)
	v.SetDefault("chromedp.disable_blink_features", "AutomationControlled")
	v.SetDefault("chromedp.incognito", false)
	v.SetDefault("chromedp.disable_dev_shm_usage", true)
	v.SetDefault("chromedp.no_sandbox", true)
	v.SetDefault("chromedp.user_agent", "")
	v.SetDefault("chromedp.exec_path", "")

	v.SetDefault("rod.user_data_dir", "")
	v.SetDefault("rod.headless", true)
	v.SetDefault("rod.disable_blink_features", "AutomationControlled")
	v.SetDefault("rod.incognito", false)
	v.SetDefault("rod.disable_dev_shm_usage", true)
	v.SetDefault("rod.no_sandbox", true)
	v.SetDefault("rod.user_agent", "")
	v.SetDefault("rod.leakless", false)
	v.SetDefault("rod.bin", "")
	v.SetDefault("rod.stealth", true)

	v.SetDefault("colly.allowed_domains", []string{})
	v.SetDefault("colly.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")
	v.SetDefault("colly.ignore_robots_txt", true)
	v.SetDefault("colly.delay", 0)
	v.SetDefault("colly.random_delay", 0)
	v.SetDefault("colly.request_timeout", 30*time.Second)
	v.SetDefault("colly.poll_interval", time.Second)
	v.SetDefault("colly.enable_cookie_jar", true)

	v.SetDefault("sinks.enabled", []string{SinkSheets})
	v.SetDefault("sinks.publish_timeout", 2*time.Minute)

	v.SetDefault("sheets.credentials_json", "")
	v.SetDefault("sheets.spreadsheet_id", "")
	v.SetDefault("sheets.spreadsheet_title", "AllAuthor Books")
	v.SetDefault("sheets.sheet_name", "Sheet1")
	v.SetDefault("sheets.endpoint", "")

	v.SetDefault("elasticsearch.username", "")
	v.SetDefault("elasticsearch.password", "")
	v.SetDefault("elasticsearch.address", "http://localhost:9200")
	v.SetDefault("elasticsearch.index", "allauthor_books")
	v.SetDefault("elasticsearch.insecure_skip_verify", false)

	v.SetDefault("xlsx.path", "output/allauthor_books.xlsx")
	v.SetDefault("xlsx.sheet_name", "Books")

	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "authorharvest")
}

// Validate 检查配置之间的一致性
func (c *Config) Validate() error {
	u, err := url.Parse(c.Listing.URL)
	if err != nil {
		return fmt.Errorf("listing.url 无效: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("listing.url 必须是 http(s) 地址: %q", c.Listing.URL)
	}
	if c.Listing.Limit <= 0 {
		return fmt.Errorf("listing.limit must be positive, got %d", c.Listing.Limit)
	}
	if c.Listing.RowSelector == "" || c.Listing.TitleSelector == "" || c.Listing.AuthorSelector == "" {
		return fmt.Errorf("listing selectors cannot be empty")
	}
	if c.Listing.WaitTimeout <= 0 {
		return fmt.Errorf("listing.wait_timeout must be positive")
	}
	if err := checkRange("pacing.settle", c.Pacing.SettleMin, c.Pacing.SettleMax); err != nil {
		return err
	}
	if err := checkRange("pacing.cooldown", c.Pacing.CooldownMin, c.Pacing.CooldownMax); err != nil {
		return err
	}

	switch c.Browser.Driver {
	case DriverChromedp, DriverRod, DriverColly:
	default:
		return fmt.Errorf("browser.driver 不支持: %q", c.Browser.Driver)
	}

	if len(c.Sinks.Enabled) == 0 {
		return fmt.Errorf("sinks.enabled cannot be empty")
	}
	for _, name := range c.Sinks.Enabled {
		switch name {
		case SinkSheets:
			if c.Sheets.CredentialsJSON == "" {
				return fmt.Errorf("sheets sink requires credentials (%s)", EnvSheetsCredentials)
			}
			if c.Sheets.SpreadsheetID == "" && c.Sheets.SpreadsheetTitle == "" {
				return fmt.Errorf("sheets sink requires spreadsheet_id or spreadsheet_title")
			}
		case SinkElastic:
			if c.Elastic.Address == "" || c.Elastic.Index == "" {
				return fmt.Errorf("elasticsearch sink requires address and index")
			}
		case SinkXlsx:
			if c.Xlsx.Path == "" {
				return fmt.Errorf("xlsx sink requires a path")
			}
		default:
			return fmt.Errorf("unknown sink %q", name)
		}
	}
	if slices.Contains(c.Sinks.Enabled, SinkSheets) && c.Sheets.SheetName == "" {
		return fmt.Errorf("sheets.sheet_name cannot be empty")
	}
	return nil
}

func checkRange(name string, lo, hi time.Duration) error {
	if lo < 0 || hi < 0 {
		return fmt.Errorf("%s range cannot be negative", name)
	}
	if lo > hi {
		return fmt.Errorf("%s_min (%s) cannot exceed %s_max (%s)", name, lo, name, hi)
	}
	return nil
}
