package config

import "time"

// Config 应用配置,字段与 appconfig.json 中的键一一对应
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger"`
	Listing  ListingConfig  `mapstructure:"listing"`
	Pacing   PacingConfig   `mapstructure:"pacing"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Chromedp ChromedpConfig `mapstructure:"chromedp"`
	Rod      RodConfig      `mapstructure:"rod"`
	Colly    CollyConfig    `mapstructure:"colly"`
	Sinks    SinksConfig    `mapstructure:"sinks"`
	Sheets   SheetsConfig   `mapstructure:"sheets"`
	Elastic  ElasticConfig  `mapstructure:"elasticsearch"`
	Xlsx     XlsxConfig     `mapstructure:"xlsx"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type LoggerConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	ServiceName string `mapstructure:"service_name"`
	AddSource   bool   `mapstructure:"add_source"`
	LogFile     string `mapstructure:"log_file"`
	MaxSize     int    `mapstructure:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAge      int    `mapstructure:"max_age"`
	Compress    bool   `mapstructure:"compress"`
}

// ListingConfig 列表页的地址与结构选择器
type ListingConfig struct {
	URL               string        `mapstructure:"url"`
	Limit             int           `mapstructure:"limit"`
	RowSelector       string        `mapstructure:"row_selector"`
	TitleSelector     string        `mapstructure:"title_selector"`
	AuthorSelector    string        `mapstructure:"author_selector"`
	BookPathMarker    string        `mapstructure:"book_path_marker"`
	WaitTimeout       time.Duration `mapstructure:"wait_timeout"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	WebsiteLinkText   string        `mapstructure:"website_link_text"`
	WebsiteMissing    string        `mapstructure:"website_missing"`
}

// PacingConfig 详情页访问前后的随机等待区间
type PacingConfig struct {
	SettleMin   time.Duration `mapstructure:"settle_min"`
	SettleMax   time.Duration `mapstructure:"settle_max"`
	CooldownMin time.Duration `mapstructure:"cooldown_min"`
	CooldownMax time.Duration `mapstructure:"cooldown_max"`
}

type BrowserConfig struct {
	// Driver 可选 chromedp / rod / colly
	Driver string `mapstructure:"driver"`
}

type ChromedpConfig struct {
	LifeTime             time.Duration `mapstructure:"life_time"`
	UserDataDir          string        `mapstructure:"user_data_dir"`
	Headless             bool          `mapstructure:"headless"`
	DisableBlinkFeatures string        `mapstructure:"disable_blink_features"`
	Incognito            bool          `mapstructure:"incognito"`
	DisableDevShmUsage   bool          `mapstructure:"disable_dev_shm_usage"`
	NoSandbox            bool          `mapstructure:"no_sandbox"`
	UserAgent            string        `mapstructure:"user_agent"`
	ExecPath             string        `mapstructure:"exec_path"`
}

type RodConfig struct {
	UserDataDir          string `mapstructure:"user_data_dir"`
	Headless             bool   `mapstructure:"headless"`
	DisableBlinkFeatures string `mapstructure:"disable_blink_features"`
	Incognito            bool   `mapstructure:"incognito"`
	DisableDevShmUsage   bool   `mapstructure:"disable_dev_shm_usage"`
	NoSandbox            bool   `mapstructure:"no_sandbox"`
	UserAgent            string `mapstructure:"user_agent"`
	Leakless             bool   `mapstructure:"leakless"`
	Bin                  string `mapstructure:"bin"`
	Stealth              bool   `mapstructure:"stealth"`
}

type CollyConfig struct {
	AllowedDomains  []string      `mapstructure:"allowed_domains"`
	UserAgent       string        `mapstructure:"user_agent"`
	IgnoreRobotsTxt bool          `mapstructure:"ignore_robots_txt"`
	Delay           time.Duration `mapstructure:"delay"`
	RandomDelay     time.Duration `mapstructure:"random_delay"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	EnableCookieJar bool          `mapstructure:"enable_cookie_jar"`
}

// SinksConfig 启用的输出端,按顺序发布
type SinksConfig struct {
	Enabled        []string      `mapstructure:"enabled"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
}

type SheetsConfig struct {
	// CredentialsJSON 服务账号的 JSON,默认从 GOOGLE_CREDS_JSON 读取
	CredentialsJSON  string `mapstructure:"credentials_json"`
	SpreadsheetID    string `mapstructure:"spreadsheet_id"`
	SpreadsheetTitle string `mapstructure:"spreadsheet_title"`
	SheetName        string `mapstructure:"sheet_name"`
	Endpoint         string `mapstructure:"endpoint"`
}

type ElasticConfig struct {
	Username           string `mapstructure:"username"`
	Password           string `mapstructure:"password"`
	Address            string `mapstructure:"address"`
	Index              string `mapstructure:"index"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

type XlsxConfig struct {
	Path      string `mapstructure:"path"`
	SheetName string `mapstructure:"sheet_name"`
}

type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}
