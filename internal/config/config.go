package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Tracker   TrackerConfig   `mapstructure:"tracker"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Log       LogConfig       `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
	UI        UIConfig        `mapstructure:"ui"`
}

type DatabaseConfig struct {
	// Driver selects the key-value backend: "bolt" or "sqlite".
	Driver      string        `mapstructure:"driver"`
	Path        string        `mapstructure:"path"`
	Timeout     time.Duration `mapstructure:"timeout"`
	SearchIndex string        `mapstructure:"search_index"`
}

type TrackerConfig struct {
	MaxTrackers           int           `mapstructure:"max_trackers"`
	DefaultUpdateInterval time.Duration `mapstructure:"default_update_interval"`
	MinUpdateInterval     time.Duration `mapstructure:"min_update_interval"`
	DefaultDailyLimit     int           `mapstructure:"default_daily_limit"`
	QuotaWindow           time.Duration `mapstructure:"quota_window"`
}

type SchedulerConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	InitialDelay    time.Duration `mapstructure:"initial_delay"`
	PaceDelay       time.Duration `mapstructure:"pace_delay"`
	DueTolerance    time.Duration `mapstructure:"due_tolerance"`
}

type FetchConfig struct {
	HTTPTimeout    time.Duration  `mapstructure:"http_timeout"`
	ProbeTimeout   time.Duration  `mapstructure:"probe_timeout"`
	UserAgent      string         `mapstructure:"user_agent"`
	MaxBodyBytes   int64          `mapstructure:"max_body_bytes"`
	WeatherUnits   string         `mapstructure:"weather_units"`
	TwitterMirrors []string       `mapstructure:"twitter_mirrors"`
	Endpoints      EndpointConfig `mapstructure:"endpoints"`
}

// EndpointConfig holds the base URLs of every upstream service. Tests point
// these at httptest servers.
type EndpointConfig struct {
	FeedProxy string `mapstructure:"feed_proxy"`
	CoinGecko string `mapstructure:"coingecko"`
	CoinPage  string `mapstructure:"coin_page"`
	Weather   string `mapstructure:"weather"`
	Stocks    string `mapstructure:"stocks"`
	StockPage string `mapstructure:"stock_page"`
	GitHubAPI string `mapstructure:"github_api"`
	GitHub    string `mapstructure:"github"`
	Twitch    string `mapstructure:"twitch"`
	YouTube   string `mapstructure:"youtube"`
	Favicon   string `mapstructure:"favicon"`
}

type EngineConfig struct {
	// BadgeSnapshots lets crypto/stock/weather/twitch/json trackers take part
	// in new-content detection even though their pubDate is the fetch time.
	BadgeSnapshots bool `mapstructure:"badge_snapshots"`
	PermissiveURLs bool `mapstructure:"permissive_urls"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

type TelegramConfig struct {
	Token  string `mapstructure:"token"`
	ChatID int64  `mapstructure:"chat_id"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type UIConfig struct {
	Opener string `mapstructure:"opener"`
}

func defaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dbPath := filepath.Join(homeDir, ".ntrack.db")
	searchIndexPath := filepath.Join(homeDir, ".ntrack", "index.bleve")

	return &Config{
		Database: DatabaseConfig{
			Driver:      "bolt",
			Path:        dbPath,
			Timeout:     1 * time.Second,
			SearchIndex: searchIndexPath,
		},
		Tracker: TrackerConfig{
			MaxTrackers:           50,
			DefaultUpdateInterval: 5 * time.Minute,
			MinUpdateInterval:     1 * time.Minute,
			DefaultDailyLimit:     200,
			QuotaWindow:           24 * time.Hour,
		},
		Scheduler: SchedulerConfig{
			RefreshInterval: 5 * time.Minute,
			InitialDelay:    2 * time.Second,
			PaceDelay:       500 * time.Millisecond,
			DueTolerance:    10 * time.Second,
		},
		Fetch: FetchConfig{
			HTTPTimeout:  30 * time.Second,
			ProbeTimeout: 5 * time.Second,
			UserAgent:    "ntrack/1.0 (https://github.com/pders01/ntrack)",
			MaxBodyBytes: 5 * 1024 * 1024,
			WeatherUnits: "F",
			TwitterMirrors: []string{
				"https://xcancel.com",
				"https://nitter.net",
				"https://nitter.poast.org",
				"https://nitter.moomoo.host",
			},
			Endpoints: EndpointConfig{
				FeedProxy: "https://api.rss2json.com/v1/api.json",
				CoinGecko: "https://api.coingecko.com/api/v3",
				CoinPage:  "https://www.coingecko.com/en/coins",
				Weather:   "https://wttr.in",
				Stocks:    "https://query1.finance.yahoo.com/v8/finance/chart",
				StockPage: "https://finance.yahoo.com/quote",
				GitHubAPI: "https://api.github.com",
				GitHub:    "https://github.com",
				Twitch:    "https://decapi.me/twitch/uptime",
				YouTube:   "https://www.youtube.com",
				Favicon:   "https://www.google.com/s2/favicons",
			},
		},
		Engine: EngineConfig{
			BadgeSnapshots: false,
			PermissiveURLs: false,
		},
		Log: LogConfig{
			Level: "OFF",
		},
		Server: ServerConfig{
			Addr:         "127.0.0.1:7777",
			WriteTimeout: 60 * time.Second,
		},
		UI: UIConfig{
			Opener: getDefaultOpener(),
		},
	}
}

func getDefaultOpener() string {
	switch runtime.GOOS {
	case "darwin":
		return "open"
	case "linux":
		return "xdg-open"
	case "windows":
		return "start"
	default:
		return "open"
	}
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	for name, section := range sections(defaultConfig()) {
		v.SetDefault(name, section)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		homeDir, _ := os.UserHomeDir()
		configDir := filepath.Join(homeDir, ".config", "ntrack")

		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(configDir)
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("NTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	expandPaths(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "bolt", "sqlite":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Tracker.MaxTrackers < 1 {
		return fmt.Errorf("tracker.max_trackers must be at least 1")
	}
	if c.Tracker.MinUpdateInterval <= 0 {
		return fmt.Errorf("tracker.min_update_interval must be positive")
	}
	if c.Tracker.DefaultUpdateInterval < c.Tracker.MinUpdateInterval {
		return fmt.Errorf("tracker.default_update_interval below min_update_interval")
	}
	if c.Tracker.DefaultDailyLimit < 1 {
		return fmt.Errorf("tracker.default_daily_limit must be at least 1")
	}
	if c.Tracker.QuotaWindow <= 0 {
		return fmt.Errorf("tracker.quota_window must be positive")
	}
	if c.Scheduler.RefreshInterval <= 0 {
		return fmt.Errorf("scheduler.refresh_interval must be positive")
	}
	switch c.Fetch.WeatherUnits {
	case "F", "C":
	default:
		return fmt.Errorf("fetch.weather_units must be F or C, got %q", c.Fetch.WeatherUnits)
	}
	return nil
}

// expandPath expands ~ to home directory and converts to absolute path
func expandPath(path string) string {
	if path == "" {
		return path
	}

	if len(path) >= 2 && path[:2] == "~/" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[2:])
	}

	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}

	return path
}

func expandPaths(cfg *Config) {
	cfg.Database.Path = expandPath(cfg.Database.Path)
	cfg.Database.SearchIndex = expandPath(cfg.Database.SearchIndex)
	cfg.Log.File = expandPath(cfg.Log.File)
}

// sections flattens the config into per-section maps with durations rendered
// as strings, the shape both viper defaults and the TOML writer expect.
func sections(config *Config) map[string]map[string]interface{} {
	return map[string]map[string]interface{}{
		"database": {
			"driver":       config.Database.Driver,
			"path":         config.Database.Path,
			"timeout":      config.Database.Timeout.String(),
			"search_index": config.Database.SearchIndex,
		},
		"tracker": {
			"max_trackers":            config.Tracker.MaxTrackers,
			"default_update_interval": config.Tracker.DefaultUpdateInterval.String(),
			"min_update_interval":     config.Tracker.MinUpdateInterval.String(),
			"default_daily_limit":     config.Tracker.DefaultDailyLimit,
			"quota_window":            config.Tracker.QuotaWindow.String(),
		},
		"scheduler": {
			"refresh_interval": config.Scheduler.RefreshInterval.String(),
			"initial_delay":    config.Scheduler.InitialDelay.String(),
			"pace_delay":       config.Scheduler.PaceDelay.String(),
			"due_tolerance":    config.Scheduler.DueTolerance.String(),
		},
		"fetch": {
			"http_timeout":    config.Fetch.HTTPTimeout.String(),
			"probe_timeout":   config.Fetch.ProbeTimeout.String(),
			"user_agent":      config.Fetch.UserAgent,
			"max_body_bytes":  config.Fetch.MaxBodyBytes,
			"weather_units":   config.Fetch.WeatherUnits,
			"twitter_mirrors": config.Fetch.TwitterMirrors,
			"endpoints": map[string]interface{}{
				"feed_proxy": config.Fetch.Endpoints.FeedProxy,
				"coingecko":  config.Fetch.Endpoints.CoinGecko,
				"coin_page":  config.Fetch.Endpoints.CoinPage,
				"weather":    config.Fetch.Endpoints.Weather,
				"stocks":     config.Fetch.Endpoints.Stocks,
				"stock_page": config.Fetch.Endpoints.StockPage,
				"github_api": config.Fetch.Endpoints.GitHubAPI,
				"github":     config.Fetch.Endpoints.GitHub,
				"twitch":     config.Fetch.Endpoints.Twitch,
				"youtube":    config.Fetch.Endpoints.YouTube,
				"favicon":    config.Fetch.Endpoints.Favicon,
			},
		},
		"engine": {
			"badge_snapshots": config.Engine.BadgeSnapshots,
			"permissive_urls": config.Engine.PermissiveURLs,
		},
		"notify": {
			"telegram": map[string]interface{}{
				"token":   config.Notify.Telegram.Token,
				"chat_id": config.Notify.Telegram.ChatID,
			},
		},
		"log": {
			"level": config.Log.Level,
			"file":  config.Log.File,
		},
		"server": {
			"addr":          config.Server.Addr,
			"write_timeout": config.Server.WriteTimeout.String(),
		},
		"ui": {
			"opener": config.UI.Opener,
		},
	}
}

func Save(config *Config, path string) error {
	v := viper.New()
	for name, section := range sections(config) {
		v.Set(name, section)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	return v.WriteConfigAs(path)
}

func GenerateDefaultConfig(path string) error {
	return Save(defaultConfig(), path)
}
