package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all bot configuration
type Config struct {
	Nick       string   `yaml:"nick"`
	NickPass   string   `yaml:"nick_pass"`
	Alternate  string   `yaml:"alternate"`
	Server     string   `yaml:"server"`
	Port       int      `yaml:"port"`
	UseTLS     bool     `yaml:"use_tls"`
	ServerPass string   `yaml:"server_pass"`
	IRCName    string   `yaml:"irc_name"`
	Username   string   `yaml:"username"`
	AdminPass  string   `yaml:"admin_pass"`
	Owner      string   `yaml:"owner"`
	Channels   []string `yaml:"channels"`
	DataDir    string   `yaml:"data_dir"`

	Wikidot     Wikidot  `yaml:"wikidot"`
	Feeds       Feeds    `yaml:"feeds"`
	Database    Database `yaml:"database"`
	Log         Log      `yaml:"log"`
	MetricsAddr string   `yaml:"metrics_addr"`
}

// Wikidot configures access to the mirrored wiki
type Wikidot struct {
	Site string `yaml:"site"`
	User string `yaml:"user"`
	Key  string `yaml:"key"`
	// RPCURL is the XML-RPC endpoint; credentials are added at dial time
	RPCURL string `yaml:"rpc_url"`
	// RequestsPerSecond throttles all requests to the wiki
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout"`
}

// Feed is the shared polling configuration of one mirrored feed
type Feed struct {
	Enabled  bool          `yaml:"enabled"`
	URL      string        `yaml:"url"`
	Interval time.Duration `yaml:"interval"`
}

// TitlesFeed adds the index pages scanned for titles
type TitlesFeed struct {
	Feed `yaml:",inline"`
	// Pages are always fetched; any failure fails the refresh
	Pages []string `yaml:"pages"`
	// Series is the base URL of numbered series pages (<series>-2, <series>-3, ...)
	Series    string `yaml:"series"`
	MaxSeries int    `yaml:"max_series"`
}

// PagesFeed adds the consumer policy for removed pages
type PagesFeed struct {
	Feed          `yaml:",inline"`
	PurgeOnRemove bool `yaml:"purge_on_remove"`
}

// Feeds groups every mirrored feed
type Feeds struct {
	Bans    Feed       `yaml:"bans"`
	Titles  TitlesFeed `yaml:"titles"`
	Pages   PagesFeed  `yaml:"pages"`
	Authors Feed       `yaml:"authors"`
}

// Database configures the relational store
type Database struct {
	URL string `yaml:"url"`
}

// Log configures the logger
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses a YAML configuration file, then applies secrets from
// the environment (and a .env file next to the config, if present).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Missing .env is normal in production
	_ = godotenv.Load(filepath.Join(filepath.Dir(path), ".env"))
	cfg.applyEnv()
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used for keys absent from the file
func Default() *Config {
	return &Config{
		Port:    6667,
		DataDir: "./data",
		Wikidot: Wikidot{
			Site:              "scp-wiki",
			RPCURL:            "https://www.wikidot.com/xml-rpc-api.php",
			RequestsPerSecond: 2,
			Timeout:           30 * time.Second,
		},
		Feeds: Feeds{
			Bans: Feed{Interval: 10 * time.Minute},
			Titles: TitlesFeed{
				Feed: Feed{Enabled: true, Interval: 15 * time.Minute},
				Pages: []string{
					"http://scp-wiki.wikidot.com/scp-series",
					"http://scp-wiki.wikidot.com/joke-scps",
				},
				Series:    "http://scp-wiki.wikidot.com/scp-series",
				MaxSeries: 10,
			},
			Pages: PagesFeed{
				Feed:          Feed{Interval: time.Hour},
				PurgeOnRemove: true,
			},
			Authors: Feed{
				URL:      "http://www.scp-wiki.net/attribution-metadata",
				Interval: 6 * time.Hour,
			},
		},
		Log: Log{Level: "info", Format: "console"},
	}
}

func (c *Config) applyEnv() {
	set := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.NickPass, "WIKIBOT_NICK_PASS")
	set(&c.AdminPass, "WIKIBOT_ADMIN_PASS")
	set(&c.Wikidot.User, "WIKIDOT_USER")
	set(&c.Wikidot.Key, "WIKIDOT_KEY")
	set(&c.Database.URL, "DATABASE_URL")
}

func (c *Config) setDefaults() {
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.Alternate == "" && c.Nick != "" {
		c.Alternate = c.Nick + "_"
	}
	if c.Username == "" {
		c.Username = c.Nick
	}
	if c.IRCName == "" {
		c.IRCName = c.Nick
	}
}

// Validate checks the settings the bot cannot start without
func (c *Config) Validate() error {
	var errs []error
	if c.Server == "" {
		errs = append(errs, errors.New("server is required"))
	}
	if c.Nick == "" {
		errs = append(errs, errors.New("nick is required"))
	}
	check := func(name string, f Feed) {
		if f.Enabled && f.Interval <= 0 {
			errs = append(errs, fmt.Errorf("feeds.%s.interval must be positive", name))
		}
	}
	check("bans", c.Feeds.Bans)
	check("titles", c.Feeds.Titles.Feed)
	check("pages", c.Feeds.Pages.Feed)
	check("authors", c.Feeds.Authors)

	if c.Feeds.Bans.Enabled && c.Feeds.Bans.URL == "" {
		errs = append(errs, errors.New("feeds.bans.url is required when the feed is enabled"))
	}
	if c.Wikidot.RequestsPerSecond <= 0 {
		errs = append(errs, errors.New("wikidot.requests_per_second must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
