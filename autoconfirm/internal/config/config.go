// CLAUDE:SUMMARY YAML daemon configuration (browser, pages, scan timing, injector, storage, HTTP, bus routes) with defaults and validation.
// Package config holds the daemon configuration, read from YAML.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/autoconfirm/bus"
)

// Config is the top-level daemon configuration.
type Config struct {
	Browser   BrowserConfig   `yaml:"browser"`
	Pages     []PageConfig    `yaml:"pages"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Injector  InjectorConfig  `yaml:"injector"`
	Store     StoreConfig     `yaml:"store"`

	// PatternsFile replaces the built-in heuristic pattern table.
	PatternsFile string `yaml:"patterns_file"`

	HTTP HTTPConfig `yaml:"http"`

	// Routes send bus services to remote endpoints.
	Routes []bus.Route `yaml:"routes"`
	// AllowPrivateRoutes lets routes target loopback and private addresses.
	AllowPrivateRoutes bool `yaml:"allow_private_routes"`
}

// BrowserConfig controls Chrome.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"`
	Bin              string        `yaml:"bin"`
	Mode             string        `yaml:"mode"` // headless | headful
	XvfbDisplay      string        `yaml:"xvfb_display"`
	MemoryLimit      int64         `yaml:"memory_limit"`
	RecycleInterval  time.Duration `yaml:"recycle_interval"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
}

// PageConfig is a page opened at startup.
type PageConfig struct {
	ID  string `yaml:"id"`
	URL string `yaml:"url"`
}

// SchedulerConfig tunes scan timing.
type SchedulerConfig struct {
	InitialDelay  time.Duration `yaml:"initial_delay"`
	Debounce      time.Duration `yaml:"debounce"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	MaxRetries    int           `yaml:"max_retries"`
}

// InjectorConfig tunes value injection.
type InjectorConfig struct {
	BlurDelay         time.Duration `yaml:"blur_delay"`
	HighlightDuration time.Duration `yaml:"highlight_duration"`
}

// StoreConfig locates the template database and tunes change polling.
type StoreConfig struct {
	Path          string        `yaml:"path"`
	WatchInterval time.Duration `yaml:"watch_interval"`
	WatchDebounce time.Duration `yaml:"watch_debounce"`

	// HistoryRetention bounds the fill log. Default: 30 days.
	HistoryRetention time.Duration `yaml:"history_retention"`
}

// HTTPConfig enables the admin API and bus endpoint when Addr is set.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// LoadFile reads a YAML configuration file and applies defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML and applies defaults.
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Browser.Mode == "" {
		c.Browser.Mode = "headless"
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Browser.MemoryLimit <= 0 {
		c.Browser.MemoryLimit = 1 << 30
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	for i := range c.Pages {
		if c.Pages[i].ID == "" {
			c.Pages[i].ID = fmt.Sprintf("page-%d", i+1)
		}
	}
	if c.Scheduler.InitialDelay <= 0 {
		c.Scheduler.InitialDelay = 500 * time.Millisecond
	}
	if c.Scheduler.Debounce <= 0 {
		c.Scheduler.Debounce = 300 * time.Millisecond
	}
	if c.Scheduler.RetryInterval <= 0 {
		c.Scheduler.RetryInterval = time.Second
	}
	if c.Scheduler.MaxRetries <= 0 {
		c.Scheduler.MaxRetries = 5
	}
	if c.Injector.BlurDelay <= 0 {
		c.Injector.BlurDelay = 100 * time.Millisecond
	}
	if c.Injector.HighlightDuration == 0 {
		c.Injector.HighlightDuration = time.Second
	}
	if c.Store.Path == "" {
		c.Store.Path = "autoconfirm.db"
	}
	if c.Store.WatchInterval <= 0 {
		c.Store.WatchInterval = time.Second
	}
	if c.Store.WatchDebounce <= 0 {
		c.Store.WatchDebounce = 200 * time.Millisecond
	}
	if c.Store.HistoryRetention <= 0 {
		c.Store.HistoryRetention = 30 * 24 * time.Hour
	}
	for i := range c.Routes {
		if c.Routes[i].Strategy == "" {
			c.Routes[i].Strategy = "http"
		}
	}
}

// Validate reports configuration errors that defaults cannot repair.
func (c *Config) Validate() error {
	var errs []error
	switch c.Browser.Mode {
	case "headless", "headful":
	default:
		errs = append(errs, fmt.Errorf("browser.mode: %q is not headless or headful", c.Browser.Mode))
	}
	seen := make(map[string]bool, len(c.Pages))
	for i, p := range c.Pages {
		if u, err := url.Parse(p.URL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("pages[%d]: invalid url %q", i, p.URL))
		}
		if seen[p.ID] {
			errs = append(errs, fmt.Errorf("pages[%d]: duplicate id %q", i, p.ID))
		}
		seen[p.ID] = true
	}
	for i, r := range c.Routes {
		if r.Service == "" {
			errs = append(errs, fmt.Errorf("routes[%d]: service is required", i))
		}
		if r.Strategy != "local" && r.Strategy != "noop" && r.Endpoint == "" {
			errs = append(errs, fmt.Errorf("routes[%d]: endpoint is required for %s", i, r.Strategy))
		}
	}
	return errors.Join(errs...)
}
