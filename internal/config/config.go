package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"weekplanner/internal/fileutil"
)

// NOTE: Load reads YAML with ENV overrides through cleanenv; Save writes YAML
// with yaml.v3. The first run writes the defaults to disk so operators have
// a file to edit.

// CalendarConfig describes a single calendar source.
type CalendarConfig struct {
	// ID is the upstream calendar identifier; used for watch channels and
	// as the event source id.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label shown in the UI.
	Name string `yaml:"name" json:"name"`
	// Color is the display color tag; events are grouped by it within a day.
	Color string `yaml:"color" json:"color"`
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ExcludeWords drops events whose title contains any of these words.
	ExcludeWords []string `yaml:"exclude_words,omitempty" json:"exclude_words,omitempty"`
}

// TasksConfig holds the Microsoft To Do list and OAuth client credentials.
type TasksConfig struct {
	ListID       string `yaml:"list_id"       env:"WEEKPLANNER_TASKS_LIST_ID"`
	ListName     string `yaml:"list_name"     env:"WEEKPLANNER_TASKS_LIST_NAME"     env-default:"Indkøb"`
	Color        string `yaml:"color"         env:"WEEKPLANNER_TASKS_COLOR"         env-default:"#0078D4"`
	TenantID     string `yaml:"tenant_id"     env:"WEEKPLANNER_TASKS_TENANT_ID"     env-default:"common"`
	ClientID     string `yaml:"client_id"     env:"WEEKPLANNER_TASKS_CLIENT_ID"`
	ClientSecret string `yaml:"client_secret" env:"WEEKPLANNER_TASKS_CLIENT_SECRET"`
	RefreshToken string `yaml:"refresh_token" env:"WEEKPLANNER_TASKS_REFRESH_TOKEN"`
}

// Enabled reports whether enough is configured to talk to Graph.
func (t TasksConfig) Enabled() bool {
	return t.ListID != "" && t.ClientID != "" && t.RefreshToken != ""
}

// OAuthConfig is a refresh-token based OAuth client.
type OAuthConfig struct {
	ClientID     string `yaml:"client_id"     env:"WEEKPLANNER_GOOGLE_CLIENT_ID"`
	ClientSecret string `yaml:"client_secret" env:"WEEKPLANNER_GOOGLE_CLIENT_SECRET"`
	RefreshToken string `yaml:"refresh_token" env:"WEEKPLANNER_GOOGLE_REFRESH_TOKEN"`
}

// PushConfig controls upstream watch channels (push notifications).
type PushConfig struct {
	Enabled bool `yaml:"enabled" env:"WEEKPLANNER_PUSH_ENABLED"`
	// WebhookURL is the public base URL the provider calls back, e.g.
	// "https://planner.example.com". The receiver path is appended.
	WebhookURL      string        `yaml:"webhook_url"      env:"WEEKPLANNER_WEBHOOK_URL"`
	ChannelToken    string        `yaml:"channel_token"    env:"WEEKPLANNER_CHANNEL_TOKEN"`
	RenewalInterval time.Duration `yaml:"renewal_interval" env:"WEEKPLANNER_PUSH_RENEWAL" env-default:"144h"`
	ChannelTTL      time.Duration `yaml:"channel_ttl"      env:"WEEKPLANNER_PUSH_TTL"     env-default:"168h"`
	Google          OAuthConfig   `yaml:"google"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level      string `yaml:"level"        env:"WEEKPLANNER_LOG_LEVEL"  env-default:"info"`
	Format     string `yaml:"format"       env:"WEEKPLANNER_LOG_FORMAT" env-default:"text"`
	File       string `yaml:"file"         env:"WEEKPLANNER_LOG_FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb"  env-default:"10"`
	MaxBackups int    `yaml:"max_backups"  env-default:"3"`
	MaxAgeDays int    `yaml:"max_age_days" env-default:"28"`
}

// DataConfig holds on-disk locations.
type DataConfig struct {
	MealsPath   string `yaml:"meals_path"    env:"WEEKPLANNER_MEALS_PATH"    env-default:"./data/meals.json"`
	ICSCacheDir string `yaml:"ics_cache_dir" env:"WEEKPLANNER_ICS_CACHE_DIR" env-default:"./data/ics-cache"`
}

// CacheConfig holds per-domain cache lifetimes.
type CacheConfig struct {
	CalendarTTL time.Duration `yaml:"calendar_ttl" env:"WEEKPLANNER_CALENDAR_TTL" env-default:"9m"`
	TasksTTL    time.Duration `yaml:"tasks_ttl"    env:"WEEKPLANNER_TASKS_TTL"    env-default:"9m"`
}

// PollConfig is the fallback refresh that runs regardless of webhook health.
type PollConfig struct {
	Interval time.Duration `yaml:"interval" env:"WEEKPLANNER_POLL_INTERVAL" env-default:"5m"`
}

// MealsConfig holds scheduler settings that are not part of the meal document.
type MealsConfig struct {
	DefaultCategory  string `yaml:"default_category"   env-default:"frit"`
	CatchAllCategory string `yaml:"catch_all_category" env-default:"andet"`
	// RolloverCron is a standard cron spec for generating the current and
	// next week ahead of time.
	RolloverCron string `yaml:"rollover_cron" env:"WEEKPLANNER_ROLLOVER_CRON" env-default:"5 0 * * 1"`
}

// AdminConfig enables Basic Auth on mutating endpoints when both are set.
// PasswordHash is an argon2id hash as produced by `weekplanner hash-password`.
type AdminConfig struct {
	Username     string `yaml:"username"      env:"WEEKPLANNER_ADMIN_USER"`
	PasswordHash string `yaml:"password_hash" env:"WEEKPLANNER_ADMIN_HASH"`
}

// StreamConfig controls the push stream.
type StreamConfig struct {
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"     env-default:"5s"`
	MaxReconnectDelay time.Duration `yaml:"max_reconnect_delay" env-default:"60s"`
	Keepalive         time.Duration `yaml:"keepalive"           env-default:"30s"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API and push stream.
	Listen string `yaml:"listen" env:"WEEKPLANNER_LISTEN" env-default:"127.0.0.1:3000"`

	// Timezone is the IANA timezone used for dates, weeks and grouping.
	Timezone string `yaml:"timezone" env:"WEEKPLANNER_TIMEZONE" env-default:"Europe/Copenhagen"`

	// MockMode swaps upstreams for simulated data and enables /api/simulate.
	MockMode bool `yaml:"mock_mode" env:"WEEKPLANNER_MOCK_MODE"`

	Log       LogConfig        `yaml:"log"`
	Data      DataConfig       `yaml:"data"`
	Cache     CacheConfig      `yaml:"cache"`
	Poll      PollConfig       `yaml:"poll"`
	Meals     MealsConfig      `yaml:"meals"`
	Calendars []CalendarConfig `yaml:"calendars"`
	Tasks     TasksConfig      `yaml:"tasks"`
	Push      PushConfig       `yaml:"push"`
	Admin     AdminConfig      `yaml:"admin"`
	Stream    StreamConfig     `yaml:"stream"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Normalize()
	return cfg
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:3000"
	}
	if c.Timezone == "" {
		c.Timezone = "Europe/Copenhagen"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Data.MealsPath == "" {
		c.Data.MealsPath = "./data/meals.json"
	}
	if c.Data.ICSCacheDir == "" {
		c.Data.ICSCacheDir = "./data/ics-cache"
	}
	if c.Cache.CalendarTTL <= 0 {
		c.Cache.CalendarTTL = 9 * time.Minute
	}
	if c.Cache.TasksTTL <= 0 {
		c.Cache.TasksTTL = 9 * time.Minute
	}
	if c.Poll.Interval <= 0 {
		c.Poll.Interval = 5 * time.Minute
	}
	if c.Meals.DefaultCategory == "" {
		c.Meals.DefaultCategory = "frit"
	}
	if c.Meals.CatchAllCategory == "" {
		c.Meals.CatchAllCategory = "andet"
	}
	if c.Meals.RolloverCron == "" {
		c.Meals.RolloverCron = "5 0 * * 1"
	}
	if c.Calendars == nil {
		c.Calendars = []CalendarConfig{}
	}
	for i := range c.Calendars {
		if c.Calendars[i].Name == "" {
			c.Calendars[i].Name = c.Calendars[i].ID
		}
	}
	if c.Tasks.TenantID == "" {
		c.Tasks.TenantID = "common"
	}
	if c.Push.RenewalInterval <= 0 {
		c.Push.RenewalInterval = 6 * 24 * time.Hour
	}
	if c.Push.ChannelTTL <= 0 {
		c.Push.ChannelTTL = 7 * 24 * time.Hour
	}
	if c.Stream.ReconnectDelay <= 0 {
		c.Stream.ReconnectDelay = 5 * time.Second
	}
	if c.Stream.MaxReconnectDelay <= 0 {
		c.Stream.MaxReconnectDelay = 60 * time.Second
	}
	if c.Stream.Keepalive <= 0 {
		c.Stream.Keepalive = 30 * time.Second
	}
}

var colorRe = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// Validate checks values Normalize cannot repair.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	if _, err := cron.ParseStandard(c.Meals.RolloverCron); err != nil {
		return fmt.Errorf("meals.rollover_cron %q: %w", c.Meals.RolloverCron, err)
	}
	if c.Push.RenewalInterval >= c.Push.ChannelTTL {
		return fmt.Errorf("push.renewal_interval (%s) must be shorter than push.channel_ttl (%s)",
			c.Push.RenewalInterval, c.Push.ChannelTTL)
	}
	if c.Stream.MaxReconnectDelay < c.Stream.ReconnectDelay {
		return errors.New("stream.max_reconnect_delay must be >= stream.reconnect_delay")
	}
	seen := make(map[string]bool, len(c.Calendars))
	for i, cal := range c.Calendars {
		if cal.ID == "" {
			return fmt.Errorf("calendars[%d]: id is required", i)
		}
		if seen[cal.ID] {
			return fmt.Errorf("calendars[%d]: duplicate id %q", i, cal.ID)
		}
		seen[cal.ID] = true
		if cal.Color != "" && !colorRe.MatchString(cal.Color) {
			return fmt.Errorf("calendars[%d]: color %q is not #RRGGBB", i, cal.Color)
		}
	}
	if c.Push.Enabled && c.Push.WebhookURL == "" {
		return errors.New("push.webhook_url is required when push is enabled")
	}
	return nil
}

// Location returns the configured display timezone, falling back to
// time.Local when it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Load loads configuration from the given YAML path, applying ENV overrides.
//
// Behavior:
//   - If the file does not exist:
//   - build defaults (+ENV)
//   - write them to path with 0600 perms
//   - return the config
//   - If the file exists:
//   - read YAML + ENV via cleanenv
//   - normalize defaults and validate
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	var cfg Config
	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		// First run: create default config file.
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("config: read env: %w", err)
		}
		cfg.Normalize()
		if err := Save(path, &cfg); err != nil {
			// Even if save fails, return cfg with error so caller can decide.
			return &cfg, err
		}
		return &cfg, cfg.Validate()
	}

	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return fileutil.WriteFileAtomic(path, data, 0o600)
}
