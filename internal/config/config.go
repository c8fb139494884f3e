package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix               = "COURSEWATCH"
	defaultLearnBaseURL     = "https://learn.tsinghua.edu.cn"
	defaultTrelloBaseURL    = "https://api.trello.com/1"
	defaultTrackingLabel    = "Homework"
	defaultSnapshotPath     = "data.json"
	defaultCycleTimeout     = 60 * time.Second
	defaultBootstrapTimeout = 30 * time.Second
	defaultRestInterval     = 60 * time.Second
	defaultSortInterval     = 60 * time.Second
	defaultWorkers          = 8
	defaultLogLevel         = "info"
	defaultLogFormat        = "json"
	defaultHTTPAddress      = "127.0.0.1:8080"
	defaultTimeZone         = "Asia/Shanghai"
)

// AppConfig captures runtime configuration for the watcher.
type AppConfig struct {
	Learn    LearnConfig
	Telegram TelegramConfig
	Trello   TrelloConfig
	Snapshot SnapshotConfig
	Poll     PollConfig
	Sort     SortConfig
	Log      LogConfig
	HTTP     HTTPConfig
	Notify   NotifyConfig
}

type LearnConfig struct {
	BaseURL  string
	Username string
	Password string
	Semester string
	TimeZone string
	Location *time.Location
}

type TelegramConfig struct {
	Token   string
	Channel string
	Proxy   string
}

// TrelloConfig is optional as a whole: an empty board disables reconciliation and sorting.
type TrelloConfig struct {
	BaseURL       string
	Key           string
	Token         string
	Board         string
	Label         string
	TrackingLabel string
}

// Enabled reports whether board reconciliation is configured.
func (c TrelloConfig) Enabled() bool {
	return strings.TrimSpace(c.Board) != ""
}

type SnapshotConfig struct {
	Path string
}

type PollConfig struct {
	CycleTimeout     time.Duration
	BootstrapTimeout time.Duration
	Interval         time.Duration
	Workers          int
}

type SortConfig struct {
	Interval time.Duration
}

type LogConfig struct {
	Level  string
	Format string
	File   string
}

// HTTPConfig configures the status server; an empty address disables it.
type HTTPConfig struct {
	Address string
}

type NotifyConfig struct {
	TimeZone string
	Location *time.Location
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("learn.base_url", defaultLearnBaseURL)
	configViper.SetDefault("learn.username", "")
	configViper.SetDefault("learn.password", "")
	configViper.SetDefault("learn.semester", "")
	configViper.SetDefault("learn.time_zone", defaultTimeZone)
	configViper.SetDefault("telegram.token", "")
	configViper.SetDefault("telegram.channel", "")
	configViper.SetDefault("telegram.proxy", "")
	configViper.SetDefault("trello.base_url", defaultTrelloBaseURL)
	configViper.SetDefault("trello.key", "")
	configViper.SetDefault("trello.token", "")
	configViper.SetDefault("trello.board", "")
	configViper.SetDefault("trello.label", "")
	configViper.SetDefault("trello.tracking_label", defaultTrackingLabel)
	configViper.SetDefault("snapshot.path", defaultSnapshotPath)
	configViper.SetDefault("poll.cycle_timeout", defaultCycleTimeout)
	configViper.SetDefault("poll.bootstrap_timeout", defaultBootstrapTimeout)
	configViper.SetDefault("poll.interval", defaultRestInterval)
	configViper.SetDefault("poll.workers", defaultWorkers)
	configViper.SetDefault("sort.interval", defaultSortInterval)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("log.file", "")
	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("notify.time_zone", defaultTimeZone)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		Learn: LearnConfig{
			BaseURL:  strings.TrimSpace(configViper.GetString("learn.base_url")),
			Username: configViper.GetString("learn.username"),
			Password: configViper.GetString("learn.password"),
			Semester: strings.TrimSpace(configViper.GetString("learn.semester")),
			TimeZone: strings.TrimSpace(configViper.GetString("learn.time_zone")),
		},
		Telegram: TelegramConfig{
			Token:   configViper.GetString("telegram.token"),
			Channel: strings.TrimSpace(configViper.GetString("telegram.channel")),
			Proxy:   strings.TrimSpace(configViper.GetString("telegram.proxy")),
		},
		Trello: TrelloConfig{
			BaseURL:       strings.TrimSpace(configViper.GetString("trello.base_url")),
			Key:           configViper.GetString("trello.key"),
			Token:         configViper.GetString("trello.token"),
			Board:         strings.TrimSpace(configViper.GetString("trello.board")),
			Label:         strings.TrimSpace(configViper.GetString("trello.label")),
			TrackingLabel: strings.TrimSpace(configViper.GetString("trello.tracking_label")),
		},
		Snapshot: SnapshotConfig{
			Path: strings.TrimSpace(configViper.GetString("snapshot.path")),
		},
		Poll: PollConfig{
			CycleTimeout:     configViper.GetDuration("poll.cycle_timeout"),
			BootstrapTimeout: configViper.GetDuration("poll.bootstrap_timeout"),
			Interval:         configViper.GetDuration("poll.interval"),
			Workers:          configViper.GetInt("poll.workers"),
		},
		Sort: SortConfig{
			Interval: configViper.GetDuration("sort.interval"),
		},
		Log: LogConfig{
			Level:  configViper.GetString("log.level"),
			Format: configViper.GetString("log.format"),
			File:   strings.TrimSpace(configViper.GetString("log.file")),
		},
		HTTP: HTTPConfig{
			Address: strings.TrimSpace(configViper.GetString("http.address")),
		},
		Notify: NotifyConfig{
			TimeZone: strings.TrimSpace(configViper.GetString("notify.time_zone")),
		},
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	location, err := time.LoadLocation(cfg.Notify.TimeZone)
	if err != nil {
		return AppConfig{}, fmt.Errorf("notify.time_zone: %w", err)
	}
	cfg.Notify.Location = location

	platformLocation, err := time.LoadLocation(cfg.Learn.TimeZone)
	if err != nil {
		return AppConfig{}, fmt.Errorf("learn.time_zone: %w", err)
	}
	cfg.Learn.Location = platformLocation

	return cfg, nil
}

func (c AppConfig) validate() error {
	if c.Learn.BaseURL == "" {
		return fmt.Errorf("learn.base_url is required")
	}
	if strings.TrimSpace(c.Learn.Username) == "" || c.Learn.Password == "" {
		return fmt.Errorf("learn.username and learn.password are required")
	}
	if c.Learn.Semester == "" {
		return fmt.Errorf("learn.semester is required")
	}
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if c.Telegram.Channel == "" {
		return fmt.Errorf("telegram.channel is required")
	}
	if c.Trello.Enabled() {
		if strings.TrimSpace(c.Trello.Key) == "" || strings.TrimSpace(c.Trello.Token) == "" {
			return fmt.Errorf("trello.key and trello.token are required when trello.board is set")
		}
		if c.Trello.Label == "" {
			return fmt.Errorf("trello.label is required when trello.board is set")
		}
	}
	if c.Snapshot.Path == "" {
		return fmt.Errorf("snapshot.path is required")
	}
	if c.Poll.CycleTimeout <= 0 || c.Poll.BootstrapTimeout <= 0 || c.Poll.Interval <= 0 {
		return fmt.Errorf("poll durations must be positive")
	}
	if c.Sort.Interval <= 0 {
		return fmt.Errorf("sort.interval must be positive")
	}
	return nil
}
