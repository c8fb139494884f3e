package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func newValidViper(t *testing.T) *viper.Viper {
	t.Helper()
	configViper := NewViper()
	configViper.Set("learn.username", "student")
	configViper.Set("learn.password", "secret")
	configViper.Set("learn.semester", "2023-2024-2")
	configViper.Set("telegram.token", "123:abc")
	configViper.Set("telegram.channel", "@coursewatch")
	return configViper
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(newValidViper(t))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Poll.CycleTimeout != 60*time.Second || cfg.Poll.BootstrapTimeout != 30*time.Second {
		t.Fatalf("unexpected poll timeouts: %+v", cfg.Poll)
	}
	if cfg.Poll.Interval != 60*time.Second || cfg.Sort.Interval != 60*time.Second {
		t.Fatalf("unexpected intervals: poll=%s sort=%s", cfg.Poll.Interval, cfg.Sort.Interval)
	}
	if cfg.Snapshot.Path != "data.json" {
		t.Fatalf("unexpected snapshot path %q", cfg.Snapshot.Path)
	}
	if cfg.Trello.Enabled() {
		t.Fatalf("expected board integration to be disabled by default")
	}
	if cfg.Trello.TrackingLabel != "Homework" {
		t.Fatalf("unexpected tracking label %q", cfg.Trello.TrackingLabel)
	}
	if cfg.Notify.Location == nil || cfg.Notify.Location.String() != "Asia/Shanghai" {
		t.Fatalf("unexpected location %v", cfg.Notify.Location)
	}
	if cfg.Learn.Location == nil || cfg.Learn.Location.String() != "Asia/Shanghai" {
		t.Fatalf("unexpected platform location %v", cfg.Learn.Location)
	}
	if cfg.Trello.BaseURL != "https://api.trello.com/1" {
		t.Fatalf("unexpected trello base url %q", cfg.Trello.BaseURL)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("COURSEWATCH_LEARN_USERNAME", "from-env")
	t.Setenv("COURSEWATCH_POLL_CYCLE_TIMEOUT", "45s")
	t.Setenv("COURSEWATCH_TRELLO_BOARD", "board-1")
	t.Setenv("COURSEWATCH_TRELLO_KEY", "key")
	t.Setenv("COURSEWATCH_TRELLO_TOKEN", "token")
	t.Setenv("COURSEWATCH_TRELLO_LABEL", "label-1")

	configViper := NewViper()
	configViper.Set("learn.password", "secret")
	configViper.Set("learn.semester", "2023-2024-2")
	configViper.Set("telegram.token", "123:abc")
	configViper.Set("telegram.channel", "-100123")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Learn.Username != "from-env" {
		t.Fatalf("expected env username, got %q", cfg.Learn.Username)
	}
	if cfg.Poll.CycleTimeout != 45*time.Second {
		t.Fatalf("expected env cycle timeout, got %s", cfg.Poll.CycleTimeout)
	}
	if !cfg.Trello.Enabled() || cfg.Trello.Label != "label-1" {
		t.Fatalf("expected board integration from env, got %+v", cfg.Trello)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*viper.Viper)
		want   string
	}{
		{name: "missing credentials", mutate: func(v *viper.Viper) { v.Set("learn.password", "") }, want: "learn.username"},
		{name: "missing semester", mutate: func(v *viper.Viper) { v.Set("learn.semester", " ") }, want: "learn.semester"},
		{name: "missing channel", mutate: func(v *viper.Viper) { v.Set("telegram.channel", "") }, want: "telegram.channel"},
		{name: "board without label", mutate: func(v *viper.Viper) {
			v.Set("trello.board", "b1")
			v.Set("trello.key", "k")
			v.Set("trello.token", "t")
		}, want: "trello.label"},
		{name: "board without key", mutate: func(v *viper.Viper) { v.Set("trello.board", "b1") }, want: "trello.key"},
		{name: "zero cycle timeout", mutate: func(v *viper.Viper) { v.Set("poll.cycle_timeout", "0s") }, want: "poll durations"},
		{name: "unknown zone", mutate: func(v *viper.Viper) { v.Set("notify.time_zone", "Mars/Olympus") }, want: "notify.time_zone"},
		{name: "unknown platform zone", mutate: func(v *viper.Viper) { v.Set("learn.time_zone", "Mars/Olympus") }, want: "learn.time_zone"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			configViper := newValidViper(t)
			testCase.mutate(configViper)
			_, err := Load(configViper)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), testCase.want) {
				t.Fatalf("expected error mentioning %q, got %v", testCase.want, err)
			}
		})
	}
}
