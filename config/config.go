package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	QwikSwitch QwikSwitchConfig `yaml:"qwikswitch"`
	Queue      QueueConfig      `yaml:"queue"`
	Poll       PollConfig       `yaml:"poll"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Log        LogConfig        `yaml:"log"`
}

type QwikSwitchConfig struct {
	Email     string `yaml:"email"`
	MasterKey string `yaml:"master_key"`
	BaseURL   string `yaml:"base_url"`
}

type QueueConfig struct {
	WindowCapacity int    `yaml:"window_capacity"`
	WindowDuration string `yaml:"window_duration"`
	MinSpacing     string `yaml:"min_spacing"`
}

type PollConfig struct {
	Interval string `yaml:"interval"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Queue.WindowCapacity == 0 {
		c.Queue.WindowCapacity = 30
	}
	if c.Queue.WindowDuration == "" {
		c.Queue.WindowDuration = "60s"
	}
	if c.Queue.MinSpacing == "" {
		c.Queue.MinSpacing = "2s"
	}
	if c.Poll.Interval == "" {
		c.Poll.Interval = "5s"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}
