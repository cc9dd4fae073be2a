package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	Bot    BotConfig    `yaml:"bot"`
	Timing TimingConfig `yaml:"timing"`
	Log    LogConfig    `yaml:"log"`
	Stats  StatsConfig  `yaml:"stats"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxConnections int      `yaml:"max_connections"`
}

// BotConfig seeds the connect options of every new session.
type BotConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	UsernamePrefix string `yaml:"username_prefix"`
	Auth           string `yaml:"auth"`
	Version        string `yaml:"version"`
}

type TimingConfig struct {
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	IdleMin        time.Duration `yaml:"idle_min"`
	IdleMax        time.Duration `yaml:"idle_max"`
	JumpHold       time.Duration `yaml:"jump_hold"`
	EatCooldown    time.Duration `yaml:"eat_cooldown"`
}

type LogConfig struct {
	History        int    `yaml:"history"`
	Level          string `yaml:"level"`
	Color          bool   `yaml:"color"`
	MaskSessionIDs bool   `yaml:"mask_session_ids"`
}

// StatsConfig controls the periodic process resource report. A zero
// interval disables it.
type StatsConfig struct {
	Interval time.Duration `yaml:"interval"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 3000,
			Host: "0.0.0.0",
		},
		Bot: BotConfig{
			Host:           "localhost",
			Port:           25565,
			UsernamePrefix: "AFK_Bot_",
			Auth:           "offline",
		},
		Timing: TimingConfig{
			ReconnectDelay: 5 * time.Second,
			IdleMin:        5 * time.Second,
			IdleMax:        10 * time.Second,
			JumpHold:       500 * time.Millisecond,
			EatCooldown:    3 * time.Second,
		},
		Log: LogConfig{
			History: 50,
			Level:   "info",
			Color:   true,
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return defaultConfig(), nil
	}
	return cfg, err
}

// ApplyEnv overrides the listen port from the PORT variable when it holds a
// valid port.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv("PORT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 65535 {
			c.Server.Port = n
		}
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.MaxConnections < 0 {
		errs = append(errs, fmt.Errorf("server.max_connections must not be negative"))
	}
	if c.Bot.Port <= 0 || c.Bot.Port > 65535 {
		errs = append(errs, fmt.Errorf("bot.port %d out of range", c.Bot.Port))
	}
	if c.Bot.Auth != "offline" {
		errs = append(errs, fmt.Errorf("bot.auth %q is not supported", c.Bot.Auth))
	}
	if c.Timing.ReconnectDelay <= 0 {
		errs = append(errs, fmt.Errorf("timing.reconnect_delay must be positive"))
	}
	if c.Timing.IdleMin <= 0 || c.Timing.IdleMax < c.Timing.IdleMin {
		errs = append(errs, fmt.Errorf("timing.idle_min %s / idle_max %s are not a valid range", c.Timing.IdleMin, c.Timing.IdleMax))
	}
	if c.Timing.JumpHold <= 0 {
		errs = append(errs, fmt.Errorf("timing.jump_hold must be positive"))
	}
	if c.Timing.EatCooldown <= 0 {
		errs = append(errs, fmt.Errorf("timing.eat_cooldown must be positive"))
	}
	if c.Log.History <= 0 {
		errs = append(errs, fmt.Errorf("log.history must be positive"))
	}
	if c.Stats.Interval < 0 {
		errs = append(errs, fmt.Errorf("stats.interval must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
