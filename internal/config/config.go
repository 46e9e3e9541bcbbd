package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// Config holds all configuration for medtracker
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Reminders RemindersConfig `mapstructure:"reminders"`
	Channels  ChannelsConfig  `mapstructure:"channels"`
	Security  SecurityConfig  `mapstructure:"security"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Address      string `mapstructure:"address"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// StorageConfig holds database settings
type StorageConfig struct {
	DataDir    string `mapstructure:"data_dir"`
	SQLitePath string `mapstructure:"sqlite_path"`
	BadgerPath string `mapstructure:"badger_path"`
}

// ScheduleConfig controls how doses are evaluated.
type ScheduleConfig struct {
	UserID        string        `mapstructure:"user_id"`
	Timezone      string        `mapstructure:"timezone"` // IANA name, "" or "Local" for the host zone
	DueSoonWindow time.Duration `mapstructure:"due_soon_window"`
}

// RemindersConfig controls trigger delivery and the upcoming-dose runner.
type RemindersConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	CheckInterval   time.Duration `mapstructure:"check_interval"`
	RatePerMinute   int           `mapstructure:"rate_per_minute"`
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
}

// ChannelsConfig holds delivery integrations
type ChannelsConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	Discord  DiscordConfig  `mapstructure:"discord"`
}

// TelegramConfig holds Telegram bot settings
type TelegramConfig struct {
	Enabled  bool    `mapstructure:"enabled"`
	BotToken string  `mapstructure:"bot_token"`
	ChatIDs  []int64 `mapstructure:"chat_ids"`
}

// DiscordConfig holds Discord bot settings
type DiscordConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Token    string   `mapstructure:"token"`
	Channels []string `mapstructure:"channels"`
}

// SecurityConfig holds security settings
type SecurityConfig struct {
	JWTSecret     string   `mapstructure:"jwt_secret"`
	AdminPassword string   `mapstructure:"admin_password"`
	AllowOrigins  []string `mapstructure:"allow_origins"`
	TokenTTL      int      `mapstructure:"token_ttl"` // hours
}

// LogConfig selects the zap preset
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Production bool   `mapstructure:"production"`
}

// Load loads configuration from file, env, and defaults
func Load(configPath, dataDir string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// ./.env may name the data directory, so it is read first.
	if err := LoadEnvFiles(envFileName); err != nil {
		return nil, err
	}
	if dataDir == "" {
		dataDir = GetEnvWithFallback("MEDTRACKER_DATA_DIR", "MEDTRACKER_STORAGE_DATA_DIR")
	}
	if dataDir == "" {
		dataDir = getDefaultDataDir()
	}
	dataDir = expandPath(dataDir)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	if err := LoadEnvFiles(filepath.Join(dataDir, envFileName)); err != nil {
		return nil, err
	}

	v.SetDefault("storage.data_dir", dataDir)
	v.SetDefault("storage.sqlite_path", filepath.Join(dataDir, "medtracker.db"))
	v.SetDefault("storage.badger_path", filepath.Join(dataDir, "badger"))

	if configPath == "" {
		configPath = filepath.Join(dataDir, "medtracker.yaml")
	}
	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// MEDTRACKER_SERVER_PORT, MEDTRACKER_SCHEDULE_TIMEZONE, ...
	v.SetEnvPrefix("MEDTRACKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	loadEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)

	v.SetDefault("schedule.user_id", "default")
	v.SetDefault("schedule.timezone", "Local")
	v.SetDefault("schedule.due_soon_window", "60m")

	v.SetDefault("reminders.enabled", true)
	v.SetDefault("reminders.check_interval", "1m")
	v.SetDefault("reminders.rate_per_minute", 30)
	v.SetDefault("reminders.breaker_failures", 5)

	v.SetDefault("channels.telegram.enabled", false)
	v.SetDefault("channels.telegram.bot_token", "")
	v.SetDefault("channels.discord.enabled", false)
	v.SetDefault("channels.discord.token", "")

	v.SetDefault("security.jwt_secret", "")
	v.SetDefault("security.admin_password", "")
	v.SetDefault("security.allow_origins", []string{"*"})
	v.SetDefault("security.token_ttl", 24*7)

	v.SetDefault("log.level", "") // info for serve, warn for one-shot commands
	v.SetDefault("log.production", false)
}

func getDefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "medtracker")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".local", "share", "medtracker")
}

// loadEnvOverrides applies the plain aliases (TELEGRAM_BOT_TOKEN, TZ, ...)
// and the list-valued settings viper cannot read from a single env var.
func loadEnvOverrides(cfg *Config) {
	if v := ResolveEnvWithAliases("MEDTRACKER_CHANNELS_TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Channels.Telegram.BotToken = v
	}
	if v := ResolveEnvWithAliases("MEDTRACKER_CHANNELS_DISCORD_TOKEN"); v != "" {
		cfg.Channels.Discord.Token = v
	}
	if v := ResolveEnvWithAliases("MEDTRACKER_SECURITY_JWT_SECRET"); v != "" {
		cfg.Security.JWTSecret = v
	}
	if v := ResolveEnvWithAliases("MEDTRACKER_SECURITY_ADMIN_PASSWORD"); v != "" {
		cfg.Security.AdminPassword = v
	}
	if os.Getenv("MEDTRACKER_SCHEDULE_TIMEZONE") == "" {
		if tz := os.Getenv("TZ"); tz != "" {
			cfg.Schedule.Timezone = tz
		}
	}

	if ids := os.Getenv("MEDTRACKER_CHANNELS_TELEGRAM_CHAT_IDS"); ids != "" {
		cfg.Channels.Telegram.ChatIDs = cfg.Channels.Telegram.ChatIDs[:0]
		for _, s := range splitList(ids) {
			if id, err := strconv.ParseInt(s, 10, 64); err == nil {
				cfg.Channels.Telegram.ChatIDs = append(cfg.Channels.Telegram.ChatIDs, id)
			}
		}
	}
	if chs := os.Getenv("MEDTRACKER_CHANNELS_DISCORD_CHANNELS"); chs != "" {
		cfg.Channels.Discord.Channels = splitList(chs)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Schedule.UserID) == "" {
		return fmt.Errorf("schedule.user_id is required")
	}
	if cfg.Schedule.DueSoonWindow <= 0 {
		return fmt.Errorf("schedule.due_soon_window must be positive")
	}
	if _, err := cfg.Location(); err != nil {
		return err
	}
	if cfg.Reminders.CheckInterval <= 0 {
		return fmt.Errorf("reminders.check_interval must be positive")
	}
	if cfg.Reminders.RatePerMinute < 0 {
		return fmt.Errorf("reminders.rate_per_minute cannot be negative")
	}

	tg := cfg.Channels.Telegram
	if tg.Enabled && (tg.BotToken == "" || len(tg.ChatIDs) == 0) {
		return fmt.Errorf("channels.telegram requires bot_token and chat_ids when enabled")
	}
	dc := cfg.Channels.Discord
	if dc.Enabled && (dc.Token == "" || len(dc.Channels) == 0) {
		return fmt.Errorf("channels.discord requires token and channels when enabled")
	}

	// Generate JWT secret if not provided
	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = generateSecret()
	}
	return nil
}

func generateSecret() string {
	return strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
}

// Location resolves schedule.timezone.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Schedule.Timezone)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("schedule.timezone %q: %w", tz, err)
	}
	return loc, nil
}

// ListenAddr is the address the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}
