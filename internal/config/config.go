// Package config provides the configuration schema and loader for dmbot.
//
// A configuration is built in layers: [Default] values, then the optional
// YAML file, then DMBOT_* environment variables (which a .env file may
// provide). Later layers win.
package config

import (
	"log/slog"
	"time"

	"github.com/MrWong99/dmbot/internal/songs"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog maps l to a [slog.Level]. Unknown values map to info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Config is the root configuration structure for dmbot.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Discord DiscordConfig `yaml:"discord"`
	Storage StorageConfig `yaml:"storage"`
	YTDLP   YTDLPConfig   `yaml:"ytdlp"`
}

// ServerConfig holds the ops listener and logging settings.
type ServerConfig struct {
	// ListenAddr is the address of the ops HTTP server serving /healthz,
	// /readyz and /metrics (e.g., ":9090"). Empty disables it.
	ListenAddr string `yaml:"listen_addr" env:"DMBOT_LISTEN_ADDR"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level" env:"DMBOT_LOG_LEVEL"`
}

// DiscordConfig holds the bot credentials and command settings.
type DiscordConfig struct {
	// Token is the bot token. Required; usually supplied via DMBOT_TOKEN
	// rather than the YAML file.
	Token string `yaml:"token" env:"DMBOT_TOKEN"`

	// GuildID registers slash commands in one guild only. Empty registers
	// them globally.
	GuildID string `yaml:"guild_id" env:"DMBOT_GUILD_ID"`

	// Prefix starts a text command. Hot-reloadable.
	Prefix string `yaml:"prefix" env:"DMBOT_PREFIX"`

	// DJRoleID is required to register songs. Empty allows everyone.
	DJRoleID string `yaml:"dj_role_id" env:"DMBOT_DJ_ROLE_ID"`
}

// StorageConfig selects the song registry backend.
type StorageConfig struct {
	Driver songs.Driver `yaml:"driver" env:"DMBOT_DB_DRIVER"`

	// Path is the SQLite file, relative to the executable's directory
	// unless absolute.
	Path string `yaml:"path" env:"DMBOT_DB_PATH"`

	// DSN is the PostgreSQL connection string.
	DSN string `yaml:"dsn" env:"DMBOT_DB_DSN"`
}

// YTDLPConfig configures the external download tools.
type YTDLPConfig struct {
	Binary       string `yaml:"binary" env:"DMBOT_YTDLP_BINARY"`
	FFmpegBinary string `yaml:"ffmpeg_binary" env:"DMBOT_FFMPEG_BINARY"`

	// Timeout bounds a single title lookup.
	Timeout time.Duration `yaml:"timeout" env:"DMBOT_YTDLP_TIMEOUT"`

	// SpawnsPerSecond limits how often yt-dlp may be started. Zero or less
	// disables the limit.
	SpawnsPerSecond float64 `yaml:"spawns_per_second" env:"DMBOT_YTDLP_SPAWNS_PER_SECOND"`

	// TitleCacheTTL is how long looked-up titles are remembered. Zero
	// disables the cache.
	TitleCacheTTL time.Duration `yaml:"title_cache_ttl" env:"DMBOT_TITLE_CACHE_TTL"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{LogLevel: LogInfo},
		Discord: DiscordConfig{
			Prefix: "!",
		},
		Storage: StorageConfig{
			Driver: songs.DriverSQLite,
			Path:   songs.DefaultFile,
		},
		YTDLP: YTDLPConfig{
			Binary:          "yt-dlp",
			FFmpegBinary:    "ffmpeg",
			Timeout:         30 * time.Second,
			SpawnsPerSecond: 2,
			TitleCacheTTL:   time.Hour,
		},
	}
}

// Songs returns the registry settings.
func (c *Config) Songs() songs.Config {
	return songs.Config{Driver: c.Storage.Driver, Path: c.Storage.Path, DSN: c.Storage.DSN}
}
