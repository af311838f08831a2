package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/dmbot/internal/songs"
)

// ErrMissingToken is returned when no bot token is configured.
var ErrMissingToken = errors.New("config: discord.token is required (set DMBOT_TOKEN)")

// LoadDotEnv exports the variables of the given .env files (default ".env")
// into the process environment. Variables that are already set win.
// Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load %q: %w", p, err)
		}
	}
	return nil
}

// Load reads the YAML configuration file at path, applies the environment
// overlay and returns a validated [Config]. A missing file is not an error:
// defaults and environment apply.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		data = nil
	case err != nil:
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}

	cfg, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: load %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies the environment
// overlay and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	return parse(data)
}

// parse builds a Config from defaults, YAML data and the process
// environment.
func parse(data []byte) (*Config, error) {
	return parseEnv(data, nil)
}

// parseEnv is parse with an explicit environment. A nil environ means the
// process environment.
func parseEnv(data []byte, environ map[string]string) (*Config, error) {
	cfg := Default()
	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("config: decode yaml: %w", err)
		}
	}
	var opts env.Options
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Discord
	if strings.TrimSpace(cfg.Discord.Token) == "" {
		errs = append(errs, ErrMissingToken)
	}
	if strings.TrimSpace(cfg.Discord.Prefix) == "" {
		errs = append(errs, errors.New("discord.prefix must not be empty"))
	}

	// Storage
	if !cfg.Storage.Driver.IsValid() {
		errs = append(errs, fmt.Errorf("storage.driver %q is invalid; valid values: sqlite, postgres, memory", cfg.Storage.Driver))
	}
	if cfg.Storage.Driver == songs.DriverPostgres && cfg.Storage.DSN == "" {
		errs = append(errs, errors.New("storage.dsn is required when storage.driver is postgres"))
	}
	if cfg.Storage.Driver == songs.DriverSQLite && cfg.Storage.Path == "" {
		errs = append(errs, errors.New("storage.path is required when storage.driver is sqlite"))
	}

	// yt-dlp
	if cfg.YTDLP.Binary == "" {
		errs = append(errs, errors.New("ytdlp.binary must not be empty"))
	}
	if cfg.YTDLP.FFmpegBinary == "" {
		errs = append(errs, errors.New("ytdlp.ffmpeg_binary must not be empty"))
	}
	if cfg.YTDLP.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("ytdlp.timeout %s must be positive", cfg.YTDLP.Timeout))
	}
	if cfg.YTDLP.TitleCacheTTL < 0 {
		errs = append(errs, fmt.Errorf("ytdlp.title_cache_ttl %s must not be negative", cfg.YTDLP.TitleCacheTTL))
	}

	return errors.Join(errs...)
}
