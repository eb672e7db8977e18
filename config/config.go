// Package config loads wirechat settings from defaults, an optional TOML
// file, a .env file and WIRECHAT_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/opd-ai/wirechat"
	"github.com/opd-ai/wirechat/limits"
	"github.com/opd-ai/wirechat/logging"
)

// EnvPrefix prefixes every environment variable, e.g. WIRECHAT_LISTEN.
const EnvPrefix = "WIRECHAT"

var (
	// ErrNoEndpoint indicates that no listen or dial address was configured.
	ErrNoEndpoint = errors.New("one of listen, dial, websocket_url or websocket_listen is required")

	// ErrMultipleEndpoints indicates that more than one endpoint was configured.
	ErrMultipleEndpoints = errors.New("only one of listen, dial, websocket_url or websocket_listen may be set")
)

var validate = validator.New()

// Mode is how the process obtains its stream.
type Mode string

const (
	ModeListen          Mode = "listen"
	ModeDial            Mode = "dial"
	ModeWebSocketDial   Mode = "websocket_dial"
	ModeWebSocketListen Mode = "websocket_listen"
)

// Config holds every setting of the CLI.
type Config struct {
	Listen          string `envconfig:"LISTEN"`
	Dial            string `envconfig:"DIAL"`
	WebSocketURL    string `envconfig:"WEBSOCKET_URL" validate:"omitempty,url"`
	WebSocketListen string `envconfig:"WEBSOCKET_LISTEN"`

	DownloadDir string `envconfig:"DOWNLOAD_DIR" validate:"required"`
	OutboxDir   string `envconfig:"OUTBOX_DIR"`

	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" validate:"gte=0"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" validate:"gte=0"`
	MaxFrameSize int           `envconfig:"MAX_FRAME_SIZE" validate:"gte=1024,lte=16777216"`
	ChunkSize    int           `envconfig:"CHUNK_SIZE" validate:"gte=1,lte=1024,ltefield=MaxFrameSize"`
	EventBuffer  int           `envconfig:"EVENT_BUFFER" validate:"gte=1"`

	MetricsAddr string `envconfig:"METRICS_ADDR"`

	LogLevel      string `envconfig:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogFormat     string `envconfig:"LOG_FORMAT" validate:"oneof=text json"`
	LogFile       string `envconfig:"LOG_FILE"`
	LogMaxSizeMB  int    `envconfig:"LOG_MAX_SIZE_MB" validate:"gte=1"`
	LogMaxBackups int    `envconfig:"LOG_MAX_BACKUPS" validate:"gte=0"`
}

// Default returns the built-in settings. No endpoint is set.
func Default() Config {
	return Config{
		DownloadDir:   "downloads",
		MaxFrameSize:  limits.MaxFrameSize,
		ChunkSize:     limits.ChunkSize,
		EventBuffer:   256,
		LogLevel:      "info",
		LogFormat:     "text",
		LogMaxSizeMB:  10,
		LogMaxBackups: 3,
	}
}

type fileConfig struct {
	Listen          string `toml:"listen"`
	Dial            string `toml:"dial"`
	WebSocketURL    string `toml:"websocket_url"`
	WebSocketListen string `toml:"websocket_listen"`
	DownloadDir     string `toml:"download_dir"`
	OutboxDir       string `toml:"outbox_dir"`
	ReadTimeout     string `toml:"read_timeout"`
	WriteTimeout    string `toml:"write_timeout"`
	MaxFrameSize    int    `toml:"max_frame_size"`
	ChunkSize       int    `toml:"chunk_size"`
	EventBuffer     int    `toml:"event_buffer"`
	MetricsAddr     string `toml:"metrics_addr"`
	LogLevel        string `toml:"log_level"`
	LogFormat       string `toml:"log_format"`
	LogFile         string `toml:"log_file"`
	LogMaxSizeMB    int    `toml:"log_max_size_mb"`
	LogMaxBackups   int    `toml:"log_max_backups"`
}

// Load layers the configuration sources over Default. tomlPath is optional.
// envPath names a dotenv file; when empty, ".env" is read if present.
// Existing environment variables win over the dotenv file.
// The result is not validated; callers apply their own overrides first.
func Load(tomlPath, envPath string) (Config, error) {
	cfg := Default()

	if tomlPath != "" {
		if err := applyFile(&cfg, tomlPath); err != nil {
			return Config{}, err
		}
	}

	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil {
			return Config{}, fmt.Errorf("load env file: %w", err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	str := func(key, v string, dst *string) {
		if meta.IsDefined(key) {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, v int, dst *int) {
		if meta.IsDefined(key) {
			*dst = v
		}
	}
	dur := func(key, v string, dst *time.Duration) error {
		if !meta.IsDefined(key) {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse %s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("listen", raw.Listen, &cfg.Listen)
	str("dial", raw.Dial, &cfg.Dial)
	str("websocket_url", raw.WebSocketURL, &cfg.WebSocketURL)
	str("websocket_listen", raw.WebSocketListen, &cfg.WebSocketListen)
	str("download_dir", raw.DownloadDir, &cfg.DownloadDir)
	str("outbox_dir", raw.OutboxDir, &cfg.OutboxDir)
	str("metrics_addr", raw.MetricsAddr, &cfg.MetricsAddr)
	str("log_level", raw.LogLevel, &cfg.LogLevel)
	str("log_format", raw.LogFormat, &cfg.LogFormat)
	str("log_file", raw.LogFile, &cfg.LogFile)
	num("max_frame_size", raw.MaxFrameSize, &cfg.MaxFrameSize)
	num("chunk_size", raw.ChunkSize, &cfg.ChunkSize)
	num("event_buffer", raw.EventBuffer, &cfg.EventBuffer)
	num("log_max_size_mb", raw.LogMaxSizeMB, &cfg.LogMaxSizeMB)
	num("log_max_backups", raw.LogMaxBackups, &cfg.LogMaxBackups)

	if err := dur("read_timeout", raw.ReadTimeout, &cfg.ReadTimeout); err != nil {
		return err
	}
	return dur("write_timeout", raw.WriteTimeout, &cfg.WriteTimeout)
}

// Validate checks field constraints and that exactly one endpoint is set.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	_, err := c.Mode()
	return err
}

// Mode reports which endpoint is configured.
func (c Config) Mode() (Mode, error) {
	var modes []Mode
	if c.Listen != "" {
		modes = append(modes, ModeListen)
	}
	if c.Dial != "" {
		modes = append(modes, ModeDial)
	}
	if c.WebSocketURL != "" {
		modes = append(modes, ModeWebSocketDial)
	}
	if c.WebSocketListen != "" {
		modes = append(modes, ModeWebSocketListen)
	}

	switch len(modes) {
	case 0:
		return "", ErrNoEndpoint
	case 1:
		return modes[0], nil
	default:
		return "", ErrMultipleEndpoints
	}
}

// Options converts the protocol settings for wirechat.New.
func (c Config) Options() *wirechat.Options {
	opts := wirechat.NewOptions()
	opts.ReadTimeout = c.ReadTimeout
	opts.WriteTimeout = c.WriteTimeout
	opts.MaxFrameSize = c.MaxFrameSize
	opts.ChunkSize = c.ChunkSize
	return opts
}

// Logging converts the log settings for logging.Configure.
func (c Config) Logging() logging.Config {
	return logging.Config{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		File:       c.LogFile,
		MaxSizeMB:  c.LogMaxSizeMB,
		MaxBackups: c.LogMaxBackups,
	}
}
