// Package config loads environment variables into a typed Config.
// Defaults let the archiver run with nothing but a token; missing target
// values are collected interactively by the prompt package.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Defaults applied by Load.
const (
	DefaultLogsDir       = "logs"
	DefaultPageSize      = 100
	MaxPageSize          = 100
	DefaultLiveBuffer    = 10000
	DefaultSubjectPrefix = "archive"
)

type Config struct {
	// Discord
	Token    string
	BotToken bool

	// Target
	Conversation string
	Server       string
	Channel      string

	// Archive
	LogsDir    string
	PageSize   int
	LiveBuffer int

	// Status server; empty disables it.
	HTTPAddr string

	// NATS mirror; empty URL disables it.
	NATSURL           string
	NATSToken         string
	NATSSubjectPrefix string
}

// Load reads environment variables and applies defaults. It only fails on
// values that cannot be parsed; range checks live in Validate.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Token = strings.TrimSpace(os.Getenv("DISCORD_TOKEN"))
	bot, err := envBool("DISCORD_BOT_TOKEN")
	if err != nil {
		return nil, err
	}
	cfg.BotToken = bot

	cfg.Conversation = strings.TrimSpace(os.Getenv("ARCHIVE_CONVERSATION"))
	cfg.Server = strings.TrimSpace(os.Getenv("ARCHIVE_SERVER"))
	cfg.Channel = strings.TrimSpace(os.Getenv("ARCHIVE_CHANNEL"))

	cfg.LogsDir = os.Getenv("LOGS_DIR")
	if cfg.LogsDir == "" {
		cfg.LogsDir = DefaultLogsDir
	}
	if cfg.PageSize, err = envInt("ARCHIVE_PAGE_SIZE", DefaultPageSize); err != nil {
		return nil, err
	}
	if cfg.LiveBuffer, err = envInt("ARCHIVE_LIVE_BUFFER", DefaultLiveBuffer); err != nil {
		return nil, err
	}

	cfg.HTTPAddr = strings.TrimSpace(os.Getenv("HTTP_ADDR"))

	cfg.NATSURL = strings.TrimSpace(os.Getenv("NATS_URL"))
	cfg.NATSToken = os.Getenv("NATS_TOKEN")
	cfg.NATSSubjectPrefix = os.Getenv("NATS_SUBJECT_PREFIX")
	if cfg.NATSSubjectPrefix == "" {
		cfg.NATSSubjectPrefix = DefaultSubjectPrefix
	}

	return cfg, nil
}

// Validate checks numeric ranges and the logs directory.
func (c *Config) Validate() error {
	if c.PageSize < 1 || c.PageSize > MaxPageSize {
		return fmt.Errorf("ARCHIVE_PAGE_SIZE must be between 1 and %d, got %d", MaxPageSize, c.PageSize)
	}
	if c.LiveBuffer < 1 {
		return fmt.Errorf("ARCHIVE_LIVE_BUFFER must be positive, got %d", c.LiveBuffer)
	}
	if strings.TrimSpace(c.LogsDir) == "" {
		return fmt.Errorf("LOGS_DIR must not be empty")
	}
	return nil
}

// MirrorEnabled reports whether entries should be published to NATS.
func (c *Config) MirrorEnabled() bool { return c.NATSURL != "" }

func envInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envBool(key string) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
