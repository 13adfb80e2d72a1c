package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/five82/vrcpulse/internal/activity"
	"github.com/five82/vrcpulse/internal/poller"
	"github.com/five82/vrcpulse/internal/throttle"
	"github.com/five82/vrcpulse/internal/vrchat"
)

// Config holds every tunable of the watcher.
type Config struct {
	APIURL                        string
	UserAgent                     string
	RequestTimeout                time.Duration
	PollInterval                  time.Duration
	ThrottleCooldown              time.Duration
	ActivityCapacity              int
	UnauthorizedMeansSecondFactor bool
	ExportFormat                  activity.Format
	Theme                         string
}

const (
	defaultConfigPath     = "~/.config/vrcpulse/config.toml"
	defaultRequestTimeout = 15 * time.Second
	defaultTheme          = "Nightfox"
)

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		APIURL:                        vrchat.DefaultBaseURL,
		UserAgent:                     vrchat.DefaultUserAgent,
		RequestTimeout:                defaultRequestTimeout,
		PollInterval:                  poller.DefaultInterval,
		ThrottleCooldown:              throttle.DefaultCooldown,
		ActivityCapacity:              activity.DefaultCapacity,
		UnauthorizedMeansSecondFactor: true,
		ExportFormat:                  activity.FormatJSON,
		Theme:                         defaultTheme,
	}
}

// file mirrors config.toml. Pointers distinguish unset keys from zero
// values.
type file struct {
	APIURL                        string `toml:"api_url"`
	UserAgent                     string `toml:"user_agent"`
	RequestTimeout                string `toml:"request_timeout"`
	PollInterval                  string `toml:"poll_interval"`
	ThrottleCooldown              string `toml:"throttle_cooldown"`
	ActivityCapacity              *int   `toml:"activity_capacity"`
	UnauthorizedMeansSecondFactor *bool  `toml:"unauthorized_means_second_factor"`
	ExportFormat                  string `toml:"export_format"`
	Theme                         string `toml:"theme"`
}

// Load locates and parses the config, falling back to defaults when missing.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()

	f, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	bytes, err := io.ReadAll(f)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw file
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.apply(raw); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) apply(raw file) error {
	if v := strings.TrimSpace(raw.APIURL); v != "" {
		c.APIURL = v
	}
	if v := strings.TrimSpace(raw.UserAgent); v != "" {
		c.UserAgent = v
	}
	if v := strings.TrimSpace(raw.Theme); v != "" {
		c.Theme = v
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"request_timeout", raw.RequestTimeout, &c.RequestTimeout},
		{"poll_interval", raw.PollInterval, &c.PollInterval},
		{"throttle_cooldown", raw.ThrottleCooldown, &c.ThrottleCooldown},
	}
	for _, d := range durations {
		v := strings.TrimSpace(d.raw)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse config: %s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	if raw.ActivityCapacity != nil {
		c.ActivityCapacity = *raw.ActivityCapacity
	}
	if raw.UnauthorizedMeansSecondFactor != nil {
		c.UnauthorizedMeansSecondFactor = *raw.UnauthorizedMeansSecondFactor
	}
	if strings.TrimSpace(raw.ExportFormat) != "" {
		format, err := activity.ParseFormat(raw.ExportFormat)
		if err != nil {
			return fmt.Errorf("parse config: export_format: %w", err)
		}
		c.ExportFormat = format
	}
	return nil
}

// Validate rejects values the watcher cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval))
	}
	if c.ThrottleCooldown <= 0 {
		errs = append(errs, fmt.Errorf("throttle_cooldown must be positive, got %s", c.ThrottleCooldown))
	}
	if c.ActivityCapacity <= 0 {
		errs = append(errs, fmt.Errorf("activity_capacity must be positive, got %d", c.ActivityCapacity))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Encode writes c as TOML using the same keys Load reads.
func (c Config) Encode(w io.Writer) error {
	capacity := c.ActivityCapacity
	unauthorized := c.UnauthorizedMeansSecondFactor
	raw := file{
		APIURL:                        c.APIURL,
		UserAgent:                     c.UserAgent,
		RequestTimeout:                c.RequestTimeout.String(),
		PollInterval:                  c.PollInterval.String(),
		ThrottleCooldown:              c.ThrottleCooldown.String(),
		ActivityCapacity:              &capacity,
		UnauthorizedMeansSecondFactor: &unauthorized,
		ExportFormat:                  string(c.ExportFormat),
		Theme:                         c.Theme,
	}
	return toml.NewEncoder(w).Encode(raw)
}

// DefaultPath returns the expanded default config location.
func DefaultPath() string {
	return mustExpand(defaultConfigPath)
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

// ExpandPath resolves a leading ~ and returns an absolute path.
func ExpandPath(path string) (string, error) {
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
