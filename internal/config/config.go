// Package config resolves kb configuration from defaults, JSONC files,
// KB_* environment variables and command line overrides.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tailscale/hujson"
)

// Session backends.
const (
	SessionMemory = "memory"
	SessionRedis  = "redis"
)

// FileName is the project config file looked up in the working directory.
const FileName = ".kb.json"

// Config holds all configuration options.
type Config struct {
	DataFile       string
	Listen         string
	LockTimeout    time.Duration
	LogLevel       string
	Seed           bool
	SessionBackend string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	SessionTTL     time.Duration
	RateLimitRPS   float64
	RateLimitBurst int

	// Resolved (not read from files)
	EffectiveCwd string
	DataFileAbs  string

	// Sources tracks where values came from (for diagnostics)
	Sources Sources
}

// Sources tracks which config layers contributed.
type Sources struct {
	Global  string   // Path to global config if loaded
	Project string   // Path to project or explicit config if loaded
	Env     []string // KB_* variables that were applied
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		DataFile:       "docbase.json",
		Listen:         "127.0.0.1:8080",
		LockTimeout:    10 * time.Second,
		LogLevel:       "warn",
		Seed:           true,
		SessionBackend: SessionMemory,
		RedisAddr:      "127.0.0.1:6379",
		SessionTTL:     24 * time.Hour,
		RateLimitRPS:   5,
		RateLimitBurst: 10,
	}
}

// SlogLevel returns LogLevel as a [slog.Level]. LogLevel is validated by
// [Load], so unknown values only occur on hand-built configs and map to warn.
func (c Config) SlogLevel() slog.Level {
	var level slog.Level

	err := level.UnmarshalText([]byte(c.LogLevel))
	if err != nil {
		return slog.LevelWarn
	}

	return level
}

// layer is one partial config source. Nil fields are not set by the layer.
type layer struct {
	DataFile       *string  `json:"data_file"`
	Listen         *string  `json:"listen"`
	LockTimeout    *string  `json:"lock_timeout"`
	LogLevel       *string  `json:"log_level"`
	Seed           *bool    `json:"seed"`
	SessionBackend *string  `json:"session_backend"`
	RedisAddr      *string  `json:"redis_addr"`
	RedisPassword  *string  `json:"redis_password"`
	RedisDB        *int     `json:"redis_db"`
	SessionTTL     *string  `json:"session_ttl"`
	RateLimitRPS   *float64 `json:"rate_limit_rps"`
	RateLimitBurst *int     `json:"rate_limit_burst"`
}

// LoadInput holds the inputs for Load.
type LoadInput struct {
	WorkDirOverride  string            // -C/--cwd flag value; if empty, os.Getwd() is used
	ConfigPath       string            // -c/--config flag value
	DataFileOverride string            // --data-file flag value; empty means no override
	Env              map[string]string // environment variables
}

// Load resolves configuration with the following precedence (highest wins):
//  1. Defaults
//  2. Global user config ($XDG_CONFIG_HOME/kb/config.json or ~/.config/kb/config.json)
//  3. Project config (.kb.json in the working directory, if present)
//  4. Explicit config file via ConfigPath (replaces 3, must exist)
//  5. KB_* environment variables
//  6. Flag overrides
func Load(input LoadInput) (Config, error) {
	workDir := input.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	cfg := Default()

	if globalPath := globalConfigPath(input.Env); globalPath != "" {
		l, loaded, err := loadFile(globalPath, false)
		if err != nil {
			return Config{}, err
		}

		if loaded {
			err = cfg.apply(l)
			if err != nil {
				return Config{}, fmt.Errorf("%w %s: %w", ErrConfigInvalid, globalPath, err)
			}

			cfg.Sources.Global = globalPath
		}
	}

	projectPath, mustExist := filepath.Join(workDir, FileName), false
	if input.ConfigPath != "" {
		projectPath, mustExist = input.ConfigPath, true
		if !filepath.IsAbs(projectPath) {
			projectPath = filepath.Join(workDir, projectPath)
		}

		if _, statErr := os.Stat(projectPath); statErr != nil {
			return Config{}, fmt.Errorf("%w: %s", ErrConfigFileNotFound, input.ConfigPath)
		}
	}

	l, loaded, err := loadFile(projectPath, mustExist)
	if err != nil {
		return Config{}, err
	}

	if loaded {
		err = cfg.apply(l)
		if err != nil {
			return Config{}, fmt.Errorf("%w %s: %w", ErrConfigInvalid, projectPath, err)
		}

		cfg.Sources.Project = projectPath
	}

	envLayer, envKeys, err := layerFromEnv(input.Env)
	if err != nil {
		return Config{}, err
	}

	err = cfg.apply(envLayer)
	if err != nil {
		return Config{}, fmt.Errorf("environment: %w", err)
	}

	cfg.Sources.Env = envKeys

	if input.DataFileOverride != "" {
		cfg.DataFile = input.DataFileOverride
	}

	err = cfg.validate()
	if err != nil {
		return Config{}, err
	}

	cfg.EffectiveCwd = workDir

	cfg.DataFileAbs = cfg.DataFile
	if !filepath.IsAbs(cfg.DataFileAbs) {
		cfg.DataFileAbs = filepath.Join(workDir, cfg.DataFile)
	}

	return cfg, nil
}

// globalConfigPath returns $XDG_CONFIG_HOME/kb/config.json, falling back to
// ~/.config/kb/config.json. Empty if neither variable is set.
func globalConfigPath(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "kb", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "kb", "config.json")
	}

	return ""
}

// loadFile reads a JSONC config file. Missing optional files are not an error.
func loadFile(path string, mustExist bool) (layer, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return layer{}, false, nil
		}

		return layer{}, false, fmt.Errorf("%w: %s", ErrConfigFileRead, path)
	}

	l, err := parse(data)
	if err != nil {
		return layer{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	return l, true, nil
}

func parse(data []byte) (layer, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return layer{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var l layer

	err = json.Unmarshal(standardized, &l)
	if err != nil {
		return layer{}, fmt.Errorf("invalid JSON: %w", err)
	}

	return l, nil
}

var envKeys = []string{
	"KB_DATA_FILE",
	"KB_LISTEN",
	"KB_LOCK_TIMEOUT",
	"KB_LOG_LEVEL",
	"KB_SEED",
	"KB_SESSION_BACKEND",
	"KB_REDIS_ADDR",
	"KB_REDIS_PASSWORD",
	"KB_REDIS_DB",
	"KB_SESSION_TTL",
	"KB_RATE_LIMIT_RPS",
	"KB_RATE_LIMIT_BURST",
}

func layerFromEnv(env map[string]string) (layer, []string, error) {
	var (
		l    layer
		used []string
	)

	for _, key := range envKeys {
		val, ok := env[key]
		if !ok {
			continue
		}

		err := l.set(key, val)
		if err != nil {
			return layer{}, nil, fmt.Errorf("%s: %w", key, err)
		}

		used = append(used, key)
	}

	return l, used, nil
}

func (l *layer) set(key, val string) error {
	switch key {
	case "KB_DATA_FILE":
		l.DataFile = &val
	case "KB_LISTEN":
		l.Listen = &val
	case "KB_LOCK_TIMEOUT":
		l.LockTimeout = &val
	case "KB_LOG_LEVEL":
		l.LogLevel = &val
	case "KB_SESSION_BACKEND":
		l.SessionBackend = &val
	case "KB_REDIS_ADDR":
		l.RedisAddr = &val
	case "KB_REDIS_PASSWORD":
		l.RedisPassword = &val
	case "KB_SESSION_TTL":
		l.SessionTTL = &val
	case "KB_SEED":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("%w %q", ErrInvalidValue, val)
		}

		l.Seed = &b
	case "KB_REDIS_DB", "KB_RATE_LIMIT_BURST":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%w %q", ErrInvalidValue, val)
		}

		if key == "KB_REDIS_DB" {
			l.RedisDB = &n
		} else {
			l.RateLimitBurst = &n
		}
	case "KB_RATE_LIMIT_RPS":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("%w %q", ErrInvalidValue, val)
		}

		l.RateLimitRPS = &f
	}

	return nil
}

// apply overlays l onto c. An explicitly empty data_file is rejected here so
// the error names the layer that set it.
func (c *Config) apply(l layer) error {
	if l.DataFile != nil {
		if strings.TrimSpace(*l.DataFile) == "" {
			return ErrDataFileEmpty
		}

		c.DataFile = *l.DataFile
	}

	setString(&c.Listen, l.Listen)
	setString(&c.LogLevel, l.LogLevel)
	setString(&c.SessionBackend, l.SessionBackend)
	setString(&c.RedisAddr, l.RedisAddr)
	setString(&c.RedisPassword, l.RedisPassword)

	if l.Seed != nil {
		c.Seed = *l.Seed
	}

	if l.RedisDB != nil {
		c.RedisDB = *l.RedisDB
	}

	if l.RateLimitRPS != nil {
		c.RateLimitRPS = *l.RateLimitRPS
	}

	if l.RateLimitBurst != nil {
		c.RateLimitBurst = *l.RateLimitBurst
	}

	err := setDuration(&c.LockTimeout, "lock_timeout", l.LockTimeout)
	if err != nil {
		return err
	}

	return setDuration(&c.SessionTTL, "session_ttl", l.SessionTTL)
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, name string, src *string) error {
	if src == nil {
		return nil
	}

	d, err := time.ParseDuration(*src)
	if err != nil || d <= 0 {
		return fmt.Errorf("%w for %s: %q", ErrInvalidDuration, name, *src)
	}

	*dst = d

	return nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.DataFile) == "" {
		return ErrDataFileEmpty
	}

	switch c.SessionBackend {
	case SessionMemory, SessionRedis:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSessionBackend, c.SessionBackend)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: %q", ErrUnknownLogLevel, c.LogLevel)
	}

	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("%w: rate_limit_rps and rate_limit_burst must be positive", ErrInvalidValue)
	}

	if c.RedisDB < 0 {
		return fmt.Errorf("%w: redis_db must not be negative", ErrInvalidValue)
	}

	return nil
}
