package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/SridarDhandapani/isapi"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
)

// Environment variables holding device credentials
const (
	EnvUser     = "LAVIEW_NVR_USER"
	EnvPassword = "LAVIEW_NVR_PASS"
)

const (
	defaultConfigPath = "~/.config/nvrdl/config.toml"
	defaultLogDir     = "~/.local/share/nvrdl/logs"
	defaultChannel    = 1
)

// Config captures everything a retrieval run needs besides the time range
type Config struct {
	Address     string
	Username    string
	Password    string
	Channel     int
	UTC         bool
	Timeout     time.Duration
	ArchiveRoot string
	LogDir      string
	WriteLogs   bool
	MaxReboots  int
	MaxRetries  int
	Overwrite   bool // download tracks whose file already exists
	Stamp       bool // stamp file times and media metadata
}

// Default returns the configuration used when no file exists
func Default() Config {
	client := isapi.DefaultConfig()
	return Config{
		Channel:     defaultChannel,
		Timeout:     client.Timeout,
		ArchiveRoot: client.ArchiveRoot,
		LogDir:      mustExpand(defaultLogDir),
		WriteLogs:   true,
		MaxReboots:  client.MaxReboots,
		MaxRetries:  client.MaxRetries,
		Stamp:       client.StampMetadata,
	}
}

// Load locates and parses the config file, falling back to defaults when missing
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			applyEnv(&cfg)
			return cfg, nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw struct {
		Address     string `toml:"address"`
		Username    string `toml:"username"`
		Password    string `toml:"password"`
		Channel     int    `toml:"camera_channel"`
		UTC         bool   `toml:"utc"`
		Timeout     int    `toml:"timeout"`
		ArchiveRoot string `toml:"archive_root"`
		LogDir      string `toml:"log_dir"`
		WriteLogs   *bool  `toml:"write_logs"`
		MaxReboots  *int   `toml:"max_reboots"`
		MaxRetries  *int   `toml:"max_retries"`
		Overwrite   bool   `toml:"overwrite"`
		Stamp       *bool  `toml:"stamp_metadata"`
	}
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg.Address = strings.TrimSpace(raw.Address)
	cfg.Username = strings.TrimSpace(raw.Username)
	cfg.Password = raw.Password
	cfg.UTC = raw.UTC
	cfg.Overwrite = raw.Overwrite

	if raw.Channel > 0 {
		cfg.Channel = raw.Channel
	}
	if raw.Timeout > 0 {
		cfg.Timeout = time.Duration(raw.Timeout) * time.Second
	}
	if root := strings.TrimSpace(raw.ArchiveRoot); root != "" {
		cfg.ArchiveRoot = root
	}
	if dir := strings.TrimSpace(raw.LogDir); dir != "" {
		cfg.LogDir = mustExpand(dir)
	}
	if raw.WriteLogs != nil {
		cfg.WriteLogs = *raw.WriteLogs
	}
	if raw.MaxReboots != nil {
		cfg.MaxReboots = *raw.MaxReboots
	}
	if raw.MaxRetries != nil {
		cfg.MaxRetries = *raw.MaxRetries
	}
	if raw.Stamp != nil {
		cfg.Stamp = *raw.Stamp
	}

	applyEnv(&cfg)
	return cfg, nil
}

// ClientConfig converts the loaded settings into client settings
func (c Config) ClientConfig(logger *zerolog.Logger) isapi.Config {
	client := isapi.DefaultConfig()
	client.Timeout = c.Timeout
	client.ArchiveRoot = c.ArchiveRoot
	client.MaxReboots = c.MaxReboots
	client.MaxRetries = c.MaxRetries
	client.SkipExisting = !c.Overwrite
	client.StampMetadata = c.Stamp
	client.Logger = logger
	return client
}

func applyEnv(cfg *Config) {
	if user := strings.TrimSpace(os.Getenv(EnvUser)); user != "" {
		cfg.Username = user
	}
	if password := os.Getenv(EnvPassword); password != "" {
		cfg.Password = password
	}
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
