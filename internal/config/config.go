// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/Pondsiders/Rosemary-App/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete Rosemary configuration.
type Config struct {
	Server   ServerConfig   `toml:"server" json:"server"`
	Upload   UploadConfig   `toml:"upload" json:"upload"`
	Sessions SessionsConfig `toml:"sessions" json:"sessions"`
	UI       UIConfig       `toml:"ui" json:"ui"`
	Log      LogConfig      `toml:"log" json:"log"`
}

// ServerConfig locates the chat backend.
type ServerConfig struct {
	// URL is the backend base URL, e.g. http://localhost:8780
	URL string `toml:"url" json:"url"`
	// Endpoint paths, relative to URL
	ChatPath      string `toml:"chat_path" json:"chat_path"`
	InterruptPath string `toml:"interrupt_path" json:"interrupt_path"`
	UploadPath    string `toml:"upload_path" json:"upload_path"`
	SessionsPath  string `toml:"sessions_path" json:"sessions_path"`
	// RequestTimeoutSecs bounds non-streaming requests. The chat stream
	// itself is never timed out.
	RequestTimeoutSecs int `toml:"request_timeout_secs" json:"request_timeout_secs"`
}

// UploadConfig controls attachments.
type UploadConfig struct {
	// Attribution prefixes file reference lines in outgoing messages
	Attribution string `toml:"attribution" json:"attribution"`
	// MaxImageBytes caps inline images before encoding
	MaxImageBytes int64 `toml:"max_image_bytes" json:"max_image_bytes"`
}

// SessionsConfig controls the session list and the local transcript cache.
type SessionsConfig struct {
	ListLimit    int    `toml:"list_limit" json:"list_limit"`
	CacheEnabled bool   `toml:"cache_enabled" json:"cache_enabled"`
	CachePath    string `toml:"cache_path" json:"cache_path"`
	// CacheKeep is how many transcripts survive pruning
	CacheKeep int `toml:"cache_keep" json:"cache_keep"`
}

// UIConfig contains UI configuration.
type UIConfig struct {
	// RenderFPS caps how often streamed updates repaint the screen
	RenderFPS    int  `toml:"render_fps" json:"render_fps"`
	ShowThinking bool `toml:"show_thinking" json:"show_thinking"`
	ShowTools    bool `toml:"show_tools" json:"show_tools"`
}

// LogConfig controls the log file.
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `toml:"level" json:"level"`
	// Path of the log file; empty means ~/.rosemary/rosemary.log
	Path string `toml:"path" json:"path"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

const (
	DefaultServerURL     = "http://localhost:8780"
	DefaultAttribution   = "Attached file"
	DefaultMaxImageBytes = 20 << 20
	DefaultListLimit     = 20
	MaxListLimit         = 100
	DefaultCacheKeep     = 200
	DefaultRenderFPS     = 30
	MaxRenderFPS         = 120
	DefaultLogLevel      = "info"
	DefaultRequestSecs   = 30
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			URL:                DefaultServerURL,
			ChatPath:           "/api/chat",
			InterruptPath:      "/api/chat/interrupt",
			UploadPath:         "/api/upload",
			SessionsPath:       "/api/sessions",
			RequestTimeoutSecs: DefaultRequestSecs,
		},
		Upload: UploadConfig{
			Attribution:   DefaultAttribution,
			MaxImageBytes: DefaultMaxImageBytes,
		},
		Sessions: SessionsConfig{
			ListLimit:    DefaultListLimit,
			CacheEnabled: true,
			CacheKeep:    DefaultCacheKeep,
		},
		UI: UIConfig{
			RenderFPS:    DefaultRenderFPS,
			ShowThinking: true,
			ShowTools:    true,
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the Rosemary configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".rosemary"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// ensureSecurePermissions tightens config files to 0600.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from ~/.rosemary. TOML is tried first, then
// JSON, then the defaults. Environment overrides are applied last.
//
// A config file that exists but cannot be parsed is reported alongside a
// usable default config, so callers can warn and continue.
func Load() (*Config, error) {
	var loadErr error

	if path, err := ConfigPathTOML(); err == nil && fileExists(path) {
		cfg, err := LoadFromPath(path)
		if err == nil {
			return cfg, nil
		}
		loadErr = err
	} else if path, err := ConfigPathJSON(); err == nil && fileExists(path) {
		cfg, err := LoadFromPath(path)
		if err == nil {
			return cfg, nil
		}
		loadErr = err
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, loadErr
}

// LoadTOML decodes a TOML file over cfg.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		slog.Warn("could not ensure secure permissions", "path", path, "err", err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON decodes a JSON file over cfg.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		slog.Warn("could not ensure secure permissions", "path", path, "err", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadFromPath loads configuration from a specific file with full
// validation. Files ending in .json are JSON; anything else is TOML.
// Keys missing from the file keep their default values.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes cfg atomically with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# Rosemary configuration file\n")
	buf.WriteString("# Generated by rosemary - edit with care\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFileWithDir(path, buf.Bytes(), 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON writes cfg as indented JSON, atomically with 0600 permissions.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFileWithDir(path, data, 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if u, err := url.Parse(c.Server.URL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, ValidationError{
			Field:   "server.url",
			Message: fmt.Sprintf("invalid URL '%s', must be http(s)://host[:port]", c.Server.URL),
		})
	}

	paths := []struct{ field, value string }{
		{"server.chat_path", c.Server.ChatPath},
		{"server.interrupt_path", c.Server.InterruptPath},
		{"server.upload_path", c.Server.UploadPath},
		{"server.sessions_path", c.Server.SessionsPath},
	}
	for _, p := range paths {
		if !strings.HasPrefix(p.value, "/") {
			errs = append(errs, ValidationError{
				Field:   p.field,
				Message: fmt.Sprintf("path '%s' must start with /", p.value),
			})
		}
	}

	if c.Server.RequestTimeoutSecs < 1 || c.Server.RequestTimeoutSecs > 600 {
		errs = append(errs, ValidationError{
			Field:   "server.request_timeout_secs",
			Message: fmt.Sprintf("must be between 1 and 600, got %d", c.Server.RequestTimeoutSecs),
		})
	}

	if c.Upload.MaxImageBytes < 1 {
		errs = append(errs, ValidationError{
			Field:   "upload.max_image_bytes",
			Message: "must be positive",
		})
	}

	if c.Sessions.ListLimit < 1 || c.Sessions.ListLimit > MaxListLimit {
		errs = append(errs, ValidationError{
			Field:   "sessions.list_limit",
			Message: fmt.Sprintf("must be between 1 and %d, got %d", MaxListLimit, c.Sessions.ListLimit),
		})
	}
	if c.Sessions.CacheKeep < 1 {
		errs = append(errs, ValidationError{
			Field:   "sessions.cache_keep",
			Message: "must be positive",
		})
	}

	if c.UI.RenderFPS < 1 || c.UI.RenderFPS > MaxRenderFPS {
		errs = append(errs, ValidationError{
			Field:   "ui.render_fps",
			Message: fmt.Sprintf("must be between 1 and %d, got %d", MaxRenderFPS, c.UI.RenderFPS),
		})
	}

	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills zero values that have a usable default. Booleans are
// left alone since false is a legitimate setting.
func (c *Config) SetDefaults() {
	d := Default()

	if c.Server.URL == "" {
		c.Server.URL = d.Server.URL
	}
	c.Server.URL = strings.TrimRight(c.Server.URL, "/")
	if c.Server.ChatPath == "" {
		c.Server.ChatPath = d.Server.ChatPath
	}
	if c.Server.InterruptPath == "" {
		c.Server.InterruptPath = d.Server.InterruptPath
	}
	if c.Server.UploadPath == "" {
		c.Server.UploadPath = d.Server.UploadPath
	}
	if c.Server.SessionsPath == "" {
		c.Server.SessionsPath = d.Server.SessionsPath
	}
	if c.Server.RequestTimeoutSecs == 0 {
		c.Server.RequestTimeoutSecs = d.Server.RequestTimeoutSecs
	}

	if strings.TrimSpace(c.Upload.Attribution) == "" {
		c.Upload.Attribution = d.Upload.Attribution
	}
	if c.Upload.MaxImageBytes == 0 {
		c.Upload.MaxImageBytes = d.Upload.MaxImageBytes
	}

	if c.Sessions.ListLimit == 0 {
		c.Sessions.ListLimit = d.Sessions.ListLimit
	}
	if c.Sessions.CacheKeep == 0 {
		c.Sessions.CacheKeep = d.Sessions.CacheKeep
	}

	if c.UI.RenderFPS == 0 {
		c.UI.RenderFPS = d.UI.RenderFPS
	}

	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	c.Log.Level = strings.ToLower(c.Log.Level)
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - ROSEMARY_SERVER_URL: overrides server.url
//   - ROSEMARY_LOG_LEVEL: overrides log.level
//   - ROSEMARY_SESSION_CACHE: "0"/"false" disables the transcript cache,
//     "1"/"true" enables it, anything else is used as the cache path
func (c *Config) ApplyEnvOverrides() {
	if u := os.Getenv("ROSEMARY_SERVER_URL"); u != "" {
		c.Server.URL = u
	}

	if level := os.Getenv("ROSEMARY_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}

	if v := os.Getenv("ROSEMARY_SESSION_CACHE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Sessions.CacheEnabled = b
		} else {
			c.Sessions.CacheEnabled = true
			c.Sessions.CachePath = v
		}
	}
}

// =============================================================================
// DERIVED VALUES
// =============================================================================

// RequestTimeout returns the non-streaming request timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSecs) * time.Second
}

// CachePath returns the transcript cache path, defaulting into ConfigDir.
func (c *Config) CachePath() string {
	if c.Sessions.CachePath != "" {
		return expandHome(c.Sessions.CachePath)
	}
	return inConfigDir("cache.db")
}

// LogPath returns the log file path, defaulting into ConfigDir.
func (c *Config) LogPath() string {
	if c.Log.Path != "" {
		return expandHome(c.Log.Path)
	}
	return inConfigDir("rosemary.log")
}

// SlogLevel maps log.level onto a slog level. Unknown values are info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func inConfigDir(name string) string {
	dir, err := ConfigDir()
	if err != nil {
		return filepath.Join(".rosemary", name)
	}
	return filepath.Join(dir, name)
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

// Clone returns a copy of the configuration. Config holds no reference
// types, so a value copy is deep.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns the config as indented JSON for debugging.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance, loading it on first
// access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			slog.Warn("config load failed, using defaults", "err", err)
		}
		if cfg == nil {
			cfg = Default()
		}
		globalConfigMu.Lock()
		globalConfig = cfg
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigOnce.Do(func() {})
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
