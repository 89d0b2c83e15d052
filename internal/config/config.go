package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// Mode constants
	ModeStdio  = "stdio"
	ModeServer = "server"

	// Request shapes
	ShapeWrapped = "wrapped"
	ShapeFlat    = "flat"

	// Log formats
	FormatText = "text"
	FormatJSON = "json"

	// Default values
	DefaultPort           = 8080
	DefaultHost           = "127.0.0.1"
	DefaultLogLevel       = "info"
	DefaultPredictURL     = "http://127.0.0.1:8000/predict_all"
	DefaultAuthURL        = "http://127.0.0.1:5000"
	DefaultTimeout        = 30 * time.Second
	DefaultMaxFileSize    = 20 * 1024 * 1024 // 20MB
	DefaultExtractWorkers = 4
	MaxExtractWorkers     = 64

	// EnvPrefix is prepended to every environment variable
	EnvPrefix = "CARDIO"

	// Directory permissions
	DefaultDirPerm = 0o750
)

// Config holds all configuration for the CLI and the MCP server
type Config struct {
	// Server configuration
	Mode string // "server" or "stdio"
	Host string
	Port int

	// Remote services
	PredictURL   string
	AuthURL      string
	RequestShape string
	Timeout      time.Duration

	// Report handling
	MaxFileSize    int64 // Maximum PDF file size in bytes
	ExtractWorkers int
	SchemaFile     string // optional YAML schema; built-in schema when empty
	ReportDir      string

	// Local state
	HistoryDB   string
	SessionFile string

	// Application configuration
	Version    string
	ServerName string
	LogLevel   string
	LogFormat  string
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	currentDir, err := os.Getwd()
	if err != nil {
		currentDir = "."
	}

	stateDir := filepath.Join(currentDir, ".cardiopredict")
	if home, err := os.UserHomeDir(); err == nil {
		stateDir = filepath.Join(home, ".cardiopredict")
	}

	return &Config{
		Mode:           ModeStdio,
		Host:           DefaultHost,
		Port:           DefaultPort,
		PredictURL:     DefaultPredictURL,
		AuthURL:        DefaultAuthURL,
		RequestShape:   ShapeWrapped,
		Timeout:        DefaultTimeout,
		MaxFileSize:    DefaultMaxFileSize,
		ExtractWorkers: DefaultExtractWorkers,
		ReportDir:      currentDir,
		HistoryDB:      filepath.Join(stateDir, "history.db"),
		SessionFile:    filepath.Join(stateDir, "session.yaml"),
		Version:        "1.0.0",
		ServerName:     "cardiopredict",
		LogLevel:       DefaultLogLevel,
		LogFormat:      FormatText,
	}
}

// flagKeys maps flag names to configuration keys
var flagKeys = map[string]string{
	"mode":            "mode",
	"host":            "host",
	"port":            "port",
	"predict-url":     "predict_url",
	"auth-url":        "auth_url",
	"request-shape":   "request_shape",
	"timeout":         "timeout",
	"max-file-size":   "max_file_size",
	"extract-workers": "extract_workers",
	"schema":          "schema_file",
	"report-dir":      "report_dir",
	"history-db":      "history_db",
	"session-file":    "session_file",
	"log-level":       "log_level",
	"log-format":      "log_format",
}

// RegisterFlags defines every configuration flag on fs with cfg's values as defaults
func RegisterFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.String("config", "", "Path to a YAML config file")
	fs.String("mode", cfg.Mode, "MCP transport: 'stdio' or 'server' (HTTP/SSE)")
	fs.String("host", cfg.Host, "Server host address (server mode only)")
	fs.Int("port", cfg.Port, "Server port (server mode only)")
	fs.String("predict-url", cfg.PredictURL, "Prediction endpoint URL")
	fs.String("auth-url", cfg.AuthURL, "Account service base URL")
	fs.String("request-shape", cfg.RequestShape, "Prediction request body: 'wrapped' or 'flat'")
	fs.Duration("timeout", cfg.Timeout, "Timeout for remote requests")
	fs.Int64("max-file-size", cfg.MaxFileSize, "Maximum PDF file size in bytes")
	fs.Int("extract-workers", cfg.ExtractWorkers, "Pages decoded concurrently")
	fs.String("schema", cfg.SchemaFile, "YAML file overriding the built-in feature schema")
	fs.String("report-dir", cfg.ReportDir, "Directory MCP tools may read reports from")
	fs.String("history-db", cfg.HistoryDB, "SQLite database for prediction history")
	fs.String("session-file", cfg.SessionFile, "File holding the signed-in session")
	fs.String("log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.String("log-format", cfg.LogFormat, "Log format (text, json)")
}

// Load resolves configuration from defaults, an optional config file, CARDIO_*
// environment variables and the flags registered on fs, in increasing priority.
func Load(fs *pflag.FlagSet) (*Config, error) {
	cfg := DefaultConfig()
	v := viper.New()

	setupViperEnvironment(v, cfg)

	if fs != nil {
		for flag, key := range flagKeys {
			if f := fs.Lookup(flag); f != nil {
				_ = v.BindPFlag(key, f)
			}
		}

		if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
			v.SetConfigFile(f.Value.String())
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	populateConfigFromViper(v, cfg)

	if cfg.ReportDir != "" {
		if expandedPath, err := filepath.Abs(cfg.ReportDir); err == nil {
			cfg.ReportDir = expandedPath
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setupViperEnvironment configures viper with environment variables and defaults
func setupViperEnvironment(v *viper.Viper, cfg *Config) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("mode", cfg.Mode)
	v.SetDefault("host", cfg.Host)
	v.SetDefault("port", cfg.Port)
	v.SetDefault("predict_url", cfg.PredictURL)
	v.SetDefault("auth_url", cfg.AuthURL)
	v.SetDefault("request_shape", cfg.RequestShape)
	v.SetDefault("timeout", cfg.Timeout)
	v.SetDefault("max_file_size", cfg.MaxFileSize)
	v.SetDefault("extract_workers", cfg.ExtractWorkers)
	v.SetDefault("schema_file", cfg.SchemaFile)
	v.SetDefault("report_dir", cfg.ReportDir)
	v.SetDefault("history_db", cfg.HistoryDB)
	v.SetDefault("session_file", cfg.SessionFile)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_format", cfg.LogFormat)
}

// populateConfigFromViper fills the config struct with values from viper
func populateConfigFromViper(v *viper.Viper, cfg *Config) {
	cfg.Mode = v.GetString("mode")
	cfg.Host = v.GetString("host")
	cfg.Port = v.GetInt("port")
	cfg.PredictURL = v.GetString("predict_url")
	cfg.AuthURL = v.GetString("auth_url")
	cfg.RequestShape = v.GetString("request_shape")
	cfg.Timeout = v.GetDuration("timeout")
	cfg.MaxFileSize = v.GetInt64("max_file_size")
	cfg.ExtractWorkers = v.GetInt("extract_workers")
	cfg.SchemaFile = v.GetString("schema_file")
	cfg.ReportDir = v.GetString("report_dir")
	cfg.HistoryDB = v.GetString("history_db")
	cfg.SessionFile = v.GetString("session_file")
	cfg.LogLevel = strings.ToLower(v.GetString("log_level"))
	cfg.LogFormat = strings.ToLower(v.GetString("log_format"))
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Mode != ModeStdio && c.Mode != ModeServer {
		return errors.New("mode must be either 'stdio' or 'server'")
	}

	if c.Mode == ModeServer && (c.Port < 1 || c.Port > 65535) {
		return errors.New("port must be between 1 and 65535")
	}

	if err := validateURL("predict_url", c.PredictURL); err != nil {
		return err
	}
	if err := validateURL("auth_url", c.AuthURL); err != nil {
		return err
	}

	if c.RequestShape != ShapeWrapped && c.RequestShape != ShapeFlat {
		return fmt.Errorf("request_shape must be either '%s' or '%s'", ShapeWrapped, ShapeFlat)
	}

	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}

	if c.MaxFileSize <= 0 {
		return errors.New("maximum file size must be positive")
	}

	if c.ExtractWorkers < 1 || c.ExtractWorkers > MaxExtractWorkers {
		return fmt.Errorf("extract_workers must be between 1 and %d", MaxExtractWorkers)
	}

	if c.ReportDir == "" {
		return errors.New("report directory cannot be empty")
	}

	// Check if report directory exists, create if it doesn't
	if _, err := os.Stat(c.ReportDir); os.IsNotExist(err) {
		if err := os.MkdirAll(c.ReportDir, DefaultDirPerm); err != nil {
			return fmt.Errorf("cannot create report directory %s: %w", c.ReportDir, err)
		}
	} else if err != nil {
		return fmt.Errorf("cannot access report directory %s: %w", c.ReportDir, err)
	}

	if c.HistoryDB == "" {
		return errors.New("history database path cannot be empty")
	}
	if c.SessionFile == "" {
		return errors.New("session file path cannot be empty")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	if c.LogFormat != FormatText && c.LogFormat != FormatJSON {
		return fmt.Errorf("invalid log format: %s (must be one of: text, json)", c.LogFormat)
	}

	return nil
}

func validateURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid %s: %q must be an http(s) URL", key, raw)
	}
	return nil
}

// Address returns the server address as host:port
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDebug returns true if debug logging is enabled
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// String returns a string representation of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{Mode: %s, PredictURL: %s, AuthURL: %s, RequestShape: %s, Timeout: %s, "+
		"ReportDir: %s, HistoryDB: %s, LogLevel: %s, MaxFileSize: %d, ExtractWorkers: %d}",
		c.Mode, c.PredictURL, c.AuthURL, c.RequestShape, c.Timeout,
		c.ReportDir, c.HistoryDB, c.LogLevel, c.MaxFileSize, c.ExtractWorkers)
}

// IsServerMode returns true if the MCP server runs over HTTP
func (c *Config) IsServerMode() bool {
	return c.Mode == ModeServer
}

// IsStdioMode returns true if the MCP server runs over standard I/O
func (c *Config) IsStdioMode() bool {
	return c.Mode == ModeStdio
}
