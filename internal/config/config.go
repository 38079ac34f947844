package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

const (
	ModeStdio  = "stdio"
	ModeServer = "server"

	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	DefaultPort             = 8080
	DefaultHost             = "127.0.0.1"
	DefaultLogLevel         = "info"
	DefaultMaxFileSize      = 100 * 1024 * 1024 // 100MB
	DefaultExpiryDays       = 30
	DefaultDateFormat       = "01/02/2006"
	DefaultDateTimeFormat   = "01/02/2006 3:04 PM"
	DefaultFetchTimeout     = 30 * time.Second
	DefaultStorageDirectory = "documents"
	DefaultOutputDirectory  = "output"

	// EnvPrefix prefixes every environment variable
	EnvPrefix = "CUSTOM_FORMS"

	DefaultDirPerm = 0o750
)

// ErrVersionRequested is returned by LoadFromFlags when the command line
// only asks for the version
var ErrVersionRequested = errors.New("version requested")

var logLevels = []string{"debug", "info", "warn", "error"}

// Config is the runtime configuration of the custom forms service
type Config struct {
	Mode string // stdio or server
	Host string
	Port int

	DBDriver string
	DBDSN    string

	// StorageDirectory holds template PDFs and uploaded documents,
	// OutputDirectory receives rendered forms and is the root of the file tools.
	StorageDirectory string
	OutputDirectory  string
	MaxFileSize      int64
	FetchTimeout     time.Duration

	NotificationExpiryDays int
	DateFormat             string
	DateTimeFormat         string

	Version    string
	ServerName string
	LogLevel   string
}

// DefaultConfig returns the configuration used when no flag or variable is set
func DefaultConfig() *Config {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	return &Config{
		Mode:                   ModeStdio,
		Host:                   DefaultHost,
		Port:                   DefaultPort,
		DBDriver:               DriverMemory,
		StorageDirectory:       filepath.Join(wd, DefaultStorageDirectory),
		OutputDirectory:        filepath.Join(wd, DefaultOutputDirectory),
		MaxFileSize:            DefaultMaxFileSize,
		FetchTimeout:           DefaultFetchTimeout,
		NotificationExpiryDays: DefaultExpiryDays,
		DateFormat:             DefaultDateFormat,
		DateTimeFormat:         DefaultDateTimeFormat,
		Version:                "1.0.0",
		ServerName:             "nemo-custom-forms",
		LogLevel:               DefaultLogLevel,
	}
}

// envReplacer maps flag names such as db-dsn to CUSTOM_FORMS_DB_DSN
var envReplacer = strings.NewReplacer("-", "_")

// setting ties one flag to the config field it fills
type setting struct {
	key    string
	define func(fs *pflag.FlagSet)
	load   func(v *viper.Viper)
}

func stringSetting(key string, target *string, usage string) setting {
	return setting{
		key:    key,
		define: func(fs *pflag.FlagSet) { fs.String(key, *target, usage) },
		load:   func(v *viper.Viper) { *target = v.GetString(key) },
	}
}

func intSetting(key string, target *int, usage string) setting {
	return setting{
		key:    key,
		define: func(fs *pflag.FlagSet) { fs.Int(key, *target, usage) },
		load:   func(v *viper.Viper) { *target = v.GetInt(key) },
	}
}

func int64Setting(key string, target *int64, usage string) setting {
	return setting{
		key:    key,
		define: func(fs *pflag.FlagSet) { fs.Int64(key, *target, usage) },
		load:   func(v *viper.Viper) { *target = v.GetInt64(key) },
	}
}

func durationSetting(key string, target *time.Duration, usage string) setting {
	return setting{
		key:    key,
		define: func(fs *pflag.FlagSet) { fs.Duration(key, *target, usage) },
		load:   func(v *viper.Viper) { *target = v.GetDuration(key) },
	}
}

func settings(cfg *Config) []setting {
	return []setting{
		stringSetting("mode", &cfg.Mode, "Run mode: 'stdio' serves MCP on stdin/stdout, 'server' serves the HTTP API"),
		stringSetting("host", &cfg.Host, "HTTP listen host (server mode only)"),
		intSetting("port", &cfg.Port, "HTTP listen port (server mode only)"),
		stringSetting("db-driver", &cfg.DBDriver, "Database driver: memory, sqlite or postgres"),
		stringSetting("db-dsn", &cfg.DBDSN, "Database connection string (sqlite file or postgres DSN)"),
		stringSetting("storage-dir", &cfg.StorageDirectory, "Directory holding template PDFs and uploaded documents"),
		stringSetting("output-dir", &cfg.OutputDirectory, "Directory receiving rendered PDFs (stdio mode)"),
		int64Setting("maxfilesize", &cfg.MaxFileSize, "Largest PDF accepted, in bytes"),
		durationSetting("fetch-timeout", &cfg.FetchTimeout, "Timeout for downloading documents given by URL"),
		intSetting("notification-expiry-days", &cfg.NotificationExpiryDays, "Days before a form notification expires"),
		stringSetting("date-format", &cfg.DateFormat, "Go layout for dates written into PDFs"),
		stringSetting("datetime-format", &cfg.DateTimeFormat, "Go layout for date-times written into PDFs"),
		stringSetting("loglevel", &cfg.LogLevel, "Log level (debug, info, warn, error)"),
	}
}

// LoadFromFlags reads the configuration from the command line and the
// CUSTOM_FORMS_* environment. Flags win over the environment, which wins
// over the defaults.
func LoadFromFlags() (*Config, error) {
	cfg := DefaultConfig()
	fs := pflag.CommandLine
	v := viper.GetViper()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(envReplacer)
	v.AutomaticEnv()

	all := settings(cfg)
	for _, s := range all {
		s.define(fs)
		_ = v.BindPFlag(s.key, fs.Lookup(s.key))
	}
	fs.Usage = usage(fs, all)

	if versionRequested(os.Args[1:]) {
		return nil, ErrVersionRequested
	}
	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, err
	}

	for _, s := range all {
		s.load(v)
	}
	for _, dir := range []*string{&cfg.StorageDirectory, &cfg.OutputDirectory} {
		if *dir == "" {
			continue
		}
		if abs, err := filepath.Abs(*dir); err == nil {
			*dir = abs
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func usage(fs *pflag.FlagSet, all []setting) func() {
	return func() {
		name := os.Args[0]
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", name)
		fmt.Fprintf(os.Stderr, "\nNEMO custom forms - form workflow and PDF rendering service\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                                              # stdio MCP server, in-memory store\n", name)
		fmt.Fprintf(os.Stderr, "  %s --db-driver=sqlite --db-dsn=forms.db         # stdio with a sqlite database\n", name)
		fmt.Fprintf(os.Stderr, "  %s --mode=server --host=0.0.0.0 --port=8081     # HTTP server on all interfaces\n", name)
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		for _, s := range all {
			fmt.Fprintf(os.Stderr, "  %s_%s\n", EnvPrefix, envReplacer.Replace(strings.ToUpper(s.key)))
		}
	}
}

func versionRequested(args []string) bool {
	for _, arg := range args {
		switch arg {
		case "-v", "-version", "--version":
			return true
		}
	}
	return false
}

// Validate reports every invalid setting at once and creates the storage
// directories that do not exist yet.
func (c *Config) Validate() error {
	var err error
	add := func(msg string, args ...any) {
		err = multierr.Append(err, fmt.Errorf(msg, args...))
	}

	switch c.Mode {
	case ModeStdio:
	case ModeServer:
		if c.Port < 1 || c.Port > 65535 {
			add("port must be between 1 and 65535, got %d", c.Port)
		}
	default:
		add("mode must be either 'stdio' or 'server', got %q", c.Mode)
	}

	switch c.DBDriver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if c.DBDSN == "" {
			add("db-dsn is required for the %s driver", c.DBDriver)
		}
	default:
		add("invalid database driver: %s (must be one of: memory, sqlite, postgres)", c.DBDriver)
	}

	if c.StorageDirectory == "" {
		add("storage directory cannot be empty")
	} else {
		err = multierr.Append(err, ensureDir(c.StorageDirectory))
	}
	if c.Mode == ModeStdio {
		if c.OutputDirectory == "" {
			add("output directory cannot be empty")
		} else {
			err = multierr.Append(err, ensureDir(c.OutputDirectory))
		}
	}

	if c.MaxFileSize <= 0 {
		add("maximum file size must be positive")
	}
	if c.FetchTimeout <= 0 {
		add("fetch timeout must be positive")
	}
	if c.NotificationExpiryDays < 1 {
		add("notification expiry must be at least one day")
	}
	if c.DateFormat == "" || c.DateTimeFormat == "" {
		add("date formats cannot be empty")
	}
	if !validLogLevel(c.LogLevel) {
		add("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(logLevels, ", "))
	}
	return err
}

func validLogLevel(level string) bool {
	for _, l := range logLevels {
		if l == level {
			return true
		}
	}
	return false
}

func ensureDir(dir string) error {
	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(dir, DefaultDirPerm); err != nil {
			return fmt.Errorf("cannot create directory %s: %w", dir, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("cannot access directory %s: %w", dir, err)
	case !info.IsDir():
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}

// Address is the HTTP listen address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NotificationExpiry returns the notification lifetime
func (c *Config) NotificationExpiry() time.Duration {
	return time.Duration(c.NotificationExpiryDays) * 24 * time.Hour
}

func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

func (c *Config) String() string {
	return fmt.Sprintf("Config{Mode: %s, Host: %s, Port: %d, DBDriver: %s, StorageDirectory: %s, OutputDirectory: %s, LogLevel: %s, MaxFileSize: %d}",
		c.Mode, c.Host, c.Port, c.DBDriver, c.StorageDirectory, c.OutputDirectory, c.LogLevel, c.MaxFileSize)
}

func (c *Config) IsServerMode() bool {
	return c.Mode == ModeServer
}

func (c *Config) IsStdioMode() bool {
	return c.Mode == ModeStdio
}
