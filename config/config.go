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
	"gopkg.in/yaml.v3"
)

// EnvDataDir overrides the directory holding the database.
const EnvDataDir = "NETSPEEDLOGGER"

// Config holds every configurable value for the logger.
type Config struct {
	// Persistence
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"` // folder of netspeedlogger.sqlite3

	LogLevel string `mapstructure:"log_level" yaml:"log_level"` // debug|info|warn|error

	// Retry policy of one speedtest cycle
	Retries       int           `mapstructure:"retries" yaml:"retries"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`               // bounds server discovery
	Backoff       time.Duration `mapstructure:"backoff" yaml:"backoff"`               // sleep between attempts
	ProbeDeadline time.Duration `mapstructure:"probe_deadline" yaml:"probe_deadline"` // 0 = unbounded

	// Optional Prometheus textfile written after every speedtest.
	MetricsTextfile string `mapstructure:"metrics_textfile" yaml:"metrics_textfile"`

	SFTP SFTP `mapstructure:"sftp" yaml:"sftp"`
}

// SFTP configures `push`.
type SFTP struct {
	Host       string `mapstructure:"host" yaml:"host"` // host:port
	User       string `mapstructure:"user" yaml:"user"`
	KeyPath    string `mapstructure:"key_path" yaml:"key_path"`
	KnownHosts string `mapstructure:"known_hosts" yaml:"known_hosts"`
	RemoteDir  string `mapstructure:"remote_dir" yaml:"remote_dir"`
}

// Load reads configuration from (in decreasing priority):
//  1. command-line flags present in flags (may be nil)
//  2. environment variables: NETSPEEDLOGGER for the data folder,
//     NETSPEEDLOGGER_<KEY> for everything else (e.g. NETSPEEDLOGGER_RETRIES)
//  3. a yaml file named config.yaml in ./configs or ~/.netspeedlogger
//
// It returns a fully populated *Config or an error.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("cannot resolve home directory: %w", err)
	}
	defaultDir := filepath.Join(home, ".netspeedlogger")

	v.SetDefault("data_dir", defaultDir)
	v.SetDefault("log_level", "info")
	v.SetDefault("retries", 3)
	v.SetDefault("timeout", 15*time.Second)
	v.SetDefault("backoff", 10*time.Second)
	v.SetDefault("probe_deadline", time.Duration(0))
	v.SetDefault("metrics_textfile", "")
	v.SetDefault("sftp.host", "")
	v.SetDefault("sftp.user", "")
	v.SetDefault("sftp.key_path", filepath.Join(home, ".ssh", "id_rsa"))
	v.SetDefault("sftp.known_hosts", "")
	v.SetDefault("sftp.remote_dir", "")

	v.SetEnvPrefix(EnvDataDir)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("data_dir", EnvDataDir); err != nil {
		return nil, fmt.Errorf("bind %s: %w", EnvDataDir, err)
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(defaultDir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("cannot read config file: %w", err)
		}
	}

	if flags != nil {
		for _, key := range []string{"retries", "timeout", "backoff", "probe_deadline", "log_level", "data_dir"} {
			if f := flags.Lookup(strings.ReplaceAll(key, "_", "-")); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", f.Name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("cannot decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values Load cannot express as types.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.Retries < 1 {
		return fmt.Errorf("retries must be at least 1, got %d", c.Retries)
	}
	if c.Timeout < 0 || c.Backoff < 0 || c.ProbeDeadline < 0 {
		return fmt.Errorf("timeout, backoff and probe_deadline must not be negative")
	}
	return nil
}

// Dump renders the effective configuration as YAML.
func Dump(c *Config) (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	return string(out), nil
}
