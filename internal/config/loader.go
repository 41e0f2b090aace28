package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"github.com/vpspilot/pilot/internal/errors"
)

const (
	// ConfigFileName is the default config file name.
	ConfigFileName = ".pilot.yaml"
	// GlobalConfigDir is the directory for global config.
	GlobalConfigDir = ".config/pilot"
	// GlobalConfigFile is the global config file name.
	GlobalConfigFile = "config.yaml"
	// EnvPrefix prefixes environment overrides: PILOT_SERVER_URL etc.
	EnvPrefix = "PILOT"
)

// Load reads config from the specified path. An empty path loads defaults
// plus environment overrides.
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if os.IsNotExist(err) {
				return nil, errors.WrapWithCode(err, errors.ErrConfig,
					"Config file not found",
					"Run 'pilot init' to create a config file, or specify one with --config")
			}
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to read config file",
				"Check the file exists and is valid YAML")
		}
	}

	return parseConfig(v, path)
}

// Find locates the config file using the search order:
// 1. Explicit path (from --config flag)
// 2. .pilot.yaml in current directory
// 3. .pilot.yaml in parent directories (stops at git root or home)
// 4. ~/.config/pilot/config.yaml
//
// Returns the path to the config file, or empty string if not found.
func Find(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			if os.IsNotExist(err) {
				return "", errors.WrapWithCode(err, errors.ErrConfig,
					"Specified config file not found: "+explicit,
					"Check the path is correct")
			}
			return "", errors.WrapWithCode(err, errors.ErrConfig,
				"Cannot access config file: "+explicit,
				"Check file permissions")
		}
		return explicit, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrConfig,
			"Cannot determine current directory",
			"Check directory permissions")
	}

	home, _ := os.UserHomeDir()
	dir := cwd
	for {
		configPath := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir || (home != "" && parent == home) {
			break
		}
		dir = parent
	}

	if global := GlobalPath(); global != "" {
		if _, err := os.Stat(global); err == nil {
			return global, nil
		}
	}

	return "", nil
}

// GlobalPath is ~/.config/pilot/config.yaml, or "" without a home dir.
func GlobalPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, GlobalConfigDir, GlobalConfigFile)
}

// LoadOrDefault finds and loads the config, falling back to defaults when
// there is none. The returned path is "" in that case.
func LoadOrDefault(explicit string) (*Config, string, error) {
	path, err := Find(explicit)
	if err != nil {
		return nil, "", err
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// setDefaults registers every key so AutomaticEnv can override keys that
// are absent from the file.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("version", d.Version)
	v.SetDefault("server.url", d.Server.URL)
	v.SetDefault("server.api_prefix", d.Server.APIPrefix)
	v.SetDefault("server.stream_path", d.Server.StreamPath)
	v.SetDefault("server.token", "")
	v.SetDefault("server.timeout", d.Server.Timeout)
	v.SetDefault("server.retries", d.Server.Retries)
	v.SetDefault("server.ssh_tunnel", "")
	v.SetDefault("server.cache_ttl", d.Server.CacheTTL)
	v.SetDefault("stream.default_range", d.Stream.DefaultRange)
	v.SetDefault("stream.refresh_interval", d.Stream.RefreshInterval)
	v.SetDefault("stream.network_fields.received", d.Stream.NetworkFields.Received)
	v.SetDefault("stream.network_fields.sent", d.Stream.NetworkFields.Sent)
	v.SetDefault("dashboard.node_ids", []int{})
	v.SetDefault("dashboard.history_window", 0)
	v.SetDefault("log.file", "")
	v.SetDefault("log.debug", false)
}

// parseConfig converts viper config to our Config struct with defaults merged in.
func parseConfig(v *viper.Viper, path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		where := "your config"
		if path != "" {
			where = path
		}
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid config format",
			"Check the YAML syntax in "+where)
	}

	cfg.Log.File = ExpandTilde(cfg.Log.File)
	cfg.Stream.DefaultRange = strings.TrimSpace(cfg.Stream.DefaultRange)
	return cfg, nil
}

// ExpandTilde replaces ~ or ~/path with the user's home directory.
func ExpandTilde(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}
