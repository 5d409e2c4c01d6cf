package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// envPrefix is the prefix of environment overrides, e.g. TRANSLATOR_RELEASE_CHANNEL_TAG.
const envPrefix = "TRANSLATOR_RELEASE"

// DefaultConfigPath returns the config file looked up when no path is given.
func DefaultConfigPath() string {
	return filepath.Join(userConfigDir(), "translator", DefaultConfigFilename)
}

// Load reads configuration from path, applies environment overrides and
// validates the result. A missing file is not an error: defaults and the
// environment are used instead.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	v := newViper()
	v.SetConfigFile(filepath.Clean(path))
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read settings: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes cfg to path in YAML format.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigPath()
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}

	// Restrict permissions.
	if err = os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// newViper returns a viper instance with environment bindings for every key.
// Boolean switches that default to true are registered as defaults because
// an absent key would otherwise decode as false.
func newViper() *viper.Viper {
	v := viper.New()

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("runtime.enabled", true)
	v.SetDefault("health.enabled", true)

	// AutomaticEnv only affects keys viper already knows about, so register
	// every nested key for Unmarshal to pick up environment values.
	for _, key := range knownKeys() {
		_ = v.BindEnv(key)
	}

	return v
}

func knownKeys() []string {
	return []string{
		"root", "log_level",
		"channel.base_url", "channel.repo", "channel.tag",
		"manifest.source", "manifest.name",
		"assets.base_url", "assets.app_archive", "assets.extension_archive", "assets.data_files",
		"assets.force_remote", "assets.model_archive", "assets.model_dir", "assets.model_marker",
		"install.mode", "install.source_dir", "install.data_dirs", "install.exclude",
		"layout.required_dirs",
		"runtime.enabled", "runtime.interpreter", "runtime.requirements", "runtime.smoke_import",
		"runtime.timeout",
		"service.manager", "service.unit", "service.unit_dir", "service.bus_name",
		"service.dbus_service_dir", "service.module", "service.process_name", "service.timeout",
		"health.enabled", "health.auto_rollback", "health.socket", "health.ready_timeout",
		"health.poll_interval", "health.call_timeout", "health.samples",
		"download.timeout", "download.retries", "download.backoff",
	}
}
