package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	internal "github.com/ZanzyTHEbar/dfft/dfft"
	"github.com/ZanzyTHEbar/dfft/dfft/filesystem/watcher"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Watch WatchConfig `mapstructure:"watch"`
	Log   LogConfig   `mapstructure:"log"`
}

// WatchConfig stores watch session settings.
type WatchConfig struct {
	Root                string        `mapstructure:"root"`
	Prepopulate         bool          `mapstructure:"prepopulate"`
	DebounceDelay       time.Duration `mapstructure:"debounceDelay"`
	MaxDebounceDelay    time.Duration `mapstructure:"maxDebounceDelay"`
	QueueCapacity       int           `mapstructure:"queueCapacity"`
	MaxFileSize         int64         `mapstructure:"maxFileSize"`
	MaxPrepopulateFiles int           `mapstructure:"maxPrepopulateFiles"`
	PrepopulateWorkers  int           `mapstructure:"prepopulateWorkers"`
}

// LogConfig stores logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// WatcherConfig converts the file settings into the watcher's configuration.
func (w WatchConfig) WatcherConfig() watcher.WatcherConfig {
	return watcher.WatcherConfig{
		DebounceDelay:       w.DebounceDelay,
		MaxDebounceDelay:    w.MaxDebounceDelay,
		QueueCapacity:       w.QueueCapacity,
		MaxFileSize:         w.MaxFileSize,
		MaxPrepopulateFiles: w.MaxPrepopulateFiles,
		PrepopulateWorkers:  w.PrepopulateWorkers,
	}
}

var AppConfig Config

// LoadConfig reads configuration from file or environment variables. An
// explicit configPath must exist; without one, a missing config file just
// means defaults.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath(internal.DefaultConfigPath)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix(internal.DefaultEnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // watch.debounceDelay becomes DFFT_WATCH_DEBOUNCEDELAY
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	AppConfig = cfg
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := watcher.DefaultConfig()

	v.SetDefault("watch.root", ".")
	v.SetDefault("watch.prepopulate", true)
	v.SetDefault("watch.debounceDelay", def.DebounceDelay)
	v.SetDefault("watch.maxDebounceDelay", def.MaxDebounceDelay)
	v.SetDefault("watch.queueCapacity", def.QueueCapacity)
	v.SetDefault("watch.maxFileSize", def.MaxFileSize)
	v.SetDefault("watch.maxPrepopulateFiles", def.MaxPrepopulateFiles)
	v.SetDefault("watch.prepopulateWorkers", def.PrepopulateWorkers)
	v.SetDefault("log.level", "info")
}
