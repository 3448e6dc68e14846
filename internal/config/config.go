// Package config provides configuration management for emotedriver
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Audio   AudioConfig   `mapstructure:"audio"`
	LipSync LipSyncConfig `mapstructure:"lip_sync"`
	Binding BindingConfig `mapstructure:"binding"`
	Rig     RigConfig     `mapstructure:"rig"`
}

// LoggingConfig configures log output
type LoggingConfig struct {
	Dir     string `mapstructure:"dir"`
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

// AudioConfig configures capture and file streaming
type AudioConfig struct {
	SampleRate    int `mapstructure:"sample_rate"`
	QueueCapacity int `mapstructure:"queue_capacity"`
}

// LipSyncConfig tunes the envelope tracker and the activation curve
type LipSyncConfig struct {
	UpdateRate         int           `mapstructure:"update_rate"`
	MeanDecay          time.Duration `mapstructure:"mean_decay"`
	PeakDecay          time.Duration `mapstructure:"peak_decay"`
	ActivationRatio    float64       `mapstructure:"activation_ratio"`
	Curve              float64       `mapstructure:"curve"`
	Oversaturation     float64       `mapstructure:"oversaturation"`
	SetVariableDur     time.Duration `mapstructure:"set_variable_duration"`
	CloseMouthDur      time.Duration `mapstructure:"close_mouth_duration"`
	PlaybackOnFileSync bool          `mapstructure:"playback_on_file_sync"`
}

// BindingConfig locates the rule document and the binding cache
type BindingConfig struct {
	RulesPath  string `mapstructure:"rules_path"`
	CacheDir   string `mapstructure:"cache_dir"`
	WatchRules bool   `mapstructure:"watch_rules"`
}

// RigConfig configures the connection to the external player
type RigConfig struct {
	PlayerURL string `mapstructure:"player_url"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".emotedriver")
	return &Config{
		Logging: LoggingConfig{
			Dir:     filepath.Join(base, "logs"),
			Level:   "info",
			Console: true,
		},
		Audio: AudioConfig{
			SampleRate:    16000,
			QueueCapacity: 8,
		},
		LipSync: LipSyncConfig{
			UpdateRate:         30,
			MeanDecay:          800 * time.Millisecond,
			PeakDecay:          150 * time.Millisecond,
			ActivationRatio:    0.3,
			Curve:              0.35,
			Oversaturation:     1.1,
			SetVariableDur:     5 * time.Millisecond,
			CloseMouthDur:      200 * time.Millisecond,
			PlaybackOnFileSync: true,
		},
		Binding: BindingConfig{
			RulesPath:  filepath.Join(base, "rules.json"),
			CacheDir:   filepath.Join(base, "cache"),
			WatchRules: false,
		},
		Rig: RigConfig{
			PlayerURL: "http://localhost:8170",
		},
	}
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configDir, err := GetConfigDir()
	if err != nil {
		return cfg, err
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return cfg, err
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	// Environment variable overrides
	viper.SetEnvPrefix("EMOTEDRIVER")
	viper.AutomaticEnv()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, err
		}
		// Config file not found, use defaults and create one
		if err := Save(cfg); err != nil {
			return cfg, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Save writes the configuration to file
func Save(cfg *Config) error {
	configDir, err := GetConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	viper.Set("logging", cfg.Logging)
	viper.Set("audio", cfg.Audio)
	viper.Set("lip_sync", cfg.LipSync)
	viper.Set("binding", cfg.Binding)
	viper.Set("rig", cfg.Rig)

	configPath := filepath.Join(configDir, "config.yaml")
	return viper.WriteConfigAs(configPath)
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".emotedriver"), nil
}
