// Package config loads the onesync_* runtime variables and network
// ports through viper, the way OCAP2-extension's internal/config
// loads its own recorder settings: defaults set first, then an
// optional config file, then environment overrides.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds every tunable read by the replication core and its
// transport/debug surfaces.
type Config struct {
	Enabled          bool   `mapstructure:"onesync_enabled"`
	DistanceCulling  bool   `mapstructure:"onesync_distanceCulling"`
	RadiusFrequency  bool   `mapstructure:"onesync_radiusFrequency"`
	LogFile          string `mapstructure:"onesync_logFile"`
	TCPPort          string `mapstructure:"tcp_port"`
	UDPPort          string `mapstructure:"udp_port"`
	WSPort           string `mapstructure:"ws_port"`
	HTTPPort         string `mapstructure:"http_port"`
	TickHz           int    `mapstructure:"tick_hz"`
	DatabaseURL      string `mapstructure:"database_url"`
	FirebaseProject  string `mapstructure:"firebase_project"`
}

// Load sets defaults, optionally reads a config file from configDir
// (silently skipped if absent), and applies ONESYNC_*-prefixed
// environment overrides, returning the resolved Config.
func Load(configDir string) (*Config, error) {
	v := viper.New()

	v.SetDefault("onesync_enabled", true)
	v.SetDefault("onesync_distanceCulling", true)
	v.SetDefault("onesync_radiusFrequency", true)
	v.SetDefault("onesync_logFile", "")
	v.SetDefault("tcp_port", "9090")
	v.SetDefault("udp_port", "9091")
	v.SetDefault("ws_port", "9093")
	v.SetDefault("http_port", "9092")
	v.SetDefault("tick_hz", 30)
	v.SetDefault("database_url", "")
	v.SetDefault("firebase_project", "")

	v.SetEnvPrefix("onesync")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configDir != "" {
		v.SetConfigName("onesync")
		v.AddConfigPath(configDir)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("config: reading config file: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}
	return cfg, nil
}
