// Package config loads the gateway configuration from a config file and
// MESHAI_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

type Configuration struct {
	// DevicePath is either a serial device file (absolute path) or a TCP
	// host:port for a networked node.
	DevicePath string
	// ReconnectDelayMS gates the reconnect policy; zero disables retries.
	ReconnectDelayMS int

	HTTP struct {
		Host    string
		Port    int
		APIPath string
	}

	Bot struct {
		// AllowedChannels lists channel indices the bot may reply on,
		// comma separated.
		AllowedChannels string
		// TranslateFromChannels lists channel indices whose traffic is
		// relayed through the translator.
		TranslateFromChannels string
		// TranslateToChannel is the relay destination; empty disables
		// the relay.
		TranslateToChannel string
	}

	AI struct {
		Endpoint       string
		Model          string
		APIKey         string
		TargetLanguage string
		Temperature    float64
		MaxTokens      int
	}

	Database struct {
		User     string
		Password string
		Host     string
		DB       string
	}
}

// Load reads config.yaml from the working directory (if present) and applies
// environment overrides.
func Load() (*Configuration, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/meshcore-ai")
	v.SetEnvPrefix("MESHAI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("DevicePath", "localhost:5000")
	v.SetDefault("ReconnectDelayMS", 5000)
	v.SetDefault("HTTP.Host", "0.0.0.0")
	v.SetDefault("HTTP.Port", 8080)
	v.SetDefault("HTTP.APIPath", "/api/action")
	v.SetDefault("AI.Temperature", 0.2)
	v.SetDefault("AI.MaxTokens", 256)
	v.SetDefault("Database.Host", "localhost")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// ConnString builds a Postgres DSN from the database section.
func (c *Configuration) ConnString() string {
	return fmt.Sprintf("user=%s password=%s host=%s dbname=%s sslmode=disable",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.DB)
}

// ParseChannelSet parses a comma-separated list of channel indices into a
// membership set. Blank entries are skipped; malformed entries are an error.
func ParseChannelSet(s string) (map[int]bool, error) {
	out := make(map[int]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idx, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid channel index %q", part)
		}
		out[idx] = true
	}
	return out, nil
}

// ParseChannelIndex parses a single optional channel index; an empty string
// yields nil.
func ParseChannelIndex(s string) (*int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	idx, err := strconv.Atoi(s)
	if err != nil {
		return nil, fmt.Errorf("invalid channel index %q", s)
	}
	return &idx, nil
}
