// Package config loads bot configuration from environment variables
// and an optional config.yaml in the working directory.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	TelegramToken string
	DBPath        string
	Debug         bool

	DirectoryURL     string
	DirectoryToken   string
	DirectoryTimeout time.Duration

	DefaultCountryID int64
	DefaultCityID    int64
	IdleTimeout      time.Duration
}

func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("database.path", "./data/matchbot.db")
	v.SetDefault("directory.timeout", "10s")
	v.SetDefault("location.default_country_id", 1)
	v.SetDefault("location.default_city_id", 1)
	v.SetDefault("session.idle_timeout", "30m")
	v.SetDefault("debug", false)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("MATCHBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		TelegramToken:    v.GetString("telegram.token"),
		DBPath:           v.GetString("database.path"),
		Debug:            v.GetBool("debug"),
		DirectoryURL:     v.GetString("directory.url"),
		DirectoryToken:   v.GetString("directory.token"),
		DirectoryTimeout: v.GetDuration("directory.timeout"),
		DefaultCountryID: v.GetInt64("location.default_country_id"),
		DefaultCityID:    v.GetInt64("location.default_city_id"),
		IdleTimeout:      v.GetDuration("session.idle_timeout"),
	}

	if cfg.TelegramToken == "" {
		return nil, errors.New("telegram.token is required (MATCHBOT_TELEGRAM_TOKEN)")
	}
	if cfg.DirectoryURL == "" {
		return nil, errors.New("directory.url is required (MATCHBOT_DIRECTORY_URL)")
	}

	return cfg, nil
}
