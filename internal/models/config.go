package models

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type APIToken struct {
	Token        string `mapstructure:"token"`
	Role         string `mapstructure:"role"`
	RestaurantID string `mapstructure:"restaurant_id"`
}

type Config struct {
	ListenAddr       string        `mapstructure:"listen_addr"`
	Store            string        `mapstructure:"store"` // postgres | memory
	KafkaEnabled     bool          `mapstructure:"kafka_enabled"`
	KafkaBrokerList  string        `mapstructure:"kafka_broker_list"`
	KafkaTopicPrefix string        `mapstructure:"kafka_topic_prefix"`
	SessionTimeoutMs int           `mapstructure:"session_timeout_ms"`
	EventLogPath     string        `mapstructure:"event_log_path"`
	Database         DatabaseConfig `mapstructure:"database"`
	APITokens        []APIToken    `mapstructure:"api_tokens"`

	// SessionWindow bounds both client-side session detection and the
	// new-visit check at order completion. The original deployment ran with
	// two independently tuned thresholds (a 60s completion gap and a 1m
	// tracker timeout left over from testing); they are unified here and the
	// old behaviour remains reachable by configuring 60s.
	SessionWindow time.Duration `mapstructure:"session_window"`

	// ConversionRevertWindow bounds how far after an order's creation a gift
	// conversion is considered part of that order and reversed on cancellation.
	ConversionRevertWindow time.Duration `mapstructure:"conversion_revert_window"`

	// FreeCancellationsPerDay is how many cancellations per calendar day keep
	// their commission refund.
	FreeCancellationsPerDay int `mapstructure:"free_cancellations_per_day"`

	VisitWindowDays int `mapstructure:"visit_window_days"`

	ExportFolder   string `mapstructure:"export_folder"`
	CloudBucket    string `mapstructure:"cloud_bucket"`
	CloudRegion    string `mapstructure:"cloud_region"`
	SeedRestaurants int   `mapstructure:"seed_restaurants"`
	SeedVisitors    int   `mapstructure:"seed_visitors"`
}

// LoadConfig initializes and reads the configuration using Viper
func LoadConfig(cfgFile string) (*Config, error) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath("examples")
		viper.SetConfigName("config")
		viper.SetConfigType("json")
	}

	viper.AutomaticEnv()

	viper.SetDefault("listen_addr", ":8080")
	viper.SetDefault("store", "postgres")
	viper.SetDefault("session_window", "4h")
	viper.SetDefault("conversion_revert_window", "5m")
	viper.SetDefault("free_cancellations_per_day", 2)
	viper.SetDefault("visit_window_days", 30)
	viper.SetDefault("database.sslmode", "disable")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	decoderConfigOption := viper.DecoderConfigOption(func(config *mapstructure.DecoderConfig) {
		config.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			config.DecodeHook,
			mapstructure.StringToTimeDurationHookFunc(),
		)
	})
	if err := viper.Unmarshal(&config, decoderConfigOption); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %w", err)
	}

	config.ApplyDefaults()
	return &config, nil
}

// ApplyDefaults fills zero values for configs built without viper (tests).
func (cfg *Config) ApplyDefaults() {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.Store == "" {
		cfg.Store = "postgres"
	}
	if cfg.SessionWindow <= 0 {
		cfg.SessionWindow = 4 * time.Hour
	}
	if cfg.ConversionRevertWindow <= 0 {
		cfg.ConversionRevertWindow = 5 * time.Minute
	}
	if cfg.FreeCancellationsPerDay <= 0 {
		cfg.FreeCancellationsPerDay = 2
	}
	if cfg.VisitWindowDays <= 0 {
		cfg.VisitWindowDays = 30
	}
	if cfg.KafkaTopicPrefix == "" {
		cfg.KafkaTopicPrefix = "plateful"
	}
}
