package app

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/klabast/wb-services/duty-calendar/internal/calendar"
	"github.com/klabast/wb-services/duty-calendar/internal/logging"
	"github.com/klabast/wb-services/duty-calendar/internal/storage"
)

// Constants
const (
	EnvPrefix       = "DUTY"
	DefaultEnvFile  = ".env"
	DefaultBoltPath = "data/duty-calendar.db"
	DefaultFileDir  = "data"

	// Error messages
	ErrEditModeDisabled  = "Edit mode disabled"
	ErrInvalidDateFormat = "Invalid date format"
	ErrInvalidFormat     = "Invalid format"
	ErrInvalidBody       = "Invalid request body"
	ErrUnknownStudent    = "Unknown student"
	ErrInternalServer    = "Internal server error"
	ErrFailedToSave      = "Failed to save changes"

	// Mode strings
	ModeServe = "serve"
	ModeEdit  = "edit"

	// ICS constants
	ICSProductID = "-//Winterberg//Duty Calendar//EN"
	ICSTimezone  = "Europe/Berlin"
	ICSDomain    = "duty-calendar.winterberg.de"
)

// Config is the service configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
	Calendar CalendarConfig `mapstructure:"calendar"`
}

type ServerConfig struct {
	Port     int  `mapstructure:"port"`
	EditMode bool `mapstructure:"edit_mode"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

type AuthConfig struct {
	File string `mapstructure:"file"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type CalendarConfig struct {
	HolidayRegion string `mapstructure:"holiday_region"`
}

// Mode returns the human-readable run mode.
func (c *Config) Mode() string {
	if c.Server.EditMode {
		return ModeEdit
	}
	return ModeServe
}

// LoadConfig reads configuration with precedence env > file > defaults. An
// optional .env file is loaded into the environment first. path may be empty
// to search ./config.yaml and ./config/config.yaml.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(DefaultEnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", DefaultEnvFile, err)
	}

	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.edit_mode", false)
	v.SetDefault("storage.driver", storage.DriverBolt)
	v.SetDefault("storage.path", "")
	v.SetDefault("auth.file", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", logging.FormatJSON)
	v.SetDefault("calendar.holiday_region", calendar.HolidayRegionNRW)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// AUTH_FILE predates the DUTY_ prefix and is still honoured.
	if cfg.Auth.File == "" {
		cfg.Auth.File = os.Getenv("AUTH_FILE")
	}
	cfg.applyStorageDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyStorageDefaults() {
	if c.Storage.Path != "" {
		return
	}
	switch c.Storage.Driver {
	case storage.DriverBolt:
		c.Storage.Path = DefaultBoltPath
	case storage.DriverFile:
		c.Storage.Path = DefaultFileDir
	}
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid config: server.port must be between 1 and 65535")
	}
	switch c.Storage.Driver {
	case storage.DriverBolt, storage.DriverFile, storage.DriverMemory:
	default:
		return fmt.Errorf("invalid config: unknown storage.driver %q", c.Storage.Driver)
	}
	switch c.Log.Format {
	case logging.FormatJSON, logging.FormatConsole:
	default:
		return fmt.Errorf("invalid config: unknown log.format %q", c.Log.Format)
	}
	return nil
}
