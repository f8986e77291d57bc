// Package config loads the persistence units of the demo from a yaml file, a .env file and
// PERSIST_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// keys are nested with "::" since unit properties contain dots
const keyDelimiter = "::"

const EnvPrefix = "PERSIST"

var ConfigPaths = []string{
	".",
	"./configs",
	"../configs",
}

var DotEnvPaths = []string{
	".env",
	"./configs/.env",
}

type Config struct {
	Logger LoggerConfig `mapstructure:"logger"`
	Units  []UnitConfig `mapstructure:"units"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Production bool   `mapstructure:"production"`
}

type UnitConfig struct {
	Name string `mapstructure:"name"`
	// Tag selects the unit in a multi unit module, empty for the default unit
	Tag string `mapstructure:"tag"`
	// Driver is one of gorm, sql, pgx, mongo or event
	Driver           string            `mapstructure:"driver"`
	Properties       map[string]string `mapstructure:"properties"`
	HandleProperties map[string]string `mapstructure:"handle_properties"`
}

// Load reads file, or persist.yaml in ConfigPaths when file is empty
func Load(file string) (*Config, error) {
	// a missing .env file is fine
	_ = loadDotEnvFile()

	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("persist")
		v.SetConfigType("yaml")
		for _, path := range ConfigPaths {
			v.AddConfigPath(path)
		}
	}
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(keyDelimiter, "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadDotEnvFile() error {
	for _, path := range DotEnvPaths {
		if _, err := os.Stat(path); err == nil {
			return godotenv.Load(path)
		}
	}
	return os.ErrNotExist
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger"+keyDelimiter+"level", "info")
	v.SetDefault("logger"+keyDelimiter+"production", false)
}

// Validate checks that every unit has a name and a driver and that tags are unique
func (c *Config) Validate() error {
	if len(c.Units) == 0 {
		return errors.New("at least one unit must be configured")
	}
	tags := make(map[string]string, len(c.Units))
	for i, u := range c.Units {
		if u.Name == "" {
			return fmt.Errorf("units[%d]: name is required", i)
		}
		if u.Driver == "" {
			return fmt.Errorf("unit %s: driver is required", u.Name)
		}
		if other, ok := tags[u.Tag]; ok {
			return fmt.Errorf("unit %s: tag %q is already used by unit %s", u.Name, u.Tag, other)
		}
		tags[u.Tag] = u.Name
	}
	return nil
}
