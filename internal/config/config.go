// Package config manages configuration for the budgetml CLI.
// It uses Viper for unified configuration management from the config
// file and environment variables, with struct-level validation.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/budgetml/budgetml/internal/constants"
)

// Config holds the deployment defaults shared by every launch.
// Values come from ~/.budgetml/config.yaml and BUDGETML_-prefixed
// environment variables; environment variables take precedence.
type Config struct {
	Project     string `mapstructure:"project" yaml:"project" validate:"required"`
	Zone        string `mapstructure:"zone" yaml:"zone"`
	Region      string `mapstructure:"region" yaml:"region"`
	UniqueID    string `mapstructure:"unique_id" yaml:"unique_id"`
	StaticIP    string `mapstructure:"static_ip" yaml:"static_ip"`
	Domain      string `mapstructure:"domain" yaml:"domain" validate:"omitempty,fqdn"`
	Subdomain   string `mapstructure:"subdomain" yaml:"subdomain"`
	Username    string `mapstructure:"username" yaml:"username"`
	MachineType string `mapstructure:"machine_type" yaml:"machine_type"`
	Preemptible bool   `mapstructure:"preemptible" yaml:"preemptible"`
	LogLevel    string `mapstructure:"log_level" yaml:"log_level"`
}

var validate = validator.New()

// Load reads the configuration from the config file (if present) and
// the environment. A missing config file is not an error; the CLI can
// run entirely from flags and environment variables.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if err := loadConfigFile(v); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error loading config file: %w", err)
		}
	}

	v.SetEnvPrefix(strings.ToUpper(constants.ProjectName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// Validate checks that a fully resolved configuration is launchable.
// Called after CLI flags have been merged in.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("zone", constants.DefaultZone)
	v.SetDefault("region", constants.DefaultRegion)
	v.SetDefault("subdomain", "budget")
	v.SetDefault("username", "budget")
	v.SetDefault("machine_type", constants.DefaultMachineType)
	v.SetDefault("preemptible", true)
	v.SetDefault("log_level", "info")
}

// bindEnvVars binds every config key explicitly; AutomaticEnv alone
// does not surface env-only keys through Unmarshal.
func bindEnvVars(v *viper.Viper) {
	keys := []string{
		"project", "zone", "region", "unique_id", "static_ip",
		"domain", "subdomain", "username", "machine_type",
		"preemptible", "log_level",
	}
	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}

func loadConfigFile(v *viper.Viper) error {
	home, err := os.UserHomeDir()
	if err != nil {
		// No home directory means no config file; env vars still apply.
		return viper.ConfigFileNotFoundError{}
	}

	v.SetConfigName(strings.TrimSuffix(constants.ConfigFileName, ".yaml"))
	v.SetConfigType("yaml")
	v.AddConfigPath(constants.ConfigDirPath(home))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return err
		}
		return fmt.Errorf("%s: %w", constants.ConfigFilePath(home), err)
	}
	return nil
}
