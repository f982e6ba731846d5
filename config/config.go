// Package config loads server configuration from environment variables,
// with defaults suitable for local development.
package config

import (
	"github.com/spf13/viper"
)

type Config struct {
	ServerPort string `mapstructure:"SERVER_PORT"`
	DBPath     string `mapstructure:"DB_PATH"`
	Region     string `mapstructure:"REGION"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`

	// Cron expressions for the scheduled jobs. Defaults: monthly accrual on
	// the 1st at 02:00, year-end transition on Jan 1 at 03:00, comp-off
	// expiry sweep daily at 04:00.
	AccrualCron string `mapstructure:"ACCRUAL_CRON"`
	YearEndCron string `mapstructure:"YEAR_END_CRON"`
	ExpiryCron  string `mapstructure:"EXPIRY_CRON"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (config Config, err error) {
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("DB_PATH", "./data/leave.db")
	viper.SetDefault("REGION", "IN")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("ACCRUAL_CRON", "0 2 1 * *")
	viper.SetDefault("YEAR_END_CRON", "0 3 1 1 *")
	viper.SetDefault("EXPIRY_CRON", "0 4 * * *")

	// Read in environment variables that match the keys.
	viper.AutomaticEnv()

	err = viper.Unmarshal(&config)
	return
}
