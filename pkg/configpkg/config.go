// Package configpkg provides parsing functionality for environment variables.
package configpkg

import (
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
//
// The values are read by viper from a config file or environment variables.
type Config struct {
	DBDriver      string `mapstructure:"DB_DRIVER"`
	DBSource      string `mapstructure:"DB_SOURCE"`
	ServerAddress string `mapstructure:"SERVER_ADDRESS"`
	Environment   string `mapstructure:"GO_ENV"`

	GatewayBaseURL string        `mapstructure:"GATEWAY_BASE_URL"`
	GatewayToken   string        `mapstructure:"GATEWAY_ACCESS_TOKEN"`
	GatewayTimeout time.Duration `mapstructure:"GATEWAY_TIMEOUT"`

	DepositFeeRate       string `mapstructure:"DEPOSIT_FEE_RATE"`
	WithdrawalFeeRate    string `mapstructure:"WITHDRAWAL_FEE_RATE"`
	WithdrawalFixedFee   string `mapstructure:"WITHDRAWAL_FIXED_FEE"`
	DepositMinimumAmount string `mapstructure:"DEPOSIT_MINIMUM_AMOUNT"`
	DepositMaximumAmount string `mapstructure:"DEPOSIT_MAXIMUM_AMOUNT"`

	AdminTokenSymmetricKey string `mapstructure:"ADMIN_TOKEN_SYMMETRIC_KEY"`
	WebhookSigningSecret   string `mapstructure:"WEBHOOK_SIGNING_SECRET"`

	UserNotifyURL  string `mapstructure:"USER_NOTIFY_URL"`
	AdminNotifyURL string `mapstructure:"ADMIN_NOTIFY_URL"`

	SweepInterval   time.Duration `mapstructure:"SWEEP_INTERVAL"`
	StaleDepositAge time.Duration `mapstructure:"STALE_DEPOSIT_AGE"`
	StalePayoutAge  time.Duration `mapstructure:"STALE_PAYOUT_AGE"`
}

// Load reads configuration from file or environment variables.
func Load(path string) (Config, error) {
	var c Config

	viper.AddConfigPath(path)
	viper.SetConfigName("app")
	viper.SetConfigType("env")

	viper.AutomaticEnv()

	err := viper.ReadInConfig()
	if err != nil {
		return c, err
	}

	err = viper.Unmarshal(&c)
	if err != nil {
		return c, err
	}

	return c, nil
}
