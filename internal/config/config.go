package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env               string        `mapstructure:"ENV"`
	Port              string        `mapstructure:"PORT"`
	DataDir           string        `mapstructure:"DATA_DIR"`
	GatewayURL        string        `mapstructure:"GATEWAY_URL"`
	GatewayToken      string        `mapstructure:"GATEWAY_TOKEN"`
	WorkspaceID       string        `mapstructure:"WORKSPACE_ID"`
	AdminKey          string        `mapstructure:"ADMIN_KEY"`
	CORSAllowed       string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout    time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	ReconcileInterval time.Duration `mapstructure:"RECONCILE_INTERVAL"`
	ConfirmTTL        time.Duration `mapstructure:"CONFIRM_TTL"`
	LogLevel          string        `mapstructure:"LOG_LEVEL"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("DATA_DIR", "data")
	v.SetDefault("REQUEST_TIMEOUT", "15s")
	v.SetDefault("RECONCILE_INTERVAL", "10m")
	v.SetDefault("CONFIRM_TTL", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
