/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the wallet-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort     string `mapstructure:"SERVER_PORT"`
	MetricsPort    string `mapstructure:"METRICS_PORT"`
	DatabaseURL    string `mapstructure:"DATABASE_URL"`
	RedisURL       string `mapstructure:"REDIS_URL"`
	RabbitMQURL    string `mapstructure:"RABBITMQ_URL"`
	JWTSecret      string `mapstructure:"JWT_SECRET"`
	InternalAPIKey string `mapstructure:"INTERNAL_API_KEY"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`

	ProcessorAPIBaseURL    string `mapstructure:"PROCESSOR_API_BASE_URL"`
	ProcessorAPIKey        string `mapstructure:"PROCESSOR_API_KEY"`
	ProcessorWebhookSecret string `mapstructure:"PROCESSOR_WEBHOOK_SECRET"`
	WebhookCachePrefix     string `mapstructure:"WEBHOOK_CACHE_PREFIX"`

	ServiceFeePercent  float64 `mapstructure:"SERVICE_FEE_PERCENT"`
	ServiceFeeCapEUR   int64   `mapstructure:"SERVICE_FEE_CAP_EUR"`
	PlatformFeePercent float64 `mapstructure:"PLATFORM_FEE_PERCENT"`
	DepositFloorEUR    int64   `mapstructure:"DEPOSIT_FLOOR_EUR"`
	FXRateEURPLN       float64 `mapstructure:"FX_RATE_EUR_PLN"`
	MinWithdrawal      int64   `mapstructure:"MIN_WITHDRAWAL"`

	AutoReleaseDays     int    `mapstructure:"AUTO_RELEASE_DAYS"`
	AutoReleaseSchedule string `mapstructure:"AUTO_RELEASE_SCHEDULE"`

	TransactionPINMaxAttempts    int `mapstructure:"TRANSACTION_PIN_MAX_ATTEMPTS"`
	TransactionPINLockoutSeconds int `mapstructure:"TRANSACTION_PIN_LOCKOUT_SECONDS"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("METRICS_PORT", "9091")
	viper.SetDefault("WEBHOOK_CACHE_PREFIX", "wallet:webhook_events")
	viper.SetDefault("ALLOWED_ORIGINS", "*")
	viper.SetDefault("SERVICE_FEE_PERCENT", 15.0)
	viper.SetDefault("SERVICE_FEE_CAP_EUR", 15000) // minor units
	viper.SetDefault("PLATFORM_FEE_PERCENT", 5.0)
	viper.SetDefault("DEPOSIT_FLOOR_EUR", 2500) // minor units
	viper.SetDefault("FX_RATE_EUR_PLN", 4.30)
	viper.SetDefault("MIN_WITHDRAWAL", 1000) // minor units
	viper.SetDefault("AUTO_RELEASE_DAYS", 14)
	viper.SetDefault("AUTO_RELEASE_SCHEDULE", "@hourly")
	viper.SetDefault("TRANSACTION_PIN_MAX_ATTEMPTS", 5)
	viper.SetDefault("TRANSACTION_PIN_LOCKOUT_SECONDS", 600)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("METRICS_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "WALLET_REDIS_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "WALLET_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("ALLOWED_ORIGINS")
	_ = viper.BindEnv("PROCESSOR_API_BASE_URL")
	_ = viper.BindEnv("PROCESSOR_API_KEY")
	_ = viper.BindEnv("PROCESSOR_WEBHOOK_SECRET")
	_ = viper.BindEnv("WEBHOOK_CACHE_PREFIX")
	_ = viper.BindEnv("SERVICE_FEE_PERCENT")
	_ = viper.BindEnv("SERVICE_FEE_CAP_EUR")
	_ = viper.BindEnv("PLATFORM_FEE_PERCENT")
	_ = viper.BindEnv("DEPOSIT_FLOOR_EUR")
	_ = viper.BindEnv("FX_RATE_EUR_PLN")
	_ = viper.BindEnv("MIN_WITHDRAWAL")
	_ = viper.BindEnv("AUTO_RELEASE_DAYS")
	_ = viper.BindEnv("AUTO_RELEASE_SCHEDULE")
	_ = viper.BindEnv("TRANSACTION_PIN_MAX_ATTEMPTS")
	_ = viper.BindEnv("TRANSACTION_PIN_LOCKOUT_SECONDS")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	if strings.TrimSpace(config.InternalAPIKey) == "" {
		config.InternalAPIKey = strings.TrimSpace(os.Getenv("WALLET_SERVICE_INTERNAL_API_KEY"))
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.WebhookCachePrefix = strings.TrimSpace(config.WebhookCachePrefix)
	if config.WebhookCachePrefix == "" {
		config.WebhookCachePrefix = "wallet:webhook_events"
	}
	if config.AutoReleaseDays <= 0 {
		config.AutoReleaseDays = 14
	}

	return config, nil
}

// Origins splits the comma-separated ALLOWED_ORIGINS value.
func (c Config) Origins() []string {
	parts := strings.Split(c.AllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return origins
}
