package config

import (
	"github.com/spf13/viper"
	"sync"
	"time"
)

var once sync.Once

func InitConfig() {
	once.Do(func() {
		viper.AutomaticEnv()

		viper.BindEnv("metrics_port", "METRICS_PORT")
		viper.BindEnv("api_pro_key", "API_PRO_KEY")
		viper.BindEnv("debug", "DEBUG")
		viper.BindEnv("log_level", "LOG_LEVEL")
		viper.BindEnv("lang", "LANG")
		viper.BindEnv("database_path", "DATABASE_PATH")

		// monitor
		viper.BindEnv("tick_interval", "TICK_INTERVAL_MS")
		viper.BindEnv("noise_epsilon", "NOISE_EPSILON")
		viper.BindEnv("daily_cooldown", "DAILY_COOLDOWN")
		viper.BindEnv("expiry_sweep_interval", "EXPIRY_SWEEP_INTERVAL")
		viper.BindEnv("price_refresh_interval", "PRICE_REFRESH_INTERVAL")
		viper.BindEnv("price_max_age", "PRICE_MAX_AGE")
		viper.BindEnv("notify_timeout", "NOTIFY_TIMEOUT")

		// notification channels
		viper.BindEnv("telegram_bot_token", "TELEGRAM_BOT_TOKEN")
		viper.BindEnv("telegram_chat_id", "TELEGRAM_CHAT_ID")
		viper.BindEnv("slack_webhook_url", "SLACK_WEBHOOK_URL")
		viper.BindEnv("smtp_host", "SMTP_HOST")
		viper.BindEnv("smtp_port", "SMTP_PORT")
		viper.BindEnv("smtp_user", "SMTP_USER")
		viper.BindEnv("smtp_password", "SMTP_PASSWORD")
		viper.BindEnv("smtp_from", "SMTP_FROM")
		viper.BindEnv("smtp_to", "SMTP_TO")

		viper.SetDefault("metrics_port", 9090)
		viper.SetDefault("debug", false)
		viper.SetDefault("lang", "en")
		viper.SetDefault("database_path", "/app/data/alerts.db")
		viper.SetDefault("tick_interval", 60000)
		viper.SetDefault("noise_epsilon", 0.01)
		viper.SetDefault("daily_cooldown", "24h")
		viper.SetDefault("expiry_sweep_interval", "1h")
		viper.SetDefault("price_refresh_interval", "30s")
		viper.SetDefault("price_max_age", "5m")
		viper.SetDefault("notify_timeout", "10s")
		viper.SetDefault("smtp_port", 587)
	})
}

func GetString(key string) string {
	InitConfig()
	return viper.GetString(key)
}

func GetInt(key string) int {
	InitConfig()
	return viper.GetInt(key)
}

func GetInt64(key string) int64 {
	InitConfig()
	return viper.GetInt64(key)
}

func GetBool(key string) bool {
	InitConfig()
	return viper.GetBool(key)
}

func GetFloat64(key string) float64 {
	InitConfig()
	return viper.GetFloat64(key)
}

func GetDuration(key string) time.Duration {
	InitConfig()
	return viper.GetDuration(key)
}

// TickInterval is configured in milliseconds.
func TickInterval() time.Duration {
	return time.Duration(GetInt64("tick_interval")) * time.Millisecond
}
