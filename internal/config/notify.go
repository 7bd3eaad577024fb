package config

import "os"

// NotifyConfig configures new-booking alerts.  Telegram alerts are enabled
// when TELEGRAM_TOKEN is set, in which case TELEGRAM_CHAT_ID is required.
type NotifyConfig struct {
    TelegramToken  string
    TelegramChatID int64
}

// LoadNotifyConfig reads the TELEGRAM_* variables.
func LoadNotifyConfig() NotifyConfig {
    cfg := NotifyConfig{TelegramToken: os.Getenv("TELEGRAM_TOKEN")}
    if cfg.TelegramToken != "" {
        cfg.TelegramChatID = int64(mustInt("TELEGRAM_CHAT_ID"))
    }
    return cfg
}
