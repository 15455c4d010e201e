package ioc

import (
	"log/slog"

	"github.com/KNICEX/trade-alert/internal/service/notification"
	"github.com/spf13/viper"
)

func InitSender() notification.Sender {
	type Config struct {
		Telegram struct {
			APIURL string `mapstructure:"api_url"`
			Token  string `mapstructure:"token"`
			ChatID string `mapstructure:"chat_id"`
		} `mapstructure:"telegram"`
		Webhook struct {
			URL string `mapstructure:"url"`
		} `mapstructure:"webhook"`
		Console bool `mapstructure:"console"`
	}

	var cfg Config
	if err := viper.UnmarshalKey("notify", &cfg); err != nil {
		panic(err)
	}
	// UnmarshalKey 读不到只绑定了环境变量的嵌套 key
	if cfg.Telegram.Token == "" {
		cfg.Telegram.Token = viper.GetString("notify.telegram.token")
	}
	if cfg.Telegram.ChatID == "" {
		cfg.Telegram.ChatID = viper.GetString("notify.telegram.chat_id")
	}

	var senders notification.Multi
	if cfg.Telegram.Token != "" && cfg.Telegram.ChatID != "" {
		senders = append(senders, notification.NewTelegramSender(cfg.Telegram.APIURL, cfg.Telegram.Token, cfg.Telegram.ChatID))
	}
	if cfg.Webhook.URL != "" {
		senders = append(senders, notification.NewWebhookSender(cfg.Webhook.URL))
	}
	if cfg.Console || len(senders) == 0 {
		senders = append(senders, notification.ConsoleSender{})
	}
	for _, s := range senders {
		slog.Info("notification sender enabled", "sender", s.Name())
	}
	if len(senders) == 1 {
		return senders[0]
	}
	return senders
}
